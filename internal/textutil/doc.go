// Package textutil holds small formatting helpers shared by the CLI and
// notifications: human-readable sizes, cell truncation and the generic
// Ternary.
package textutil
