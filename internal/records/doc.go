// Package records keeps the durable "this file was uploaded" ledger.
//
// A record is written once per completed file when an upload task finishes
// successfully, and is never written for failed or cancelled uploads, so
// the presence of a record is the signal that a source file reached the
// service. The CLI reads it back to list past uploads and to skip files
// whose server-side copy already matches.
package records
