// Package services defines the error taxonomy and context helpers shared by
// the session, api and upload packages.
//
// Key responsibilities:
//   - Sentinel markers for auth, API, file and cancellation failures, plus
//     the Wrap helper that tags an error with component and operation detail.
//   - APIError, which carries the HTTP status of a failed service call.
//   - Retryable, the default classification used by the part retry policy.
//   - Context helpers that stamp file paths, stages and request ids for
//     logging.
package services
