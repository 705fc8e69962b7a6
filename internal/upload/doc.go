// Package upload implements the chunked upload protocol.
//
// RegisterFiles turns local paths into Jobs with a single batched
// registration call; either every file is registered or none is. UploadAll
// then drives each job on its own goroutine: parts fan out through an
// errgroup bounded by the part concurrency, each part is PUT to its
// pre-signed URL and acknowledged, and only once every part is Done does the
// job merge and request the server-side worker job.
//
// Part failures are retried under a RetryPolicy and stay isolated to their
// file. Cancellation is cooperative: it stops scheduling new parts, lets
// dispatched PUTs finish, and removes the server record in the background.
// Progress is the only state shared with the poller.
package upload
