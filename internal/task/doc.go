// Package task adapts an upload batch to callers that poll rather than
// block. A Task owns one orchestrator run: it is started once, stepped and
// asked for progress on the caller's cadence, and finished once, at which
// point successful uploads are recorded.
//
// Progress blends an optional upstream phase (a transcode) with the upload
// itself so one bar can cover both, and it never moves backwards.
package task
