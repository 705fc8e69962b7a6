// Package transcode runs the optional encode phase ahead of an export
// upload. The encoder's progress feeds the upload task's upstream share and
// its output file is handed to the task exactly once.
package transcode
