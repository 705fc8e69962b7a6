// Command reelup uploads media files to the asset service.
//
// It signs in with a password or through the browser, remembers the chosen
// project and folder between runs, uploads files in resumable parts with a
// live progress line, and can transcode a source with drapto before
// uploading the result.
package main
