// Package mediatypes classifies files by extension and maps them to MIME
// types.
//
// The walker uses it to pick videos out of the library, and the artifact
// handler uses it to label sidecar downloads:
//
//	if mediatypes.IsVideo(path) {
//	    // candidate for artifact generation
//	}
//
//	w.Header().Set("Content-Type", mediatypes.ContentType(path))
package mediatypes
