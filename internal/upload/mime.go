package upload

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/unicode/norm"
)

const defaultMimeType = "application/octet-stream"

// DetectMimeType sniffs the file's content. Parameters such as charset are
// dropped; unreadable or unrecognised files are generic binary.
func DetectMimeType(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil || mt == nil {
		return defaultMimeType
	}
	base, _, _ := strings.Cut(mt.String(), ";")
	if base = strings.TrimSpace(base); base == "" {
		return defaultMimeType
	}
	return base
}

// displayName is the NFC form of the file's base name, so names typed on
// different platforms register identically.
func displayName(path string) string {
	return norm.NFC.String(filepath.Base(path))
}
