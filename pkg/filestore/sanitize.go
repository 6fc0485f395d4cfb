package filestore

import (
	"path/filepath"
	"strings"
	"unicode"
)

// ValidateFilename applies the sanitization rules every stored or
// requested filename must pass before any path is derived from it:
// no path separators, no parent-directory segments, no leading dot
// (unless hidden files are allowed), no denylisted extension, length
// within bounds, printable characters only.
func ValidateFilename(name string, denied []string, allowHidden bool) error {
	switch {
	case name == "":
		return &InvalidFilenameError{Filename: name, Reason: "empty"}
	case len(name) > MaxFilenameLength:
		return &InvalidFilenameError{Filename: name, Reason: "longer than 255 characters"}
	case strings.Contains(name, ".."):
		return &InvalidFilenameError{Filename: name, Reason: "parent directory segment"}
	case strings.ContainsAny(name, `/\`):
		return &InvalidFilenameError{Filename: name, Reason: "path separator"}
	case name == "." || strings.TrimSpace(name) == "":
		return &InvalidFilenameError{Filename: name, Reason: "no usable name"}
	}

	if !allowHidden && strings.HasPrefix(name, ".") {
		return &InvalidFilenameError{Filename: name, Reason: "hidden file"}
	}

	for _, r := range name {
		if r == unicode.ReplacementChar || unicode.IsControl(r) {
			return &InvalidFilenameError{Filename: name, Reason: "control or invalid character"}
		}
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext != "" {
		for _, deny := range denied {
			if ext == strings.ToLower(deny) {
				return &InvalidFilenameError{Filename: name, Reason: "extension " + ext + " not allowed"}
			}
		}
	}

	return nil
}

// extensionTypes maps known extensions to content types. Lookup
// happens before content sniffing.
var extensionTypes = map[string]string{
	".pdf":  "application/pdf",
	".html": "text/html",
	".htm":  "text/html",
	".csv":  "text/csv",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".json": "application/json",
	".xml":  "application/xml",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".svg":  "image/svg+xml",
	".zip":  "application/zip",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// DetectContentType resolves a content type from the filename
// extension, falling back to a small fixed set of content signatures
// (PDF magic bytes, HTML doctype, CSV heuristic) and finally to an
// opaque binary type.
func DetectContentType(name string, data []byte) string {
	if ct, ok := extensionTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return sniffContentType(data)
}

func sniffContentType(data []byte) string {
	if len(data) >= 5 && string(data[:5]) == "%PDF-" {
		return "application/pdf"
	}

	head := strings.ToLower(string(peek(data, 256)))
	trimmed := strings.TrimLeftFunc(head, unicode.IsSpace)
	if strings.HasPrefix(trimmed, "<!doctype html") || strings.HasPrefix(trimmed, "<html") {
		return "text/html"
	}

	if looksLikeCSV(data) {
		return "text/csv"
	}

	return "application/octet-stream"
}

// looksLikeCSV accepts printable text whose first line carries at
// least one comma.
func looksLikeCSV(data []byte) bool {
	sample := peek(data, 512)
	if len(sample) == 0 {
		return false
	}
	line, _, _ := strings.Cut(string(sample), "\n")
	if !strings.Contains(line, ",") {
		return false
	}
	for _, r := range string(sample) {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return false
		}
	}
	return true
}

func peek(data []byte, n int) []byte {
	if len(data) < n {
		return data
	}
	return data[:n]
}
