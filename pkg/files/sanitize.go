// Package files orchestrates uploads, downloads, and directory management
// on top of the metadata stores and the physical storage layer. All
// operations are scoped to the calling user; a record owned by someone else
// behaves exactly like a record that does not exist.
package files

import (
	"path/filepath"
	"strings"
)

// MaxFileNameLength bounds sanitized file names.
const MaxFileNameLength = 100

// fallbackFileName is used when sanitization leaves nothing.
const fallbackFileName = "unnamed_file"

// illegalNameBytes are the characters never allowed in a stored file name.
// The set covers both Unix and Windows so archives remain portable.
const illegalNameBytes = `/\:*?"<>|`

// SanitizeFileName maps a client-supplied name to one that is safe to embed
// in a storage path. Illegal characters become underscores, an empty result
// falls back to a placeholder, and overlong names are truncated while
// keeping the extension.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if r < 0x20 || strings.ContainsRune(illegalNameBytes, r) {
			b.WriteByte('_')
		} else {
			b.WriteRune(r)
		}
	}
	out := b.String()

	// Names that are only dots would escape into parent directories once
	// joined into a path.
	if out == "" || strings.Trim(out, ".") == "" {
		return fallbackFileName
	}

	if len(out) > MaxFileNameLength {
		ext := filepath.Ext(out)
		if len(ext) >= MaxFileNameLength {
			ext = ""
		}
		out = out[:MaxFileNameLength-len(ext)] + ext
	}
	return out
}
