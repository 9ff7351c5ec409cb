// Package validation holds the input checks applied to release webhooks and
// archives: semantic versions, module names, asset classification and
// archive entry paths.
package validation

import (
	"fmt"
	"path"
	"strings"
)

const (
	// MaxArchiveSize caps the size of a downloaded release archive (100MB).
	MaxArchiveSize = 100 * 1024 * 1024

	// MaxEntrySize caps a single decompressed archive entry (20MB).
	MaxEntrySize = 20 * 1024 * 1024
)

// ValidateEntryPath rejects archive entry names that could escape the
// owner-scoped storage prefix.
func ValidateEntryPath(name string) error {
	if name == "" {
		return fmt.Errorf("empty path")
	}
	if strings.ContainsRune(name, '\\') {
		return fmt.Errorf("backslash not allowed: %s", name)
	}
	if strings.HasPrefix(name, "/") {
		return fmt.Errorf("absolute paths not allowed: %s", name)
	}
	// Windows drive letters, e.g. C:/...
	if len(name) >= 2 && name[1] == ':' {
		return fmt.Errorf("absolute paths not allowed: %s", name)
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return fmt.Errorf("path traversal not allowed: %s", name)
		}
	}
	if cleaned := path.Clean(name); cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("path traversal not allowed: %s", name)
	}
	return nil
}
