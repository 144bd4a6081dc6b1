package validate

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Excluded reports whether path matches one of the glob patterns.
// Patterns and paths are compared slash-separated without a leading slash,
// so "**/.aws-sam/**" matches absolute paths too.
func Excluded(patterns []string, path string) bool {
	if len(patterns) == 0 || path == "" {
		return false
	}
	target := strings.TrimPrefix(filepath.ToSlash(path), "/")
	for _, pattern := range patterns {
		pattern = strings.TrimPrefix(filepath.ToSlash(pattern), "/")
		if pattern == "" {
			continue
		}
		if ok, err := doublestar.Match(pattern, target); err == nil && ok {
			return true
		}
	}
	return false
}
