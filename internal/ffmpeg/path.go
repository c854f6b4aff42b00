package ffmpeg

import (
	"fmt"
	"path/filepath"
	"strings"
)

// NormalizePath returns the absolute form of path using forward slashes only,
// so it can be embedded in a filter expression or command line on any OS.
// The referenced file is never touched.
func NormalizePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("resolve path: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", path, err)
	}
	return strings.ReplaceAll(filepath.ToSlash(abs), `\`, "/"), nil
}
