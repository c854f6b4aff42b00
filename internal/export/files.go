package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

const maxFileName = 100

// EDLText reduces s to the printable ASCII an EDL header or comment can carry.
// Control characters are dropped, other runes become '_', runs of '_'
// collapse, and the result is cut to maxLen bytes.
func EDLText(s string, maxLen int) string {
	var b strings.Builder
	prevUnderscore := false
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if r > unicode.MaxASCII {
			r = '_'
		}
		if r == '_' && prevUnderscore {
			continue
		}
		b.WriteRune(r)
		prevUnderscore = r == '_'
	}

	out := strings.TrimSpace(b.String())
	if maxLen > 0 && len(out) > maxLen {
		out = strings.TrimSpace(out[:maxLen])
	}
	return out
}

// ClipName is the EDL source clip name for a media file: its base name
// without extension.
func ClipName(mediaPath string) string {
	base := filepath.Base(mediaPath)
	return EDLText(strings.TrimSuffix(base, filepath.Ext(base)), 32)
}

// FileName maps a render id or title to a portable file name stem.
func FileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if len(out) > maxFileName {
		out = out[:maxFileName]
	}
	if strings.Trim(out, "_") == "" {
		return "plan"
	}
	return out
}

// ExportDir resolves dir to an absolute directory, creating it if needed.
// Paths with ".." elements are refused.
func ExportDir(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", fmt.Errorf("export dir is required")
	}
	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return "", fmt.Errorf("export dir cannot contain path traversal")
		}
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve export dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("invalid export dir: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("export dir is not a directory")
	}
	return abs, nil
}

// WriteEDL writes edl to <dir>/<FileName(name)>.edl. The file appears
// complete or not at all.
func WriteEDL(dir, name, edl string) (string, error) {
	abs, err := ExportDir(dir)
	if err != nil {
		return "", err
	}
	path := filepath.Join(abs, FileName(name)+".edl")

	tmp, err := os.CreateTemp(abs, ".edl-*")
	if err != nil {
		return "", fmt.Errorf("write edl: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(edl); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write edl: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("write edl: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("write edl: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("write edl: %w", err)
	}
	return path, nil
}
