// Package files holds the editor-side file helpers. Failures are reported
// as false or a missing value and logged at debug level; callers that need
// the cause should use package os directly.
package files

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
)

// Read returns the contents of path as a string.
func Read(path string) (string, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		slog.Debug("read file failed", "path", path, "err", err)
		return "", false
	}
	return string(b), true
}

// Write replaces the contents of path, creating the file if needed.
func Write(path, content string) bool {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		slog.Debug("write file failed", "path", path, "err", err)
		return false
	}
	return true
}

// Rename moves old to to.
func Rename(old, to string) bool {
	if err := os.Rename(old, to); err != nil {
		slog.Debug("rename file failed", "old", old, "to", to, "err", err)
		return false
	}
	return true
}

// Exists reports whether path exists. Stat errors other than not-exist
// count as missing.
func Exists(path string) bool {
	_, err := os.Stat(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Debug("stat file failed", "path", path, "err", err)
	}
	return err == nil
}
