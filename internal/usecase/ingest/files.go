package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// maxFolderNameLen caps sanitized folder names.
const maxFolderNameLen = 50

// hashFile returns the SHA-256 hex digest and size of the file at path.
func hashFile(path string) (string, int64, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", 0, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// mimeTypeFor guesses the media type from the file extension.
func mimeTypeFor(path string) string {
	t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if t == "" {
		return "application/octet-stream"
	}
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}

// sanitizeFolderName makes a correspondent name safe for use as a directory.
// Spaces and filesystem-reserved characters are dropped, the result is capped
// at 50 runes, and an empty result falls back to "Unknown".
func sanitizeFolderName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*', ' ':
			// dropped
		default:
			if r >= 0x20 {
				b.WriteRune(r)
			}
		}
	}
	s := strings.Trim(b.String(), " .")
	if runes := []rune(s); len(runes) > maxFolderNameLen {
		s = strings.TrimRight(string(runes[:maxFolderNameLen]), " ")
	}
	if s == "" {
		return "Unknown"
	}
	return s
}

// uniquePath resolves filename collisions by suffixing a counter before the
// extension.
func uniquePath(path string) string {
	if !fileExists(path) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, counter, ext)
		if !fileExists(candidate) {
			return candidate
		}
	}
}

// moveFile renames src to dst, falling back to copy-and-remove when the two
// paths sit on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(filepath.Clean(dst), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return fmt.Errorf("create target: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("close target: %w", err)
	}
	return os.Remove(src)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
