package format

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// OutputName returns results_<prompt>_<timestamp>.<ext>.
func OutputName(promptName string, f Format, now time.Time) string {
	name := unsafeChars.ReplaceAllString(promptName, "_")
	if name == "" {
		name = "custom"
	}
	return fmt.Sprintf("results_%s_%s.%s", name, now.Format("20060102_150405"), f.Extension())
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// WriteFile serializes doc and writes it to path atomically.
func WriteFile(path string, f Format, doc Document) error {
	var buf bytes.Buffer
	if err := Write(&buf, f, doc); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes(), 0o644)
}

// writeFileAtomic writes to a temp file in the target directory and renames
// it into place, so readers never see a partial file.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp_results_*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
