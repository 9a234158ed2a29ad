package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// tempPattern names in-flight writes. The leading dot keeps them out of
// List and the watcher.
const tempPattern = ".roamorg-tmp-*"

// filePerm is the mode of files Write creates.
const filePerm = 0o644

// Write replaces the file at path with content. The bytes go to a temp file
// in the same directory which is synced and then renamed over path, so
// readers see either the old or the new file.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.resolve(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}

	mode := os.FileMode(filePerm)
	if info, err := os.Stat(abs); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	if err := writeAndClose(tmp, content, mode); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), abs); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	return nil
}

// writeAndClose fills tmp and gives it mode; CreateTemp always uses 0600.
func writeAndClose(tmp *os.File, content []byte, mode os.FileMode) error {
	_, err := tmp.Write(content)
	if err == nil {
		err = tmp.Chmod(mode)
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	return err
}

// Checksum returns the hex SHA-256 of data. The index stores it to tell
// changed files apart.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
