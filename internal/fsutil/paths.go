package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// NormalizeURL converts a stored video URL to root-relative, forward-slash form.
func NormalizeURL(u string) string {
	u = strings.ReplaceAll(u, `\`, "/")
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return u
}

// URLFor joins an URL prefix such as "/uploads" and a file name.
func URLFor(prefix, name string) string {
	return NormalizeURL(path.Join(prefix, name))
}

// NameFromURL returns the file name a video URL points at.
func NameFromURL(u string) string {
	base := path.Base(NormalizeURL(u))
	if base == "/" || base == "." {
		return ""
	}
	return base
}

// Exists reports whether p exists and is a regular file.
func Exists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// DirExists reports whether p exists and is a directory.
func DirExists(p string) (bool, error) {
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// WriteFileAtomic writes data to a temp file next to dest, syncs it, then
// renames it into place. A crash leaves either the old or the new document.
func WriteFileAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(dest)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, dest); err != nil {
		cleanup()
		return err
	}
	return nil
}
