package filesys

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	ErrIsNotDir = errors.New("path isn't a directory")
)

// EnsureDir creates dirPath with permission unless it already exists as a directory.
func EnsureDir(dirPath string, permission os.FileMode) error {
	stat, err := os.Stat(dirPath)
	switch {
	case err == nil && !stat.IsDir():
		return ErrIsNotDir
	case err == nil:
		return nil
	case !os.IsNotExist(err):
		return err
	}

	return os.MkdirAll(dirPath, permission)
}

func Glob(pattern string) ([]string, error) {
	return filepath.Glob(pattern)
}

func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// WriteFileAtomic replaces path with data through a synced temporary file and a rename.
func WriteFileAtomic(path string, data []byte, permission os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, permission); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, path)
}
