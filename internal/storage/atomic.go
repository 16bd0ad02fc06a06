package storage

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"

	molyerrors "github.com/valter-silva-au/moly-recorder/internal/errors"
)

// replaceFile swaps path for data so a crash at any point leaves either the
// previous document or the new one, never a torn write. SessionInfo is the
// only file rewritten in place; the logs are append-only.
func replaceFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return molyerrors.IO("stage replacement", path, err)
	}
	staged := tmp.Name()

	if err := fillStaged(tmp, data); err != nil {
		_ = os.Remove(staged)
		return molyerrors.IO("stage replacement", path, err)
	}
	if err := renameOver(staged, path); err != nil {
		_ = os.Remove(staged)
		return molyerrors.IO("commit replacement", path, err)
	}
	syncDir(dir)
	return nil
}

// fillStaged writes data to a temp file, makes it durable and closes it.
func fillStaged(f *os.File, data []byte) error {
	_, err := f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if err == nil {
		err = f.Chmod(0o644)
	}
	return errors.Join(err, f.Close())
}

// renameOver renames src over dst. Windows refuses to rename onto an
// existing file, so the old one is removed first there.
func renameOver(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || runtime.GOOS != "windows" {
		return err
	}
	if rmErr := os.Remove(dst); rmErr != nil && !os.IsNotExist(rmErr) {
		return rmErr
	}
	return os.Rename(src, dst)
}

// syncDir makes a rename or file creation in dir durable. Errors are ignored:
// not every platform supports syncing a directory handle.
func syncDir(dir string) {
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
}
