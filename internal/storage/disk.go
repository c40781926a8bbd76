package storage

import (
	"io/fs"
	"os"
	"path/filepath"
)

// DiskUsageBytes sums the sizes of the given paths, recursing into
// directories. Missing or empty paths contribute zero, so callers can pass
// every configured storage location without checking which backend actually
// created files. Only regular files are counted.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, path := range paths {
		if path == "" {
			continue
		}
		n, err := pathSize(path)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func pathSize(path string) (int64, error) {
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return 0, nil
	case err != nil:
		return 0, err
	case !info.IsDir():
		return info.Size(), nil
	}
	var total int64
	err = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			fi, err := d.Info()
			if err != nil {
				return err
			}
			total += fi.Size()
		}
		return nil
	})
	return total, err
}
