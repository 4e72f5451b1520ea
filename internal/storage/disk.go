package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// sqliteSidecars are the journal files SQLite keeps next to a database in WAL mode.
var sqliteSidecars = []string{"-wal", "-shm", "-journal"}

// DiskUsageBytes returns the on-disk footprint of the embedded stores: a SQLite
// database file (plus its WAL/SHM sidecars) or a Badger directory.
// Missing and empty paths count as zero.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if !info.IsDir() {
			total += info.Size() + sidecarBytes(p)
			continue
		}
		n, err := treeBytes(p)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func sidecarBytes(dbPath string) int64 {
	var n int64
	for _, suffix := range sqliteSidecars {
		if info, err := os.Stat(dbPath + suffix); err == nil && !info.IsDir() {
			n += info.Size()
		}
	}
	return n
}

func treeBytes(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			// Badger may remove a value-log file mid-walk.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
