package vector

import (
	"io/fs"
	"os"
	"path/filepath"
)

// diskUsageBytes returns the total size in bytes of every file under dir.
// A missing dir contributes 0; errors during the walk are returned.
func diskUsageBytes(dir string) (int64, error) {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
