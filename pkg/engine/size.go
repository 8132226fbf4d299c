package engine

import (
	"path/filepath"

	"github.com/spf13/afero"
)

// folderSize returns the total size of the files in `path`, skipping
// directories whose name is excluded. Directories that vanish or can't be
// read count as empty.
func folderSize(path string, excludes []string) int64 {
	if containsString(excludes, filepath.Base(path)) {
		return 0
	}

	if exists, err := afero.DirExists(fs, path); err != nil || !exists {
		return 0
	}

	infos, err := afero.ReadDir(fs, path)
	if err != nil {
		return 0
	}

	var size int64
	for _, info := range infos {
		if info.IsDir() {
			size += folderSize(filepath.Join(path, info.Name()), excludes)
			continue
		}
		size += info.Size()
	}
	return size
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
