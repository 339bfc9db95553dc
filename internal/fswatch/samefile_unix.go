//go:build unix

package fswatch

import (
	"io/fs"
	"syscall"
)

// fileKey identifies a file across hard links.
type fileKey struct {
	dev uint64
	ino uint64
}

func sameFileKey(info fs.FileInfo) (fileKey, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fileKey{}, false
	}
	return fileKey{dev: uint64(st.Dev), ino: uint64(st.Ino)}, true
}
