//go:build !unix

package fswatch

import "io/fs"

type fileKey struct {
	dev uint64
	ino uint64
}

// sameFileKey has no portable identity off unix; duplicates are kept.
func sameFileKey(info fs.FileInfo) (fileKey, bool) {
	return fileKey{}, false
}
