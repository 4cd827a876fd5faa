//go:build windows

package vfs

import "os"

// inodeOf can't report a file index from os.FileInfo alone on Windows
// (that requires an open handle and GetFileInformationByHandle); "move
// backup" hard-link detection falls back to always copying on this
// platform.
func inodeOf(fi os.FileInfo) (uint64, bool) {
	return 0, false
}
