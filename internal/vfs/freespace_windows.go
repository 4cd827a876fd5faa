//go:build windows

package vfs

import "golang.org/x/sys/windows"

// FreeSpace reports free bytes on the volume containing path, via
// GetDiskFreeSpaceEx.
func (OS) FreeSpace(path string) (uint64, error) {
	var freeBytesAvailable uint64
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	if err := windows.GetDiskFreeSpaceEx(pathPtr, &freeBytesAvailable, nil, nil); err != nil {
		return 0, err
	}
	return freeBytesAvailable, nil
}
