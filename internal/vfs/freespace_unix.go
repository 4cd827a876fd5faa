//go:build !windows

package vfs

import "golang.org/x/sys/unix"

// FreeSpace reports free bytes on the filesystem containing path, via
// statfs(2). Modeled on mutagen-io/mutagen's pkg/filesystem statfs-backed
// format detection, which uses the same golang.org/x/sys/unix.Statfs call.
func (OS) FreeSpace(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}
