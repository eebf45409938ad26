//go:build windows

package fsstat

import "os"

// DeviceInode is unavailable on Windows through the standard os.FileInfo;
// move detection degrades to exact-path matching only on this platform.
func DeviceInode(info os.FileInfo) (device, inode uint64) {
	return 0, 0
}
