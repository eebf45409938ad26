//go:build !windows

package fsstat

import (
	"os"
	"syscall"
)

// DeviceInode extracts the device and inode number backing info, the
// physical identity the scanner uses for move detection.
func DeviceInode(info os.FileInfo) (device, inode uint64) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0
	}
	return uint64(stat.Dev), uint64(stat.Ino)
}
