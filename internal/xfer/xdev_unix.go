//go:build !windows

package xfer

import "syscall"

func crossDeviceErr() error {
	return syscall.EXDEV
}
