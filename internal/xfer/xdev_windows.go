//go:build windows

package xfer

import "errors"

// Windows reports cross-volume rename failures via a distinct syscall error
// that errors.Is cannot usefully match here, so cross-device fallback on
// Windows is best-effort.
func crossDeviceErr() error {
	return errors.New("cross-device link")
}
