// Package xfer materializes a single file placement using one of Canon's
// transfer modes: copy, rename, or move. Every mode refuses an existing
// destination. Copies (including a cross-device move's copy) open the
// destination with exclusive create, which closes the race window between a
// pre-flight existence check and the actual transfer; a rename or
// same-device move only checks for the destination just before renaming,
// which narrows that window but does not close it.
package xfer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Mode selects how a file is placed at its destination.
type Mode string

const (
	ModeCopy   Mode = "copy"
	ModeRename Mode = "rename"
	ModeMove   Mode = "move"
)

// ErrDestinationExists is returned when the destination already exists at
// the moment of transfer.
var ErrDestinationExists = errors.New("xfer: destination already exists")

// Transfer places the file at src into dst using mode, creating parent
// directories as needed. Same-device renames are atomic; cross-device
// rename fails outright, while cross-device move falls back to a copy,
// fsync, and source unlink.
func Transfer(mode Mode, src, dst string) error {
	if err := os.MkdirAll(parentDir(dst), 0o755); err != nil {
		return fmt.Errorf("xfer: create parent dir: %w", err)
	}

	if err := checkDestinationAbsent(dst); err != nil {
		return err
	}

	switch mode {
	case ModeCopy:
		return copyFile(src, dst)
	case ModeRename:
		if err := os.Rename(src, dst); err != nil {
			if isCrossDevice(err) {
				return fmt.Errorf("xfer: rename across devices: %w", err)
			}
			return fmt.Errorf("xfer: rename: %w", err)
		}
		return nil
	case ModeMove:
		if err := os.Rename(src, dst); err == nil {
			return nil
		} else if !isCrossDevice(err) {
			return fmt.Errorf("xfer: move: %w", err)
		}
		if err := copyFile(src, dst); err != nil {
			return err
		}
		if err := os.Remove(src); err != nil {
			return fmt.Errorf("xfer: move: unlink source after copy: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("xfer: unknown transfer mode %q", mode)
	}
}

// checkDestinationAbsent narrows, but does not close, the race between
// pre-flight and transfer; copyFile's exclusive create closes it for the
// copy path. Rename has no exclusive-create equivalent on POSIX, so this is
// the best no-clobber guarantee available for rename/move.
func checkDestinationAbsent(dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return ErrDestinationExists
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("xfer: stat destination: %w", err)
	}
	return nil
}

// copyFile performs a byte copy into dst with exclusive create (no-clobber),
// then preserves mtime and permissions from src and fsyncs the destination.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("xfer: open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("xfer: stat source: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrDestinationExists
		}
		return fmt.Errorf("xfer: create destination: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("xfer: copy: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("xfer: fsync destination: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("xfer: close destination: %w", err)
	}
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("xfer: preserve mtime: %w", err)
	}
	return nil
}

func parentDir(path string) string {
	return filepath.Dir(path)
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return errors.Is(linkErr.Err, crossDeviceErr())
	}
	return false
}
