//go:build linux || darwin

package fs

import (
	"errors"

	"golang.org/x/sys/unix"
)

func setxattr(path string, data []byte) error {
	return unix.Setxattr(path, xattrName, data, 0)
}

// getxattr returns nil data when the attribute is not set.
func getxattr(path string) ([]byte, error) {
	size, err := unix.Getxattr(path, xattrName, nil)
	if errors.Is(err, errNoAttr) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}

	buf := make([]byte, size)
	n, err := unix.Getxattr(path, xattrName, buf)
	if errors.Is(err, errNoAttr) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
