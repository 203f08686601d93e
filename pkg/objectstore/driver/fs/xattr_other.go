//go:build !linux && !darwin

package fs

import "errors"

var errXattrUnsupported = errors.New("extended attributes are not supported on this platform")

func setxattr(path string, data []byte) error {
	return errXattrUnsupported
}

func getxattr(path string) ([]byte, error) {
	return nil, errXattrUnsupported
}
