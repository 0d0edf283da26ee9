//go:build !linux

package media

import "errors"

var errUnsupportedPlatform = errors.New("media: copy_file_range unsupported on this platform")

// copyFileRange has no portable equivalent outside Linux; always defer to
// bufferedCopy there.
func copyFileRange(src, dst string) error {
	return errUnsupportedPlatform
}
