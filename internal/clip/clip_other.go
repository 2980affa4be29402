//go:build !linux

package clip

import "errors"

func newX11() (Writer, error) {
	return nil, errors.New("x11 clipboard writer is only available on Linux")
}
