//go:build linux

package clip

import (
	"context"
	"fmt"
	"strings"

	"golang.design/x/clipboard"
)

type x11Writer struct{}

// newX11 initialises the X11 clipboard. clipboard.Init is called here rather
// than in init() so that commands that never copy don't need a display.
func newX11() (Writer, error) {
	if err := clipboard.Init(); err != nil {
		return nil, fmt.Errorf("x11 clipboard unavailable: %w", err)
	}
	return x11Writer{}, nil
}

func (x11Writer) Name() string { return "X11 clipboard" }

func (x11Writer) Copy(ctx context.Context, data []byte, mime string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch {
	case strings.HasPrefix(mime, "text/"):
		clipboard.Write(clipboard.FmtText, data)
	case mime == "image/png":
		clipboard.Write(clipboard.FmtImage, data)
	default:
		return fmt.Errorf("unsupported MIME type: %s", mime)
	}
	return nil
}

func (x11Writer) Close() error { return nil }
