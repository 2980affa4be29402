// Package clip places payloads back on the system clipboard. Build
// constraints select the backends available:
//
//	clip_linux.go    X11 via golang.design/x/clipboard, for XWayland-only setups
//	clip_other.go    stub for other platforms
//	clip_headless.go no-op writer
//
// The default writer is the Wayland data-control source.
package clip

import (
	"context"
	"fmt"
	"time"

	"go.klb.dev/wayclip/internal/wayland"
)

// Writer kinds accepted by New.
const (
	KindWayland = "wayland"
	KindX11     = "x11"
	KindNone    = "none"
)

// Writer is the interface every clipboard writer satisfies.
type Writer interface {
	// Name returns a human-readable name for the writer.
	Name() string

	// Copy makes data, advertised as mime, the current clipboard selection.
	Copy(ctx context.Context, data []byte, mime string) error

	// Close withdraws anything the writer is still serving.
	Close() error
}

// New returns the writer for kind. roundtripTimeout bounds compositor
// round-trips of the Wayland writer.
func New(kind string, roundtripTimeout time.Duration) (Writer, error) {
	switch kind {
	case "", KindWayland:
		return &waylandWriter{c: wayland.NewCopier(roundtripTimeout)}, nil
	case KindX11:
		return newX11()
	case KindNone:
		return headlessWriter{}, nil
	default:
		return nil, fmt.Errorf("unknown clipboard writer %q (want %s, %s or %s)", kind, KindWayland, KindX11, KindNone)
	}
}

type waylandWriter struct {
	c *wayland.Copier
}

func (w *waylandWriter) Name() string { return "Wayland data-control" }

func (w *waylandWriter) Copy(ctx context.Context, data []byte, mime string) error {
	return w.c.Copy(ctx, data, mime)
}

func (w *waylandWriter) Close() error { return w.c.Close() }
