package clip

import "context"

// headlessWriter discards writes. It suits environments without a display
// server, and tests.
type headlessWriter struct{}

func (headlessWriter) Name() string                               { return "headless (no-op)" }
func (headlessWriter) Copy(context.Context, []byte, string) error { return nil }
func (headlessWriter) Close() error                               { return nil }
