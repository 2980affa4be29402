package daemon

import (
	"context"
	"fmt"
	"log/slog"

	"go.klb.dev/wayclip/internal/clip"
	"go.klb.dev/wayclip/internal/history"
	"go.klb.dev/wayclip/internal/input"
)

// Selection is a picker choice on its way to the worker.
type Selection struct {
	Text   string
	Handle history.Handle
}

// Worker re-injects selections: clipboard first, then the paste keystroke,
// then promotion in the history.
type Worker struct {
	writer   clip.Writer
	injector input.Injector
	store    *history.Store
	mime     string
}

func NewWorker(w clip.Writer, in input.Injector, s *history.Store, mime string) *Worker {
	return &Worker{writer: w, injector: in, store: s, mime: mime}
}

// Run consumes selections until ctx is cancelled. Failures are logged and
// the worker moves on to the next selection.
func (w *Worker) Run(ctx context.Context, in <-chan Selection) {
	for {
		select {
		case <-ctx.Done():
			return
		case sel := <-in:
			if err := w.Inject(ctx, sel); err != nil {
				slog.Error("paste failed", "err", err)
			}
		}
	}
}

// Inject places sel on the clipboard, pastes it and promotes it. A failed
// step skips the ones after it, so history is only reordered once the
// paste keystroke went out.
func (w *Worker) Inject(ctx context.Context, sel Selection) error {
	if err := w.writer.Copy(ctx, []byte(sel.Text), w.mime); err != nil {
		return fmt.Errorf("set clipboard via %s: %w", w.writer.Name(), err)
	}
	if err := w.injector.Paste(); err != nil {
		return fmt.Errorf("paste keystroke: %w", err)
	}
	if _, ok := w.store.Promote(sel.Handle); !ok {
		slog.Debug("pasted entry left history before promotion", "id", sel.Handle.ID)
		return nil
	}
	slog.Debug("entry pasted and promoted", "index", sel.Handle.Index, "id", sel.Handle.ID)
	return nil
}
