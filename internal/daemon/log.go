package daemon

import (
	"context"
	"log/slog"

	"go.klb.dev/wayclip/internal/history"
)

const previewLen = 120

// Recorder commits watcher items to the store and logs them.
type Recorder struct {
	store *history.Store
}

func NewRecorder(s *history.Store) *Recorder { return &Recorder{store: s} }

func (r *Recorder) Commit(it history.Item) bool {
	if !r.store.Commit(it) {
		slog.Debug("clipboard item repeats the newest entry", "mime", it.Payload.Mime)
		return false
	}
	LogItem("clipboard item committed", it)
	return true
}

// LogItem logs an item at INFO (kind, mime, size) and, at DEBUG, a text
// preview of up to 120 runes.
func LogItem(event string, it history.Item) {
	p := it.Payload
	slog.Info(event, "id", it.ID, "kind", p.Kind.String(), "mime", p.Mime, "size_bytes", p.Size())

	if p.Kind != history.KindText || !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	preview := []rune(p.Text)
	if len(preview) > previewLen {
		preview = append(preview[:previewLen], '…')
	}
	slog.Debug("clipboard item", "id", it.ID, "preview", string(preview))
}
