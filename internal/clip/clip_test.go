package clip

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelectsWriter(t *testing.T) {
	for kind, name := range map[string]string{
		"":          "Wayland data-control",
		KindWayland: "Wayland data-control",
		KindNone:    "headless (no-op)",
	} {
		w, err := New(kind, time.Second)
		require.NoError(t, err, kind)
		assert.Equal(t, name, w.Name())
		assert.NoError(t, w.Close())
	}
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New("clippy", time.Second)
	assert.ErrorContains(t, err, `"clippy"`)
}

func TestHeadlessDiscards(t *testing.T) {
	w, err := New(KindNone, 0)
	require.NoError(t, err)
	assert.NoError(t, w.Copy(context.Background(), []byte("x"), "text/plain"))
}
