package wayland

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestDestroySendsRequest(t *testing.T) {
	a, b := socketPair(t)
	d := newDisplay(a, time.Second)
	id := d.newObject(ignore)

	destroy(d, id, offerDestroy, "offer")

	m, err := b.readMessage()
	require.NoError(t, err)
	assert.Equal(t, id, m.sender)
	assert.Equal(t, offerDestroy, m.opcode)
	assert.Contains(t, d.objects, id, "client ids stay reserved until delete_id")
}

func TestDestroyLogsFailedWrite(t *testing.T) {
	logs := captureLogs(t)
	a, _ := socketPair(t)
	d := newDisplay(a, time.Second)
	src := d.newObject(ignore)
	require.NoError(t, a.Close())

	destroy(d, src, sourceDestroy, "source")
	destroy(d, serverIDStart, offerDestroy, "offer")

	assert.Contains(t, logs.String(), "source destroy failed")
	assert.Contains(t, logs.String(), "offer destroy failed")
	assert.NotContains(t, d.objects, serverIDStart)
}
