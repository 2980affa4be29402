package wayland

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCopier(t *testing.T) (*Copier, chan *fakeCompositor) {
	t.Helper()
	fakes := make(chan *fakeCompositor, 4)
	c := &Copier{
		timeout: 2 * time.Second,
		dial: func() (*Conn, error) {
			conn, fake := newFakeCompositor(t, seatGlobal, ExtManager)
			fakes <- fake
			return conn, nil
		},
	}
	t.Cleanup(func() { c.Close() })
	return c, fakes
}

// request asks the source for mimeType the way a pasting client would.
func request(t *testing.T, fake *fakeCompositor, source uint32, mimeType string) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	fake.event(source, sourceEventSend, new(encoder).string(mimeType).fd(int(w.Fd())))
	w.Close()

	done := make(chan []byte, 1)
	go func() {
		b, _ := io.ReadAll(r)
		done <- b
	}()
	return string(recv(t, done))
}

func TestCopierServesSelection(t *testing.T) {
	c, fakes := testCopier(t)

	require.NoError(t, c.Copy(context.Background(), []byte("pasted"), "text/plain"))
	fake := recv(t, fakes)
	source := recv(t, fake.selections)

	assert.Equal(t, OfferedMimes("text/plain"), fake.sourceMimes(source))
	assert.Equal(t, "pasted", request(t, fake, source, "text/plain"))
	assert.Equal(t, "pasted", request(t, fake, source, "UTF8_STRING"))
}

func TestCopierReplacesPreviousSource(t *testing.T) {
	c, fakes := testCopier(t)

	require.NoError(t, c.Copy(context.Background(), []byte("one"), "text/plain"))
	first := recv(t, fakes)
	recv(t, first.selections)

	require.NoError(t, c.Copy(context.Background(), []byte("two"), "text/plain"))
	second := recv(t, fakes)
	source := recv(t, second.selections)
	assert.Equal(t, "two", request(t, second, source, "text/plain"))
}

func TestCopierStopsWhenCancelled(t *testing.T) {
	c, fakes := testCopier(t)

	require.NoError(t, c.Copy(context.Background(), []byte("x"), "image/png"))
	fake := recv(t, fakes)
	source := recv(t, fake.selections)
	assert.Equal(t, []string{"image/png"}, fake.sourceMimes(source))

	c.mu.Lock()
	s := c.cur
	c.mu.Unlock()

	fake.event(source, sourceEventCancelled, nil)
	recv(t, s.done)
}

func TestCopierHonoursContext(t *testing.T) {
	c, _ := testCopier(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Copy(ctx, []byte("x"), "text/plain"), context.Canceled)
}
