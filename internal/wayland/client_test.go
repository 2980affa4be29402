package wayland

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/wayclip/internal/history"
)

type chanSink chan history.Item

func (c chanSink) Commit(it history.Item) bool {
	c <- it
	return true
}

func testOptions() Options {
	return Options{
		PreferredMime:    "text/plain",
		RoundtripTimeout: 2 * time.Second,
		TransferTimeout:  2 * time.Second,
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

// startWatcher binds a watcher to a fake compositor and runs it until the
// test ends.
func startWatcher(t *testing.T, opts Options, globals ...string) (*Watcher, *fakeCompositor, uint32, chanSink) {
	t.Helper()
	conn, fake := newFakeCompositor(t, globals...)
	sink := make(chanSink, 16)
	w, err := NewWatcher(conn, opts, sink)
	require.NoError(t, err)
	device := recv(t, fake.devices)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, recv(t, errc))
	})
	return w, fake, device, sink
}

func TestWatcherCommitsPreferredText(t *testing.T) {
	w, fake, device, sink := startWatcher(t, testOptions(), seatGlobal, ExtManager)
	assert.Equal(t, ExtManager, w.Manager())

	fake.offer(device, []string{"text/plain", "image/png"}, map[string][]byte{
		"text/plain": []byte("hello"),
		"image/png":  pngBytes(t),
	})

	it := recv(t, sink)
	assert.Equal(t, history.TextPayload("hello", "text/plain"), it.Payload)
	assert.NotEmpty(t, it.ID)
	assert.Equal(t, "text/plain", recv(t, fake.received))
}

func TestWatcherCommitsImageWhenAllowed(t *testing.T) {
	opts := testOptions()
	opts.AllowImages = true
	_, fake, device, sink := startWatcher(t, opts, seatGlobal, ExtManager)

	img := pngBytes(t)
	fake.offer(device, []string{"text/plain", "image/png"}, map[string][]byte{
		"text/plain": []byte("alt text"),
		"image/png":  img,
	})

	it := recv(t, sink)
	assert.Equal(t, history.ImagePayload(img, "image/png"), it.Payload)
	assert.Equal(t, "image/png", recv(t, fake.received))
}

func TestWatcherDropsUnusablePayloads(t *testing.T) {
	opts := testOptions()
	opts.AllowImages = true
	opts.MaxPayload = 16
	_, fake, device, sink := startWatcher(t, opts, seatGlobal, ExtManager)

	fake.offer(device, []string{"image/png"}, map[string][]byte{"image/png": []byte("not an image")})
	fake.offer(device, []string{"text/plain"}, map[string][]byte{"text/plain": []byte(" \n\t ")})
	fake.offer(device, []string{"text/plain"}, map[string][]byte{"text/plain": bytes.Repeat([]byte("x"), 17)})
	fake.offer(device, []string{"text/plain"}, map[string][]byte{"text/plain": []byte("kept")})

	it := recv(t, sink)
	assert.Equal(t, "kept", it.Payload.Text)
	select {
	case extra := <-sink:
		t.Fatalf("unexpected commit %+v", extra)
	default:
	}
}

func TestWatcherSupersedesUnfinishedOffer(t *testing.T) {
	_, fake, device, sink := startWatcher(t, testOptions(), seatGlobal, ExtManager)

	stale := fake.announce(device, []string{"text/plain"}, map[string][]byte{"text/plain": []byte("stale")})
	fake.offer(device, []string{"text/plain"}, map[string][]byte{"text/plain": []byte("fresh")})

	assert.Equal(t, stale, recv(t, fake.destroyed))
	assert.Equal(t, "fresh", recv(t, sink).Payload.Text)

	// A late selection for the superseded offer is ignored.
	fake.selectOffer(device, stale)
	fake.offer(device, []string{"text/plain"}, map[string][]byte{"text/plain": []byte("next")})
	assert.Equal(t, "next", recv(t, sink).Payload.Text)
}

func TestWatcherDestroysOffersAfterTransfer(t *testing.T) {
	_, fake, device, sink := startWatcher(t, testOptions(), seatGlobal, ExtManager)

	id := fake.offer(device, []string{"text/plain"}, map[string][]byte{"text/plain": []byte("a")})
	recv(t, sink)
	assert.Equal(t, id, recv(t, fake.destroyed))
}

func TestWatcherFallsBackToWlr(t *testing.T) {
	w, fake, device, sink := startWatcher(t, testOptions(), WlrManager, seatGlobal)
	assert.Equal(t, WlrManager, w.Manager())

	fake.offer(device, []string{"text/plain"}, map[string][]byte{"text/plain": []byte("wlr")})
	assert.Equal(t, "wlr", recv(t, sink).Payload.Text)
}

func TestWatcherPrefersExtManager(t *testing.T) {
	w, _, _, _ := startWatcher(t, testOptions(), WlrManager, seatGlobal, ExtManager)
	assert.Equal(t, ExtManager, w.Manager())
}

func TestWatcherUnsupported(t *testing.T) {
	for name, globals := range map[string][]string{
		"no manager": {seatGlobal},
		"no seat":    {ExtManager},
	} {
		t.Run(name, func(t *testing.T) {
			conn, _ := newFakeCompositor(t, globals...)
			_, err := NewWatcher(conn, testOptions(), make(chanSink, 1))
			assert.ErrorIs(t, err, ErrUnsupported)
		})
	}
}

func TestWatcherUnresponsiveCompositor(t *testing.T) {
	conn, fake := newFakeCompositor(t, seatGlobal, ExtManager)
	fake.setMute(true)

	opts := testOptions()
	opts.RoundtripTimeout = 50 * time.Millisecond
	_, err := NewWatcher(conn, opts, make(chanSink, 1))
	assert.ErrorIs(t, err, ErrUnresponsive)
}

func TestWatcherStopsOnProtocolError(t *testing.T) {
	conn, fake := newFakeCompositor(t, seatGlobal, ExtManager)
	w, err := NewWatcher(conn, testOptions(), make(chanSink, 1))
	require.NoError(t, err)
	device := recv(t, fake.devices)

	fake.event(displayID, displayEventError, new(encoder).uint(device).uint(2).string("bad request"))
	err = w.Run(context.Background())

	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, device, perr.Object)
	assert.Equal(t, uint32(2), perr.Code)
	assert.Equal(t, "bad request", perr.Message)
}

func TestWatcherStopsWhenDeviceFinished(t *testing.T) {
	conn, fake := newFakeCompositor(t, seatGlobal, ExtManager)
	w, err := NewWatcher(conn, testOptions(), make(chanSink, 1))
	require.NoError(t, err)
	device := recv(t, fake.devices)

	fake.event(device, deviceEventFinished, nil)
	assert.Error(t, w.Run(context.Background()))
}

func TestLiveOfferKeepsFirstSeenOrder(t *testing.T) {
	l := &LiveOffer{OfferID: 7}
	for _, m := range []string{"text/plain", "image/png", "text/plain", "UTF8_STRING"} {
		l.announce(7, m)
	}
	assert.Equal(t, []string{"text/plain", "image/png", "UTF8_STRING"}, l.Mimes)
	assert.Equal(t, uint32(7), l.Offer)
}
