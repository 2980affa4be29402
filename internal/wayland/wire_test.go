package wayland

import (
	"encoding/binary"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoderDecoderRoundTrip(t *testing.T) {
	e := new(encoder).
		uint(42).
		int(-7).
		fixed(-1.5).
		string("").
		string("abc").
		string("abcd").
		array([]byte{1, 2, 3, 4, 5}).
		uint(0xdeadbeef)
	require.Zero(t, len(e.buf)%4, "arguments stay 32-bit aligned")

	d := &decoder{b: e.buf}
	assert.Equal(t, uint32(42), d.uint())
	assert.Equal(t, int32(-7), d.int())
	assert.InDelta(t, -1.5, d.fixed(), 1.0/256)
	assert.Equal(t, "", d.string())
	assert.Equal(t, "abc", d.string())
	assert.Equal(t, "abcd", d.string())
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, d.array())
	assert.Equal(t, uint32(0xdeadbeef), d.uint())
	assert.NoError(t, d.err)
	assert.Empty(t, d.b)
}

func TestStringEncoding(t *testing.T) {
	e := new(encoder).string("abc")
	want := binary.NativeEndian.AppendUint32(nil, 4)
	want = append(want, 'a', 'b', 'c', 0)
	assert.Equal(t, want, e.buf)

	e = new(encoder).string("abcd")
	assert.Len(t, e.buf, 4+8)
}

func TestDecoderErrorsStick(t *testing.T) {
	d := &decoder{b: []byte{1, 0}}
	assert.Zero(t, d.uint())
	assert.ErrorIs(t, d.err, errShortMessage)
	assert.Equal(t, "", d.string())
	assert.ErrorIs(t, d.err, errShortMessage)

	// Declared length runs past the message.
	d = &decoder{b: binary.NativeEndian.AppendUint32(nil, 64)}
	assert.Nil(t, d.array())
	assert.ErrorIs(t, d.err, errShortMessage)

	// Missing NUL terminator.
	d = &decoder{b: new(encoder).array([]byte("abcd")).buf}
	assert.Equal(t, "", d.string())
	assert.Error(t, d.err)
}

func TestConnFramesMessages(t *testing.T) {
	a, b := socketPair(t)

	require.NoError(t, a.writeMessage(3, 1, new(encoder).string("first")))
	require.NoError(t, a.writeMessage(9, 0, new(encoder)))
	require.NoError(t, a.writeMessage(serverIDStart, 7, new(encoder).uint(5)))

	m, err := b.readMessage()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), m.sender)
	assert.Equal(t, uint16(1), m.opcode)
	assert.Equal(t, "first", (&decoder{b: m.args}).string())

	m, err = b.readMessage()
	require.NoError(t, err)
	assert.Equal(t, uint32(9), m.sender)
	assert.Empty(t, m.args)

	m, err = b.readMessage()
	require.NoError(t, err)
	assert.Equal(t, serverIDStart, m.sender)
	assert.Equal(t, uint16(7), m.opcode)
}

func TestConnPassesFileDescriptors(t *testing.T) {
	a, b := socketPair(t)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, a.writeMessage(4, 0, new(encoder).string("text/plain").fd(int(w.Fd()))))
	w.Close()

	m, err := b.readMessage()
	require.NoError(t, err)
	d := &decoder{b: m.args, c: b}
	assert.Equal(t, "text/plain", d.string())
	fd := d.fd()
	require.NoError(t, d.err)

	peer := os.NewFile(uintptr(fd), "peer")
	_, err = peer.Write([]byte("through the socket"))
	require.NoError(t, err)
	require.NoError(t, peer.Close())

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "through the socket", string(got))
}

func TestConnMissingFD(t *testing.T) {
	a, b := socketPair(t)
	require.NoError(t, a.writeMessage(4, 0, new(encoder).uint(1)))

	m, err := b.readMessage()
	require.NoError(t, err)
	d := &decoder{b: m.args, c: b}
	d.uint()
	assert.Equal(t, -1, d.fd())
	assert.ErrorIs(t, d.err, errNoFD)
}

func TestConnRejectsOversizedMessage(t *testing.T) {
	a, _ := socketPair(t)
	err := a.writeMessage(2, 0, new(encoder).array(make([]byte, maxMessageSize)))
	assert.Error(t, err)
}

func TestSocketPath(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")

	t.Setenv("WAYLAND_DISPLAY", "")
	p, err := SocketPath()
	require.NoError(t, err)
	assert.Equal(t, "/run/user/1000/wayland-0", p)

	t.Setenv("WAYLAND_DISPLAY", "wayland-1")
	p, err = SocketPath()
	require.NoError(t, err)
	assert.Equal(t, "/run/user/1000/wayland-1", p)

	t.Setenv("WAYLAND_DISPLAY", "/tmp/custom.sock")
	p, err = SocketPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.sock", p)

	t.Setenv("WAYLAND_DISPLAY", "wayland-1")
	t.Setenv("XDG_RUNTIME_DIR", "")
	_, err = SocketPath()
	assert.Error(t, err)
}
