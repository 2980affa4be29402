package wayland

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

const (
	headerSize = 8
	// maxMessageSize matches libwayland's per-message limit.
	maxMessageSize = 4096
	// maxFDs is the most descriptors accepted in one ancillary block.
	maxFDs = 28

	readChunk = 4 * maxMessageSize
)

var (
	errShortMessage = errors.New("wayland: truncated message")
	errNoFD         = errors.New("wayland: message expects a file descriptor that was not received")
)

// message is one decoded request or event.
type message struct {
	sender uint32
	opcode uint16
	args   []byte
}

// Conn frames Wayland messages over a unix stream socket. File descriptors
// travel as SCM_RIGHTS ancillary data and are queued in arrival order;
// decoders pop them as fd arguments are read.
type Conn struct {
	uc   *net.UnixConn
	rbuf []byte
	fds  []int
	oob  []byte
}

// SocketPath resolves the compositor socket from $WAYLAND_DISPLAY, which is
// either absolute or relative to $XDG_RUNTIME_DIR (default "wayland-0").
func SocketPath() (string, error) {
	name := os.Getenv("WAYLAND_DISPLAY")
	if name == "" {
		name = "wayland-0"
	}
	if filepath.IsAbs(name) {
		return name, nil
	}
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		return "", errors.New("wayland: XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(dir, name), nil
}

// Dial connects to the compositor socket.
func Dial() (*Conn, error) {
	path, err := SocketPath()
	if err != nil {
		return nil, err
	}
	uc, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("wayland: connect %s: %w", path, err)
	}
	return NewConn(uc), nil
}

// NewConn wraps an established unix connection.
func NewConn(uc *net.UnixConn) *Conn {
	return &Conn{
		uc:  uc,
		oob: make([]byte, unix.CmsgSpace(maxFDs*4)),
	}
}

// Close closes the socket and any received descriptors nobody consumed.
func (c *Conn) Close() error {
	for _, fd := range c.fds {
		_ = unix.Close(fd)
	}
	c.fds = nil
	return c.uc.Close()
}

// SetReadDeadline bounds the next reads; zero clears the deadline.
func (c *Conn) SetReadDeadline(t time.Time) error { return c.uc.SetReadDeadline(t) }

// writeMessage sends one message. Descriptors in e are passed alongside and
// stay owned by the caller.
func (c *Conn) writeMessage(id uint32, opcode uint16, e *encoder) error {
	size := headerSize + len(e.buf)
	if size > maxMessageSize {
		return fmt.Errorf("wayland: message too large (%d bytes)", size)
	}
	b := make([]byte, headerSize, size)
	binary.NativeEndian.PutUint32(b[0:4], id)
	binary.NativeEndian.PutUint32(b[4:8], uint32(size)<<16|uint32(opcode))
	b = append(b, e.buf...)

	var oob []byte
	if len(e.fds) > 0 {
		oob = unix.UnixRights(e.fds...)
	}
	n, oobn, err := c.uc.WriteMsgUnix(b, oob, nil)
	if err != nil {
		return fmt.Errorf("wayland: write: %w", err)
	}
	if n != len(b) || oobn != len(oob) {
		return fmt.Errorf("wayland: short write (%d/%d bytes)", n, len(b))
	}
	return nil
}

// readMessage returns the next complete message, reading from the socket
// as needed.
func (c *Conn) readMessage() (message, error) {
	for {
		if len(c.rbuf) >= headerSize {
			word := binary.NativeEndian.Uint32(c.rbuf[4:8])
			size := int(word >> 16)
			if size < headerSize {
				return message{}, fmt.Errorf("wayland: invalid message size %d", size)
			}
			if len(c.rbuf) >= size {
				m := message{
					sender: binary.NativeEndian.Uint32(c.rbuf[0:4]),
					opcode: uint16(word & 0xffff),
					args:   append([]byte(nil), c.rbuf[headerSize:size]...),
				}
				c.rbuf = c.rbuf[size:]
				return m, nil
			}
		}
		if err := c.fill(); err != nil {
			return message{}, err
		}
	}
}

func (c *Conn) fill() error {
	buf := make([]byte, readChunk)
	n, oobn, _, _, err := c.uc.ReadMsgUnix(buf, c.oob)
	if oobn > 0 {
		c.queueRights(c.oob[:oobn])
	}
	if n > 0 {
		c.rbuf = append(c.rbuf, buf[:n]...)
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("wayland: connection closed by compositor")
	}
	return nil
}

func (c *Conn) queueRights(oob []byte) {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return
	}
	for i := range msgs {
		fds, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			continue
		}
		for _, fd := range fds {
			unix.CloseOnExec(fd)
		}
		c.fds = append(c.fds, fds...)
	}
}

func (c *Conn) popFD() (int, error) {
	if len(c.fds) == 0 {
		return -1, errNoFD
	}
	fd := c.fds[0]
	c.fds = c.fds[1:]
	return fd, nil
}

// encoder builds the argument block of a message.
type encoder struct {
	buf []byte
	fds []int
}

func (e *encoder) uint(v uint32) *encoder {
	e.buf = binary.NativeEndian.AppendUint32(e.buf, v)
	return e
}

func (e *encoder) int(v int32) *encoder { return e.uint(uint32(v)) }

// fixed encodes a signed 24.8 fixed-point number.
func (e *encoder) fixed(v float64) *encoder { return e.int(int32(math.Round(v * 256))) }

// string encodes s with its NUL terminator, padded to 32 bits.
func (e *encoder) string(s string) *encoder {
	e.uint(uint32(len(s) + 1))
	e.buf = append(e.buf, s...)
	e.buf = append(e.buf, 0)
	e.pad()
	return e
}

func (e *encoder) array(b []byte) *encoder {
	e.uint(uint32(len(b)))
	e.buf = append(e.buf, b...)
	e.pad()
	return e
}

func (e *encoder) fd(fd int) *encoder {
	e.fds = append(e.fds, fd)
	return e
}

func (e *encoder) pad() {
	for len(e.buf)%4 != 0 {
		e.buf = append(e.buf, 0)
	}
}

// decoder reads arguments from a message. The first failure sticks; check
// err once after reading all arguments.
type decoder struct {
	b   []byte
	c   *Conn
	err error
}

func (d *decoder) uint() uint32 {
	if d.err != nil {
		return 0
	}
	if len(d.b) < 4 {
		d.err = errShortMessage
		return 0
	}
	v := binary.NativeEndian.Uint32(d.b)
	d.b = d.b[4:]
	return v
}

func (d *decoder) int() int32 { return int32(d.uint()) }

func (d *decoder) fixed() float64 { return float64(d.int()) / 256 }

// string decodes a string argument; a null string decodes as "".
func (d *decoder) string() string {
	b := d.array()
	if len(b) == 0 {
		return ""
	}
	if b[len(b)-1] != 0 {
		if d.err == nil {
			d.err = errors.New("wayland: string is not NUL terminated")
		}
		return ""
	}
	return string(b[:len(b)-1])
}

func (d *decoder) array() []byte {
	n := int(d.uint())
	if d.err != nil {
		return nil
	}
	padded := (n + 3) &^ 3
	if padded < n || len(d.b) < padded {
		d.err = errShortMessage
		return nil
	}
	v := d.b[:n]
	d.b = d.b[padded:]
	return v
}

func (d *decoder) fd() int {
	if d.err != nil {
		return -1
	}
	fd, err := d.c.popFD()
	if err != nil {
		d.err = err
	}
	return fd
}
