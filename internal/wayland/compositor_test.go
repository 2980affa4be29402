package wayland

import (
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// socketPair returns the two ends of a connected unix stream socket.
func socketPair(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)

	wrap := func(fd int) *Conn {
		f := os.NewFile(uintptr(fd), "socketpair")
		defer f.Close()
		c, err := net.FileConn(f)
		require.NoError(t, err)
		return NewConn(c.(*net.UnixConn))
	}
	a, b := wrap(fds[0]), wrap(fds[1])
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

// fakeCompositor speaks the server side of the handful of interfaces the
// client uses. Every request is handled on its serve goroutine.
type fakeCompositor struct {
	c *Conn

	mu       sync.Mutex
	globals  []string
	mute     bool
	kinds    map[uint32]string
	payloads map[uint32]map[string][]byte
	next     uint32
	sources  map[uint32][]string

	devices    chan uint32
	received   chan string
	destroyed  chan uint32
	selections chan uint32
}

func newFakeCompositor(t *testing.T, globals ...string) (*Conn, *fakeCompositor) {
	t.Helper()
	client, server := socketPair(t)
	f := &fakeCompositor{
		c:          server,
		globals:    globals,
		kinds:      map[uint32]string{displayID: "wl_display"},
		payloads:   map[uint32]map[string][]byte{},
		next:       serverIDStart,
		sources:    map[uint32][]string{},
		devices:    make(chan uint32, 16),
		received:   make(chan string, 16),
		destroyed:  make(chan uint32, 16),
		selections: make(chan uint32, 16),
	}
	go f.serve()
	return client, f
}

func (f *fakeCompositor) serve() {
	for {
		m, err := f.c.readMessage()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.handle(m)
		f.mu.Unlock()
	}
}

func (f *fakeCompositor) sendLocked(id uint32, opcode uint16, e *encoder) {
	if e == nil {
		e = &encoder{}
	}
	_ = f.c.writeMessage(id, opcode, e)
}

func (f *fakeCompositor) handle(m message) {
	d := &decoder{b: m.args, c: f.c}
	switch kind := f.kinds[m.sender]; {
	case kind == "wl_display" && m.opcode == displaySync:
		cb := d.uint()
		if f.mute {
			return
		}
		f.sendLocked(cb, callbackEventDone, new(encoder).uint(1))
		f.sendLocked(displayID, displayEventDelete, new(encoder).uint(cb))

	case kind == "wl_display" && m.opcode == displayGetRegistry:
		reg := d.uint()
		f.kinds[reg] = "wl_registry"
		for i, g := range f.globals {
			f.sendLocked(reg, registryEventGlobal, new(encoder).uint(uint32(i+1)).string(g).uint(1))
		}

	case kind == "wl_registry" && m.opcode == registryBind:
		_ = d.uint()
		iface := d.string()
		_ = d.uint()
		id := d.uint()
		f.kinds[id] = iface
		if iface == seatGlobal {
			f.sendLocked(id, 0, new(encoder).uint(3))
		}

	case (kind == ExtManager || kind == WlrManager) && m.opcode == managerCreateDataSource:
		f.kinds[d.uint()] = "source"

	case (kind == ExtManager || kind == WlrManager) && m.opcode == managerGetDataDevice:
		id := d.uint()
		f.kinds[id] = "device"
		f.devices <- id

	case kind == "device" && m.opcode == deviceSetSelection:
		f.selections <- d.uint()

	case kind == "source" && m.opcode == sourceOffer:
		f.sources[m.sender] = append(f.sources[m.sender], d.string())

	case kind == "offer" && m.opcode == offerReceive:
		mimeType := d.string()
		fd := d.fd()
		if d.err != nil {
			return
		}
		w := os.NewFile(uintptr(fd), "receive")
		_, _ = w.Write(f.payloads[m.sender][mimeType])
		w.Close()
		f.received <- mimeType

	case kind == "offer" && m.opcode == offerDestroy:
		delete(f.kinds, m.sender)
		f.destroyed <- m.sender
	}
}

// announce sends a data_offer with its mime types but no selection.
func (f *fakeCompositor) announce(device uint32, mimes []string, data map[string][]byte) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.kinds[id] = "offer"
	f.payloads[id] = data
	f.sendLocked(device, deviceEventDataOffer, new(encoder).uint(id))
	for _, m := range mimes {
		f.sendLocked(id, offerEventOffer, new(encoder).string(m))
	}
	return id
}

func (f *fakeCompositor) selectOffer(device, id uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendLocked(device, deviceEventSelection, new(encoder).uint(id))
}

// offer announces an offer and makes it the selection.
func (f *fakeCompositor) offer(device uint32, mimes []string, data map[string][]byte) uint32 {
	id := f.announce(device, mimes, data)
	f.selectOffer(device, id)
	return id
}

func (f *fakeCompositor) event(id uint32, opcode uint16, e *encoder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendLocked(id, opcode, e)
}

func (f *fakeCompositor) setMute(mute bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mute = mute
}

func (f *fakeCompositor) sourceMimes(id uint32) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sources[id]...)
}

func recv[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the compositor")
	}
	var zero T
	return zero
}
