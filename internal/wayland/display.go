package wayland

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"
)

// Core object ids and opcodes.
const (
	displayID uint32 = 1

	displaySync        uint16 = 0
	displayGetRegistry uint16 = 1
	displayEventError  uint16 = 0
	displayEventDelete uint16 = 1

	registryBind        uint16 = 0
	registryEventGlobal uint16 = 0
	registryEventRemove uint16 = 1

	callbackEventDone uint16 = 0

	// Ids at or above serverIDStart are allocated by the compositor.
	serverIDStart uint32 = 0xff000000
)

var (
	// ErrUnresponsive is returned when the compositor does not answer a
	// round-trip within the configured timeout.
	ErrUnresponsive = errors.New("wayland: compositor unresponsive")
	// ErrUnsupported is returned when the compositor lacks a seat or a
	// data-control manager.
	ErrUnsupported = errors.New("wayland: compositor does not support data-control")
)

// ProtocolError is a fatal error posted by the compositor.
type ProtocolError struct {
	Object  uint32
	Code    uint32
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("wayland: protocol error on object %d (code %d): %s", e.Object, e.Code, e.Message)
}

// handler receives the events of one protocol object.
type handler interface {
	event(opcode uint16, d *decoder) error
}

// handlerFunc adapts a function to handler.
type handlerFunc func(opcode uint16, d *decoder) error

func (f handlerFunc) event(opcode uint16, d *decoder) error { return f(opcode, d) }

// ignore swallows events of objects whose events we do not care about.
var ignore = handlerFunc(func(uint16, *decoder) error { return nil })

// global is a registry advertisement.
type global struct {
	iface   string
	version uint32
}

// display is a client connection: the object table, id allocation, the
// registry and round-trips. It is not safe for concurrent use except Close.
type display struct {
	conn    *Conn
	timeout time.Duration

	objects map[uint32]handler
	next    uint32
	free    []uint32

	registry uint32
	globals  map[uint32]global
	// onGlobal is called for every advertised global, in order.
	onGlobal func(name uint32, g global)
}

func newDisplay(conn *Conn, timeout time.Duration) *display {
	d := &display{
		conn:    conn,
		timeout: timeout,
		objects: make(map[uint32]handler),
		next:    displayID + 1,
		globals: make(map[uint32]global),
	}
	d.objects[displayID] = handlerFunc(d.displayEvent)
	return d
}

func (d *display) Close() error { return d.conn.Close() }

// newObject allocates a client-side id for h, reusing ids the compositor
// released with delete_id.
func (d *display) newObject(h handler) uint32 {
	var id uint32
	if n := len(d.free); n > 0 {
		id, d.free = d.free[n-1], d.free[:n-1]
	} else {
		id = d.next
		d.next++
	}
	d.objects[id] = h
	return id
}

// register installs h for a compositor-created object.
func (d *display) register(id uint32, h handler) { d.objects[id] = h }

// destroyed forgets an object after its destructor request. Client ids stay
// reserved until delete_id; events for them are dropped meanwhile.
func (d *display) destroyed(id uint32) {
	if id >= serverIDStart {
		delete(d.objects, id)
		return
	}
	d.objects[id] = ignore
}

func (d *display) request(id uint32, opcode uint16, e *encoder) error {
	if e == nil {
		e = &encoder{}
	}
	return d.conn.writeMessage(id, opcode, e)
}

// dispatch reads and handles one event.
func (d *display) dispatch() error {
	m, err := d.conn.readMessage()
	if err != nil {
		return err
	}
	h, ok := d.objects[m.sender]
	if !ok {
		slog.Debug("event for unknown object dropped", "object", m.sender, "opcode", m.opcode)
		return nil
	}
	dec := &decoder{b: m.args, c: d.conn}
	if err := h.event(m.opcode, dec); err != nil {
		return err
	}
	if dec.err != nil {
		slog.Warn("malformed event ignored", "object", m.sender, "opcode", m.opcode, "err", dec.err)
	}
	return nil
}

func (d *display) displayEvent(opcode uint16, dec *decoder) error {
	switch opcode {
	case displayEventError:
		e := &ProtocolError{Object: dec.uint(), Code: dec.uint(), Message: dec.string()}
		return e
	case displayEventDelete:
		id := dec.uint()
		if dec.err != nil {
			return nil
		}
		if _, ok := d.objects[id]; ok {
			delete(d.objects, id)
			d.free = append(d.free, id)
		}
	}
	return nil
}

// roundtrip blocks until the compositor processed every request sent so
// far. It fails with ErrUnresponsive after the configured timeout.
func (d *display) roundtrip() error {
	done := false
	cb := d.newObject(handlerFunc(func(opcode uint16, _ *decoder) error {
		if opcode == callbackEventDone {
			done = true
		}
		return nil
	}))
	if err := d.request(displayID, displaySync, new(encoder).uint(cb)); err != nil {
		return err
	}

	if d.timeout > 0 {
		if err := d.conn.SetReadDeadline(time.Now().Add(d.timeout)); err != nil {
			return err
		}
		defer d.conn.SetReadDeadline(time.Time{})
	}
	for !done {
		if err := d.dispatch(); err != nil {
			if isTimeout(err) {
				return ErrUnresponsive
			}
			return err
		}
	}
	// The callback is gone once done fired; its id comes back via delete_id.
	d.objects[cb] = ignore
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// getRegistry requests the registry; globals arrive on the next round-trip.
func (d *display) getRegistry() error {
	d.registry = d.newObject(handlerFunc(d.registryEvent))
	return d.request(displayID, displayGetRegistry, new(encoder).uint(d.registry))
}

func (d *display) registryEvent(opcode uint16, dec *decoder) error {
	switch opcode {
	case registryEventGlobal:
		name := dec.uint()
		g := global{iface: dec.string(), version: dec.uint()}
		if dec.err != nil {
			return nil
		}
		d.globals[name] = g
		if d.onGlobal != nil {
			d.onGlobal(name, g)
		}
	case registryEventRemove:
		delete(d.globals, dec.uint())
	}
	return nil
}

// bind binds global name at version and installs h for the new object.
func (d *display) bind(name uint32, iface string, version uint32, h handler) (uint32, error) {
	id := d.newObject(h)
	e := new(encoder).uint(name).string(iface).uint(version).uint(id)
	if err := d.request(d.registry, registryBind, e); err != nil {
		return 0, err
	}
	return id, nil
}
