package wayland

import (
	"fmt"
	"log/slog"
)

// Data-control manager globals, in order of preference. Both protocols
// share the request and event layout used here.
const (
	ExtManager  = "ext_data_control_manager_v1"
	WlrManager  = "zwlr_data_control_manager_v1"
	seatGlobal  = "wl_seat"
	seatVersion = 1
)

// data-control opcodes
const (
	managerCreateDataSource uint16 = 0
	managerGetDataDevice    uint16 = 1
	managerDestroy          uint16 = 2

	deviceSetSelection uint16 = 0
	deviceDestroy      uint16 = 1

	deviceEventDataOffer        uint16 = 0
	deviceEventSelection        uint16 = 1
	deviceEventFinished         uint16 = 2
	deviceEventPrimarySelection uint16 = 3

	offerReceive uint16 = 0
	offerDestroy uint16 = 1

	offerEventOffer uint16 = 0

	sourceOffer   uint16 = 0
	sourceDestroy uint16 = 1

	sourceEventSend      uint16 = 0
	sourceEventCancelled uint16 = 1
)

// binding is the seat and manager resolved from the registry.
type binding struct {
	seat      uint32
	seatReady bool
	manager   uint32
	iface     string
}

// bindDataControl discovers and binds the seat and data-control manager.
// Two round-trips: the first delivers the globals (and sends the binds),
// the second delivers the seat's initial events so the seat is live before
// a device is requested for it.
func bindDataControl(d *display) (*binding, error) {
	b := &binding{}
	var wlrName uint32
	d.onGlobal = func(name uint32, g global) {
		switch g.iface {
		case seatGlobal:
			if b.seat != 0 {
				return
			}
			id, err := d.bind(name, seatGlobal, seatVersion, handlerFunc(func(uint16, *decoder) error {
				b.seatReady = true
				return nil
			}))
			if err == nil {
				b.seat = id
			}
		case ExtManager:
			if b.iface == ExtManager {
				return
			}
			if id, err := d.bind(name, ExtManager, 1, ignore); err == nil {
				if b.manager != 0 {
					// A zwlr manager was bound first; prefer ext.
					destroy(d, b.manager, managerDestroy, "manager")
				}
				b.manager, b.iface = id, ExtManager
			}
		case WlrManager:
			wlrName = name
			if b.manager != 0 {
				return
			}
			if id, err := d.bind(name, WlrManager, 1, ignore); err == nil {
				b.manager, b.iface = id, WlrManager
			}
		}
	}
	defer func() { d.onGlobal = nil }()

	if err := d.getRegistry(); err != nil {
		return nil, err
	}
	if err := d.roundtrip(); err != nil {
		return nil, fmt.Errorf("registry round-trip: %w", err)
	}
	if err := d.roundtrip(); err != nil {
		return nil, fmt.Errorf("seat round-trip: %w", err)
	}

	if b.seat == 0 || !b.seatReady {
		return nil, fmt.Errorf("%w: no seat", ErrUnsupported)
	}
	if b.manager == 0 {
		return nil, fmt.Errorf("%w: neither %s nor %s advertised", ErrUnsupported, ExtManager, WlrManager)
	}
	slog.Debug("data-control bound", "manager", b.iface, "wlr_available", wlrName != 0)
	return b, nil
}

// getDevice requests the data-control device for the bound seat.
func (b *binding) getDevice(d *display, h handler) (uint32, error) {
	id := d.newObject(h)
	if err := d.request(b.manager, managerGetDataDevice, new(encoder).uint(id).uint(b.seat)); err != nil {
		return 0, err
	}
	return id, nil
}

func destroyOffer(d *display, id uint32) { destroy(d, id, offerDestroy, "offer") }

// destroy sends a destructor request and forgets the object. A failed write
// is only logged; the connection error surfaces on the next read.
func destroy(d *display, id uint32, opcode uint16, kind string) {
	if err := d.request(id, opcode, nil); err != nil {
		slog.Debug(kind+" destroy failed", "object", id, "err", err)
	}
	d.destroyed(id)
}
