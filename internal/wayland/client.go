// Package wayland is a minimal Wayland client for the data-control protocol
// family: a Watcher that mirrors the compositor selection into history and
// a Copier that places payloads back on it.
package wayland

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"go.klb.dev/wayclip/internal/history"
)

// Committer receives classified clipboard items. *history.Store
// implements it.
type Committer interface {
	Commit(item history.Item) bool
}

// Options configures a Watcher.
type Options struct {
	// PreferredMime is requested for every offer that is not taken as an
	// image.
	PreferredMime string
	// AllowImages requests image/* representations when offered.
	AllowImages bool
	// RoundtripTimeout bounds every round-trip; 0 waits forever.
	RoundtripTimeout time.Duration
	// TransferTimeout bounds draining one payload; 0 waits forever.
	TransferTimeout time.Duration
	// MaxPayload drops payloads larger than this many bytes; 0 is unbounded.
	MaxPayload int64
}

// State is the watcher's protocol state.
type State int

const (
	StateConnecting State = iota
	StateBound
	StateIdle
	StateOfferAnnounced
	StateSelecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateBound:
		return "bound"
	case StateIdle:
		return "idle"
	case StateOfferAnnounced:
		return "offer-announced"
	case StateSelecting:
		return "selecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// LiveOffer is the offer currently being announced. It exists from the
// data_offer event until the selection is committed, abandoned or
// superseded.
type LiveOffer struct {
	OfferID uint32
	// Mimes are the advertised mime types, first-seen order, no repeats.
	Mimes []string
	// Offer is the object receive is sent to. It is bound on the first
	// mime announcement and zero until then.
	Offer     uint32
	StartedAt time.Time
}

func (l *LiveOffer) announce(offer uint32, mimeType string) {
	if !slices.Contains(l.Mimes, mimeType) {
		l.Mimes = append(l.Mimes, mimeType)
	}
	if l.Offer == 0 {
		l.Offer = offer
	}
}

// Watcher mirrors the compositor's clipboard selection into a Committer.
// Everything after Connect runs on the goroutine calling Run.
type Watcher struct {
	opts Options
	sink Committer
	d    *display
	b    *binding

	device uint32
	state  State
	live   *LiveOffer
	offers map[uint32]struct{}
	newID  func() string

	// A selection event arriving while a payload is in flight (its
	// round-trip dispatches events) is held here and handled afterwards.
	selecting  bool
	pending    uint32
	hasPending bool
}

// Connect dials the compositor named by the environment and binds a
// data-control device.
func Connect(opts Options, sink Committer) (*Watcher, error) {
	conn, err := Dial()
	if err != nil {
		return nil, err
	}
	return NewWatcher(conn, opts, sink)
}

// NewWatcher binds a data-control device over an established connection.
// The connection is closed on failure.
func NewWatcher(conn *Conn, opts Options, sink Committer) (*Watcher, error) {
	w := &Watcher{
		opts:   opts,
		sink:   sink,
		d:      newDisplay(conn, opts.RoundtripTimeout),
		offers: make(map[uint32]struct{}),
		newID:  uuid.NewString,
	}
	w.setState(StateConnecting)

	b, err := bindDataControl(w.d)
	if err != nil {
		conn.Close()
		return nil, err
	}
	w.b = b

	dev, err := b.getDevice(w.d, handlerFunc(w.deviceEvent))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("get data device: %w", err)
	}
	w.device = dev
	w.setState(StateBound)
	w.setState(StateIdle)
	return w, nil
}

// Manager returns the bound data-control manager interface.
func (w *Watcher) Manager() string { return w.b.iface }

// Run dispatches compositor events until ctx is done or the connection
// fails. A cancelled ctx returns nil. The connection is closed on return.
func (w *Watcher) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { w.d.conn.uc.Close() })
	defer stop()
	defer w.d.Close()

	for {
		if err := w.d.dispatch(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Close releases the connection of a watcher that is not running.
func (w *Watcher) Close() error { return w.d.Close() }

func (w *Watcher) setState(s State) {
	if w.state == s && s != StateConnecting {
		return
	}
	w.state = s
	slog.Debug("protocol state", "state", s)
}

func (w *Watcher) deviceEvent(opcode uint16, dec *decoder) error {
	switch opcode {
	case deviceEventDataOffer:
		id := dec.uint()
		if dec.err == nil {
			w.newOffer(id)
		}
	case deviceEventSelection:
		id := dec.uint()
		if dec.err != nil {
			return nil
		}
		if w.selecting {
			w.pending, w.hasPending = id, true
			return nil
		}
		return w.selections(id)
	case deviceEventPrimarySelection:
		if id := dec.uint(); dec.err == nil && id != 0 {
			w.discard(id)
		}
	case deviceEventFinished:
		return errors.New("wayland: data-control device finished")
	}
	return nil
}

// newOffer starts a LiveOffer, superseding an unfinished one.
func (w *Watcher) newOffer(id uint32) {
	if prev := w.live; prev != nil {
		slog.Debug("unfinished offer superseded", "offer", prev.OfferID)
		w.discard(prev.OfferID)
	}
	w.d.register(id, w.offerHandler(id))
	w.offers[id] = struct{}{}
	w.live = &LiveOffer{OfferID: id, StartedAt: time.Now()}
	w.setState(StateOfferAnnounced)
}

func (w *Watcher) offerHandler(id uint32) handler {
	return handlerFunc(func(opcode uint16, dec *decoder) error {
		if opcode != offerEventOffer {
			return nil
		}
		mimeType := dec.string()
		if dec.err != nil {
			return nil
		}
		if w.live == nil || w.live.OfferID != id {
			slog.Debug("mime type for stale offer ignored", "offer", id, "mime", mimeType)
			return nil
		}
		w.live.announce(id, mimeType)
		return nil
	})
}

// discard destroys an offer object we no longer need.
func (w *Watcher) discard(id uint32) {
	if w.live != nil && w.live.OfferID == id {
		w.live = nil
		w.setState(StateIdle)
	}
	if _, ok := w.offers[id]; !ok {
		return
	}
	delete(w.offers, id)
	destroyOffer(w.d, id)
}

func (w *Watcher) selections(id uint32) error {
	w.selecting = true
	defer func() { w.selecting = false }()
	for {
		if err := w.selection(id); err != nil {
			return err
		}
		if !w.hasPending {
			return nil
		}
		id, w.pending, w.hasPending = w.pending, 0, false
	}
}

// selection retrieves and commits the live offer. Only round-trip and
// socket failures are returned; anything wrong with the payload drops it.
func (w *Watcher) selection(id uint32) error {
	if id == 0 {
		slog.Debug("selection cleared")
		return nil
	}
	live := w.live
	if live == nil || live.OfferID != id {
		slog.Debug("selection for unknown offer ignored", "offer", id)
		return nil
	}
	// The offer leaves the live slot now so a newer announcement arriving
	// mid-transfer starts its own LiveOffer instead of superseding this one.
	w.live = nil
	w.setState(StateSelecting)
	defer func() {
		w.discard(id)
		if w.live != nil {
			w.setState(StateOfferAnnounced)
		} else {
			w.setState(StateIdle)
		}
	}()

	if live.Offer == 0 {
		slog.Debug("offer announced no mime types", "offer", id)
		return nil
	}

	mimeType, isImage := Negotiate(live.Mimes, w.opts.PreferredMime, w.opts.AllowImages)
	data, err := w.receive(live.Offer, mimeType)
	if err != nil {
		var te *transferError
		if errors.As(err, &te) {
			slog.Debug("offer dropped", "offer", id, "mime", mimeType, "err", err)
			return nil
		}
		return err
	}

	payload, ok := Classify(data, mimeType, isImage)
	if !ok {
		slog.Debug("payload dropped", "offer", id, "mime", mimeType, "bytes", len(data))
		return nil
	}
	item := history.Item{ID: w.newID(), Payload: payload}
	changed := w.sink.Commit(item)
	slog.Debug("clipboard item received",
		"kind", payload.Kind,
		"mime", mimeType,
		"bytes", payload.Size(),
		"changed", changed,
		"took", time.Since(live.StartedAt),
	)
	return nil
}
