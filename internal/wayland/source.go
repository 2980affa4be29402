package wayland

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

var errCancelled = errors.New("wayland: data source cancelled")

// textAliases are offered alongside any text/* mime so clients asking for
// the legacy X11 names still get the payload.
var textAliases = []string{
	"text/plain;charset=utf-8",
	"text/plain",
	"UTF8_STRING",
	"TEXT",
	"STRING",
}

// OfferedMimes returns the mime types a copied payload of mimeType is
// advertised under.
func OfferedMimes(mimeType string) []string {
	mimes := []string{mimeType}
	if strings.HasPrefix(mimeType, "text/") {
		for _, a := range textAliases {
			if !slices.Contains(mimes, a) {
				mimes = append(mimes, a)
			}
		}
	}
	return mimes
}

// Copier places payloads on the compositor selection through a
// data-control source. Each Copy owns a fresh connection that serves the
// payload until another client takes the selection or the next Copy.
type Copier struct {
	timeout time.Duration
	dial    func() (*Conn, error)

	mu  sync.Mutex
	cur *sourceSession
}

// NewCopier returns a Copier dialing the compositor from the environment.
func NewCopier(roundtripTimeout time.Duration) *Copier {
	return &Copier{timeout: roundtripTimeout, dial: Dial}
}

// Copy sets data as the selection. It returns once the compositor has
// processed the selection request.
func (c *Copier) Copy(ctx context.Context, data []byte, mimeType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := c.dial()
	if err != nil {
		return err
	}
	s, err := newSourceSession(conn, c.timeout, data, OfferedMimes(mimeType))
	if err != nil {
		return err
	}

	c.mu.Lock()
	prev := c.cur
	c.cur = s
	c.mu.Unlock()
	if prev != nil {
		prev.stop()
	}

	go s.serve()
	return nil
}

// Close withdraws the current payload.
func (c *Copier) Close() error {
	c.mu.Lock()
	s := c.cur
	c.cur = nil
	c.mu.Unlock()
	if s != nil {
		s.stop()
		<-s.done
	}
	return nil
}

type sourceSession struct {
	d      *display
	data   []byte
	source uint32
	device uint32
	offers []uint32

	once sync.Once
	done chan struct{}
}

func newSourceSession(conn *Conn, timeout time.Duration, data []byte, mimes []string) (*sourceSession, error) {
	s := &sourceSession{
		d:    newDisplay(conn, timeout),
		data: data,
		done: make(chan struct{}),
	}
	b, err := bindDataControl(s.d)
	if err != nil {
		conn.Close()
		return nil, err
	}

	s.source = s.d.newObject(handlerFunc(s.sourceEvent))
	if err := s.d.request(b.manager, managerCreateDataSource, new(encoder).uint(s.source)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create data source: %w", err)
	}
	for _, m := range mimes {
		if err := s.d.request(s.source, sourceOffer, new(encoder).string(m)); err != nil {
			conn.Close()
			return nil, fmt.Errorf("offer %s: %w", m, err)
		}
	}

	s.device, err = b.getDevice(s.d, handlerFunc(s.deviceEvent))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("get data device: %w", err)
	}
	if err := s.d.request(s.device, deviceSetSelection, new(encoder).uint(s.source)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set selection: %w", err)
	}
	if err := s.d.roundtrip(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set selection: %w", err)
	}
	return s, nil
}

// serve answers send requests until the source is cancelled or stopped.
func (s *sourceSession) serve() {
	defer close(s.done)
	defer s.d.Close()
	for {
		if err := s.d.dispatch(); err != nil {
			if !errors.Is(err, errCancelled) {
				slog.Debug("clipboard source closed", "err", err)
			}
			return
		}
	}
}

func (s *sourceSession) stop() {
	s.once.Do(func() { s.d.conn.uc.Close() })
}

func (s *sourceSession) sourceEvent(opcode uint16, dec *decoder) error {
	switch opcode {
	case sourceEventSend:
		mimeType := dec.string()
		fd := dec.fd()
		if dec.err != nil {
			if fd >= 0 {
				unix.Close(fd)
			}
			return nil
		}
		go writePayload(fd, mimeType, s.data)
	case sourceEventCancelled:
		destroy(s.d, s.source, sourceDestroy, "source")
		destroy(s.d, s.device, deviceDestroy, "device")
		return errCancelled
	}
	return nil
}

// deviceEvent destroys the offers the compositor hands our own device.
func (s *sourceSession) deviceEvent(opcode uint16, dec *decoder) error {
	switch opcode {
	case deviceEventDataOffer:
		if id := dec.uint(); dec.err == nil {
			s.d.register(id, ignore)
			s.offers = append(s.offers, id)
		}
	case deviceEventSelection, deviceEventPrimarySelection:
		for _, id := range s.offers {
			destroyOffer(s.d, id)
		}
		s.offers = s.offers[:0]
	case deviceEventFinished:
		return errCancelled
	}
	return nil
}

func writePayload(fd int, mimeType string, data []byte) {
	f := os.NewFile(uintptr(fd), "wayland-send")
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		slog.Debug("clipboard send failed", "mime", mimeType, "err", err)
	}
}
