// Package daemon runs the clipboard watcher, the control socket, the picker
// slot and the injection worker as one process.
//
// Toggle requests arrive on the gRPC goroutines. At most one picker is open
// at a time; a toggle that finds the slot taken is rejected. The picker
// goroutine hands a selection to the injection worker over a channel, and
// the worker is the only caller of Store.Promote.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"go.klb.dev/wayclip/internal/clip"
	"go.klb.dev/wayclip/internal/history"
	"go.klb.dev/wayclip/internal/input"
	"go.klb.dev/wayclip/internal/ipc"
	"go.klb.dev/wayclip/internal/picker"
)

// ReasonBusy is the toggle rejection reason while a picker is open.
const ReasonBusy = "picker already open"

// Watcher mirrors the compositor selection into the store until ctx ends.
type Watcher interface {
	Run(ctx context.Context) error
	Manager() string
}

// Options wires the daemon's collaborators. All fields are required.
type Options struct {
	Store    *history.Store
	Watcher  Watcher
	Listener net.Listener
	Picker   picker.Picker
	Writer   clip.Writer
	Injector input.Injector
	// Mime is the type pasted entries are offered as.
	Mime string
	// MaxPayload bounds history items and sizes control messages; 0 is
	// unbounded.
	MaxPayload int64
	Version    string
}

// Daemon implements ipc.Handler.
type Daemon struct {
	opts       Options
	startedAt  time.Time
	worker     *Worker
	selections chan Selection
	pickers    sync.WaitGroup

	mu   sync.Mutex
	ctx  context.Context // set while Run is active
	busy bool
}

var _ ipc.Handler = (*Daemon)(nil)

// New returns a daemon that is not yet running.
func New(opts Options) *Daemon {
	return &Daemon{
		opts:       opts,
		startedAt:  time.Now(),
		worker:     NewWorker(opts.Writer, opts.Injector, opts.Store, opts.Mime),
		selections: make(chan Selection, 1),
	}
}

// Run serves until ctx is cancelled or the watcher or the control server
// fails. A cancelled context is a clean shutdown and returns nil.
func (d *Daemon) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	d.mu.Lock()
	d.ctx = gctx
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.ctx = nil
		d.mu.Unlock()
	}()

	slog.Info("wayclip running",
		"version", d.opts.Version,
		"manager", d.opts.Watcher.Manager(),
		"picker", d.opts.Picker.Name(),
		"writer", d.opts.Writer.Name(),
		"items", d.opts.Store.Len(),
	)

	g.Go(func() error {
		err := d.opts.Watcher.Run(gctx)
		if err == nil && gctx.Err() == nil {
			err = errors.New("stopped unexpectedly")
		}
		if err != nil {
			return fmt.Errorf("clipboard watcher: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := ipc.Serve(gctx, d.opts.Listener, d, d.opts.MaxPayload); err != nil {
			return fmt.Errorf("control socket: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		d.worker.Run(gctx, d.selections)
		return nil
	})

	err := g.Wait()
	d.pickers.Wait()
	if err == nil {
		slog.Info("wayclip stopped")
	}
	return err
}

// Toggle opens the picker unless one is already open. It returns before
// the user has chosen.
func (d *Daemon) Toggle(_ context.Context, req *ipc.ToggleRequest) (*ipc.ToggleResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.ctx == nil || d.ctx.Err() != nil:
		return &ipc.ToggleResponse{Reason: "daemon is shutting down"}, nil
	case d.busy:
		slog.Info("toggle rejected", "pid", req.PID, "reason", ReasonBusy)
		return &ipc.ToggleResponse{Reason: ReasonBusy}, nil
	}

	d.busy = true
	d.pickers.Add(1)
	go d.pick(d.ctx, req.PID)
	return &ipc.ToggleResponse{Accepted: true}, nil
}

// pick runs one picker session in the slot and hands a selection to the
// worker. History is only read here.
func (d *Daemon) pick(ctx context.Context, pid int) {
	defer d.pickers.Done()
	defer func() {
		d.mu.Lock()
		d.busy = false
		d.mu.Unlock()
	}()

	entries := d.opts.Store.Entries()
	slog.Debug("picker opened", "pid", pid, "entries", len(entries), "picker", d.opts.Picker.Name())

	res, err := d.opts.Picker.Show(ctx, entries)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("picker failed", "picker", d.opts.Picker.Name(), "err", err)
		}
		return
	}
	if res.Outcome != picker.Selected {
		slog.Debug("picker cancelled")
		return
	}

	select {
	case d.selections <- Selection{Text: res.Text, Handle: res.Handle}:
	case <-ctx.Done():
	}
}

func (d *Daemon) List(context.Context, *ipc.ListRequest) (*ipc.ListResponse, error) {
	return &ipc.ListResponse{Items: d.opts.Store.Snapshot()}, nil
}

func (d *Daemon) Clear(context.Context, *ipc.ClearRequest) (*ipc.ClearResponse, error) {
	d.opts.Store.Clear()
	slog.Info("history cleared")
	return &ipc.ClearResponse{}, nil
}

func (d *Daemon) Status(context.Context, *ipc.StatusRequest) (*ipc.StatusResponse, error) {
	d.mu.Lock()
	busy := d.busy
	d.mu.Unlock()
	return &ipc.StatusResponse{
		PID:        os.Getpid(),
		Version:    d.opts.Version,
		Items:      d.opts.Store.Len(),
		StartedAt:  d.startedAt,
		Manager:    d.opts.Watcher.Manager(),
		PickerOpen: busy,
	}, nil
}
