// Package picker presents the history to the user and reports the chosen
// entry. Backends:
//
//	dmenu  any dmenu-style command (bemenu, dmenu, rofi, wofi, fuzzel)
//	tui    an in-terminal list with a filter
package picker

import (
	"context"
	"fmt"

	"github.com/mattn/go-runewidth"

	"go.klb.dev/wayclip/internal/history"
)

// Outcome is how a picker session ended. Failures are returned as errors.
type Outcome int

const (
	Cancelled Outcome = iota
	Selected
)

func (o Outcome) String() string {
	if o == Selected {
		return "selected"
	}
	return "cancelled"
}

// Result is the outcome of one picker session. Text and Handle are set
// only when Outcome is Selected; Text is the full entry text, not its label.
type Result struct {
	Outcome Outcome
	Text    string
	Handle  history.Handle
}

// Picker shows entries (newest first) and waits for the user.
type Picker interface {
	Name() string
	Show(ctx context.Context, entries []history.Entry) (Result, error)
}

// Backend names accepted by New.
const (
	BackendDmenu = "dmenu"
	BackendTUI   = "tui"
)

// DefaultLabelWidth is the label width used when Options.LabelWidth is 0.
const DefaultLabelWidth = 200

// Options configures the picker look.
type Options struct {
	// Command is the dmenu-style command line for the dmenu backend.
	Command    string
	Title      string
	Font       string
	Lines      int
	Monitor    int
	IgnoreCase bool
	// LabelWidth truncates labels to this many terminal cells.
	LabelWidth int
}

// New returns the picker backend named kind.
func New(kind string, opts Options) (Picker, error) {
	switch kind {
	case "", BackendDmenu:
		return NewDmenu(opts)
	case BackendTUI:
		return NewTUI(opts)
	default:
		return nil, fmt.Errorf("unknown picker %q (want %s or %s)", kind, BackendDmenu, BackendTUI)
	}
}

// Label renders an entry on a single line no wider than width cells.
func Label(e history.Entry, width int) string {
	if width <= 0 {
		width = DefaultLabelWidth
	}
	return runewidth.Truncate(e.Label(), width, "…")
}

func selected(e history.Entry) Result {
	return Result{Outcome: Selected, Text: e.Text, Handle: e.Handle}
}
