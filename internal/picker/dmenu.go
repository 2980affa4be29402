package picker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"go.klb.dev/wayclip/internal/history"
)

// runFunc runs argv with stdin and returns stdout and the exit code. A
// process that could not be started is an error.
type runFunc func(ctx context.Context, argv []string, stdin []byte) (stdout []byte, code int, err error)

// Dmenu runs a dmenu-style command: entries on stdin, one per line, the
// chosen line on stdout.
type Dmenu struct {
	argv  []string
	width int
	run   runFunc
}

// NewDmenu parses opts.Command and appends the look options the command is
// known to accept.
func NewDmenu(opts Options) (*Dmenu, error) {
	argv, err := shlex.Split(opts.Command)
	if err != nil {
		return nil, fmt.Errorf("parse menu command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("menu command is empty")
	}
	return &Dmenu{
		argv:  append(argv, lookArgs(argv[0], opts)...),
		width: opts.LabelWidth,
		run:   runCommand,
	}, nil
}

func (d *Dmenu) Name() string { return filepath.Base(d.argv[0]) }

// Args returns the full command line.
func (d *Dmenu) Args() []string { return d.argv }

func lookArgs(bin string, o Options) []string {
	var args []string
	add := func(a ...string) { args = append(args, a...) }
	lines := strconv.Itoa(o.Lines)

	switch filepath.Base(bin) {
	case "bemenu":
		if o.IgnoreCase {
			add("-i")
		}
		if o.Lines > 0 {
			add("-l", lines)
		}
		if o.Title != "" {
			add("-p", o.Title)
		}
		if o.Font != "" {
			add("--fn", o.Font)
		}
		if o.Monitor >= 0 {
			add("-m", strconv.Itoa(o.Monitor))
		}
	case "dmenu":
		if o.IgnoreCase {
			add("-i")
		}
		if o.Lines > 0 {
			add("-l", lines)
		}
		if o.Title != "" {
			add("-p", o.Title)
		}
		if o.Font != "" {
			add("-fn", o.Font)
		}
		if o.Monitor >= 0 {
			add("-m", strconv.Itoa(o.Monitor))
		}
	case "rofi":
		add("-dmenu")
		if o.IgnoreCase {
			add("-i")
		}
		if o.Lines > 0 {
			add("-l", lines)
		}
		if o.Title != "" {
			add("-p", o.Title)
		}
	case "wofi":
		add("--dmenu")
		if o.IgnoreCase {
			add("--insensitive")
		}
		if o.Lines > 0 {
			add("--lines", lines)
		}
		if o.Title != "" {
			add("--prompt", o.Title)
		}
	case "fuzzel":
		add("--dmenu")
		if o.Lines > 0 {
			add("--lines", lines)
		}
		if o.Title != "" {
			add("--prompt", o.Title)
		}
	}
	return args
}

// Show pipes the entries to the command, one "index<TAB>label" line each.
// The chosen line is mapped back by its index, so entries whose labels
// collide stay distinct. Exit status 1 with no output is a cancel, as is a
// line that names no entry.
func (d *Dmenu) Show(ctx context.Context, entries []history.Entry) (Result, error) {
	if len(entries) == 0 {
		return Result{Outcome: Cancelled}, nil
	}

	var in bytes.Buffer
	for i, e := range entries {
		fmt.Fprintf(&in, "%d\t%s\n", i, Label(e, d.width))
	}

	out, code, err := d.run(ctx, d.argv, in.Bytes())
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", d.Name(), err)
	}
	choice := strings.TrimRight(string(out), "\r\n")
	switch {
	case code == 1 && choice == "":
		return Result{Outcome: Cancelled}, nil
	case code != 0:
		return Result{}, fmt.Errorf("%s exited with status %d", d.Name(), code)
	case choice == "":
		return Result{Outcome: Cancelled}, nil
	}

	i, ok := lineIndex(choice, len(entries))
	if !ok {
		slog.Debug("menu returned a line that matches no entry", "menu", d.Name())
		return Result{Outcome: Cancelled}, nil
	}
	return selected(entries[i]), nil
}

// lineIndex parses the index prefix of a menu line. Labels never contain a
// tab, so the first one ends the index.
func lineIndex(line string, n int) (int, bool) {
	idx, _, ok := strings.Cut(line, "\t")
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(idx)
	if err != nil || i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

func runCommand(ctx context.Context, argv []string, stdin []byte) ([]byte, int, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, 0, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if s := strings.TrimSpace(stderr.String()); s != "" {
			slog.Debug("menu stderr", "menu", argv[0], "stderr", s)
		}
		return stdout.Bytes(), exitErr.ExitCode(), nil
	}
	if err != nil {
		return nil, 0, err
	}
	return stdout.Bytes(), 0, nil
}
