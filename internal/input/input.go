// Package input synthesizes the paste keystroke through a uinput virtual
// keyboard.
package input

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bendahl/uinput"
)

// DevicePath is the uinput control node.
const DevicePath = "/dev/uinput"

// DeviceName is the name the virtual keyboard registers under.
const DeviceName = "wayclip"

// keyPaste is KEY_PASTE from linux/input-event-codes.h. Applications map it
// to paste without a modifier, unlike Ctrl+V which terminals take literally.
const keyPaste = 135

// Injector synthesizes paste keystrokes.
type Injector interface {
	Paste() error
	Close() error
}

// keyboard is the subset of uinput.Keyboard the injector drives.
type keyboard interface {
	KeyDown(key int) error
	KeyUp(key int) error
	Close() error
}

// Keyboard is a uinput virtual keyboard.
type Keyboard struct {
	mu  sync.Mutex
	dev keyboard
}

// Open creates the virtual keyboard. The caller needs write access to
// /dev/uinput, usually through the input group or a udev rule.
func Open() (*Keyboard, error) {
	dev, err := uinput.CreateKeyboard(DevicePath, []byte(DeviceName))
	if err != nil {
		return nil, fmt.Errorf("create virtual keyboard on %s: %w", DevicePath, err)
	}
	slog.Debug("virtual keyboard created", "device", DevicePath, "name", DeviceName)
	return &Keyboard{dev: dev}, nil
}

// Paste sends a key-down/key-up pair of KEY_PASTE. The key is released even
// when the press reports an error.
func (k *Keyboard) Paste() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	downErr := k.dev.KeyDown(keyPaste)
	if err := k.dev.KeyUp(keyPaste); err != nil {
		return fmt.Errorf("release paste key: %w", err)
	}
	if downErr != nil {
		return fmt.Errorf("press paste key: %w", downErr)
	}
	return nil
}

// Close destroys the virtual device.
func (k *Keyboard) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.dev.Close()
}
