package wayland

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder for sniffing
	_ "image/jpeg" // register decoder for sniffing
	_ "image/png"  // register decoder for sniffing
	"io"
	"mime"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	_ "golang.org/x/image/bmp"  // register decoder for sniffing
	_ "golang.org/x/image/tiff" // register decoder for sniffing
	_ "golang.org/x/image/webp" // register decoder for sniffing
	"golang.org/x/sys/unix"
	"golang.org/x/text/encoding/htmlindex"

	"go.klb.dev/wayclip/internal/history"
)

var errTooLarge = errors.New("payload exceeds max_payload")

// Negotiate picks the one mime to request from an offer: the first image/*
// candidate when images are retained, otherwise the preferred text mime.
func Negotiate(candidates []string, preferredText string, allowImages bool) (mimeType string, isImage bool) {
	if allowImages {
		for _, c := range candidates {
			if strings.HasPrefix(c, "image/") {
				return c, true
			}
		}
	}
	return preferredText, false
}

// Classify turns received bytes into a payload. Image bytes must carry a
// known image signature; text must decode to something that is not blank.
func Classify(data []byte, mimeType string, isImage bool) (history.Payload, bool) {
	if isImage {
		if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
			return history.Payload{}, false
		}
		return history.ImagePayload(data, mimeType), true
	}

	text, err := decodeText(data, mimeType)
	if err != nil || strings.TrimSpace(text) == "" {
		return history.Payload{}, false
	}
	return history.TextPayload(text, mimeType), true
}

// decodeText decodes data as UTF-8, or as the charset the mime names.
func decodeText(data []byte, mimeType string) (string, error) {
	if _, params, err := mime.ParseMediaType(mimeType); err == nil {
		if cs := params["charset"]; cs != "" && !strings.EqualFold(cs, "utf-8") && !strings.EqualFold(cs, "utf8") {
			enc, err := htmlindex.Get(cs)
			if err != nil {
				return "", fmt.Errorf("charset %q: %w", cs, err)
			}
			out, err := enc.NewDecoder().Bytes(data)
			if err != nil {
				return "", fmt.Errorf("decode %s: %w", cs, err)
			}
			data = out
		}
	}
	if !utf8.Valid(data) {
		return "", errors.New("payload is not valid UTF-8")
	}
	return string(data), nil
}

// receive asks the offer to write mime into a fresh pipe and drains it.
// The round-trip after the request guarantees the compositor forwarded it
// before we block on the pipe. Round-trip failures are returned unwrapped
// so the caller can tell them from transfer failures.
func (w *Watcher) receive(offer uint32, mimeType string) ([]byte, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return nil, &transferError{err: fmt.Errorf("pipe: %w", err)}
	}
	// Only our read end is non-blocking so the runtime poller can enforce
	// the read deadline.
	if err := unix.SetNonblock(p[0], true); err != nil {
		unix.Close(p[0])
		unix.Close(p[1])
		return nil, &transferError{err: fmt.Errorf("pipe: %w", err)}
	}
	r := os.NewFile(uintptr(p[0]), "wayland-offer")
	defer r.Close()

	err := w.d.request(offer, offerReceive, new(encoder).string(mimeType).fd(p[1]))
	unix.Close(p[1])
	if err != nil {
		return nil, err
	}
	if err := w.d.roundtrip(); err != nil {
		return nil, err
	}
	return drain(r, w.opts.TransferTimeout, w.opts.MaxPayload)
}

// drain reads r to EOF within timeout, failing if more than limit bytes
// arrive. Zero timeout or limit means no bound.
func drain(r *os.File, timeout time.Duration, limit int64) ([]byte, error) {
	if timeout > 0 {
		if err := r.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, &transferError{err: err}
		}
	}
	var src io.Reader = r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, &transferError{err: err}
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, &transferError{err: errTooLarge}
	}
	return data, nil
}

// transferError is a failure on the payload pipe. It drops the offer but
// never stops the watcher.
type transferError struct{ err error }

func (e *transferError) Error() string { return "transfer: " + e.err.Error() }
func (e *transferError) Unwrap() error { return e.err }
