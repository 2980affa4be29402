package history

import (
	"bytes"
	"strings"
)

// Kind distinguishes the two payload shapes a clipboard item can carry.
type Kind uint8

const (
	KindText Kind = iota + 1
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

// Payload is the content of a history item. Text is set for KindText,
// Bytes for KindImage.
type Payload struct {
	Kind  Kind
	Text  string
	Bytes []byte
	Mime  string
}

// TextPayload builds a text payload.
func TextPayload(text, mime string) Payload {
	return Payload{Kind: KindText, Text: text, Mime: mime}
}

// ImagePayload builds an image payload.
func ImagePayload(data []byte, mime string) Payload {
	return Payload{Kind: KindImage, Bytes: data, Mime: mime}
}

// Equal reports content equality: texts compare by string, images by bytes.
// The mime type is not part of the content.
func (p Payload) Equal(o Payload) bool {
	if p.Kind != o.Kind {
		return false
	}
	switch p.Kind {
	case KindText:
		return p.Text == o.Text
	case KindImage:
		return bytes.Equal(p.Bytes, o.Bytes)
	}
	return false
}

// Size returns the payload length in bytes.
func (p Payload) Size() int {
	if p.Kind == KindImage {
		return len(p.Bytes)
	}
	return len(p.Text)
}

// Item is a committed clipboard entry. Items are immutable once committed.
type Item struct {
	ID      string
	Payload Payload
}

// IsText reports whether the item carries text.
func (it Item) IsText() bool { return it.Payload.Kind == KindText }

// Handle identifies an entry of the newest-first view handed to a picker.
// Index is the display index; ID is the item it was issued for.
type Handle struct {
	Index int
	ID    string
}

// Entry is one presentable row of the picker view.
type Entry struct {
	Handle Handle
	Text   string
}

// Label returns a single-line rendition of the entry text: runs of
// whitespace (including newlines) collapse to one space.
func (e Entry) Label() string {
	return strings.Join(strings.Fields(e.Text), " ")
}
