package vault

import (
	"errors"
	"fmt"
	"slices"

	"google.golang.org/protobuf/encoding/protowire"

	"go.klb.dev/wayclip/internal/history"
)

// The history blob is protobuf wire format, equivalent to:
//
//	message History { repeated Item items = 1; }
//	message Item {
//	  string id = 1;
//	  oneof payload { Text text = 2; Image image = 3; }
//	}
//	message Text  { string text = 1; string mime = 2; }
//	message Image { bytes data = 1;  string mime = 2; }
const (
	fieldHistoryItems protowire.Number = 1

	fieldItemID    protowire.Number = 1
	fieldItemText  protowire.Number = 2
	fieldItemImage protowire.Number = 3

	fieldPayloadData protowire.Number = 1
	fieldPayloadMime protowire.Number = 2
)

var errNoPayload = errors.New("item has no payload")

// Marshal serialises items.
func Marshal(items []history.Item) []byte {
	var b []byte
	for _, it := range items {
		b = protowire.AppendTag(b, fieldHistoryItems, protowire.BytesType)
		b = protowire.AppendBytes(b, MarshalItem(it))
	}
	return b
}

// MarshalItem serialises a single Item message.
func MarshalItem(it history.Item) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldItemID, protowire.BytesType)
	b = protowire.AppendString(b, it.ID)

	var p []byte
	field := fieldItemText
	switch it.Payload.Kind {
	case history.KindImage:
		field = fieldItemImage
		p = protowire.AppendTag(p, fieldPayloadData, protowire.BytesType)
		p = protowire.AppendBytes(p, it.Payload.Bytes)
	default:
		p = protowire.AppendTag(p, fieldPayloadData, protowire.BytesType)
		p = protowire.AppendString(p, it.Payload.Text)
	}
	p = protowire.AppendTag(p, fieldPayloadMime, protowire.BytesType)
	p = protowire.AppendString(p, it.Payload.Mime)

	b = protowire.AppendTag(b, field, protowire.BytesType)
	return protowire.AppendBytes(b, p)
}

// Unmarshal parses a blob produced by Marshal. Unknown fields are skipped.
func Unmarshal(b []byte) ([]history.Item, error) {
	items := []history.Item{}
	err := walk(b, func(num protowire.Number, v []byte) error {
		if num != fieldHistoryItems {
			return nil
		}
		it, err := UnmarshalItem(v)
		if err != nil {
			return fmt.Errorf("item %d: %w", len(items), err)
		}
		items = append(items, it)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// UnmarshalItem parses a single Item message.
func UnmarshalItem(b []byte) (history.Item, error) {
	var (
		it  history.Item
		set bool
	)
	err := walk(b, func(num protowire.Number, v []byte) error {
		switch num {
		case fieldItemID:
			it.ID = string(v)
		case fieldItemText, fieldItemImage:
			data, mime, err := unmarshalPayload(v)
			if err != nil {
				return err
			}
			if num == fieldItemImage {
				it.Payload = history.ImagePayload(data, mime)
			} else {
				it.Payload = history.TextPayload(string(data), mime)
			}
			set = true
		}
		return nil
	})
	if err != nil {
		return history.Item{}, err
	}
	if !set {
		return history.Item{}, errNoPayload
	}
	return it, nil
}

func unmarshalPayload(b []byte) (data []byte, mime string, err error) {
	err = walk(b, func(num protowire.Number, v []byte) error {
		switch num {
		case fieldPayloadData:
			data = slices.Clone(v)
		case fieldPayloadMime:
			mime = string(v)
		}
		return nil
	})
	if data == nil {
		data = []byte{}
	}
	return data, mime, err
}

// walk calls fn for every length-delimited field in b and skips the rest.
func walk(b []byte, fn func(num protowire.Number, v []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if err := fn(num, v); err != nil {
			return err
		}
	}
	return nil
}
