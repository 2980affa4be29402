package ipc

import (
	"fmt"
	"time"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"

	"go.klb.dev/wayclip/internal/history"
	"go.klb.dev/wayclip/internal/vault"
)

// codecName is the gRPC content-subtype the control service is carried in.
const codecName = "protowire"

func init() {
	encoding.RegisterCodec(wireCodec{})
}

// The control messages are protobuf wire format, equivalent to:
//
//	message ToggleRequest  { int64 pid = 1; }
//	message ToggleResponse { bool accepted = 1; string reason = 2; }
//	message ListItem       { Item item = 1; }  // Item as in the history file
//	message StatusResponse {
//	  int64 pid = 1; string version = 2; int64 items = 3;
//	  int64 started_sec = 4; int32 started_nsec = 5;
//	  string manager = 6; bool picker_open = 7;
//	}
//
// ListRequest, ClearRequest, ClearResponse and StatusRequest are empty.
type wireMessage interface {
	appendWire(b []byte) []byte
	parseWire(b []byte) error
}

type wireCodec struct{}

func (wireCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("ipc: cannot marshal %T", v)
	}
	return m.appendWire(nil), nil
}

func (wireCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("ipc: cannot unmarshal into %T", v)
	}
	return m.parseWire(data)
}

func (wireCodec) Name() string { return codecName }

func appendVarint(b []byte, num protowire.Number, x uint64) []byte {
	if x == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, x)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// scan calls fn for every varint and length-delimited field in b. x holds
// a varint's value, v a length-delimited payload. Other wire types are
// skipped.
func scan(b []byte, fn func(num protowire.Number, x uint64, v []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			if err := fn(num, x, nil); err != nil {
				return err
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			if err := fn(num, 0, v); err != nil {
				return err
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func (m *ToggleRequest) appendWire(b []byte) []byte {
	return appendVarint(b, 1, uint64(int64(m.PID)))
}

func (m *ToggleRequest) parseWire(b []byte) error {
	return scan(b, func(num protowire.Number, x uint64, _ []byte) error {
		if num == 1 {
			m.PID = int(int64(x))
		}
		return nil
	})
}

func (m *ToggleResponse) appendWire(b []byte) []byte {
	b = appendVarint(b, 1, protowire.EncodeBool(m.Accepted))
	return appendString(b, 2, m.Reason)
}

func (m *ToggleResponse) parseWire(b []byte) error {
	return scan(b, func(num protowire.Number, x uint64, v []byte) error {
		switch num {
		case 1:
			m.Accepted = protowire.DecodeBool(x)
		case 2:
			m.Reason = string(v)
		}
		return nil
	})
}

// listItem is one message of the List stream.
type listItem struct {
	Item history.Item
}

func (m *listItem) appendWire(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	return protowire.AppendBytes(b, vault.MarshalItem(m.Item))
}

func (m *listItem) parseWire(b []byte) error {
	var set bool
	err := scan(b, func(num protowire.Number, _ uint64, v []byte) error {
		if num != 1 {
			return nil
		}
		it, err := vault.UnmarshalItem(v)
		if err != nil {
			return err
		}
		m.Item, set = it, true
		return nil
	})
	if err == nil && !set {
		err = fmt.Errorf("ipc: list message without item")
	}
	return err
}

func (m *StatusResponse) appendWire(b []byte) []byte {
	b = appendVarint(b, 1, uint64(int64(m.PID)))
	b = appendString(b, 2, m.Version)
	b = appendVarint(b, 3, uint64(int64(m.Items)))
	if !m.StartedAt.IsZero() {
		b = appendVarint(b, 4, uint64(m.StartedAt.Unix()))
		b = appendVarint(b, 5, uint64(m.StartedAt.Nanosecond()))
	}
	b = appendString(b, 6, m.Manager)
	return appendVarint(b, 7, protowire.EncodeBool(m.PickerOpen))
}

func (m *StatusResponse) parseWire(b []byte) error {
	var (
		sec, nsec int64
		started   bool
	)
	err := scan(b, func(num protowire.Number, x uint64, v []byte) error {
		switch num {
		case 1:
			m.PID = int(int64(x))
		case 2:
			m.Version = string(v)
		case 3:
			m.Items = int(int64(x))
		case 4:
			sec, started = int64(x), true
		case 5:
			nsec, started = int64(x), true
		case 6:
			m.Manager = string(v)
		case 7:
			m.PickerOpen = protowire.DecodeBool(x)
		}
		return nil
	})
	if started {
		m.StartedAt = time.Unix(sec, nsec).UTC()
	}
	return err
}

func (*ListRequest) appendWire(b []byte) []byte   { return b }
func (*ListRequest) parseWire([]byte) error       { return nil }
func (*ClearRequest) appendWire(b []byte) []byte  { return b }
func (*ClearRequest) parseWire([]byte) error      { return nil }
func (*ClearResponse) appendWire(b []byte) []byte { return b }
func (*ClearResponse) parseWire([]byte) error     { return nil }
func (*StatusRequest) appendWire(b []byte) []byte { return b }
func (*StatusRequest) parseWire([]byte) error     { return nil }
