package ipc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"go.klb.dev/wayclip/internal/history"
)

func TestWireCodecStatus(t *testing.T) {
	var c wireCodec
	in := &StatusResponse{
		PID:        4242,
		Version:    "v1.2.3",
		Items:      17,
		StartedAt:  time.Date(2024, 5, 6, 7, 8, 9, 123, time.UTC),
		Manager:    "ext_data_control_manager_v1",
		PickerOpen: true,
	}
	b, err := c.Marshal(in)
	require.NoError(t, err)

	out := new(StatusResponse)
	require.NoError(t, c.Unmarshal(b, out))
	assert.Equal(t, in, out)

	// A zero start time stays zero.
	b, err = c.Marshal(&StatusResponse{PID: 1})
	require.NoError(t, err)
	out = new(StatusResponse)
	require.NoError(t, c.Unmarshal(b, out))
	assert.True(t, out.StartedAt.IsZero())
}

func TestWireCodecListItem(t *testing.T) {
	var c wireCodec
	img := &listItem{Item: history.Item{ID: "a", Payload: history.ImagePayload([]byte{0, 1, 2, 0xff}, "image/png")}}
	b, err := c.Marshal(img)
	require.NoError(t, err)
	assert.Less(t, len(b), 32, "image bytes are carried raw")

	out := new(listItem)
	require.NoError(t, c.Unmarshal(b, out))
	assert.Equal(t, img.Item.ID, out.Item.ID)
	assert.True(t, img.Item.Payload.Equal(out.Item.Payload))

	assert.Error(t, c.Unmarshal(nil, new(listItem)), "a list message must carry an item")
}

func TestWireCodecSkipsUnknownFields(t *testing.T) {
	var c wireCodec
	b, err := c.Marshal(&ToggleResponse{Accepted: true, Reason: "ok"})
	require.NoError(t, err)
	b = protowire.AppendTag(b, 99, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 7)
	b = protowire.AppendTag(b, 98, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)

	out := new(ToggleResponse)
	require.NoError(t, c.Unmarshal(b, out))
	assert.Equal(t, &ToggleResponse{Accepted: true, Reason: "ok"}, out)
}

func TestWireCodecRejects(t *testing.T) {
	var c wireCodec
	_, err := c.Marshal(struct{}{})
	assert.Error(t, err)
	assert.Error(t, c.Unmarshal([]byte{0x0a, 0xff}, new(ToggleResponse)))

	in := &ToggleRequest{PID: -1}
	b, err := c.Marshal(in)
	require.NoError(t, err)
	out := new(ToggleRequest)
	require.NoError(t, c.Unmarshal(b, out))
	assert.Equal(t, in, out)
}
