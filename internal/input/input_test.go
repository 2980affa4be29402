package input

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events  []string
	keys    []int
	downErr error
	closed  bool
}

func (r *recorder) KeyDown(key int) error {
	r.events = append(r.events, "down")
	r.keys = append(r.keys, key)
	return r.downErr
}

func (r *recorder) KeyUp(key int) error {
	r.events = append(r.events, "up")
	r.keys = append(r.keys, key)
	return nil
}

func (r *recorder) Close() error {
	r.closed = true
	return nil
}

func TestPasteSendsPressAndRelease(t *testing.T) {
	r := &recorder{}
	k := &Keyboard{dev: r}

	require.NoError(t, k.Paste())
	assert.Equal(t, []string{"down", "up"}, r.events)
	assert.Equal(t, []int{135, 135}, r.keys)

	require.NoError(t, k.Close())
	assert.True(t, r.closed)
}

func TestPasteReleasesAfterFailedPress(t *testing.T) {
	r := &recorder{downErr: errors.New("write: bad fd")}
	k := &Keyboard{dev: r}

	err := k.Paste()
	assert.ErrorContains(t, err, "press paste key")
	assert.Equal(t, []string{"down", "up"}, r.events)
}

var _ Injector = (*Keyboard)(nil)
