package x11

import (
	"testing"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/mstarongithub/twm/backend"
	"github.com/mstarongithub/twm/common/ipc"
	generaldata "github.com/mstarongithub/twm/general-data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Translation does not touch the X connection, so a bare backend is enough
func bare() *Backend {
	return &Backend{size: generaldata.Vector2i{X: 200, Y: 100}, win: 7, delete: 99}
}

func collect(b *Backend, ev any) ([]backend.InputEvent, bool) {
	var out []backend.InputEvent
	closed := b.translate(ev, func(e backend.InputEvent) { out = append(out, e) })
	return out, closed
}

func TestMotionIsNormalized(t *testing.T) {
	got, _ := collect(bare(), xproto.MotionNotifyEvent{EventX: 50, EventY: 75, Time: 3})
	require.Len(t, got, 1)
	assert.Equal(t, backend.PointerMotionAbsolute{X: 0.25, Y: 0.75, Time: 3}, got[0])

	got, _ = collect(bare(), xproto.MotionNotifyEvent{EventX: -5, EventY: 500})
	assert.Equal(t, backend.PointerMotionAbsolute{X: 0, Y: 1}, got[0])
}

func TestButtonsAndWheel(t *testing.T) {
	b := bare()
	got, _ := collect(b, xproto.ButtonPressEvent{Detail: 3})
	assert.Equal(t, []backend.InputEvent{backend.PointerButton{Button: btnRight, State: ipc.ButtonPressed}}, got)

	got, _ = collect(b, xproto.ButtonReleaseEvent{Detail: 1})
	assert.Equal(t, []backend.InputEvent{backend.PointerButton{Button: btnLeft, State: ipc.ButtonReleased}}, got)

	got, _ = collect(b, xproto.ButtonPressEvent{Detail: 5})
	require.Len(t, got, 1)
	axis := got[0].(backend.PointerAxis)
	assert.Equal(t, 1, axis.AmountDiscrete[ipc.AxisVertical])
	assert.Zero(t, axis.Amount[ipc.AxisVertical])

	got, _ = collect(b, xproto.ButtonReleaseEvent{Detail: 5})
	assert.Empty(t, got, "wheel releases carry nothing")
}

func TestDeleteWindowCloses(t *testing.T) {
	b := bare()
	msg := xproto.ClientMessageEvent{Format: 32, Data: xproto.ClientMessageDataUnion{Data32: []uint32{99, 0, 0, 0, 0}}}
	_, closed := collect(b, msg)
	assert.True(t, closed)

	other := xproto.ClientMessageEvent{Format: 32, Data: xproto.ClientMessageDataUnion{Data32: []uint32{5, 0, 0, 0, 0}}}
	_, closed = collect(b, other)
	assert.False(t, closed)

	_, closed = collect(b, xproto.DestroyNotifyEvent{Window: 7})
	assert.True(t, closed)
}
