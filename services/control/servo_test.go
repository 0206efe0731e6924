package control

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchcontrol/services/hal"
	"switchcontrol/types"
	"switchcontrol/x/logx"
	"switchcontrol/x/timex"
)

func TestDuty(t *testing.T) {
	assert.Equal(t, uint32(1310), Duty(800))
	assert.Equal(t, uint32(2457), Duty(1500))
	assert.Equal(t, uint32(3604), Duty(2200))

	prev := uint32(0)
	for us := types.MinServoTimeUs; us <= types.MaxServoTimeUs; us++ {
		d := Duty(us)
		require.Equal(t, uint32((1<<15)*us/20000), d, "us=%d", us)
		require.GreaterOrEqual(t, d, prev, "us=%d", us)
		prev = d
	}
}

func newTestServo(t *testing.T, cfg types.ServoConfig) (*servoChannel, *hal.FakePin, *timex.FakeClock) {
	t.Helper()
	board := hal.NewFakeBoard(0)
	pin, _ := board.Pin(25)
	clk := timex.NewFakeClock(time.Unix(1_700_000_000, 0))
	s, err := newServoChannel("A1", cfg, pin, clk, logx.Discard(), nil)
	require.NoError(t, err)
	return s, pin, clk
}

func TestServo_Init(t *testing.T) {
	s, pin, _ := newTestServo(t, types.DefaultServoConfig())

	period, bits := pin.PWMPeriod()
	assert.Equal(t, 20*time.Millisecond, period)
	assert.Equal(t, uint8(15), bits)
	assert.Equal(t, Duty(1300), pin.Duty())
	assert.Equal(t, 1, pin.Resets())

	st := s.status()
	assert.Equal(t, types.DirUnknown, st.Position)
	assert.Equal(t, 1300, st.Time)
	assert.False(t, st.Overdrawing)
	assert.Empty(t, st.NextPosition)
}

func TestServo_OverdrawCycle(t *testing.T) {
	cfg := types.DefaultServoConfig()
	s, pin, clk := newTestServo(t, cfg)

	s.setPending(types.SwitchAction{Channel: "A1", Direction: types.DirLeft})
	assert.Equal(t, types.DirLeft, s.status().NextPosition)
	require.True(t, s.executePending())

	assert.Nil(t, s.pending)
	assert.Equal(t, cfg.OverdrawLeft, s.pos)
	assert.Equal(t, Duty(cfg.OverdrawLeft), pin.Duty())
	assert.True(t, s.overdraw)

	clk.Advance(199 * time.Millisecond)
	assert.False(t, s.checkOverdraw(), "settled early")
	assert.Equal(t, cfg.OverdrawLeft, s.pos)

	clk.Advance(time.Millisecond)
	assert.True(t, s.checkOverdraw())
	assert.Equal(t, cfg.Left, s.pos)
	assert.Equal(t, Duty(cfg.Left), pin.Duty())
	assert.False(t, s.overdraw)
	assert.Equal(t, types.DirLeft, s.dir)

	clk.Advance(time.Second)
	assert.False(t, s.checkOverdraw(), "second settle")
}

func TestServo_RightAndZeroOverdraw(t *testing.T) {
	cfg := types.DefaultServoConfig()
	cfg.OverdrawSeconds = 0
	s, _, _ := newTestServo(t, cfg)

	s.setPending(types.SwitchAction{Channel: "A1", Direction: types.DirRight})
	require.True(t, s.executePending())
	assert.Equal(t, cfg.OverdrawRight, s.pos)
	assert.True(t, s.checkOverdraw())
	assert.Equal(t, cfg.Right, s.pos)
}

func TestServo_CustomBypassesOverdraw(t *testing.T) {
	s, pin, _ := newTestServo(t, types.DefaultServoConfig())

	s.setPending(types.SwitchAction{Channel: "A1", Direction: types.DirCustom, CustomTime: 1500})
	require.True(t, s.executePending())
	assert.Equal(t, types.DirCustom, s.dir)
	assert.Equal(t, 1500, s.pos)
	assert.Equal(t, Duty(1500), pin.Duty())
	assert.False(t, s.overdraw)
	assert.False(t, s.checkOverdraw())
}

func TestServo_ExecuteAlwaysClears(t *testing.T) {
	s, pin, _ := newTestServo(t, types.DefaultServoConfig())
	before := len(pin.Duties())

	assert.False(t, s.executePending(), "empty slot")

	for _, d := range []types.Direction{types.DirUnknown, types.DirInvalid} {
		s.setPending(types.SwitchAction{Channel: "A1", Direction: d})
		assert.False(t, s.executePending())
		assert.Nil(t, s.pending)
	}
	assert.Len(t, pin.Duties(), before, "no actuation for non-positions")
	assert.Equal(t, types.DirUnknown, s.dir)
}

func TestServo_LastPendingWins(t *testing.T) {
	s, _, _ := newTestServo(t, types.DefaultServoConfig())
	s.setPending(types.SwitchAction{Channel: "A1", Direction: types.DirLeft})
	s.setPending(types.SwitchAction{Channel: "A1", Direction: types.DirRight})
	assert.Equal(t, types.DirRight, s.status().NextPosition)
	s.removePending()
	assert.Empty(t, s.status().NextPosition)
}
