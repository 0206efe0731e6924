package control

import (
	"log/slog"
	"time"

	"switchcontrol/services/hal"
	"switchcontrol/types"
	"switchcontrol/x/timex"
)

// Servo PWM timing: 50 Hz period encoded at 15-bit resolution.
const (
	ServoFreqHz   = 50
	ServoDutyBits = 15
	servoPeriodUs = 1_000_000 / ServoFreqHz
)

// Duty converts a pulse width in µs to a 15-bit duty value.
func Duty(us int) uint32 {
	return uint32((1 << ServoDutyBits) * us / servoPeriodUs)
}

// servoChannel owns one actuator. All methods run under Controller.mu.
type servoChannel struct {
	id      types.ChannelID
	cfg     types.ServoConfig
	pin     hal.Pin
	clock   timex.Clock
	log     *slog.Logger
	metrics *Metrics

	pos        int
	dir        types.Direction
	pending    *types.SwitchAction
	overdraw   bool
	overdrawAt time.Time
}

func newServoChannel(id types.ChannelID, cfg types.ServoConfig, pin hal.Pin, clock timex.Clock, log *slog.Logger, m *Metrics) (*servoChannel, error) {
	s := &servoChannel{
		id:      id,
		cfg:     cfg,
		pin:     pin,
		clock:   clock,
		log:     log.With("channel", id),
		metrics: m,
		dir:     types.DirUnknown,
	}
	if err := pin.Reset(); err != nil {
		return nil, err
	}
	if err := pin.ConfigurePWM(ServoFreqHz, ServoDutyBits); err != nil {
		return nil, err
	}
	s.setServo(cfg.Left)
	s.metrics.setOverdrawing(id, false)
	return s, nil
}

func (s *servoChannel) setServo(us int) {
	duty := Duty(us)
	if err := s.pin.SetDuty(duty); err != nil {
		s.log.Warn("set servo duty failed", "us", us, "duty", duty, "err", err)
	} else {
		s.log.Debug("set servo", "us", us, "duty", duty)
	}
	s.pos = us
	s.metrics.setPulse(s.id, us)
}

// setPending replaces any unexecuted action.
func (s *servoChannel) setPending(a types.SwitchAction) { s.pending = &a }

func (s *servoChannel) removePending() { s.pending = nil }

// executePending commands the pending action and always clears it.
// It reports whether the servo was moved.
func (s *servoChannel) executePending() bool {
	if s.pending == nil {
		return false
	}
	a := *s.pending
	s.pending = nil

	switch a.Direction {
	case types.DirLeft, types.DirRight:
		us, _ := s.cfg.Overdraw(a.Direction)
		s.setServo(us)
		s.overdrawAt = s.clock.Now()
		s.dir = a.Direction
		s.setOverdraw(true)
		return true
	case types.DirCustom:
		s.setServo(a.CustomTime)
		s.dir = types.DirCustom
		s.setOverdraw(false)
		return true
	default:
		s.log.Debug("ignoring action without position", "direction", a.Direction)
		return false
	}
}

// checkOverdraw settles to the resting pulse once the overdraw time has
// elapsed. It reports whether the servo settled on this call.
func (s *servoChannel) checkOverdraw() bool {
	if !s.overdraw {
		return false
	}
	rest, ok := s.cfg.Resting(s.dir)
	if !ok {
		return false
	}
	if s.clock.Now().Sub(s.overdrawAt) < s.cfg.OverdrawDuration() {
		return false
	}
	s.setServo(rest)
	s.setOverdraw(false)
	return true
}

func (s *servoChannel) setOverdraw(v bool) {
	s.overdraw = v
	s.metrics.setOverdrawing(s.id, v)
}

func (s *servoChannel) status() types.ServoStatus {
	st := types.ServoStatus{
		Channel:     s.id,
		Time:        s.pos,
		Position:    s.dir,
		Overdrawing: s.overdraw,
	}
	if s.pending != nil {
		st.NextPosition = s.pending.Direction
	}
	return st
}
