package control

import (
	"log/slog"

	"switchcontrol/services/hal"
	"switchcontrol/types"
	"switchcontrol/x/timex"
)

// MatchingState is a button's indicator state relative to its targets.
type MatchingState uint8

const (
	NoMatch MatchingState = iota
	Match
	Pending
)

func (m MatchingState) String() string {
	switch m {
	case Match:
		return "match"
	case Pending:
		return "pending"
	default:
		return "no_match"
	}
}

// Consecutive active ticks required for a press.
const requiredTicks = 3

// buttonChannel shares one line between button sensing and its indicator.
// All methods run under Controller.mu.
type buttonChannel struct {
	id     types.ChannelID
	cfg    types.ButtonConfig
	pin    hal.Pin
	clock  timex.Clock
	log    *slog.Logger
	pull   hal.Pull

	state   MatchingState
	pressed int
}

func newButtonChannel(id types.ChannelID, cfg types.ButtonConfig, pin hal.Pin, o *Options, log *slog.Logger) (*buttonChannel, error) {
	b := &buttonChannel{
		id:    id,
		cfg:   cfg,
		pin:   pin,
		clock: o.Clock,
		log:   log.With("channel", id),
		pull:  o.ButtonPull,
		state: Pending,
	}
	if err := pin.Reset(); err != nil {
		return nil, err
	}
	if err := pin.ConfigureOutput(b.outputLevel(false)); err != nil {
		return nil, err
	}
	return b, nil
}

// sense turns the shared line into an input. The caller lets the line
// settle before sample.
func (b *buttonChannel) sense() {
	if err := b.pin.ConfigureInput(b.pull); err != nil {
		b.log.Warn("button input config failed", "err", err)
	}
}

// sample reads the input, redraws the indicator and reports a press on
// the tick the active run reaches requiredTicks. Holding does not re-fire.
func (b *buttonChannel) sample() bool {
	if b.pin.Get() != b.cfg.InvertedInput {
		if b.pressed <= requiredTicks {
			b.pressed++
		}
	} else {
		b.pressed = 0
	}

	if err := b.pin.ConfigureOutput(b.outputLevel(b.indicatorOn())); err != nil {
		b.log.Warn("button output config failed", "err", err)
	}
	return b.pressed == requiredTicks
}

// indicatorOn blinks at 1 Hz while Pending.
func (b *buttonChannel) indicatorOn() bool {
	switch b.state {
	case Pending:
		return b.clock.Now().UnixMilli()%1000 > 500
	case Match:
		return true
	default:
		return false
	}
}

func (b *buttonChannel) outputLevel(on bool) bool { return on != b.cfg.InvertedOutput }

func (b *buttonChannel) actions() []types.SwitchAction { return b.cfg.ActionOnPress }

// updateMatchingState compares the configured targets against servos.
// Targets on channels without a live servo are ignored.
func (b *buttonChannel) updateMatchingState(servos map[types.ChannelID]*servoChannel) {
	if len(b.cfg.ActionOnPress) == 0 {
		b.state = NoMatch
		return
	}
	pending, mismatch := 0, 0
	for _, a := range b.cfg.ActionOnPress {
		s, ok := servos[a.Channel]
		if !ok {
			continue
		}
		switch {
		case s.pending != nil && s.pending.Direction == a.Direction:
			pending++
		case s.dir != types.DirUnknown && s.dir != a.Direction:
			mismatch++
		}
	}
	switch {
	case mismatch > 0:
		b.state = NoMatch
	case pending > 0:
		b.state = Pending
	default:
		b.state = Match
	}
}
