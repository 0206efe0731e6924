package types

import (
	"encoding/json"
	"time"
)

// Legal servo timing.
const (
	MinServoTimeUs     = 800
	MaxServoTimeUs     = 2200
	MaxOverdrawSeconds = 5.0

	DefaultCustomTimeUs = 1500
)

// ServoConfig holds pulse widths (µs) for the resting and overdraw positions.
type ServoConfig struct {
	Left            int     `json:"posLeft"`
	Right           int     `json:"posRight"`
	OverdrawLeft    int     `json:"posLeftOverdraw"`
	OverdrawRight   int     `json:"posRightOverdraw"`
	OverdrawSeconds float64 `json:"overdrawTime"`
}

func DefaultServoConfig() ServoConfig {
	return ServoConfig{
		Left:            1300,
		Right:           1700,
		OverdrawLeft:    1250,
		OverdrawRight:   1750,
		OverdrawSeconds: 0.2,
	}
}

// UnmarshalJSON fills absent keys with defaults.
func (c *ServoConfig) UnmarshalJSON(b []byte) error {
	type raw ServoConfig
	r := raw(DefaultServoConfig())
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	*c = ServoConfig(r)
	return nil
}

func (c ServoConfig) OverdrawDuration() time.Duration {
	return time.Duration(c.OverdrawSeconds * float64(time.Second))
}

// Resting returns the settled pulse for d, or false for non Left/Right.
func (c ServoConfig) Resting(d Direction) (int, bool) {
	switch d {
	case DirLeft:
		return c.Left, true
	case DirRight:
		return c.Right, true
	}
	return 0, false
}

// Overdraw returns the overdraw pulse for d, or false for non Left/Right.
func (c ServoConfig) Overdraw(d Direction) (int, bool) {
	switch d {
	case DirLeft:
		return c.OverdrawLeft, true
	case DirRight:
		return c.OverdrawRight, true
	}
	return 0, false
}

func IsValidServoTime(us int) bool { return us >= MinServoTimeUs && us <= MaxServoTimeUs }

func IsValidOverdrawTime(s float64) bool { return s >= 0 && s <= MaxOverdrawSeconds }

// ---- Switch actions ----

// SwitchAction asks a channel to move to Direction.
// CustomTime is only used for DirCustom. Address marks a remote target.
type SwitchAction struct {
	Channel    ChannelID `json:"channel"`
	Direction  Direction `json:"direction"`
	Address    string    `json:"ip,omitempty"`
	CustomTime int       `json:"time"`
}

// UnmarshalJSON defaults an absent time to DefaultCustomTimeUs.
func (a *SwitchAction) UnmarshalJSON(b []byte) error {
	type raw SwitchAction
	r := raw{CustomTime: DefaultCustomTimeUs}
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	*a = SwitchAction(r)
	return nil
}

func (a SwitchAction) IsRemote() bool { return a.Address != "" }
