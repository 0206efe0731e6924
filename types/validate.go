package types

import (
	"fmt"

	"switchcontrol/errcode"
)

func (c ServoConfig) Validate() error {
	const op = "servo.validate"
	for _, p := range []struct {
		name string
		us   int
	}{
		{"posLeft", c.Left},
		{"posRight", c.Right},
		{"posLeftOverdraw", c.OverdrawLeft},
		{"posRightOverdraw", c.OverdrawRight},
	} {
		if !IsValidServoTime(p.us) {
			return errcode.New(errcode.InvalidServoTime, op,
				fmt.Sprintf("%s=%d outside %d..%d us", p.name, p.us, MinServoTimeUs, MaxServoTimeUs))
		}
	}
	if !IsValidOverdrawTime(c.OverdrawSeconds) {
		return errcode.New(errcode.InvalidOverdrawTime, op,
			fmt.Sprintf("overdrawTime=%g outside 0..%g s", c.OverdrawSeconds, MaxOverdrawSeconds))
	}
	return nil
}

func (a SwitchAction) Validate() error {
	const op = "action.validate"
	if _, ok := LookupCapability(a.Channel); !ok {
		return errcode.New(errcode.UnknownChannel, op, fmt.Sprintf("unknown gpio entry %q", a.Channel))
	}
	if a.Direction == DirUnknown || !a.Direction.Valid() {
		return errcode.New(errcode.InvalidDirection, op, fmt.Sprintf("invalid direction for %s", a.Channel))
	}
	if a.Direction == DirCustom && !IsValidServoTime(a.CustomTime) {
		return errcode.New(errcode.InvalidServoTime, op,
			fmt.Sprintf("custom time %d outside %d..%d us", a.CustomTime, MinServoTimeUs, MaxServoTimeUs))
	}
	return nil
}

func (c ButtonConfig) Validate() error {
	for i, a := range c.ActionOnPress {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("actionOnPress[%d]: %w", i, err)
		}
	}
	return nil
}

// Validate checks c against the capability table and its sub-configs.
func (c ChannelConfig) Validate() error {
	const op = "config.validate"
	if _, ok := LookupCapability(c.Channel); !ok {
		return errcode.New(errcode.UnknownChannel, op, fmt.Sprintf("unknown gpio entry %q", c.Channel))
	}
	if !c.Type.Valid() {
		return errcode.New(errcode.InvalidChannelType, op, fmt.Sprintf("invalid type for %s", c.Channel))
	}
	if !HasCapability(c.Channel, c.Type) {
		return errcode.New(errcode.NoCapability, op, fmt.Sprintf("%s cannot host %s", c.Channel, c.Type))
	}
	switch c.Type {
	case ChannelServo:
		if c.Servo == nil {
			return errcode.New(errcode.MissingServoConfig, op, fmt.Sprintf("%s: servo config required", c.Channel))
		}
		return c.Servo.Validate()
	case ChannelSmartButton:
		if c.Button == nil {
			return errcode.New(errcode.MissingButtonConfig, op, fmt.Sprintf("%s: button config required", c.Channel))
		}
		return c.Button.Validate()
	}
	return nil
}
