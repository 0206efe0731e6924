package errcode

import "errors"

// Code is a stable, API-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK             Code = "ok"
	Unsupported    Code = "unsupported"
	InvalidParams  Code = "invalid_params"
	InvalidPayload Code = "invalid_payload"
	NotFound       Code = "not_found"
	Conflict       Code = "conflict"
	Timeout        Code = "timeout"

	// Channel configuration and action validation.
	UnknownChannel      Code = "unknown_channel"
	NoCapability        Code = "no_capability"
	InvalidChannelType  Code = "invalid_channel_type"
	MissingServoConfig  Code = "missing_servo_config"
	MissingButtonConfig Code = "missing_button_config"
	InvalidServoTime    Code = "invalid_servo_time"
	InvalidOverdrawTime Code = "invalid_overdraw_time"
	InvalidDirection    Code = "invalid_direction"

	// Hardware.
	UnknownBus Code = "unknown_bus"
	UnknownPin Code = "unknown_pin"
	PinInUse   Code = "pin_in_use"

	Error Code = "error" // generic fallback
)

// E wraps a Code with context and an optional cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// New builds an *E.
func New(c Code, op, msg string) *E { return &E{C: c, Op: op, Msg: msg} }

// Wrap builds an *E carrying err as its cause.
func Wrap(c Code, op string, err error) *E {
	e := &E{C: c, Op: op, Err: err}
	if err != nil {
		e.Msg = err.Error()
	}
	return e
}

// Of extracts a Code from an error chain, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return Error
}

// IsValidation reports whether c is raised by config or action validation.
func IsValidation(c Code) bool {
	switch c {
	case InvalidParams, InvalidPayload,
		UnknownChannel, NoCapability, InvalidChannelType,
		MissingServoConfig, MissingButtonConfig,
		InvalidServoTime, InvalidOverdrawTime, InvalidDirection:
		return true
	}
	return false
}
