package types

import (
	"encoding/json"
	"fmt"
)

// ChannelID names one addressable I/O slot, e.g. "A1".
type ChannelID string

// ---- Channel types ----

type ChannelType string

const (
	ChannelDisabled    ChannelType = "Disabled"
	ChannelServo       ChannelType = "Servo"
	ChannelSmartButton ChannelType = "SmartButton"
	ChannelI2c         ChannelType = "I2c"
	ChannelInvalid     ChannelType = ""
)

// ParseChannelType maps a token to a ChannelType; unknown tokens are Invalid.
func ParseChannelType(s string) ChannelType {
	switch t := ChannelType(s); t {
	case ChannelDisabled, ChannelServo, ChannelSmartButton, ChannelI2c:
		return t
	}
	return ChannelInvalid
}

func (t ChannelType) Valid() bool { return ParseChannelType(string(t)) != ChannelInvalid }

func (t ChannelType) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(string(t))
}

func (t *ChannelType) UnmarshalJSON(b []byte) error {
	s, err := decodeToken(b)
	if err != nil {
		return fmt.Errorf("channel type: %w", err)
	}
	*t = ParseChannelType(s)
	return nil
}

// ---- Directions ----

type Direction string

const (
	DirLeft    Direction = "Left"
	DirRight   Direction = "Right"
	DirUnknown Direction = "Unknown"
	DirCustom  Direction = "Custom"
	DirInvalid Direction = ""
)

// ParseDirection maps a token to a Direction; unknown tokens are Invalid.
func ParseDirection(s string) Direction {
	switch d := Direction(s); d {
	case DirLeft, DirRight, DirUnknown, DirCustom:
		return d
	}
	return DirInvalid
}

func (d Direction) Valid() bool { return ParseDirection(string(d)) != DirInvalid }

// Actionable reports whether d names a position a servo can be sent to.
func (d Direction) Actionable() bool {
	return d == DirLeft || d == DirRight || d == DirCustom
}

func (d Direction) MarshalJSON() ([]byte, error) {
	if !d.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(string(d))
}

func (d *Direction) UnmarshalJSON(b []byte) error {
	s, err := decodeToken(b)
	if err != nil {
		return fmt.Errorf("direction: %w", err)
	}
	*d = ParseDirection(s)
	return nil
}

// decodeToken accepts a JSON string or null.
func decodeToken(b []byte) (string, error) {
	if string(b) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return "", err
	}
	return s, nil
}

// ---- Channel configuration ----

// ChannelConfig is the persisted per-channel document.
type ChannelConfig struct {
	Channel ChannelID     `json:"channel"`
	Type    ChannelType   `json:"type"`
	Button  *ButtonConfig `json:"button,omitempty"`
	Servo   *ServoConfig  `json:"servo,omitempty"`
}

// DefaultChannelConfig is the Disabled configuration for id.
func DefaultChannelConfig(id ChannelID) ChannelConfig {
	return ChannelConfig{Channel: id, Type: ChannelDisabled}
}

// Pin returns the physical pin for the configured channel.
func (c ChannelConfig) Pin() (int, bool) {
	e, ok := LookupCapability(c.Channel)
	return e.Pin, ok
}

// ButtonConfig describes a smart button and the actions it requests.
type ButtonConfig struct {
	InvertedInput  bool           `json:"invertedInput"`
	InvertedOutput bool           `json:"invertedOutput"`
	ActionOnPress  []SwitchAction `json:"actionOnPress"`
}

// ---- Status ----

// ServoStatus is one entry of the controller status document.
type ServoStatus struct {
	Channel      ChannelID `json:"channel"`
	Time         int       `json:"time"`
	Position     Direction `json:"position"`
	NextPosition Direction `json:"nextPosition,omitempty"`
	Overdrawing  bool      `json:"overdrawing"`
}
