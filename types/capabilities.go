package types

import (
	"maps"
	"slices"
)

// ------------------------
// Channel capabilities
// ------------------------

// Capability is a bitmask of the channel types a slot may host.
type Capability uint8

const (
	CapSmartButton    Capability = 1 << 1
	CapServoOut       Capability = 1 << 2
	CapI2c            Capability = 1 << 3
	CapSerialRemoteIn Capability = 1 << 4
)

func (c Capability) Has(o Capability) bool { return c&o == o }

// CapabilityEntry binds a channel to its physical pin.
type CapabilityEntry struct {
	Pin  int        `json:"pin"`
	Caps Capability `json:"caps"`
}

var capabilityTable = map[ChannelID]CapabilityEntry{
	"A1": {Pin: 25, Caps: CapSmartButton | CapServoOut},
	"A2": {Pin: 13, Caps: CapSmartButton | CapServoOut},
	"A3": {Pin: 23, Caps: CapSmartButton | CapServoOut},
	"A4": {Pin: 19, Caps: CapSmartButton | CapServoOut},
	"A5": {Pin: 18, Caps: CapSmartButton | CapServoOut},
	"A6": {Pin: 17, Caps: CapSmartButton | CapServoOut},
	"A7": {Pin: 16, Caps: CapSmartButton | CapServoOut},
	"A8": {Pin: 4, Caps: CapSmartButton | CapServoOut},

	"B1": {Pin: 22, Caps: CapSmartButton | CapI2c},
	"B2": {Pin: 21, Caps: CapSmartButton | CapI2c},
	"B3": {Pin: 32, Caps: CapSmartButton},
	"B4": {Pin: 33, Caps: CapSmartButton},
	"B5": {Pin: 26, Caps: CapSmartButton},
	"B6": {Pin: 27, Caps: CapSmartButton},
	"B7": {Pin: 14, Caps: CapSmartButton},
	"B8": {Pin: 15, Caps: CapSmartButton},
}

var channelIDs = slices.Sorted(maps.Keys(capabilityTable))

// LookupCapability returns the table entry for id.
func LookupCapability(id ChannelID) (CapabilityEntry, bool) {
	e, ok := capabilityTable[id]
	return e, ok
}

// ChannelIDs lists every known channel in canonical order.
func ChannelIDs() []ChannelID { return slices.Clone(channelIDs) }

// RequiredCapability maps a channel type to the capability it needs.
// Disabled and Invalid need none.
func RequiredCapability(t ChannelType) (Capability, bool) {
	switch t {
	case ChannelServo:
		return CapServoOut, true
	case ChannelSmartButton:
		return CapSmartButton, true
	case ChannelI2c:
		return CapI2c, true
	}
	return 0, false
}

// HasCapability reports whether channel id may host type t.
func HasCapability(id ChannelID, t ChannelType) bool {
	e, ok := capabilityTable[id]
	if !ok {
		return false
	}
	need, ok := RequiredCapability(t)
	if !ok {
		return true
	}
	return e.Caps.Has(need)
}
