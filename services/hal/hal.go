// services/hal/hal.go
package hal

import (
	"tinygo.org/x/drivers"
)

// ---- GPIO / PWM abstractions ----

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// PinFunc is the role a pin is claimed for.
type PinFunc uint8

const (
	FuncGPIOIn PinFunc = iota
	FuncGPIOOut
	FuncGPIOInOut // shared sense/indicator line
	FuncPWM
)

// Pin is one physical pin with digital and PWM access.
// Set is fire-and-forget; SetDuty reports hardware refusal.
type Pin interface {
	Number() int
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool) error
	Set(level bool)
	Get() bool
	ConfigurePWM(freqHz uint32, resolutionBits uint8) error
	SetDuty(duty uint32) error
	// Reset returns the pin to a neutral floating input.
	Reset() error
}

// PinFactory supplies pins by board number.
type PinFactory interface {
	ByNumber(n int) (Pin, bool)
}

// I2CBusFactory supplies configured I²C buses by id ("i2c0").
// Uses the TinyGo drivers.I2C interface so MCU drivers can run on any backend.
type I2CBusFactory interface {
	ByID(id string) (drivers.I2C, bool)
}

// Board is one hardware backend.
type Board interface {
	PinFactory
	I2CBusFactory
	Name() string
	Close() error
}
