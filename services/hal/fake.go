// services/hal/fake.go
package hal

import (
	"errors"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"switchcontrol/x/timex"
)

func init() {
	RegisterBackend("fake", func(opts Options) (Board, error) {
		return NewFakeBoard(opts.MaxPin), nil
	})
}

// ----------------------------- I²C (host) ------------------------------------

var errNoDevice = errors.New("i2c: no device at address")

// FakeI2C implements drivers.I2C; attached addresses acknowledge.
type FakeI2C struct {
	mu      sync.Mutex
	present map[uint16]bool
	LastTx  struct {
		Addr uint16
		W    []byte
		Rn   int
	}
}

func (h *FakeI2C) Attach(addr uint16) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.present == nil {
		h.present = make(map[uint16]bool)
	}
	h.present[addr] = true
}

func (h *FakeI2C) Tx(addr uint16, w, r []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.LastTx.Addr = addr
	h.LastTx.W = append([]byte(nil), w...)
	h.LastTx.Rn = len(r)
	if !h.present[addr] {
		return errNoDevice
	}
	clear(r)
	return nil
}

// ----------------------------- GPIO (host) -----------------------------------

// FakePin emulates one pin. In input mode Get returns the externally
// driven level set with Drive; in output mode it returns the last Set.
type FakePin struct {
	mu      sync.RWMutex
	number  int
	level   bool
	driven  bool
	modeOut bool
	pull    Pull
	pwmFreq uint32
	pwmBits uint8
	duty    uint32
	duties  []uint32
	resets  int
}

func (p *FakePin) Number() int { return p.number }

func (p *FakePin) ConfigureInput(pull Pull) error {
	p.mu.Lock()
	p.modeOut = false
	p.pull = pull
	p.mu.Unlock()
	return nil
}

func (p *FakePin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	p.modeOut = true
	p.level = initial
	p.mu.Unlock()
	return nil
}

func (p *FakePin) Set(level bool) {
	p.mu.Lock()
	p.level = level
	p.mu.Unlock()
}

func (p *FakePin) Get() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.modeOut {
		return p.level
	}
	return p.driven
}

func (p *FakePin) ConfigurePWM(freqHz uint32, bits uint8) error {
	if freqHz == 0 || bits == 0 || bits > 24 {
		return errors.New("pwm: invalid frequency or resolution")
	}
	p.mu.Lock()
	p.pwmFreq, p.pwmBits = freqHz, bits
	p.modeOut = true
	p.mu.Unlock()
	return nil
}

func (p *FakePin) SetDuty(duty uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pwmFreq == 0 {
		return errors.New("pwm: not configured")
	}
	duty = min(duty, uint32(1)<<p.pwmBits)
	p.duty = duty
	p.duties = append(p.duties, duty)
	return nil
}

func (p *FakePin) Reset() error {
	p.mu.Lock()
	p.modeOut = false
	p.level = false
	p.pull = PullNone
	p.pwmFreq, p.pwmBits, p.duty = 0, 0, 0
	p.resets++
	p.mu.Unlock()
	return nil
}

// ---- test/simulation accessors ----

// Drive sets the level an external source applies while the pin is an input.
func (p *FakePin) Drive(level bool) {
	p.mu.Lock()
	p.driven = level
	p.mu.Unlock()
}

// Level is the last output level written.
func (p *FakePin) Level() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.level
}

func (p *FakePin) IsOutput() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.modeOut
}

func (p *FakePin) Duty() uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.duty
}

// Duties is every duty written since the last Reset of the history.
func (p *FakePin) Duties() []uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]uint32(nil), p.duties...)
}

// PWMPeriod reports the configured PWM period, or 0 when PWM is off.
func (p *FakePin) PWMPeriod() (time.Duration, uint8) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.pwmFreq == 0 {
		return 0, 0
	}
	return timex.PeriodFromHz(p.pwmFreq), p.pwmBits
}

func (p *FakePin) Resets() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.resets
}

// ----------------------------- Board -----------------------------------------

// DefaultMaxPin matches the highest GPIO number in the channel table.
const DefaultMaxPin = 39

// FakeBoard is an in-memory board used for simulation and tests.
type FakeBoard struct {
	mu     sync.Mutex
	maxPin int
	pins   map[int]*FakePin
	buses  map[string]*FakeI2C
}

// NewFakeBoard creates a board with pins 0..maxPin and buses "i2c0", "i2c1".
func NewFakeBoard(maxPin int) *FakeBoard {
	if maxPin <= 0 {
		maxPin = DefaultMaxPin
	}
	return &FakeBoard{
		maxPin: maxPin,
		pins:   make(map[int]*FakePin),
		buses:  map[string]*FakeI2C{"i2c0": {}, "i2c1": {}},
	}
}

func (b *FakeBoard) Name() string { return "fake" }
func (b *FakeBoard) Close() error { return nil }

func (b *FakeBoard) ByNumber(n int) (Pin, bool) {
	p, ok := b.Pin(n)
	if !ok {
		return nil, false
	}
	return p, true
}

// Pin exposes the underlying *FakePin.
func (b *FakeBoard) Pin(n int) (*FakePin, bool) {
	if n < 0 || n > b.maxPin {
		return nil, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pins[n]
	if !ok {
		p = &FakePin{number: n}
		b.pins[n] = p
	}
	return p, true
}

func (b *FakeBoard) ByID(id string) (drivers.I2C, bool) {
	bus, ok := b.Bus(id)
	if !ok {
		return nil, false
	}
	return bus, true
}

// Bus exposes the underlying *FakeI2C.
func (b *FakeBoard) Bus(id string) (*FakeI2C, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bus, ok := b.buses[id]
	return bus, ok
}
