//go:build linux

// services/hal/periph_linux.go
package hal

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"
)

func init() {
	RegisterBackend("periph", func(opts Options) (Board, error) {
		return OpenPeriph(opts)
	})
}

// PeriphBoard drives real GPIO, PWM and I²C through periph.io.
type PeriphBoard struct {
	mu       sync.Mutex
	pins     map[int]*periphPin
	i2cNames map[string]string
	buses    map[string]i2c.BusCloser
}

// OpenPeriph initialises periph.io host drivers.
func OpenPeriph(opts Options) (*PeriphBoard, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return &PeriphBoard{
		pins:     make(map[int]*periphPin),
		i2cNames: opts.I2C,
		buses:    make(map[string]i2c.BusCloser),
	}, nil
}

func (b *PeriphBoard) Name() string { return "periph" }

func (b *PeriphBoard) ByNumber(n int) (Pin, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pins[n]; ok {
		return p, true
	}
	io := gpioreg.ByName(fmt.Sprintf("GPIO%d", n))
	if io == nil {
		return nil, false
	}
	p := &periphPin{n: n, io: io}
	b.pins[n] = p
	return p, true
}

// ByID opens the bus mapped to id on first use. Without any mapping,
// "i2c0" opens the first bus periph finds.
func (b *PeriphBoard) ByID(id string) (drivers.I2C, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bus, ok := b.buses[id]; ok {
		return bus, true
	}
	name, ok := b.i2cNames[id]
	if !ok && (len(b.i2cNames) != 0 || id != "i2c0") {
		return nil, false
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, false
	}
	b.buses[id] = bus
	return bus, true
}

func (b *PeriphBoard) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var first error
	for id, bus := range b.buses {
		if err := bus.Close(); err != nil && first == nil {
			first = fmt.Errorf("close %s: %w", id, err)
		}
		delete(b.buses, id)
	}
	for _, p := range b.pins {
		_ = p.Reset()
	}
	return first
}

// ----------------------------- Pin -------------------------------------------

type periphPin struct {
	n    int
	io   gpio.PinIO
	freq physic.Frequency
	bits uint8
}

func (p *periphPin) Number() int { return p.n }

func (p *periphPin) ConfigureInput(pull Pull) error {
	return p.io.In(toPeriphPull(pull), gpio.NoEdge)
}

func (p *periphPin) ConfigureOutput(initial bool) error {
	return p.io.Out(gpio.Level(initial))
}

func (p *periphPin) Set(level bool) { _ = p.io.Out(gpio.Level(level)) }

func (p *periphPin) Get() bool { return p.io.Read() == gpio.High }

func (p *periphPin) ConfigurePWM(freqHz uint32, bits uint8) error {
	if freqHz == 0 || bits == 0 || bits > 24 {
		return fmt.Errorf("pwm GPIO%d: invalid frequency %d Hz or resolution %d", p.n, freqHz, bits)
	}
	p.freq = physic.Frequency(freqHz) * physic.Hertz
	p.bits = bits
	return nil
}

// SetDuty rescales a duty expressed in p.bits to gpio.DutyMax.
func (p *periphPin) SetDuty(duty uint32) error {
	if p.freq == 0 {
		return fmt.Errorf("pwm GPIO%d: not configured", p.n)
	}
	d := gpio.Duty((uint64(duty) * uint64(gpio.DutyMax)) >> p.bits)
	return p.io.PWM(d, p.freq)
}

func (p *periphPin) Reset() error {
	p.freq, p.bits = 0, 0
	if err := p.io.Halt(); err != nil {
		return err
	}
	return p.io.In(gpio.Float, gpio.NoEdge)
}

func toPeriphPull(p Pull) gpio.Pull {
	switch p {
	case PullUp:
		return gpio.PullUp
	case PullDown:
		return gpio.PullDown
	default:
		return gpio.Float
	}
}
