package hal

import (
	"slices"
	"testing"
	"time"

	"switchcontrol/errcode"
)

func TestRegistry_ClaimRelease(t *testing.T) {
	b := NewFakeBoard(0)
	r := NewRegistry(b)

	p, err := r.ClaimPin("A1", 25, FuncPWM)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if p.Number() != 25 {
		t.Fatalf("pin number=%d", p.Number())
	}
	if _, err := r.ClaimPin("B1", 25, FuncGPIOIn); errcode.Of(err) != errcode.PinInUse {
		t.Fatalf("expected pin_in_use, got %v", err)
	}
	// Same owner may re-claim.
	if _, err := r.ClaimPin("A1", 25, FuncGPIOOut); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if owner, fn, ok := r.Owner(25); !ok || owner != "A1" || fn != FuncGPIOOut {
		t.Fatalf("owner=%q fn=%v ok=%v", owner, fn, ok)
	}
	if err := r.ResetPin(25); errcode.Of(err) != errcode.PinInUse {
		t.Fatalf("reset of claimed pin: %v", err)
	}

	// Release by a stranger is ignored.
	r.ReleasePin("B1", 25)
	if _, _, ok := r.Owner(25); !ok {
		t.Fatal("stranger released the pin")
	}

	r.ReleasePin("A1", 25)
	if _, _, ok := r.Owner(25); ok {
		t.Fatal("pin still owned after release")
	}
	fp, _ := b.Pin(25)
	if fp.Resets() != 1 || fp.IsOutput() {
		t.Fatalf("release must reset pin: resets=%d out=%v", fp.Resets(), fp.IsOutput())
	}
}

func TestRegistry_UnknownPin(t *testing.T) {
	r := NewRegistry(NewFakeBoard(30))
	if _, err := r.ClaimPin("B3", 32, FuncGPIOIn); errcode.Of(err) != errcode.UnknownPin {
		t.Fatalf("expected unknown_pin, got %v", err)
	}
	if err := r.ResetPin(-1); errcode.Of(err) != errcode.UnknownPin {
		t.Fatalf("expected unknown_pin, got %v", err)
	}
	if err := r.ResetPin(4); err != nil {
		t.Fatalf("reset free pin: %v", err)
	}
}

func TestFakePin_InputOutput(t *testing.T) {
	b := NewFakeBoard(0)
	p, _ := b.Pin(22)

	_ = p.ConfigureOutput(true)
	p.Drive(false)
	if !p.Get() {
		t.Fatal("output mode should read back driven output level")
	}
	_ = p.ConfigureInput(PullUp)
	if p.Get() {
		t.Fatal("input mode should read external level")
	}
	p.Drive(true)
	if !p.Get() {
		t.Fatal("input did not follow external drive")
	}
}

func TestFakePin_PWM(t *testing.T) {
	b := NewFakeBoard(0)
	p, _ := b.Pin(13)

	if err := p.SetDuty(10); err == nil {
		t.Fatal("expected error before ConfigurePWM")
	}
	if err := p.ConfigurePWM(50, 15); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if period, bits := p.PWMPeriod(); period != 20*time.Millisecond || bits != 15 {
		t.Fatalf("period=%v bits=%d", period, bits)
	}
	_ = p.SetDuty(2129)
	_ = p.SetDuty(1 << 20)
	if got := p.Duties(); !slices.Equal(got, []uint32{2129, 1 << 15}) {
		t.Fatalf("duties=%v", got)
	}
	if err := p.ConfigurePWM(0, 15); err == nil {
		t.Fatal("expected invalid frequency error")
	}
}

func TestScanI2C(t *testing.T) {
	b := NewFakeBoard(0)
	bus, _ := b.Bus("i2c0")
	bus.Attach(0x38)
	bus.Attach(0x68)
	bus.Attach(0x03) // reserved, never probed

	got := ScanI2C(bus)
	if !slices.Equal(got, []uint16{0x38, 0x68}) {
		t.Fatalf("scan=%#v", got)
	}
	if _, ok := b.ByID("i2c9"); ok {
		t.Fatal("unexpected bus")
	}
}

func TestBackends(t *testing.T) {
	names := Backends()
	if !slices.Contains(names, "fake") || !slices.Contains(names, "periph") {
		t.Fatalf("backends=%v", names)
	}
	board, err := Open("fake", Options{MaxPin: 10})
	if err != nil {
		t.Fatalf("open fake: %v", err)
	}
	if _, ok := board.ByNumber(11); ok {
		t.Fatal("pin beyond MaxPin must be unknown")
	}
	if _, err := Open("gpiochip", Options{}); errcode.Of(err) != errcode.Unsupported {
		t.Fatalf("expected unsupported, got %v", err)
	}
}

func TestRegisterBackend_DuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate backend")
		}
	}()
	RegisterBackend("fake", nil)
}
