package hal

import "testing"

func TestParsePull_ToPullString(t *testing.T) {
	cases := map[string]Pull{
		"up":        PullUp,
		"PullUp":    PullUp,
		" Down ":    PullDown,
		"pulldown":  PullDown,
		"none":      PullNone,
		"":          PullNone,
		"sometimes": PullNone,
	}
	for in, want := range cases {
		if got := ParsePull(in); got != want {
			t.Fatalf("ParsePull(%q) got %v, want %v", in, got, want)
		}
	}

	for p, s := range map[Pull]string{PullUp: "up", PullDown: "down", PullNone: "none"} {
		if p.String() != s {
			t.Fatalf("%d.String()=%q, want %q", p, p.String(), s)
		}
		if ParsePull(p.String()) != p {
			t.Fatalf("ParsePull(%q) does not round trip", s)
		}
	}
}

func TestPinFunc_String(t *testing.T) {
	want := map[PinFunc]string{
		FuncGPIOIn:    "gpio_in",
		FuncGPIOOut:   "gpio_out",
		FuncGPIOInOut: "gpio_inout",
		FuncPWM:       "pwm",
		PinFunc(99):   "unknown",
	}
	for f, s := range want {
		if f.String() != s {
			t.Fatalf("PinFunc(%d).String()=%q, want %q", f, f.String(), s)
		}
	}
}
