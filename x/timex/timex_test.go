package timex

import (
	"testing"
	"time"
)

func TestPeriodFromHz(t *testing.T) {
	if got := PeriodFromHz(50); got != 20*time.Millisecond {
		t.Fatalf("50Hz period=%v", got)
	}
	if got := PeriodFromHz(0); got != time.Second {
		t.Fatalf("0Hz period=%v", got)
	}
}

func TestFakeClock(t *testing.T) {
	start := time.Unix(1000, 0)
	c := NewFakeClock(start)
	c.Advance(1500 * time.Millisecond)
	c.Advance(500 * time.Millisecond)
	if got := c.Now().Sub(start); got != 2*time.Second {
		t.Fatalf("elapsed=%v", got)
	}
}

func TestSeconds(t *testing.T) {
	for in, want := range map[float64]time.Duration{
		0:    0,
		0.2:  200 * time.Millisecond,
		2.5:  2500 * time.Millisecond,
		10:   10 * time.Second,
		1e-9: time.Nanosecond,
	} {
		if got := Seconds(in); got != want {
			t.Fatalf("Seconds(%g)=%v want %v", in, got, want)
		}
	}
}
