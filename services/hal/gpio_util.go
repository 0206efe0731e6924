package hal

import "strings"

// ParsePull accepts "up", "down" or "none" (case-insensitive).
func ParsePull(s string) Pull {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "pullup":
		return PullUp
	case "down", "pulldown":
		return PullDown
	default:
		return PullNone
	}
}

func (p Pull) String() string {
	switch p {
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	default:
		return "none"
	}
}

func (f PinFunc) String() string {
	switch f {
	case FuncGPIOIn:
		return "gpio_in"
	case FuncGPIOOut:
		return "gpio_out"
	case FuncGPIOInOut:
		return "gpio_inout"
	case FuncPWM:
		return "pwm"
	default:
		return "unknown"
	}
}
