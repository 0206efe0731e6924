//go:build !linux

package hal

import "switchcontrol/errcode"

func init() {
	RegisterBackend("periph", func(Options) (Board, error) {
		return nil, errcode.New(errcode.Unsupported, "hal.open", "periph backend requires linux")
	})
}
