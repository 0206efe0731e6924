package hal

import "tinygo.org/x/drivers"

// Probe range for 7-bit addresses, excluding reserved blocks.
const (
	i2cFirstAddr = 0x08
	i2cLastAddr  = 0x77
)

// ScanI2C probes every non-reserved 7-bit address with a one byte read
// and returns the addresses that acknowledged.
func ScanI2C(bus drivers.I2C) []uint16 {
	var found []uint16
	buf := make([]byte, 1)
	for a := uint16(i2cFirstAddr); a <= i2cLastAddr; a++ {
		if err := bus.Tx(a, nil, buf); err == nil {
			found = append(found, a)
		}
	}
	return found
}
