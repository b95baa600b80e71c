package sensor

import "fmt"

// Coding is the 3-byte coding value behind DID 0x0611, interpreted
// bit-field-wise rather than as one opaque integer.
type Coding [3]byte

// DefaultCoding is the factory value of the 81A 955 555 A variant.
var DefaultCoding = Coding{0x02, 0x00, 0x5D}

// Bit reports one coding bit.
func (c Coding) Bit(byteIdx int, bit uint) bool {
	if byteIdx < 0 || byteIdx > 2 || bit > 7 {
		return false
	}
	return c[byteIdx]&(1<<bit) != 0
}

// ModeFlag is byte0 bit6. Toggling it flips a flag visible in the light
// frame's second byte.
func (c Coding) ModeFlag() bool { return c.Bit(0, 6) }

// SolarTrim is byte2, which shifts the solar/overflow byte of the
// environmental readings.
func (c Coding) SolarTrim() byte { return c[2] }

// WithModeFlag returns a copy with byte0 bit6 set or cleared.
func (c Coding) WithModeFlag(on bool) Coding {
	if on {
		c[0] |= 1 << 6
	} else {
		c[0] &^= 1 << 6
	}
	return c
}

func (c Coding) String() string {
	return fmt.Sprintf("%02X %02X %02X", c[0], c[1], c[2])
}

// CodingFromBytes validates the raw DID value length.
func CodingFromBytes(raw []byte) (Coding, error) {
	if len(raw) != 3 {
		return Coding{}, fmt.Errorf("sensor: coding must be 3 bytes, got %d", len(raw))
	}
	return Coding{raw[0], raw[1], raw[2]}, nil
}
