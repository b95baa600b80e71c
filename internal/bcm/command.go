// Package bcm emulates the body control module side of the bus: the
// master command frame and the fixed polling schedule that keeps the
// sensor alive and streaming.
package bcm

// Command is the content of the 0x20 master frame. The bits are opaque to
// the frame codec; this is the sensor's documented layout.
type Command struct {
	Ignition    bool `yaml:"ignition" json:"ignition"`       // KL15 on
	WiperMode   int  `yaml:"wiper_mode" json:"wiperMode"`    // 0=off .. 3
	Sensitivity int  `yaml:"sensitivity" json:"sensitivity"` // rain sensitivity 0..7
}

// DefaultCommand keeps the sensor fully active: ignition on, wiper mode 1,
// mid sensitivity.
func DefaultCommand() Command {
	return Command{Ignition: true, WiperMode: 1, Sensitivity: 2}
}

var wiperModeBits = [4]byte{0x00, 0x04, 0x08, 0x0C}

// Payload builds the 8-byte command payload: byte0 bit7 = ignition,
// bit0 = wiper active, byte1 = wiper mode bits, byte2 = sensitivity.
func (c Command) Payload() []byte {
	var b0 byte
	if c.Ignition {
		b0 |= 0x80
	}
	if c.WiperMode != 0 {
		b0 |= 0x01
	}
	b1 := wiperModeBits[1]
	if c.WiperMode >= 0 && c.WiperMode < len(wiperModeBits) {
		b1 = wiperModeBits[c.WiperMode]
	}
	sens := c.Sensitivity
	if sens < 0 {
		sens = 0
	}
	if sens > 7 {
		sens = 7
	}
	return []byte{b0, b1, byte(sens), 0x00, 0x00, 0x00, 0x00, 0x00}
}
