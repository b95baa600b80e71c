package sensor

import (
	"errors"
	"fmt"

	"github.com/openrls/linbcm/internal/lin"
)

// LightMode selects how the two forward-light bytes are interpreted.
//
// The fine byte (payload[4]) is the primary fast-changing signal; the
// coarse byte (payload[5]) sits near 0xF0 under normal conditions and
// drops when the fine byte saturates at extreme brightness. Saturation
// mode reads the coarse byte as an overflow flag; Combined mode treats
// the pair as one 16-bit little-endian value.
type LightMode int

const (
	LightModeSaturation LightMode = iota
	LightModeCombined
)

func (m LightMode) String() string {
	if m == LightModeCombined {
		return "combined"
	}
	return "saturation"
}

// ParseLightMode maps a config string to a LightMode.
func ParseLightMode(s string) (LightMode, error) {
	switch s {
	case "", "saturation":
		return LightModeSaturation, nil
	case "combined":
		return LightModeCombined, nil
	}
	return 0, fmt.Errorf("sensor: unknown light mode %q", s)
}

// ErrShortFrame means a payload is too short for its frame layout.
var ErrShortFrame = errors.New("sensor: payload too short for frame layout")

// saturationFloor is the lowest fine-byte value that indicates the light
// channel has clipped.
const saturationFloor = 253

// Frame is the closed set of decoded slave-frame shapes.
type Frame interface {
	frameID() byte
}

// LightReading is the decoded 0x23 frame.
type LightReading struct {
	Counter           byte   `json:"counter"`   // 4-bit alive counter
	Flags             byte   `json:"flags"`     // second payload byte; coding mode flag lands here
	Intensity         uint16 `json:"intensity"` // fine byte, or 16-bit LE in combined mode
	Saturated         bool   `json:"saturated"`
	OverflowIndicator byte   `json:"overflowIndicator"` // coarse byte, reported not summed
}

// EnvReading is the decoded 0x29 frame.
type EnvReading struct {
	Solar          byte    `json:"solar"`
	TempC          float64 `json:"tempC"`
	SecondaryTempC float64 `json:"secondaryTempC"` // dew point candidate
}

// RainReading is the decoded 0x30 frame. Calibration of an active reading
// is undetermined, so raw bytes pass through untouched.
type RainReading struct {
	Active bool    `json:"active"`
	Raw    [8]byte `json:"raw"`
}

func (LightReading) frameID() byte { return lin.FrameLight }
func (EnvReading) frameID() byte   { return lin.FrameEnv }
func (RainReading) frameID() byte  { return lin.FrameRain }

// rainInactive is the pattern the sensor emits while the FIR subsystem is
// dormant under the default command payload.
var rainInactive = [8]byte{0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// Decode maps a validated payload to its frame shape by ID.
func Decode(fid byte, payload []byte, mode LightMode) (Frame, error) {
	switch fid {
	case lin.FrameLight:
		return DecodeLight(payload, mode)
	case lin.FrameEnv:
		return DecodeEnv(payload)
	case lin.FrameRain:
		return DecodeRain(payload)
	}
	return nil, fmt.Errorf("sensor: no layout for frame 0x%02X", fid)
}

// DecodeLight decodes the forward-light frame.
func DecodeLight(payload []byte, mode LightMode) (LightReading, error) {
	if len(payload) < 6 {
		return LightReading{}, fmt.Errorf("%w: light frame %d bytes", ErrShortFrame, len(payload))
	}
	r := LightReading{
		Counter:           payload[0] & 0x0F,
		Flags:             payload[1],
		Saturated:         payload[4] >= saturationFloor,
		OverflowIndicator: payload[5],
	}
	if mode == LightModeCombined {
		r.Intensity = uint16(payload[4]) | uint16(payload[5])<<8
	} else {
		r.Intensity = uint16(payload[4])
	}
	return r, nil
}

// DecodeEnv decodes the environmental frame. Both temperature bytes use
// the raw*0.5-40 formula.
func DecodeEnv(payload []byte) (EnvReading, error) {
	if len(payload) < 6 {
		return EnvReading{}, fmt.Errorf("%w: env frame %d bytes", ErrShortFrame, len(payload))
	}
	return EnvReading{
		Solar:          payload[0],
		TempC:          TempC(payload[2]),
		SecondaryTempC: TempC(payload[5]),
	}, nil
}

// TempC converts a raw temperature byte to degrees Celsius.
func TempC(raw byte) float64 {
	return float64(raw)*0.5 - 40.0
}

// DecodeRain decodes the rain frame: the fixed dormant pattern reads as
// inactive, anything else is an active reading with raw passthrough.
func DecodeRain(payload []byte) (RainReading, error) {
	if len(payload) < 8 {
		return RainReading{}, fmt.Errorf("%w: rain frame %d bytes", ErrShortFrame, len(payload))
	}
	var r RainReading
	copy(r.Raw[:], payload[:8])
	r.Active = r.Raw != rainInactive
	return r, nil
}

// Observed span of the combined 16-bit light value under daylight
// conditions. Display layers map it to a percentage.
const (
	combinedSpanLow  = 0xEC00
	combinedSpanHigh = 0xEFFF
)

// LightPercent maps a combined-mode intensity onto a 0..100 display scale,
// clamped at the span edges. Meaningless for saturation-mode values.
func LightPercent(v uint16) float64 {
	if v <= combinedSpanLow {
		return 0
	}
	if v >= combinedSpanHigh {
		return 100
	}
	return float64(v-combinedSpanLow) * 100 / float64(combinedSpanHigh-combinedSpanLow)
}

// Reading is the combined per-cycle snapshot broadcast to consumers. Slots
// stay nil until their frame has been received once; after that a slot
// retains the last good value across misses.
type Reading struct {
	Light *LightReading `json:"light,omitempty"`
	Env   *EnvReading   `json:"env,omitempty"`
	Rain  *RainReading  `json:"rain,omitempty"`
}
