package sensor

import (
	"errors"
	"testing"

	"github.com/openrls/linbcm/internal/lin"
)

func TestTempC(t *testing.T) {
	cases := []struct {
		raw  byte
		want float64
	}{
		{0x7A, 21.0},
		{0x00, -40.0},
		{0xFF, 87.5},
	}
	for _, c := range cases {
		if got := TempC(c.raw); got != c.want {
			t.Errorf("TempC(0x%02X) = %v, want %v", c.raw, got, c.want)
		}
	}
}

func TestDecodeLight_SaturationMode(t *testing.T) {
	cases := []struct {
		name      string
		fine      byte
		coarse    byte
		intensity uint16
		saturated bool
	}{
		{"dark", 0, 240, 0, false},
		{"mid", 120, 240, 120, false},
		{"clip 253", 253, 200, 253, true},
		{"clip 254", 254, 176, 254, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			payload := []byte{0x05, 0x00, 0x00, 0x00, c.fine, c.coarse, 0x00, 0x00}
			r, err := DecodeLight(payload, LightModeSaturation)
			if err != nil {
				t.Fatal(err)
			}
			if r.Intensity != c.intensity {
				t.Errorf("intensity = %d, want %d", r.Intensity, c.intensity)
			}
			if r.Saturated != c.saturated {
				t.Errorf("saturated = %v, want %v", r.Saturated, c.saturated)
			}
			// The coarse byte is reported, never summed in.
			if r.OverflowIndicator != c.coarse {
				t.Errorf("overflow indicator = %d, want %d", r.OverflowIndicator, c.coarse)
			}
		})
	}
}

func TestDecodeLight_CombinedMode(t *testing.T) {
	payload := []byte{0x05, 0x00, 0x00, 0x00, 0x34, 0xED, 0x00, 0x00}
	r, err := DecodeLight(payload, LightModeCombined)
	if err != nil {
		t.Fatal(err)
	}
	if r.Intensity != 0xED34 {
		t.Errorf("combined intensity = 0x%04X, want 0xED34", r.Intensity)
	}
}

func TestDecodeLight_CounterAndFlags(t *testing.T) {
	payload := []byte{0xA7, 0x01, 0x00, 0x00, 0x10, 0xF0, 0x00, 0x00}
	r, err := DecodeLight(payload, LightModeSaturation)
	if err != nil {
		t.Fatal(err)
	}
	if r.Counter != 0x07 {
		t.Errorf("counter = %d, want low nibble 7", r.Counter)
	}
	if r.Flags != 0x01 {
		t.Errorf("flags = 0x%02X, want 0x01", r.Flags)
	}
}

func TestDecodeEnv(t *testing.T) {
	payload := []byte{0x30, 0x00, 0x7A, 0x00, 0x00, 0x66, 0x00, 0x00}
	r, err := DecodeEnv(payload)
	if err != nil {
		t.Fatal(err)
	}
	if r.Solar != 0x30 {
		t.Errorf("solar = 0x%02X, want 0x30", r.Solar)
	}
	if r.TempC != 21.0 {
		t.Errorf("temp = %v, want 21.0", r.TempC)
	}
	if r.SecondaryTempC != 11.0 {
		t.Errorf("secondary temp = %v, want 11.0", r.SecondaryTempC)
	}
}

func TestDecodeRain(t *testing.T) {
	inactive := []byte{0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	r, err := DecodeRain(inactive)
	if err != nil {
		t.Fatal(err)
	}
	if r.Active {
		t.Error("dormant pattern decoded as active")
	}

	active := []byte{0x12, 0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	r, err = DecodeRain(active)
	if err != nil {
		t.Fatal(err)
	}
	if !r.Active {
		t.Error("non-dormant pattern decoded as inactive")
	}
	if r.Raw[0] != 0x12 || r.Raw[1] != 0x01 {
		t.Errorf("raw passthrough lost: % X", r.Raw)
	}
}

func TestDecode_ShortFrames(t *testing.T) {
	for _, fid := range []byte{lin.FrameLight, lin.FrameEnv, lin.FrameRain} {
		if _, err := Decode(fid, []byte{0x01, 0x02}, LightModeSaturation); !errors.Is(err, ErrShortFrame) {
			t.Errorf("frame 0x%02X: expected ErrShortFrame, got %v", fid, err)
		}
	}
}

func TestDecode_UnknownFrame(t *testing.T) {
	if _, err := Decode(0x2A, make([]byte, 8), LightModeSaturation); err == nil {
		t.Fatal("expected an error for a frame with no layout")
	}
}

func TestLightPercent(t *testing.T) {
	cases := []struct {
		v    uint16
		want float64
	}{
		{0x0000, 0},
		{0xEC00, 0},
		{0xEFFF, 100},
		{0xFFFF, 100},
	}
	for _, c := range cases {
		if got := LightPercent(c.v); got != c.want {
			t.Errorf("LightPercent(0x%04X) = %v, want %v", c.v, got, c.want)
		}
	}
	if mid := LightPercent(0xEE00); mid < 49 || mid > 51 {
		t.Errorf("LightPercent(0xEE00) = %v, want ~50", mid)
	}
}

func TestParseLightMode(t *testing.T) {
	if m, err := ParseLightMode(""); err != nil || m != LightModeSaturation {
		t.Errorf("empty mode: got %v, %v", m, err)
	}
	if m, err := ParseLightMode("combined"); err != nil || m != LightModeCombined {
		t.Errorf("combined: got %v, %v", m, err)
	}
	if _, err := ParseLightMode("bogus"); err == nil {
		t.Error("expected an error for an unknown mode")
	}
}
