package lin

import (
	"bytes"
	"errors"
	"testing"
)

func TestProtectedID_KnownValues(t *testing.T) {
	// Reference PIDs from the LIN 2.x parity formula.
	cases := []struct {
		fid  byte
		want byte
	}{
		{0x00, 0x80},
		{0x20, 0x20},
		{0x23, 0xA3},
		{0x29, 0xE9},
		{0x30, 0xF0},
		{0x3C, 0x3C},
		{0x3D, 0x7D},
	}
	for _, c := range cases {
		got, err := ProtectedID(c.fid)
		if err != nil {
			t.Fatalf("ProtectedID(0x%02X): %v", c.fid, err)
		}
		if got != c.want {
			t.Errorf("ProtectedID(0x%02X) = 0x%02X, want 0x%02X", c.fid, got, c.want)
		}
	}
}

func TestProtectedID_RejectsOutOfRange(t *testing.T) {
	if _, err := ProtectedID(0x40); !errors.Is(err, ErrInvalidFrameID) {
		t.Fatalf("expected ErrInvalidFrameID, got %v", err)
	}
}

func TestEncode_RejectsLongPayload(t *testing.T) {
	_, _, err := Encode(0x23, make([]byte, 9), EnhancedChecksum)
	if !errors.Is(err, ErrInvalidPayloadLength) {
		t.Fatalf("expected ErrInvalidPayloadLength, got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{0x00},
		{0xFF, 0xFF, 0xFF},
		{0x81, 0x04, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00},
		{0x05, 0x01, 0x00, 0x00, 0x78, 0xF0, 0x00, 0x00},
	}
	for fid := byte(0); fid <= MaxFrameID; fid += 7 {
		for _, payload := range payloads {
			for _, class := range []ChecksumClass{ClassicChecksum, EnhancedChecksum} {
				pid, wire, err := Encode(fid, payload, class)
				if err != nil {
					t.Fatalf("Encode(0x%02X, %x, %v): %v", fid, payload, class, err)
				}
				got, err := Decode(pid, wire, class)
				if err != nil {
					t.Fatalf("Decode(0x%02X, %x, %v): %v", pid, wire, class, err)
				}
				if !bytes.Equal(got, payload) {
					t.Errorf("round trip fid=0x%02X class=%v: got %x, want %x", fid, class, got, payload)
				}
			}
		}
	}
}

func TestDecode_ChecksumSensitivity(t *testing.T) {
	payload := []byte{0x05, 0x01, 0x00, 0x00, 0x78, 0xF0, 0x00, 0x00}
	pid, wire, err := Encode(FrameLight, payload, EnhancedChecksum)
	if err != nil {
		t.Fatal(err)
	}
	// Flip every single bit of the payload section in turn; each must be
	// rejected whole.
	for i := 0; i < len(wire)-1; i++ {
		for bit := uint(0); bit < 8; bit++ {
			damaged := append([]byte(nil), wire...)
			damaged[i] ^= 1 << bit
			if _, err := Decode(pid, damaged, EnhancedChecksum); !errors.Is(err, ErrChecksum) {
				t.Fatalf("byte %d bit %d: expected ErrChecksum, got %v", i, bit, err)
			}
		}
	}
}

func TestChecksum_MixedClassesDiffer(t *testing.T) {
	payload := []byte{0x02, 0x03, 0x22, 0x06, 0x41, 0xFF, 0xFF, 0xFF}
	pid, _ := ProtectedID(FrameLight)
	classic := Checksum(payload, ClassicChecksum, pid)
	enhanced := Checksum(payload, EnhancedChecksum, pid)
	if classic == enhanced {
		t.Fatalf("classic and enhanced checksums both 0x%02X for PID 0x%02X", classic, pid)
	}
}

func TestChecksum_CarryWrap(t *testing.T) {
	// The LIN sum wraps carries back in: 0xFF+0xFF = 0x1FE -> 0xFF, inverted 0x00.
	if got := Checksum([]byte{0xFF, 0xFF}, ClassicChecksum, 0); got != 0x00 {
		t.Fatalf("Checksum(FF FF) = 0x%02X, want 0x00", got)
	}
}

func TestClassFor(t *testing.T) {
	if ClassFor(FrameDiagRequest) != ClassicChecksum || ClassFor(FrameDiagResponse) != ClassicChecksum {
		t.Error("diagnostic frames must use the classic checksum")
	}
	for _, fid := range []byte{FrameCommand, FrameLight, FrameEnv, FrameRain} {
		if ClassFor(fid) != EnhancedChecksum {
			t.Errorf("data frame 0x%02X must use the enhanced checksum", fid)
		}
	}
}
