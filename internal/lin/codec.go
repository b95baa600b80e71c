package lin

import (
	"errors"
	"fmt"
)

// ChecksumClass selects the LIN checksum algorithm for a frame.
// Classic sums only the data bytes; Enhanced seeds the sum with the
// protected ID. The RLS uses Enhanced for all data frames and Classic
// for the diagnostic frames 0x3C/0x3D.
type ChecksumClass int

const (
	ClassicChecksum ChecksumClass = iota
	EnhancedChecksum
)

func (c ChecksumClass) String() string {
	if c == EnhancedChecksum {
		return "enhanced"
	}
	return "classic"
}

const (
	// MaxFrameID is the highest valid 6-bit LIN frame identifier.
	MaxFrameID = 0x3F
	// MaxPayload is the longest LIN frame payload.
	MaxPayload = 8
	// SyncByte follows the break field in every frame header.
	SyncByte = 0x55
)

var (
	ErrInvalidFrameID       = errors.New("lin: frame ID out of range 0..63")
	ErrInvalidPayloadLength = errors.New("lin: payload exceeds 8 bytes")
	ErrChecksum             = errors.New("lin: checksum mismatch")
)

// ProtectedID computes the protected identifier byte for a 6-bit frame ID:
// the ID in bits 0-5 plus the two LIN parity bits.
//
//	P0 = b0 ^ b1 ^ b2 ^ b4        (bit 6)
//	P1 = ^(b1 ^ b3 ^ b4 ^ b5)     (bit 7)
func ProtectedID(fid byte) (byte, error) {
	if fid > MaxFrameID {
		return 0, fmt.Errorf("%w: 0x%02X", ErrInvalidFrameID, fid)
	}
	bit := func(n uint) byte { return (fid >> n) & 1 }
	p0 := bit(0) ^ bit(1) ^ bit(2) ^ bit(4)
	p1 := ^(bit(1) ^ bit(3) ^ bit(4) ^ bit(5)) & 1
	return fid | p0<<6 | p1<<7, nil
}

// Checksum computes the LIN checksum over data: a carry-wrapped 8-bit sum,
// inverted. For EnhancedChecksum the protected ID byte seeds the sum.
func Checksum(data []byte, class ChecksumClass, pid byte) byte {
	sum := 0
	if class == EnhancedChecksum {
		sum = int(pid)
	}
	for _, b := range data {
		sum += int(b)
		if sum > 0xFF {
			sum -= 0xFF
		}
	}
	return byte(^sum) & 0xFF
}

// Encode builds the on-wire response section of a frame: the payload
// followed by its checksum byte. The protected ID is returned separately
// because it travels in the header, not the response section.
func Encode(fid byte, payload []byte, class ChecksumClass) (pid byte, wire []byte, err error) {
	pid, err = ProtectedID(fid)
	if err != nil {
		return 0, nil, err
	}
	if len(payload) > MaxPayload {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrInvalidPayloadLength, len(payload))
	}
	wire = make([]byte, 0, len(payload)+1)
	wire = append(wire, payload...)
	wire = append(wire, Checksum(payload, class, pid))
	return pid, wire, nil
}

// Decode validates a received response section (payload + trailing checksum)
// against the protected ID and checksum class. On mismatch the whole frame
// is rejected with ErrChecksum; no partial payload is ever returned.
func Decode(pid byte, raw []byte, class ChecksumClass) ([]byte, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("%w: frame too short (%d bytes)", ErrChecksum, len(raw))
	}
	payload := raw[:len(raw)-1]
	if raw[len(raw)-1] != Checksum(payload, class, pid) {
		return nil, ErrChecksum
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}
