package diag

import (
	"fmt"

	"github.com/openrls/linbcm/internal/sensor"
)

// Known diagnostic identifiers of the 81A 955 555 A sensor.
const (
	DIDCoding          uint16 = 0x0611 // 3 bytes, read/write
	DIDPartNumber      uint16 = 0x0641 // 10 bytes ASCII
	DIDInternalPart    uint16 = 0x06A1
	DIDHardwareVersion uint16 = 0x06D1
	DIDIdentString     uint16 = 0x0701
	DIDType            uint16 = 0x0731
)

// Access marks whether an identifier accepts writes.
type Access int

const (
	ReadOnly Access = iota
	ReadWrite
)

// Identifier describes a known DID. Length 0 means variable/undocumented.
type Identifier struct {
	ID     uint16
	Name   string
	Access Access
	Length int
}

// KnownIdentifiers lists the DIDs discovered on this sensor variant.
var KnownIdentifiers = []Identifier{
	{DIDCoding, "coding", ReadWrite, 3},
	{DIDPartNumber, "part number", ReadOnly, 10},
	{DIDInternalPart, "internal part number", ReadOnly, 0},
	{DIDHardwareVersion, "hardware version", ReadOnly, 0},
	{DIDIdentString, "identification string", ReadOnly, 0},
	{DIDType, "type", ReadOnly, 0},
}

// Channel is one measuring-block channel: a formula tag plus a split
// 16-bit raw value.
type Channel struct {
	Formula byte `json:"formula"`
	High    byte `json:"high"`
	Low     byte `json:"low"`
}

// Value combines the channel's raw bytes.
func (c Channel) Value() uint16 { return uint16(c.High)<<8 | uint16(c.Low) }

// MeasuringBlock is a read-only snapshot of one LID: four channels,
// recreated on every read.
type MeasuringBlock struct {
	LID      byte       `json:"lid"`
	Channels [4]Channel `json:"channels"`
}

// parseMeasuringBlock decodes the fixed 4x3-byte channel layout.
func parseMeasuringBlock(lid byte, data []byte) (MeasuringBlock, error) {
	if len(data) < 12 {
		return MeasuringBlock{}, fmt.Errorf("diag: LID 0x%02X payload %d bytes, want 12", lid, len(data))
	}
	mb := MeasuringBlock{LID: lid}
	for i := 0; i < 4; i++ {
		mb.Channels[i] = Channel{
			Formula: data[i*3],
			High:    data[i*3+1],
			Low:     data[i*3+2],
		}
	}
	return mb, nil
}

// PairedValues combines the four channels into the two values the sensor
// actually encodes: the even channel's low byte is the high byte of the
// combined value, the odd channel's low byte the low byte.
func (mb MeasuringBlock) PairedValues() (a, b uint16) {
	a = uint16(mb.Channels[0].Value()&0xFF)<<8 | uint16(mb.Channels[1].Value()&0xFF)
	b = uint16(mb.Channels[2].Value()&0xFF)<<8 | uint16(mb.Channels[3].Value()&0xFF)
	return a, b
}

// ReadCoding fetches and validates the coding DID.
func (s *Session) ReadCoding() (sensor.Coding, error) {
	raw, err := s.ReadIdentifier(DIDCoding)
	if err != nil {
		return sensor.Coding{}, err
	}
	return sensor.CodingFromBytes(raw)
}

// WriteCoding stores a new coding value.
func (s *Session) WriteCoding(c sensor.Coding) error {
	return s.WriteIdentifier(DIDCoding, c[:])
}

// RestoreCoding writes the factory default back.
func (s *Session) RestoreCoding() error {
	return s.WriteCoding(sensor.DefaultCoding)
}
