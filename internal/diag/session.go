// Package diag implements the KWP2000-style diagnostic services the RLS
// exposes over the LIN frames 0x3C/0x3D: measuring-block reads, identifier
// reads and writes. Responses longer than one frame arrive as consecutive
// frames with no flow-control handshake and are reassembled here.
package diag

import (
	"errors"
	"fmt"
	"time"

	"github.com/openrls/linbcm/internal/lin"
)

const (
	// NAD is the slave node address of the 81A 955 555 A sensor.
	NAD = 0x02

	sidReadMeasuringBlock = 0x21
	sidReadIdentifier     = 0x22
	sidWriteIdentifier    = 0x2E

	sidNegativeResponse = 0x7F
	positiveOffset      = 0x40

	nrcResponsePending = 0x78

	// MaxLID is the highest measuring-block identifier.
	MaxLID = 0x1F
)

// Transport frame PCI nibbles.
const (
	pciSingleFrame      = 0x0
	pciFirstFrame       = 0x1
	pciConsecutiveFrame = 0x2
)

var (
	ErrNoResponse = errors.New("diag: no response")
	ErrInvalidLID = errors.New("diag: LID out of range 0..31")
	ErrReassembly = errors.New("diag: multi-frame response interrupted")
)

// WriteRejectedError carries the negative-response code of a refused
// identifier write.
type WriteRejectedError struct {
	DID  uint16
	Code byte
}

func (e *WriteRejectedError) Error() string {
	return fmt.Sprintf("diag: write to DID 0x%04X rejected (NRC 0x%02X)", e.DID, e.Code)
}

// NegativeResponseError is any non-write negative response.
type NegativeResponseError struct {
	Service byte
	Code    byte
}

func (e *NegativeResponseError) Error() string {
	return fmt.Sprintf("diag: service 0x%02X negative response (NRC 0x%02X)", e.Service, e.Code)
}

// Session drives request/response transactions over the dedicated
// diagnostic frames. Both directions use Classic checksums regardless of
// the data-frame class; that is a protocol constant. A Session does not
// schedule bus access itself: callers run transactions inside the
// scheduler's exclusive window so polls and diagnostics never interleave
// on the wire.
type Session struct {
	master *lin.Master
	nad    byte

	// frameTimeout bounds each single 0x3D response frame.
	frameTimeout time.Duration
	// responseTimeout bounds one whole transaction including reassembly
	// and response-pending waits.
	responseTimeout time.Duration
	// settle is the gap the sensor needs between request and first
	// response poll.
	settle time.Duration
}

// NewSession builds a session against the sensor's fixed node address.
func NewSession(master *lin.Master) *Session {
	return &Session{
		master:          master,
		nad:             NAD,
		frameTimeout:    120 * time.Millisecond,
		responseTimeout: 1 * time.Second,
		settle:          15 * time.Millisecond,
	}
}

// request transmits [NAD, PCI, SID, data...] padded to 8 bytes on 0x3C.
func (s *Session) request(sid byte, data []byte) error {
	payload := make([]byte, 0, 8)
	payload = append(payload, s.nad, byte(1+len(data)), sid)
	payload = append(payload, data...)
	for len(payload) < 8 {
		payload = append(payload, 0xFF)
	}
	if err := s.master.Publish(lin.FrameDiagRequest, payload[:8], lin.ClassicChecksum); err != nil {
		return fmt.Errorf("diag: request SID 0x%02X: %w", sid, err)
	}
	time.Sleep(s.settle)
	return nil
}

// recvFrame polls one 0x3D frame addressed to our NAD.
func (s *Session) recvFrame() ([]byte, error) {
	f, err := s.master.Subscribe(lin.FrameDiagResponse, s.frameTimeout, lin.ClassicChecksum)
	if err != nil {
		return nil, err
	}
	if len(f) < 2 || f[0] != s.nad {
		return nil, fmt.Errorf("%w: foreign NAD 0x%02X", ErrNoResponse, f[0])
	}
	return f, nil
}

// reassembly states; see collect.
type rxState int

const (
	rxAwaitingFirst rxState = iota
	rxAwaitingContinuation
)

// collect runs the reassembly state machine for one response. A single
// frame completes immediately; a first frame declares the total length and
// is followed by consecutive frames the sensor sends on its own, with no
// flow control from us. Any checksum failure or timeout mid-sequence
// discards the entire response: partial payloads are never returned.
func (s *Session) collect(deadline time.Time) ([]byte, error) {
	state := rxAwaitingFirst
	var assembled []byte
	total := 0

	for {
		if time.Now().After(deadline) {
			if state == rxAwaitingContinuation {
				return nil, fmt.Errorf("%w: timeout with %d/%d bytes", ErrReassembly, len(assembled), total)
			}
			return nil, ErrNoResponse
		}

		f, err := s.recvFrame()
		if err != nil {
			if errors.Is(err, lin.ErrChecksum) && state == rxAwaitingContinuation {
				return nil, fmt.Errorf("%w: bad intermediate frame: %v", ErrReassembly, err)
			}
			if errors.Is(err, lin.ErrChecksum) {
				// A damaged first frame is indistinguishable from noise;
				// keep listening until the deadline.
				continue
			}
			if state == rxAwaitingContinuation {
				return nil, fmt.Errorf("%w: %v", ErrReassembly, err)
			}
			continue
		}

		switch state {
		case rxAwaitingFirst:
			switch (f[1] >> 4) & 0x0F {
			case pciSingleFrame:
				n := int(f[1] & 0x0F)
				if n == 0 || 2+n > len(f) {
					return nil, fmt.Errorf("%w: single frame length %d", ErrReassembly, n)
				}
				return append([]byte(nil), f[2:2+n]...), nil
			case pciFirstFrame:
				if len(f) < 3 {
					return nil, fmt.Errorf("%w: truncated first frame", ErrReassembly)
				}
				total = int(f[1]&0x0F)<<8 | int(f[2])
				assembled = append([]byte(nil), f[3:]...)
				if len(assembled) >= total {
					return assembled[:total], nil
				}
				state = rxAwaitingContinuation
			default:
				// Not the start of a response; keep listening.
			}

		case rxAwaitingContinuation:
			if (f[1]>>4)&0x0F != pciConsecutiveFrame {
				return nil, fmt.Errorf("%w: expected consecutive frame, got PCI 0x%02X", ErrReassembly, f[1])
			}
			assembled = append(assembled, f[2:]...)
			if len(assembled) >= total {
				return assembled[:total], nil
			}
		}
	}
}

// transact sends one request and returns the reassembled positive-response
// payload (starting with SID+0x40). NRC 0x78 (response pending) keeps the
// transaction alive within the deadline; any other negative response is
// returned as NegativeResponseError.
func (s *Session) transact(sid byte, data []byte) ([]byte, error) {
	if err := s.request(sid, data); err != nil {
		return nil, err
	}
	deadline := time.Now().Add(s.responseTimeout)
	for {
		resp, err := s.collect(deadline)
		if err != nil {
			return nil, err
		}
		if resp[0] == sidNegativeResponse {
			if len(resp) >= 3 && resp[1] == sid && resp[2] == nrcResponsePending {
				continue
			}
			code := byte(0)
			if len(resp) >= 3 {
				code = resp[2]
			}
			return nil, &NegativeResponseError{Service: sid, Code: code}
		}
		if resp[0] != sid+positiveOffset {
			return nil, fmt.Errorf("diag: SID 0x%02X echo mismatch: got 0x%02X", sid, resp[0])
		}
		return resp, nil
	}
}

// ReadMeasuringBlock reads one LID via SID 0x21. Every LID returns four
// channels of (formula, high, low).
func (s *Session) ReadMeasuringBlock(lid byte) (MeasuringBlock, error) {
	if lid > MaxLID {
		return MeasuringBlock{}, fmt.Errorf("%w: 0x%02X", ErrInvalidLID, lid)
	}
	resp, err := s.transact(sidReadMeasuringBlock, []byte{lid})
	if err != nil {
		return MeasuringBlock{}, err
	}
	if len(resp) < 2 || resp[1] != lid {
		return MeasuringBlock{}, fmt.Errorf("diag: LID echo mismatch in % X", resp)
	}
	return parseMeasuringBlock(lid, resp[2:])
}

// ReadIdentifier reads a DID via SID 0x22. Response length varies by
// identifier.
func (s *Session) ReadIdentifier(did uint16) ([]byte, error) {
	resp, err := s.transact(sidReadIdentifier, []byte{byte(did >> 8), byte(did)})
	if err != nil {
		return nil, err
	}
	if len(resp) < 3 {
		return nil, fmt.Errorf("diag: short DID response % X", resp)
	}
	return resp[3:], nil
}

// WriteIdentifier writes a DID via SID 0x2E. Success is the 0x6E echo; a
// negative response surfaces as WriteRejectedError with the reported code.
func (s *Session) WriteIdentifier(did uint16, value []byte) error {
	data := append([]byte{byte(did >> 8), byte(did)}, value...)
	_, err := s.transact(sidWriteIdentifier, data)
	var neg *NegativeResponseError
	if errors.As(err, &neg) {
		return &WriteRejectedError{DID: did, Code: neg.Code}
	}
	return err
}
