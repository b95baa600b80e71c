package lin

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoResponse means no slave answered a subscribe header within the
// timeout budget.
var ErrNoResponse = errors.New("lin: no response")

// Master runs frame-level transactions over a Port: it owns the only
// write path to the bus and serializes complete frame exchanges (header
// plus response) behind one mutex, never individual bytes.
type Master struct {
	mu   sync.Mutex
	port Port

	// interFrameGap settles the bus between the checksum byte and the
	// next break. Single-wire transceivers need the slack.
	interFrameGap time.Duration
}

// NewMaster wraps a Port.
func NewMaster(port Port) *Master {
	return &Master{port: port, interFrameGap: 300 * time.Microsecond}
}

func (m *Master) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.port.Close()
}

// header transmits break + sync + protected ID and returns the PID.
// Callers must hold m.mu.
func (m *Master) header(fid byte) (byte, error) {
	pid, err := ProtectedID(fid)
	if err != nil {
		return 0, err
	}
	if err := m.port.Flush(); err != nil {
		return 0, err
	}
	if err := m.port.SendBreak(); err != nil {
		return 0, err
	}
	if err := m.port.SendBytes([]byte{SyncByte, pid}); err != nil {
		return 0, err
	}
	return pid, nil
}

// Publish sends a master frame: header followed by the payload and its
// checksum. LIN has no acknowledgement; the transmit is fire-and-forget
// and the next schedule cycle is the only retry.
func (m *Master) Publish(fid byte, payload []byte, class ChecksumClass) error {
	_, wire, err := Encode(fid, payload, class)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.header(fid); err != nil {
		return err
	}
	if err := m.port.SendBytes(wire); err != nil {
		return err
	}
	time.Sleep(m.interFrameGap)
	return nil
}

// Subscribe polls a slave-response frame: header, then the slave's data
// bytes and checksum. The receive buffer may contain the echoed header on
// single-wire wiring, so the response is located by its PID echo. Returns
// the validated payload, ErrNoResponse when nothing usable arrived in
// time, or ErrChecksum when the frame failed validation.
func (m *Master) Subscribe(fid byte, timeout time.Duration, class ChecksumClass) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pid, err := m.header(fid)
	if err != nil {
		return nil, err
	}
	// Worst case on the wire: sync + PID echo + 8 data + checksum.
	raw, _ := m.port.Recv(11, timeout)
	if len(raw) < 3 {
		return nil, fmt.Errorf("%w: frame 0x%02X (%d bytes)", ErrNoResponse, fid, len(raw))
	}
	idx := bytes.IndexByte(raw, pid)
	if idx < 0 || len(raw)-idx < 3 {
		return nil, fmt.Errorf("%w: frame 0x%02X (no PID echo)", ErrNoResponse, fid)
	}
	payload, err := Decode(pid, raw[idx+1:], class)
	if err != nil {
		return nil, fmt.Errorf("frame 0x%02X: %w", fid, err)
	}
	return payload, nil
}
