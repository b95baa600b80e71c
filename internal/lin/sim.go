package lin

import (
	"math"
	"sync"
	"time"
)

// SimPort emulates the RLS slave behind the Port interface for demo mode
// and tests: it answers schedule polls with plausible sensor data and
// serves the diagnostic services the real sensor exposes, including
// multi-frame responses sent back-to-back without flow control.
type SimPort struct {
	mu sync.Mutex

	// Header state: frame ID of the last header seen.
	headerFID  byte
	haveHeader bool

	// Queued bytes for the next Recv.
	rxQueue []byte

	// Pending diagnostic response, one 8-byte frame per 0x3D header.
	diagFrames [][]byte

	// Sensor model.
	counter  byte    // 4-bit alive counter, steps +5 per light frame
	light    byte    // forward light fine byte 0..254
	tempRaw  byte    // 0x7A = 21.0 C
	temp2Raw byte
	solar    byte
	coding   [3]byte
	lastCmd  []byte

	// Drift makes the light level wander for demo dashboards.
	Drift bool
	t     float64
}

// NewSimPort builds a simulated sensor with the documented defaults.
func NewSimPort() *SimPort {
	return &SimPort{
		light:    120,
		tempRaw:  0x7A, // 21.0 C
		temp2Raw: 0x66, // 11.0 C
		solar:    0x30,
		coding:   [3]byte{0x02, 0x00, 0x5D},
	}
}

// SetLight overrides the simulated forward light level.
func (s *SimPort) SetLight(v byte) {
	s.mu.Lock()
	s.light = v
	s.mu.Unlock()
}

// LastCommand returns the most recent master command payload received.
func (s *SimPort) LastCommand() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.lastCmd))
	copy(out, s.lastCmd)
	return out
}

func (s *SimPort) SendBreak() error {
	s.mu.Lock()
	s.haveHeader = false
	s.rxQueue = nil
	s.mu.Unlock()
	return nil
}

func (s *SimPort) SendBytes(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.haveHeader {
		if len(data) == 2 && data[0] == SyncByte {
			s.haveHeader = true
			s.headerFID = data[1] & 0x3F
			s.onHeader()
		}
		return nil
	}
	// Response section of a master frame: payload + checksum.
	if len(data) < 2 {
		return nil
	}
	payload := data[:len(data)-1]
	switch s.headerFID {
	case FrameCommand:
		s.lastCmd = append([]byte(nil), payload...)
	case FrameDiagRequest:
		s.onDiagRequest(payload)
	}
	return nil
}

// onHeader queues the slave response for subscribe frames. Callers hold s.mu.
func (s *SimPort) onHeader() {
	var payload []byte
	switch s.headerFID {
	case FrameLight:
		payload = s.lightFrame()
	case FrameEnv:
		payload = []byte{s.solar, 0x00, s.tempRaw, 0x00, 0x00, s.temp2Raw, 0x00, 0x00}
	case FrameRain:
		payload = []byte{0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	case FrameDiagResponse:
		if len(s.diagFrames) > 0 {
			payload = s.diagFrames[0]
			s.diagFrames = s.diagFrames[1:]
		}
	default:
		return
	}
	if payload == nil {
		return
	}
	pid, wire, err := Encode(s.headerFID, payload, ClassFor(s.headerFID))
	if err != nil {
		return
	}
	s.rxQueue = append([]byte{pid}, wire...)
}

func (s *SimPort) lightFrame() []byte {
	if s.Drift {
		s.t += 0.1
		s.light = byte(127 + 110*math.Sin(s.t*0.2))
	}
	s.counter = (s.counter + 5) & 0x0F
	// Coding byte0 bit6 shows up as a mode flag in the second byte.
	flags := byte(0)
	if s.coding[0]&0x40 != 0 {
		flags |= 0x01
	}
	coarse := byte(0xF0)
	if s.light >= 253 {
		coarse = 0xC8 // overflow indicator drops from the ceiling
	}
	return []byte{s.counter, flags, 0x00, 0x00, s.light, coarse, 0x00, 0x00}
}

// onDiagRequest parses [NAD, PCI, SID, data...] and queues the response
// frames. Callers hold s.mu.
func (s *SimPort) onDiagRequest(req []byte) {
	if len(req) < 3 {
		return
	}
	nad := req[0]
	pciLen := int(req[1] & 0x0F)
	if pciLen < 1 || 2+pciLen > len(req) {
		return
	}
	sid := req[2]
	data := req[3 : 2+pciLen]

	var resp []byte
	switch sid {
	case 0x21:
		resp = s.respondLID(data)
	case 0x22:
		resp = s.respondDID(data)
	case 0x2E:
		resp = s.respondWrite(data)
	default:
		resp = []byte{0x7F, sid, 0x11} // serviceNotSupported
	}
	s.diagFrames = packDiagFrames(nad, resp)
}

func (s *SimPort) respondLID(data []byte) []byte {
	if len(data) < 1 || data[0] > 0x1F {
		return []byte{0x7F, 0x21, 0x31}
	}
	lid := data[0]
	resp := []byte{0x61, lid}
	for ch := byte(0); ch < 4; ch++ {
		v := uint16(lid)<<4 | uint16(ch)<<2 | uint16(s.light)
		resp = append(resp, 0x87, byte(v>>8), byte(v))
	}
	return resp
}

func (s *SimPort) respondDID(data []byte) []byte {
	if len(data) < 2 {
		return []byte{0x7F, 0x22, 0x13}
	}
	did := uint16(data[0])<<8 | uint16(data[1])
	var value []byte
	switch did {
	case 0x0641:
		value = []byte("81A955555A")
	case 0x0611:
		value = s.coding[:]
	case 0x06D1:
		value = []byte("H03")
	default:
		return []byte{0x7F, 0x22, 0x31}
	}
	return append([]byte{0x62, data[0], data[1]}, value...)
}

func (s *SimPort) respondWrite(data []byte) []byte {
	if len(data) < 2 {
		return []byte{0x7F, 0x2E, 0x13}
	}
	did := uint16(data[0])<<8 | uint16(data[1])
	if did != 0x0611 || len(data) != 5 {
		return []byte{0x7F, 0x2E, 0x31}
	}
	copy(s.coding[:], data[2:])
	return []byte{0x6E, data[0], data[1]}
}

// packDiagFrames splits a diagnostic response payload into 8-byte transport
// frames: a single frame when it fits, otherwise a first frame carrying the
// total length and consecutive frames sent with no flow control in between.
func packDiagFrames(nad byte, payload []byte) [][]byte {
	pad := func(f []byte) []byte {
		for len(f) < 8 {
			f = append(f, 0xFF)
		}
		return f
	}
	if len(payload) <= 6 {
		f := append([]byte{nad, byte(len(payload))}, payload...)
		return [][]byte{pad(f)}
	}
	total := len(payload)
	frames := [][]byte{pad(append([]byte{nad, 0x10 | byte(total>>8), byte(total)}, payload[:5]...))}
	rest := payload[5:]
	seq := byte(1)
	for len(rest) > 0 {
		n := len(rest)
		if n > 6 {
			n = 6
		}
		frames = append(frames, pad(append([]byte{nad, 0x20 | (seq & 0x0F)}, rest[:n]...)))
		rest = rest[n:]
		seq++
	}
	return frames
}

func (s *SimPort) Recv(max int, timeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.rxQueue)
	if n > max {
		n = max
	}
	out := s.rxQueue[:n]
	s.rxQueue = s.rxQueue[n:]
	return out, nil
}

func (s *SimPort) Flush() error {
	s.mu.Lock()
	s.rxQueue = nil
	s.mu.Unlock()
	return nil
}

func (s *SimPort) Close() error { return nil }
