package lin

import (
	"fmt"
	"log"
	"time"

	"go.bug.st/serial"
)

// Port is the byte-level LIN transport. Implementations guarantee
// bit-time-accurate framing of what they are given; everything above this
// interface works in whole bytes. The electrical side (transceiver, pin
// polarity) is the implementation's problem.
type Port interface {
	// SendBreak drives the break field (>=13 dominant bit times) plus
	// the recessive delimiter.
	SendBreak() error
	// SendBytes transmits raw bytes at the bus baud rate.
	SendBytes(data []byte) error
	// Recv reads up to max bytes, returning whatever arrived within the
	// timeout. It never blocks past the deadline; a short or empty read
	// is not an error.
	Recv(max int, timeout time.Duration) ([]byte, error)
	// Flush discards any pending received bytes.
	Flush() error
	Close() error
}

// SerialConfig holds the serial LIN port settings.
type SerialConfig struct {
	PortPath string `yaml:"port_path" json:"portPath"`
	BaudRate int    `yaml:"baud_rate" json:"baudRate"`
}

// SerialPort implements Port over a UART attached to a LIN transceiver.
//
// The break field is generated by dropping the baud rate to 9/13 of the
// bus rate and writing a 0x00 byte: the start bit plus eight zero data
// bits then span slightly over 13 bit times at the real bus rate.
type SerialPort struct {
	path      string
	baud      int
	breakBaud int
	port      serial.Port
}

// OpenSerial opens the UART at 8N1 and the configured baud rate.
func OpenSerial(cfg SerialConfig) (*SerialPort, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 19200
	}
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.PortPath, mode)
	if err != nil {
		return nil, fmt.Errorf("lin: failed to open %s: %w", cfg.PortPath, err)
	}
	log.Printf("[lin] opened %s at %d baud", cfg.PortPath, cfg.BaudRate)
	return &SerialPort{
		path:      cfg.PortPath,
		baud:      cfg.BaudRate,
		breakBaud: cfg.BaudRate * 9 / 13,
		port:      port,
	}, nil
}

func (p *SerialPort) SendBreak() error {
	if err := p.setBaud(p.breakBaud); err != nil {
		return err
	}
	if _, err := p.port.Write([]byte{0x00}); err != nil {
		return fmt.Errorf("lin: break write on %s: %w", p.path, err)
	}
	p.port.Drain()
	if err := p.setBaud(p.baud); err != nil {
		return err
	}
	// The break byte loops back through the receiver as a framing-damaged
	// 0x00; drop it so frame parsing starts clean.
	p.drainEcho()
	return nil
}

func (p *SerialPort) setBaud(baud int) error {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if err := p.port.SetMode(mode); err != nil {
		return fmt.Errorf("lin: set %d baud on %s: %w", baud, p.path, err)
	}
	return nil
}

func (p *SerialPort) SendBytes(data []byte) error {
	if _, err := p.port.Write(data); err != nil {
		return fmt.Errorf("lin: write on %s: %w", p.path, err)
	}
	p.port.Drain()
	return nil
}

func (p *SerialPort) Recv(max int, timeout time.Duration) ([]byte, error) {
	if err := p.port.SetReadTimeout(10 * time.Millisecond); err != nil {
		return nil, fmt.Errorf("lin: set read timeout on %s: %w", p.path, err)
	}
	deadline := time.Now().Add(timeout)
	out := make([]byte, 0, max)
	buf := make([]byte, max)
	for len(out) < max && time.Now().Before(deadline) {
		n, err := p.port.Read(buf[:max-len(out)])
		if err != nil && n == 0 {
			return out, fmt.Errorf("lin: read on %s: %w", p.path, err)
		}
		out = append(out, buf[:n]...)
	}
	return out, nil
}

func (p *SerialPort) Flush() error {
	return p.port.ResetInputBuffer()
}

// drainEcho discards the locally echoed break byte, if the wiring loops
// TX back into RX (single-wire LIN does).
func (p *SerialPort) drainEcho() {
	p.port.SetReadTimeout(2 * time.Millisecond)
	buf := make([]byte, 4)
	p.port.Read(buf)
}

func (p *SerialPort) Close() error {
	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	return err
}
