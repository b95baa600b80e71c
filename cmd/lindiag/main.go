// lindiag is the interactive diagnostic tool for the rain/light sensor:
// identification, measuring-block reads, coding read/write and DID
// scanning, all over the 0x3C/0x3D frames.
package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/openrls/linbcm/internal/bcm"
	"github.com/openrls/linbcm/internal/diag"
	"github.com/openrls/linbcm/internal/lin"
	"github.com/openrls/linbcm/internal/sensor"
)

func main() {
	portPath := flag.String("port", "/dev/ttyLIN0", "Serial port of the LIN transceiver")
	baud := flag.Int("baud", 19200, "Bus baud rate")
	demo := flag.Bool("demo", false, "Run against the simulated sensor")

	info := flag.Bool("info", false, "Print sensor identification and coding")
	lidArg := flag.Int("lid", -1, "Read one measuring block (0x00-0x1F)")
	dump := flag.Bool("dump", false, "Read all measuring blocks")
	coding := flag.Bool("coding", false, "Read the coding value")
	writeCoding := flag.String("write-coding", "", "Write coding, 3 hex bytes e.g. 02005D")
	restore := flag.Bool("restore-coding", false, "Restore factory coding 02 00 5D")
	scan := flag.String("scan", "", "Scan a DID range, e.g. 0580:0800")
	flag.Parse()

	log.SetFlags(log.Ltime)

	var port lin.Port
	if *demo {
		port = lin.NewSimPort()
	} else {
		p, err := lin.OpenSerial(lin.SerialConfig{PortPath: *portPath, BaudRate: *baud})
		if err != nil {
			log.Fatalf("[lindiag] %v", err)
		}
		port = p
	}
	master := lin.NewMaster(port)
	defer master.Close()

	// Keep the sensor awake while we talk to it.
	keepalive(master)

	session := diag.NewSession(master)

	ran := false
	switch {
	case *info:
		ran = true
		printInfo(session)
	case *lidArg >= 0:
		ran = true
		printLID(session, byte(*lidArg))
	case *dump:
		ran = true
		for lid := byte(0); lid <= diag.MaxLID; lid++ {
			printLID(session, lid)
			time.Sleep(10 * time.Millisecond)
		}
	case *coding:
		ran = true
		printCoding(session)
	case *writeCoding != "":
		ran = true
		doWriteCoding(session, *writeCoding)
	case *restore:
		ran = true
		if err := session.RestoreCoding(); err != nil {
			log.Fatalf("[lindiag] restore coding: %v", err)
		}
		fmt.Printf("coding restored: %s\n", sensor.DefaultCoding)
	case *scan != "":
		ran = true
		doScan(session, *scan)
	}

	if !ran {
		flag.Usage()
		os.Exit(2)
	}
}

// keepalive transmits the default master command once so the sensor stays
// out of sleep during diagnostics.
func keepalive(master *lin.Master) {
	cmd := bcm.DefaultCommand()
	if err := master.Publish(lin.FrameCommand, cmd.Payload(), lin.EnhancedChecksum); err != nil {
		log.Printf("[lindiag] keepalive: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
}

func printInfo(s *diag.Session) {
	fmt.Println("--- Sensor Info ---")
	for _, id := range diag.KnownIdentifiers {
		data, err := s.ReadIdentifier(id.ID)
		if err != nil {
			fmt.Printf("DID 0x%04X %-22s %v\n", id.ID, id.Name+":", err)
			continue
		}
		fmt.Printf("DID 0x%04X %-22s [% X]  %s\n", id.ID, id.Name+":", data, printable(data))
	}
}

func printLID(s *diag.Session, lid byte) {
	mb, err := s.ReadMeasuringBlock(lid)
	if err != nil {
		var neg *diag.NegativeResponseError
		if errors.As(err, &neg) {
			fmt.Printf("LID 0x%02X: NRC 0x%02X\n", lid, neg.Code)
			return
		}
		fmt.Printf("LID 0x%02X: %v\n", lid, err)
		return
	}
	var parts []string
	for i, ch := range mb.Channels {
		parts = append(parts, fmt.Sprintf("ch%d=%5d(0x%04X)", i, ch.Value(), ch.Value()))
	}
	a, b := mb.PairedValues()
	fmt.Printf("LID 0x%02X: %s | A=%d B=%d\n", lid, strings.Join(parts, " "), a, b)
}

func printCoding(s *diag.Session) {
	c, err := s.ReadCoding()
	if err != nil {
		log.Fatalf("[lindiag] read coding: %v", err)
	}
	fmt.Printf("coding: %s (mode flag %v, solar trim 0x%02X)\n", c, c.ModeFlag(), c.SolarTrim())
}

func doWriteCoding(s *diag.Session, arg string) {
	raw, err := hex.DecodeString(strings.ReplaceAll(arg, " ", ""))
	if err != nil {
		log.Fatalf("[lindiag] bad coding %q: %v", arg, err)
	}
	c, err := sensor.CodingFromBytes(raw)
	if err != nil {
		log.Fatalf("[lindiag] %v", err)
	}
	if err := s.WriteCoding(c); err != nil {
		log.Fatalf("[lindiag] write coding: %v", err)
	}
	fmt.Printf("coding written: %s\n", c)
}

func doScan(s *diag.Session, arg string) {
	var start, end uint16
	if _, err := fmt.Sscanf(arg, "%04x:%04x", &start, &end); err != nil {
		log.Fatalf("[lindiag] bad scan range %q (want 0580:0800): %v", arg, err)
	}
	fmt.Printf("scanning DIDs 0x%04X-0x%04X...\n", start, end)
	found := 0
	for did := uint32(start); did <= uint32(end); did++ {
		data, err := s.ReadIdentifier(uint16(did))
		if err != nil {
			continue
		}
		fmt.Printf("  0x%04X [%2d]: [% X]  %s\n", did, len(data), data, printable(data))
		found++
		time.Sleep(5 * time.Millisecond)
	}
	fmt.Printf("found %d DIDs\n", found)
}

func printable(data []byte) string {
	out := make([]byte, len(data))
	for i, b := range data {
		if b >= 0x20 && b <= 0x7E {
			out[i] = b
		} else {
			out[i] = '.'
		}
	}
	return string(out)
}
