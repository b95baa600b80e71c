package bcm

import (
	"bytes"
	"testing"
)

func TestCommandPayload(t *testing.T) {
	cases := []struct {
		name string
		cmd  Command
		want []byte
	}{
		{
			"default",
			DefaultCommand(),
			[]byte{0x81, 0x04, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00},
		},
		{
			"everything off",
			Command{},
			[]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
		},
		{
			"ignition only",
			Command{Ignition: true},
			[]byte{0x80, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
		},
		{
			"top wiper mode",
			Command{Ignition: true, WiperMode: 3, Sensitivity: 7},
			[]byte{0x81, 0x0C, 0x07, 0x00, 0x00, 0x00, 0x00, 0x00},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.cmd.Payload(); !bytes.Equal(got, c.want) {
				t.Fatalf("payload % X, want % X", got, c.want)
			}
		})
	}
}

func TestCommandPayloadClampsSensitivity(t *testing.T) {
	if got := (Command{Sensitivity: 99}).Payload()[2]; got != 7 {
		t.Errorf("sensitivity byte = %d, want clamp to 7", got)
	}
	if got := (Command{Sensitivity: -4}).Payload()[2]; got != 0 {
		t.Errorf("sensitivity byte = %d, want clamp to 0", got)
	}
}
