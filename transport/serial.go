package transport

import (
	"fmt"

	"go.bug.st/serial"
)

// Link baud rates the board firmware can be switched between. The
// link always opens at the default rate; TagBaud selects a faster one
// once both ends agree.
const (
	BaudDefault = 115200
	BaudFast    = 2000000
	BaudTurbo   = 3000000
)

// OpenSerial opens the serial device at path with 8N1 framing and
// returns it ready to hand to NewMux.
func OpenSerial(path string, baud int) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", path, err)
	}
	return port, nil
}
