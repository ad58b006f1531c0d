package serialmux

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// DefaultBaudRate is the controller firmware's link speed.
const DefaultBaudRate = 115200

// DefaultFrame is data bits, parity and stop bits in the usual shorthand.
const DefaultFrame = "8N1"

// PortOptions are the line settings for the controller port.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	Frame    string `json:"frame"` // e.g. "8N1", "7E2"
}

type frame struct {
	dataBits int
	parity   serial.Parity
	stopBits serial.StopBits
}

var parities = map[byte]serial.Parity{
	'N': serial.NoParity,
	'E': serial.EvenParity,
	'O': serial.OddParity,
}

func parseFrame(s string) (frame, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		s = DefaultFrame
	}
	if len(s) != 3 {
		return frame{}, fmt.Errorf("frame %q: want data bits, parity and stop bits, e.g. 8N1", s)
	}
	f := frame{dataBits: int(s[0] - '0')}
	if f.dataBits < 5 || f.dataBits > 8 {
		return frame{}, fmt.Errorf("frame %q: data bits must be between 5 and 8", s)
	}
	p, ok := parities[s[1]]
	if !ok {
		return frame{}, fmt.Errorf("frame %q: parity must be N, E or O", s)
	}
	f.parity = p
	switch s[2] {
	case '1':
		f.stopBits = serial.OneStopBit
	case '2':
		f.stopBits = serial.TwoStopBits
	default:
		return frame{}, fmt.Errorf("frame %q: stop bits must be 1 or 2", s)
	}
	return f, nil
}

// Normalize validates the options and fills in defaults.
func (o PortOptions) Normalize() (PortOptions, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultBaudRate
	}
	o.Frame = strings.ToUpper(strings.TrimSpace(o.Frame))
	if o.Frame == "" {
		o.Frame = DefaultFrame
	}
	if _, err := parseFrame(o.Frame); err != nil {
		return o, err
	}
	return o, nil
}

// SerialMode converts the options for go.bug.st/serial.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	f, _ := parseFrame(opts.Frame)
	return &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: f.dataBits,
		Parity:   f.parity,
		StopBits: f.stopBits,
	}, nil
}

// NewRealSerialMux opens the controller port at path.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return NewSerialMux[serial.Port](port), nil
}
