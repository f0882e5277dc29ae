package transport

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/tarm/serial"
	bugserial "go.bug.st/serial"
)

// PortOptions describes the serial connection parameters used when opening
// a controller port.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Normalize validates the options and applies defaults for any unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 115200
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	parity := strings.TrimSpace(strings.ToUpper(opts.Parity))
	switch parity {
	case "", "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	case "O", "ODD":
		parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}

	opts.Parity = parity
	return opts, nil
}

// Config converts the options into the serial.Config used to open name.
func (o PortOptions) Config(name string) (*serial.Config, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	return &serial.Config{
		Name:     name,
		Baud:     opts.BaudRate,
		Size:     byte(opts.DataBits),
		StopBits: serial.StopBits(opts.StopBits),
		Parity:   serial.Parity(opts.Parity[0]),
	}, nil
}

// OpenSerial opens the named serial port. Reads block until data arrives.
func OpenSerial(name string, opts PortOptions) (io.ReadWriteCloser, error) {
	cfg, err := opts.Config(name)
	if err != nil {
		return nil, err
	}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return port, nil
}

// Ports lists the serial ports present on the system, sorted by name.
func Ports() ([]string, error) {
	ports, err := bugserial.GetPortsList()
	if err != nil {
		return nil, err
	}
	sort.Strings(ports)
	return ports, nil
}
