package rak811

import (
	"context"
	"errors"
	"io"

	"go.bug.st/serial"
)

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=rak811

// Transport represents an established, bidirectional byte stream to a
// RAK811 module.
//
// A Transport is assumed to be already connected and ready for use. It
// provides the low-level I/O primitives required to send AT commands and
// receive responses. Typical implementations include serial ports, TCP
// connections to emulators, or in-memory fakes used for testing.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to a RAK811 module.
//
// Dialer abstracts how the module connection is created (for example, via
// a serial port, TCP-based emulator, or test double) and is intended to be
// used during session construction only. Once a Transport is obtained, the
// Dialer is no longer needed.
type Dialer interface {
	// Dial creates and returns a connected Transport. It may perform
	// blocking operations and should respect cancellation and deadlines
	// provided by the context.
	Dial(ctx context.Context) (Transport, error)
}

// SerialDialer opens a RAK811 module over a serial port using
// go.bug.st/serial.
type SerialDialer struct {
	// PortName is the device path, e.g. "/dev/serial0".
	PortName string
	// Mode holds the serial parameters. When nil, 115200 8N1 is used,
	// the module's factory setting.
	Mode *serial.Mode
}

func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("rak811: context is nil")
	}
	if d.PortName == "" {
		return nil, errors.New("rak811: serial port name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		mode = &serial.Mode{
			BaudRate: 115200,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, err
	}
	// Drop anything the module emitted before we attached, e.g. boot
	// banners. A stale half-line would desync the first command.
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, err
	}
	return port, nil
}
