package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// NewRealSerialMux opens the serial port at path with opts and wraps it in a
// SerialMux called name.
func NewRealSerialMux(name, path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s port %s: %w", name, path, err)
	}

	return NewSerialMux[serial.Port](name, port), nil
}

// ListPorts returns the serial device paths visible to the host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
