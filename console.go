package tiltmeter

import (
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
)

// TextConsole writes one line per call to w.
type TextConsole struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

// NewTextConsole returns a console writing to w.
func NewTextConsole(w io.Writer) *TextConsole {
	return &TextConsole{w: w}
}

// OpenSerialConsole returns a console writing to a UART.
func OpenSerialConsole(portName string, baud int) (*TextConsole, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("serial: could not open %s: %w", portName, err)
	}
	return &TextConsole{w: port, c: port}, nil
}

func (c *TextConsole) WriteLine(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := io.WriteString(c.w, text+"\n"); err != nil {
		return fmt.Errorf("console: could not write line: %w", err)
	}
	return nil
}

// Close closes the underlying port when the console owns one.
func (c *TextConsole) Close() error {
	if c.c == nil {
		return nil
	}
	return c.c.Close()
}

// SerialPorts lists the serial ports present on the host.
func SerialPorts() ([]string, error) {
	return serial.GetPortsList()
}
