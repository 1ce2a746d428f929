package tiltmeter

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// PeriphBus talks to one I2C device through periph.
type PeriphBus struct {
	bus i2c.BusCloser
	dev i2c.Dev
}

// OpenPeriphBus initializes the host and opens the named bus ("" selects
// the first one available).
func OpenPeriphBus(name string, addr uint16) (*PeriphBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph: could not initialize host: %w", err)
	}

	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("periph: could not open I2C bus %q: %w", name, err)
	}

	return &PeriphBus{
		bus: bus,
		dev: i2c.Dev{Bus: bus, Addr: addr},
	}, nil
}

func (p *PeriphBus) ReadReg(reg byte, b []byte) error {
	return p.dev.Tx([]byte{reg}, b)
}

func (p *PeriphBus) WriteReg(reg, value byte) error {
	return p.dev.Tx([]byte{reg, value}, nil)
}

func (p *PeriphBus) Close() error {
	return p.bus.Close()
}

// I2CBuses lists the names of the I2C buses periph knows about.
func I2CBuses() ([]string, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph: could not initialize host: %w", err)
	}

	var names []string
	for _, ref := range i2creg.All() {
		names = append(names, ref.Name)
	}
	return names, nil
}
