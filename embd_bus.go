package tiltmeter

import (
	"fmt"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all"
)

// EmbdBus talks to one I2C device through embd. It is the fallback for
// boards periph does not detect.
type EmbdBus struct {
	bus  embd.I2CBus
	addr byte
}

// OpenEmbdBus opens I2C bus number l.
func OpenEmbdBus(l byte, addr byte) (*EmbdBus, error) {
	if err := embd.InitI2C(); err != nil {
		return nil, fmt.Errorf("embd: could not initialize I2C: %w", err)
	}

	return &EmbdBus{
		bus:  embd.NewI2CBus(l),
		addr: addr,
	}, nil
}

func (e *EmbdBus) ReadReg(reg byte, b []byte) error {
	return e.bus.ReadFromReg(e.addr, reg, b)
}

func (e *EmbdBus) WriteReg(reg, value byte) error {
	return e.bus.WriteByteToReg(e.addr, reg, value)
}

func (e *EmbdBus) Close() error {
	if err := e.bus.Close(); err != nil {
		return err
	}
	return embd.CloseI2C()
}
