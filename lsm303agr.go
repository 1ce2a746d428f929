package tiltmeter

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	lsm303agrAccelAddr = 0x19

	// Registers
	regWhoAmIA    = 0x0F
	regCtrlReg1A  = 0x20
	regCtrlReg4A  = 0x23
	regStatusRegA = 0x27
	regOutXLA     = 0x28

	// Setting the top bit of the sub-address auto-increments multi-byte reads.
	autoIncrement = 0x80

	accelID = 0x33

	// CTRL_REG1_A
	ctrl1XYZEnable byte = 0b0000_0111
	ctrl1LowPower  byte = 0b0000_1000
	ctrl1ODRMask   byte = 0b1111_0000

	// CTRL_REG4_A
	ctrl4BlockUpdate byte = 0b1000_0000
	ctrl4HighRes     byte = 0b0000_1000

	// STATUS_REG_A
	statusXYZNewData byte = 0b0000_1000
	statusXYZOverrun byte = 0b1000_0000
)

var (
	// ErrWrongDevice is returned when WHO_AM_I_A does not read 0x33.
	ErrWrongDevice = errors.New("lsm303agr: accelerometer not found")
	// ErrInvalidMode is returned for an unknown power mode or data rate.
	ErrInvalidMode = errors.New("lsm303agr: invalid mode")
)

// AccelODR is the accelerometer output data rate.
type AccelODR byte

const (
	ODRPowerDown AccelODR = iota
	ODR1Hz
	ODR10Hz
	ODR25Hz
	ODR50Hz
	ODR100Hz
	ODR200Hz
	ODR400Hz
)

// Bus is a register-level view of one I2C device.
type Bus interface {
	ReadReg(reg byte, b []byte) error
	WriteReg(reg, value byte) error
	Close() error
}

// AccelStatus is the decoded STATUS_REG_A.
type AccelStatus struct {
	XYZNewData bool
	XYZOverrun bool
}

// LSM303AGR drives the accelerometer half of an LSM303AGR. Samples are
// reported in milli-g at the default ±2 g full scale.
type LSM303AGR struct {
	bus  Bus
	mode AccelMode

	// StatusPoll is the pause between status reads in NextSample.
	StatusPoll time.Duration
}

// NewLSM303AGR checks the accelerometer ID on bus and returns a driver in
// normal mode. Call Init before sampling.
func NewLSM303AGR(bus Bus) (*LSM303AGR, error) {
	id, err := readByte(bus, regWhoAmIA)
	if err != nil {
		return nil, fmt.Errorf("lsm303agr: could not read accelerometer ID: %w", err)
	}
	if id != accelID {
		return nil, fmt.Errorf("%w: unexpected ID %#x", ErrWrongDevice, id)
	}

	return &LSM303AGR{
		bus:        bus,
		mode:       ModeNormal,
		StatusPoll: time.Millisecond,
	}, nil
}

// Init enables block data update and all three axes.
func (d *LSM303AGR) Init() error {
	if err := d.config(regCtrlReg4A, ^ctrl4BlockUpdate, ctrl4BlockUpdate); err != nil {
		return fmt.Errorf("lsm303agr: could not enable block data update: %w", err)
	}
	if err := d.config(regCtrlReg1A, ^ctrl1XYZEnable, ctrl1XYZEnable); err != nil {
		return fmt.Errorf("lsm303agr: could not enable axes: %w", err)
	}
	return nil
}

// SetOutputDataRate sets the accelerometer output data rate.
func (d *LSM303AGR) SetOutputDataRate(odr AccelODR) error {
	if odr > ODR400Hz {
		return fmt.Errorf("%w: data rate %d", ErrInvalidMode, odr)
	}
	if err := d.config(regCtrlReg1A, ^ctrl1ODRMask, byte(odr)<<4); err != nil {
		return fmt.Errorf("lsm303agr: could not set data rate: %w", err)
	}
	return nil
}

// SetMode switches between normal, low power and high resolution mode.
func (d *LSM303AGR) SetMode(mode AccelMode) error {
	var lp, hr byte
	switch mode {
	case ModeNormal:
	case ModeLowPower:
		lp = ctrl1LowPower
	case ModeHighResolution:
		hr = ctrl4HighRes
	default:
		return fmt.Errorf("%w: %v", ErrInvalidMode, mode)
	}

	// LPen and HR must never be set together, so clear before setting.
	if err := d.config(regCtrlReg4A, ^ctrl4HighRes, 0); err != nil {
		return fmt.Errorf("lsm303agr: could not set %v mode: %w", mode, err)
	}
	if err := d.config(regCtrlReg1A, ^ctrl1LowPower, lp); err != nil {
		return fmt.Errorf("lsm303agr: could not set %v mode: %w", mode, err)
	}
	if err := d.config(regCtrlReg4A, ^ctrl4HighRes, hr); err != nil {
		return fmt.Errorf("lsm303agr: could not set %v mode: %w", mode, err)
	}

	d.mode = mode
	return nil
}

// Mode returns the current power mode.
func (d *LSM303AGR) Mode() AccelMode {
	return d.mode
}

// Status reads STATUS_REG_A.
func (d *LSM303AGR) Status() (AccelStatus, error) {
	b, err := readByte(d.bus, regStatusRegA)
	if err != nil {
		return AccelStatus{}, fmt.Errorf("lsm303agr: could not read status: %w", err)
	}
	return AccelStatus{
		XYZNewData: b&statusXYZNewData != 0,
		XYZOverrun: b&statusXYZOverrun != 0,
	}, nil
}

// Acceleration reads the output registers and converts them to milli-g.
func (d *LSM303AGR) Acceleration() (Sample, error) {
	buf := make([]byte, 6)
	if err := d.bus.ReadReg(regOutXLA|autoIncrement, buf); err != nil {
		return Sample{}, fmt.Errorf("lsm303agr: could not read acceleration: %w", err)
	}

	shift, scale := d.resolution()
	axis := func(b []byte) int {
		raw := int16(binary.LittleEndian.Uint16(b))
		return int(raw>>shift) * scale
	}

	return Sample{
		X: axis(buf[0:2]),
		Y: axis(buf[2:4]),
		Z: axis(buf[4:6]),
	}, nil
}

// resolution returns the right shift of the left-justified output and the
// mg per digit for the current mode.
func (d *LSM303AGR) resolution() (uint, int) {
	switch d.mode {
	case ModeLowPower:
		return 8, 16
	case ModeHighResolution:
		return 4, 1
	default:
		return 6, 4
	}
}

// NextSample polls the status register until a new XYZ set is available
// and returns it.
func (d *LSM303AGR) NextSample(ctx context.Context) (Sample, error) {
	for {
		select {
		case <-ctx.Done():
			return Sample{}, ctx.Err()
		default:
		}

		st, err := d.Status()
		if err != nil {
			return Sample{}, err
		}
		if st.XYZNewData {
			return d.Acceleration()
		}

		if d.StatusPoll > 0 {
			time.Sleep(d.StatusPoll)
		}
	}
}

// Close powers the accelerometer down and releases the bus.
func (d *LSM303AGR) Close() error {
	err := d.SetOutputDataRate(ODRPowerDown)
	if cerr := d.bus.Close(); err == nil {
		err = cerr
	}
	return err
}

// config clears the bits outside mask in reg and sets flag.
func (d *LSM303AGR) config(reg, mask, flag byte) error {
	cfg, err := readByte(d.bus, reg)
	if err != nil {
		return fmt.Errorf("could not read %#x: %w", reg, err)
	}
	cfg &= mask
	cfg |= flag
	if err := d.bus.WriteReg(reg, cfg); err != nil {
		return fmt.Errorf("could not write %#x: %w", reg, err)
	}
	return nil
}

func readByte(bus Bus, reg byte) (byte, error) {
	b := make([]byte, 1)
	if err := bus.ReadReg(reg, b); err != nil {
		return 0, err
	}
	return b[0], nil
}
