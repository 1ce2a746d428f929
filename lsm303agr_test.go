package tiltmeter

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
)

type fakeBus struct {
	regs        [128]byte
	statusSeq   []byte
	statusReads int
	closed      bool
	readErr     error
}

func newFakeBus() *fakeBus {
	b := &fakeBus{}
	b.regs[regWhoAmIA] = accelID
	return b
}

func (b *fakeBus) ReadReg(reg byte, buf []byte) error {
	if b.readErr != nil {
		return b.readErr
	}
	base := reg &^ autoIncrement
	if base == regStatusRegA {
		b.statusReads++
		if len(b.statusSeq) > 0 {
			b.regs[regStatusRegA] = b.statusSeq[0]
			if len(b.statusSeq) > 1 {
				b.statusSeq = b.statusSeq[1:]
			}
		}
	}
	for i := range buf {
		buf[i] = b.regs[int(base)+i]
	}
	return nil
}

func (b *fakeBus) WriteReg(reg, value byte) error {
	b.regs[reg] = value
	return nil
}

func (b *fakeBus) Close() error {
	b.closed = true
	return nil
}

func (b *fakeBus) setAxes(x, y, z int16) {
	binary.LittleEndian.PutUint16(b.regs[regOutXLA:], uint16(x))
	binary.LittleEndian.PutUint16(b.regs[regOutXLA+2:], uint16(y))
	binary.LittleEndian.PutUint16(b.regs[regOutXLA+4:], uint16(z))
}

func TestNewLSM303AGRWrongDevice(t *testing.T) {
	bus := newFakeBus()
	bus.regs[regWhoAmIA] = 0x32

	if _, err := NewLSM303AGR(bus); !errors.Is(err, ErrWrongDevice) {
		t.Fatalf("err = %v, want ErrWrongDevice", err)
	}
}

func TestNewLSM303AGRReadError(t *testing.T) {
	bus := newFakeBus()
	bus.readErr = errors.New("nack")

	if _, err := NewLSM303AGR(bus); err == nil {
		t.Fatal("expected an error")
	}
}

func TestInit(t *testing.T) {
	bus := newFakeBus()
	bus.regs[regCtrlReg4A] = 0x01
	d, err := NewLSM303AGR(bus)
	if err != nil {
		t.Fatal(err)
	}

	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if got := bus.regs[regCtrlReg4A]; got != 0x81 {
		t.Errorf("CTRL_REG4_A = %#x, want 0x81", got)
	}
	if got := bus.regs[regCtrlReg1A] & 0x07; got != 0x07 {
		t.Errorf("axes = %#b, want all enabled", got)
	}
}

func TestSetOutputDataRate(t *testing.T) {
	bus := newFakeBus()
	bus.regs[regCtrlReg1A] = 0x07
	d, err := NewLSM303AGR(bus)
	if err != nil {
		t.Fatal(err)
	}

	if err := d.SetOutputDataRate(ODR50Hz); err != nil {
		t.Fatal(err)
	}
	if got := bus.regs[regCtrlReg1A]; got != 0x47 {
		t.Errorf("CTRL_REG1_A = %#x, want 0x47", got)
	}

	if err := d.SetOutputDataRate(AccelODR(9)); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("err = %v, want ErrInvalidMode", err)
	}
}

func TestSetMode(t *testing.T) {
	tests := []struct {
		mode   AccelMode
		lowPow bool
		hiRes  bool
	}{
		{ModeNormal, false, false},
		{ModeLowPower, true, false},
		{ModeHighResolution, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			bus := newFakeBus()
			// Start from the opposite configuration.
			bus.regs[regCtrlReg1A] = 0x4F
			bus.regs[regCtrlReg4A] = 0x88
			d, err := NewLSM303AGR(bus)
			if err != nil {
				t.Fatal(err)
			}

			if err := d.SetMode(tt.mode); err != nil {
				t.Fatal(err)
			}
			if got := bus.regs[regCtrlReg1A]&ctrl1LowPower != 0; got != tt.lowPow {
				t.Errorf("LPen = %v, want %v", got, tt.lowPow)
			}
			if got := bus.regs[regCtrlReg4A]&ctrl4HighRes != 0; got != tt.hiRes {
				t.Errorf("HR = %v, want %v", got, tt.hiRes)
			}
			if bus.regs[regCtrlReg1A]&0xF7 != 0x47 {
				t.Errorf("CTRL_REG1_A other bits changed: %#x", bus.regs[regCtrlReg1A])
			}
			if bus.regs[regCtrlReg4A]&ctrl4BlockUpdate == 0 {
				t.Error("block data update cleared")
			}
			if d.Mode() != tt.mode {
				t.Errorf("Mode() = %v, want %v", d.Mode(), tt.mode)
			}
		})
	}
}

func TestSetModeInvalid(t *testing.T) {
	d, err := NewLSM303AGR(newFakeBus())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.SetMode(AccelMode(7)); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("err = %v, want ErrInvalidMode", err)
	}
	if d.Mode() != ModeNormal {
		t.Errorf("mode changed to %v", d.Mode())
	}
}

func TestAcceleration(t *testing.T) {
	tests := []struct {
		mode    AccelMode
		x, y, z int16
		want    Sample
	}{
		{ModeHighResolution, 1000 << 4, -1000 << 4, 0, Sample{X: 1000, Y: -1000, Z: 0}},
		{ModeNormal, 250 << 6, -10 << 6, 3 << 6, Sample{X: 1000, Y: -40, Z: 12}},
		{ModeLowPower, 62 << 8, -62 << 8, 1 << 8, Sample{X: 992, Y: -992, Z: 16}},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			bus := newFakeBus()
			bus.setAxes(tt.x, tt.y, tt.z)
			d, err := NewLSM303AGR(bus)
			if err != nil {
				t.Fatal(err)
			}
			if err := d.SetMode(tt.mode); err != nil {
				t.Fatal(err)
			}

			got, err := d.Acceleration()
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Acceleration() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	bus := newFakeBus()
	bus.regs[regStatusRegA] = 0x88
	d, err := NewLSM303AGR(bus)
	if err != nil {
		t.Fatal(err)
	}

	st, err := d.Status()
	if err != nil {
		t.Fatal(err)
	}
	if !st.XYZNewData || !st.XYZOverrun {
		t.Errorf("status = %+v, want both flags", st)
	}
}

func TestNextSamplePollsUntilReady(t *testing.T) {
	bus := newFakeBus()
	bus.statusSeq = []byte{0x00, 0x00, statusXYZNewData}
	bus.setAxes(250<<6, 0, 245<<6)
	d, err := NewLSM303AGR(bus)
	if err != nil {
		t.Fatal(err)
	}
	d.StatusPoll = 0

	s, err := d.NextSample(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s != (Sample{X: 1000, Y: 0, Z: 980}) {
		t.Errorf("sample = %+v", s)
	}
	if bus.statusReads != 3 {
		t.Errorf("status read %d times, want 3", bus.statusReads)
	}
}

func TestNextSampleCanceled(t *testing.T) {
	d, err := NewLSM303AGR(newFakeBus())
	if err != nil {
		t.Fatal(err)
	}
	d.StatusPoll = 0

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.NextSample(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestClose(t *testing.T) {
	bus := newFakeBus()
	d, err := NewLSM303AGR(bus)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.SetOutputDataRate(ODR100Hz); err != nil {
		t.Fatal(err)
	}

	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if bus.regs[regCtrlReg1A]>>4 != byte(ODRPowerDown) {
		t.Errorf("CTRL_REG1_A = %#x, want powered down", bus.regs[regCtrlReg1A])
	}
	if !bus.closed {
		t.Error("bus not closed")
	}
}
