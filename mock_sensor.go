package tiltmeter

import (
	"context"
	"math"
	"time"
)

// MockSensor rocks a virtual board back and forth about the y axis so the
// x reading sweeps between -G and +G.
type MockSensor struct {
	// G is the raw reading for 1 g.
	G float64
	// MaxTilt is the peak tilt in degrees.
	MaxTilt float64
	// Steps is the number of samples per full rock.
	Steps int
	// Interval is the time between conversions.
	Interval time.Duration

	step int
	mode AccelMode
}

// NewMockSensor returns a sensor rocking ±60° every 100 samples at 50 Hz.
func NewMockSensor() *MockSensor {
	return &MockSensor{
		G:        DefaultSensitivity,
		MaxTilt:  60,
		Steps:    100,
		Interval: 20 * time.Millisecond,
	}
}

func (m *MockSensor) NextSample(ctx context.Context) (Sample, error) {
	if m.Interval > 0 {
		t := time.NewTimer(m.Interval)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Sample{}, ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return Sample{}, err
	}

	steps := m.Steps
	if steps <= 0 {
		steps = 1
	}
	phase := 2 * math.Pi * float64(m.step) / float64(steps)
	m.step++

	tilt := m.MaxTilt * math.Sin(phase) * math.Pi / 180
	return Sample{
		X: int(math.Round(m.G * math.Sin(tilt))),
		Y: 0,
		Z: int(math.Round(m.G * math.Cos(tilt))),
	}, nil
}

// SetMode records the mode; the synthetic signal does not depend on it.
func (m *MockSensor) SetMode(mode AccelMode) error {
	m.mode = mode
	return nil
}

func (m *MockSensor) Close() error {
	return nil
}
