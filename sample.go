package tiltmeter

import (
	"context"
	"fmt"
)

// Sample is one raw tri-axis acceleration reading.
type Sample struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (s Sample) String() string {
	return fmt.Sprintf("x %d y %d z %d", s.X, s.Y, s.Z)
}

// Sensor yields raw acceleration samples. NextSample blocks until the device
// has a new conversion available or ctx is done.
type Sensor interface {
	NextSample(ctx context.Context) (Sample, error)
}

// ModeSetter is implemented by sensors whose power mode can be switched.
type ModeSetter interface {
	SetMode(mode AccelMode) error
}

// Console accepts formatted text lines.
type Console interface {
	WriteLine(text string) error
}

// AccelMode is the accelerometer power mode.
type AccelMode int

const (
	ModeNormal AccelMode = iota
	ModeLowPower
	ModeHighResolution
)

func (m AccelMode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeLowPower:
		return "low power"
	case ModeHighResolution:
		return "high resolution"
	}
	return fmt.Sprintf("AccelMode(%d)", int(m))
}

// Reading is a sample together with its timestamp and, when filtering is
// enabled, the estimator output.
type Reading struct {
	Type            string       `json:"type"`
	TimestampMicros int64        `json:"timestamp_micros"`
	Mode            string       `json:"mode"`
	Sample          Sample       `json:"sample"`
	Report          *AngleReport `json:"report,omitempty"`
}

// ReadingSink receives every reading the monitor produces.
type ReadingSink interface {
	WriteReading(r Reading) error
}
