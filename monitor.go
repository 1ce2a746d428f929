package tiltmeter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const readingType = "accel"

// DefaultModes is the power mode cycle run before continuous polling.
var DefaultModes = []AccelMode{ModeNormal, ModeLowPower, ModeHighResolution}

// Monitor is the host loop: it pulls samples from a Sensor, optionally runs
// them through a TiltEstimator, prints them to a Console and hands every
// reading to the sinks.
type Monitor struct {
	sensor       Sensor
	console      Console
	estimator    *TiltEstimator
	sinks        []ReadingSink
	pollInterval time.Duration
	settleDelay  time.Duration
	modes        []AccelMode
	now          func() time.Time
	log          *logrus.Entry

	mode AccelMode

	mu   sync.Mutex
	last *Reading
}

// An Option configures a Monitor.
type Option func(m *Monitor)

// WithEstimator enables smoothing and angle output.
func WithEstimator(e *TiltEstimator) Option {
	return func(m *Monitor) {
		m.estimator = e
	}
}

// WithSinks adds reading sinks.
func WithSinks(sinks ...ReadingSink) Option {
	return func(m *Monitor) {
		m.sinks = append(m.sinks, sinks...)
	}
}

// WithPollInterval sets the pause between samples in the polling loop.
// The default is 100ms.
func WithPollInterval(d time.Duration) Option {
	return func(m *Monitor) {
		m.pollInterval = d
	}
}

// WithSettleDelay sets the wait after each mode switch. The default is 1s.
func WithSettleDelay(d time.Duration) Option {
	return func(m *Monitor) {
		m.settleDelay = d
	}
}

// WithModes replaces the power mode cycle. An empty list skips it.
func WithModes(modes ...AccelMode) Option {
	return func(m *Monitor) {
		m.modes = modes
	}
}

// WithClock replaces time.Now for reading timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// WithLogger replaces the logger.
func WithLogger(l *logrus.Entry) Option {
	return func(m *Monitor) {
		m.log = l
	}
}

func NewMonitor(sensor Sensor, console Console, opts ...Option) *Monitor {
	m := &Monitor{
		sensor:       sensor,
		console:      console,
		pollInterval: 100 * time.Millisecond,
		settleDelay:  time.Second,
		modes:        DefaultModes,
		now:          time.Now,
		log:          logrus.WithField("component", "monitor"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run prints "Start", runs the mode cycle, then polls until ctx is done or
// the sensor fails.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.console.WriteLine("Start"); err != nil {
		return err
	}

	if err := m.RunModeCycle(ctx); err != nil {
		return err
	}

	for {
		if err := sleep(ctx, m.pollInterval); err != nil {
			return err
		}
		if err := m.Step(ctx); err != nil {
			return err
		}
	}
}

// RunModeCycle switches through each configured power mode, waits for the
// sensor to settle and reports one sample per mode.
func (m *Monitor) RunModeCycle(ctx context.Context) error {
	setter, canSet := m.sensor.(ModeSetter)

	for _, mode := range m.modes {
		if err := m.console.WriteLine(mode.String() + " mode"); err != nil {
			return err
		}

		if canSet {
			if err := setter.SetMode(mode); err != nil {
				return fmt.Errorf("monitor: could not switch to %v mode: %w", mode, err)
			}
		} else {
			m.log.Debugf("Sensor cannot switch to %v mode", mode)
		}
		m.mode = mode

		if err := sleep(ctx, m.settleDelay); err != nil {
			return err
		}
		if err := m.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Step takes one sample and reports it.
func (m *Monitor) Step(ctx context.Context) error {
	sample, err := m.sensor.NextSample(ctx)
	if err != nil {
		return err
	}

	reading := Reading{
		Type:            readingType,
		TimestampMicros: m.now().UnixMicro(),
		Mode:            m.mode.String(),
		Sample:          sample,
	}

	if err := m.console.WriteLine(sample.String()); err != nil {
		return err
	}

	if m.estimator != nil {
		report := m.estimator.Update(sample.X)
		reading.Report = &report
		if err := m.console.WriteLine(FormatReport(report)); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.last = &reading
	m.mu.Unlock()

	for _, sink := range m.sinks {
		if err := sink.WriteReading(reading); err != nil {
			m.log.WithError(err).Warn("Error writing reading")
		}
	}
	return nil
}

// Last returns the most recent reading.
func (m *Monitor) Last() (Reading, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Reading{}, false
	}
	return *m.last, true
}

// Estimator returns the estimator, nil when filtering is off.
func (m *Monitor) Estimator() *TiltEstimator {
	return m.estimator
}

// FormatReport renders an AngleReport as a console line.
func FormatReport(r AngleReport) string {
	return fmt.Sprintf("angle %.2f smoothed %.4f", r.AngleDegrees, r.SmoothedX)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
