package tiltmeter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

const maxConsecutiveErrors = 10

var (
	// ErrTooManyErrors is returned once maxConsecutiveErrors malformed sample
	// lines arrive in a row.
	ErrTooManyErrors = errors.New("too many consecutive read errors")
	// ErrMalformedLine marks a line that looks like a sample but does not parse.
	ErrMalformedLine = errors.New("malformed sample line")
)

// SerialSensor reads samples printed as "x <int> y <int> z <int>" by a
// board running the accel example on its debug UART.
type SerialSensor struct {
	scanner           *bufio.Scanner
	closer            io.Closer
	consecutiveErrors int
	log               *logrus.Entry

	startOnce sync.Once
	closeOnce sync.Once
	lines     chan scanResult
	done      chan struct{}
}

type scanResult struct {
	line string
	err  error
}

// NewSerialSensor reads samples from r. Lines are read on a separate
// goroutine so that NextSample can return as soon as its context is done.
func NewSerialSensor(r io.Reader) *SerialSensor {
	s := &SerialSensor{
		scanner: bufio.NewScanner(r),
		log:     logrus.WithField("component", "serial_sensor"),
		lines:   make(chan scanResult),
		done:    make(chan struct{}),
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenSerialSensor opens portName at baud and reads samples from it.
func OpenSerialSensor(portName string, baud int) (*SerialSensor, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("serial: could not open %s: %w", portName, err)
	}
	return NewSerialSensor(port), nil
}

// NextSample returns the next sample line, skipping anything else the
// board prints.
func (s *SerialSensor) NextSample(ctx context.Context) (Sample, error) {
	for {
		select {
		case <-ctx.Done():
			return Sample{}, ctx.Err()
		default:
		}

		if s.consecutiveErrors >= maxConsecutiveErrors {
			return Sample{}, fmt.Errorf("%w (%d)", ErrTooManyErrors, s.consecutiveErrors)
		}

		s.startOnce.Do(func() { go s.readLines() })

		var res scanResult
		select {
		case <-ctx.Done():
			return Sample{}, ctx.Err()
		case r, ok := <-s.lines:
			if !ok {
				return Sample{}, io.EOF
			}
			res = r
		}
		if res.err != nil {
			return Sample{}, fmt.Errorf("serial: could not read line: %w", res.err)
		}

		line := strings.TrimSpace(res.line)
		sample, ok, err := ParseSampleLine(line)
		if err != nil {
			s.consecutiveErrors++
			s.log.WithError(err).Warnf("Skipping line %q", line)
			continue
		}
		if !ok {
			s.log.Debugf("Board: %s", line)
			continue
		}
		s.consecutiveErrors = 0

		return sample, nil
	}
}

// readLines feeds s.lines until the reader is exhausted or s is closed.
func (s *SerialSensor) readLines() {
	defer close(s.lines)

	for s.scanner.Scan() {
		select {
		case s.lines <- scanResult{line: s.scanner.Text()}:
		case <-s.done:
			return
		}
	}
	if err := s.scanner.Err(); err != nil {
		select {
		case s.lines <- scanResult{err: err}:
		case <-s.done:
		}
	}
}

// Close stops the line reader and closes the underlying port, if any.
// Closing the port unblocks a pending read.
func (s *SerialSensor) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// ParseSampleLine parses the output of Sample.String. ok is false for lines
// that are not samples at all.
func ParseSampleLine(line string) (sample Sample, ok bool, err error) {
	if !strings.HasPrefix(line, "x ") {
		return Sample{}, false, nil
	}

	malformed := fmt.Errorf("%w: %q", ErrMalformedLine, line)

	f := strings.Fields(line)
	if len(f) != 6 || f[0] != "x" || f[2] != "y" || f[4] != "z" {
		return Sample{}, false, malformed
	}
	for i, dst := range []*int{&sample.X, &sample.Y, &sample.Z} {
		v, err := strconv.Atoi(f[2*i+1])
		if err != nil {
			return Sample{}, false, malformed
		}
		*dst = v
	}
	return sample, true, nil
}
