package tiltmeter

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestParseSampleLine(t *testing.T) {
	tests := []struct {
		line    string
		want    Sample
		ok      bool
		wantErr bool
	}{
		{"x 12 y -3 z 980", Sample{12, -3, 980}, true, false},
		{"x -1000 y 0 z 0", Sample{-1000, 0, 0}, true, false},
		{"Start", Sample{}, false, false},
		{"normal mode", Sample{}, false, false},
		{"", Sample{}, false, false},
		{"x 12 y", Sample{}, false, true},
		{"x a y b z c", Sample{}, false, true},
		{"x 1 y 2 z 3junk", Sample{}, false, true},
		{"x 1 y 2 z 3 w 4", Sample{}, false, true},
		{"x 1 q 2 z 3", Sample{}, false, true},
		{"x  7   y 8 z   9", Sample{7, 8, 9}, true, false},
	}

	for _, tt := range tests {
		got, ok, err := ParseSampleLine(tt.line)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: err = %v, wantErr %v", tt.line, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrMalformedLine) {
			t.Errorf("%q: err = %v, want ErrMalformedLine", tt.line, err)
		}
		if ok != tt.ok || got != tt.want {
			t.Errorf("%q: got %+v, %v; want %+v, %v", tt.line, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSampleStringRoundTrip(t *testing.T) {
	s := Sample{X: -4, Y: 17, Z: 1012}
	got, ok, err := ParseSampleLine(s.String())
	if err != nil || !ok || got != s {
		t.Errorf("ParseSampleLine(%q) = %+v, %v, %v", s.String(), got, ok, err)
	}
}

func TestSerialSensorSkipsBoardChatter(t *testing.T) {
	input := strings.Join([]string{
		"Start",
		"normal mode",
		"x 1 y 2 z 3",
		"low power mode",
		"x bogus",
		"x -16 y 0 z 992",
	}, "\r\n") + "\r\n"

	s := NewSerialSensor(strings.NewReader(input))
	ctx := context.Background()

	want := []Sample{{1, 2, 3}, {-16, 0, 992}}
	for i, w := range want {
		got, err := s.NextSample(ctx)
		if err != nil {
			t.Fatalf("sample %d: %v", i, err)
		}
		if got != w {
			t.Errorf("sample %d = %+v, want %+v", i, got, w)
		}
	}

	if _, err := s.NextSample(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestSerialSensorTooManyErrors(t *testing.T) {
	input := strings.Repeat("x ??\n", maxConsecutiveErrors) + "x 1 y 1 z 1\n"

	s := NewSerialSensor(strings.NewReader(input))
	if _, err := s.NextSample(context.Background()); !errors.Is(err, ErrTooManyErrors) {
		t.Errorf("err = %v, want ErrTooManyErrors", err)
	}
}

func TestSerialSensorCanceled(t *testing.T) {
	s := NewSerialSensor(strings.NewReader("x 1 y 1 z 1\n"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.NextSample(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestSerialSensorCanceledWhileWaiting(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	s := NewSerialSensor(pr)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		_, err := s.NextSample(ctx)
		errc <- err
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want context.DeadlineExceeded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("NextSample did not return after the context expired")
	}
}

func TestSerialSensorResumesAfterCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	s := NewSerialSensor(pr)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.NextSample(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}

	go pw.Write([]byte("x 5 y 6 z 7\n"))

	got, err := s.NextSample(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if want := (Sample{5, 6, 7}); got != want {
		t.Errorf("sample = %+v, want %+v", got, want)
	}
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestSerialSensorClose(t *testing.T) {
	rc := &closeRecorder{Reader: strings.NewReader("")}
	s := NewSerialSensor(rc)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if !rc.closed {
		t.Error("reader not closed")
	}

	if err := NewSerialSensor(strings.NewReader("")).Close(); err != nil {
		t.Errorf("Close without closer = %v", err)
	}
}
