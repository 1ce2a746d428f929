package tiltmeter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

var csvHeader = []string{"timestamp_us", "mode", "x", "y", "z", "smoothed_x", "angle_degrees"}

// CSVWriter records readings as CSV rows.
type CSVWriter struct {
	writer        *csv.Writer
	headerWritten bool
}

func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{
		writer: csv.NewWriter(w),
	}
}

// Start writes every reading from readings until the channel is closed.
func (cw *CSVWriter) Start(readings <-chan Reading) error {
	for reading := range readings {
		if err := cw.WriteReading(reading); err != nil {
			return err
		}
	}
	return nil
}

func (cw *CSVWriter) Close() {
	cw.writer.Flush()
}

func (cw *CSVWriter) WriteReading(reading Reading) error {
	if !cw.headerWritten {
		if err := cw.writer.Write(csvHeader); err != nil {
			return fmt.Errorf("error writing CSV header: %w", err)
		}
		cw.headerWritten = true
	}

	smoothed, angle := "", ""
	if reading.Report != nil {
		smoothed = strconv.FormatFloat(reading.Report.SmoothedX, 'f', 6, 64)
		angle = strconv.FormatFloat(reading.Report.AngleDegrees, 'f', 3, 64)
	}

	if err := cw.writer.Write([]string{
		strconv.FormatInt(reading.TimestampMicros, 10),
		reading.Mode,
		strconv.Itoa(reading.Sample.X),
		strconv.Itoa(reading.Sample.Y),
		strconv.Itoa(reading.Sample.Z),
		smoothed,
		angle,
	}); err != nil {
		return fmt.Errorf("error writing CSV: %w", err)
	}
	cw.writer.Flush()
	return cw.writer.Error()
}
