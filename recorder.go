package tiltmeter

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Recorder stores readings in SQLite and keeps the most recent ones in
// memory.
type Recorder struct {
	db *sql.DB

	mu           sync.Mutex
	readings     []Reading // circular buffer of recent readings
	maxReadings  int
	currentIndex int
	count        int
}

// NewRecorder opens (or creates) the database at path.
func NewRecorder(path string, keep int) (*Recorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("recorder: could not open %s: %w", path, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS readings (
			timestamp_micros INTEGER PRIMARY KEY,
			mode TEXT,
			x INTEGER,
			y INTEGER,
			z INTEGER,
			smoothed_x REAL,
			angle_degrees REAL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("recorder: could not create table: %w", err)
	}

	if keep <= 0 {
		keep = 1000
	}

	return &Recorder{
		db:          db,
		readings:    make([]Reading, keep),
		maxReadings: keep,
	}, nil
}

func (r *Recorder) Close() error {
	return r.db.Close()
}

// WriteReading stores reading in the buffer and the database.
func (r *Recorder) WriteReading(reading Reading) error {
	r.mu.Lock()
	r.readings[r.currentIndex] = reading
	r.currentIndex = (r.currentIndex + 1) % r.maxReadings
	if r.count < r.maxReadings {
		r.count++
	}
	r.mu.Unlock()

	var smoothed, angle sql.NullFloat64
	if reading.Report != nil {
		smoothed = sql.NullFloat64{Float64: reading.Report.SmoothedX, Valid: true}
		angle = sql.NullFloat64{Float64: reading.Report.AngleDegrees, Valid: true}
	}

	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO readings (
			timestamp_micros,
			mode,
			x,
			y,
			z,
			smoothed_x,
			angle_degrees
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		reading.TimestampMicros,
		reading.Mode,
		reading.Sample.X,
		reading.Sample.Y,
		reading.Sample.Z,
		smoothed,
		angle,
	)
	if err != nil {
		return fmt.Errorf("recorder: could not insert reading: %w", err)
	}
	return nil
}

// Recent returns the buffered readings, oldest first.
func (r *Recorder) Recent() []Reading {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Reading, 0, r.count)
	start := (r.currentIndex - r.count + r.maxReadings) % r.maxReadings
	for i := 0; i < r.count; i++ {
		out = append(out, r.readings[(start+i)%r.maxReadings])
	}
	return out
}

// GetHistoricalData returns the stored readings with timestamps in
// [startTime, endTime], oldest first.
func (r *Recorder) GetHistoricalData(startTime, endTime int64) ([]Reading, error) {
	rows, err := r.db.Query(`
		SELECT
			timestamp_micros,
			mode,
			x,
			y,
			z,
			smoothed_x,
			angle_degrees
		FROM readings
		WHERE timestamp_micros BETWEEN ? AND ?
		ORDER BY timestamp_micros ASC
	`, startTime, endTime)
	if err != nil {
		return nil, fmt.Errorf("recorder: could not query history: %w", err)
	}
	defer rows.Close()

	var results []Reading

	for rows.Next() {
		var (
			point           Reading
			smoothed, angle sql.NullFloat64
		)
		err := rows.Scan(
			&point.TimestampMicros,
			&point.Mode,
			&point.Sample.X,
			&point.Sample.Y,
			&point.Sample.Z,
			&smoothed,
			&angle,
		)
		if err != nil {
			return nil, fmt.Errorf("recorder: could not scan row: %w", err)
		}
		point.Type = readingType
		if smoothed.Valid && angle.Valid {
			point.Report = &AngleReport{SmoothedX: smoothed.Float64, AngleDegrees: angle.Float64}
		}
		results = append(results, point)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}
