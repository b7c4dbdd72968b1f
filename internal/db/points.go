package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/geomeasure/internal/measure"
	"github.com/banshee-data/geomeasure/internal/monitoring"
)

// InsertPoint stores p at the end of the log.
func (db *DB) InsertPoint(p measure.Point) error {
	var accuracy sql.NullFloat64
	if p.Accuracy != nil {
		accuracy = sql.NullFloat64{Float64: *p.Accuracy, Valid: true}
	}
	_, err := db.Exec(
		`INSERT INTO points (id, latitude, longitude, height, accuracy, mode, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Latitude, p.Longitude, p.Height, accuracy, p.Mode.String(),
		p.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert point %s: %w", p.ID, err)
	}
	return nil
}

// DeletePoint removes the point with the given id.
func (db *DB) DeletePoint(id string) error {
	res, err := db.Exec(`DELETE FROM points WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete point %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// ListPoints returns every stored point in capture order.
func (db *DB) ListPoints() ([]measure.Point, error) {
	rows, err := db.Query(`SELECT id, latitude, longitude, height, accuracy, mode, captured_at
		FROM points ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []measure.Point
	for rows.Next() {
		var (
			p          measure.Point
			accuracy   sql.NullFloat64
			mode       string
			capturedAt string
		)
		if err := rows.Scan(&p.ID, &p.Latitude, &p.Longitude, &p.Height, &accuracy, &mode, &capturedAt); err != nil {
			return nil, err
		}
		if accuracy.Valid {
			v := accuracy.Float64
			p.Accuracy = &v
		}
		if p.Mode, err = measure.ParseMode(mode); err != nil {
			return nil, fmt.Errorf("point %s: %w", p.ID, err)
		}
		if p.Timestamp, err = time.Parse(time.RFC3339Nano, capturedAt); err != nil {
			return nil, fmt.Errorf("point %s: failed to parse captured_at: %w", p.ID, err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// Calibration is one recalibration of the inertial tracker against a known
// point.
type Calibration struct {
	PointID   string    `json:"point_id,omitempty"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Height    float64   `json:"height"`
	Residual  float64   `json:"residual_m"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordCalibration stores a calibration event.
func (db *DB) RecordCalibration(c Calibration) error {
	_, err := db.Exec(
		`INSERT INTO calibrations (point_id, latitude, longitude, height, residual_m, captured_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sql.NullString{String: c.PointID, Valid: c.PointID != ""},
		c.Latitude, c.Longitude, c.Height, c.Residual,
		c.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record calibration: %w", err)
	}
	return nil
}

// Calibrations returns the most recent calibrations, newest first.
func (db *DB) Calibrations(limit int) ([]Calibration, error) {
	rows, err := db.Query(`SELECT point_id, latitude, longitude, height, residual_m, captured_at
		FROM calibrations ORDER BY calibration_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Calibration
	for rows.Next() {
		var (
			c          Calibration
			pointID    sql.NullString
			capturedAt string
		)
		if err := rows.Scan(&pointID, &c.Latitude, &c.Longitude, &c.Height, &c.Residual, &capturedAt); err != nil {
			return nil, err
		}
		c.PointID = pointID.String
		if c.Timestamp, err = time.Parse(time.RFC3339Nano, capturedAt); err != nil {
			return nil, fmt.Errorf("failed to parse calibration time: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Recorder mirrors controller events into the database. Write failures are
// logged; the in-memory log stays authoritative for the running session.
type Recorder struct {
	db *DB
}

// NewRecorder returns a Recorder writing to db.
func NewRecorder(db *DB) *Recorder {
	return &Recorder{db: db}
}

func (r *Recorder) OnCapture(p measure.Point) {
	if err := r.db.InsertPoint(p); err != nil {
		monitoring.Logf("db: %v", err)
	}
}

func (r *Recorder) OnDelete(id string) {
	if err := r.db.DeletePoint(id); err != nil {
		monitoring.Logf("db: %v", err)
	}
}

func (r *Recorder) OnModeChange(m measure.Mode) {}
