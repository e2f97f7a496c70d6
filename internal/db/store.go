package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/navfusion/internal/fusion"
	"github.com/banshee-data/navfusion/internal/session"
)

// timeLayout is fixed-width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RunSummary describes a stored run.
type RunSummary struct {
	session.RunInfo
	Points int `json:"points"`
}

// RecordRun implements session.PointRecorder.
func (db *DB) RecordRun(run session.RunInfo) error {
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("encode run config: %w", err)
	}
	_, err = db.Exec(
		`INSERT INTO runs (run_id, started_at, config) VALUES (?, ?, ?)`,
		run.ID, run.StartedAt.UTC().Format(timeLayout), string(cfg),
	)
	return err
}

// RecordPoint implements session.PointRecorder.
func (db *DB) RecordPoint(runID string, p session.Point) error {
	var gx, gy, gz, baro sql.NullFloat64
	if p.GPSFix != nil {
		gx = sql.NullFloat64{Float64: p.GPSFix[0], Valid: true}
		gy = sql.NullFloat64{Float64: p.GPSFix[1], Valid: true}
		gz = sql.NullFloat64{Float64: p.GPSFix[2], Valid: true}
	}
	if p.Baro != nil {
		baro = sql.NullFloat64{Float64: *p.Baro, Valid: true}
	}

	_, err := db.Exec(
		`INSERT INTO trajectory_points (
			run_id, step, time, px, py, pz, vx, vy, vz,
			var_x, var_y, var_z, gps_x, gps_y, gps_z, baro,
			gps_outcome, baro_outcome
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, p.Step, p.Time,
		p.State[0], p.State[1], p.State[2], p.State[3], p.State[4], p.State[5],
		p.PosVar[0], p.PosVar[1], p.PosVar[2],
		gx, gy, gz, baro,
		p.Report.GPS.String(), p.Report.Baro.String(),
	)
	if err != nil {
		return fmt.Errorf("insert point %d of run %s: %w", p.Step, runID, err)
	}
	return nil
}

// RunPoints returns the stored trajectory of a run in step order.
func (db *DB) RunPoints(runID string) ([]session.Point, error) {
	rows, err := db.Query(
		`SELECT step, time, px, py, pz, vx, vy, vz,
			var_x, var_y, var_z, gps_x, gps_y, gps_z, baro,
			gps_outcome, baro_outcome
		FROM trajectory_points WHERE run_id = ? ORDER BY step`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []session.Point
	for rows.Next() {
		var (
			p                session.Point
			gx, gy, gz, baro sql.NullFloat64
			gpsOut, baroOut  string
		)
		if err := rows.Scan(
			&p.Step, &p.Time,
			&p.State[0], &p.State[1], &p.State[2], &p.State[3], &p.State[4], &p.State[5],
			&p.PosVar[0], &p.PosVar[1], &p.PosVar[2],
			&gx, &gy, &gz, &baro,
			&gpsOut, &baroOut,
		); err != nil {
			return nil, err
		}
		if gx.Valid && gy.Valid && gz.Valid {
			p.GPSFix = &fusion.Vec3{gx.Float64, gy.Float64, gz.Float64}
		}
		if baro.Valid {
			v := baro.Float64
			p.Baro = &v
		}
		if err := p.Report.GPS.UnmarshalText([]byte(gpsOut)); err != nil {
			return nil, fmt.Errorf("step %d: %w", p.Step, err)
		}
		if err := p.Report.Baro.UnmarshalText([]byte(baroOut)); err != nil {
			return nil, fmt.Errorf("step %d: %w", p.Step, err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// ListRuns returns every stored run, newest first, with its point count.
func (db *DB) ListRuns() ([]RunSummary, error) {
	rows, err := db.Query(
		`SELECT r.run_id, r.started_at, r.config, COUNT(p.step)
		FROM runs r LEFT JOIN trajectory_points p ON p.run_id = r.run_id
		GROUP BY r.run_id
		ORDER BY r.started_at DESC, r.run_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			r         RunSummary
			startedAt string
			cfg       string
		)
		if err := rows.Scan(&r.ID, &startedAt, &cfg, &r.Points); err != nil {
			return nil, err
		}
		if r.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
			return nil, fmt.Errorf("run %s: started_at: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(cfg), &r.Config); err != nil {
			return nil, fmt.Errorf("run %s: config: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
