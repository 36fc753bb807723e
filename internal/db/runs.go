package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/verumIgnis/busmapgen/internal/metrics"
)

// timeLayout has a fixed width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000Z"

func now() string {
	return time.Now().UTC().Format(timeLayout)
}

// ErrRunNotFound is returned when a render run id is unknown
var ErrRunNotFound = errors.New("render run not found")

// RunStatus is the lifecycle state of a stored render run
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunFinished RunStatus = "finished"
	RunFailed   RunStatus = "failed"
)

// NewRun describes a render about to start
type NewRun struct {
	Preset         string
	BoundingBox    []float64
	MetersPerPixel float64
	Width          int
	Height         int
}

// Outcome is what a finished render reports back
type Outcome struct {
	Total      int
	Drawn      int
	Frequency  metrics.Running
	Tally      map[string]int
	OutputPath string
}

// Run is a stored render run
type Run struct {
	ID              string          `json:"runId"`
	CreatedAt       time.Time       `json:"createdAt"`
	FinishedAt      *time.Time      `json:"finishedAt,omitempty"`
	Status          RunStatus       `json:"status"`
	Preset          string          `json:"preset,omitempty"`
	BoundingBox     []float64       `json:"boundingBox"`
	MetersPerPixel  float64         `json:"metersPerPixel"`
	Width           int             `json:"width"`
	Height          int             `json:"height"`
	Total           int             `json:"totalRoutes"`
	Drawn           int             `json:"drawnRoutes"`
	Frequency       metrics.Running `json:"frequency"`
	FrequencyStdDev float64         `json:"frequencyStdDev"`
	OutputPath      string          `json:"-"`
	Error           string          `json:"error,omitempty"`
	Tally           []TallyEntry    `json:"tally,omitempty"`
}

// TallyEntry is the number of routes rejected for one reason
type TallyEntry struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// CreateRun records a new run in the running state and returns its id
func (db *DB) CreateRun(ctx context.Context, r NewRun) (string, error) {
	bbox, err := json.Marshal(r.BoundingBox)
	if err != nil {
		return "", fmt.Errorf("failed to encode bounding box: %w", err)
	}

	db.LockWrite()
	defer db.UnlockWrite()

	id := uuid.NewString()
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO render_runs (run_id, created_at, status, preset, bbox, meters_per_pixel, width, height)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, now(), string(RunRunning), r.Preset, string(bbox), r.MetersPerPixel, r.Width, r.Height)
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// FinishRun stores the counts, frequency statistics and tally of a completed run
func (db *DB) FinishRun(ctx context.Context, id string, o Outcome) error {
	db.LockWrite()
	defer db.UnlockWrite()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE render_runs SET
			finished_at = ?, status = ?, total_routes = ?, drawn_routes = ?,
			frequency_count = ?, frequency_mean = ?, frequency_stddev = ?, frequency_min = ?, frequency_max = ?,
			output_path = ?
		WHERE run_id = ?
	`, now(), string(RunFinished), o.Total, o.Drawn,
		o.Frequency.Count, o.Frequency.Mean, o.Frequency.StdDev(), o.Frequency.Min, o.Frequency.Max,
		o.OutputPath, id)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}

	for reason, count := range o.Tally {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO render_tally (run_id, reason, count) VALUES (?, ?, ?)
			ON CONFLICT (run_id, reason) DO UPDATE SET count = excluded.count
		`, id, reason, count); err != nil {
			return fmt.Errorf("failed to store tally for %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", id, err)
	}
	return nil
}

// FailRun marks a run as failed with the cause
func (db *DB) FailRun(ctx context.Context, id string, cause error) error {
	db.LockWrite()
	defer db.UnlockWrite()

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := db.conn.ExecContext(ctx, `
		UPDATE render_runs SET finished_at = ?, status = ?, error = ? WHERE run_id = ?
	`, now(), string(RunFailed), msg, id)
	if err != nil {
		return fmt.Errorf("failed to mark run %s failed: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

const runColumns = `run_id, created_at, finished_at, status, preset, bbox, meters_per_pixel, width, height,
	total_routes, drawn_routes, frequency_count, frequency_mean, frequency_stddev, frequency_min, frequency_max,
	output_path, error`

// ListRuns returns the most recent runs first, without their tallies
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx, `SELECT `+runColumns+` FROM render_runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRun returns one run with its tally sorted by reason
func (db *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	run, err := scanRun(db.conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM render_runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx, `SELECT reason, count FROM render_tally WHERE run_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query tally for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var e TallyEntry
		if err := rows.Scan(&e.Reason, &e.Count); err != nil {
			return nil, fmt.Errorf("failed to scan tally: %w", err)
		}
		run.Tally = append(run.Tally, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(run.Tally, func(i, j int) bool { return run.Tally[i].Reason < run.Tally[j].Reason })
	return run, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		run        Run
		createdAt  string
		finishedAt sql.NullString
		status     string
		bbox       string
		count      int
		mean       float64
		stddev     float64
		minFreq    float64
		maxFreq    float64
	)
	err := s.Scan(&run.ID, &createdAt, &finishedAt, &status, &run.Preset, &bbox, &run.MetersPerPixel,
		&run.Width, &run.Height, &run.Total, &run.Drawn, &count, &mean, &stddev, &minFreq, &maxFreq,
		&run.OutputPath, &run.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Status = RunStatus(status)
	if t, err := time.Parse(timeLayout, createdAt); err == nil {
		run.CreatedAt = t
	}
	if finishedAt.Valid {
		if t, err := time.Parse(timeLayout, finishedAt.String); err == nil {
			run.FinishedAt = &t
		}
	}
	if err := json.Unmarshal([]byte(bbox), &run.BoundingBox); err != nil {
		return nil, fmt.Errorf("run %s has a malformed bounding box: %w", run.ID, err)
	}

	freq := metrics.Resume(mean, stddev, count)
	if count > 0 {
		freq.Min, freq.Max = minFreq, maxFreq
	}
	run.Frequency = *freq
	run.FrequencyStdDev = freq.StdDev()
	return &run, nil
}
