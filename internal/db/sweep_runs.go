package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/copresence/internal/meeting"
)

// SweepRun is one all-pairs sweep.
type SweepRun struct {
	RunID        string        `json:"run_id"`
	Started      time.Time     `json:"started"`
	Duration     time.Duration `json:"duration_ns"`
	MaxStaleness time.Duration `json:"max_staleness_ns"`
	MaxDistance  float64       `json:"max_distance_m"`
	Pairs        int           `json:"pairs"`
	Meetings     int           `json:"meetings"`
	Failed       int           `json:"failed"`
}

// SweepResult is the stored outcome of one pair in a sweep. Meeting fields
// are nil unless Outcome is "meeting".
type SweepResult struct {
	RunID      string     `json:"run_id"`
	UserA      string     `json:"uid1"`
	UserB      string     `json:"uid2"`
	Outcome    string     `json:"outcome"`
	MeetingAt  *time.Time `json:"meeting_at,omitempty"`
	Floor      *int       `json:"floor,omitempty"`
	X          *float64   `json:"x,omitempty"`
	Y          *float64   `json:"y,omitempty"`
	DistanceM  *float64   `json:"distance_m,omitempty"`
	ElapsedS   *float64   `json:"elapsed_s,omitempty"`
	Confidence int        `json:"confidence"`
	Error      string     `json:"error,omitempty"`
}

// NewSweepResult flattens a meeting query into a row. A non-nil err is
// stored in Error and marks the pair as failed.
func NewSweepResult(runID string, res meeting.Result, err error) SweepResult {
	row := SweepResult{
		RunID:      runID,
		UserA:      res.UserA,
		UserB:      res.UserB,
		Outcome:    res.Outcome.String(),
		Confidence: res.Confidence,
	}
	if err != nil {
		row.Outcome = "error"
		row.Error = err.Error()
		return row
	}
	if m := res.Meeting; m != nil {
		at := m.Timestamp
		floor := m.Floor
		x, y := m.X, m.Y
		dist := m.Distance
		elapsed := m.ElapsedSeconds()
		row.MeetingAt = &at
		row.Floor = &floor
		row.X, row.Y = &x, &y
		row.DistanceM = &dist
		row.ElapsedS = &elapsed
	}
	return row
}

// RecordSweep stores run and its results atomically.
func (db *DB) RecordSweep(run SweepRun, results []SweepResult) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin sweep insert: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO sweep_runs (run_id, started_unix_ns, duration_ns, max_staleness_ns, max_distance_m, pairs, meetings, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Started.UnixNano(), int64(run.Duration), int64(run.MaxStaleness),
		run.MaxDistance, run.Pairs, run.Meetings, run.Failed,
	); err != nil {
		return fmt.Errorf("insert sweep run %s: %w", run.RunID, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO sweep_results (run_id, uid1, uid2, outcome, meeting_unix_ns, floor, x, y, distance_m, elapsed_s, confidence, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare sweep result insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		var meetingNS sql.NullInt64
		if r.MeetingAt != nil {
			meetingNS = sql.NullInt64{Int64: r.MeetingAt.UnixNano(), Valid: true}
		}
		var errText sql.NullString
		if r.Error != "" {
			errText = sql.NullString{String: r.Error, Valid: true}
		}
		if _, err := stmt.Exec(run.RunID, r.UserA, r.UserB, r.Outcome, meetingNS,
			r.Floor, r.X, r.Y, r.DistanceM, r.ElapsedS, r.Confidence, errText); err != nil {
			return fmt.Errorf("insert sweep result %s/%s: %w", r.UserA, r.UserB, err)
		}
	}
	return tx.Commit()
}

// SweepRuns lists stored runs, newest first.
func (db *DB) SweepRuns() ([]SweepRun, error) {
	rows, err := db.Query(`
		SELECT run_id, started_unix_ns, duration_ns, max_staleness_ns, max_distance_m, pairs, meetings, failed
		FROM sweep_runs
		ORDER BY started_unix_ns DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sweep runs: %w", err)
	}
	defer rows.Close()

	var runs []SweepRun
	for rows.Next() {
		var (
			r                       SweepRun
			started, dur, staleness int64
		)
		if err := rows.Scan(&r.RunID, &started, &dur, &staleness, &r.MaxDistance, &r.Pairs, &r.Meetings, &r.Failed); err != nil {
			return nil, err
		}
		r.Started = time.Unix(0, started).UTC()
		r.Duration = time.Duration(dur)
		r.MaxStaleness = time.Duration(staleness)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SweepResults returns the stored pairs of runID ordered by user ids.
func (db *DB) SweepResults(runID string) ([]SweepResult, error) {
	rows, err := db.Query(`
		SELECT uid1, uid2, outcome, meeting_unix_ns, floor, x, y, distance_m, elapsed_s, confidence, error
		FROM sweep_results
		WHERE run_id = ?
		ORDER BY uid1, uid2`, runID)
	if err != nil {
		return nil, fmt.Errorf("query sweep results %s: %w", runID, err)
	}
	defer rows.Close()

	var out []SweepResult
	for rows.Next() {
		var (
			r                   SweepResult
			meetingNS, floor    sql.NullInt64
			x, y, dist, elapsed sql.NullFloat64
			errText             sql.NullString
		)
		if err := rows.Scan(&r.UserA, &r.UserB, &r.Outcome, &meetingNS, &floor,
			&x, &y, &dist, &elapsed, &r.Confidence, &errText); err != nil {
			return nil, err
		}
		r.RunID = runID
		if meetingNS.Valid {
			at := time.Unix(0, meetingNS.Int64).UTC()
			r.MeetingAt = &at
		}
		if floor.Valid {
			f := int(floor.Int64)
			r.Floor = &f
		}
		r.X = nullFloat(x)
		r.Y = nullFloat(y)
		r.DistanceM = nullFloat(dist)
		r.ElapsedS = nullFloat(elapsed)
		r.Error = errText.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
