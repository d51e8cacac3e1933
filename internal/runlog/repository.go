package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/nerrad567/flowlab-core/internal/component"
	"github.com/nerrad567/flowlab-core/internal/experiment"
)

const (
	defaultLimit = 20
	maxLimit     = 200
)

// Repository stores and queries archived runs.
type Repository interface {
	Save(ctx context.Context, run *Run) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Get(ctx context.Context, id string) (*Run, error)
}

// SQLiteRepository archives runs in the tables created by migrations/.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a run archive repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save writes the run row, its records and its timeline in one transaction.
func (r *SQLiteRepository) Save(ctx context.Context, run *Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, protocol, status, error, dry_run, strict, started_at, ended_at, total_paused_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Protocol, run.Status, run.Error, run.DryRun, boolToInt(run.Strict),
		formatTime(run.StartedAt), formatTime(run.EndedAt),
		run.TotalPaused.Milliseconds(), formatTime(run.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	if err := insertRecords(ctx, tx, run.ID, run.Records); err != nil {
		return err
	}
	if err := insertTimeline(ctx, tx, run.ID, run.Timeline); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}
	return nil
}

func insertRecords(ctx context.Context, tx *sql.Tx, runID string, records []experiment.ExecutionRecord) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO execution_records (run_id, seq, component, kind, params, offset_ms, elapsed_ms, timestamp, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing record insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // Closed with the transaction

	for i, rec := range records {
		params, err := json.Marshal(rec.Params)
		if err != nil {
			return fmt.Errorf("marshalling params of record %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx,
			runID, i, rec.Component, string(rec.Kind), string(params),
			rec.Offset.Milliseconds(), rec.Elapsed.Milliseconds(),
			formatTime(rec.Timestamp), rec.Error,
		); err != nil {
			return fmt.Errorf("inserting record %d: %w", i, err)
		}
	}
	return nil
}

func insertTimeline(ctx context.Context, tx *sql.Tx, runID string, timeline map[string][]experiment.Datapoint) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO datapoints (run_id, device, seq, value, elapsed_ms, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing datapoint insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // Closed with the transaction

	for _, device := range slices.Sorted(maps.Keys(timeline)) {
		for i, dp := range timeline[device] {
			if _, err := stmt.ExecContext(ctx,
				runID, device, i, dp.Value, dp.Elapsed.Milliseconds(), formatTime(dp.Timestamp),
			); err != nil {
				return fmt.Errorf("inserting datapoint %s/%d: %w", device, i, err)
			}
		}
	}
	return nil
}

// List returns runs matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	where := ""
	var args []any
	if filter.Status != "" {
		where = "WHERE status = ?"
		args = append(args, filter.Status)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM runs " + where //nolint:gosec // WHERE uses a placeholder, not user input
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting runs: %w", err)
	}

	query := `SELECT id, protocol, status, error, dry_run, strict, started_at, ended_at, total_paused_ms, created_at
		FROM runs ` + where + ` ORDER BY started_at DESC LIMIT ? OFFSET ?` //nolint:gosec // WHERE uses a placeholder, not user input
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	result := &ListResult{Runs: []Run{}, Total: total, Limit: filter.Limit, Offset: filter.Offset}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		result.Runs = append(result.Runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return result, nil
}

// Get loads one run with its records and timeline.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, protocol, status, error, dry_run, strict, started_at, ended_at, total_paused_ms, created_at
		 FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if run.Records, err = r.loadRecords(ctx, id); err != nil {
		return nil, err
	}
	if run.Timeline, err = r.loadTimeline(ctx, id); err != nil {
		return nil, err
	}
	return run, nil
}

func (r *SQLiteRepository) loadRecords(ctx context.Context, runID string) ([]experiment.ExecutionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT component, kind, params, offset_ms, elapsed_ms, timestamp, error
		 FROM execution_records WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var records []experiment.ExecutionRecord
	for rows.Next() {
		var (
			rec                 experiment.ExecutionRecord
			kind, params, ts    string
			offsetMS, elapsedMS int64
		)
		if err := rows.Scan(&rec.Component, &kind, &params, &offsetMS, &elapsedMS, &ts, &rec.Error); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		rec.Kind = experiment.RecordKind(kind)
		rec.Offset = time.Duration(offsetMS) * time.Millisecond
		rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		rec.Timestamp = parseTime(ts)
		rec.Params = component.Params{}
		if err := json.Unmarshal([]byte(params), &rec.Params); err != nil {
			return nil, fmt.Errorf("decoding record params: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

func (r *SQLiteRepository) loadTimeline(ctx context.Context, runID string) (map[string][]experiment.Datapoint, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT device, value, elapsed_ms, timestamp
		 FROM datapoints WHERE run_id = ? ORDER BY device, seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying datapoints: %w", err)
	}
	defer rows.Close()

	timeline := make(map[string][]experiment.Datapoint)
	for rows.Next() {
		var (
			device, ts string
			dp         experiment.Datapoint
			elapsedMS  int64
		)
		if err := rows.Scan(&device, &dp.Value, &elapsedMS, &ts); err != nil {
			return nil, fmt.Errorf("scanning datapoint: %w", err)
		}
		dp.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		dp.Timestamp = parseTime(ts)
		timeline[device] = append(timeline[device], dp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating datapoints: %w", err)
	}
	return timeline, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		run                     Run
		strict                  int
		started, ended, created string
		pausedMS                int64
	)
	err := s.Scan(&run.ID, &run.Protocol, &run.Status, &run.Error, &run.DryRun, &strict,
		&started, &ended, &pausedMS, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	run.Strict = strict != 0
	run.StartedAt = parseTime(started)
	run.EndedAt = parseTime(ended)
	run.CreatedAt = parseTime(created)
	run.TotalPaused = time.Duration(pausedMS) * time.Millisecond
	return &run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
