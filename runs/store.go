// Package runs stores finished harvests in SQLite and serves them over
// HTTP.
package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pevans/scrollharvest/records"
)

// Custom errors for run operations
var (
	ErrRunNotFound = errors.New("run not found")
	ErrInvalidMode = errors.New("mode must be window or first_n")
)

// Store keeps harvest runs and their records in SQLite.
type Store struct {
	db *sql.DB
}

// RunFilter represents filtering options for listing runs.
type RunFilter struct {
	Mode   *records.Mode // Filter by harvest mode
	Limit  int           // Pagination limit
	Offset int           // Pagination offset
}

// NewStore opens (creating if needed) the database at dbPath and migrates
// it to the current schema.
func NewStore(dbPath string) (*Store, error) {
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Accept stores a run and its records in one transaction. It implements
// harvest.Sink.
func (s *Store) Accept(ctx context.Context, summary records.Summary, recs []records.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var runErr any
	if summary.Error != "" {
		runErr = summary.Error
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, mode, url, window_start, window_end, target, rounds, reason,
			record_count, scrolled_px, nodes_visited, error, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID.String(),
		string(summary.Mode),
		summary.URL,
		formatDate(summary.WindowStart),
		formatDate(summary.WindowEnd),
		summary.Target,
		summary.Rounds,
		summary.Reason,
		len(recs),
		summary.ScrolledPx,
		summary.NodesVisited,
		runErr,
		formatTime(&summary.StartedAt),
		formatTime(&summary.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (
			run_id, record_id, position, author, published_on, time_label, kind, text,
			video_description, likes, comments, reposts, image_url, video_url, round,
			card_height, platform
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range recs {
		_, err := stmt.ExecContext(ctx,
			summary.RunID.String(), r.ID, i, r.Author, r.Date(), r.TimeLabel, string(r.Kind), r.Text,
			r.VideoDescription, r.Likes, r.Comments, r.Reposts, r.ImageURL, r.VideoURL, r.Round,
			r.CardHeight, r.Platform,
		)
		if err != nil {
			return fmt.Errorf("failed to insert record %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

const runColumns = `run_id, mode, url, window_start, window_end, target, rounds, reason,
	record_count, scrolled_px, nodes_visited, error, started_at, finished_at`

// GetRun retrieves a run summary by its ID.
func (s *Store) GetRun(ctx context.Context, runID uuid.UUID) (*records.Summary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID.String())

	summary, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return summary, nil
}

// ListRuns returns runs, newest first.
func (s *Store) ListRuns(ctx context.Context, filter RunFilter) ([]records.Summary, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any

	if filter.Mode != nil {
		if *filter.Mode != records.ModeWindow && *filter.Mode != records.ModeFirstN {
			return nil, ErrInvalidMode
		}
		query += ` WHERE mode = ?`
		args = append(args, string(*filter.Mode))
	}

	query += ` ORDER BY started_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []records.Summary{}
	for rows.Next() {
		summary, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *summary)
	}

	return runs, rows.Err()
}

// ListRecords returns the records of a run in harvest order.
func (s *Store) ListRecords(ctx context.Context, runID uuid.UUID) ([]records.Record, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, author, published_on, time_label, kind, text, video_description,
			likes, comments, reposts, image_url, video_url, round, card_height, platform
		FROM records WHERE run_id = ? ORDER BY position`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	recs := []records.Record{}
	for rows.Next() {
		var r records.Record
		var publishedOn, kind string
		var videoDesc, imageURL, videoURL, platform sql.NullString
		err := rows.Scan(
			&r.ID, &r.Author, &publishedOn, &r.TimeLabel, &kind, &r.Text, &videoDesc,
			&r.Likes, &r.Comments, &r.Reposts, &imageURL, &videoURL, &r.Round, &r.CardHeight, &platform,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		r.PublishedOn = parseDate(publishedOn)
		r.Kind = records.Kind(kind)
		r.VideoDescription = videoDesc.String
		r.ImageURL = imageURL.String
		r.VideoURL = videoURL.String
		r.Platform = platform.String
		recs = append(recs, r)
	}

	return recs, rows.Err()
}

// DeleteRun removes a run and its records.
func (s *Store) DeleteRun(ctx context.Context, runID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE run_id = ?`, runID.String()); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID.String())
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRunNotFound
	}

	return tx.Commit()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*records.Summary, error) {
	var (
		summary                records.Summary
		runID, mode            string
		windowStart, windowEnd sql.NullString
		runErr                 sql.NullString
		startedAt, finishedAt  string
	)

	err := row.Scan(
		&runID, &mode, &summary.URL, &windowStart, &windowEnd, &summary.Target, &summary.Rounds,
		&summary.Reason, &summary.Count, &summary.ScrolledPx, &summary.NodesVisited, &runErr,
		&startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	summary.RunID, err = uuid.Parse(runID)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	summary.Mode = records.Mode(mode)
	if windowStart.Valid {
		t := parseDate(windowStart.String)
		summary.WindowStart = &t
	}
	if windowEnd.Valid {
		t := parseDate(windowEnd.String)
		summary.WindowEnd = &t
	}
	summary.Error = runErr.String
	summary.StartedAt = parseTime(startedAt)
	summary.FinishedAt = parseTime(finishedAt)

	return &summary, nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	// Strip monotonic clock and store UTC so text ordering is chronological
	return t.Truncate(0).UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	// Try RFC3339Nano first, fall back to RFC3339 for compatibility
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t.Truncate(0)
}

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(records.DateLayout)
}

// parseDate reads a stored calendar date as local midnight, matching how
// dates are resolved during a harvest.
func parseDate(s string) time.Time {
	t, _ := time.ParseInLocation(records.DateLayout, s, time.Local)
	return t
}
