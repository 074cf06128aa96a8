// Package history stores flushed device snapshots in SQLite.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tiltmon/internal/tracker"
)

//go:embed sql/insert-flush.sql
var insertFlushSQL string

//go:embed sql/list-flushes.sql
var listFlushesSQL string

//go:embed sql/count-flushes.sql
var countFlushesSQL string

// ErrUnlabelled is returned when storing a snapshot of an identity without
// a colour label.
var ErrUnlabelled = errors.New("snapshot has no label")

type Repository interface {
	InsertSnapshot(ctx context.Context, s tracker.Snapshot) error
	ListByLabel(ctx context.Context, label string, limit int) ([]tracker.Snapshot, error)
	CountByLabel(ctx context.Context, label string) (int, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) InsertSnapshot(ctx context.Context, s tracker.Snapshot) error {
	if s.Label == "" {
		return fmt.Errorf("%w: device %d", ErrUnlabelled, s.DeviceID)
	}
	_, err := r.db.ExecContext(ctx, insertFlushSQL,
		s.DeviceID,
		s.Label,
		formatTime(s.Timestamp),
		formatTime(s.FirstSeen),
		formatTime(s.LastSeen),
		int64(s.Samples),
		s.Temperature,
		s.Gravity,
		s.TxPower,
		s.Signal,
	)
	if err != nil {
		return fmt.Errorf("insert flush: %w", err)
	}
	return nil
}

// ListByLabel returns the most recent flushes of a device, newest first.
func (r *repositoryImpl) ListByLabel(ctx context.Context, label string, limit int) ([]tracker.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, listFlushesSQL, label, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close flush rows", "error", err)
		}
	}()

	out := []tracker.Snapshot{}
	for rows.Next() {
		var (
			s                    tracker.Snapshot
			flushed, first, last string
			samples              int64
		)
		if err := rows.Scan(&s.DeviceID, &s.Label, &flushed, &first, &last,
			&samples, &s.Temperature, &s.Gravity, &s.TxPower, &s.Signal); err != nil {
			return nil, err
		}
		if s.Timestamp, err = parseTime(flushed); err != nil {
			return nil, err
		}
		if s.FirstSeen, err = parseTime(first); err != nil {
			return nil, err
		}
		if s.LastSeen, err = parseTime(last); err != nil {
			return nil, err
		}
		s.Samples = uint64(samples)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) CountByLabel(ctx context.Context, label string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, countFlushesSQL, label).Scan(&n)
	return n, err
}

// Fixed-width so that timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
