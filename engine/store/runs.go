package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/WessleyAI/pulse/engine/domain"
	"github.com/WessleyAI/pulse/pkg/fn"
)

// runTimeLayout is fixed-width so timestamps sort lexically.
const runTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// RecordRun appends one entry to the run log.
func (s *SQLite) RecordRun(ctx context.Context, run domain.Run) error {
	sources := strings.Join(fn.Map(run.Sources, func(s domain.Source) string { return string(s) }), ",")
	query, args, err := sq.Insert("runs").
		Columns("id", "keyword", "sources", "affected", "started_at", "finished_at", "error").
		Values(run.ID, run.Keyword, sources, run.Affected,
			run.StartedAt.UTC().Format(runTimeLayout), run.FinishedAt.UTC().Format(runTimeLayout),
			nullString(run.Err)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build run insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

// Runs returns the most recent runs first.
func (s *SQLite) Runs(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query, args, err := sq.Select("id", "keyword", "sources", "affected", "started_at", "finished_at", "COALESCE(error, '')").
		From("runs").
		OrderBy("started_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build runs query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []domain.Run
	for rows.Next() {
		var run domain.Run
		var sources, started, finished string
		if err := rows.Scan(&run.ID, &run.Keyword, &sources, &run.Affected, &started, &finished, &run.Err); err != nil {
			return nil, err
		}
		if sources != "" {
			run.Sources = fn.Map(strings.Split(sources, ","), func(s string) domain.Source { return domain.Source(s) })
		}
		run.StartedAt, _ = time.Parse(runTimeLayout, started)
		run.FinishedAt, _ = time.Parse(runTimeLayout, finished)
		out = append(out, run)
	}
	return out, rows.Err()
}
