package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/WessleyAI/pulse/engine/domain"
	"github.com/WessleyAI/pulse/pkg/fn"
)

// DefaultListLimit caps List when Query.Limit is unset.
const DefaultListLimit = 2000

var postColumns = []string{"id", "source", "author", "text", "created_utc", "url", "keyword", "score", "extras"}

// upsertSuffix replaces every non-key column on conflict.
var upsertSuffix = func() string {
	sets := fn.Map(postColumns[1:], func(c string) string { return c + " = excluded." + c })
	return "ON CONFLICT(id) DO UPDATE SET " + strings.Join(sets, ", ")
}()

// Dedupe keeps the first record for each id.
func Dedupe(records []domain.Record) []domain.Record {
	return fn.UniqueBy(records, func(r domain.Record) string { return r.ID })
}

// Upsert writes records in one transaction, replacing any stored row with the
// same id. It returns the number of rows written, which equals the number of
// distinct ids. On failure nothing is written and the error wraps
// domain.ErrPersistence.
func (s *SQLite) Upsert(ctx context.Context, records []domain.Record) (int64, error) {
	batch := Dedupe(records)
	if len(batch) == 0 {
		return 0, nil
	}
	for _, r := range batch {
		if err := domain.Validate(r); err != nil {
			return 0, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %w", domain.ErrPersistence, err)
	}
	defer tx.Rollback()

	var affected int64
	for _, r := range batch {
		query, args, err := sq.Insert("posts").
			Columns(postColumns...).
			Values(r.ID, string(r.Source), r.Author, r.Text, r.CreatedUTC, nullString(r.URL), r.Keyword, r.Score, nullExtras(r.Extras)).
			Suffix(upsertSuffix).
			ToSql()
		if err != nil {
			return 0, fmt.Errorf("%w: build upsert: %w", domain.ErrPersistence, err)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("%w: upsert %s: %w", domain.ErrPersistence, r.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("%w: rows affected: %w", domain.ErrPersistence, err)
		}
		affected += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", domain.ErrPersistence, err)
	}
	return affected, nil
}

// Query filters List.
type Query struct {
	// Keyword matches stored keywords containing it, ignoring case.
	Keyword string
	// Sources restricts results to these sources. Empty means all.
	Sources []domain.Source
	Limit   int
}

// List returns stored records, newest first.
func (s *SQLite) List(ctx context.Context, q Query) ([]domain.Record, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	b := sq.Select(postColumns...).From("posts")
	if kw := strings.TrimSpace(q.Keyword); kw != "" {
		b = b.Where(sq.Like{"LOWER(keyword)": "%" + strings.ToLower(kw) + "%"})
	}
	if len(q.Sources) > 0 {
		b = b.Where(sq.Eq{"source": fn.Map(q.Sources, func(s domain.Source) string { return string(s) })})
	}
	query, args, err := b.OrderBy("datetime(created_utc) DESC", "id").Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns the record with id or domain.ErrNotFound.
func (s *SQLite) Get(ctx context.Context, id string) (domain.Record, error) {
	query, args, err := sq.Select(postColumns...).From("posts").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Record{}, fmt.Errorf("build get: %w", err)
	}
	r, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, fmt.Errorf("post %s: %w", id, domain.ErrNotFound)
	}
	return r, err
}

// Count returns the number of stored records.
func (s *SQLite) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts").Scan(&n); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (domain.Record, error) {
	var r domain.Record
	var source string
	var author, text, created, link, kw, extras sql.NullString
	var score sql.NullInt64
	if err := row.Scan(&r.ID, &source, &author, &text, &created, &link, &kw, &score, &extras); err != nil {
		return domain.Record{}, err
	}
	r.Source = domain.Source(source)
	r.Author = author.String
	r.Text = text.String
	r.CreatedUTC = created.String
	r.URL = link.String
	r.Keyword = kw.String
	r.Score = int(score.Int64)
	if extras.Valid {
		r.Extras = json.RawMessage(extras.String)
	}
	return r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullExtras(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 || string(raw) == "null" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
