package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WessleyAI/pulse/engine/domain"
)

func openTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "posts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func rec(id string, src domain.Source, created string) domain.Record {
	return domain.Record{
		ID:         id,
		Source:     src,
		Author:     "author-" + id,
		Text:       "text " + id,
		CreatedUTC: created,
		URL:        "https://example.com/" + id,
		Keyword:    "Golang",
		Score:      3,
		Extras:     json.RawMessage(`{"k":"v"}`),
	}
}

func TestOpen_Schema(t *testing.T) {
	s := openTestDB(t)

	v, err := GetUserVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode;").Scan(&mode))
	assert.Equal(t, "wal", mode)

	for _, idx := range []string{"idx_posts_source_time", "idx_posts_keyword", "idx_runs_started"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&name)
		assert.NoError(t, err, idx)
	}
	assert.NoError(t, s.Ping(context.Background()))
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Upsert(context.Background(), []domain.Record{rec("a", domain.SourceReddit, "2024-01-01T00:00:00Z")})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestUpsert_Idempotent(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	batch := []domain.Record{
		rec("1", domain.SourceMastodon, "2024-01-01T10:00:00.000Z"),
		rec("reddit_2", domain.SourceReddit, "2024-01-01T11:00:00Z"),
	}

	n, err := s.Upsert(ctx, batch)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.Upsert(ctx, batch)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n, "re-upsert reports distinct ids")

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestUpsert_ReplacesColumns(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	first := rec("1", domain.SourceMastodon, "2024-01-01T10:00:00Z")
	_, err := s.Upsert(ctx, []domain.Record{first})
	require.NoError(t, err)

	second := first
	second.Text = "edited"
	second.Score = 40
	second.URL = ""
	second.Extras = nil
	_, err = s.Upsert(ctx, []domain.Record{second})
	require.NoError(t, err)

	got, err := s.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Text)
	assert.Equal(t, 40, got.Score)
	assert.Empty(t, got.URL)
	assert.Nil(t, got.Extras)

	var url, extras *string
	require.NoError(t, s.db.QueryRow("SELECT url, extras FROM posts WHERE id = ?", "1").Scan(&url, &extras))
	assert.Nil(t, url, "empty url stored as NULL")
	assert.Nil(t, extras, "nil extras stored as NULL")
}

func TestUpsert_BatchDuplicatesFirstWins(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	a := rec("dup", domain.SourceReddit, "2024-01-01T00:00:00Z")
	b := a
	b.Text = "later copy"

	n, err := s.Upsert(ctx, []domain.Record{a, b})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := s.Get(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, a.Text, got.Text)
}

func TestUpsert_EmptyBatch(t *testing.T) {
	s := openTestDB(t)
	n, err := s.Upsert(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsert_InvalidRecordRollsBack(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	bad := rec("bad", domain.SourceReddit, "2024-01-01T00:00:00Z")
	bad.Score = -1
	n, err := s.Upsert(ctx, []domain.Record{rec("ok", domain.SourceReddit, "2024-01-01T00:00:00Z"), bad})
	assert.Zero(t, n)
	assert.True(t, errors.Is(err, domain.ErrPersistence))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUpsert_CancelledContext(t *testing.T) {
	s := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := s.Upsert(ctx, []domain.Record{rec("x", domain.SourceReddit, "2024-01-01T00:00:00Z")})
	assert.Zero(t, n)
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestList_FiltersAndOrder(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	other := rec("m2", domain.SourceMastodon, "2024-03-01T00:00:00.000Z")
	other.Keyword = "rust"
	_, err := s.Upsert(ctx, []domain.Record{
		rec("m1", domain.SourceMastodon, "2024-01-01T00:00:00.000Z"),
		rec("reddit_1", domain.SourceReddit, "2024-02-01T00:00:00Z"),
		other,
	})
	require.NoError(t, err)

	all, err := s.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"m2", "reddit_1", "m1"}, []string{all[0].ID, all[1].ID, all[2].ID})

	gos, err := s.List(ctx, Query{Keyword: "GOL"})
	require.NoError(t, err)
	assert.Len(t, gos, 2)

	reddit, err := s.List(ctx, Query{Sources: []domain.Source{domain.SourceReddit}})
	require.NoError(t, err)
	require.Len(t, reddit, 1)
	assert.Equal(t, "reddit_1", reddit[0].ID)
	assert.JSONEq(t, `{"k":"v"}`, string(reddit[0].Extras))

	limited, err := s.List(ctx, Query{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestGet_NotFound(t *testing.T) {
	s := openTestDB(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRuns(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordRun(ctx, domain.Run{
		ID: "01A", Keyword: "go", Sources: []domain.Source{domain.SourceMastodon, domain.SourceReddit},
		Affected: 12, StartedAt: start, FinishedAt: start.Add(3 * time.Second),
	}))
	require.NoError(t, s.RecordRun(ctx, domain.Run{
		ID: "01B", Keyword: "rust", Sources: []domain.Source{domain.SourceReddit},
		StartedAt: start.Add(time.Minute), FinishedAt: start.Add(time.Minute), Err: "store: persistence failed",
	}))

	runs, err := s.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "01B", runs[0].ID)
	assert.Equal(t, "store: persistence failed", runs[0].Err)
	assert.Equal(t, []domain.Source{domain.SourceMastodon, domain.SourceReddit}, runs[1].Sources)
	assert.EqualValues(t, 12, runs[1].Affected)
	assert.True(t, runs[1].StartedAt.Equal(start))
	assert.Empty(t, runs[1].Err)
}
