package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/WessleyAI/pulse/engine/domain"
	"github.com/WessleyAI/pulse/pkg/fn"
	"github.com/WessleyAI/pulse/pkg/repo"
)

// keywordEdge links every merged post to its keyword node.
const keywordEdge = "WITH n MERGE (k:Keyword {name: $props.keyword}) MERGE (n)-[:MATCHED]->(k)"

// Graph stores records as :Post nodes in Neo4j.
type Graph struct {
	posts *repo.Neo4jRepo[domain.Record, string]
}

// NewGraph creates a Graph over driver.
func NewGraph(driver neo4j.DriverWithContext, opts ...repo.Neo4jOption[domain.Record, string]) *Graph {
	opts = append([]repo.Neo4jOption[domain.Record, string]{
		repo.WithMergeSuffix[domain.Record, string](keywordEdge),
	}, opts...)
	return &Graph{posts: repo.NewNeo4jRepo[domain.Record, string](driver, "Post", recordToProps, recordFromNode, opts...)}
}

// Upsert merges records on id inside one write transaction. The count
// contract matches SQLite.Upsert.
func (g *Graph) Upsert(ctx context.Context, records []domain.Record) (int64, error) {
	batch := Dedupe(records)
	for _, r := range batch {
		if err := domain.Validate(r); err != nil {
			return 0, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		}
	}
	n, err := g.posts.UpsertAll(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("%w: neo4j: %w", domain.ErrPersistence, err)
	}
	return n, nil
}

// Get returns the post with id or domain.ErrNotFound.
func (g *Graph) Get(ctx context.Context, id string) (domain.Record, error) {
	r, err := g.posts.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Record{}, fmt.Errorf("post %s: %w", id, domain.ErrNotFound)
	}
	return r, err
}

const listPosts = `MATCH (n:Post)
WHERE ($keyword = '' OR toLower(n.keyword) CONTAINS $keyword)
  AND (size($sources) = 0 OR n.source IN $sources)
RETURN n ORDER BY n.created_utc DESC, n.id LIMIT $limit`

// List mirrors SQLite.List. created_utc is compared as text, which orders
// RFC 3339 UTC timestamps correctly.
func (g *Graph) List(ctx context.Context, q Query) ([]domain.Record, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	params := map[string]any{
		"keyword": strings.ToLower(strings.TrimSpace(q.Keyword)),
		"sources": fn.Map(q.Sources, func(s domain.Source) string { return string(s) }),
		"limit":   int64(limit),
	}
	out, err := g.posts.Query(ctx, listPosts, params)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return out, nil
}

func recordToProps(r domain.Record) map[string]any {
	props := map[string]any{
		"id":          r.ID,
		"source":      string(r.Source),
		"author":      r.Author,
		"text":        r.Text,
		"created_utc": r.CreatedUTC,
		"keyword":     r.Keyword,
		"score":       int64(r.Score),
	}
	if r.URL != "" {
		props["url"] = r.URL
	}
	if x := nullExtras(r.Extras); x.Valid {
		props["extras"] = x.String
	}
	return props
}

func recordFromNode(rec *neo4j.Record) (domain.Record, error) {
	v, ok := rec.Get("n")
	if !ok {
		return domain.Record{}, fmt.Errorf("record has no node")
	}
	node, ok := v.(dbtype.Node)
	if !ok {
		return domain.Record{}, fmt.Errorf("unexpected value %T", v)
	}
	p := node.Props
	str := func(k string) string { s, _ := p[k].(string); return s }
	score, _ := p["score"].(int64)
	r := domain.Record{
		ID:         str("id"),
		Source:     domain.Source(str("source")),
		Author:     str("author"),
		Text:       str("text"),
		CreatedUTC: str("created_utc"),
		URL:        str("url"),
		Keyword:    str("keyword"),
		Score:      int(score),
	}
	if x := str("extras"); x != "" {
		r.Extras = json.RawMessage(x)
	}
	return r, nil
}
