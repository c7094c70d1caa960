package repo

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Result is the part of a neo4j result the repository reads.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

// Runner runs a single Cypher statement.
type Runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
}

// Session is the part of a neo4j session the repository uses.
type Session interface {
	Runner
	// ExecuteWrite runs work in one managed write transaction.
	ExecuteWrite(ctx context.Context, work func(tx Runner) error) error
	Close(ctx context.Context) error
}

// SessionFactory opens a Session.
type SessionFactory func(ctx context.Context) Session

// Neo4jRepo is a generic Neo4j-backed repository keyed on one node property.
type Neo4jRepo[T any, ID comparable] struct {
	driver      neo4j.DriverWithContext
	label       string
	idKey       string
	mergeSuffix string
	toMap       func(T) map[string]any
	fromRecord  func(*neo4j.Record) (T, error)
	newSession  SessionFactory
}

// Neo4jOption configures a Neo4jRepo.
type Neo4jOption[T any, ID comparable] func(*Neo4jRepo[T, ID])

// WithIDKey sets the property name used as the ID (default "id").
func WithIDKey[T any, ID comparable](key string) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.idKey = key }
}

// WithMergeSuffix appends Cypher to every upsert statement. The merged node
// is bound to n and its properties to $props.
func WithMergeSuffix[T any, ID comparable](cypher string) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.mergeSuffix = cypher }
}

// WithSessionFactory replaces the driver-backed sessions.
func WithSessionFactory[T any, ID comparable](f SessionFactory) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.newSession = f }
}

// NewNeo4jRepo creates a new Neo4j-backed repository.
func NewNeo4jRepo[T any, ID comparable](
	driver neo4j.DriverWithContext,
	label string,
	toMap func(T) map[string]any,
	fromRecord func(*neo4j.Record) (T, error),
	opts ...Neo4jOption[T, ID],
) *Neo4jRepo[T, ID] {
	r := &Neo4jRepo[T, ID]{
		driver:     driver,
		label:      label,
		idKey:      "id",
		toMap:      toMap,
		fromRecord: fromRecord,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Compile-time interface check.
var _ Repository[any, string] = (*Neo4jRepo[any, string])(nil)

// neo4jSessionAdapter adapts neo4j.SessionWithContext to Session.
type neo4jSessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *neo4jSessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *neo4jSessionAdapter) ExecuteWrite(ctx context.Context, work func(Runner) error) error {
	_, err := a.sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, work(txRunner{tx: tx})
	})
	return err
}

func (a *neo4jSessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

type txRunner struct {
	tx neo4j.ManagedTransaction
}

func (t txRunner) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return t.tx.Run(ctx, cypher, params)
}

func (r *Neo4jRepo[T, ID]) session(ctx context.Context) Session {
	if r.newSession != nil {
		return r.newSession(ctx)
	}
	return &neo4jSessionAdapter{sess: r.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

func (r *Neo4jRepo[T, ID]) Get(ctx context.Context, id ID) (T, error) {
	var zero T
	sess := r.session(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) RETURN n", r.label, r.idKey)
	result, err := sess.Run(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return zero, err
	}
	if !result.Next(ctx) {
		return zero, fmt.Errorf("%s %v: %w", r.label, id, ErrNotFound)
	}
	return r.fromRecord(result.Record())
}

func (r *Neo4jRepo[T, ID]) List(ctx context.Context, opts ListOpts) ([]T, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	cypher := fmt.Sprintf("MATCH (n:%s) RETURN n ORDER BY n.%s SKIP $offset LIMIT $limit", r.label, r.idKey)
	return r.Query(ctx, cypher, map[string]any{"offset": opts.Offset, "limit": limit})
}

// Query runs a read query whose rows bind the entity node as n.
func (r *Neo4jRepo[T, ID]) Query(ctx context.Context, cypher string, params map[string]any) ([]T, error) {
	sess := r.session(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	var items []T
	for result.Next(ctx) {
		item, err := r.fromRecord(result.Record())
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// UpsertAll merges each entity on its id and replaces its properties, all in
// one write transaction.
func (r *Neo4jRepo[T, ID]) UpsertAll(ctx context.Context, entities []T) (int64, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	sess := r.session(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MERGE (n:%s {%s: $id}) SET n = $props", r.label, r.idKey)
	if r.mergeSuffix != "" {
		cypher += " " + r.mergeSuffix
	}
	err := sess.ExecuteWrite(ctx, func(tx Runner) error {
		for _, e := range entities {
			props := r.toMap(e)
			if _, err := tx.Run(ctx, cypher, map[string]any{"id": props[r.idKey], "props": props}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int64(len(entities)), nil
}
