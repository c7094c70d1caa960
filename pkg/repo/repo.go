// Package repo defines the generic Repository interface and a Neo4j
// implementation of it.
package repo

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no entity has the id.
var ErrNotFound = errors.New("not found")

// Repository reads entities by id and writes them in batches.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
	// UpsertAll writes every entity atomically and returns how many were
	// written.
	UpsertAll(ctx context.Context, entities []T) (int64, error)
}

// ListOpts controls pagination for List.
type ListOpts struct {
	Offset int
	Limit  int
}
