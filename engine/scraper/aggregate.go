package scraper

import (
	"github.com/WessleyAI/pulse/engine/domain"
	"github.com/WessleyAI/pulse/pkg/fn"
)

// Aggregate concatenates per-source batches in the order given and keeps the
// first record seen for each id.
func Aggregate(batches ...[]domain.Record) []domain.Record {
	return fn.UniqueBy(fn.Concat(batches...), func(r domain.Record) string { return r.ID })
}
