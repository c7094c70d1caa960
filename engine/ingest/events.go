package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/WessleyAI/pulse/engine/domain"
	"github.com/WessleyAI/pulse/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

const (
	// RecordsSubject carries one RecordEvent per stored record.
	RecordsSubject = "pulse.records"
	// RunsSubject carries the RunReport of every run.
	RunsSubject = "pulse.runs"
)

// RecordEvent is an enriched record tagged with the run that stored it.
type RecordEvent struct {
	RunID  string        `json:"run_id"`
	Record domain.Record `json:"record"`
}

// NATSPublisher publishes pipeline output to NATS.
type NATSPublisher struct {
	nc *nats.Conn
}

// NewNATSPublisher returns a Publisher backed by nc.
func NewNATSPublisher(nc *nats.Conn) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

// PublishRecords publishes every record and returns the joined errors.
func (p *NATSPublisher) PublishRecords(ctx context.Context, runID string, records []domain.Record) error {
	var errs []error
	for _, r := range records {
		if err := natsutil.Publish(ctx, p.nc, RecordsSubject, RecordEvent{RunID: runID, Record: r}); err != nil {
			errs = append(errs, fmt.Errorf("record %s: %w", r.ID, err))
		}
	}
	return errors.Join(errs...)
}

// PublishReport publishes rep on RunsSubject.
func (p *NATSPublisher) PublishReport(ctx context.Context, rep RunReport) error {
	return natsutil.Publish(ctx, p.nc, RunsSubject, rep)
}
