package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/WessleyAI/pulse/engine/domain"
	"github.com/WessleyAI/pulse/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

const (
	// CollectedSubject is where standalone collectors publish batches.
	CollectedSubject = "pulse.collected"
	// DLQSubject receives batches that failed MaxRetries times.
	DLQSubject = "pulse.collected.dlq"
	// MaxRetries before a batch goes to the DLQ.
	MaxRetries = 3
	// RetryHeader counts delivery attempts of a republished batch.
	RetryHeader = "X-Retry-Count"
)

// Batch is one collector's output for a keyword.
type Batch struct {
	Keyword string          `json:"keyword"`
	Source  domain.Source   `json:"source"`
	Records []domain.Record `json:"records"`
}

// Validate checks that Source is known and that every record carries it.
func (b Batch) Validate() error {
	if !domain.ValidSources[b.Source] {
		return domain.NewValidationError("source", string(b.Source), domain.ErrUnknownSource)
	}
	for _, r := range b.Records {
		if r.Source != b.Source {
			return fmt.Errorf("%w: record %q has source %q in a %s batch",
				domain.ErrInvalidArgument, r.ID, r.Source, b.Source)
		}
	}
	return nil
}

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Batch   Batch  `json:"batch"`
	Error   string `json:"error"`
	Retries int    `json:"retries"`
}

// StartConsumer subscribes to CollectedSubject and runs each batch through
// p. Failed batches are republished with an incremented retry header until
// MaxRetries, then sent to DLQSubject. Invalid batches skip the retries.
func StartConsumer(nc *nats.Conn, p *Pipeline, queue string) (*nats.Subscription, error) {
	log := p.log
	return natsutil.Subscribe(nc, CollectedSubject, queue,
		func(ctx context.Context, m natsutil.Message[Batch]) {
			handleBatch(ctx, nc, p, log, m)
		},
		func(subject string, err error) {
			log.Error("ingest: unmarshal failed", "subject", subject, "error", err)
		},
	)
}

func handleBatch(ctx context.Context, nc *nats.Conn, p *Pipeline, log *slog.Logger, m natsutil.Message[Batch]) {
	batch := m.Data
	var rep RunReport
	err := batch.Validate()
	if err == nil {
		rep, err = p.Ingest(ctx, batch.Keyword, batch.Records)
	}
	if err == nil {
		log.Info("ingest: batch stored", "run_id", rep.RunID, "source", batch.Source, "affected", rep.Affected)
		return
	}

	retries := retryCount(m.Header) + 1
	log.Error("ingest: batch failed",
		"error", err,
		"source", batch.Source,
		"keyword", batch.Keyword,
		"retry", retries,
	)

	if retries >= MaxRetries || !retryable(err) {
		dlq := dlqMessage{Batch: batch, Error: err.Error(), Retries: retries}
		if err := natsutil.Publish(ctx, nc, DLQSubject, dlq); err != nil {
			log.Error("ingest: DLQ publish failed", "error", err)
		}
		return
	}
	header := nats.Header{}
	header.Set(RetryHeader, strconv.Itoa(retries))
	if err := natsutil.Republish(ctx, nc, CollectedSubject, m.Raw, header); err != nil {
		log.Error("ingest: retry publish failed", "error", err)
	}
}

func retryCount(h nats.Header) int {
	if h == nil {
		return 0
	}
	n, err := strconv.Atoi(h.Get(RetryHeader))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// retryable is false for input errors that will fail the same way again.
func retryable(err error) bool {
	return !errors.Is(err, domain.ErrInvalidArgument) &&
		!errors.Is(err, domain.ErrInvalidRecord) &&
		!errors.Is(err, domain.ErrUnknownSource)
}
