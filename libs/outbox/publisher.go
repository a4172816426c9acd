package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicaflow/clinica/libs/db"
	"github.com/clinicaflow/clinica/libs/kafkax"
	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type PublisherConfig struct {
	PollEvery time.Duration
	BatchSize int
	// Retention is how long published rows are kept; zero means 7 days.
	Retention  time.Duration
	PurgeEvery time.Duration
}

// Publisher relays committed outbox rows to Kafka. A row is marked
// published in the same transaction that locked it, so a crash between the
// Kafka write and the commit re-sends the batch; consumers dedupe on the
// event id header.
type Publisher struct {
	pool   *db.Pool
	repo   *Repository
	writer kafkax.MessageWriter
	logger *zap.Logger
	cfg    PublisherConfig
}

func NewPublisher(pool *db.Pool, repo *Repository, writer kafkax.MessageWriter, logger *zap.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	if cfg.PurgeEvery <= 0 {
		cfg.PurgeEvery = time.Hour
	}
	return &Publisher{pool: pool, repo: repo, writer: writer, logger: logger.Named("outbox"), cfg: cfg}
}

// Run polls until ctx is cancelled. Each tick drains full batches back to
// back and waits for the next tick once a batch comes back short.
func (p *Publisher) Run(ctx context.Context) {
	if p.writer == nil {
		p.logger.Warn("no kafka writer; outbox events stay unpublished")
		return
	}
	ticker := time.NewTicker(p.cfg.PollEvery)
	defer ticker.Stop()
	purge := time.NewTicker(p.cfg.PurgeEvery)
	defer purge.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-purge.C:
			p.purge(ctx)
			continue
		case <-ticker.C:
		}
		total, err := p.drain(ctx)
		if err != nil && ctx.Err() == nil {
			p.logger.Error("outbox relay failed", zap.Int("published", total), zap.Error(err))
			continue
		}
		if total > 0 {
			p.logger.Debug("outbox relayed", zap.Int("published", total))
		}
	}
}

func (p *Publisher) drain(ctx context.Context) (int, error) {
	total := 0
	for ctx.Err() == nil {
		n, err := p.publishBatch(ctx)
		total += n
		if err != nil || n < p.cfg.BatchSize {
			return total, err
		}
	}
	return total, nil
}

func (p *Publisher) purge(ctx context.Context) {
	cutoff := time.Now().Add(-p.cfg.Retention)
	var n int64
	err := p.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		n, err = p.repo.PurgePublished(ctx, tx, cutoff)
		return err
	})
	if err != nil {
		p.logger.Warn("outbox purge failed", zap.Error(err))
		return
	}
	if n > 0 {
		p.logger.Info("outbox purged", zap.Int64("rows", n), zap.Time("before", cutoff))
	}
}

func (p *Publisher) publishBatch(ctx context.Context) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := p.repo.FetchUnpublished(ctx, tx, p.cfg.BatchSize)
	if err != nil || len(records) == 0 {
		return 0, err
	}

	msgs, ids := Messages(ctx, records)
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, fmt.Errorf("write %d outbox messages: %w", len(msgs), err)
	}
	if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit outbox tx: %w", err)
	}
	return len(records), nil
}

// Messages turns stored rows into Kafka messages, each carrying the trace
// context captured when its event was written, plus the row ids in order.
func Messages(ctx context.Context, records []Record) ([]kafka.Message, []int64) {
	msgs := make([]kafka.Message, len(records))
	ids := make([]int64, len(records))
	for i, r := range records {
		msgs[i] = kafkax.EventMessage(r.Trace.Restore(ctx), r.EventType, r.AggregateID, r.EventID, r.Payload)
		ids[i] = r.ID
	}
	return msgs, ids
}
