package inbox

import (
	"context"
	"fmt"

	"github.com/clinicaflow/clinica/libs/db"
	"github.com/clinicaflow/clinica/libs/kafkax"
	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// TxHandler runs inside the transaction that records the event, so a
// handler failure also forgets the event and redelivery can retry it.
type TxHandler func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error

type Repository struct {
	pool   *db.Pool
	logger *zap.Logger
}

func NewRepository(pool *db.Pool, logger *zap.Logger) *Repository {
	return &Repository{pool: pool, logger: logger.Named("inbox")}
}

// Record stores the event id. It reports false when the event was seen before.
func (r *Repository) Record(ctx context.Context, tx pgx.Tx, eventID string, eventType string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("record inbox event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Handle wraps next with exactly-once processing per event id.
func (r *Repository) Handle(next TxHandler) kafkax.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		meta := kafkax.ExtractEventMeta(msg)
		if meta.EventID == "" {
			return fmt.Errorf("message on %s has no event id", msg.Topic)
		}

		return r.pool.InTx(ctx, func(tx pgx.Tx) error {
			fresh, err := r.Record(ctx, tx, meta.EventID, meta.EventType)
			if err != nil {
				return err
			}
			if !fresh {
				r.logger.Info("duplicate event ignored", zap.String("event_id", meta.EventID), zap.String("event_type", meta.EventType))
				return nil
			}
			return next(ctx, tx, msg)
		})
	}
}
