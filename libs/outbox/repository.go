package outbox

import (
	"context"
	"fmt"
	"time"

	otelx "github.com/clinicaflow/clinica/libs/otel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository has no state of its own. Writes join the caller's transaction
// so an event commits or rolls back with the change that produced it.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}
	tc := otelx.Capture(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES (@id, @aggType, @aggID, @type, @payload, @traceparent, @tracestate)
	`, pgx.NamedArgs{
		"id":          evt.EventID,
		"aggType":     evt.AggregateType,
		"aggID":       evt.AggregateID,
		"type":        evt.EventType,
		"payload":     evt.Payload,
		"traceparent": tc.Parent,
		"tracestate":  tc.State,
	})
	if err != nil {
		return fmt.Errorf("store %s event for %s: %w", evt.EventType, evt.AggregateID, err)
	}
	return nil
}

// InsertAll stores events in order and stops at the first failure.
func (r *Repository) InsertAll(ctx context.Context, tx pgx.Tx, events ...Event) error {
	for i := range events {
		if err := r.Insert(ctx, tx, events[i]); err != nil {
			return err
		}
	}
	return nil
}

// Record is an unpublished row as the relay sees it.
type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Trace         otelx.TraceContext
	CreatedAt     time.Time
}

// FetchUnpublished locks up to limit rows in insertion order; rows held by
// another relay are skipped.
func (r *Repository) FetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("lock outbox batch: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.AggregateType, &rec.AggregateID, &rec.EventType,
			&rec.Payload, &rec.Trace.Parent, &rec.Trace.State, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("read outbox row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, `UPDATE outbox_events SET published_at = now() WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("mark %d outbox rows published: %w", len(ids), err)
	}
	return nil
}

// PurgePublished deletes rows published before cutoff and reports how many
// went.
func (r *Repository) PurgePublished(ctx context.Context, tx pgx.Tx, cutoff time.Time) (int64, error) {
	tag, err := tx.Exec(ctx, `DELETE FROM outbox_events WHERE published_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge outbox: %w", err)
	}
	return tag.RowsAffected(), nil
}
