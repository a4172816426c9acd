package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrKeyReused is returned when an Idempotency-Key comes back with a
// different request body than the one that first claimed it.
var ErrKeyReused = errors.New("idempotency key reused with a different request")

// Claim identifies one idempotent request. Fingerprint is a digest of the
// request body.
type Claim struct {
	Scope       string
	Key         string
	Fingerprint string
}

// IdempotencyRecord is what an earlier request with the same claim left
// behind. A zero StatusCode means it never completed.
type IdempotencyRecord struct {
	AppointmentID string
	StatusCode    int
	Response      []byte
}

func (r IdempotencyRecord) Completed() bool { return r.StatusCode != 0 }

// ClaimIdempotencyKey upserts the key and holds its row lock until tx ends,
// so concurrent retries of one request queue behind each other.
func (r *Repository) ClaimIdempotencyKey(ctx context.Context, tx pgx.Tx, c Claim) (IdempotencyRecord, error) {
	var (
		rec         IdempotencyRecord
		fingerprint string
	)
	err := tx.QueryRow(ctx, `
		INSERT INTO idempotency_keys (scope, idempotency_key, request_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (scope, idempotency_key) DO UPDATE SET updated_at = now()
		RETURNING request_hash, COALESCE(appointment_id::text, ''), COALESCE(status_code, 0), response_payload
	`, c.Scope, c.Key, c.Fingerprint).Scan(&fingerprint, &rec.AppointmentID, &rec.StatusCode, &rec.Response)
	if err != nil {
		return IdempotencyRecord{}, fmt.Errorf("claim idempotency key %s/%s: %w", c.Scope, c.Key, err)
	}
	if fingerprint != c.Fingerprint {
		return IdempotencyRecord{}, ErrKeyReused
	}
	return rec, nil
}

// CompleteIdempotencyKey stores the response replayed for later retries.
func (r *Repository) CompleteIdempotencyKey(ctx context.Context, tx pgx.Tx, c Claim, appointmentID string, status int, response []byte) error {
	tag, err := tx.Exec(ctx, `
		UPDATE idempotency_keys
		SET appointment_id = NULLIF($3, '')::uuid, status_code = $4, response_payload = $5, updated_at = now()
		WHERE scope = $1 AND idempotency_key = $2
	`, c.Scope, c.Key, appointmentID, status, response)
	if err != nil {
		return fmt.Errorf("complete idempotency key %s/%s: %w", c.Scope, c.Key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
