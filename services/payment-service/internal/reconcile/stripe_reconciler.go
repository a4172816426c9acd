// Package reconcile settles Stripe checkouts whose webhook never arrived.
package reconcile

import (
	"context"
	"time"

	"github.com/clinicaflow/clinica/libs/db"
	"github.com/clinicaflow/clinica/services/payment-service/internal/payments"
	"github.com/clinicaflow/clinica/services/payment-service/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"
)

type SessionFetcher interface {
	SessionStatus(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error)
}

type PendingLister interface {
	ListPendingStripe(ctx context.Context, olderThan time.Time, limit int) ([]storage.Payment, error)
}

type Settler interface {
	SettleStripeSession(ctx context.Context, sess *stripe.CheckoutSession) (payments.Outcome, error)
}

type Config struct {
	Interval time.Duration
	// MinAge skips checkouts young enough that the webhook may still come.
	MinAge          time.Duration
	BatchSize       int
	AdvisoryLockKey int64
}

type StripeReconciler struct {
	pool    *db.Pool
	pending PendingLister
	stripe  SessionFetcher
	settler Settler
	logger  *zap.Logger
	cfg     Config
	now     func() time.Time
}

func NewStripeReconciler(pool *db.Pool, pending PendingLister, fetcher SessionFetcher, settler Settler, logger *zap.Logger, cfg Config) *StripeReconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.MinAge <= 0 {
		cfg.MinAge = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.AdvisoryLockKey == 0 {
		cfg.AdvisoryLockKey = 4242001
	}
	return &StripeReconciler{
		pool:    pool,
		pending: pending,
		stripe:  fetcher,
		settler: settler,
		logger:  logger.Named("stripe_reconciler"),
		cfg:     cfg,
		now:     time.Now,
	}
}

// Run reconciles until ctx is done. Only the instance holding the advisory
// lock does any work.
func (r *StripeReconciler) Run(ctx context.Context) {
	conn, err := r.acquireLock(ctx)
	if err != nil {
		return
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, r.cfg.AdvisoryLockKey)
		conn.Release()
	}()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.ReconcileOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReconcileOnce(ctx)
		}
	}
}

// acquireLock holds a dedicated connection, since session advisory locks
// belong to the connection that took them.
func (r *StripeReconciler) acquireLock(ctx context.Context) (*pgxpool.Conn, error) {
	for {
		conn, err := r.pool.Acquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Error("failed to acquire connection", zap.Error(err))
			if !sleep(ctx, 5*time.Second) {
				return nil, ctx.Err()
			}
			continue
		}
		var locked bool
		if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, r.cfg.AdvisoryLockKey).Scan(&locked); err != nil {
			conn.Release()
			r.logger.Error("failed to try advisory lock", zap.Error(err))
			if !sleep(ctx, 5*time.Second) {
				return nil, ctx.Err()
			}
			continue
		}
		if locked {
			r.logger.Info("advisory lock acquired", zap.Int64("lock_key", r.cfg.AdvisoryLockKey))
			return conn, nil
		}
		conn.Release()
		r.logger.Debug("advisory lock held by another instance", zap.Int64("lock_key", r.cfg.AdvisoryLockKey))
		if !sleep(ctx, 30*time.Second) {
			return nil, ctx.Err()
		}
	}
}

// ReconcileOnce checks one batch of stale pending checkouts.
func (r *StripeReconciler) ReconcileOnce(ctx context.Context) int {
	list, err := r.pending.ListPendingStripe(ctx, r.now().Add(-r.cfg.MinAge), r.cfg.BatchSize)
	if err != nil {
		r.logger.Error("failed to list pending payments", zap.Error(err))
		return 0
	}
	settled := 0
	for _, p := range list {
		if ctx.Err() != nil {
			return settled
		}
		log := r.logger.With(zap.String("payment_id", p.ID), zap.String("stripe_session_id", p.ProviderRef))
		sess, err := r.stripe.SessionStatus(ctx, p.ProviderRef)
		if err != nil {
			log.Warn("failed to fetch checkout session", zap.Error(err))
			continue
		}
		outcome, err := r.settler.SettleStripeSession(ctx, sess)
		if err != nil {
			log.Warn("failed to settle checkout session", zap.Error(err))
			continue
		}
		if outcome == payments.OutcomeProcessed {
			settled++
			log.Info("checkout reconciled", zap.String("payment_status", string(sess.PaymentStatus)))
		}
	}
	return settled
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
