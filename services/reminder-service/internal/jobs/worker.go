package jobs

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/clinicaflow/clinica/libs/db"
	otelx "github.com/clinicaflow/clinica/libs/otel"
	"github.com/clinicaflow/clinica/libs/outbox"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const aggregateReminder = "reminder_job"

type Worker struct {
	pool       *db.Pool
	repo       *Repository
	outbox     *outbox.Repository
	logger     *zap.Logger
	interval   time.Duration
	batchSize  int
	backoff    time.Duration
	maxBackoff time.Duration
	now        func() time.Time
}

type WorkerConfig struct {
	Interval   time.Duration
	BatchSize  int
	Backoff    time.Duration
	MaxBackoff time.Duration
	Now        func() time.Time
}

func NewWorker(pool *db.Pool, repo *Repository, outboxRepo *outbox.Repository, logger *zap.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Minute
	}
	if cfg.MaxBackoff < cfg.Backoff {
		cfg.MaxBackoff = 30 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Worker{
		pool:       pool,
		repo:       repo,
		outbox:     outboxRepo,
		logger:     logger.Named("reminder_worker"),
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
		backoff:    cfg.Backoff,
		maxBackoff: cfg.MaxBackoff,
		now:        cfg.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("reminder batch failed", zap.Error(err))
			}
		}
	}
}

// partition separates jobs that can still be sent from jobs whose
// session has already started.
func partition(jobs []Job, now time.Time) (due, expired []Job) {
	for _, j := range jobs {
		if !j.StartsAt.After(now) {
			expired = append(expired, j)
			continue
		}
		due = append(due, j)
	}
	return due, expired
}

func (w *Worker) processBatch(ctx context.Context) error {
	now := w.now().UTC()
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	jobs, err := w.repo.FetchDue(ctx, tx, now, w.batchSize)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return tx.Commit(ctx)
	}

	due, expired := partition(jobs, now)
	if len(expired) > 0 {
		if err := w.repo.MarkExpired(ctx, tx, ids(expired)); err != nil {
			return err
		}
		w.logger.Info("reminders expired", zap.Int("count", len(expired)))
	}

	var sent []int64
	for _, job := range due {
		jobCtx := otelx.TraceContext{Parent: job.Traceparent, State: job.Tracestate}.Restore(ctx)
		if err := w.enqueue(jobCtx, tx, job, TopicReminderDue, job.Due()); err != nil {
			if ferr := w.fail(jobCtx, tx, job, now, err); ferr != nil {
				return ferr
			}
			continue
		}
		sent = append(sent, job.ID)
	}
	if err := w.repo.MarkProcessed(ctx, tx, sent); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if len(sent) > 0 {
		w.logger.Debug("reminders released", zap.Int("count", len(sent)))
	}
	return nil
}

// enqueue writes the event inside a savepoint so one bad job does not
// abort the batch transaction.
func (w *Worker) enqueue(ctx context.Context, tx pgx.Tx, job Job, topic string, payload any) error {
	evt, err := outbox.NewEvent(aggregateReminder, strconv.FormatInt(job.ID, 10), topic, payload)
	if err != nil {
		return err
	}
	sp, err := tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := w.outbox.Insert(ctx, sp, evt); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

func (w *Worker) fail(ctx context.Context, tx pgx.Tx, job Job, now time.Time, cause error) error {
	attempts := job.Attempts + 1
	next := now.Add(Backoff(w.backoff, w.maxBackoff, attempts))
	log := w.logger.With(zap.Int64("job_id", job.ID), zap.String("appointment_id", job.AppointmentID), zap.Int("attempts", attempts))
	if err := w.repo.MarkFailed(ctx, tx, job.ID, attempts, job.MaxAttempts, next, cause.Error()); err != nil {
		return err
	}
	if attempts < job.MaxAttempts {
		log.Warn("reminder enqueue failed; retrying", zap.Time("next_run_at", next), zap.Error(cause))
		return nil
	}
	log.Error("reminder moved to dead letter", zap.Error(cause))
	return w.enqueue(ctx, tx, job, TopicReminderDLQ, dlqPayload{
		DuePayload:  job.Due(),
		Attempts:    attempts,
		ErrorReason: cause.Error(),
		FailedAt:    now,
	})
}

func ids(jobs []Job) []int64 {
	out := make([]int64, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.ID)
	}
	return out
}
