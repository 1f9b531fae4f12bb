package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lt0911/procure-flow/internal/core/domain"
	"github.com/lt0911/procure-flow/internal/port"
)

type ExecutorConfig struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	LockTTL        time.Duration
	PollInterval   time.Duration
	BatchSize      int
}

func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxAttempts:    5,
		AttemptTimeout: 30 * time.Second,
		BackoffBase:    2 * time.Second,
		BackoffCap:     5 * time.Minute,
		LockTTL:        30 * time.Second,
		PollInterval:   2 * time.Second,
		BatchSize:      50,
	}
}

// JobExecutor applies workflow side effects at-least-once with
// exactly-once observable effect. It never decides idempotence from its
// own status rows: the stock ledger's mutation records are the source of
// truth, so a crash between "mark succeeded" and commit is harmless.
type JobExecutor struct {
	db       port.DatabaseRepository
	cache    port.CacheRepository
	locker   port.Locker
	ledger   *StockLedger
	notifier port.Notifier
	log      *logrus.Logger
	cfg      ExecutorConfig
}

func NewJobExecutor(db port.DatabaseRepository, cache port.CacheRepository, locker port.Locker, ledger *StockLedger, notifier port.Notifier, log *logrus.Logger, cfg ExecutorConfig) *JobExecutor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultExecutorConfig().BatchSize
	}
	return &JobExecutor{db: db, cache: cache, locker: locker, ledger: ledger, notifier: notifier, log: log, cfg: cfg}
}

// Submit enqueues (or re-enqueues) the fulfillment job for a paid order
// and returns its id. The idempotency key is derived from the order, so
// repeated submissions collapse onto the existing job.
func (x *JobExecutor) Submit(ctx context.Context, tenantID, orderID string) (string, error) {
	order, err := x.db.GetOrder(ctx, tenantID, orderID)
	if err != nil {
		return "", x.guardErr(err, "order", orderID, tenantID)
	}
	if order.TenantID != tenantID {
		return "", x.securityErr("order", orderID, tenantID)
	}
	if order.Status != domain.OrderStatusPaid && order.Status != domain.OrderStatusFulfilled {
		return "", fmt.Errorf("submit fulfillment for %s order: %w", order.Status, domain.ErrInvalidTransition)
	}

	key := domain.FulfillmentKey(orderID)
	if claimed, cacheErr := x.cache.ClaimKey(ctx, "jobkey:"+key, x.cfg.LockTTL); cacheErr == nil && !claimed {
		x.log.WithField("order_id", orderID).Debug("duplicate fulfillment submit")
	}

	job := domain.NewFulfillmentJob(*order, x.cfg.MaxAttempts, time.Now().UTC())
	stored, err := x.db.CreateJob(ctx, job)
	if err != nil {
		return "", fmt.Errorf("persist job: %w", err)
	}
	return stored.ID, nil
}

// RunOnce executes one attempt of a job. It is safe to call any number of
// times for the same job, including concurrently from independent workers:
// a per-job lock drops concurrent callers, finished jobs return
// immediately, and the ledger refuses double application.
func (x *JobExecutor) RunOnce(ctx context.Context, tenantID, jobID string) error {
	job, err := x.db.GetJob(ctx, tenantID, jobID)
	if err != nil {
		return x.guardErr(err, "job", jobID, tenantID)
	}
	if job.TenantID != tenantID {
		return x.securityErr("job", jobID, tenantID)
	}
	if job.Status == domain.JobStatusSucceeded || job.Status == domain.JobStatusFailed {
		return nil
	}

	release, ok, err := x.locker.Obtain(ctx, "joblock:"+jobID, x.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("obtain job lock: %w", err)
	}
	if !ok {
		return nil
	}
	defer release()

	attemptCtx, cancel := context.WithTimeout(ctx, x.cfg.AttemptTimeout)
	defer cancel()

	// Order state is re-read on every attempt so that work enqueued before
	// a manual cancellation aborts instead of mutating stock.
	order, err := x.db.GetOrder(attemptCtx, tenantID, job.OrderID)
	if err != nil {
		return x.failAttempt(ctx, job, fmt.Errorf("load order %s: %w", job.OrderID, err))
	}
	if order.Status == domain.OrderStatusCancelled {
		job.Status = domain.JobStatusSucceeded
		job.LastError = "order cancelled before fulfillment"
		job.UpdatedAt = time.Now().UTC()
		if err := x.db.UpdateJob(ctx, *job); err != nil {
			return fmt.Errorf("record cancelled-order abort: %w", err)
		}
		x.log.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"job_id":    job.ID,
			"order_id":  order.ID,
		}).Info("fulfillment aborted, order cancelled")
		return nil
	}

	job.Status = domain.JobStatusRunning
	job.UpdatedAt = time.Now().UTC()
	if err := x.db.UpdateJob(ctx, *job); err != nil {
		return x.failAttempt(ctx, job, fmt.Errorf("mark job running: %w", err))
	}

	for _, item := range order.Items {
		_, err := x.ledger.ApplyDelta(attemptCtx, tenantID, item.ProductID, item.Quantity, order.ID)
		if errors.Is(err, domain.ErrDuplicateApplication) {
			continue // applied on an earlier attempt
		}
		if err != nil {
			return x.failAttempt(ctx, job, fmt.Errorf("apply item %s: %w", item.ProductID, err))
		}
	}

	if err := x.fulfillOrder(attemptCtx, tenantID, order.ID); err != nil {
		return x.failAttempt(ctx, job, err)
	}

	job.Status = domain.JobStatusSucceeded
	job.LastError = ""
	job.UpdatedAt = time.Now().UTC()
	if err := x.db.UpdateJob(ctx, *job); err != nil {
		// The effect is committed; a retry will see FULFILLED plus
		// duplicate guards and converge on SUCCEEDED.
		return x.failAttempt(ctx, job, fmt.Errorf("mark job succeeded: %w", err))
	}

	x.log.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"job_id":    job.ID,
		"order_id":  order.ID,
		"attempts":  job.Attempts + 1,
	}).Info("fulfillment applied")

	if fulfilled, err := x.db.GetOrder(ctx, tenantID, order.ID); err == nil {
		x.notifier.OrderFulfilled(*fulfilled)
	}
	return nil
}

// Run polls for due jobs until the context is cancelled. Multiple Run
// loops may execute concurrently; the per-job lock keeps them from
// stepping on each other.
func (x *JobExecutor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		x.processDue(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(x.cfg.PollInterval):
		}
	}
}

// DueJobs exposes the scheduler view: queued jobs ready to run at now.
func (x *JobExecutor) DueJobs(ctx context.Context, now time.Time) ([]domain.Job, error) {
	jobs, err := x.db.DueJobs(ctx, now, x.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}
	return jobs, nil
}

func (x *JobExecutor) processDue(ctx context.Context) {
	jobs, err := x.db.DueJobs(ctx, time.Now().UTC(), x.cfg.BatchSize)
	if err != nil {
		x.log.Errorf("poll due jobs: %v", err)
		return
	}
	for _, job := range jobs {
		if err := x.RunOnce(ctx, job.TenantID, job.ID); err != nil {
			x.log.WithFields(logrus.Fields{
				"tenant_id": job.TenantID,
				"job_id":    job.ID,
			}).Errorf("job attempt failed: %v", err)
		}
	}
}

// fulfillOrder transitions PAID to FULFILLED. An order already FULFILLED
// (previous attempt crashed after commit) is fine; anything else is not.
func (x *JobExecutor) fulfillOrder(ctx context.Context, tenantID, orderID string) error {
	order, err := x.db.GetOrder(ctx, tenantID, orderID)
	if err != nil {
		return fmt.Errorf("reload order %s: %w", orderID, err)
	}
	if order.Status == domain.OrderStatusFulfilled {
		return nil
	}
	if order.Status != domain.OrderStatusPaid {
		return fmt.Errorf("fulfill from %s: %w", order.Status, domain.ErrInvalidTransition)
	}

	expect := order.Version
	order.Status = domain.OrderStatusFulfilled
	order.UpdatedAt = time.Now().UTC()
	order.Version++
	if err := x.db.UpdateOrder(ctx, *order, expect); err != nil {
		return fmt.Errorf("mark order fulfilled: %w", err)
	}
	return nil
}

func (x *JobExecutor) failAttempt(ctx context.Context, job *domain.Job, cause error) error {
	now := time.Now().UTC()
	job.Attempts++
	job.LastError = cause.Error()
	job.UpdatedAt = now

	if job.Attempts >= job.MaxAttempts {
		job.Status = domain.JobStatusFailed
		if err := x.db.UpdateJob(ctx, *job); err != nil {
			x.log.WithField("job_id", job.ID).Errorf("record job failure: %v", err)
		}
		x.log.WithFields(logrus.Fields{
			"tenant_id": job.TenantID,
			"job_id":    job.ID,
			"order_id":  job.OrderID,
			"attempts":  job.Attempts,
		}).Errorf("job exhausted retries: %v", cause)
		x.notifier.JobFailed(*job, cause.Error())
		return fmt.Errorf("job %s failed permanently: %w", job.ID, cause)
	}

	job.Status = domain.JobStatusQueued
	job.NextRunAt = now.Add(x.backoff(job.Attempts))
	if err := x.db.UpdateJob(ctx, *job); err != nil {
		x.log.WithField("job_id", job.ID).Errorf("record job retry: %v", err)
	}
	x.log.WithFields(logrus.Fields{
		"tenant_id":   job.TenantID,
		"job_id":      job.ID,
		"order_id":    job.OrderID,
		"attempts":    job.Attempts,
		"next_run_at": job.NextRunAt,
	}).Warnf("job attempt failed, requeued: %v", cause)
	return fmt.Errorf("job %s attempt %d failed: %w", job.ID, job.Attempts, cause)
}

// backoff doubles per attempt from the base, capped.
func (x *JobExecutor) backoff(attempts int) time.Duration {
	d := x.cfg.BackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= x.cfg.BackoffCap {
			return x.cfg.BackoffCap
		}
	}
	if d > x.cfg.BackoffCap {
		return x.cfg.BackoffCap
	}
	return d
}

func (x *JobExecutor) guardErr(err error, kind, id, tenantID string) error {
	if errors.Is(err, domain.ErrCrossTenantAccess) {
		return x.securityErr(kind, id, tenantID)
	}
	return fmt.Errorf("load %s %s: %w", kind, id, err)
}

func (x *JobExecutor) securityErr(kind, id, tenantID string) error {
	x.log.WithFields(logrus.Fields{
		"security":  "cross_tenant",
		"entity":    kind,
		"entity_id": id,
		"tenant_id": tenantID,
	}).Warn("cross-tenant access rejected")
	return fmt.Errorf("%s %s: %w", kind, id, domain.ErrCrossTenantAccess)
}
