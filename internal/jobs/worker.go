package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mpataki/trek/internal/models"
	"github.com/mpataki/trek/internal/orchestrator"
	"github.com/mpataki/trek/internal/storage"
)

// Progress checkpoints written while a job runs.
const (
	ProgressStarted   = 10
	ProgressReady     = 30
	ProgressExecuted  = 80
	ProgressCompleted = 100
)

const (
	pruneInterval = time.Hour
	settleTimeout = 5 * time.Second
)

// Worker drains the backlog, driving one pipeline run per claimed job.
type Worker struct {
	cache   Cache
	backlog Backlog
	runner  Runner
	cfg     Config
	now     func() time.Time
	logger  *slog.Logger

	// OnRetry, when set, is called after a failed attempt is rescheduled.
	OnRetry func(jobID string, attempt int, delay time.Duration)
}

func NewWorker(cache Cache, backlog Backlog, runner Runner, cfg Config, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Worker{
		cache:   cache,
		backlog: backlog,
		runner:  runner,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger,
	}
}

// Run processes jobs until ctx is cancelled. Jobs left active by a previous
// process are put back in line first, or failed when that was their last
// attempt.
func (w *Worker) Run(ctx context.Context) error {
	released, err := w.backlog.ReleaseStale(ctx)
	if err != nil {
		return fmt.Errorf("failed to release stale jobs: %w", err)
	}
	if released.Requeued > 0 {
		w.logger.Info("released stale jobs", "count", released.Requeued)
	}
	for _, job := range released.Exhausted {
		w.failExhausted(ctx, job)
	}

	w.logger.Info("worker started", "concurrency", w.cfg.Concurrency, "poll_interval", w.cfg.PollInterval)

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}

	w.prune(ctx)
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			w.logger.Info("worker stopped")
			return nil
		case <-ticker.C:
			w.prune(ctx)
		}
	}
}

func (w *Worker) loop(ctx context.Context) {
	for ctx.Err() == nil {
		processed, err := w.ProcessNext(ctx)
		if err != nil && ctx.Err() == nil {
			w.logger.Error("failed to process job", "error", err)
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

func (w *Worker) prune(ctx context.Context) {
	n, err := w.backlog.PruneFinished(ctx, w.now().Add(-w.cfg.Retention))
	if err != nil {
		w.logger.Warn("failed to prune finished jobs", "error", err)
		return
	}
	if n > 0 {
		w.logger.Info("cleaned up old jobs", "count", n)
	}
}

// ProcessNext claims and runs one due job. It reports false when nothing was
// due.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	claim, err := w.backlog.ClaimNext(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	if claim == nil {
		return false, nil
	}
	return true, w.process(ctx, claim)
}

func (w *Worker) process(ctx context.Context, claim *storage.Claim) error {
	job := claim.Job
	log := w.logger.With("job_id", job.ID, "attempt", claim.Attempt)

	rec := w.loadRecord(ctx, job)
	if rec.Status.Terminal() {
		log.Warn("job already finished, settling backlog", "status", rec.Status)
		if rec.Status == models.JobStatusCompleted {
			return w.backlog.Complete(ctx, job.ID)
		}
		return w.backlog.Fail(ctx, job.ID, rec.Error)
	}
	rec.Attempt = claim.Attempt

	log.Info("processing job")
	runErr := w.run(ctx, job, &rec, log)

	// Settlement must land even when shutdown cancelled ctx mid-run.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	if runErr != nil && ctx.Err() != nil {
		log.Info("job interrupted by shutdown, releasing", "error", runErr)
		if err := w.backlog.Release(settleCtx, job.ID); err != nil {
			return fmt.Errorf("failed to release %s: %w", job.ID, err)
		}
		return nil
	}
	if runErr == nil {
		if err := w.backlog.Complete(settleCtx, job.ID); err != nil {
			return fmt.Errorf("failed to settle %s: %w", job.ID, err)
		}
		log.Info("job completed")
		return nil
	}

	if claim.Final() {
		log.Error("job failed", "error", runErr)
		rec.Error = runErr.Error()
		if err := w.checkpoint(settleCtx, &rec, models.JobStatusFailed, rec.Progress); err != nil {
			log.Error("failed to record job failure", "error", err)
		}
		return w.backlog.Fail(settleCtx, job.ID, runErr.Error())
	}

	delay := Backoff(w.cfg.Backoff, claim.Attempt)
	log.Warn("job attempt failed, retrying", "error", runErr, "delay", delay)
	if err := w.backlog.Retry(settleCtx, job.ID, w.now().Add(delay), runErr.Error()); err != nil {
		return fmt.Errorf("failed to reschedule %s: %w", job.ID, err)
	}
	if w.OnRetry != nil {
		w.OnRetry(job.ID, claim.Attempt, delay)
	}
	return nil
}

// run is one attempt of the job. Each checkpoint is durable before the next
// step starts.
func (w *Worker) run(ctx context.Context, job models.Job, rec *models.JobRecord, log *slog.Logger) error {
	if err := w.checkpoint(ctx, rec, models.JobStatusActive, ProgressStarted); err != nil {
		return err
	}

	if !w.cache.TestConnection(ctx) {
		return ErrCacheUnavailable
	}
	if err := w.checkpoint(ctx, rec, models.JobStatusActive, ProgressReady); err != nil {
		return err
	}

	state, err := w.runner.Execute(ctx, job.Preferences, models.StageSelection)
	if err != nil {
		return err
	}
	if err := w.checkpoint(ctx, rec, models.JobStatusActive, ProgressExecuted); err != nil {
		return err
	}

	plan := orchestrator.BuildPlan(state)
	if err := w.cache.Set(ctx, storage.PlanKey(job.ID), plan, w.cfg.TTL); err != nil {
		return fmt.Errorf("failed to store plan: %w", err)
	}
	if err := w.cache.Set(ctx, storage.PreferencesKey(job.Preferences), plan, w.cfg.TTL); err != nil {
		log.Warn("failed to cache plan by location", "error", err)
	}

	rec.Result = plan
	if err := w.checkpoint(ctx, rec, models.JobStatusCompleted, ProgressCompleted); err != nil {
		return err
	}
	item := models.HistoryItem{
		ID:          job.ID,
		Preferences: job.Preferences,
		Result:      plan,
		CreatedAt:   w.now(),
	}
	if err := w.cache.PushToList(ctx, storage.HistoryKey(job.OwnerID), item); err != nil {
		log.Warn("failed to append history", "error", err)
	}
	return nil
}

// failExhausted records the failure of a job whose final attempt never
// finished.
func (w *Worker) failExhausted(ctx context.Context, job models.Job) {
	log := w.logger.With("job_id", job.ID)
	rec := w.loadRecord(ctx, job)
	if rec.Status.Terminal() {
		return
	}
	if rec.Status == models.JobStatusWaiting {
		if err := w.checkpoint(ctx, &rec, models.JobStatusActive, rec.Progress); err != nil {
			log.Error("failed to record job failure", "error", err)
			return
		}
	}
	rec.Error = storage.ErrAttemptsExhausted
	if err := w.checkpoint(ctx, &rec, models.JobStatusFailed, rec.Progress); err != nil {
		log.Error("failed to record job failure", "error", err)
		return
	}
	log.Error("job failed", "error", rec.Error)
}

// loadRecord returns the stored record for job, or a fresh one when it has
// expired or was never written.
func (w *Worker) loadRecord(ctx context.Context, job models.Job) models.JobRecord {
	var rec models.JobRecord
	if w.cache.Get(ctx, storage.JobKey(job.ID), &rec) {
		return rec
	}
	return models.JobRecord{
		ID:        job.ID,
		OwnerID:   job.OwnerID,
		Status:    models.JobStatusWaiting,
		CreatedAt: job.Timestamp,
	}
}

var errBadTransition = errors.New("invalid job status transition")

// checkpoint writes rec with the given status. Progress never goes down.
// rec is only updated once the write has succeeded.
func (w *Worker) checkpoint(ctx context.Context, rec *models.JobRecord, status models.JobStatus, progress int) error {
	if !rec.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", errBadTransition, rec.Status, status)
	}
	next := *rec
	next.Status = status
	next.Progress = max(rec.Progress, progress)
	next.UpdatedAt = w.now()
	if status != models.JobStatusCompleted {
		next.Result = nil
	}
	if status != models.JobStatusFailed {
		next.Error = ""
	}
	if err := w.cache.Set(ctx, storage.JobKey(next.ID), next, w.cfg.TTL); err != nil {
		return fmt.Errorf("failed to record progress %d%%: %w", progress, err)
	}
	*rec = next
	w.logger.Debug("job checkpoint", "job_id", rec.ID, "status", status, "progress", rec.Progress)
	return nil
}
