package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mpataki/trek/internal/llm"
	"github.com/mpataki/trek/internal/models"
	"github.com/mpataki/trek/internal/orchestrator"
	"github.com/mpataki/trek/internal/storage"
)

// Service accepts planning requests and answers status queries.
type Service struct {
	cache   Cache
	backlog Backlog
	runner  Runner
	cfg     Config
	newID   func() string
	now     func() time.Time
	logger  *slog.Logger

	// Generator backs Chat. Chat is unavailable while it is nil.
	Generator llm.Generator
}

func NewService(cache Cache, backlog Backlog, runner Runner, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cache:   cache,
		backlog: backlog,
		runner:  runner,
		cfg:     cfg,
		newID:   func() string { return "travel_" + uuid.NewString() },
		now:     time.Now,
		logger:  logger,
	}
}

// CreateJob validates the request, records it as waiting and queues it.
// Nothing is persisted when the cache is unreachable or queuing fails.
func (s *Service) CreateJob(ctx context.Context, ownerID string, prefs models.Preferences) (string, error) {
	if strings.TrimSpace(ownerID) == "" {
		return "", ErrMissingOwner
	}
	if err := prefs.Validate(); err != nil {
		return "", err
	}
	if !s.cache.TestConnection(ctx) {
		return "", ErrCacheUnavailable
	}

	now := s.now()
	id := s.newID()
	rec := models.JobRecord{
		ID:        id,
		OwnerID:   ownerID,
		Status:    models.JobStatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.cache.Set(ctx, storage.JobKey(id), rec, s.cfg.TTL); err != nil {
		return "", fmt.Errorf("failed to record job %s: %w", id, err)
	}

	job := models.Job{ID: id, OwnerID: ownerID, Preferences: prefs, Timestamp: now}
	if err := s.backlog.Enqueue(ctx, job, s.cfg.Attempts); err != nil {
		if derr := s.cache.Delete(ctx, storage.JobKey(id)); derr != nil {
			s.logger.Error("failed to remove orphaned job record", "job_id", id, "error", derr)
		}
		return "", fmt.Errorf("failed to queue job %s: %w", id, err)
	}

	s.logger.Info("job created", "job_id", id, "owner", ownerID, "destination", prefs.Destination)
	return id, nil
}

func (s *Service) GetJobStatus(ctx context.Context, jobID string) (*models.JobRecord, error) {
	var rec models.JobRecord
	if !s.cache.Get(ctx, storage.JobKey(jobID), &rec) {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// History returns the owner's completed plans, most recent first.
func (s *Service) History(ctx context.Context, ownerID string) ([]models.HistoryItem, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrMissingOwner
	}
	raw := s.cache.GetList(ctx, storage.HistoryKey(ownerID), 0, -1)
	items := make([]models.HistoryItem, 0, len(raw))
	for _, r := range raw {
		var item models.HistoryItem
		if err := json.Unmarshal(r, &item); err != nil {
			s.logger.Warn("skipping unreadable history item", "owner", ownerID, "error", err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Service) Stats(ctx context.Context) (storage.QueueStats, error) {
	return s.backlog.Stats(ctx)
}

// Cleanup drops finished backlog entries older than the retention window.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	n, err := s.backlog.PruneFinished(ctx, s.now().Add(-s.cfg.Retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("cleaned up old jobs", "count", n)
	}
	return n, nil
}

// Plan runs the pipeline inline. The plan is cached under its location key
// when the cache is reachable; caching failures do not fail the request.
func (s *Service) Plan(ctx context.Context, prefs models.Preferences) (*models.Plan, error) {
	if err := prefs.Validate(); err != nil {
		return nil, err
	}
	state, err := s.runner.Execute(ctx, prefs, models.StageSelection)
	if err != nil {
		return nil, err
	}
	plan := orchestrator.BuildPlan(state)

	if s.cache.TestConnection(ctx) {
		key := storage.PreferencesKey(prefs)
		if err := s.cache.Set(ctx, key, plan, s.cfg.TTL); err != nil {
			s.logger.Warn("failed to cache plan", "key", key, "error", err)
		}
	}
	return plan, nil
}

// CachedPlan looks up a plan previously stored for these preferences.
func (s *Service) CachedPlan(ctx context.Context, prefs models.Preferences) (*models.Plan, bool) {
	var plan models.Plan
	if !s.cache.Get(ctx, storage.PreferencesKey(prefs), &plan) {
		return nil, false
	}
	return &plan, true
}
