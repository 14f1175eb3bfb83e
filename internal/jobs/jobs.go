package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mpataki/trek/internal/models"
	"github.com/mpataki/trek/internal/storage"
)

var (
	ErrMissingFields    = models.ErrMissingFields
	ErrMissingOwner     = errors.New("missing owner id")
	ErrCacheUnavailable = errors.New("cache store unavailable")
	ErrNotFound         = errors.New("job not found")
)

// Cache is the key/value store job records, plans and history live in.
type Cache interface {
	TestConnection(ctx context.Context) bool
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string, dst any) bool
	Delete(ctx context.Context, key string) error
	PushToList(ctx context.Context, key string, value any) error
	GetList(ctx context.Context, key string, start, end int) []json.RawMessage
}

// Backlog is the durable queue of pending work.
type Backlog interface {
	Enqueue(ctx context.Context, job models.Job, maxAttempts int) error
	ClaimNext(ctx context.Context) (*storage.Claim, error)
	Retry(ctx context.Context, jobID string, runAt time.Time, reason string) error
	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID string, reason string) error
	Dequeue(ctx context.Context, jobID string) error
	Release(ctx context.Context, jobID string) error
	ReleaseStale(ctx context.Context) (storage.StaleRelease, error)
	PruneFinished(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context) (storage.QueueStats, error)
}

// Runner executes one pipeline run.
type Runner interface {
	Execute(ctx context.Context, input models.Preferences, start models.StageID) (*models.ExecutionState, error)
}

type Config struct {
	Attempts     int
	Backoff      time.Duration
	TTL          time.Duration
	Concurrency  int
	PollInterval time.Duration
	Retention    time.Duration
}

func DefaultConfig() Config {
	return Config{
		Attempts:     3,
		Backoff:      2 * time.Second,
		TTL:          24 * time.Hour,
		Concurrency:  1,
		PollInterval: 500 * time.Millisecond,
		Retention:    7 * 24 * time.Hour,
	}
}

// Backoff is the delay before retrying after the given failed attempt
// (1-based): base, 2*base, 4*base, ...
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}
