package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpataki/trek/internal/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestStorage(t *testing.T) (*Storage, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)}
	s, err := New(filepath.Join(t.TempDir(), "trek.db"), WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func TestSetGetRoundTrip(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	rec := models.JobRecord{ID: "travel_1", Status: models.JobStatusWaiting, Progress: 0}
	require.NoError(t, s.Set(ctx, JobKey(rec.ID), rec, time.Hour))

	var got models.JobRecord
	require.True(t, s.Get(ctx, JobKey(rec.ID), &got))
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Status, got.Status)
	assert.True(t, s.Exists(ctx, JobKey(rec.ID)))
}

func TestGetExpiredIsAbsent(t *testing.T) {
	s, clock := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))
	clock.Advance(2 * time.Minute)

	var v string
	assert.False(t, s.Get(ctx, "k", &v))
	assert.False(t, s.Exists(ctx, "k"))

	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGetUndecodableIsAbsent(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "a string", 0))
	var n int
	assert.False(t, s.Get(ctx, "k", &n))
}

func TestGetAfterCloseIsAbsent(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", 1, 0))
	require.NoError(t, s.Close())

	var n int
	assert.False(t, s.Get(ctx, "k", &n))
	assert.False(t, s.TestConnection(ctx))
}

func TestDelete(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", 1, 0))
	require.NoError(t, s.PushToList(ctx, "k", 2))
	require.NoError(t, s.Delete(ctx, "k"))
	assert.False(t, s.Exists(ctx, "k"))
}

func TestListCappedMostRecentFirst(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		require.NoError(t, s.PushToList(ctx, "list", i))
	}

	items := s.GetList(ctx, "list", 0, -1)
	require.Len(t, items, MaxListLength)

	var first, last int
	require.NoError(t, json.Unmarshal(items[0], &first))
	require.NoError(t, json.Unmarshal(items[len(items)-1], &last))
	assert.Equal(t, 59, first)
	assert.Equal(t, 10, last)

	assert.Len(t, s.GetList(ctx, "list", 0, 4), 5)
	assert.Len(t, s.GetList(ctx, "list", -3, -1), 3)
	assert.Empty(t, s.GetList(ctx, "list", 70, 80))
	assert.Empty(t, s.GetList(ctx, "missing", 0, -1))
}

func TestListRange(t *testing.T) {
	tests := []struct {
		n, start, end int
		from, to      int
		ok            bool
	}{
		{n: 5, start: 0, end: -1, from: 0, to: 4, ok: true},
		{n: 5, start: 1, end: 2, from: 1, to: 2, ok: true},
		{n: 5, start: 0, end: 99, from: 0, to: 4, ok: true},
		{n: 5, start: -2, end: -1, from: 3, to: 4, ok: true},
		{n: 5, start: 3, end: 1, ok: false},
		{n: 0, start: 0, end: -1, ok: false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d[%d:%d]", tt.n, tt.start, tt.end), func(t *testing.T) {
			from, to, ok := listRange(tt.n, tt.start, tt.end)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.from, from)
				assert.Equal(t, tt.to, to)
			}
		})
	}
}

func TestBacklogClaimRetryComplete(t *testing.T) {
	s, clock := newTestStorage(t)
	ctx := context.Background()

	job := models.Job{ID: "travel_a", OwnerID: "u1", Preferences: models.Preferences{Destination: "Oslo"}}
	require.NoError(t, s.Enqueue(ctx, job, 3))

	claim, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, "travel_a", claim.Job.ID)
	assert.Equal(t, "Oslo", claim.Job.Preferences.Destination)
	assert.Equal(t, 1, claim.Attempt)
	assert.False(t, claim.Final())

	none, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, s.Retry(ctx, job.ID, clock.Now().Add(2*time.Second), "boom"))
	none, err = s.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, none, "retry must not be due before its backoff")

	clock.Advance(2 * time.Second)
	claim, err = s.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, 2, claim.Attempt)

	require.NoError(t, s.Complete(ctx, job.ID))
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueStats{Completed: 1}, stats)

	clock.Advance(8 * 24 * time.Hour)
	n, err := s.PruneFinished(ctx, clock.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestBacklogReleaseStale(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, models.Job{ID: "travel_b"}, 3))
	_, err := s.ClaimNext(ctx)
	require.NoError(t, err)

	released, err := s.ReleaseStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), released.Requeued)
	assert.Empty(t, released.Exhausted)

	claim, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, 2, claim.Attempt)
}

func TestBacklogReleaseStaleOnFinalAttempt(t *testing.T) {
	s, clock := newTestStorage(t)
	ctx := context.Background()

	job := models.Job{ID: "travel_c", OwnerID: "user-1"}
	require.NoError(t, s.Enqueue(ctx, job, 3))
	for i := 1; i <= 2; i++ {
		claim, err := s.ClaimNext(ctx)
		require.NoError(t, err)
		require.NotNil(t, claim)
		require.NoError(t, s.Retry(ctx, job.ID, clock.Now(), "boom"))
	}
	claim, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claim)
	require.True(t, claim.Final())

	// The process running the final attempt died.
	released, err := s.ReleaseStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, released.Requeued)
	require.Len(t, released.Exhausted, 1)
	assert.Equal(t, "travel_c", released.Exhausted[0].ID)
	assert.Equal(t, "user-1", released.Exhausted[0].OwnerID)

	clock.Advance(time.Hour)
	claim, err = s.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, claim)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueStats{Failed: 1}, stats)
}

func TestBacklogClaimSkipsExhausted(t *testing.T) {
	s, clock := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, models.Job{ID: "travel_d"}, 1))
	claim, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claim)

	// Put back as waiting without a refund, as a crashed retry would.
	require.NoError(t, s.Retry(ctx, "travel_d", clock.Now(), "boom"))
	claim, err = s.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, claim)
}

func TestBacklogRelease(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, models.Job{ID: "travel_e"}, 3))
	claim, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, claim.Attempt)

	require.NoError(t, s.Release(ctx, "travel_e"))
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueStats{Waiting: 1}, stats)

	claim, err = s.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, 1, claim.Attempt)
}

func TestKeys(t *testing.T) {
	p := models.Preferences{
		Destination: "Seoul, South Korea",
		ComingFrom:  "Lagos",
		StartDate:   "2025-10-01",
		EndDate:     "2025-10-10",
		Budget:      "Luxury",
		Travelers:   "5 plus",
	}

	assert.Equal(t, "travel_plan:abc", PlanKey("abc"))
	assert.Equal(t, "job:abc", JobKey("abc"))
	assert.Equal(t, "user_history:u1", HistoryKey("u1"))
	assert.Equal(t, "travel_plan:seoul_south_korea:from_lagos:2025-10-01_to_2025-10-10",
		LocationKey(p.Destination, p.ComingFrom, p.StartDate, p.EndDate))
	assert.Equal(t, "travel_plan:seoul_south_korea:from_lagos:2025-10-01_to_2025-10-10:luxury:5_plus",
		PreferencesKey(p))
	assert.Equal(t, "chat:seoul_south_korea:from_lagos:2025-10-01_to_2025-10-10", ChatKey(p))
	assert.Equal(t, "chat:abc", ChatKeyFor(PlanKey("abc")))
	assert.True(t, IsPlanKey(PlanKey("abc")))
	assert.False(t, IsPlanKey("travel_abc"))
	assert.Equal(t, "travel_plan:paris:from_anywhere:flexible_dates", LocationKey("Paris!", "", "", ""))

	parts := ParsePlanKey(PreferencesKey(p))
	assert.Equal(t, "seoul south korea", parts.Destination)
	assert.Equal(t, "lagos", parts.Origin)
	assert.Equal(t, "2025-10-01_to_2025-10-10", parts.DateRange)
	assert.Equal(t, "luxury", parts.Budget)
	assert.Equal(t, "5_plus", parts.Travelers)
}
