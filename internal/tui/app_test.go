package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpataki/trek/internal/models"
	"github.com/mpataki/trek/internal/storage"
)

var errMissing = errors.New("job not found")

type stubSource struct {
	jobs    map[string]*models.JobRecord
	history []models.HistoryItem
	stats   storage.QueueStats
}

func (s *stubSource) GetJobStatus(_ context.Context, id string) (*models.JobRecord, error) {
	rec, ok := s.jobs[id]
	if !ok {
		return nil, errMissing
	}
	return rec, nil
}

func (s *stubSource) History(context.Context, string) ([]models.HistoryItem, error) {
	return s.history, nil
}

func (s *stubSource) Stats(context.Context) (storage.QueueStats, error) {
	return s.stats, nil
}

func samplePlan() *models.Plan {
	return &models.Plan{
		Success: true,
		Orchestration: models.Orchestration{
			Steps:          3,
			StagesExecuted: []string{"city-selector", "local-expert", "travel-concierge"},
			ToolCalls:      8,
		},
		Recommendations: []models.CityRecommendation{{City: "Seoul", Rating: 4.7, BestFor: "Food"}},
		Itinerary: models.PlanItinerary{
			Destination: "Seoul",
			Schedule: []models.DaySchedule{{
				Day:        1,
				Title:      "Arrival",
				Activities: []models.Activity{{Time: "09:00", Activity: "Gyeongbokgung Palace"}},
			}},
			Budget: models.BudgetSummary{Amount: "$3375", Currency: "USD"},
		},
	}
}

func newTestApp() (*App, *stubSource) {
	src := &stubSource{
		jobs: map[string]*models.JobRecord{
			"travel_a": {ID: "travel_a", Status: models.JobStatusCompleted, Progress: 100, Result: samplePlan()},
			"travel_b": {ID: "travel_b", Status: models.JobStatusActive, Progress: 30},
		},
		history: []models.HistoryItem{{
			ID:          "travel_a",
			Preferences: models.Preferences{Destination: "Seoul", Budget: "luxury"},
			Result:      samplePlan(),
			CreatedAt:   time.Now(),
		}},
		stats: storage.QueueStats{Active: 1, Completed: 1},
	}
	return NewApp(context.Background(), src, "user-1", []string{"travel_a", "travel_b", "travel_gone"}), src
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestLoadJobs(t *testing.T) {
	app, _ := newTestApp()

	msg := app.loadJobs()
	app.Update(msg)

	require.Len(t, app.jobs, 2)
	assert.Contains(t, app.jobErrs, "travel_gone")
	assert.True(t, app.hasPendingJobs())

	view := app.View()
	assert.Contains(t, view, "travel_a")
	assert.Contains(t, view, "completed")
	assert.Contains(t, view, "job not found")
	assert.Contains(t, view, "active:1")
}

func TestPendingClearsWhenTerminal(t *testing.T) {
	app, src := newTestApp()
	src.jobs["travel_b"].Status = models.JobStatusFailed
	app.Update(app.loadJobs())

	assert.False(t, app.hasPendingJobs())
}

func TestPlanNavigation(t *testing.T) {
	app, _ := newTestApp()
	app.Update(app.loadJobs())

	app.Update(key("enter"))
	require.Equal(t, ViewPlan, app.view)
	view := app.View()
	assert.Contains(t, view, "Seoul")
	assert.Contains(t, view, "Gyeongbokgung Palace")
	assert.Contains(t, view, "$3375")

	app.Update(key("esc"))
	assert.Equal(t, ViewJobs, app.view)
	assert.Nil(t, app.plan)

	// a job without a result stays on the list
	app.Update(key("down"))
	app.Update(key("enter"))
	assert.Equal(t, ViewJobs, app.view)
}

func TestHistoryView(t *testing.T) {
	app, _ := newTestApp()

	_, cmd := app.Update(key("h"))
	require.NotNil(t, cmd)
	app.Update(cmd())
	require.Equal(t, ViewHistory, app.view)
	assert.Contains(t, app.View(), "Seoul")

	app.Update(key("enter"))
	require.Equal(t, ViewPlan, app.view)

	app.Update(key("esc"))
	assert.Equal(t, ViewHistory, app.view)

	app.Update(key("esc"))
	assert.Equal(t, ViewJobs, app.view)
}

func TestQuit(t *testing.T) {
	app, _ := newTestApp()
	_, cmd := app.Update(key("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
