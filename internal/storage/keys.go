package storage

import (
	"regexp"
	"strings"

	"github.com/mpataki/trek/internal/models"
)

const planPrefix = "travel_plan:"

var (
	slugStrip = regexp.MustCompile(`[^a-z0-9\s]`)
	slugSpace = regexp.MustCompile(`\s+`)
)

func PlanKey(id string) string       { return planPrefix + id }
func HistoryKey(owner string) string { return "user_history:" + owner }
func JobKey(jobID string) string     { return "job:" + jobID }

// Slug lowercases s, drops everything but letters, digits and whitespace, and
// joins whitespace runs with underscores.
func Slug(s string) string {
	s = slugStrip.ReplaceAllString(strings.ToLower(s), "")
	return strings.TrimSpace(slugSpace.ReplaceAllString(s, "_"))
}

// LocationKey addresses a plan by where and when rather than by job.
func LocationKey(destination, origin, startDate, endDate string) string {
	from := "anywhere"
	if origin != "" {
		from = Slug(origin)
	}
	dates := "flexible_dates"
	if startDate != "" && endDate != "" {
		dates = startDate + "_to_" + endDate
	}
	return planPrefix + Slug(destination) + ":from_" + from + ":" + dates
}

// PreferencesKey extends LocationKey with the budget tier and traveler count.
func PreferencesKey(p models.Preferences) string {
	key := LocationKey(p.Destination, p.ComingFrom, p.StartDate, p.EndDate)
	if p.Budget != "" {
		key += ":" + strings.ToLower(p.Budget)
	}
	if p.Travelers != "" {
		key += ":" + slugSpace.ReplaceAllString(strings.ToLower(p.Travelers), "_")
	}
	return key
}

// ChatKey addresses the conversation attached to a plan.
func ChatKey(p models.Preferences) string {
	return ChatKeyFor(LocationKey(p.Destination, p.ComingFrom, p.StartDate, p.EndDate))
}

// ChatKeyFor is ChatKey for a plan already addressed by key.
func ChatKeyFor(planKey string) string {
	return "chat:" + strings.TrimPrefix(planKey, planPrefix)
}

// IsPlanKey reports whether key already carries the plan prefix.
func IsPlanKey(key string) bool {
	return strings.HasPrefix(key, planPrefix)
}

type PlanKeyParts struct {
	Destination string
	Origin      string
	DateRange   string
	Budget      string
	Travelers   string
}

// ParsePlanKey recovers the readable parts of a location or preferences key.
func ParsePlanKey(key string) PlanKeyParts {
	parts := strings.Split(strings.TrimPrefix(key, planPrefix), ":")
	at := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}
	return PlanKeyParts{
		Destination: strings.ReplaceAll(at(0), "_", " "),
		Origin:      strings.ReplaceAll(strings.TrimPrefix(at(1), "from_"), "_", " "),
		DateRange:   at(2),
		Budget:      at(3),
		Travelers:   at(4),
	}
}
