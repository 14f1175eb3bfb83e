package stages

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mpataki/trek/internal/models"
)

const (
	baseDailyBudget  = 250.0
	maxScheduledDays = 5
)

// Scheduling builds the day-by-day itinerary. It is the only stage that
// completes the run.
type Scheduling struct {
	opts Options
}

func (s *Scheduling) ID() models.StageID { return models.StageScheduling }

func (s *Scheduling) Run(ctx context.Context, state *models.ExecutionState) (*Outcome, error) {
	p := state.Input
	city := selectedCity(state)
	var insights []models.LocalInsight
	if local := state.StageOutputs.Enrichment(); local != nil {
		insights = local.Insights
	}
	days := TripDays(p.StartDate, p.EndDate)

	var out models.Itinerary
	if generate(ctx, s.opts, s.ID(), schedulingPrompt(city, p, days, insights), schedulingSchema, &out, func() bool {
		return len(out.Schedule) > 0
	}) {
		out.Calculations = schedulingCalculations(p, days)
	} else {
		out = s.fallback(city, p, days, insights)
	}

	amount := out.TotalBudget.Amount
	if amount == "" {
		amount = "0"
	}

	return &Outcome{
		Summary:  "FINAL ANSWER - Complete travel itinerary generated",
		Output:   &out,
		Complete: true,
		ToolRequests: []models.ToolRequest{{
			Tool:       models.ToolCalculate,
			Expression: "budget analysis for " + amount,
			Purpose:    "budget_calculation",
		}},
	}, nil
}

// TripDays is the whole number of days between two ISO dates, at least 1.
func TripDays(start, end string) int {
	s, err1 := time.Parse(time.DateOnly, start)
	e, err2 := time.Parse(time.DateOnly, end)
	if err1 != nil || err2 != nil {
		return 1
	}
	days := int(math.Ceil(math.Abs(e.Sub(s).Hours()) / 24))
	if days < 1 {
		return 1
	}
	return days
}

func addDays(date string, n int) string {
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, n).Format(time.DateOnly)
}

func (s *Scheduling) fallback(city string, p models.Preferences, days int, insights []models.LocalInsight) models.Itinerary {
	daily := int(math.Round(baseDailyBudget * p.BudgetMultiplier()))
	share := func(pct float64) string {
		return fmt.Sprintf("$%d (%d%%)", int(math.Round(float64(daily)*pct*float64(days))), int(math.Round(pct*100)))
	}

	return models.Itinerary{
		Schedule: citySchedule(city, p.StartDate, days, daily, insights),
		TotalBudget: models.BudgetSummary{
			Amount:   fmt.Sprintf("$%d", daily*days),
			Currency: "USD",
			Breakdown: models.BudgetBreakdown{
				Accommodation: share(0.35),
				Food:          share(0.30),
				Activities:    share(0.25),
				Transport:     share(0.10),
				Misc:          share(0.05),
			},
		},
		Logistics: models.Logistics{
			Transportation: []string{
				fmt.Sprintf("Purchase %s local transportation pass", city),
				fmt.Sprintf("Download %s transit app", city),
				"Keep emergency taxi numbers handy",
				fmt.Sprintf("Research %s airport transfer options", city),
			},
			Packing: []string{
				"Comfortable walking shoes",
				"Weather-appropriate clothing for the season",
				"Portable charger and local adapters",
				"Travel insurance documents",
				fmt.Sprintf("Local currency for %s", city),
			},
			Documents: []string{
				"Valid passport (6+ months remaining)",
				"Travel insurance policy",
				"Hotel confirmation",
				"Emergency contact information",
				fmt.Sprintf("Visa requirements for %s (if applicable)", city),
			},
			Emergency: map[string]string{
				"police":  "Local emergency number",
				"medical": "Local hospital contact",
				"embassy": "Home country embassy contact",
			},
		},
		Calculations: schedulingCalculations(p, days),
		Confidence:   0.92,
	}
}

type dayTheme struct {
	title         string
	theme         string
	neighborhoods [2]string
}

// genericSchedule fills a themed day plan for any city. Hidden gems take the
// afternoon slot and local favorites the lunch slot, one per day while they
// last; cultural tips are added to every day's notes.
func genericSchedule(city, start string, days, daily int, insights []models.LocalInsight) []models.DaySchedule {
	themes := [maxScheduledDays]dayTheme{
		{"Historic " + city + " Discovery", "History & Culture", [2]string{"Old Town", "Historic District"}},
		{city + " Food & Market Adventure", "Culinary Experience", [2]string{"Market District", "Food Quarter"}},
		{"Art & Museums in " + city, "Art & Culture", [2]string{"Museum District", "Arts Quarter"}},
		{"Local Life in " + city, "Local Experience", [2]string{"Residential Areas", "Local Markets"}},
		{"Nature & Views around " + city, "Nature & Relaxation", [2]string{"Parks", "Scenic Areas"}},
	}
	byType := insightsByType(insights)
	gems, favorites := byType["hidden_gem"], byType["local_favorite"]

	notes := []string{
		fmt.Sprintf("Each day explores different aspects of %s", city),
		"Comfortable walking shoes essential",
		"Try local transportation",
		"Learn basic local phrases",
	}
	for _, tip := range byType["cultural_tip"] {
		if tip.LocalTip != "" {
			notes = append(notes, tip.LocalTip)
		} else if tip.Description != "" {
			notes = append(notes, tip.Description)
		}
	}

	n := min(days, maxScheduledDays)
	schedule := make([]models.DaySchedule, 0, n)
	for i := 0; i < n; i++ {
		th := themes[i]
		lunch := models.Activity{
			Time:          "12:30",
			Activity:      fmt.Sprintf("Local %s Lunch", city),
			Type:          "dining",
			SpecificPlace: fmt.Sprintf("Traditional %s Restaurant", city),
			Address:       th.neighborhoods[0],
			Description:   fmt.Sprintf("Authentic local cuisine in the heart of %s", city),
			Duration:      "1.5 hours",
			Cost:          "$35",
			Tips:          []string{"Try local specialties", "Ask for recommendations"},
		}
		if i < len(favorites) {
			lunch = insightActivity(lunch, favorites[i])
		}
		afternoon := models.Activity{
			Time:          "15:00",
			Activity:      fmt.Sprintf("Afternoon %s Exploration", city),
			Type:          "sightseeing",
			SpecificPlace: city + " Hidden Gem",
			Address:       th.neighborhoods[1],
			Description:   "Discover lesser-known attractions and local favorites",
			Duration:      "2 hours",
			Cost:          "$15",
			Tips:          []string{"Explore on foot", "Talk to locals", "Take your time"},
		}
		if i < len(gems) {
			afternoon = insightActivity(afternoon, gems[i])
		}

		acts := []models.Activity{
			{
				Time:          "09:00",
				Activity:      fmt.Sprintf("Morning %s Experience", th.theme),
				Type:          "cultural",
				SpecificPlace: city + " Main Attraction",
				Address:       "Central " + city,
				Description:   fmt.Sprintf("Explore the best of %s's %s", city, strings.ToLower(th.theme)),
				Duration:      "2.5 hours",
				Cost:          "$25",
				Tips:          []string{"Arrive early", "Bring camera", "Comfortable shoes recommended"},
			},
			lunch,
			afternoon,
			{
				Time:          "18:30",
				Activity:      fmt.Sprintf("Evening %s Experience", city),
				Type:          "leisure",
				SpecificPlace: city + " Evening Spot",
				Address:       "City Center",
				Description:   fmt.Sprintf("End the day with a memorable %s experience", city),
				Duration:      "2 hours",
				Cost:          "$30",
				Tips:          []string{"Perfect for sunset", "Bring layers", "Great photo opportunities"},
			},
		}
		schedule = append(schedule, models.DaySchedule{
			Day:           i + 1,
			Date:          addDays(start, i),
			Title:         th.title,
			Theme:         th.theme,
			Activities:    acts,
			DailyBudget:   fmt.Sprintf("$%d", daily),
			Neighborhoods: th.neighborhoods[:],
			Highlights:    highlights(acts[:3]),
			Notes:         append([]string(nil), notes...),
		})
	}
	return schedule
}

// insightActivity puts the insight's place into slot, keeping the slot's
// time and duration.
func insightActivity(slot models.Activity, in models.LocalInsight) models.Activity {
	slot.Activity = in.Name
	slot.SpecificPlace = in.Name
	if in.Location != "" {
		slot.Address = in.Location
	}
	if in.Description != "" {
		slot.Description = in.Description
	}
	if in.PriceRange != "" {
		slot.Cost = in.PriceRange
	}
	slot.Tips = nil
	if in.LocalTip != "" {
		slot.Tips = append(slot.Tips, in.LocalTip)
	}
	if in.BestTime != "" {
		slot.Tips = append(slot.Tips, "Best time: "+in.BestTime)
	}
	return slot
}

func schedulingCalculations(p models.Preferences, days int) []models.BudgetEstimate {
	gm := p.GroupMultiplier()
	daily := int(math.Round(baseDailyBudget * p.BudgetMultiplier() * gm))
	pct := func(f float64) int { return int(math.Round(float64(daily) * f)) }
	return []models.BudgetEstimate{
		{
			Kind:            "daily_budget_breakdown",
			DailyBudget:     daily,
			Accommodation:   pct(0.35),
			Food:            pct(0.30),
			Activities:      pct(0.25),
			Transport:       pct(0.10),
			Days:            days,
			TotalTrip:       daily * days,
			GroupMultiplier: gm,
		},
		{
			Kind:            "group_considerations",
			GroupMultiplier: gm,
		},
	}
}
