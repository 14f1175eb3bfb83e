package stages

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/mpataki/trek/internal/models"
)

// Selection picks the primary destination and ranked alternatives.
type Selection struct {
	opts Options
}

func (s *Selection) ID() models.StageID { return models.StageSelection }

func (s *Selection) Run(ctx context.Context, state *models.ExecutionState) (*Outcome, error) {
	p := state.Input

	var out models.CityAnalysis
	if generate(ctx, s.opts, s.ID(), selectionPrompt(p), selectionSchema, &out, func() bool {
		return out.SelectedCity != ""
	}) {
		out.Calculations = selectionCalculations(p)
	} else {
		out = s.fallback(p)
	}

	o := &Outcome{
		Summary: "City analysis complete. Selected: " + out.SelectedCity,
		Output:  &out,
	}
	if out.SearchQuery != "" {
		o.ToolRequests = []models.ToolRequest{{
			Tool:    models.ToolSearch,
			Query:   out.SearchQuery,
			Purpose: "destination_search",
		}}
	}
	return o, nil
}

func (s *Selection) fallback(p models.Preferences) models.CityAnalysis {
	m := p.BudgetMultiplier()
	perDay := func(base float64) string {
		return fmt.Sprintf("$%d/day", int(math.Round(base*m)))
	}

	dest := strings.ToLower(p.Destination)
	var recs []models.CityRecommendation
	switch {
	case strings.Contains(dest, "europe"):
		recs = []models.CityRecommendation{
			{
				City:       "Barcelona, Spain",
				Rating:     4.8,
				Highlights: []string{"Sagrada Familia", "Park Güell", "Gothic Quarter", "Beach Access"},
				Budget:     perDay(200),
				BestFor:    "Culture & Architecture",
				Reasoning:  "Perfect blend of culture, architecture, and Mediterranean lifestyle with excellent value for money.",
			},
			{
				City:       "Prague, Czech Republic",
				Rating:     4.7,
				Highlights: []string{"Prague Castle", "Charles Bridge", "Old Town Square", "Affordable Dining"},
				Budget:     perDay(150),
				BestFor:    "Budget-Friendly Culture",
				Reasoning:  "Stunning medieval architecture with very affordable prices and rich cultural experiences.",
			},
			{
				City:       "Amsterdam, Netherlands",
				Rating:     4.6,
				Highlights: []string{"Canal Tours", "Van Gogh Museum", "Vondelpark", "Bike Culture"},
				Budget:     perDay(250),
				BestFor:    "Art & Canals",
				Reasoning:  "Unique canal city with world-class museums and bike-friendly culture.",
			},
		}
	case strings.Contains(dest, "asia"):
		recs = []models.CityRecommendation{
			{
				City:       "Bangkok, Thailand",
				Rating:     4.7,
				Highlights: []string{"Grand Palace", "Floating Markets", "Street Food", "Temples"},
				Budget:     perDay(120),
				BestFor:    "Culture & Food",
				Reasoning:  "Incredible value with rich culture, amazing street food, and beautiful temples.",
			},
			{
				City:       "Singapore",
				Rating:     4.8,
				Highlights: []string{"Gardens by the Bay", "Marina Bay Sands", "Hawker Centers", "Clean & Safe"},
				Budget:     perDay(280),
				BestFor:    "Modern City Experience",
				Reasoning:  "Perfect blend of cultures with excellent infrastructure and diverse food scene.",
			},
			{
				City:       "Kyoto, Japan",
				Rating:     4.9,
				Highlights: []string{"Fushimi Inari", "Bamboo Grove", "Traditional Ryokans", "Temple Culture"},
				Budget:     perDay(220),
				BestFor:    "Traditional Culture",
				Reasoning:  "Authentic cultural experience with stunning temples and traditional accommodations.",
			},
		}
	default:
		recs = []models.CityRecommendation{
			{
				City:       p.Destination,
				Rating:     4.7,
				Highlights: []string{"Local Attractions", "Cultural Sites", "Great Food", "Friendly Locals"},
				Budget:     perDay(200),
				BestFor:    "Overall Experience",
				Reasoning: fmt.Sprintf("Excellent destination matching your preferences for %s with good value for %s budget.",
					p.Interests, p.Budget),
			},
			{
				City:       p.Destination + " - Alternative 1",
				Rating:     4.5,
				Highlights: []string{"Unique Experiences", "Local Culture", "Good Value", "Safe Travel"},
				Budget:     perDay(180),
				BestFor:    "Budget-Conscious",
				Reasoning:  "Great alternative with similar experiences at a more budget-friendly price point.",
			},
			{
				City:       p.Destination + " - Alternative 2",
				Rating:     4.6,
				Highlights: []string{"Premium Experiences", "Luxury Options", "Exclusive Access", "High-End Dining"},
				Budget:     perDay(250),
				BestFor:    "Luxury Experience",
				Reasoning:  "Premium option with luxury accommodations and exclusive experiences.",
			},
		}
	}

	reasoning := fmt.Sprintf("Based on your preference for %s with a %s budget and interests in %s, these destinations offer the best combination of experiences suitable for %s travelers",
		p.Destination, p.Budget, p.Interests, p.Travelers)
	if p.ComingFrom != "" {
		reasoning += " traveling from " + p.ComingFrom
	}

	return models.CityAnalysis{
		SelectedCity: recs[0].City,
		Alternatives: recs,
		SearchQuery: fmt.Sprintf("best %s destinations %s budget %s %d",
			p.Destination, p.Budget, p.Interests, s.opts.Now().Year()),
		Calculations: selectionCalculations(p),
		Confidence:   0.85,
		Reasoning:    reasoning + ".",
	}
}

func selectionCalculations(p models.Preferences) []models.BudgetEstimate {
	m := p.BudgetMultiplier()
	scale := func(base float64) int { return int(math.Round(base * m)) }
	return []models.BudgetEstimate{
		{
			Kind:            "budget_analysis",
			DailyBudget:     scale(180),
			Accommodation:   scale(80),
			Food:            scale(60),
			Activities:      scale(40),
			GroupMultiplier: 1,
		},
		{
			Kind:            "group_size_factor",
			GroupMultiplier: p.GroupMultiplier(),
		},
	}
}
