package stages

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mpataki/trek/internal/models"
)

func orUnspecified(s string) string {
	if s == "" {
		return "Not specified"
	}
	return s
}

func selectionPrompt(p models.Preferences) string {
	return strings.TrimSpace(fmt.Sprintf(`
As a City Selector agent specialized in destination analysis, evaluate these travel preferences:

Destination Preference: %s
Coming From: %s
Budget Range: %s
Interests: %s
Number of Travelers: %s
Travel Dates: %s to %s

Your tasks:
1. Analyze destination compatibility with budget and interests
2. Consider seasonal factors and travel dates
3. Evaluate group size accommodations
4. Factor in travel distance and logistics from origin
5. Generate one search query for finding current destination information
6. Provide 3 ranked city recommendations with detailed reasoning

Do not default to any specific region. Analyze the actual destination preference provided: %q

Provide detailed reasoning for each recommendation and an overall confidence score.
`, p.Destination, orUnspecified(p.ComingFrom), p.Budget, p.Interests, p.Travelers, p.StartDate, p.EndDate, p.Destination))
}

func enrichmentPrompt(city, interests string) string {
	return strings.TrimSpace(fmt.Sprintf(`
As a Local Expert agent for %[1]s, provide deep insider knowledge and recommendations:

City: %[1]s
Visitor Interests: %[2]s

Cover hidden gems that only locals know about, authentic experiences that avoid tourist traps,
cultural etiquette and customs, seasonal events, the local food scene, transportation secrets,
safety considerations and money-saving tips.

Provide insights specific to %[1]s, not generic advice.
`, city, interests))
}

func schedulingPrompt(city string, p models.Preferences, days int, insights []models.LocalInsight) string {
	data, _ := json.Marshal(insights)
	return strings.TrimSpace(fmt.Sprintf(`
As a Travel Concierge agent, create a comprehensive and diverse travel logistics plan for %[1]s:

Trip Details:
- Destination: %[1]s
- Dates: %[2]s to %[3]s (%[4]d days)
- Travelers: %[5]s
- Budget Range: %[6]s
- Local Insights: %[7]s

Requirements:
1. Each day must have a unique theme and different activities
2. Include specific places with actual names, addresses and descriptions
3. Vary neighborhoods and explore a different area of %[1]s each day
4. Include realistic timing, costs and booking requirements
5. Add practical tips for each location
`, city, p.StartDate, p.EndDate, days, p.Travelers, p.Budget, data))
}

func str() map[string]any { return map[string]any{"type": "STRING"} }
func num() map[string]any { return map[string]any{"type": "NUMBER"} }

func strList() map[string]any {
	return map[string]any{"type": "ARRAY", "items": str()}
}

func object(required []string, props map[string]any) map[string]any {
	return map[string]any{"type": "OBJECT", "properties": props, "required": required}
}

var selectionSchema = object(
	[]string{"selectedCity", "alternatives", "searchQuery", "confidence", "reasoning"},
	map[string]any{
		"selectedCity": str(),
		"alternatives": map[string]any{
			"type": "ARRAY",
			"items": object(
				[]string{"city", "rating", "highlights", "budget", "bestFor", "reasoning"},
				map[string]any{
					"city":       str(),
					"rating":     num(),
					"highlights": strList(),
					"budget":     str(),
					"bestFor":    str(),
					"reasoning":  str(),
				},
			),
		},
		"searchQuery": str(),
		"confidence":  num(),
		"reasoning":   str(),
	},
)

var enrichmentSchema = object(
	[]string{"insights", "recommendations", "culturalTips", "seasonalAdvice", "localSecrets", "confidence"},
	map[string]any{
		"insights": map[string]any{
			"type": "ARRAY",
			"items": object(
				[]string{"type", "name", "description", "location"},
				map[string]any{
					"type": map[string]any{
						"type": "STRING",
						"enum": []string{"hidden_gem", "local_favorite", "cultural_tip", "seasonal_event", "insider_secret"},
					},
					"name":        str(),
					"description": str(),
					"location":    str(),
					"rating":      num(),
					"priceRange":  str(),
					"bestTime":    str(),
					"localTip":    str(),
				},
			),
		},
		"recommendations": strList(),
		"culturalTips":    strList(),
		"seasonalAdvice":  strList(),
		"localSecrets":    strList(),
		"confidence":      num(),
	},
)

var schedulingSchema = object(
	[]string{"schedule", "totalBudget", "logistics", "confidence"},
	map[string]any{
		"schedule": map[string]any{
			"type": "ARRAY",
			"items": object(
				[]string{"day", "date", "title", "theme", "activities", "dailyBudget", "neighborhoods", "highlights"},
				map[string]any{
					"day":   map[string]any{"type": "INTEGER"},
					"date":  str(),
					"title": str(),
					"theme": str(),
					"activities": map[string]any{
						"type": "ARRAY",
						"items": object(
							[]string{"time", "activity", "type"},
							map[string]any{
								"time":            str(),
								"activity":        str(),
								"type":            str(),
								"duration":        str(),
								"cost":            str(),
								"specificPlace":   str(),
								"address":         str(),
								"description":     str(),
								"bookingRequired": map[string]any{"type": "BOOLEAN"},
								"tips":            strList(),
							},
						),
					},
					"dailyBudget":   str(),
					"neighborhoods": strList(),
					"highlights":    strList(),
					"notes":         strList(),
				},
			),
		},
		"totalBudget": object(
			[]string{"amount", "currency", "breakdown"},
			map[string]any{
				"amount":   str(),
				"currency": str(),
				"breakdown": object(
					[]string{"accommodation", "food", "activities", "transport", "misc"},
					map[string]any{
						"accommodation": str(),
						"food":          str(),
						"activities":    str(),
						"transport":     str(),
						"misc":          str(),
					},
				),
			},
		),
		"logistics": object(
			[]string{"transportation", "packing", "documents"},
			map[string]any{
				"transportation": strList(),
				"packing":        strList(),
				"documents":      strList(),
			},
		),
		"confidence": num(),
	},
)
