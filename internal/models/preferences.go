package models

import (
	"errors"
	"strings"
)

// ErrMissingFields is matched by every ValidationError.
var ErrMissingFields = errors.New("missing required fields")

// Preferences are the trip parameters a caller supplies. All fields except
// ComingFrom are required.
type Preferences struct {
	Destination string `json:"destination" yaml:"destination"`
	Budget      string `json:"budget" yaml:"budget"`
	StartDate   string `json:"startDate" yaml:"start_date"`
	EndDate     string `json:"endDate" yaml:"end_date"`
	Travelers   string `json:"travelers" yaml:"travelers"`
	Interests   string `json:"interests" yaml:"interests"`
	ComingFrom  string `json:"comingFrom,omitempty" yaml:"coming_from,omitempty"`
}

type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return ErrMissingFields.Error() + ": " + strings.Join(e.Missing, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrMissingFields
}

// Validate returns a *ValidationError naming every blank required field.
func (p Preferences) Validate() error {
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check("destination", p.Destination)
	check("budget", p.Budget)
	check("startDate", p.StartDate)
	check("endDate", p.EndDate)
	check("travelers", p.Travelers)
	check("interests", p.Interests)

	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// BudgetMultiplier scales cost estimates by budget tier.
func (p Preferences) BudgetMultiplier() float64 {
	switch strings.ToLower(p.Budget) {
	case "budget":
		return 0.7
	case "luxury":
		return 1.5
	default:
		return 1.0
	}
}

// GroupMultiplier scales cost estimates for large groups.
func (p Preferences) GroupMultiplier() float64 {
	if p.Travelers == "5+" {
		return 1.2
	}
	return 1.0
}
