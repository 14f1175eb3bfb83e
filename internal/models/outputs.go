package models

// Selection stage output.

type CityRecommendation struct {
	City       string   `json:"city"`
	Rating     float64  `json:"rating"`
	Highlights []string `json:"highlights"`
	Budget     string   `json:"budget"`
	BestFor    string   `json:"bestFor"`
	Reasoning  string   `json:"reasoning"`
}

type BudgetEstimate struct {
	Kind            string  `json:"type"`
	DailyBudget     int     `json:"dailyBudget"`
	Accommodation   int     `json:"accommodation"`
	Food            int     `json:"food"`
	Activities      int     `json:"activities"`
	Transport       int     `json:"transport,omitempty"`
	Days            int     `json:"days,omitempty"`
	TotalTrip       int     `json:"totalTrip,omitempty"`
	GroupMultiplier float64 `json:"groupMultiplier"`
}

type CityAnalysis struct {
	SelectedCity string               `json:"selectedCity"`
	Alternatives []CityRecommendation `json:"alternatives"`
	SearchQuery  string               `json:"searchQuery"`
	Calculations []BudgetEstimate     `json:"calculations"`
	Confidence   float64              `json:"confidence"`
	Reasoning    string               `json:"reasoning"`
}

// Enrichment stage output.

type LocalInsight struct {
	Type        string  `json:"type"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Location    string  `json:"location"`
	Rating      float64 `json:"rating,omitempty"`
	PriceRange  string  `json:"priceRange,omitempty"`
	BestTime    string  `json:"bestTime,omitempty"`
	LocalTip    string  `json:"localTip,omitempty"`
}

type LocalAnalysis struct {
	Insights        []LocalInsight `json:"insights"`
	Recommendations []string       `json:"recommendations"`
	CulturalTips    []string       `json:"culturalTips"`
	SeasonalAdvice  []string       `json:"seasonalAdvice"`
	SearchQueries   []string       `json:"searchQueries"`
	LocalSecrets    []string       `json:"localSecrets"`
	Confidence      float64        `json:"confidence"`
}

// Scheduling stage output.

type Activity struct {
	Time            string   `json:"time"`
	Activity        string   `json:"activity"`
	Type            string   `json:"type"`
	Duration        string   `json:"duration,omitempty"`
	Cost            string   `json:"cost,omitempty"`
	SpecificPlace   string   `json:"specificPlace,omitempty"`
	Address         string   `json:"address,omitempty"`
	Description     string   `json:"description,omitempty"`
	BookingRequired bool     `json:"bookingRequired,omitempty"`
	Tips            []string `json:"tips,omitempty"`
}

type DaySchedule struct {
	Day           int        `json:"day"`
	Date          string     `json:"date"`
	Title         string     `json:"title"`
	Theme         string     `json:"theme"`
	Activities    []Activity `json:"activities"`
	DailyBudget   string     `json:"dailyBudget"`
	Neighborhoods []string   `json:"neighborhoods"`
	Highlights    []string   `json:"highlights"`
	Notes         []string   `json:"notes,omitempty"`
}

type BudgetBreakdown struct {
	Accommodation string `json:"accommodation"`
	Food          string `json:"food"`
	Activities    string `json:"activities"`
	Transport     string `json:"transport"`
	Misc          string `json:"misc"`
}

type BudgetSummary struct {
	Amount    string          `json:"amount"`
	Currency  string          `json:"currency"`
	Breakdown BudgetBreakdown `json:"breakdown"`
}

type Logistics struct {
	Transportation []string          `json:"transportation"`
	Packing        []string          `json:"packing"`
	Documents      []string          `json:"documents"`
	Emergency      map[string]string `json:"emergency,omitempty"`
}

type Itinerary struct {
	Schedule     []DaySchedule    `json:"schedule"`
	TotalBudget  BudgetSummary    `json:"totalBudget"`
	Logistics    Logistics        `json:"logistics"`
	Calculations []BudgetEstimate `json:"calculations"`
	Confidence   float64          `json:"confidence"`
}
