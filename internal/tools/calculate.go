package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	trekLua "github.com/mpataki/trek/internal/lua"
	"github.com/mpataki/trek/internal/models"
)

const (
	ModeNumeric  = "numeric"
	ModeDate     = "date"
	ModeDuration = "duration"
	ModeCurrency = "currency"
)

var (
	isoDatePattern    = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	hoursPattern      = regexp.MustCompile(`(?i)(\d+)\s*hours?`)
	minutesPattern    = regexp.MustCompile(`(?i)(\d+)\s*minutes?`)
	amountPattern     = regexp.MustCompile(`\$?(\d+(?:\.\d{2})?)`)
	multiplierPattern = regexp.MustCompile(`\*\s*(\d+)`)
)

type Calculation struct {
	Expression string         `json:"expression"`
	Result     any            `json:"result"`
	Type       string         `json:"type"`
	Unit       string         `json:"unit,omitempty"`
	Breakdown  map[string]any `json:"breakdown,omitempty"`
}

// Calculator is the "calculate" tool.
type Calculator struct {
	sandbox *trekLua.Sandbox
}

func NewCalculator(sandbox *trekLua.Sandbox) *Calculator {
	if sandbox == nil {
		sandbox = trekLua.NewSandbox()
	}
	return &Calculator{sandbox: sandbox}
}

func (c *Calculator) Name() string { return models.ToolCalculate }

func (c *Calculator) Call(ctx context.Context, req models.ToolRequest) (any, error) {
	return c.Calculate(ctx, req.Expression, req.Mode)
}

// Calculate evaluates expression in the given mode; an empty mode is numeric.
func (c *Calculator) Calculate(ctx context.Context, expression, mode string) (*Calculation, error) {
	switch mode {
	case "", ModeNumeric:
		return c.numeric(ctx, expression)
	case ModeDate:
		return dateDiff(expression)
	case ModeDuration:
		return duration(expression), nil
	case ModeCurrency:
		return currency(expression)
	default:
		return nil, fmt.Errorf("unsupported calculation type %q", mode)
	}
}

func (c *Calculator) numeric(ctx context.Context, expression string) (*Calculation, error) {
	v, err := c.sandbox.Eval(ctx, expression)
	if err != nil {
		return nil, err
	}
	return &Calculation{Expression: expression, Result: round2(v), Type: ModeNumeric}, nil
}

func dateDiff(expression string) (*Calculation, error) {
	dates := isoDatePattern.FindAllString(expression, 2)
	if len(dates) < 2 {
		return nil, errors.New("need at least 2 dates for date calculation")
	}
	start, err := time.Parse(time.DateOnly, dates[0])
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", dates[0], err)
	}
	end, err := time.Parse(time.DateOnly, dates[1])
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", dates[1], err)
	}

	days := int(math.Ceil(math.Abs(end.Sub(start).Hours()) / 24))
	return &Calculation{
		Expression: expression,
		Result:     days,
		Type:       ModeDate,
		Unit:       "days",
		Breakdown: map[string]any{
			"startDate": dates[0],
			"endDate":   dates[1],
			"days":      days,
		},
	}, nil
}

func duration(expression string) *Calculation {
	total := firstInt(hoursPattern, expression)*60 + firstInt(minutesPattern, expression)
	h, m := total/60, total%60
	return &Calculation{
		Expression: expression,
		Result:     fmt.Sprintf("%dh %dm", h, m),
		Type:       ModeDuration,
		Unit:       "time",
		Breakdown: map[string]any{
			"totalMinutes": total,
			"hours":        h,
			"minutes":      m,
		},
	}
}

func currency(expression string) (*Calculation, error) {
	am := amountPattern.FindStringSubmatch(expression)
	if am == nil {
		return nil, errors.New("no currency amount found")
	}
	amount, err := strconv.ParseFloat(am[1], 64)
	if err != nil {
		return nil, err
	}
	multiplier := 1
	if mm := multiplierPattern.FindStringSubmatch(expression); mm != nil {
		multiplier, _ = strconv.Atoi(mm[1])
	}
	total := amount * float64(multiplier)
	return &Calculation{
		Expression: expression,
		Result:     total,
		Type:       ModeCurrency,
		Unit:       "USD",
		Breakdown: map[string]any{
			"baseAmount": amount,
			"multiplier": multiplier,
			"total":      round2(total),
		},
	}, nil
}

func firstInt(re *regexp.Regexp, s string) int {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
