package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/mpataki/trek/internal/models"
	"github.com/mpataki/trek/internal/storage"
)

// Source is the read side of the job service the monitor polls.
type Source interface {
	GetJobStatus(ctx context.Context, jobID string) (*models.JobRecord, error)
	History(ctx context.Context, ownerID string) ([]models.HistoryItem, error)
	Stats(ctx context.Context) (storage.QueueStats, error)
}

type View int

const (
	ViewJobs View = iota
	ViewHistory
	ViewPlan
)

const pollInterval = time.Second

type App struct {
	ctx     context.Context
	source  Source
	ownerID string

	view        View
	jobIDs      []string
	jobs        map[string]*models.JobRecord
	jobErrs     map[string]error
	stats       storage.QueueStats
	selectedIdx int

	history        []models.HistoryItem
	selectedHist   int
	plan           *models.Plan
	planReturnView View

	spinner  spinner.Model
	progress progress.Model

	width  int
	height int
	err    error
}

func NewApp(ctx context.Context, source Source, ownerID string, jobIDs []string) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusActive

	return &App{
		ctx:      ctx,
		source:   source,
		ownerID:  ownerID,
		view:     ViewJobs,
		jobIDs:   jobIDs,
		jobs:     make(map[string]*models.JobRecord),
		jobErrs:  make(map[string]error),
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.loadJobs, a.spinner.Tick, a.tickCmd())
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// hasPendingJobs is true while any watched job could still change.
func (a *App) hasPendingJobs() bool {
	for _, id := range a.jobIDs {
		rec, ok := a.jobs[id]
		if !ok || !rec.Status.Terminal() {
			if _, missing := a.jobErrs[id]; !missing {
				return true
			}
		}
	}
	return false
}

type tickMsg time.Time

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		if w := msg.Width - 40; w > 10 {
			a.progress.Width = min(w, 50)
		}
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case jobsLoadedMsg:
		for id, rec := range msg.jobs {
			a.jobs[id] = rec
			delete(a.jobErrs, id)
		}
		for id, err := range msg.errs {
			a.jobErrs[id] = err
		}
		a.stats = msg.stats
		a.err = msg.err
		return a, nil

	case tickMsg:
		if a.view == ViewJobs && a.hasPendingJobs() {
			return a, tea.Batch(a.loadJobs, a.tickCmd())
		}
		return a, a.tickCmd()

	case historyLoadedMsg:
		a.err = msg.err
		if msg.err == nil {
			a.history = msg.history
			a.selectedHist = 0
			a.view = ViewHistory
		}
		return a, nil
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.view {
	case ViewJobs:
		return a.handleJobsKey(msg)
	case ViewHistory:
		return a.handleHistoryKey(msg)
	case ViewPlan:
		return a.handlePlanKey(msg)
	}
	return a, nil
}

func (a *App) handleJobsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "up", "k":
		if a.selectedIdx > 0 {
			a.selectedIdx--
		}

	case "down", "j":
		if a.selectedIdx < len(a.jobIDs)-1 {
			a.selectedIdx++
		}

	case "enter":
		if a.selectedIdx < len(a.jobIDs) {
			if rec := a.jobs[a.jobIDs[a.selectedIdx]]; rec != nil && rec.Result != nil {
				a.plan = rec.Result
				a.planReturnView = ViewJobs
				a.view = ViewPlan
			}
		}

	case "h":
		if a.ownerID != "" {
			return a, a.loadHistory
		}

	case "r":
		return a, a.loadJobs
	}

	return a, nil
}

func (a *App) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		a.view = ViewJobs

	case "ctrl+c":
		return a, tea.Quit

	case "up", "k":
		if a.selectedHist > 0 {
			a.selectedHist--
		}

	case "down", "j":
		if a.selectedHist < len(a.history)-1 {
			a.selectedHist++
		}

	case "enter":
		if a.selectedHist < len(a.history) && a.history[a.selectedHist].Result != nil {
			a.plan = a.history[a.selectedHist].Result
			a.planReturnView = ViewHistory
			a.view = ViewPlan
		}
	}

	return a, nil
}

func (a *App) handlePlanKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		a.view = a.planReturnView
		a.plan = nil

	case "ctrl+c":
		return a, tea.Quit
	}

	return a, nil
}

func (a *App) View() string {
	switch a.view {
	case ViewJobs:
		return a.viewJobs()
	case ViewHistory:
		return a.viewHistory()
	case ViewPlan:
		return a.viewPlan()
	}
	return ""
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	statusActive   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	statusComplete = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusWaiting  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

func (a *App) viewJobs() string {
	s := titleStyle.Render("Trek") + "  " + dimStyle.Render(a.formatStats()) + "\n\n"

	if a.err != nil {
		s += fmt.Sprintf("Error: %v\n", a.err)
	}

	if len(a.jobIDs) == 0 {
		s += "No jobs to watch.\n"
	} else {
		s += "Jobs\n"
		s += "────\n"

		for i, id := range a.jobIDs {
			line := a.formatJobLine(id)
			if i == a.selectedIdx {
				line = selectedStyle.Render("▶ ") + line
			} else {
				line = "  " + line
			}
			s += line + "\n"
		}
	}

	help := "[enter] plan  [r] refresh  [q] quit"
	if a.ownerID != "" {
		help = "[enter] plan  [h] history  [r] refresh  [q] quit"
	}
	s += "\n" + helpStyle.Render(help)

	return s
}

func (a *App) formatStats() string {
	return fmt.Sprintf("waiting:%d active:%d completed:%d failed:%d",
		a.stats.Waiting, a.stats.Active, a.stats.Completed, a.stats.Failed)
}

func (a *App) formatJobLine(id string) string {
	if err, ok := a.jobErrs[id]; ok {
		return fmt.Sprintf("%-24s %s", truncate(id, 24), statusFailed.Render("? "+err.Error()))
	}
	rec, ok := a.jobs[id]
	if !ok {
		return fmt.Sprintf("%-24s %s", truncate(id, 24), a.spinner.View())
	}

	line := fmt.Sprintf("%-24s %s  %s", truncate(id, 24), a.formatStatus(rec.Status), a.progress.ViewAs(float64(rec.Progress)/100))
	if dest := destination(rec.Result); dest != "" {
		line += "  " + dest
	}
	if rec.Error != "" {
		line += "  " + statusFailed.Render(truncate(rec.Error, 40))
	}
	return line
}

func (a *App) formatStatus(status models.JobStatus) string {
	switch status {
	case models.JobStatusActive:
		return statusActive.Render(a.spinner.View() + "active   ")
	case models.JobStatusCompleted:
		return statusComplete.Render("✓ completed")
	case models.JobStatusFailed:
		return statusFailed.Render("✗ failed   ")
	case models.JobStatusWaiting:
		return statusWaiting.Render("○ waiting  ")
	default:
		return string(status)
	}
}

func (a *App) viewHistory() string {
	s := titleStyle.Render("History: "+a.ownerID) + "\n\n"

	if len(a.history) == 0 {
		s += "(no completed plans)\n"
	} else {
		for i, item := range a.history {
			line := fmt.Sprintf("%-6s %-28s %s", formatAge(item.CreatedAt), truncate(item.Preferences.Destination, 28), item.Preferences.Budget)
			if i == a.selectedHist {
				line = selectedStyle.Render("▶ " + line)
			} else {
				line = "  " + line
			}
			s += line + "\n"
		}
	}

	s += "\n" + helpStyle.Render("[↑/↓] select  [enter] plan  [esc] back")

	return s
}

func (a *App) viewPlan() string {
	if a.plan == nil {
		return "No plan selected"
	}
	p := a.plan

	var b strings.Builder
	b.WriteString(titleStyle.Render(p.Itinerary.Destination) + "\n\n")

	o := p.Orchestration
	b.WriteString(labelStyle.Render("Stages: ") + strings.Join(o.StagesExecuted, " → ") + "\n")
	b.WriteString(labelStyle.Render("Tool calls: ") + fmt.Sprint(o.ToolCalls) + "  ")
	b.WriteString(labelStyle.Render("Took: ") + formatDuration(time.Duration(o.ExecutionTimeMs)*time.Millisecond) + "\n\n")

	if len(p.Recommendations) > 0 {
		b.WriteString("Cities\n──────\n")
		for _, r := range p.Recommendations {
			fmt.Fprintf(&b, "  %-22s %.1f  %s\n", truncate(r.City, 22), r.Rating, dimStyle.Render(r.BestFor))
		}
		b.WriteString("\n")
	}

	if len(p.Itinerary.Schedule) > 0 {
		b.WriteString("Schedule\n────────\n")
		for _, day := range p.Itinerary.Schedule {
			fmt.Fprintf(&b, "  Day %d  %s  %s\n", day.Day, day.Title, dimStyle.Render(day.DailyBudget))
			for _, act := range day.Activities {
				fmt.Fprintf(&b, "    %-6s %s\n", act.Time, truncate(act.Activity, 60))
			}
		}
		b.WriteString("\n")
	}

	budget := p.Itinerary.Budget
	if budget.Amount != "" {
		b.WriteString(labelStyle.Render("Budget: ") + budget.Amount + " " + budget.Currency + "\n")
		bd := budget.Breakdown
		fmt.Fprintf(&b, "  accommodation %s  food %s  activities %s  transport %s  misc %s\n",
			bd.Accommodation, bd.Food, bd.Activities, bd.Transport, bd.Misc)
	}

	b.WriteString("\n" + helpStyle.Render("[esc] back"))
	return b.String()
}

// Messages

type jobsLoadedMsg struct {
	jobs  map[string]*models.JobRecord
	errs  map[string]error
	stats storage.QueueStats
	err   error
}

type historyLoadedMsg struct {
	history []models.HistoryItem
	err     error
}

// Commands

func (a *App) loadJobs() tea.Msg {
	msg := jobsLoadedMsg{
		jobs: make(map[string]*models.JobRecord, len(a.jobIDs)),
		errs: make(map[string]error),
	}
	for _, id := range a.jobIDs {
		rec, err := a.source.GetJobStatus(a.ctx, id)
		if err != nil {
			msg.errs[id] = err
			continue
		}
		msg.jobs[id] = rec
	}
	msg.stats, msg.err = a.source.Stats(a.ctx)
	return msg
}

func (a *App) loadHistory() tea.Msg {
	history, err := a.source.History(a.ctx, a.ownerID)
	return historyLoadedMsg{history: history, err: err}
}

func destination(p *models.Plan) string {
	if p == nil {
		return ""
	}
	return p.Itinerary.Destination
}

func truncate(s string, maxLen int) string {
	return runewidth.Truncate(s, maxLen, "...")
}

func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", m, s)
}
