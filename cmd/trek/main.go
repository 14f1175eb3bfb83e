package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mpataki/trek/internal/config"
	"github.com/mpataki/trek/internal/jobs"
	"github.com/mpataki/trek/internal/llm"
	"github.com/mpataki/trek/internal/models"
	"github.com/mpataki/trek/internal/orchestrator"
	"github.com/mpataki/trek/internal/server"
	"github.com/mpataki/trek/internal/stages"
	"github.com/mpataki/trek/internal/storage"
	"github.com/mpataki/trek/internal/tools"
	"github.com/mpataki/trek/internal/tui"
)

var verbose bool

func main() {
	rootCmd := &cobra.Command{
		Use:           "trek",
		Short:         "Multi-stage travel planning engine",
		Long:          "Trek plans trips by routing preferences through city selection, local enrichment and scheduling stages.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newSubmitCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newStatsCommand())
	rootCmd.AddCommand(newWorkerCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newCacheCommand())
	rootCmd.AddCommand(newKeysCommand())
	rootCmd.AddCommand(newChatCommand())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// app holds the wired components every command shares.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *storage.Storage
	orch   *orchestrator.Orchestrator
	jobs   jobs.Config
	svc    *jobs.Service
}

func openApp() (*app, error) {
	logger := newLogger()

	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.New(cfg.DBPath, storage.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var backend tools.Searcher = tools.StaticSearch{}
	if cfg.Search.APIKey != "" {
		backend = tools.NewTavilyClient(cfg.Search.APIKey, cfg.Search.Endpoint, cfg.Search.RequestsPerSecond)
	} else {
		logger.Debug("no search API key, using offline results")
	}
	invoker := tools.NewInvoker(logger,
		&tools.SearchTool{Backend: backend, MaxResults: cfg.Search.MaxResults},
		tools.NewCalculator(nil),
	)

	opts := stages.Options{Logger: logger}
	gemini := llm.NewGemini(cfg.LLM.APIKey, cfg.LLM.Model)
	if gemini != nil {
		opts.Generator = gemini
	}

	orch := orchestrator.New(orchestrator.Config{
		RecursionLimit: cfg.Orchestrator.RecursionLimit,
		Timeout:        cfg.Timeout(),
		ToolsEnabled:   cfg.Orchestrator.ToolsEnabled,
	}, stages.Default(opts), invoker, logger)

	jcfg := jobs.DefaultConfig()
	jcfg.Attempts = cfg.Jobs.Attempts
	jcfg.Backoff = cfg.Backoff()
	jcfg.TTL = cfg.CacheTTL()
	jcfg.Concurrency = cfg.Jobs.Concurrency
	if cfg.Jobs.PollIntervalMs > 0 {
		jcfg.PollInterval = cfg.PollInterval()
	}

	svc := jobs.NewService(store, store, orch, jcfg, logger)
	if gemini != nil {
		svc.Generator = gemini
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		orch:   orch,
		jobs:   jcfg,
		svc:    svc,
	}, nil
}

func (a *app) worker() *jobs.Worker {
	return jobs.NewWorker(a.store, a.store, a.orch, a.jobs, a.logger)
}

func (a *app) Close() error {
	return a.store.Close()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func addPreferenceFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("file", "f", "", "Read preferences from a YAML file")
	cmd.Flags().StringP("destination", "d", "", "Destination city or region")
	cmd.Flags().StringP("budget", "b", "", "Budget tier (budget, mid-range, luxury)")
	cmd.Flags().String("start", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().String("end", "", "End date (YYYY-MM-DD)")
	cmd.Flags().StringP("travelers", "t", "", "Number of travelers")
	cmd.Flags().StringP("interests", "i", "", "Comma-separated interests")
	cmd.Flags().String("from", "", "Origin city")
}

// preferencesFromFlags reads the YAML file when given, then lets explicit
// flags override individual fields.
func preferencesFromFlags(cmd *cobra.Command) (models.Preferences, error) {
	var prefs models.Preferences
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return prefs, err
		}
		if err := yaml.Unmarshal(data, &prefs); err != nil {
			return prefs, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	fields := map[string]*string{
		"destination": &prefs.Destination,
		"budget":      &prefs.Budget,
		"start":       &prefs.StartDate,
		"end":         &prefs.EndDate,
		"travelers":   &prefs.Travelers,
		"interests":   &prefs.Interests,
		"from":        &prefs.ComingFrom,
	}
	for name, dst := range fields {
		if cmd.Flags().Changed(name) {
			*dst, _ = cmd.Flags().GetString(name)
		}
	}
	return prefs, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan a trip synchronously",
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs, err := preferencesFromFlags(cmd)
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			plan, err := a.svc.Plan(ctx, prefs)
			if err != nil {
				var runErr *orchestrator.RunError
				if errors.As(err, &runErr) {
					return fmt.Errorf("planning stopped at %s (step %d): %w", runErr.Stage, runErr.Step, runErr.Err)
				}
				return err
			}

			if asJSON {
				return printJSON(plan)
			}
			printPlan(plan)
			return nil
		},
	}
	addPreferenceFlags(cmd)
	cmd.Flags().Bool("json", false, "Print the full plan as JSON")
	return cmd
}

func printPlan(p *models.Plan) {
	o := p.Orchestration
	fmt.Printf("Plan for %s\n", p.Itinerary.Destination)
	fmt.Printf("Stages: %v (%d steps, %d tool calls, %dms)\n", o.StagesExecuted, o.Steps, o.ToolCalls, o.ExecutionTimeMs)

	if len(p.Recommendations) > 0 {
		fmt.Println("\nCities:")
		for _, r := range p.Recommendations {
			fmt.Printf("  %-24s %.1f  %s\n", r.City, r.Rating, r.BestFor)
		}
	}

	if len(p.Itinerary.Schedule) > 0 {
		fmt.Println("\nSchedule:")
		for _, day := range p.Itinerary.Schedule {
			fmt.Printf("  Day %d: %s [%s]\n", day.Day, day.Title, day.DailyBudget)
			for _, act := range day.Activities {
				fmt.Printf("    %-6s %s\n", act.Time, act.Activity)
			}
		}
	}

	if b := p.Itinerary.Budget; b.Amount != "" {
		fmt.Printf("\nBudget: %s %s\n", b.Amount, b.Currency)
	}
}

func newSubmitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue a planning job for a background worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs, err := preferencesFromFlags(cmd)
			if err != nil {
				return err
			}
			user, _ := cmd.Flags().GetString("user")
			watch, _ := cmd.Flags().GetBool("watch")

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.svc.CreateJob(cmd.Context(), user, prefs)
			if err != nil {
				return fmt.Errorf("failed to submit job: %w", err)
			}
			fmt.Printf("Queued job %s\n", id)

			if watch {
				return runMonitor(a, user, []string{id})
			}
			return nil
		},
	}
	addPreferenceFlags(cmd)
	cmd.Flags().StringP("user", "u", "", "Owner of the job (required)")
	cmd.Flags().BoolP("watch", "w", false, "Open the job monitor after submitting")
	cmd.MarkFlagRequired("user")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show job status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.svc.GetJobStatus(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get job %s: %w", args[0], err)
			}

			fmt.Printf("Job %s\n", rec.ID)
			fmt.Printf("Status: %s (%d%%)\n", rec.Status, rec.Progress)
			if rec.Attempt > 0 {
				fmt.Printf("Attempt: %d\n", rec.Attempt)
			}
			if rec.Error != "" {
				fmt.Printf("Error: %s\n", rec.Error)
			}
			if rec.Result != nil {
				fmt.Println()
				printPlan(rec.Result)
			}
			return nil
		},
	}
}

func newHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history <user-id>",
		Short: "List a user's completed plans",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			history, err := a.svc.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(history) == 0 {
				fmt.Println("No history found.")
				return nil
			}

			for _, item := range history {
				fmt.Printf("%s  %s  %s [%s]\n",
					item.CreatedAt.Local().Format("2006-01-02 15:04"),
					item.ID, item.Preferences.Destination, item.Preferences.Budget)
			}
			return nil
		},
	}
}

func newChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <plan-id> [message]",
		Short: "Ask about a cached plan or request a change to it",
		Long: "Sends message to the plan's concierge. plan-id is a job id or a full plan key.\n" +
			"Without a message, prints the conversation so far.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 1 {
				turns, err := a.svc.ChatHistory(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if len(turns) == 0 {
					fmt.Println("No messages yet.")
					return nil
				}
				for i := len(turns) - 1; i >= 0; i-- {
					t := turns[i]
					fmt.Printf("%s  %-9s %s\n", t.Timestamp.Local().Format("15:04"), t.Role, t.Content)
				}
				return nil
			}

			reply, err := a.svc.Chat(cmd.Context(), jobs.ChatRequest{PlanID: args[0], Message: args[1]})
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(reply)
			}

			fmt.Println(reply.Response)
			for _, s := range reply.Suggestions {
				fmt.Println("  -", s)
			}
			if reply.UpdatedPlan != nil {
				fmt.Println()
				printPlan(reply.UpdatedPlan)
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print the raw reply")
	return cmd
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.svc.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("waiting: %d\nactive: %d\ncompleted: %d\nfailed: %d\n",
				stats.Waiting, stats.Active, stats.Completed, stats.Failed)
			return nil
		},
	}
}

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process queued planning jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			w := a.worker()
			w.OnRetry = func(jobID string, attempt int, delay time.Duration) {
				fmt.Printf("Job %s attempt %d failed, retrying in %s\n", jobID, attempt, delay)
			}
			fmt.Printf("Worker started (concurrency %d)\n", a.jobs.Concurrency)
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			noWorker, _ := cmd.Flags().GetBool("no-worker")

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			ctx, cancel := signalContext()
			defer cancel()

			workerDone := make(chan error, 1)
			if noWorker {
				workerDone <- nil
			} else {
				go func() { workerDone <- a.worker().Run(ctx) }()
			}

			srv := server.New(a.svc, a.orch, a.logger)
			serveErr := srv.ListenAndServe(ctx, addr)
			cancel()

			if err := <-workerDone; err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("worker stopped", "error", err)
			}
			return serveErr
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default from config)")
	cmd.Flags().Bool("no-worker", false, "Do not run a worker in this process")
	return cmd
}

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [job-id...]",
		Short: "Monitor jobs in an interactive view",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			if len(args) == 0 && user == "" {
				return fmt.Errorf("provide job ids or --user")
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			return runMonitor(a, user, args)
		},
	}
	cmd.Flags().StringP("user", "u", "", "Owner whose history to browse")
	return cmd
}

func runMonitor(a *app, user string, ids []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	p := tea.NewProgram(tui.NewApp(ctx, a.svc, user, ids), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Maintain the cache store",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Remove expired entries and old finished jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			expired, err := a.store.PurgeExpired(cmd.Context())
			if err != nil {
				return err
			}
			pruned, err := a.svc.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d expired entries and %d finished jobs\n", expired, pruned)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "del <key>",
		Short: "Delete a cache key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.store.Exists(cmd.Context(), args[0]) {
				return fmt.Errorf("key %q not found", args[0])
			}
			if err := a.store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func newKeysCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys [plan-key]",
		Short: "Show cache keys for preferences, or decode a plan key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				parts := storage.ParsePlanKey(args[0])
				fmt.Printf("destination: %s\norigin: %s\ndates: %s\n", parts.Destination, parts.Origin, parts.DateRange)
				if parts.Budget != "" {
					fmt.Printf("budget: %s\n", parts.Budget)
				}
				if parts.Travelers != "" {
					fmt.Printf("travelers: %s\n", parts.Travelers)
				}
				return nil
			}

			prefs, err := preferencesFromFlags(cmd)
			if err != nil {
				return err
			}
			if prefs.Destination == "" {
				return fmt.Errorf("provide a plan key or --destination")
			}
			fmt.Printf("location: %s\n", storage.LocationKey(prefs.Destination, prefs.ComingFrom, prefs.StartDate, prefs.EndDate))
			fmt.Printf("plan:     %s\n", storage.PreferencesKey(prefs))
			fmt.Printf("chat:     %s\n", storage.ChatKey(prefs))
			return nil
		},
	}
	addPreferenceFlags(cmd)
	return cmd
}
