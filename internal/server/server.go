package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/mpataki/trek/internal/jobs"
	"github.com/mpataki/trek/internal/models"
	"github.com/mpataki/trek/internal/orchestrator"
)

const maxRequestBodySize = 1 << 20

// Pipeline reports its configuration for the health endpoint and runs
// single stages for the agent endpoints.
type Pipeline interface {
	Describe() orchestrator.Description
	RunStage(ctx context.Context, id models.StageID, input models.Preferences, prior ...models.StageOutput) (models.StageOutput, error)
}

type Server struct {
	jobs   *jobs.Service
	pipe   Pipeline
	logger *slog.Logger
	mux    *http.ServeMux
	server *http.Server
}

func New(svc *jobs.Service, pipe Pipeline, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		jobs:   svc,
		pipe:   pipe,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /api/travel-planning", s.handlePlan)
	s.mux.HandleFunc("GET /api/travel-planning", s.handleHealth)
	s.mux.HandleFunc("POST /api/travel-planning-background", s.handleSubmit)
	s.mux.HandleFunc("GET /api/job-status/{jobId}", s.handleJobStatus)
	s.mux.HandleFunc("GET /api/user-history", s.handleHistory)
	s.mux.HandleFunc("GET /api/queue-stats", s.handleQueueStats)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/chat-with-plan", s.handleChat)
	s.mux.HandleFunc("GET /api/chat-with-plan", s.handleChatHistory)
	s.mux.HandleFunc("POST /api/agents/{agent}", s.handleAgent)
}

// Handler returns the routed handler wrapped in recovery and request logging.
func (s *Server) Handler() http.Handler {
	return s.recoverer(s.requestLogger(s.mux))
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

type submitRequest struct {
	UserID      string             `json:"userId"`
	Preferences models.Preferences `json:"preferences"`
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var prefs models.Preferences
	if !s.decode(w, r, &prefs) {
		return
	}

	plan, err := s.jobs.Plan(r.Context(), prefs)
	if err != nil {
		if errors.Is(err, models.ErrMissingFields) {
			writeError(w, http.StatusBadRequest, "Missing required fields. Please provide all travel preferences.", err)
			return
		}
		s.logger.Error("planning failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Multi-agent orchestration failed", err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !s.decode(w, r, &req) {
		return
	}

	id, err := s.jobs.CreateJob(r.Context(), req.UserID, req.Preferences)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"jobId":   id,
			"message": "Travel planning job started in background",
		})
	case errors.Is(err, jobs.ErrMissingOwner), errors.Is(err, jobs.ErrMissingFields):
		writeError(w, http.StatusBadRequest, "Missing required fields in preferences", err)
	case errors.Is(err, jobs.ErrCacheUnavailable):
		writeError(w, http.StatusServiceUnavailable, "Cache store unavailable", err)
	default:
		s.logger.Error("job creation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create background job", err)
	}
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := s.jobs.GetJobStatus(r.Context(), r.PathValue("jobId"))
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Job not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get job status", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.jobs.History(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		if errors.Is(err, jobs.ErrMissingOwner) {
			writeError(w, http.StatusBadRequest, "Missing userId parameter", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get user history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "history": history})
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.jobs.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get queue stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"orchestrator": s.pipe.Describe(),
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req jobs.ChatRequest
	if !s.decode(w, r, &req) {
		return
	}

	reply, err := s.jobs.Chat(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, reply)
	case errors.Is(err, jobs.ErrMissingChatFields):
		writeError(w, http.StatusBadRequest, "planId and message are required", nil)
	case errors.Is(err, jobs.ErrPlanNotFound):
		writeError(w, http.StatusNotFound, "Plan not found", nil)
	case errors.Is(err, jobs.ErrChatUnavailable):
		writeError(w, http.StatusServiceUnavailable, "Chat is not configured", err)
	case errors.Is(err, jobs.ErrInvalidPatch):
		writeError(w, http.StatusUnprocessableEntity, "Requested change could not be applied", err)
	default:
		s.logger.Error("chat failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", err)
	}
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	turns, err := s.jobs.ChatHistory(r.Context(), r.URL.Query().Get("planId"))
	if err != nil {
		if errors.Is(err, jobs.ErrMissingChatFields) {
			writeError(w, http.StatusBadRequest, "Missing planId parameter", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get chat history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": turns})
}

type agentRequest struct {
	City        string                `json:"city"`
	Interests   string                `json:"interests"`
	Insights    []models.LocalInsight `json:"insights"`
	Preferences models.Preferences    `json:"preferences"`
}

// handleAgent runs one stage by itself. The selection stage takes bare
// preferences; the later stages take the city (and insights) an earlier
// stage would have produced.
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseStageID(r.PathValue("agent"))
	if err != nil || !id.Runnable() {
		writeError(w, http.StatusNotFound, "Unknown agent", err)
		return
	}

	var input models.Preferences
	var prior []models.StageOutput
	switch id {
	case models.StageSelection:
		if !s.decode(w, r, &input) {
			return
		}
	default:
		var req agentRequest
		if !s.decode(w, r, &req) {
			return
		}
		input = req.Preferences
		if req.Interests != "" {
			input.Interests = req.Interests
		}
		prior = append(prior, &models.CityAnalysis{SelectedCity: req.City})
		if id == models.StageScheduling {
			prior = append(prior, &models.LocalAnalysis{Insights: req.Insights})
		}
	}

	out, err := s.pipe.RunStage(r.Context(), id, input, prior...)
	if err != nil {
		s.logger.Error("agent failed", "agent", id, "error", err)
		writeError(w, http.StatusInternalServerError, id.String()+" agent failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": out})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	body := map[string]string{"error": msg}
	if err != nil {
		body["details"] = err.Error()
	}
	writeJSON(w, status, body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					"method", r.Method,
					"path", r.URL.Path,
					"error", err,
					"stack", string(debug.Stack()))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
