package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mpataki/trek/internal/models"
)

// Tool is a named lookup a stage can request.
type Tool interface {
	Name() string
	Call(ctx context.Context, req models.ToolRequest) (any, error)
}

// Invoker dispatches tool requests by name. Its tool set is fixed at
// construction.
type Invoker struct {
	tools  map[string]Tool
	now    func() time.Time
	logger *slog.Logger
}

func NewInvoker(logger *slog.Logger, tools ...Tool) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	m := make(map[string]Tool, len(tools))
	for _, t := range tools {
		m[t.Name()] = t
	}
	return &Invoker{tools: m, now: time.Now, logger: logger}
}

// Names lists the registered tools in sorted order.
func (i *Invoker) Names() []string {
	names := make([]string, 0, len(i.tools))
	for n := range i.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Invoke runs reqs sequentially in order and returns one record per request.
// Failures are recorded, never returned.
func (i *Invoker) Invoke(ctx context.Context, reqs []models.ToolRequest) []models.ToolCallRecord {
	records := make([]models.ToolCallRecord, 0, len(reqs))
	for _, req := range reqs {
		records = append(records, i.invokeOne(ctx, req))
	}
	return records
}

func (i *Invoker) invokeOne(ctx context.Context, req models.ToolRequest) (rec models.ToolCallRecord) {
	tool, ok := i.tools[req.Tool]
	if !ok {
		i.logger.Warn("tool not available", "tool", req.Tool)
		return models.ToolFailure(req, "tool not available", i.now())
	}

	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("tool panicked", "tool", req.Tool, "panic", r)
			rec = models.ToolFailure(req, fmt.Sprintf("tool panicked: %v", r), i.now())
		}
	}()

	out, err := tool.Call(ctx, req)
	if err != nil {
		i.logger.Warn("tool call failed", "tool", req.Tool, "error", err)
		return models.ToolFailure(req, err.Error(), i.now())
	}
	i.logger.Debug("tool call succeeded", "tool", req.Tool)
	return models.ToolSuccess(req, out, i.now())
}
