package models

import "time"

const (
	ToolSearch    = "search"
	ToolCalculate = "calculate"
)

// ToolRequest is a lookup a stage asks the orchestrator to perform.
type ToolRequest struct {
	Tool       string `json:"tool"`
	Query      string `json:"query,omitempty"`
	Expression string `json:"expression,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Purpose    string `json:"type,omitempty"`
}

// ToolCallRecord is the outcome of one tool invocation: exactly one of
// Output and Error is set.
type ToolCallRecord struct {
	Tool      string      `json:"tool"`
	Input     ToolRequest `json:"input"`
	Output    any         `json:"output,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func ToolSuccess(req ToolRequest, output any, at time.Time) ToolCallRecord {
	return ToolCallRecord{Tool: req.Tool, Input: req, Output: output, Timestamp: at}
}

func ToolFailure(req ToolRequest, msg string, at time.Time) ToolCallRecord {
	if msg == "" {
		msg = "unknown tool error"
	}
	return ToolCallRecord{Tool: req.Tool, Input: req, Error: msg, Timestamp: at}
}

func (r ToolCallRecord) Succeeded() bool {
	return r.Error == ""
}
