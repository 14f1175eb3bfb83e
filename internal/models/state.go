package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the run's audit log.
type Message struct {
	Role      Role      `json:"role"`
	Stage     string    `json:"stage,omitempty"`
	Content   any       `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionState is the working memory of a single pipeline run. It is owned
// by the run that created it and is never shared.
type ExecutionState struct {
	Messages       []Message        `json:"messages"`
	CurrentStage   StageID          `json:"currentStage"`
	Step           int              `json:"step"`
	StageOutputs   StageOutputs     `json:"stageOutputs"`
	ToolCalls      []ToolCallRecord `json:"toolCalls"`
	IsComplete     bool             `json:"isComplete"`
	TerminalOutput StageOutput      `json:"terminalOutput,omitempty"`
	Input          Preferences      `json:"input"`
}

// NewExecutionState starts a run at start with the input recorded as the
// single initial user message.
func NewExecutionState(input Preferences, start StageID, now time.Time) *ExecutionState {
	return &ExecutionState{
		Messages: []Message{{
			Role:      RoleUser,
			Content:   input,
			Timestamp: now,
		}},
		CurrentStage: start,
		StageOutputs: make(StageOutputs),
		Input:        input,
	}
}

func (s *ExecutionState) AppendMessage(m Message) {
	s.Messages = append(s.Messages, m)
}

// Elapsed is the time between the first and last logged message.
func (s *ExecutionState) Elapsed() time.Duration {
	if len(s.Messages) < 2 {
		return 0
	}
	return s.Messages[len(s.Messages)-1].Timestamp.Sub(s.Messages[0].Timestamp)
}
