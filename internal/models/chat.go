package models

import "time"

type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatTurn is one message of the conversation attached to a plan.
type ChatTurn struct {
	Role            ChatRole  `json:"role"`
	Content         string    `json:"content"`
	InteractionType string    `json:"interactionType,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
