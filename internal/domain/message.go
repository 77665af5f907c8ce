package domain

import "time"

// Role constants for conversation turns.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn is one entry of the bounded conversation history.
type ConversationTurn struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SameAs reports whether two turns carry the same role and content.
// IDs and timestamps are ignored.
func (t ConversationTurn) SameAs(other ConversationTurn) bool {
	return t.Role == other.Role && t.Content == other.Content
}
