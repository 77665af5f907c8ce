package domain

import "context"

// HistoryStore persists the bounded conversation history under a session key.
type HistoryStore interface {
	Load(ctx context.Context, key string) ([]ConversationTurn, error)
	Save(ctx context.Context, key string, turns []ConversationTurn) error
	Clear(ctx context.Context, key string) error
}
