// Package session defines the conversation history contract shared by the
// chat engine and its storage backends.
package session

import (
	"context"
	"time"
)

// Turn is one conversation entry, either the user's message or the
// assistant's reply.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store keeps per-session conversation history. Implementations cap each
// session at maxTurns exchanges (2*maxTurns entries), dropping the oldest.
type Store interface {
	AddTurn(ctx context.Context, sessionID string, turn Turn) error
	History(ctx context.Context, sessionID string) ([]Turn, error)
}
