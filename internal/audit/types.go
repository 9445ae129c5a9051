package audit

import (
	"context"
	"time"
)

// Record captures correlation metadata for one tool invocation: enough to
// match a call to the backend's own logs, and nothing conversational.
// Prompts and replies are deliberately not stored.
type Record struct {
	ID        string        `json:"id"`
	RefCode   string        `json:"ref_code"`
	SessionID string        `json:"session_id"`
	Tool      string        `json:"tool"`
	Outcome   string        `json:"outcome"`
	Elapsed   time.Duration `json:"elapsed"`
	CreatedAt time.Time     `json:"created_at"`
}

// Store persists and retrieves the invocation audit trail.
type Store interface {
	SaveInvocation(ctx context.Context, record Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}
