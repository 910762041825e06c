// Package storage persists the command audit trail and question history.
//
// Information Hiding:
// - Storage backend implementation details hidden behind interfaces
// - Allows swapping between memory and SQLite without API changes
// - Each implementation encapsulates its own data structures

package storage

import (
	"context"
	"time"
)

// Exchange is one answered question.
type Exchange struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
	Answer    string `json:"answer"`
	// Outcome is the final session phase: done, empty or failed.
	Outcome    string    `json:"outcome"`
	DurationMs int64     `json:"duration_ms"`
	Time       time.Time `json:"timestamp"`
}

// TranscriptStorage records the questions asked in each session.
type TranscriptStorage interface {
	// Append records one exchange.
	Append(ctx context.Context, e Exchange) error

	// History returns a session's exchanges, oldest first.
	// Returns an empty slice (not nil) if the session doesn't exist.
	History(ctx context.Context, sessionID string) ([]Exchange, error)

	// Delete removes a session's exchanges.
	Delete(ctx context.Context, sessionID string) error

	// ListSessions lists session IDs, most recently active first.
	ListSessions(ctx context.Context) ([]string, error)
}
