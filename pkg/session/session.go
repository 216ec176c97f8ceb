// Package session holds per-conversation engagement state and the Store
// abstraction over its persistence. All turn-state mutation goes through
// Store.Update, which serializes concurrent turns for the same session so
// counters and the finalized flag never lose updates.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Snapshot when the session does not exist.
var ErrNotFound = errors.New("session not found")

// Counters tracks how many decoy replies so far carried each rubric feature.
type Counters struct {
	Questions     int `json:"questions"`
	Investigative int `json:"investigative"`
	RedFlags      int `json:"redFlags"`
	Elicitation   int `json:"elicitation"`
}

// Session is the engagement state for one conversation.
type Session struct {
	ID          string          `json:"id"`
	StartTime   time.Time       `json:"startTime"`
	TurnCount   int             `json:"turnCount"`
	ScamScore   int             `json:"scamScore"`
	Counters    Counters        `json:"counters"`
	AskedTopics map[string]bool `json:"askedTopics"`
	Finalized   bool            `json:"finalized"`
}

// newSession builds a fresh session. AskedTopics is always non-nil so update
// closures can write into it without a nil check.
func newSession(id string, now time.Time) Session {
	return Session{
		ID:          id,
		StartTime:   now,
		AskedTopics: make(map[string]bool),
	}
}

// clone returns a deep copy safe to hand outside the store's lock.
func (s Session) clone() Session {
	out := s
	out.AskedTopics = make(map[string]bool, len(s.AskedTopics))
	for k, v := range s.AskedTopics {
		out.AskedTopics[k] = v
	}
	return out
}

// UpdateFunc mutates a session in place under the store's per-session
// serialization. It must be side-effect free outside the session itself:
// optimistic backends may invoke it more than once before committing.
type UpdateFunc func(*Session)

// Store is the persistence contract for engagement state.
type Store interface {
	// GetOrCreate returns the session, creating it on first sight.
	GetOrCreate(ctx context.Context, id string) (Session, error)

	// Update applies fn atomically and returns the committed state. The
	// session is created first if it does not exist.
	Update(ctx context.Context, id string, fn UpdateFunc) (Session, error)

	// Snapshot returns a copy of the current state, or ErrNotFound.
	Snapshot(ctx context.Context, id string) (Session, error)

	// Close releases background resources.
	Close() error
}
