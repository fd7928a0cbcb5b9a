package session

import (
	"time"
)

// SessionPersistence defines the interface for persisting sessions
type SessionPersistence interface {
	// Save persists a session record, replacing any previous one
	Save(rec *Record) error

	// Load retrieves a session record by ID
	Load(id string) (*Record, error)

	// Delete removes a session from storage
	Delete(id string) error

	// ListAll returns all persisted session IDs
	ListAll() ([]string, error)

	// Exists checks if a session exists in storage
	Exists(id string) bool
}

// Record is what a backend stores for one session. State is the codec
// document produced by the session's controller.
type Record struct {
	ID             string    `json:"id"`
	Game           string    `json:"game"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	State          []byte    `json:"-"`
}
