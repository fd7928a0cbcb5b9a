package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wricardo/gamecore/game/config"
	"github.com/wricardo/gamecore/game/controller"
	"github.com/wricardo/gamecore/game/rules"
	"github.com/wricardo/gamecore/game/service"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrInvalidSessionID     = errors.New("invalid session ID")
)

// MaxSessionIDLength bounds caller-chosen session ids
const MaxSessionIDLength = 64

// Definitions resolves the game a persisted session was created from
type Definitions interface {
	LoadDefinition(name string) (*config.Definition, error)
	Dir() string
}

// Manager handles game session lifecycle
type Manager struct {
	sessions    map[string]*service.Session
	definitions Definitions
	persistence SessionPersistence
	logger      *slog.Logger
	clock       func() time.Time
	mu          sync.RWMutex
}

// Option configures a Manager
type Option func(*Manager)

// WithPersistence stores sessions in p as they change
func WithPersistence(p SessionPersistence) Option {
	return func(m *Manager) {
		m.persistence = p
	}
}

// WithLogger sets the logger used by the manager and its controllers
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock sets the time source for session timestamps
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewManager creates a new session manager. definitions resolves games when
// persisted sessions are restored.
func NewManager(definitions Definitions, opts ...Option) *Manager {
	m := &Manager{
		sessions:    make(map[string]*service.Session),
		definitions: definitions,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewManagerWithPersistence creates a new session manager with persistence
func NewManagerWithPersistence(definitions Definitions, persistence SessionPersistence, opts ...Option) *Manager {
	return NewManager(definitions, append([]Option{WithPersistence(persistence)}, opts...)...)
}

// Create creates and starts a new session of game, built from def
func (m *Manager) Create(id, game string, def *config.Definition) (*service.Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionExists(id) {
		return nil, ErrSessionAlreadyExists
	}

	ctrl, err := m.newController(id, def)
	if err != nil {
		return nil, err
	}
	layout, err := ctrl.Engine().DefaultLayout()
	if err != nil {
		return nil, fmt.Errorf("failed to build layout: %w", err)
	}
	if _, err := ctrl.Start(game, layout); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	now := m.clock()
	session := &service.Session{
		ID:             id,
		Game:           game,
		Definition:     def,
		Controller:     ctrl,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	m.sessions[strings.ToLower(id)] = session
	m.logger.Info("session created", "session", id, "game", game, "rules", def.Rules)

	if m.persistence != nil {
		if err := m.persist(session); err != nil {
			m.logger.Warn("failed to persist session", "session", id, "error", err)
		}
	}

	return session, nil
}

func (m *Manager) newController(id string, def *config.Definition) (*controller.Controller, error) {
	dir := ""
	if m.definitions != nil {
		dir = m.definitions.Dir()
	}
	eng, err := rules.NewEngine(def, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return controller.New(eng,
		controller.WithQueueCapacity(def.QueueCapacity),
		controller.WithLogger(m.logger.With("session", id)),
		controller.WithClock(m.clock),
	), nil
}

// Get retrieves a session by ID (case-insensitive), restoring it from
// persistence when it is not in memory
func (m *Manager) Get(id string) (*service.Session, error) {
	m.mu.RLock()
	session, exists := m.sessions[strings.ToLower(id)]
	m.mu.RUnlock()

	if exists {
		return session, nil
	}

	if m.persistence != nil && m.persistence.Exists(id) {
		rec, err := m.persistence.Load(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load persisted session: %w", err)
		}
		session, err := m.restore(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to restore persisted session: %w", err)
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		// Another caller may have restored it first
		if existing, ok := m.sessions[strings.ToLower(id)]; ok {
			return existing, nil
		}
		m.sessions[strings.ToLower(id)] = session
		return session, nil
	}

	return nil, ErrSessionNotFound
}

// GetOrCreate gets an existing session or creates a new one
func (m *Manager) GetOrCreate(id, game string, def *config.Definition) (*service.Session, error) {
	session, err := m.Get(id)
	if err == nil {
		return session, nil
	}

	if errors.Is(err, ErrSessionNotFound) {
		return m.Create(id, game, def)
	}

	return nil, err
}

// List returns all sessions in memory
func (m *Manager) List() []*service.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*service.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}

	return result
}

// Delete removes a session from memory and persistence
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lowerID := strings.ToLower(id)
	_, inMemory := m.sessions[lowerID]
	delete(m.sessions, lowerID)

	if m.persistence != nil && m.persistence.Exists(id) {
		if err := m.persistence.Delete(id); err != nil {
			return fmt.Errorf("failed to delete persisted session: %w", err)
		}
		m.logger.Info("session deleted", "session", id)
		return nil
	}

	if !inMemory {
		return ErrSessionNotFound
	}
	m.logger.Info("session deleted", "session", id)
	return nil
}

// DeleteFromMemory removes a session from memory only (not from persistence)
func (m *Manager) DeleteFromMemory(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lowerID := strings.ToLower(id)
	if _, exists := m.sessions[lowerID]; !exists {
		return ErrSessionNotFound
	}
	delete(m.sessions, lowerID)
	return nil
}

// UpdateLastAccessed touches a session and persists its current state
func (m *Manager) UpdateLastAccessed(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[strings.ToLower(id)]
	if !exists {
		return ErrSessionNotFound
	}

	session.LastAccessedAt = m.clock()

	if m.persistence != nil {
		if err := m.persist(session); err != nil {
			m.logger.Warn("failed to persist session after access update", "session", id, "error", err)
		}
	}

	return nil
}

// Save saves a specific session to persistence
func (m *Manager) Save(id string) error {
	if m.persistence == nil {
		return nil
	}

	m.mu.RLock()
	session, exists := m.sessions[strings.ToLower(id)]
	m.mu.RUnlock()
	if !exists {
		return ErrSessionNotFound
	}

	return m.persist(session)
}

// CleanupExpiredSessions removes sessions that haven't been accessed in the
// given duration from memory. Persisted copies are kept.
func (m *Manager) CleanupExpiredSessions(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.clock().Add(-maxAge)
	removed := 0

	for id, session := range m.sessions {
		if session.LastAccessedAt.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}

	if removed > 0 {
		m.logger.Info("expired sessions removed", "count", removed)
	}
	return removed
}

// Count returns the number of sessions in memory
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// LoadPersistedSessions loads all persisted sessions into memory
func (m *Manager) LoadPersistedSessions() error {
	if m.persistence == nil {
		return nil
	}

	sessionIDs, err := m.persistence.ListAll()
	if err != nil {
		return fmt.Errorf("failed to list persisted sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	loadedCount := 0
	for _, id := range sessionIDs {
		if _, exists := m.sessions[strings.ToLower(id)]; exists {
			continue
		}

		rec, err := m.persistence.Load(id)
		if err != nil {
			m.logger.Warn("failed to load persisted session", "session", id, "error", err)
			continue
		}
		session, err := m.restore(rec)
		if err != nil {
			m.logger.Warn("failed to restore persisted session", "session", id, "error", err)
			continue
		}

		m.sessions[strings.ToLower(id)] = session
		loadedCount++
	}

	if loadedCount > 0 {
		m.logger.Info("loaded persisted sessions", "count", loadedCount)
	}

	return nil
}

// SaveAllSessions saves all in-memory sessions to persistence
func (m *Manager) SaveAllSessions() error {
	if m.persistence == nil {
		return nil
	}

	sessions := m.List()

	errorCount := 0
	for _, session := range sessions {
		if err := m.persist(session); err != nil {
			m.logger.Warn("failed to save session", "session", session.ID, "error", err)
			errorCount++
		}
	}

	if errorCount > 0 {
		return fmt.Errorf("failed to save %d sessions", errorCount)
	}

	return nil
}

// persist writes the session's committed state through the backend
func (m *Manager) persist(session *service.Session) error {
	state, err := session.Controller.Save()
	if err != nil {
		return err
	}
	return m.persistence.Save(&Record{
		ID:             session.ID,
		Game:           session.Game,
		CreatedAt:      session.CreatedAt,
		LastAccessedAt: session.LastAccessedAt,
		State:          state,
	})
}

// restore rebuilds a live session from a stored record
func (m *Manager) restore(rec *Record) (*service.Session, error) {
	if m.definitions == nil {
		return nil, fmt.Errorf("no definitions to restore game %q", rec.Game)
	}
	def, err := m.definitions.LoadDefinition(rec.Game)
	if err != nil {
		return nil, fmt.Errorf("failed to load game %q: %w", rec.Game, err)
	}
	ctrl, err := m.newController(rec.ID, def)
	if err != nil {
		return nil, err
	}
	if _, err := ctrl.Load(rec.State); err != nil {
		return nil, err
	}
	return &service.Session{
		ID:             rec.ID,
		Game:           rec.Game,
		Definition:     def,
		Controller:     ctrl,
		CreatedAt:      rec.CreatedAt,
		LastAccessedAt: rec.LastAccessedAt,
	}, nil
}

// sessionExists checks if a session exists (case-insensitive)
func (m *Manager) sessionExists(id string) bool {
	_, exists := m.sessions[strings.ToLower(id)]
	return exists
}

// ValidateID checks that id is safe to use as a storage key
func ValidateID(id string) error {
	if id == "" || len(id) > MaxSessionIDLength {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
		}
	}
	return nil
}
