package service

import (
	"context"
	"time"

	"github.com/wricardo/gamecore/game/config"
	"github.com/wricardo/gamecore/game/controller"
	"github.com/wricardo/gamecore/game/engine"
)

// GameService defines all game-related operations
type GameService interface {
	// Session Management
	CreateSession(ctx context.Context, game string) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Actions
	Submit(ctx context.Context, sessionID string, action engine.Action) (*SubmitResult, error)
	Tick(ctx context.Context, sessionID string) (*ActionResult, error)
	Play(ctx context.Context, sessionID string, actions []engine.Action) (*PlayResult, error)
	Abort(ctx context.Context, sessionID, reason string) (*engine.Snapshot, error)
	Reset(ctx context.Context, sessionID string) (*engine.Snapshot, error)

	// Game State
	Snapshot(ctx context.Context, sessionID string) (*engine.Snapshot, error)
	History(ctx context.Context, sessionID string, opts controller.HistoryOptions) (*controller.HistoryPage, error)
	Save(ctx context.Context, sessionID string) ([]byte, error)
	Load(ctx context.Context, sessionID string, data []byte) (*engine.Snapshot, error)

	// Game definitions
	ListGames(ctx context.Context) ([]*config.Info, error)
	LoadGame(ctx context.Context, name string) (*config.Definition, error)
	SaveGame(ctx context.Context, name string, def *config.Definition) error
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(id, game string, def *config.Definition) (*Session, error)
	Get(id string) (*Session, error)
	GetOrCreate(id, game string, def *config.Definition) (*Session, error)
	List() []*Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
	Save(id string) error
}

// ConfigManager handles game definition loading
type ConfigManager interface {
	LoadDefinition(name string) (*config.Definition, error)
	ListDefinitions() ([]*config.Info, error)
	GetDefault() *config.Definition
	SaveDefinition(name string, def *config.Definition) error
	Dir() string
}

// Publisher receives every snapshot a session commits
type Publisher interface {
	Publish(sessionID string, snap *engine.Snapshot)
}

// Session represents an active game session
type Session struct {
	ID             string
	Game           string
	Definition     *config.Definition
	Controller     *controller.Controller
	CreatedAt      time.Time
	LastAccessedAt time.Time
}
