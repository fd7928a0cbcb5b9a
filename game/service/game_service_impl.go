package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/wricardo/gamecore/game/config"
	"github.com/wricardo/gamecore/game/controller"
	"github.com/wricardo/gamecore/game/engine"
)

// ErrTooManyActions is returned when Play is given more than MaxPlayActions
var ErrTooManyActions = errors.New("too many actions")

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	sessions  SessionManager
	configs   ConfigManager
	publisher Publisher
	logger    *slog.Logger
}

// Option configures the game service
type Option func(*gameServiceImpl)

// WithPublisher sends every committed snapshot to p
func WithPublisher(p Publisher) Option {
	return func(s *gameServiceImpl) {
		s.publisher = p
	}
}

// WithLogger sets the service logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *gameServiceImpl) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewGameService creates a new game service instance
func NewGameService(sessions SessionManager, configs ConfigManager, opts ...Option) GameService {
	s := &gameServiceImpl{
		sessions: sessions,
		configs:  configs,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// getGameID returns the definition id for a display name, used when the
// default definition is picked
func (s *gameServiceImpl) getGameID(name string) string {
	infos, err := s.configs.ListDefinitions()
	if err == nil {
		for _, info := range infos {
			if info.Name == name {
				return info.ID
			}
		}
	}
	if name == "" {
		return "default"
	}
	return name
}

// CreateSession creates and starts a new session of game, or of the default
// game when game is empty
func (s *gameServiceImpl) CreateSession(ctx context.Context, game string) (*SessionInfo, error) {
	var def *config.Definition
	var err error
	if game != "" {
		def, err = s.configs.LoadDefinition(game)
		if err != nil {
			if errors.Is(err, config.ErrConfigNotFound) {
				infos, listErr := s.configs.ListDefinitions()
				if listErr == nil && len(infos) > 0 {
					ids := make([]string, 0, len(infos))
					for _, info := range infos {
						ids = append(ids, info.ID)
					}
					return nil, fmt.Errorf("game '%s' not found, available games: %v: %w", game, ids, err)
				}
			}
			return nil, fmt.Errorf("failed to load game %s: %w", game, err)
		}
	} else {
		def = s.configs.GetDefault()
		game = s.getGameID(def.Name)
	}

	sess, err := s.sessions.Create("", game, def)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.publish(sess)
	return sessionInfo(sess), nil
}

// GetSession retrieves session information
func (s *gameServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	return sessionInfo(sess), nil
}

// ListSessions returns all sessions in memory, oldest first
func (s *gameServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	sessions := s.sessions.List()
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, sessionInfo(sess))
	}
	return result, nil
}

// DeleteSession removes a session
func (s *gameServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	return s.sessions.Delete(sessionID)
}

// Submit queues an action on a session
func (s *gameServiceImpl) Submit(ctx context.Context, sessionID string, action engine.Action) (*SubmitResult, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}

	queued, err := sess.Controller.Submit(action)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Action: queued, Pending: sess.Controller.Pending()}, nil
}

// Tick applies the oldest pending action of a session. With nothing pending
// the result carries no action and the current snapshot.
func (s *gameServiceImpl) Tick(ctx context.Context, sessionID string) (*ActionResult, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}

	results := sess.Controller.Drain(1)
	if len(results) == 0 {
		r := newActionResult(nil, sess.Controller.Snapshot(), nil)
		return &r, nil
	}
	if err := results[0].Error; err != nil {
		return nil, err
	}

	s.commit(sess)
	r := fromDrain(results[0])
	return &r, nil
}

// Play submits actions in order and drains the session queue. Submission
// stops at the first action the queue refuses; rejected transitions are
// reported per action and do not stop the drain.
func (s *gameServiceImpl) Play(ctx context.Context, sessionID string, actions []engine.Action) (*PlayResult, error) {
	if len(actions) > MaxPlayActions {
		return nil, fmt.Errorf("%w: got %d, limit is %d", ErrTooManyActions, len(actions), MaxPlayActions)
	}
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}

	result := &PlayResult{Requested: len(actions)}
	for _, a := range actions {
		if err := ctx.Err(); err != nil {
			result.StoppedReason = err.Error()
			break
		}
		if _, err := sess.Controller.Submit(a); err != nil {
			if result.Submitted == 0 {
				return nil, err
			}
			result.StoppedReason = err.Error()
			break
		}
		result.Submitted++
	}

	for _, res := range sess.Controller.Drain(0) {
		ar := fromDrain(res)
		if ar.Applied {
			result.Applied++
		} else {
			result.Rejected++
		}
		result.Results = append(result.Results, ar)
	}

	result.Snapshot = sess.Controller.Snapshot()
	result.GameOver = result.Snapshot.State.Status.Terminal()
	if result.Applied > 0 {
		s.commit(sess)
	}
	s.logger.Info("actions played", "session", sess.ID, "requested", result.Requested,
		"applied", result.Applied, "rejected", result.Rejected, "status", result.Snapshot.State.Status)
	return result, nil
}

// Abort ends a session immediately
func (s *gameServiceImpl) Abort(ctx context.Context, sessionID, reason string) (*engine.Snapshot, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}

	snap, err := sess.Controller.Abort(reason)
	if err != nil {
		return nil, err
	}
	s.commit(sess)
	return snap, nil
}

// Reset restarts a session from its game's initial layout
func (s *gameServiceImpl) Reset(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}

	layout, err := sess.Controller.Engine().DefaultLayout()
	if err != nil {
		return nil, fmt.Errorf("failed to build layout: %w", err)
	}
	snap, err := sess.Controller.Start(sess.Game, layout)
	if err != nil {
		return nil, err
	}
	s.commit(sess)
	return snap, nil
}

// Snapshot returns the latest committed snapshot of a session
func (s *gameServiceImpl) Snapshot(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Controller.Snapshot(), nil
}

// History returns a page of a session's action journal
func (s *gameServiceImpl) History(ctx context.Context, sessionID string, opts controller.HistoryOptions) (*controller.HistoryPage, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	page := sess.Controller.History(opts)
	return &page, nil
}

// Save encodes a session's committed state
func (s *gameServiceImpl) Save(ctx context.Context, sessionID string) ([]byte, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Controller.Save()
}

// Load replaces a session's state with a saved document
func (s *gameServiceImpl) Load(ctx context.Context, sessionID string, data []byte) (*engine.Snapshot, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}

	snap, err := sess.Controller.Load(data)
	if err != nil {
		return nil, err
	}
	s.commit(sess)
	return snap, nil
}

// ListGames returns the available game definitions
func (s *gameServiceImpl) ListGames(ctx context.Context) ([]*config.Info, error) {
	return s.configs.ListDefinitions()
}

// LoadGame returns a game definition by name
func (s *gameServiceImpl) LoadGame(ctx context.Context, name string) (*config.Definition, error) {
	return s.configs.LoadDefinition(name)
}

// SaveGame stores a game definition
func (s *gameServiceImpl) SaveGame(ctx context.Context, name string, def *config.Definition) error {
	return s.configs.SaveDefinition(name, def)
}

// get resolves a session and marks it accessed
func (s *gameServiceImpl) get(sessionID string) (*Session, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	if err := s.sessions.UpdateLastAccessed(sessionID); err != nil {
		s.logger.Warn("failed to update session access", "session", sessionID, "error", err)
	}
	return sess, nil
}

// commit persists and publishes a session after its state changed
func (s *gameServiceImpl) commit(sess *Session) {
	if err := s.sessions.Save(sess.ID); err != nil {
		s.logger.Warn("failed to persist session", "session", sess.ID, "error", err)
	}
	s.publish(sess)
}

func (s *gameServiceImpl) publish(sess *Session) {
	if s.publisher != nil {
		s.publisher.Publish(sess.ID, sess.Controller.Snapshot())
	}
}

func sessionInfo(sess *Session) *SessionInfo {
	snap := sess.Controller.Snapshot()
	info := &SessionInfo{
		ID:             sess.ID,
		Game:           sess.Game,
		Rules:          sess.Definition.Rules,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt,
		Snapshot:       snap,
	}
	if sess.Definition.Rules == config.RulesRoadTrip {
		info.Insights = roadTripInsights(sess.Definition, snap.State)
	}
	return info
}
