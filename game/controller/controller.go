// Package controller owns one live game session: it buffers submitted
// actions, applies them one per tick through the rule engine, publishes
// read-only snapshots and saves or loads the session through the codec.
package controller

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/wricardo/gamecore/game/codec"
	"github.com/wricardo/gamecore/game/engine"
	"github.com/wricardo/gamecore/game/queue"
)

// ErrSessionInactive is returned when an action is submitted to a session
// that is not in progress
var ErrSessionInactive = errors.New("session is not in progress")

// Controller orchestrates a single session. Submit and Snapshot are safe for
// concurrent use; Start, Tick, Drain, Abort and Load are serialized.
type Controller struct {
	engine *engine.Engine
	queue  *queue.Queue[engine.Action]
	codec  *codec.Codec
	logger *slog.Logger
	clock  func() time.Time

	mu      sync.Mutex
	state   *engine.State
	history []Entry
	seq     int

	snapshot atomic.Pointer[engine.Snapshot]
}

// Option configures a Controller
type Option func(*Controller)

// WithQueueCapacity bounds the number of pending actions. Zero means unbounded.
func WithQueueCapacity(capacity int) Option {
	return func(c *Controller) {
		c.queue = queue.New[engine.Action](capacity)
	}
}

// WithLogger sets the structured logger for session events
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCodec replaces the codec used by Save and Load
func WithCodec(cd *codec.Codec) Option {
	return func(c *Controller) {
		if cd != nil {
			c.codec = cd
		}
	}
}

// WithClock sets the time source used for history timestamps and action ids
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// New creates a controller for eng. The session is not started.
func New(eng *engine.Engine, opts ...Option) *Controller {
	c := &Controller{
		engine: eng,
		queue:  queue.New[engine.Action](0),
		codec:  codec.New(codec.WithSchema(eng.Ruleset().Schema)),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.publish(engine.NewState(eng.Name()))
	return c
}

// Engine returns the rule engine the session runs under
func (c *Controller) Engine() *engine.Engine {
	return c.engine
}

// Start begins a fresh session from layout, discarding any pending actions
// and history
func (c *Controller) Start(game string, layout engine.Layout) (*engine.Snapshot, error) {
	s, err := c.engine.NewGame(game, layout)
	if err != nil {
		c.logger.Error("session start failed", "game", game, "error", err)
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := c.queue.Clear()
	c.state = s
	c.history = nil
	c.seq = 0
	snap := c.publish(s)
	c.logger.Info("session started", "game", game, "entities", s.Len(), "dropped", dropped)
	return view(snap), nil
}

// Started reports whether Start or Load has succeeded
func (c *Controller) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != nil
}

// Submit queues an action for a later tick. It fails with ErrSessionInactive
// when the session is not in progress and with queue.ErrQueueFull under
// backpressure; in both cases nothing is queued. The queued action, with its
// assigned id, is returned.
func (c *Controller) Submit(a engine.Action) (engine.Action, error) {
	// Held across the status check and the enqueue so a concurrent Tick,
	// Abort, Start or Load cannot land in between.
	c.mu.Lock()
	defer c.mu.Unlock()

	status := engine.StatusNotStarted
	if c.state != nil {
		status = c.state.Status
	}
	if status != engine.StatusInProgress {
		return a, fmt.Errorf("%w: status is %s", ErrSessionInactive, status)
	}

	a = a.Clone()
	if a.ID == "" {
		a.ID = ulid.MustNew(ulid.Timestamp(c.clock()), ulid.DefaultEntropy()).String()
	}
	if err := c.queue.Enqueue(a); err != nil {
		c.logger.Warn("action dropped", "action", a.ID, "kind", a.Kind, "actor", a.Actor, "error", err)
		return a, err
	}
	c.refreshPending()
	c.logger.Debug("action queued", "action", a.ID, "kind", a.Kind, "actor", a.Actor, "pending", c.queue.Len())
	return a, nil
}

// Tick applies the oldest pending action. It returns the new snapshot, or the
// rule violation with the state unchanged. With nothing pending it returns the
// current snapshot. Tick panics if the session was never started.
func (c *Controller) Tick() (*engine.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mustBeStarted("Tick")

	snap, _, err := c.tickLocked()
	return view(snap), err
}

// Result is the outcome of one action applied by Drain
type Result struct {
	Action   engine.Action    `json:"action"`
	Snapshot *engine.Snapshot `json:"snapshot,omitempty"`
	Error    error            `json:"-"`
}

// Drain ticks until the queue is empty, the session ends, or max actions have
// been applied (max <= 0 means no limit). Actions left in the queue when the
// session ends stay there and are dropped by the next Start or Load.
func (c *Controller) Drain(max int) []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mustBeStarted("Drain")

	var results []Result
	for max <= 0 || len(results) < max {
		if c.state.Status != engine.StatusInProgress {
			break
		}
		snap, a, err := c.tickLocked()
		if a == nil {
			break
		}
		results = append(results, Result{Action: *a, Snapshot: view(snap), Error: err})
	}
	return results
}

// tickLocked applies one action. The returned action is nil when the queue
// was empty.
func (c *Controller) tickLocked() (*engine.Snapshot, *engine.Action, error) {
	a, ok := c.queue.Dequeue()
	if !ok {
		return c.snapshot.Load(), nil, nil
	}

	if c.state.Status != engine.StatusInProgress {
		err := fmt.Errorf("%w: status is %s", ErrSessionInactive, c.state.Status)
		c.record(a, c.state.Turn, err)
		c.refreshPending()
		c.logger.Warn("transition rejected", "action", a.ID, "kind", a.Kind, "actor", a.Actor, "error", err)
		return c.snapshot.Load(), &a, err
	}

	before := c.state.Turn
	next, err := c.engine.Apply(c.state, a)
	if err != nil {
		c.record(a, before, err)
		c.refreshPending()
		c.logger.Info("transition rejected", "action", a.ID, "kind", a.Kind, "actor", a.Actor, "turn", before, "error", err)
		return c.snapshot.Load(), &a, err
	}

	c.state = next
	c.record(a, before, nil)
	snap := c.publish(next)
	c.logger.Info("transition applied", "action", a.ID, "kind", a.Kind, "actor", a.Actor,
		"turn", next.Turn, "status", next.Status)
	if next.Status.Terminal() {
		c.logger.Info("session ended", "status", next.Status, "winner", next.Winner, "turn", next.Turn)
	}
	return snap, &a, nil
}

// Abort ends an in-progress session immediately, bypassing the queue and the
// ruleset. Abort panics if the session was never started.
func (c *Controller) Abort(reason string) (*engine.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mustBeStarted("Abort")

	a := engine.Action{
		ID:   ulid.MustNew(ulid.Timestamp(c.clock()), ulid.DefaultEntropy()).String(),
		Kind: engine.KindAbort,
	}
	before := c.state.Turn
	next, err := c.engine.Apply(c.state, a)
	if err != nil {
		c.logger.Warn("abort rejected", "reason", reason, "error", err)
		return view(c.snapshot.Load()), fmt.Errorf("%w: %v", ErrSessionInactive, err)
	}
	if reason != "" {
		next.Meta["abort_reason"] = reason
	}
	c.state = next
	c.record(a, before, nil)
	dropped := c.queue.Clear()
	snap := c.publish(next)
	c.logger.Info("session aborted", "reason", reason, "turn", next.Turn, "dropped", dropped)
	return view(snap), nil
}

// Save encodes the committed state. Pending actions are not saved. Save
// panics if the session was never started.
func (c *Controller) Save() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mustBeStarted("Save")

	data, err := c.codec.Encode(c.state)
	if err != nil {
		c.logger.Error("session save failed", "error", err)
		return nil, err
	}
	c.logger.Info("session saved", "turn", c.state.Turn, "status", c.state.Status, "bytes", len(data))
	return data, nil
}

// Load replaces the session with a decoded state. The swap happens only if
// decoding fully succeeds; on failure the current session is untouched.
// A successful load drops pending actions and history.
func (c *Controller) Load(data []byte) (*engine.Snapshot, error) {
	s, err := c.codec.Decode(data)
	if err != nil {
		c.logger.Warn("session load failed", "bytes", len(data), "error", err)
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := c.queue.Clear()
	c.state = s
	c.history = nil
	c.seq = 0
	snap := c.publish(s)
	c.logger.Info("session loaded", "game", s.Game, "turn", s.Turn, "status", s.Status, "dropped", dropped)
	return view(snap), nil
}

// Snapshot returns the most recently committed snapshot. Before the session
// starts it reports a not_started state with no entities.
func (c *Controller) Snapshot() *engine.Snapshot {
	return view(c.snapshot.Load())
}

// Pending returns the number of queued actions
func (c *Controller) Pending() int {
	return c.queue.Len()
}

// publish builds and stores the snapshot for s. Committed states are never
// mutated, so the stored snapshot shares s; callers receive copies via view.
// Callers hold c.mu, except during construction.
func (c *Controller) publish(s *engine.State) *engine.Snapshot {
	snap := &engine.Snapshot{
		State:   s,
		Actor:   c.engine.Actor(s),
		Pending: c.queue.Len(),
	}
	if s.Status != engine.StatusNotStarted {
		if fp, err := c.codec.Fingerprint(s); err == nil {
			snap.Fingerprint = fp
		} else {
			c.logger.Error("fingerprint failed", "error", err)
		}
	}
	c.snapshot.Store(snap)
	return snap
}

// view returns a copy of snap whose state the caller may freely mutate
func view(snap *engine.Snapshot) *engine.Snapshot {
	v := *snap
	v.State = snap.State.Clone()
	return &v
}

// refreshPending republishes the current snapshot with an updated queue length
func (c *Controller) refreshPending() {
	for {
		old := c.snapshot.Load()
		pending := c.queue.Len()
		if old.Pending == pending {
			return
		}
		updated := *old
		updated.Pending = pending
		if c.snapshot.CompareAndSwap(old, &updated) {
			return
		}
	}
}

func (c *Controller) mustBeStarted(op string) {
	if c.state == nil {
		panic(fmt.Sprintf("controller: %s called before Start", op))
	}
}
