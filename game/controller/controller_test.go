package controller

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wricardo/gamecore/game/codec"
	"github.com/wricardo/gamecore/game/engine"
	"github.com/wricardo/gamecore/game/queue"
)

const winScore = 3

// createTestRuleset is a two player race: each turn a player scores points,
// first to winScore wins.
func createTestRuleset() *engine.Ruleset {
	return &engine.Ruleset{
		Name:   "race",
		Schema: engine.Schema{"player": {"score": engine.KindInt}},
		Turns:  engine.RoundRobin{},
		Rules: engine.Rules{
			Update: engine.Rule{
				Shape: engine.Shape{Params: map[string]engine.ValueKind{"points": engine.KindInt}},
				Legal: func(s *engine.State, a engine.Action) error {
					if p := a.Params["points"].Int(); p < 1 || p > 2 {
						return engine.Violation("points_out_of_range", "points must be 1 or 2, got %d", p)
					}
					return nil
				},
				Effect: func(next *engine.State, a engine.Action) error {
					e := next.Entity(a.Actor)
					e.Set("score", engine.IntValue(e.Int("score")+a.Params["points"].Int()))
					return nil
				},
			},
			Pass: engine.Rule{
				Effect: func(next *engine.State, a engine.Action) error { return nil },
			},
		},
		End: engine.EndConditions{
			Win: []engine.Condition{func(s *engine.State) (bool, engine.EntityID) {
				for _, p := range s.EntitiesOfType("player") {
					if p.Int("score") >= winScore {
						return true, p.ID
					}
				}
				return false, ""
			}},
		},
		Setup: func() (engine.Layout, error) { return createTestLayout(), nil },
	}
}

func createTestLayout() engine.Layout {
	return engine.Layout{
		Entities: []*engine.Entity{
			{ID: "p1", Type: "player", Attrs: map[string]engine.Value{"score": engine.IntValue(0)}},
			{ID: "p2", Type: "player", Attrs: map[string]engine.Value{"score": engine.IntValue(0)}},
		},
		Order: []engine.EntityID{"p1", "p2"},
	}
}

func createTestController(t *testing.T, opts ...Option) *Controller {
	t.Helper()
	eng, err := engine.NewEngine(createTestRuleset())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return New(eng, opts...)
}

func startTestController(t *testing.T, opts ...Option) *Controller {
	t.Helper()
	c := createTestController(t, opts...)
	if _, err := c.Start("race", createTestLayout()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return c
}

func score(actor engine.EntityID, points int64) engine.Action {
	return engine.Action{
		Actor:  actor,
		Kind:   engine.KindUpdate,
		Params: map[string]engine.Value{"points": engine.IntValue(points)},
	}
}

func mustSubmit(t *testing.T, c *Controller, a engine.Action) engine.Action {
	t.Helper()
	queued, err := c.Submit(a)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	return queued
}

func TestStart(t *testing.T) {
	c := createTestController(t)

	snap, err := c.Start("race", createTestLayout())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if snap.State.Status != engine.StatusInProgress {
		t.Errorf("Expected in_progress, got %s", snap.State.Status)
	}
	if snap.State.Turn != 0 {
		t.Errorf("Expected turn 0, got %d", snap.State.Turn)
	}
	if snap.State.Len() != 2 || !snap.State.Has("p1") || !snap.State.Has("p2") {
		t.Errorf("Expected entities from layout, got %v", snap.State.IDs())
	}
	if snap.Actor != "p1" {
		t.Errorf("Expected p1 to act first, got %q", snap.Actor)
	}
	if snap.Fingerprint == 0 {
		t.Error("Expected fingerprint on started snapshot")
	}
}

func TestStart_ClearsQueue(t *testing.T) {
	c := startTestController(t)
	mustSubmit(t, c, score("p1", 1))
	mustSubmit(t, c, score("p2", 1))

	snap, err := c.Start("race", createTestLayout())
	if err != nil {
		t.Fatal(err)
	}
	if c.Pending() != 0 || snap.Pending != 0 {
		t.Errorf("Expected empty queue after restart, got %d", c.Pending())
	}
}

func TestStart_InvalidLayout(t *testing.T) {
	c := createTestController(t)
	layout := createTestLayout()
	layout.Entities[0].Type = "monster"

	if _, err := c.Start("race", layout); err == nil {
		t.Fatal("Expected error for layout outside the schema")
	}
	if c.Started() {
		t.Error("Failed start must leave the controller unstarted")
	}
}

func TestSnapshot_BeforeStart(t *testing.T) {
	c := createTestController(t)

	snap := c.Snapshot()
	if snap.State.Status != engine.StatusNotStarted {
		t.Errorf("Expected not_started, got %s", snap.State.Status)
	}
	if snap.State.Len() != 0 {
		t.Errorf("Expected no entities, got %d", snap.State.Len())
	}

	_, err := c.Submit(score("p1", 1))
	if !errors.Is(err, ErrSessionInactive) {
		t.Errorf("Expected ErrSessionInactive before start, got %v", err)
	}
}

func TestTick_RuleViolationLeavesStateUnchanged(t *testing.T) {
	c := startTestController(t)
	before := c.Snapshot()

	mustSubmit(t, c, score("p2", 1)) // out of turn
	snap, err := c.Tick()

	var v *engine.RuleViolation
	if !errors.As(err, &v) {
		t.Fatalf("Expected rule violation, got %v", err)
	}
	if v.Constraint != engine.ConstraintOutOfTurn {
		t.Errorf("Expected %s, got %s", engine.ConstraintOutOfTurn, v.Constraint)
	}
	if snap.State.Turn != 0 {
		t.Errorf("Expected turn 0, got %d", snap.State.Turn)
	}
	if !c.Snapshot().State.Equal(before.State) {
		t.Error("Rejected action must not change state")
	}

	page := c.History(HistoryOptions{})
	if page.Total != 1 || page.Entries[0].Applied || page.Entries[0].Constraint != engine.ConstraintOutOfTurn {
		t.Errorf("Expected one rejected history entry, got %+v", page.Entries)
	}
}

func TestTick_WinLocksSession(t *testing.T) {
	c := startTestController(t)

	for _, a := range []engine.Action{score("p1", 2), score("p2", 1), score("p1", 2)} {
		mustSubmit(t, c, a)
	}
	var snap *engine.Snapshot
	var err error
	for i := 0; i < 3; i++ {
		if snap, err = c.Tick(); err != nil {
			t.Fatalf("Tick %d failed: %v", i+1, err)
		}
	}

	if snap.State.Status != engine.StatusWon {
		t.Fatalf("Expected won, got %s", snap.State.Status)
	}
	if snap.State.Winner != "p1" {
		t.Errorf("Expected p1 to win, got %q", snap.State.Winner)
	}

	_, err = c.Submit(score("p2", 1))
	if !errors.Is(err, ErrSessionInactive) {
		t.Errorf("Expected ErrSessionInactive after win, got %v", err)
	}
	if c.Pending() != 0 {
		t.Errorf("Rejected submit must not enqueue, got %d pending", c.Pending())
	}

	final := c.Snapshot()
	if _, err := c.Tick(); err != nil {
		t.Errorf("Tick on empty queue should be a no-op, got %v", err)
	}
	if !c.Snapshot().State.Equal(final.State) {
		t.Error("Terminal state must not change")
	}
}

func TestTick_EmptyQueueIsNoop(t *testing.T) {
	c := startTestController(t)
	before := c.Snapshot()

	snap, err := c.Tick()
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if !snap.State.Equal(before.State) {
		t.Error("Empty tick must return current state")
	}
	if c.History(HistoryOptions{}).Total != 0 {
		t.Error("Empty tick must not be journaled")
	}
}

func TestTick_Ordering(t *testing.T) {
	c := startTestController(t)

	first := mustSubmit(t, c, score("p1", 1))
	second := mustSubmit(t, c, score("p2", 2))
	if first.ID == "" || first.ID == second.ID {
		t.Fatalf("Expected distinct action ids, got %q and %q", first.ID, second.ID)
	}

	c.Tick()
	c.Tick()

	page := c.History(HistoryOptions{})
	if page.Total != 2 {
		t.Fatalf("Expected 2 history entries, got %d", page.Total)
	}
	if page.Entries[0].ActionID != first.ID || page.Entries[1].ActionID != second.ID {
		t.Errorf("Actions applied out of submission order: %+v", page.Entries)
	}
	if !page.Entries[0].Applied || !page.Entries[1].Applied {
		t.Errorf("Expected both actions applied: %+v", page.Entries)
	}
}

func TestSubmit_Backpressure(t *testing.T) {
	c := startTestController(t, WithQueueCapacity(2))

	mustSubmit(t, c, score("p1", 1))
	mustSubmit(t, c, score("p2", 1))

	_, err := c.Submit(score("p1", 1))
	if !errors.Is(err, queue.ErrQueueFull) {
		t.Fatalf("Expected ErrQueueFull, got %v", err)
	}
	if c.Pending() != 2 {
		t.Errorf("Expected 2 pending, got %d", c.Pending())
	}
	if c.Snapshot().Pending != 2 {
		t.Errorf("Expected snapshot to report 2 pending, got %d", c.Snapshot().Pending)
	}
}

func TestSubmit_CopiesAction(t *testing.T) {
	c := startTestController(t)
	a := score("p1", 1)
	mustSubmit(t, c, a)

	a.Params["points"] = engine.IntValue(99)

	if _, err := c.Tick(); err != nil {
		t.Fatalf("Caller mutation leaked into queued action: %v", err)
	}
	if got := c.Snapshot().State.Entity("p1").Int("score"); got != 1 {
		t.Errorf("Expected score 1, got %d", got)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	c := startTestController(t)
	mustSubmit(t, c, score("p1", 2))
	mustSubmit(t, c, score("p2", 1))
	c.Drain(0)

	before := c.Snapshot()
	data, err := c.Save()
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	fresh := createTestController(t)
	snap, err := fresh.Load(data)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !snap.State.Equal(before.State) {
		t.Error("Loaded state differs from saved state")
	}
	if snap.Actor != before.Actor || snap.Pending != before.Pending || snap.Fingerprint != before.Fingerprint {
		t.Errorf("Loaded snapshot differs: got %+v, want %+v", snap, before)
	}

	// the loaded session is live
	mustSubmit(t, fresh, score("p1", 1))
	if snap, err := fresh.Tick(); err != nil || snap.State.Turn != 3 {
		t.Errorf("Expected loaded session to continue, turn=%d err=%v", snap.State.Turn, err)
	}
}

func TestLoad_FailureKeepsSession(t *testing.T) {
	c := startTestController(t)
	mustSubmit(t, c, score("p1", 1))
	c.Tick()
	mustSubmit(t, c, score("p2", 1))
	before := c.Snapshot()

	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"newer version", `{"schemaVersion":999,"game":"race","turn":0,"status":"in_progress","entities":{}}`, codec.ErrUnsupportedVersion},
		{"garbage", `not json`, codec.ErrCorruptState},
		{"outside schema", `{"schemaVersion":1,"game":"race","turn":0,"status":"in_progress","entities":{"x":{"type":"monster"}}}`, codec.ErrCorruptState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Load([]byte(tt.data))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}
			after := c.Snapshot()
			if !after.State.Equal(before.State) {
				t.Error("Failed load must leave the session untouched")
			}
			if c.Pending() != 1 {
				t.Errorf("Failed load must keep pending actions, got %d", c.Pending())
			}
		})
	}
}

func TestAbort(t *testing.T) {
	c := startTestController(t)
	mustSubmit(t, c, score("p1", 1))

	snap, err := c.Abort("player quit")
	if err != nil {
		t.Fatalf("Abort failed: %v", err)
	}
	if snap.State.Status != engine.StatusAborted {
		t.Errorf("Expected aborted, got %s", snap.State.Status)
	}
	if snap.State.Meta["abort_reason"] != "player quit" {
		t.Errorf("Expected abort reason in meta, got %q", snap.State.Meta["abort_reason"])
	}
	if c.Pending() != 0 {
		t.Errorf("Abort must drop pending actions, got %d", c.Pending())
	}
	if _, err := c.Submit(score("p1", 1)); !errors.Is(err, ErrSessionInactive) {
		t.Errorf("Expected ErrSessionInactive after abort, got %v", err)
	}
	if _, err := c.Abort("again"); !errors.Is(err, ErrSessionInactive) {
		t.Errorf("Expected second abort to fail, got %v", err)
	}
}

func TestDrain(t *testing.T) {
	c := startTestController(t)
	mustSubmit(t, c, score("p1", 1))
	mustSubmit(t, c, score("p1", 1)) // out of turn
	mustSubmit(t, c, score("p2", 2))
	mustSubmit(t, c, score("p1", 2)) // wins
	mustSubmit(t, c, score("p2", 1)) // never applied

	results := c.Drain(0)
	if len(results) != 4 {
		t.Fatalf("Expected 4 results, got %d", len(results))
	}
	if results[1].Error == nil {
		t.Error("Expected second action to be rejected")
	}
	if last := results[3]; last.Error != nil || last.Snapshot.State.Status != engine.StatusWon {
		t.Errorf("Expected last action to win, got %+v", last)
	}
	if c.Pending() != 1 {
		t.Errorf("Expected the action after the win to stay queued, got %d", c.Pending())
	}

	limited := startTestController(t)
	mustSubmit(t, limited, score("p1", 1))
	mustSubmit(t, limited, score("p2", 1))
	if got := len(limited.Drain(1)); got != 1 {
		t.Errorf("Expected Drain(1) to apply one action, got %d", got)
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	c := startTestController(t)

	snap := c.Snapshot()
	snap.State.Entity("p1").Set("score", engine.IntValue(100))
	snap.State.Status = engine.StatusWon

	live := c.Snapshot()
	if live.State.Entity("p1").Int("score") != 0 || live.State.Status != engine.StatusInProgress {
		t.Error("Mutating a snapshot must not affect the session")
	}
}

func TestPreconditionPanics(t *testing.T) {
	ops := map[string]func(c *Controller){
		"Tick":  func(c *Controller) { c.Tick() },
		"Drain": func(c *Controller) { c.Drain(0) },
		"Save":  func(c *Controller) { c.Save() },
		"Abort": func(c *Controller) { c.Abort("") },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			c := createTestController(t)
			defer func() {
				if recover() == nil {
					t.Errorf("Expected %s before Start to panic", name)
				}
			}()
			op(c)
		})
	}
}

func TestConcurrentSubmitters(t *testing.T) {
	c := startTestController(t)

	var wg sync.WaitGroup
	for _, actor := range []engine.EntityID{"p1", "p2"} {
		wg.Add(1)
		go func(actor engine.EntityID) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				c.Submit(engine.Action{Actor: actor, Kind: engine.KindPass})
			}
		}(actor)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	ticks := 0
	for {
		select {
		case <-done:
			for c.Pending() > 0 {
				c.Tick()
				ticks++
			}
			if ticks != 100 {
				t.Errorf("Expected 100 consumed actions, got %d", ticks)
			}
			page := c.History(HistoryOptions{Limit: MaxHistoryLimit})
			if page.Total != 100 {
				t.Errorf("Expected 100 journal entries, got %d", page.Total)
			}
			return
		default:
			if c.Pending() > 0 {
				c.Tick()
				ticks++
			}
		}
	}
}

func TestSubmit_TerminalSession(t *testing.T) {
	tests := []struct {
		name string
		end  func(t *testing.T, c *Controller)
	}{
		{"aborted", func(t *testing.T, c *Controller) {
			if _, err := c.Abort("stop"); err != nil {
				t.Fatalf("Abort failed: %v", err)
			}
		}},
		{"won", func(t *testing.T, c *Controller) {
			mustSubmit(t, c, score("p1", 3))
			c.Tick()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := startTestController(t)
			tt.end(t, c)

			_, err := c.Submit(engine.Action{Actor: "p2", Kind: engine.KindPass})
			if !errors.Is(err, ErrSessionInactive) {
				t.Errorf("Expected ErrSessionInactive, got %v", err)
			}
			if c.Pending() != 0 {
				t.Errorf("Expected 0 pending actions, got %d", c.Pending())
			}
		})
	}
}

func TestSubmit_RacingAbort(t *testing.T) {
	for round := 0; round < 20; round++ {
		c := startTestController(t)

		start := make(chan struct{})
		var wg sync.WaitGroup
		for _, actor := range []engine.EntityID{"p1", "p2", "p1", "p2"} {
			wg.Add(1)
			go func(actor engine.EntityID) {
				defer wg.Done()
				<-start
				for i := 0; i < 100; i++ {
					c.Submit(engine.Action{Actor: actor, Kind: engine.KindPass})
				}
			}(actor)
		}

		close(start)
		if _, err := c.Abort("race"); err != nil {
			t.Fatalf("Abort failed: %v", err)
		}
		wg.Wait()

		if c.Pending() != 0 {
			t.Fatalf("Expected no actions queued after abort, got %d in round %d", c.Pending(), round)
		}
	}
}

func TestHistory_Pagination(t *testing.T) {
	c := startTestController(t)
	for i := 0; i < 5; i++ {
		mustSubmit(t, c, engine.Action{Actor: "p1", Kind: engine.KindPass})
	}
	c.Drain(0)

	page := c.History(HistoryOptions{Page: 1, Limit: 2})
	if page.Total != 5 || page.TotalPages != 3 || len(page.Entries) != 2 {
		t.Fatalf("Unexpected first page: %+v", page)
	}
	if !page.HasNext || page.HasPrevious {
		t.Errorf("Unexpected navigation flags on first page: %+v", page)
	}

	last := c.History(HistoryOptions{Page: 3, Limit: 2})
	if len(last.Entries) != 1 || last.HasNext || !last.HasPrevious {
		t.Errorf("Unexpected last page: %+v", last)
	}

	desc := c.History(HistoryOptions{Limit: 5, Order: "desc"})
	if desc.Entries[0].Seq != 5 {
		t.Errorf("Expected newest entry first, got seq %d", desc.Entries[0].Seq)
	}

	for _, p := range []int{10, math.MaxInt / 10, math.MaxInt} {
		beyond := c.History(HistoryOptions{Page: p, Limit: 2})
		if len(beyond.Entries) != 0 || beyond.HasNext || beyond.Total != 5 {
			t.Errorf("Expected empty page %d beyond the end, got %+v", p, beyond)
		}
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := startTestController(t, WithLogger(logger), WithClock(func() time.Time { return now }))

	mustSubmit(t, c, score("p1", 1))
	c.Tick()
	mustSubmit(t, c, score("p1", 1))
	c.Tick()

	out := buf.String()
	for _, want := range []string{"session started", "action queued", "transition applied", "transition rejected"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected log to contain %q:\n%s", want, out)
		}
	}
	if ts := c.History(HistoryOptions{}).Entries[0].Timestamp; !ts.Equal(now) {
		t.Errorf("Expected injected clock timestamp, got %v", ts)
	}
}
