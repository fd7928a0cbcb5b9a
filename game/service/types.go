package service

import (
	"errors"
	"time"

	"github.com/wricardo/gamecore/game/controller"
	"github.com/wricardo/gamecore/game/engine"
)

// MaxPlayActions caps the actions accepted by a single Play call
const MaxPlayActions = 200

// SessionInfo provides information about a game session
type SessionInfo struct {
	ID             string           `json:"id"`
	Game           string           `json:"game"`
	Rules          string           `json:"rules"`
	CreatedAt      time.Time        `json:"created_at"`
	LastAccessedAt time.Time        `json:"last_accessed_at"`
	Snapshot       *engine.Snapshot `json:"snapshot"`
	Insights       []CarInsight     `json:"insights,omitempty"`
}

// SubmitResult acknowledges a queued action
type SubmitResult struct {
	Action  engine.Action `json:"action"`
	Pending int           `json:"pending"`
}

// ActionResult is the outcome of one consumed action
type ActionResult struct {
	Action     *engine.Action   `json:"action,omitempty"`
	Applied    bool             `json:"applied"`
	Constraint string           `json:"constraint,omitempty"`
	Error      string           `json:"error,omitempty"`
	Snapshot   *engine.Snapshot `json:"snapshot"`
}

// PlayResult contains the outcome of submitting and draining several actions
type PlayResult struct {
	Requested int            `json:"requested"`
	Submitted int            `json:"submitted"`
	Applied   int            `json:"applied"`
	Rejected  int            `json:"rejected"`
	Results   []ActionResult `json:"results"`
	// StoppedReason is set when not every requested action was submitted
	StoppedReason string           `json:"stopped_reason,omitempty"`
	Snapshot      *engine.Snapshot `json:"snapshot"`
	GameOver      bool             `json:"game_over"`
}

func newActionResult(a *engine.Action, snap *engine.Snapshot, err error) ActionResult {
	r := ActionResult{Action: a, Applied: a != nil && err == nil, Snapshot: snap}
	if err != nil {
		r.Error = err.Error()
		var v *engine.RuleViolation
		if errors.As(err, &v) {
			r.Constraint = v.Constraint
		}
	}
	return r
}

func fromDrain(res controller.Result) ActionResult {
	a := res.Action
	return newActionResult(&a, res.Snapshot, res.Error)
}
