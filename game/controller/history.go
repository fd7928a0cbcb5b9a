package controller

import (
	"errors"
	"time"

	"github.com/wricardo/gamecore/game/engine"
)

const (
	// DefaultHistoryLimit is the page size used when none is given
	DefaultHistoryLimit = 20
	// MaxHistoryLimit caps the page size
	MaxHistoryLimit = 100
)

// Entry records one action the session consumed, applied or rejected
type Entry struct {
	Seq        int               `json:"seq"`
	ActionID   string            `json:"action_id"`
	Actor      engine.EntityID   `json:"actor,omitempty"`
	Kind       engine.ActionKind `json:"kind"`
	Turn       int               `json:"turn"`
	Applied    bool              `json:"applied"`
	Constraint string            `json:"constraint,omitempty"`
	Error      string            `json:"error,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// HistoryOptions configures history retrieval
type HistoryOptions struct {
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Order string `json:"order"` // "asc" or "desc"
}

// HistoryPage is one page of the session journal
type HistoryPage struct {
	Entries     []Entry `json:"entries"`
	Total       int     `json:"total"`
	Page        int     `json:"page"`
	PageSize    int     `json:"page_size"`
	TotalPages  int     `json:"total_pages"`
	HasNext     bool    `json:"has_next"`
	HasPrevious bool    `json:"has_previous"`
}

// record appends a journal entry. Callers hold c.mu.
func (c *Controller) record(a engine.Action, turn int, err error) {
	c.seq++
	entry := Entry{
		Seq:       c.seq,
		ActionID:  a.ID,
		Actor:     a.Actor,
		Kind:      a.Kind,
		Turn:      turn,
		Applied:   err == nil,
		Timestamp: c.clock(),
	}
	if err != nil {
		entry.Error = err.Error()
		var v *engine.RuleViolation
		if errors.As(err, &v) {
			entry.Constraint = v.Constraint
		}
	}
	c.history = append(c.history, entry)
}

// History returns a page of the journal of actions consumed since the last
// Start or Load
func (c *Controller) History(opts HistoryOptions) HistoryPage {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 {
		opts.Limit = DefaultHistoryLimit
	}
	if opts.Limit > MaxHistoryLimit {
		opts.Limit = MaxHistoryLimit
	}

	c.mu.Lock()
	entries := make([]Entry, len(c.history))
	copy(entries, c.history)
	c.mu.Unlock()

	if opts.Order == "desc" {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}

	total := len(entries)
	totalPages := (total + opts.Limit - 1) / opts.Limit
	start, end := total, total
	if opts.Page <= totalPages {
		start = (opts.Page - 1) * opts.Limit
		end = min(start+opts.Limit, total)
	}

	return HistoryPage{
		Entries:     entries[start:end],
		Total:       total,
		Page:        opts.Page,
		PageSize:    opts.Limit,
		TotalPages:  totalPages,
		HasNext:     opts.Page < totalPages,
		HasPrevious: opts.Page > 1,
	}
}
