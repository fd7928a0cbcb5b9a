package engine

import (
	"errors"
	"fmt"
)

// ErrRuleViolation matches every *RuleViolation via errors.Is
var ErrRuleViolation = errors.New("rule violation")

// Constraint names used by the engine itself. Rulesets may add their own.
const (
	ConstraintInactive    = "session_inactive"
	ConstraintUnknownKind = "unknown_kind"
	ConstraintUnsupported = "unsupported_kind"
	ConstraintNoActor     = "unknown_actor"
	ConstraintNoTarget    = "unknown_target"
	ConstraintShape       = "malformed_payload"
	ConstraintOutOfTurn   = "out_of_turn"
	ConstraintIllegal     = "illegal_action"
	ConstraintInvalidNext = "invalid_transition"
)

// RuleViolation reports why an action was rejected. The state it was applied
// to is unchanged.
type RuleViolation struct {
	Constraint string
	Kind       ActionKind
	Actor      EntityID
	Detail     string
}

func (v *RuleViolation) Error() string {
	if v.Detail == "" {
		return fmt.Sprintf("rule violation: %s (%s by %q)", v.Constraint, v.Kind, v.Actor)
	}
	return fmt.Sprintf("rule violation: %s (%s by %q): %s", v.Constraint, v.Kind, v.Actor, v.Detail)
}

// Is makes errors.Is(err, ErrRuleViolation) hold for every violation
func (v *RuleViolation) Is(target error) bool {
	return target == ErrRuleViolation
}

// Violation builds a RuleViolation for use in legality predicates and effects
func Violation(constraint, format string, args ...any) *RuleViolation {
	return &RuleViolation{Constraint: constraint, Detail: fmt.Sprintf(format, args...)}
}

func violate(a Action, constraint, format string, args ...any) *RuleViolation {
	v := Violation(constraint, format, args...)
	v.Kind = a.Kind
	v.Actor = a.Actor
	return v
}

// asViolation tags err with the action it rejected. Plain errors returned by a
// ruleset become violations of fallback.
func asViolation(err error, a Action, fallback string) *RuleViolation {
	var v *RuleViolation
	if errors.As(err, &v) {
		out := *v
		if out.Constraint == "" {
			out.Constraint = fallback
		}
		out.Kind = a.Kind
		out.Actor = a.Actor
		return &out
	}
	return violate(a, fallback, "%v", err)
}
