package engine

import (
	"time"

	"robline/internal/catalog"
	"robline/internal/domain"
)

// CanTransition reports whether role may move r to target.
func CanTransition(r domain.RobbingRequest, target domain.Status, role domain.Role) bool {
	t, ok := catalog.Lookup(r.Status, target)
	return ok && t.Allows(role)
}

// AvailableTransitions lists the targets role may move r to, in catalog order.
func AvailableTransitions(r domain.RobbingRequest, role domain.Role) []domain.Status {
	var out []domain.Status
	for _, t := range AvailableActions(r, role) {
		out = append(out, t.Next)
	}
	return out
}

func AvailableActions(r domain.RobbingRequest, role domain.Role) []catalog.Transition {
	var out []catalog.Transition
	for _, t := range catalog.TransitionsFrom(r.Status) {
		if t.Allows(role) {
			out = append(out, t)
		}
	}
	return out
}

func ensureTransition(from, to domain.Status, role domain.Role) error {
	t, ok := catalog.Lookup(from, to)
	if !ok {
		return IllegalTransitionError{From: from, To: to}
	}
	if !t.Allows(role) {
		return UnauthorizedTransitionError{From: from, To: to, Role: role}
	}
	return nil
}

// ApplyTransition returns a copy of r moved to target with a history entry for
// actor appended. Component, documentation and normalization are untouched.
func ApplyTransition(r domain.RobbingRequest, target domain.Status, actor domain.Actor, comments string, now time.Time) (domain.RobbingRequest, error) {
	if err := ensureTransition(r.Status, target, actor.Role); err != nil {
		return domain.RobbingRequest{}, err
	}
	next := r.Clone()
	appendStatus(&next, target, actor, comments, now)
	return next, nil
}

func appendStatus(r *domain.RobbingRequest, status domain.Status, actor domain.Actor, comments string, now time.Time) {
	r.Status = status
	r.StatusHistory = append(r.StatusHistory, domain.StatusHistoryEntry{
		Status:     status,
		Timestamp:  now,
		ActingUser: actor.Name,
		ActingRole: actor.Role,
		Comments:   comments,
	})
}
