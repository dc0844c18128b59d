package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"robline/internal/domain"
	"robline/internal/repo"
)

// FieldProblem is one rejected input field.
type FieldProblem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every problem found in a creation request, not just
// the first.
type ValidationError struct {
	Problems []FieldProblem
}

func (e ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.Field+": "+p.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e ValidationError) Fields() []string {
	out := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		out = append(out, p.Field)
	}
	return out
}

// IllegalTransitionError means the target is not reachable from the current
// status for any role.
type IllegalTransitionError struct {
	From domain.Status
	To   domain.Status
}

func (e IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}

// UnauthorizedTransitionError means the edge exists but the role may not take it.
type UnauthorizedTransitionError struct {
	From domain.Status
	To   domain.Status
	Role domain.Role
}

func (e UnauthorizedTransitionError) Error() string {
	return fmt.Sprintf("role %s may not transition %s -> %s", e.Role, e.From, e.To)
}

type MissingRequiredDataError struct {
	Target domain.Status
	Fields []string
}

func (e MissingRequiredDataError) Error() string {
	return fmt.Sprintf("missing required data for %s: %s", e.Target, strings.Join(e.Fields, ", "))
}

type InvalidDateError struct {
	Field string
	Value time.Time
	Now   time.Time
}

func (e InvalidDateError) Error() string {
	if e.Value.IsZero() {
		return fmt.Sprintf("%s is required and must be in the future", e.Field)
	}
	return fmt.Sprintf("%s %s must be after %s", e.Field, e.Value.Format(time.RFC3339), e.Now.Format(time.RFC3339))
}

// PreconditionFailedError rejects a status-gated action attempted from the
// wrong status.
type PreconditionFailedError struct {
	Action   string
	Status   domain.Status
	Required domain.Status
}

func (e PreconditionFailedError) Error() string {
	return fmt.Sprintf("%s requires status %s, request is %s", e.Action, e.Required, e.Status)
}

// UnauthorizedError rejects a side action for the caller's role.
type UnauthorizedError struct {
	Action string
	Role   domain.Role
}

func (e UnauthorizedError) Error() string {
	return fmt.Sprintf("role %s may not perform %s", e.Role, e.Action)
}

// Error kinds, stable strings used by metrics labels and API error codes.
const (
	KindValidation             = "validation_failed"
	KindIllegalTransition      = "illegal_transition"
	KindUnauthorizedTransition = "unauthorized_transition"
	KindUnauthorized           = "unauthorized"
	KindMissingRequiredData    = "missing_required_data"
	KindInvalidDate            = "invalid_date"
	KindPreconditionFailed     = "precondition_failed"
	KindNotFound               = "not_found"
	KindConflict               = "conflict"
	KindInternal               = "internal"
)

// ErrorKind classifies err into one of the Kind constants.
func ErrorKind(err error) string {
	var (
		ve  ValidationError
		ite IllegalTransitionError
		ute UnauthorizedTransitionError
		ue  UnauthorizedError
		mrd MissingRequiredDataError
		ide InvalidDateError
		pfe PreconditionFailedError
	)
	switch {
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &ite):
		return KindIllegalTransition
	case errors.As(err, &ute):
		return KindUnauthorizedTransition
	case errors.As(err, &ue):
		return KindUnauthorized
	case errors.As(err, &mrd):
		return KindMissingRequiredData
	case errors.As(err, &ide):
		return KindInvalidDate
	case errors.As(err, &pfe):
		return KindPreconditionFailed
	case errors.Is(err, repo.ErrNotFound):
		return KindNotFound
	case errors.Is(err, repo.ErrConflict):
		return KindConflict
	}
	return KindInternal
}
