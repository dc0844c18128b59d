package engine

import (
	"fmt"
	"strings"
	"time"

	"robline/internal/domain"
)

type MaterialStoreAction string

const (
	ActionSubmitSLabel        MaterialStoreAction = "SubmitSLabel"
	ActionReportUnserviceable MaterialStoreAction = "ReportUnserviceable"
)

func ParseMaterialStoreAction(raw string) (MaterialStoreAction, error) {
	norm := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(raw))
	switch norm {
	case "submitslabel", "slabel":
		return ActionSubmitSLabel, nil
	case "reportunserviceable", "unserviceable":
		return ActionReportUnserviceable, nil
	}
	return "", fmt.Errorf("invalid material store action %q", raw)
}

type MaterialStorePayload struct {
	Reference string              `json:"reference,omitempty"`
	Document  *domain.DocumentRef `json:"document,omitempty"`
	Reason    string              `json:"reason,omitempty"`
	Notes     string              `json:"notes,omitempty"`
}

// ApplyMaterialStoreAction runs a side action on a removed component. The
// status does not change; the history entry repeats the current status.
func ApplyMaterialStoreAction(r domain.RobbingRequest, action MaterialStoreAction, actor domain.Actor, p MaterialStorePayload, now time.Time) (domain.RobbingRequest, error) {
	if actor.Role != domain.RoleMaterialStore && actor.Role != domain.RoleAdmin {
		return domain.RobbingRequest{}, UnauthorizedError{Action: string(action), Role: actor.Role}
	}
	if r.Status != domain.StatusRemovedFromDonor {
		return domain.RobbingRequest{}, PreconditionFailedError{Action: string(action), Status: r.Status, Required: domain.StatusRemovedFromDonor}
	}
	next := r.Clone()
	var comment string
	switch action {
	case ActionSubmitSLabel:
		ref := strings.TrimSpace(p.Reference)
		var missing []string
		if ref == "" {
			missing = append(missing, "reference")
		}
		if !p.Document.Present() {
			missing = append(missing, "document")
		}
		if len(missing) > 0 {
			return domain.RobbingRequest{}, MissingRequiredDataError{Target: r.Status, Fields: missing}
		}
		next.Component.Status = domain.ComponentServiceable
		next.Documentation.SLabel = domain.DocumentEntry{Reference: ref, Document: p.Document}
		comment = withNotes(fmt.Sprintf("S Label submitted. Reference: %s. Component marked as Serviceable.", ref), "Notes", strings.TrimSpace(p.Notes))
	case ActionReportUnserviceable:
		reason := strings.TrimSpace(p.Reason)
		if reason == "" {
			return domain.RobbingRequest{}, MissingRequiredDataError{Target: r.Status, Fields: []string{"reason"}}
		}
		next.Component.Status = domain.ComponentUnserviceable
		comment = withNotes("Component reported as Unserviceable. Reason: "+reason+".", "Notes", strings.TrimSpace(p.Notes))
	default:
		return domain.RobbingRequest{}, fmt.Errorf("invalid material store action %q", action)
	}
	appendStatus(&next, r.Status, actor, comment, now)
	return next, nil
}

// UpdateDocument sets the reference and/or document of one slot without a
// status change. Nil arguments leave the corresponding field as is.
func UpdateDocument(r domain.RobbingRequest, slot domain.DocumentSlot, reference *string, doc *domain.DocumentRef) (domain.RobbingRequest, error) {
	next := r.Clone()
	entry := next.Documentation.Slot(slot)
	if entry == nil {
		return domain.RobbingRequest{}, ValidationError{Problems: []FieldProblem{{Field: "slot", Message: fmt.Sprintf("unknown document slot %q", slot)}}}
	}
	if reference == nil && doc == nil {
		return domain.RobbingRequest{}, ValidationError{Problems: []FieldProblem{{Field: "reference", Message: "reference or document required"}}}
	}
	if reference != nil {
		entry.Reference = strings.TrimSpace(*reference)
	}
	if doc != nil {
		if doc.Handle == "" {
			entry.Document = nil
		} else {
			d := *doc
			entry.Document = &d
		}
	}
	return next, nil
}
