package engine

import (
	"fmt"
	"strings"
	"time"

	"robline/internal/catalog"
	"robline/internal/domain"
)

// TransitionPayload carries the optional per-edge data of a transition. Each
// edge reads only the fields it needs.
type TransitionPayload struct {
	ApprovalDocument *domain.DocumentRef `json:"approval_document,omitempty"`

	SDSReference    string                  `json:"sds_reference,omitempty"`
	SDSDocument     *domain.DocumentRef     `json:"sds_document,omitempty"`
	SDSDeclarations []domain.SDSDeclaration `json:"sds_declarations,omitempty"`

	ARReference string              `json:"ar_reference,omitempty"`
	ARDocument  *domain.DocumentRef `json:"ar_document,omitempty"`

	ComponentStatus    domain.ComponentStatus `json:"component_status,omitempty"`
	RemovalDate        *time.Time             `json:"removal_date,omitempty"`
	CAAMForm1Reference string                 `json:"caam_form_1_reference,omitempty"`
	CAAMForm1Document  *domain.DocumentRef    `json:"caam_form_1_document,omitempty"`
	SLabelReference    string                 `json:"s_label_reference,omitempty"`
	SLabelDocument     *domain.DocumentRef    `json:"s_label_document,omitempty"`

	TargetDate          *time.Time          `json:"target_date,omitempty"`
	CompletionWorkOrder string              `json:"completion_work_order,omitempty"`
	SupportingEvidence  *domain.DocumentRef `json:"supporting_evidence,omitempty"`

	InstalledPartNumber   string              `json:"installed_part_number,omitempty"`
	InstalledSerialNumber string              `json:"installed_serial_number,omitempty"`
	CompletionEvidence    *domain.DocumentRef `json:"completion_evidence,omitempty"`
}

// effect mutates r for the edge from -> target and returns the history comment.
type effect func(r *domain.RobbingRequest, from domain.Status, p TransitionPayload, comments string, now time.Time) (string, error)

// Every target status has a single inbound edge in the catalog, so the target
// alone selects the effect.
var effects = map[domain.Status]effect{
	domain.StatusAwaitingFTAMApproval:    requestApproval,
	domain.StatusPendingSDS:              approveRequest,
	domain.StatusRejected:                rejectRequest,
	domain.StatusPendingAR:               submitSDS,
	domain.StatusPendingRemovalFromDonor: submitAR,
	domain.StatusRemovedFromDonor:        confirmRemoval,
	domain.StatusNormalizationPlanned:    planNormalization,
	domain.StatusNormalized:              confirmNormalization,
}

// Advance authorizes and applies one transition including its side effect.
// It returns either the complete new request or an error; r is never
// modified.
func Advance(r domain.RobbingRequest, target domain.Status, actor domain.Actor, p TransitionPayload, comments string, now time.Time) (domain.RobbingRequest, error) {
	if err := ensureTransition(r.Status, target, actor.Role); err != nil {
		return domain.RobbingRequest{}, err
	}
	return advance(r, target, actor, p, comments, now)
}

func advance(r domain.RobbingRequest, target domain.Status, actor domain.Actor, p TransitionPayload, comments string, now time.Time) (domain.RobbingRequest, error) {
	next := r.Clone()
	note := strings.TrimSpace(comments)
	if fx, ok := effects[target]; ok {
		var err error
		note, err = fx(&next, r.Status, p, note, now)
		if err != nil {
			return domain.RobbingRequest{}, err
		}
	}
	appendStatus(&next, target, actor, note, now)
	return next, nil
}

// autoAdvance performs the unconditional System transition out of Initiated.
// The edge must exist; the role check does not apply.
func autoAdvance(r domain.RobbingRequest, target domain.Status, comments string, now time.Time) (domain.RobbingRequest, error) {
	if _, ok := catalog.Lookup(r.Status, target); !ok {
		return domain.RobbingRequest{}, IllegalTransitionError{From: r.Status, To: target}
	}
	return advance(r, target, domain.SystemActor, TransitionPayload{}, comments, now)
}

func requestApproval(r *domain.RobbingRequest, _ domain.Status, p TransitionPayload, comments string, _ time.Time) (string, error) {
	if p.ApprovalDocument.Present() {
		r.Documentation.ExtensionApproval.Document = p.ApprovalDocument
	}
	return comments, nil
}

func approveRequest(r *domain.RobbingRequest, from domain.Status, p TransitionPayload, comments string, _ time.Time) (string, error) {
	if p.ApprovalDocument.Present() {
		r.Documentation.ExtensionApproval.Document = p.ApprovalDocument
	}
	if from != domain.StatusAwaitingFTAMApproval {
		return comments, nil
	}
	return withNotes("FTAM approved robbing from aircraft without valid C of A.", "Notes", comments), nil
}

func rejectRequest(_ *domain.RobbingRequest, _ domain.Status, _ TransitionPayload, comments string, _ time.Time) (string, error) {
	return withNotes("FTAM rejected robbing from aircraft without valid C of A.", "Reason", comments), nil
}

func submitSDS(r *domain.RobbingRequest, _ domain.Status, p TransitionPayload, comments string, _ time.Time) (string, error) {
	ref := strings.TrimSpace(p.SDSReference)
	var missing []string
	if ref == "" {
		missing = append(missing, "sds_reference")
	}
	if !p.SDSDocument.Present() {
		missing = append(missing, "sds_document")
	}
	decls, bad := normalizeDeclarations(p.SDSDeclarations)
	missing = append(missing, bad...)
	if len(missing) > 0 {
		return "", MissingRequiredDataError{Target: domain.StatusPendingAR, Fields: missing}
	}
	r.Documentation.SDS = domain.DocumentEntry{Reference: ref, Document: p.SDSDocument}
	if len(decls) > 0 {
		r.Documentation.SDSDeclarations = decls
	}
	return withNotes(fmt.Sprintf("SDS submitted. Reference: %s.", ref), "Notes", comments), nil
}

func normalizeDeclarations(in []domain.SDSDeclaration) ([]domain.SDSDeclaration, []string) {
	var (
		out []domain.SDSDeclaration
		bad []string
	)
	for i, d := range in {
		d.Answer = strings.ToLower(strings.TrimSpace(d.Answer))
		if d.Answer != "yes" && d.Answer != "no" {
			bad = append(bad, fmt.Sprintf("sds_declarations[%d].answer", i))
			continue
		}
		if d.ID == "" {
			d.ID = fmt.Sprintf("declaration%d", i+1)
		}
		out = append(out, d)
	}
	return out, bad
}

func submitAR(r *domain.RobbingRequest, _ domain.Status, p TransitionPayload, comments string, _ time.Time) (string, error) {
	ref := strings.TrimSpace(p.ARReference)
	var missing []string
	if ref == "" {
		missing = append(missing, "ar_reference")
	}
	if !p.ARDocument.Present() {
		missing = append(missing, "ar_document")
	}
	if len(missing) > 0 {
		return "", MissingRequiredDataError{Target: domain.StatusPendingRemovalFromDonor, Fields: missing}
	}
	r.Documentation.AcceptanceReport = domain.DocumentEntry{Reference: ref, Document: p.ARDocument}
	return withNotes(fmt.Sprintf("Acceptance Report submitted. Reference: %s.", ref), "Notes", comments), nil
}

func confirmRemoval(r *domain.RobbingRequest, _ domain.Status, p TransitionPayload, comments string, now time.Time) (string, error) {
	status, err := domain.ParseComponentStatus(string(p.ComponentStatus))
	if err != nil {
		return "", MissingRequiredDataError{Target: domain.StatusRemovedFromDonor, Fields: []string{"component_status"}}
	}
	r.Component.Status = status
	r.Component.PhysicalLocation = domain.LocationRemovedFromDonor
	if p.CAAMForm1Document.Present() {
		r.Documentation.CAAMForm1.Document = p.CAAMForm1Document
	}
	if ref := strings.TrimSpace(p.CAAMForm1Reference); ref != "" {
		r.Documentation.CAAMForm1.Reference = ref
	}
	if p.SLabelDocument.Present() {
		r.Documentation.SLabel.Document = p.SLabelDocument
	}
	if ref := strings.TrimSpace(p.SLabelReference); ref != "" {
		r.Documentation.SLabel.Reference = ref
	}
	removed := now
	if p.RemovalDate != nil && !p.RemovalDate.IsZero() {
		removed = *p.RemovalDate
	}
	return withNotes(fmt.Sprintf("Component removed on %s. Status: %s.", formatDate(removed), status), "Notes", comments), nil
}

func planNormalization(r *domain.RobbingRequest, _ domain.Status, p TransitionPayload, comments string, now time.Time) (string, error) {
	if p.TargetDate == nil || p.TargetDate.IsZero() {
		return "", MissingRequiredDataError{Target: domain.StatusNormalizationPlanned, Fields: []string{"target_date"}}
	}
	if !p.TargetDate.After(now) {
		return "", InvalidDateError{Field: "target_date", Value: *p.TargetDate, Now: now}
	}
	target := *p.TargetDate
	r.Normalization.TargetDate = &target
	if wo := strings.TrimSpace(p.CompletionWorkOrder); wo != "" {
		r.Normalization.CompletionWorkOrder = wo
	}
	if p.SupportingEvidence.Present() {
		r.Documentation.NormalizationEvidence.Document = p.SupportingEvidence
	}
	return withNotes(fmt.Sprintf("Normalization planned for %s.", formatDate(target)), "Notes", comments), nil
}

func confirmNormalization(r *domain.RobbingRequest, _ domain.Status, p TransitionPayload, comments string, now time.Time) (string, error) {
	wo := strings.TrimSpace(p.CompletionWorkOrder)
	if wo == "" {
		// the plan may already carry the work order
		wo = r.Normalization.CompletionWorkOrder
	}
	pn := strings.TrimSpace(p.InstalledPartNumber)
	sn := strings.TrimSpace(p.InstalledSerialNumber)
	var missing []string
	if wo == "" {
		missing = append(missing, "completion_work_order")
	}
	if pn == "" {
		missing = append(missing, "installed_part_number")
	}
	if sn == "" {
		missing = append(missing, "installed_serial_number")
	}
	if !p.CompletionEvidence.Present() {
		missing = append(missing, "completion_evidence")
	}
	if len(missing) > 0 {
		return "", MissingRequiredDataError{Target: domain.StatusNormalized, Fields: missing}
	}
	completed := now
	r.Normalization.ActualCompletionDate = &completed
	r.Normalization.CompletionWorkOrder = wo
	r.Normalization.InstalledPartNumber = pn
	r.Normalization.InstalledSerialNumber = sn
	r.Normalization.CompletionEvidence = p.CompletionEvidence
	summary := fmt.Sprintf("Aircraft normalized on %s. Work Order: %s. Installed P/N: %s, S/N: %s.", formatDate(completed), wo, pn, sn)
	return withNotes(summary, "Notes", comments), nil
}

func withNotes(summary, label, comments string) string {
	if comments == "" {
		return summary
	}
	return summary + " " + label + ": " + comments
}

func formatDate(t time.Time) string {
	return t.Format("January 2, 2006")
}
