package server

import (
	"encoding/json"
	"time"

	"robline/internal/catalog"
	"robline/internal/domain"
	"robline/internal/engine"
	"robline/internal/query"
)

// Request payloads. Every field is optional at the schema level so that the
// engine can report all missing fields at once.

type DocumentRefRequest struct {
	Handle string `json:"handle" doc:"Handle returned by POST /documents; empty clears the slot"`
}

func (d *DocumentRefRequest) ref() *domain.DocumentRef {
	if d == nil {
		return nil
	}
	return &domain.DocumentRef{Handle: d.Handle}
}

type ComponentRequest struct {
	Description  string `json:"description,omitempty"`
	PartNumber   string `json:"part_number,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	ATAChapter   string `json:"ata_chapter,omitempty"`
}

type CreateRequestRequest struct {
	RequesterName            string              `json:"requester_name,omitempty"`
	RequesterDepartment      string              `json:"requester_department,omitempty"`
	DonorAircraft            string              `json:"donor_aircraft,omitempty"`
	DonorHasValidCertificate *bool               `json:"donor_has_valid_certificate,omitempty"`
	RecipientAircraft        string              `json:"recipient_aircraft,omitempty"`
	Reason                   string              `json:"reason,omitempty"`
	Priority                 string              `json:"priority,omitempty"`
	WorkOrderNumber          string              `json:"work_order_number,omitempty"`
	Component                ComponentRequest    `json:"component,omitempty"`
	ExtensionApproval        *DocumentRefRequest `json:"extension_approval,omitempty"`
}

func (r CreateRequestRequest) input() engine.CreateInput {
	return engine.CreateInput{
		RequesterName:            r.RequesterName,
		RequesterDepartment:      r.RequesterDepartment,
		DonorAircraft:            r.DonorAircraft,
		DonorHasValidCertificate: r.DonorHasValidCertificate,
		RecipientAircraft:        r.RecipientAircraft,
		Reason:                   r.Reason,
		Priority:                 r.Priority,
		WorkOrderNumber:          r.WorkOrderNumber,
		Component: engine.ComponentInput{
			Description:  r.Component.Description,
			PartNumber:   r.Component.PartNumber,
			SerialNumber: r.Component.SerialNumber,
			ATAChapter:   r.Component.ATAChapter,
		},
		ExtensionApproval: r.ExtensionApproval.ref(),
	}
}

type DeclarationRequest struct {
	ID            string `json:"id,omitempty"`
	Prompt        string `json:"prompt,omitempty"`
	Answer        string `json:"answer,omitempty"`
	Remarks       string `json:"remarks,omitempty"`
	ReferenceSlot string `json:"reference_slot,omitempty"`
}

type TransitionPayloadRequest struct {
	ApprovalDocument      *DocumentRefRequest  `json:"approval_document,omitempty"`
	SDSReference          string               `json:"sds_reference,omitempty"`
	SDSDocument           *DocumentRefRequest  `json:"sds_document,omitempty"`
	SDSDeclarations       []DeclarationRequest `json:"sds_declarations,omitempty"`
	ARReference           string               `json:"ar_reference,omitempty"`
	ARDocument            *DocumentRefRequest  `json:"ar_document,omitempty"`
	ComponentStatus       string               `json:"component_status,omitempty"`
	RemovalDate           *time.Time           `json:"removal_date,omitempty" format:"date-time"`
	CAAMForm1Reference    string               `json:"caam_form_1_reference,omitempty"`
	CAAMForm1Document     *DocumentRefRequest  `json:"caam_form_1_document,omitempty"`
	SLabelReference       string               `json:"s_label_reference,omitempty"`
	SLabelDocument        *DocumentRefRequest  `json:"s_label_document,omitempty"`
	TargetDate            *time.Time           `json:"target_date,omitempty" format:"date-time"`
	CompletionWorkOrder   string               `json:"completion_work_order,omitempty"`
	SupportingEvidence    *DocumentRefRequest  `json:"supporting_evidence,omitempty"`
	InstalledPartNumber   string               `json:"installed_part_number,omitempty"`
	InstalledSerialNumber string               `json:"installed_serial_number,omitempty"`
	CompletionEvidence    *DocumentRefRequest  `json:"completion_evidence,omitempty"`
}

func (p TransitionPayloadRequest) payload() engine.TransitionPayload {
	out := engine.TransitionPayload{
		ApprovalDocument:      p.ApprovalDocument.ref(),
		SDSReference:          p.SDSReference,
		SDSDocument:           p.SDSDocument.ref(),
		ARReference:           p.ARReference,
		ARDocument:            p.ARDocument.ref(),
		ComponentStatus:       domain.ComponentStatus(p.ComponentStatus),
		RemovalDate:           p.RemovalDate,
		CAAMForm1Reference:    p.CAAMForm1Reference,
		CAAMForm1Document:     p.CAAMForm1Document.ref(),
		SLabelReference:       p.SLabelReference,
		SLabelDocument:        p.SLabelDocument.ref(),
		TargetDate:            p.TargetDate,
		CompletionWorkOrder:   p.CompletionWorkOrder,
		SupportingEvidence:    p.SupportingEvidence.ref(),
		InstalledPartNumber:   p.InstalledPartNumber,
		InstalledSerialNumber: p.InstalledSerialNumber,
		CompletionEvidence:    p.CompletionEvidence.ref(),
	}
	for _, d := range p.SDSDeclarations {
		out.SDSDeclarations = append(out.SDSDeclarations, domain.SDSDeclaration(d))
	}
	return out
}

type TransitionRequest struct {
	Target   string                   `json:"target" doc:"Target status"`
	Comments string                   `json:"comments,omitempty"`
	Payload  TransitionPayloadRequest `json:"payload,omitempty"`
}

type UpdateDocumentRequest struct {
	Reference *string             `json:"reference,omitempty"`
	Document  *DocumentRefRequest `json:"document,omitempty"`
}

type MaterialStoreRequest struct {
	Action    string              `json:"action" doc:"SubmitSLabel or ReportUnserviceable"`
	Reference string              `json:"reference,omitempty"`
	Document  *DocumentRefRequest `json:"document,omitempty"`
	Reason    string              `json:"reason,omitempty"`
	Notes     string              `json:"notes,omitempty"`
}

// Response payloads

type StatusResponse struct {
	Status      domain.Status        `json:"status"`
	Description string               `json:"description"`
	Terminal    bool                 `json:"terminal"`
	Transitions []catalog.Transition `json:"transitions"`
}

type CatalogResponse struct {
	Statuses []StatusResponse `json:"statuses"`
	Roles    []domain.Role    `json:"roles"`
}

type ListRequestsResponse struct {
	Items  []query.View      `json:"items"`
	Groups []query.GroupView `json:"groups,omitempty"`
	Total  int               `json:"total"`
}

type StatusCountsResponse struct {
	Counts map[domain.Status]int `json:"counts"`
	Total  int                   `json:"total"`
}

type ActionsResponse struct {
	RequestID string               `json:"request_id"`
	Status    domain.Status        `json:"status"`
	Role      domain.Role          `json:"role"`
	Actions   []catalog.Transition `json:"actions"`
}

type EventResponse struct {
	ID        int64          `json:"id"`
	TS        string         `json:"ts" format:"date-time"`
	Type      string         `json:"type"`
	RequestID string         `json:"request_id"`
	ActorName string         `json:"actor_name"`
	ActorRole string         `json:"actor_role"`
	Payload   map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type WhoAmIResponse struct {
	Name       string      `json:"name"`
	Role       domain.Role `json:"role"`
	Department string      `json:"department"`
	Source     string      `json:"source"`
}

func catalogResponse() CatalogResponse {
	res := CatalogResponse{Statuses: []StatusResponse{}}
	for _, s := range catalog.AllStatuses() {
		transitions := catalog.TransitionsFrom(s)
		if transitions == nil {
			transitions = []catalog.Transition{}
		}
		res.Statuses = append(res.Statuses, StatusResponse{
			Status:      s,
			Description: catalog.DescriptionOf(s),
			Terminal:    catalog.IsTerminal(s),
			Transitions: transitions,
		})
	}
	for _, r := range domain.AllRoles() {
		if r != domain.RoleSystem {
			res.Roles = append(res.Roles, r)
		}
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:        e.ID,
		TS:        e.TS,
		Type:      e.Type,
		RequestID: e.RequestID,
		ActorName: e.ActorName,
		ActorRole: e.ActorRole,
		Payload:   decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}
