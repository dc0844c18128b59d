package domain

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a robbing request.
type Status string

const (
	StatusInitiated               Status = "Initiated"
	StatusAwaitingFTAMApproval    Status = "Awaiting FTAM Approval"
	StatusPendingSDS              Status = "Pending SDS"
	StatusPendingAR               Status = "Pending AR"
	StatusPendingRemovalFromDonor Status = "Pending Removal from Donor"
	StatusRemovedFromDonor        Status = "Removed from Donor"
	StatusNormalizationPlanned    Status = "Normalization Planned"
	StatusNormalized              Status = "Normalized"
	StatusRejected                Status = "Rejected"
)

var statuses = []Status{
	StatusInitiated,
	StatusAwaitingFTAMApproval,
	StatusPendingSDS,
	StatusPendingAR,
	StatusPendingRemovalFromDonor,
	StatusRemovedFromDonor,
	StatusNormalizationPlanned,
	StatusNormalized,
	StatusRejected,
}

// ParseStatus accepts the display name in any letter case.
func ParseStatus(raw string) (Status, error) {
	trimmed := strings.TrimSpace(raw)
	for _, s := range statuses {
		if strings.EqualFold(string(s), trimmed) {
			return s, nil
		}
	}
	return "", fmt.Errorf("invalid status %q", raw)
}

type Role string

const (
	RoleCAMOPlanning          Role = "CAMO Planning"
	RoleFTAM                  Role = "FTAM"
	RoleCAMOTechnicalServices Role = "CAMO Technical Services"
	RoleAMO145                Role = "AMO 145"
	RoleMaterialStore         Role = "Material Store"
	RoleAdmin                 Role = "Admin"
	RoleSystem                Role = "System"
)

var roles = []Role{
	RoleCAMOPlanning,
	RoleFTAM,
	RoleCAMOTechnicalServices,
	RoleAMO145,
	RoleMaterialStore,
	RoleAdmin,
	RoleSystem,
}

// AllRoles lists every role, System included.
func AllRoles() []Role {
	return append([]Role(nil), roles...)
}

func ParseRole(raw string) (Role, error) {
	trimmed := strings.TrimSpace(raw)
	for _, r := range roles {
		if strings.EqualFold(string(r), trimmed) {
			return r, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", raw)
}

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

func ParsePriority(raw string) (Priority, error) {
	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh} {
		if strings.EqualFold(string(p), strings.TrimSpace(raw)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("invalid priority %q", raw)
}

type ComponentStatus string

const (
	ComponentServiceable   ComponentStatus = "Serviceable"
	ComponentUnserviceable ComponentStatus = "Unserviceable"
)

func ParseComponentStatus(raw string) (ComponentStatus, error) {
	for _, s := range []ComponentStatus{ComponentServiceable, ComponentUnserviceable} {
		if strings.EqualFold(string(s), strings.TrimSpace(raw)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("invalid component status %q", raw)
}

// Physical locations written by the lifecycle.
const (
	LocationDonorAircraft    = "Donor Aircraft"
	LocationRemovedFromDonor = "Removed from Donor"
)

type DocumentSlot string

const (
	SlotSDS                   DocumentSlot = "sds"
	SlotAcceptanceReport      DocumentSlot = "acceptance_report"
	SlotCAAMForm1             DocumentSlot = "caam_form_1"
	SlotSLabel                DocumentSlot = "s_label"
	SlotNormalizationEvidence DocumentSlot = "normalization_evidence"
	SlotExtensionApproval     DocumentSlot = "extension_approval"
)

func AllSlots() []DocumentSlot {
	return []DocumentSlot{
		SlotSDS,
		SlotAcceptanceReport,
		SlotCAAMForm1,
		SlotSLabel,
		SlotNormalizationEvidence,
		SlotExtensionApproval,
	}
}

func ParseSlot(raw string) (DocumentSlot, error) {
	norm := strings.ToLower(strings.TrimSpace(raw))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	for _, s := range AllSlots() {
		if string(s) == norm {
			return s, nil
		}
	}
	return "", fmt.Errorf("invalid document slot %q", raw)
}
