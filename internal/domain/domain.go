package domain

import (
	"fmt"
	"time"
)

type Requester struct {
	Name       string `json:"name"`
	Department string `json:"department"`
}

type Component struct {
	Description      string          `json:"description"`
	PartNumber       string          `json:"part_number"`
	SerialNumber     string          `json:"serial_number"`
	ATAChapter       string          `json:"ata_chapter"`
	Status           ComponentStatus `json:"status" enum:"Serviceable,Unserviceable"`
	PhysicalLocation string          `json:"physical_location"`
}

// DocumentRef points at content held by the document store. The engine only
// ever checks that a handle is present.
type DocumentRef struct {
	Handle      string `json:"handle"`
	Name        string `json:"name,omitempty"`
	Size        int64  `json:"size,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

func (d *DocumentRef) Present() bool {
	return d != nil && d.Handle != ""
}

type DocumentEntry struct {
	Reference string       `json:"reference,omitempty"`
	Document  *DocumentRef `json:"document,omitempty"`
}

// SDSDeclaration is one answered prompt of the spares declaration statement.
type SDSDeclaration struct {
	ID            string `json:"id"`
	Prompt        string `json:"prompt"`
	Answer        string `json:"answer" enum:"yes,no"`
	Remarks       string `json:"remarks,omitempty"`
	ReferenceSlot string `json:"reference_slot,omitempty"`
}

type Documentation struct {
	SDS                   DocumentEntry    `json:"sds"`
	AcceptanceReport      DocumentEntry    `json:"acceptance_report"`
	CAAMForm1             DocumentEntry    `json:"caam_form_1"`
	SLabel                DocumentEntry    `json:"s_label"`
	NormalizationEvidence DocumentEntry    `json:"normalization_evidence"`
	ExtensionApproval     DocumentEntry    `json:"extension_approval"`
	SDSDeclarations       []SDSDeclaration `json:"sds_declarations,omitempty"`
}

// Slot returns the entry for a named slot, or nil for an unknown slot.
func (d *Documentation) Slot(slot DocumentSlot) *DocumentEntry {
	switch slot {
	case SlotSDS:
		return &d.SDS
	case SlotAcceptanceReport:
		return &d.AcceptanceReport
	case SlotCAAMForm1:
		return &d.CAAMForm1
	case SlotSLabel:
		return &d.SLabel
	case SlotNormalizationEvidence:
		return &d.NormalizationEvidence
	case SlotExtensionApproval:
		return &d.ExtensionApproval
	}
	return nil
}

type Normalization struct {
	TargetDate            *time.Time   `json:"target_date,omitempty" format:"date-time"`
	ActualCompletionDate  *time.Time   `json:"actual_completion_date,omitempty" format:"date-time"`
	CompletionWorkOrder   string       `json:"completion_work_order,omitempty"`
	CompletionEvidence    *DocumentRef `json:"completion_evidence,omitempty"`
	InstalledPartNumber   string       `json:"installed_part_number,omitempty"`
	InstalledSerialNumber string       `json:"installed_serial_number,omitempty"`
}

type StatusHistoryEntry struct {
	Status     Status    `json:"status"`
	Timestamp  time.Time `json:"timestamp" format:"date-time"`
	ActingUser string    `json:"acting_user"`
	ActingRole Role      `json:"acting_role"`
	Comments   string    `json:"comments,omitempty"`
}

type RobbingRequest struct {
	RequestID                string               `json:"request_id"`
	Seq                      int                  `json:"-"`
	Version                  int                  `json:"version"`
	Status                   Status               `json:"status"`
	StatusHistory            []StatusHistoryEntry `json:"status_history"`
	CreatedDate              time.Time            `json:"created_date" format:"date-time"`
	Requester                Requester            `json:"requester"`
	DonorAircraft            string               `json:"donor_aircraft"`
	DonorHasValidCertificate bool                 `json:"donor_has_valid_certificate"`
	RecipientAircraft        string               `json:"recipient_aircraft"`
	Reason                   string               `json:"reason"`
	Priority                 Priority             `json:"priority" enum:"Low,Medium,High"`
	WorkOrderNumber          string               `json:"work_order_number"`
	Component                Component            `json:"component"`
	Documentation            Documentation        `json:"documentation"`
	Normalization            Normalization        `json:"normalization"`
}

// Clone returns a deep copy so that candidate states can be built without
// touching the stored value.
func (r RobbingRequest) Clone() RobbingRequest {
	out := r
	out.StatusHistory = append([]StatusHistoryEntry(nil), r.StatusHistory...)
	out.Documentation = r.Documentation.clone()
	out.Normalization = r.Normalization.clone()
	return out
}

func (d Documentation) clone() Documentation {
	out := d
	for _, slot := range AllSlots() {
		e := out.Slot(slot)
		e.Document = cloneRef(e.Document)
	}
	out.SDSDeclarations = append([]SDSDeclaration(nil), d.SDSDeclarations...)
	return out
}

func (n Normalization) clone() Normalization {
	out := n
	out.TargetDate = cloneTime(n.TargetDate)
	out.ActualCompletionDate = cloneTime(n.ActualCompletionDate)
	out.CompletionEvidence = cloneRef(n.CompletionEvidence)
	return out
}

func cloneRef(ref *DocumentRef) *DocumentRef {
	if ref == nil {
		return nil
	}
	c := *ref
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// LastHistory returns the newest history entry.
func (r RobbingRequest) LastHistory() (StatusHistoryEntry, bool) {
	if len(r.StatusHistory) == 0 {
		return StatusHistoryEntry{}, false
	}
	return r.StatusHistory[len(r.StatusHistory)-1], true
}

// CheckInvariants verifies the aggregate-level rules that must hold at every
// observable point.
func (r RobbingRequest) CheckInvariants() error {
	last, ok := r.LastHistory()
	if !ok {
		return fmt.Errorf("request %s has no status history", r.RequestID)
	}
	if last.Status != r.Status {
		return fmt.Errorf("request %s status %q does not match history tail %q", r.RequestID, r.Status, last.Status)
	}
	if r.DonorAircraft == r.RecipientAircraft {
		return fmt.Errorf("request %s donor and recipient aircraft are the same", r.RequestID)
	}
	return nil
}

// HistoryExtends reports whether next keeps every entry of prev unchanged and
// in place.
func HistoryExtends(prev, next []StatusHistoryEntry) bool {
	if len(next) < len(prev) {
		return false
	}
	for i := range prev {
		a, b := prev[i], next[i]
		if a.Status != b.Status || !a.Timestamp.Equal(b.Timestamp) || a.ActingUser != b.ActingUser ||
			a.ActingRole != b.ActingRole || a.Comments != b.Comments {
			return false
		}
	}
	return true
}

// Actor is the already-authenticated caller of an operation.
type Actor struct {
	Name       string `json:"name"`
	Role       Role   `json:"role"`
	Department string `json:"department,omitempty"`
}

// SystemActor performs automatic transitions.
var SystemActor = Actor{Name: "System", Role: RoleSystem, Department: "System"}

type Event struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts" format:"date-time"`
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	ActorName string `json:"actor_name"`
	ActorRole string `json:"actor_role"`
	Payload   string `json:"payload_json"`
}
