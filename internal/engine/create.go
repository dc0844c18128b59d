package engine

import (
	"fmt"
	"strings"
	"time"

	"robline/internal/domain"
)

// CreateInput are the submitted fields of a new request.
type CreateInput struct {
	RequesterName            string              `json:"requester_name,omitempty"`
	RequesterDepartment      string              `json:"requester_department,omitempty"`
	DonorAircraft            string              `json:"donor_aircraft"`
	DonorHasValidCertificate *bool               `json:"donor_has_valid_certificate"`
	RecipientAircraft        string              `json:"recipient_aircraft"`
	Reason                   string              `json:"reason"`
	Priority                 string              `json:"priority,omitempty"`
	WorkOrderNumber          string              `json:"work_order_number"`
	Component                ComponentInput      `json:"component"`
	ExtensionApproval        *domain.DocumentRef `json:"extension_approval,omitempty"`
}

type ComponentInput struct {
	Description  string `json:"description"`
	PartNumber   string `json:"part_number"`
	SerialNumber string `json:"serial_number"`
	ATAChapter   string `json:"ata_chapter"`
}

const (
	commentCreated         = "Request created"
	commentAutoValidCofA   = "Automatic transition: Donor aircraft has valid C of A"
	commentAutoNoValidCofA = "Automatic transition: Donor aircraft does not have valid C of A"
)

// FormatRequestID renders CR-<year>-<4 digit sequence>.
func FormatRequestID(year, seq int) string {
	return fmt.Sprintf("CR-%d-%04d", year, seq)
}

// BuildRequest validates in and returns the new request already advanced out
// of Initiated. seq is the store-assigned creation sequence.
func BuildRequest(in CreateInput, actor domain.Actor, seq int, now time.Time) (domain.RobbingRequest, error) {
	in = normalizeInput(in, actor)
	if err := ValidateCreate(in); err != nil {
		return domain.RobbingRequest{}, err
	}
	priority := domain.PriorityMedium
	if in.Priority != "" {
		priority, _ = domain.ParsePriority(in.Priority)
	}
	r := domain.RobbingRequest{
		RequestID:                FormatRequestID(now.Year(), seq),
		Seq:                      seq,
		CreatedDate:              now,
		Requester:                domain.Requester{Name: in.RequesterName, Department: in.RequesterDepartment},
		DonorAircraft:            in.DonorAircraft,
		DonorHasValidCertificate: *in.DonorHasValidCertificate,
		RecipientAircraft:        in.RecipientAircraft,
		Reason:                   in.Reason,
		Priority:                 priority,
		WorkOrderNumber:          in.WorkOrderNumber,
		Component: domain.Component{
			Description:      in.Component.Description,
			PartNumber:       in.Component.PartNumber,
			SerialNumber:     in.Component.SerialNumber,
			ATAChapter:       in.Component.ATAChapter,
			Status:           domain.ComponentServiceable,
			PhysicalLocation: domain.LocationDonorAircraft,
		},
	}
	if in.ExtensionApproval.Present() {
		r.Documentation.ExtensionApproval.Document = in.ExtensionApproval
	}
	appendStatus(&r, domain.StatusInitiated, actor, commentCreated, now)

	target, comment := domain.StatusAwaitingFTAMApproval, commentAutoNoValidCofA
	if r.DonorHasValidCertificate {
		target, comment = domain.StatusPendingSDS, commentAutoValidCofA
	}
	return autoAdvance(r, target, comment, now)
}

func normalizeInput(in CreateInput, actor domain.Actor) CreateInput {
	trim := func(s *string) { *s = strings.TrimSpace(*s) }
	for _, s := range []*string{
		&in.RequesterName, &in.RequesterDepartment, &in.DonorAircraft, &in.RecipientAircraft,
		&in.Reason, &in.Priority, &in.WorkOrderNumber, &in.Component.Description,
		&in.Component.PartNumber, &in.Component.SerialNumber, &in.Component.ATAChapter,
	} {
		trim(s)
	}
	if in.RequesterName == "" {
		in.RequesterName = actor.Name
	}
	if in.RequesterDepartment == "" {
		in.RequesterDepartment = actor.Department
	}
	if in.RequesterDepartment == "" {
		in.RequesterDepartment = string(actor.Role)
	}
	return in
}

// ValidateCreate collects every missing or invalid field of in.
func ValidateCreate(in CreateInput) error {
	var problems []FieldProblem
	required := func(field, value string) {
		if value == "" {
			problems = append(problems, FieldProblem{Field: field, Message: "required"})
		}
	}
	required("requester_name", in.RequesterName)
	required("requester_department", in.RequesterDepartment)
	required("donor_aircraft", in.DonorAircraft)
	required("recipient_aircraft", in.RecipientAircraft)
	if in.DonorAircraft != "" && strings.EqualFold(in.DonorAircraft, in.RecipientAircraft) {
		problems = append(problems, FieldProblem{Field: "recipient_aircraft", Message: "must differ from donor aircraft"})
	}
	if in.DonorHasValidCertificate == nil {
		problems = append(problems, FieldProblem{Field: "donor_has_valid_certificate", Message: "required"})
	}
	required("reason", in.Reason)
	required("work_order_number", in.WorkOrderNumber)
	required("component.description", in.Component.Description)
	required("component.part_number", in.Component.PartNumber)
	required("component.serial_number", in.Component.SerialNumber)
	required("component.ata_chapter", in.Component.ATAChapter)
	if in.Priority != "" {
		if _, err := domain.ParsePriority(in.Priority); err != nil {
			problems = append(problems, FieldProblem{Field: "priority", Message: "must be Low, Medium or High"})
		}
	}
	if len(problems) > 0 {
		return ValidationError{Problems: problems}
	}
	return nil
}
