package query

import (
	"time"

	"robline/internal/catalog"
	"robline/internal/domain"
)

// View is the list projection of a request.
type View struct {
	RequestID         string                 `json:"request_id"`
	Status            domain.Status          `json:"status"`
	StatusDescription string                 `json:"status_description"`
	CreatedDate       time.Time              `json:"created_date" format:"date-time"`
	LastUpdated       time.Time              `json:"last_updated" format:"date-time"`
	RequesterName     string                 `json:"requester_name"`
	DonorAircraft     string                 `json:"donor_aircraft"`
	RecipientAircraft string                 `json:"recipient_aircraft"`
	Priority          domain.Priority        `json:"priority"`
	WorkOrderNumber   string                 `json:"work_order_number"`
	Description       string                 `json:"description"`
	PartNumber        string                 `json:"part_number"`
	SerialNumber      string                 `json:"serial_number"`
	ComponentStatus   domain.ComponentStatus `json:"component_status"`
	TargetDate        *time.Time             `json:"target_date,omitempty" format:"date-time"`
}

func ViewOf(r domain.RobbingRequest) View {
	v := View{
		RequestID:         r.RequestID,
		Status:            r.Status,
		StatusDescription: catalog.DescriptionOf(r.Status),
		CreatedDate:       r.CreatedDate,
		LastUpdated:       r.CreatedDate,
		RequesterName:     r.Requester.Name,
		DonorAircraft:     r.DonorAircraft,
		RecipientAircraft: r.RecipientAircraft,
		Priority:          r.Priority,
		WorkOrderNumber:   r.WorkOrderNumber,
		Description:       r.Component.Description,
		PartNumber:        r.Component.PartNumber,
		SerialNumber:      r.Component.SerialNumber,
		ComponentStatus:   r.Component.Status,
		TargetDate:        r.Normalization.TargetDate,
	}
	if last, ok := r.LastHistory(); ok {
		v.LastUpdated = last.Timestamp
	}
	return v
}

func Views(reqs []domain.RobbingRequest) []View {
	out := make([]View, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, ViewOf(r))
	}
	return out
}

type GroupView struct {
	Label    string `json:"label"`
	Requests []View `json:"requests"`
}

func GroupViews(groups []Group) []GroupView {
	out := make([]GroupView, 0, len(groups))
	for _, g := range groups {
		out = append(out, GroupView{Label: g.Label, Requests: Views(g.Requests)})
	}
	return out
}
