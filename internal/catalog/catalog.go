package catalog

import (
	"robline/internal/domain"
)

// Transition is one outbound edge of a status. Admin is allowed on every edge
// and is not listed in Roles.
type Transition struct {
	Next        domain.Status `json:"status"`
	Roles       []domain.Role `json:"roles"`
	Label       string        `json:"label"`
	Description string        `json:"description,omitempty"`
}

// Allows reports whether role may take this edge.
func (t Transition) Allows(role domain.Role) bool {
	if role == domain.RoleAdmin {
		return true
	}
	for _, r := range t.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (t Transition) clone() Transition {
	t.Roles = append([]domain.Role(nil), t.Roles...)
	return t
}

type statusConfig struct {
	description string
	transitions []Transition
}

// order is the canonical display order. Awaiting FTAM Approval follows
// Initiated even though it is only reached for donors without a valid C of A.
var order = []domain.Status{
	domain.StatusInitiated,
	domain.StatusAwaitingFTAMApproval,
	domain.StatusPendingSDS,
	domain.StatusPendingAR,
	domain.StatusPendingRemovalFromDonor,
	domain.StatusRemovedFromDonor,
	domain.StatusNormalizationPlanned,
	domain.StatusNormalized,
	domain.StatusRejected,
}

var table = map[domain.Status]statusConfig{
	domain.StatusInitiated: {
		description: "Request has been created",
		transitions: []Transition{
			{
				Next:        domain.StatusPendingSDS,
				Roles:       []domain.Role{domain.RoleCAMOPlanning},
				Label:       "Move to Pending SDS",
				Description: "Donor aircraft has valid C of A",
			},
			{
				Next:        domain.StatusAwaitingFTAMApproval,
				Roles:       []domain.Role{domain.RoleCAMOPlanning},
				Label:       "Request FTAM Approval",
				Description: "Donor aircraft does not have valid C of A",
			},
		},
	},
	domain.StatusAwaitingFTAMApproval: {
		description: "Waiting for FTAM to approve request",
		transitions: []Transition{
			{
				Next:        domain.StatusPendingSDS,
				Roles:       []domain.Role{domain.RoleFTAM},
				Label:       "Approve Request",
				Description: "Approve request and require Spares Declaration Statement",
			},
			{
				Next:        domain.StatusRejected,
				Roles:       []domain.Role{domain.RoleFTAM},
				Label:       "Reject Request",
				Description: "Reject the request",
			},
		},
	},
	domain.StatusPendingSDS: {
		description: "Waiting for Spares Declaration Statement",
		transitions: []Transition{
			{
				Next:        domain.StatusPendingAR,
				Roles:       []domain.Role{domain.RoleCAMOPlanning},
				Label:       "Submit SDS",
				Description: "Submit Spares Declaration Statement",
			},
		},
	},
	domain.StatusPendingAR: {
		description: "Waiting for Acceptance Report",
		transitions: []Transition{
			{
				Next:        domain.StatusPendingRemovalFromDonor,
				Roles:       []domain.Role{domain.RoleCAMOTechnicalServices},
				Label:       "Submit AR",
				Description: "Submit Acceptance Report to proceed",
			},
		},
	},
	domain.StatusPendingRemovalFromDonor: {
		description: "Component ready for removal from donor aircraft",
		transitions: []Transition{
			{
				Next:        domain.StatusRemovedFromDonor,
				Roles:       []domain.Role{domain.RoleAMO145},
				Label:       "Confirm Removal",
				Description: "Confirm component has been removed from donor aircraft",
			},
		},
	},
	domain.StatusRemovedFromDonor: {
		description: "Component has been removed from donor aircraft",
		transitions: []Transition{
			{
				Next:        domain.StatusNormalizationPlanned,
				Roles:       []domain.Role{domain.RoleCAMOPlanning},
				Label:       "Plan Normalization",
				Description: "Plan the normalization of the donor aircraft",
			},
		},
	},
	domain.StatusNormalizationPlanned: {
		description: "Normalization of donor aircraft has been planned",
		transitions: []Transition{
			{
				Next:        domain.StatusNormalized,
				Roles:       []domain.Role{domain.RoleAMO145},
				Label:       "Confirm Normalization",
				Description: "Confirm donor aircraft has been normalized",
			},
		},
	},
	domain.StatusNormalized: {description: "Donor aircraft has been normalized"},
	domain.StatusRejected:   {description: "Request has been rejected"},
}

// TransitionsFrom returns the outbound edges of status in table order. Unknown
// statuses have none.
func TransitionsFrom(status domain.Status) []Transition {
	cfg, ok := table[status]
	if !ok {
		return nil
	}
	out := make([]Transition, 0, len(cfg.transitions))
	for _, t := range cfg.transitions {
		out = append(out, t.clone())
	}
	return out
}

// Lookup finds the edge from -> to.
func Lookup(from, to domain.Status) (Transition, bool) {
	for _, t := range table[from].transitions {
		if t.Next == to {
			return t.clone(), true
		}
	}
	return Transition{}, false
}

func DescriptionOf(status domain.Status) string {
	if cfg, ok := table[status]; ok {
		return cfg.description
	}
	return "Unknown status"
}

func AllStatuses() []domain.Status {
	return append([]domain.Status(nil), order...)
}

// Rank is the display position of status, or -1 when unknown.
func Rank(status domain.Status) int {
	for i, s := range order {
		if s == status {
			return i
		}
	}
	return -1
}

func IsTerminal(status domain.Status) bool {
	cfg, ok := table[status]
	return ok && len(cfg.transitions) == 0
}
