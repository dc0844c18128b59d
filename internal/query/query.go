package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"robline/internal/catalog"
	"robline/internal/domain"
)

// StatusCounts counts requests per status. Every status is present, zero
// included, so the values always sum to len(reqs) for known statuses.
func StatusCounts(reqs []domain.RobbingRequest) map[domain.Status]int {
	counts := make(map[domain.Status]int, len(catalog.AllStatuses()))
	for _, s := range catalog.AllStatuses() {
		counts[s] = 0
	}
	for _, r := range reqs {
		counts[r.Status]++
	}
	return counts
}

// FilterByStatuses keeps requests whose status is listed. An empty list keeps
// everything.
func FilterByStatuses(reqs []domain.RobbingRequest, statuses []domain.Status) []domain.RobbingRequest {
	if len(statuses) == 0 {
		return reqs
	}
	want := make(map[domain.Status]struct{}, len(statuses))
	for _, s := range statuses {
		want[s] = struct{}{}
	}
	var out []domain.RobbingRequest
	for _, r := range reqs {
		if _, ok := want[r.Status]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Search matches term case-insensitively against the identifying fields of a
// request; any match includes it.
func Search(reqs []domain.RobbingRequest, term string) []domain.RobbingRequest {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return reqs
	}
	var out []domain.RobbingRequest
	for _, r := range reqs {
		for _, field := range []string{
			r.RequestID,
			r.DonorAircraft,
			r.RecipientAircraft,
			r.Component.PartNumber,
			r.Component.SerialNumber,
			r.Component.Description,
			r.WorkOrderNumber,
		} {
			if strings.Contains(strings.ToLower(field), term) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

type SortField string

const (
	SortRequestID         SortField = "request_id"
	SortCreatedDate       SortField = "created_date"
	SortStatus            SortField = "status"
	SortPriority          SortField = "priority"
	SortDonorAircraft     SortField = "donor_aircraft"
	SortRecipientAircraft SortField = "recipient_aircraft"
	SortRequester         SortField = "requester"
	SortDescription       SortField = "description"
	SortPartNumber        SortField = "part_number"
	SortSerialNumber      SortField = "serial_number"
	SortWorkOrder         SortField = "work_order_number"
	SortTargetDate        SortField = "target_date"
)

var sortFields = []SortField{
	SortRequestID, SortCreatedDate, SortStatus, SortPriority, SortDonorAircraft, SortRecipientAircraft,
	SortRequester, SortDescription, SortPartNumber, SortSerialNumber, SortWorkOrder, SortTargetDate,
}

// ParseSortField accepts snake_case or camelCase names.
func ParseSortField(raw string) (SortField, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), "_", ""))
	for _, f := range sortFields {
		if strings.ReplaceAll(string(f), "_", "") == norm {
			return f, nil
		}
	}
	return "", fmt.Errorf("invalid sort field %q", raw)
}

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

func ParseDirection(raw string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "asc", "ascending":
		return Asc, nil
	case "desc", "descending":
		return Desc, nil
	}
	return "", fmt.Errorf("invalid sort direction %q", raw)
}

func stringField(r domain.RobbingRequest, f SortField) (string, bool) {
	switch f {
	case SortRequestID:
		return r.RequestID, true
	case SortDonorAircraft:
		return r.DonorAircraft, true
	case SortRecipientAircraft:
		return r.RecipientAircraft, true
	case SortRequester:
		return r.Requester.Name, true
	case SortDescription:
		return r.Component.Description, true
	case SortPartNumber:
		return r.Component.PartNumber, true
	case SortSerialNumber:
		return r.Component.SerialNumber, true
	case SortWorkOrder:
		return r.WorkOrderNumber, true
	}
	return "", false
}

func dateField(r domain.RobbingRequest, f SortField) (*time.Time, bool) {
	switch f {
	case SortCreatedDate:
		return &r.CreatedDate, true
	case SortTargetDate:
		return r.Normalization.TargetDate, true
	}
	return nil, false
}

var priorityRank = map[domain.Priority]int{
	domain.PriorityLow:    1,
	domain.PriorityMedium: 2,
	domain.PriorityHigh:   3,
}

// SortBy stable-sorts a copy of reqs. Strings compare with English collation,
// dates chronologically, status by catalog rank and priority by level.
// Unknown fields and missing values compare equal, which keeps the input
// order.
func SortBy(reqs []domain.RobbingRequest, field SortField, dir Direction) []domain.RobbingRequest {
	out := append([]domain.RobbingRequest(nil), reqs...)
	col := collate.New(language.English)
	cmp := func(a, b domain.RobbingRequest) int {
		if sa, ok := stringField(a, field); ok {
			sb, _ := stringField(b, field)
			return col.CompareString(sa, sb)
		}
		if da, ok := dateField(a, field); ok {
			db, _ := dateField(b, field)
			if da == nil || db == nil {
				return 0
			}
			return da.Compare(*db)
		}
		switch field {
		case SortStatus:
			return catalog.Rank(a.Status) - catalog.Rank(b.Status)
		case SortPriority:
			return priorityRank[a.Priority] - priorityRank[b.Priority]
		}
		return 0
	}
	sort.SliceStable(out, func(i, j int) bool {
		c := cmp(out[i], out[j])
		if dir == Desc {
			return c > 0
		}
		return c < 0
	})
	return out
}

type GroupKey string

const (
	GroupDonorAircraft     GroupKey = "donor_aircraft"
	GroupRecipientAircraft GroupKey = "recipient_aircraft"
	GroupComponent         GroupKey = "component"
	GroupRequest           GroupKey = "request"
)

func ParseGroupKey(raw string) (GroupKey, error) {
	switch k := GroupKey(strings.ToLower(strings.TrimSpace(raw))); k {
	case GroupDonorAircraft, GroupRecipientAircraft, GroupComponent, GroupRequest:
		return k, nil
	case "donor":
		return GroupDonorAircraft, nil
	case "recipient":
		return GroupRecipientAircraft, nil
	}
	return "", fmt.Errorf("invalid group key %q", raw)
}

type Group struct {
	Label    string                  `json:"label"`
	Requests []domain.RobbingRequest `json:"requests"`
}

func groupLabel(r domain.RobbingRequest, key GroupKey) string {
	switch key {
	case GroupDonorAircraft:
		return r.DonorAircraft
	case GroupRecipientAircraft:
		return r.RecipientAircraft
	case GroupComponent:
		return fmt.Sprintf("%s (P/N %s, S/N %s)", r.Component.Description, r.Component.PartNumber, r.Component.SerialNumber)
	}
	return r.RequestID
}

// GroupBy partitions reqs by key. Groups appear in the order their label is
// first seen and keep the input order inside.
func GroupBy(reqs []domain.RobbingRequest, key GroupKey) []Group {
	var groups []Group
	index := map[string]int{}
	for _, r := range reqs {
		label := groupLabel(r, key)
		i, ok := index[label]
		if !ok {
			i = len(groups)
			index[label] = i
			groups = append(groups, Group{Label: label})
		}
		groups[i].Requests = append(groups[i].Requests, r)
	}
	return groups
}

// Options describe a list query. Steps run as filter, search, then sort.
type Options struct {
	Statuses  []domain.Status
	Search    string
	SortField SortField
	Direction Direction
}

func Apply(reqs []domain.RobbingRequest, opts Options) []domain.RobbingRequest {
	out := FilterByStatuses(reqs, opts.Statuses)
	out = Search(out, opts.Search)
	if opts.SortField != "" {
		out = SortBy(out, opts.SortField, opts.Direction)
	}
	return out
}
