package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robline/internal/domain"
)

func sampleRequest() domain.RobbingRequest {
	ts := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	target := ts.Add(48 * time.Hour)
	return domain.RobbingRequest{
		RequestID:         "CR-2025-0001",
		Status:            domain.StatusPendingSDS,
		DonorAircraft:     "9M-XXD",
		RecipientAircraft: "9M-XBH",
		StatusHistory: []domain.StatusHistoryEntry{
			{Status: domain.StatusInitiated, Timestamp: ts, ActingUser: "ana", ActingRole: domain.RoleCAMOPlanning},
			{Status: domain.StatusPendingSDS, Timestamp: ts, ActingUser: "System", ActingRole: domain.RoleSystem},
		},
		Documentation: domain.Documentation{
			SDS:             domain.DocumentEntry{Reference: "SDS-1", Document: &domain.DocumentRef{Handle: "h1"}},
			SDSDeclarations: []domain.SDSDeclaration{{ID: "d1", Prompt: "Fit?", Answer: "yes"}},
		},
		Normalization: domain.Normalization{TargetDate: &target},
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := sampleRequest()
	c := orig.Clone()

	c.StatusHistory[0].Comments = "changed"
	c.Documentation.SDS.Document.Handle = "other"
	c.Documentation.SDSDeclarations[0].Answer = "no"
	*c.Normalization.TargetDate = time.Time{}

	assert.Empty(t, orig.StatusHistory[0].Comments)
	assert.Equal(t, "h1", orig.Documentation.SDS.Document.Handle)
	assert.Equal(t, "yes", orig.Documentation.SDSDeclarations[0].Answer)
	assert.False(t, orig.Normalization.TargetDate.IsZero())
}

func TestCheckInvariants(t *testing.T) {
	r := sampleRequest()
	require.NoError(t, r.CheckInvariants())

	r.Status = domain.StatusPendingAR
	assert.Error(t, r.CheckInvariants())

	r = sampleRequest()
	r.RecipientAircraft = r.DonorAircraft
	assert.Error(t, r.CheckInvariants())

	r = sampleRequest()
	r.StatusHistory = nil
	assert.Error(t, r.CheckInvariants())
}

func TestHistoryExtends(t *testing.T) {
	prev := sampleRequest().StatusHistory
	next := append(append([]domain.StatusHistoryEntry(nil), prev...), domain.StatusHistoryEntry{Status: domain.StatusPendingAR})
	assert.True(t, domain.HistoryExtends(prev, next))
	assert.False(t, domain.HistoryExtends(next, prev))

	next[0].ActingUser = "someone else"
	assert.False(t, domain.HistoryExtends(prev, next))
}

func TestParsers(t *testing.T) {
	s, err := domain.ParseStatus("pending removal from donor")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingRemovalFromDonor, s)
	_, err = domain.ParseStatus("Closed")
	assert.Error(t, err)

	r, err := domain.ParseRole(" amo 145 ")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAMO145, r)

	slot, err := domain.ParseSlot("caam-form-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SlotCAAMForm1, slot)
	_, err = domain.ParseSlot("invoice")
	assert.Error(t, err)

	p, err := domain.ParsePriority("HIGH")
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityHigh, p)
}

func TestDocumentationSlot(t *testing.T) {
	var d domain.Documentation
	for _, slot := range domain.AllSlots() {
		require.NotNil(t, d.Slot(slot), slot)
	}
	d.Slot(domain.SlotSLabel).Reference = "SL-1"
	assert.Equal(t, "SL-1", d.SLabel.Reference)
	assert.Nil(t, d.Slot("invoice"))

	var ref *domain.DocumentRef
	assert.False(t, ref.Present())
	assert.False(t, (&domain.DocumentRef{}).Present())
	assert.True(t, (&domain.DocumentRef{Handle: "x"}).Present())
}
