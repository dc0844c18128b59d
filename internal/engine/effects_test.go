package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robline/internal/catalog"
	"robline/internal/domain"
	"robline/internal/engine"
)

func TestFullLifecycleWithValidCertificate(t *testing.T) {
	r := newRequest(t, validCofA)
	r = walk(t, r, toPendingAR, toRemoval, toRemoved, toPlanned)
	require.Equal(t, domain.StatusNormalizationPlanned, r.Status)

	r, err := engine.Advance(r, domain.StatusNormalized, amo, engine.TransitionPayload{
		CompletionWorkOrder:   "WO.4100001",
		InstalledPartNumber:   "3800454-6",
		InstalledSerialNumber: "SN-999",
		CompletionEvidence:    doc,
	}, "", clock)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusNormalized, r.Status)
	require.NotNil(t, r.Normalization.ActualCompletionDate)
	assert.True(t, r.Normalization.ActualCompletionDate.Equal(clock))
	assert.Equal(t, "WO.4100001", r.Normalization.CompletionWorkOrder)
	assert.Equal(t, "SN-999", r.Normalization.InstalledSerialNumber)
	assert.Equal(t, "Aircraft normalized on March 14, 2025. Work Order: WO.4100001. Installed P/N: 3800454-6, S/N: SN-999.", r.StatusHistory[len(r.StatusHistory)-1].Comments)
	assert.Len(t, r.StatusHistory, 7)
	assert.NoError(t, r.CheckInvariants())
	for _, role := range domain.AllRoles() {
		assert.Empty(t, engine.AvailableTransitions(r, role), role)
	}
	assert.True(t, catalog.IsTerminal(r.Status))
}

func TestFTAMApprovalPath(t *testing.T) {
	r := newRequest(t, noCofA)

	_, err := engine.Advance(r, domain.StatusPendingSDS, techSvc, engine.TransitionPayload{}, "", clock)
	var ute engine.UnauthorizedTransitionError
	require.ErrorAs(t, err, &ute)

	r = walk(t, r, step{target: domain.StatusPendingSDS, actor: ftam, payload: engine.TransitionPayload{ApprovalDocument: doc}, comments: "one-off"})
	last, _ := r.LastHistory()
	assert.Equal(t, "FTAM approved robbing from aircraft without valid C of A. Notes: one-off", last.Comments)
	assert.Equal(t, doc.Handle, r.Documentation.ExtensionApproval.Document.Handle)
}

func TestRejectRecordsReason(t *testing.T) {
	r := walk(t, newRequest(t, noCofA), step{target: domain.StatusRejected, actor: ftam, comments: "spares available"})
	last, _ := r.LastHistory()
	assert.Equal(t, "FTAM rejected robbing from aircraft without valid C of A. Reason: spares available", last.Comments)
	assert.Empty(t, engine.AvailableTransitions(r, domain.RoleAdmin))
}

func TestSDSSubmissionRequiresReferenceAndDocument(t *testing.T) {
	r := newRequest(t, validCofA)
	_, err := engine.Advance(r, domain.StatusPendingAR, planner, engine.TransitionPayload{}, "", clock)
	var mrd engine.MissingRequiredDataError
	require.ErrorAs(t, err, &mrd)
	assert.Equal(t, []string{"sds_reference", "sds_document"}, mrd.Fields)
	assert.Equal(t, domain.StatusPendingSDS, r.Status)
	assert.Len(t, r.StatusHistory, 2)

	_, err = engine.Advance(r, domain.StatusPendingAR, planner, engine.TransitionPayload{SDSReference: "SDS-1", SDSDocument: &domain.DocumentRef{}}, "", clock)
	require.ErrorAs(t, err, &mrd)
	assert.Equal(t, []string{"sds_document"}, mrd.Fields)
}

func TestSDSDeclarations(t *testing.T) {
	r := newRequest(t, validCofA)
	p := toPendingAR.payload
	p.SDSDeclarations = []domain.SDSDeclaration{
		{Prompt: "Is the part serviceable?", Answer: " YES "},
		{ID: "life-limit", Prompt: "Life limited?", Answer: "no", Remarks: "n/a"},
	}
	next, err := engine.Advance(r, domain.StatusPendingAR, planner, p, "checked", clock)
	require.NoError(t, err)
	require.Len(t, next.Documentation.SDSDeclarations, 2)
	assert.Equal(t, "declaration1", next.Documentation.SDSDeclarations[0].ID)
	assert.Equal(t, "yes", next.Documentation.SDSDeclarations[0].Answer)
	assert.Equal(t, "life-limit", next.Documentation.SDSDeclarations[1].ID)
	assert.Equal(t, "SDS-1", next.Documentation.SDS.Reference)
	last, _ := next.LastHistory()
	assert.Equal(t, "SDS submitted. Reference: SDS-1. Notes: checked", last.Comments)

	p.SDSDeclarations = []domain.SDSDeclaration{{Answer: "maybe"}}
	_, err = engine.Advance(r, domain.StatusPendingAR, planner, p, "", clock)
	var mrd engine.MissingRequiredDataError
	require.ErrorAs(t, err, &mrd)
	assert.Equal(t, []string{"sds_declarations[0].answer"}, mrd.Fields)
}

func TestAcceptanceReportRequired(t *testing.T) {
	r := walk(t, newRequest(t, validCofA), toPendingAR)
	_, err := engine.Advance(r, domain.StatusPendingRemovalFromDonor, techSvc, engine.TransitionPayload{ARDocument: doc}, "", clock)
	var mrd engine.MissingRequiredDataError
	require.ErrorAs(t, err, &mrd)
	assert.Equal(t, []string{"ar_reference"}, mrd.Fields)

	r = walk(t, r, toRemoval)
	assert.Equal(t, "AR-1", r.Documentation.AcceptanceReport.Reference)
}

func TestConfirmRemoval(t *testing.T) {
	r := walk(t, newRequest(t, validCofA), toPendingAR, toRemoval)

	_, err := engine.Advance(r, domain.StatusRemovedFromDonor, amo, engine.TransitionPayload{}, "", clock)
	var mrd engine.MissingRequiredDataError
	require.ErrorAs(t, err, &mrd)
	assert.Equal(t, []string{"component_status"}, mrd.Fields)

	removed := clock.AddDate(0, 0, -1)
	next, err := engine.Advance(r, domain.StatusRemovedFromDonor, amo, engine.TransitionPayload{
		ComponentStatus:    domain.ComponentUnserviceable,
		RemovalDate:        &removed,
		CAAMForm1Reference: "F1-9",
		CAAMForm1Document:  doc,
	}, "bent flange", clock)
	require.NoError(t, err)
	assert.Equal(t, domain.ComponentUnserviceable, next.Component.Status)
	assert.Equal(t, domain.LocationRemovedFromDonor, next.Component.PhysicalLocation)
	assert.Equal(t, "F1-9", next.Documentation.CAAMForm1.Reference)
	assert.False(t, next.Documentation.SLabel.Document.Present())
	last, _ := next.LastHistory()
	assert.Equal(t, "Component removed on March 13, 2025. Status: Unserviceable. Notes: bent flange", last.Comments)
}

func TestPlanNormalizationDates(t *testing.T) {
	r := walk(t, newRequest(t, validCofA), toPendingAR, toRemoval, toRemoved)

	_, err := engine.Advance(r, domain.StatusNormalizationPlanned, planner, engine.TransitionPayload{}, "", clock)
	var mrd engine.MissingRequiredDataError
	require.ErrorAs(t, err, &mrd)

	for _, days := range []int{0, -3} {
		_, err = engine.Advance(r, domain.StatusNormalizationPlanned, planner, engine.TransitionPayload{TargetDate: future(days)}, "", clock)
		var ide engine.InvalidDateError
		require.ErrorAs(t, err, &ide, "days %d", days)
		assert.Equal(t, engine.KindInvalidDate, engine.ErrorKind(err))
	}

	next, err := engine.Advance(r, domain.StatusNormalizationPlanned, planner, engine.TransitionPayload{TargetDate: future(1), SupportingEvidence: doc}, "", clock)
	require.NoError(t, err)
	assert.True(t, next.Normalization.TargetDate.Equal(*future(1)))
	assert.True(t, next.Documentation.NormalizationEvidence.Document.Present())
	last, _ := next.LastHistory()
	assert.Equal(t, "Normalization planned for March 15, 2025.", last.Comments)
}

func TestConfirmNormalizationUsesPlannedWorkOrder(t *testing.T) {
	r := walk(t, newRequest(t, validCofA), toPendingAR, toRemoval, toRemoved, toPlanned)

	_, err := engine.Advance(r, domain.StatusNormalized, amo, engine.TransitionPayload{}, "", clock)
	var mrd engine.MissingRequiredDataError
	require.ErrorAs(t, err, &mrd)
	assert.Equal(t, []string{"installed_part_number", "installed_serial_number", "completion_evidence"}, mrd.Fields)

	next, err := engine.Advance(r, domain.StatusNormalized, admin, engine.TransitionPayload{
		InstalledPartNumber:   "3800454-6",
		InstalledSerialNumber: "SN-2",
		CompletionEvidence:    doc,
	}, "", clock)
	require.NoError(t, err)
	assert.Equal(t, "WO.5000001", next.Normalization.CompletionWorkOrder)
}

func TestFailedAdvanceLeavesInputUntouched(t *testing.T) {
	r := walk(t, newRequest(t, validCofA), toPendingAR, toRemoval)
	before := r.Clone()
	_, err := engine.Advance(r, domain.StatusRemovedFromDonor, amo, engine.TransitionPayload{ComponentStatus: "Broken"}, "", clock)
	require.Error(t, err)
	assert.Equal(t, before, r)
}
