package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robline/internal/domain"
	"robline/internal/engine"
)

func removedRequest(t *testing.T, status domain.ComponentStatus) domain.RobbingRequest {
	t.Helper()
	removal := toRemoved
	removal.payload.ComponentStatus = status
	return walk(t, newRequest(t, validCofA), toPendingAR, toRemoval, removal)
}

func TestSubmitSLabel(t *testing.T) {
	r := removedRequest(t, domain.ComponentUnserviceable)
	next, err := engine.ApplyMaterialStoreAction(r, engine.ActionSubmitSLabel, store, engine.MaterialStorePayload{Reference: "SL-77", Document: doc, Notes: "tagged"}, clock)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusRemovedFromDonor, next.Status)
	assert.Equal(t, domain.ComponentServiceable, next.Component.Status)
	assert.Equal(t, "SL-77", next.Documentation.SLabel.Reference)
	require.Len(t, next.StatusHistory, len(r.StatusHistory)+1)
	last, _ := next.LastHistory()
	assert.Equal(t, domain.StatusRemovedFromDonor, last.Status)
	assert.Equal(t, domain.RoleMaterialStore, last.ActingRole)
	assert.Equal(t, "S Label submitted. Reference: SL-77. Component marked as Serviceable. Notes: tagged", last.Comments)
	assert.NoError(t, next.CheckInvariants())
}

func TestReportUnserviceable(t *testing.T) {
	r := removedRequest(t, domain.ComponentServiceable)
	_, err := engine.ApplyMaterialStoreAction(r, engine.ActionReportUnserviceable, store, engine.MaterialStorePayload{}, clock)
	var mrd engine.MissingRequiredDataError
	require.ErrorAs(t, err, &mrd)
	assert.Equal(t, []string{"reason"}, mrd.Fields)

	next, err := engine.ApplyMaterialStoreAction(r, engine.ActionReportUnserviceable, admin, engine.MaterialStorePayload{Reason: "corrosion"}, clock)
	require.NoError(t, err)
	assert.Equal(t, domain.ComponentUnserviceable, next.Component.Status)
	last, _ := next.LastHistory()
	assert.Equal(t, "Component reported as Unserviceable. Reason: corrosion.", last.Comments)
}

func TestMaterialStoreGuards(t *testing.T) {
	removed := removedRequest(t, domain.ComponentServiceable)
	payload := engine.MaterialStorePayload{Reference: "SL-1", Document: doc}

	_, err := engine.ApplyMaterialStoreAction(removed, engine.ActionSubmitSLabel, amo, payload, clock)
	var ue engine.UnauthorizedError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, engine.KindUnauthorized, engine.ErrorKind(err))

	pending := newRequest(t, validCofA)
	_, err = engine.ApplyMaterialStoreAction(pending, engine.ActionSubmitSLabel, store, payload, clock)
	var pfe engine.PreconditionFailedError
	require.ErrorAs(t, err, &pfe)
	assert.Equal(t, domain.StatusPendingSDS, pfe.Status)

	_, err = engine.ApplyMaterialStoreAction(removed, engine.ActionSubmitSLabel, store, engine.MaterialStorePayload{Reference: "SL-1"}, clock)
	var mrd engine.MissingRequiredDataError
	require.ErrorAs(t, err, &mrd)
	assert.Equal(t, []string{"document"}, mrd.Fields)
}

func TestParseMaterialStoreAction(t *testing.T) {
	for _, raw := range []string{"submit_s_label", "report_unserviceable"} {
		_, err := engine.ParseMaterialStoreAction(raw)
		assert.NoError(t, err, raw)
	}
	_, err := engine.ParseMaterialStoreAction("scrap")
	assert.Error(t, err)
}

func TestUpdateDocument(t *testing.T) {
	r := newRequest(t, validCofA)
	ref := " CAAM-1 "
	next, err := engine.UpdateDocument(r, domain.SlotCAAMForm1, &ref, doc)
	require.NoError(t, err)
	assert.Equal(t, "CAAM-1", next.Documentation.CAAMForm1.Reference)
	assert.Equal(t, doc.Handle, next.Documentation.CAAMForm1.Document.Handle)
	assert.Equal(t, r.StatusHistory, next.StatusHistory)
	assert.Empty(t, r.Documentation.CAAMForm1.Reference)

	cleared, err := engine.UpdateDocument(next, domain.SlotCAAMForm1, nil, &domain.DocumentRef{})
	require.NoError(t, err)
	assert.Nil(t, cleared.Documentation.CAAMForm1.Document)
	assert.Equal(t, "CAAM-1", cleared.Documentation.CAAMForm1.Reference)

	_, err = engine.UpdateDocument(r, "logbook", &ref, nil)
	var ve engine.ValidationError
	require.ErrorAs(t, err, &ve)
	_, err = engine.UpdateDocument(r, domain.SlotSDS, nil, nil)
	require.ErrorAs(t, err, &ve)
}
