package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robline/internal/domain"
	"robline/internal/engine"
)

func TestBuildRequestWithValidCertificate(t *testing.T) {
	r := newRequest(t, validCofA)

	assert.Equal(t, "CR-2025-0001", r.RequestID)
	assert.Equal(t, domain.StatusPendingSDS, r.Status)
	require.Len(t, r.StatusHistory, 2)
	assert.Equal(t, domain.StatusInitiated, r.StatusHistory[0].Status)
	assert.Equal(t, "Aina", r.StatusHistory[0].ActingUser)
	assert.Equal(t, domain.RoleCAMOPlanning, r.StatusHistory[0].ActingRole)
	assert.Equal(t, "Request created", r.StatusHistory[0].Comments)
	assert.Equal(t, domain.RoleSystem, r.StatusHistory[1].ActingRole)
	assert.Equal(t, "System", r.StatusHistory[1].ActingUser)
	assert.Equal(t, "Automatic transition: Donor aircraft has valid C of A", r.StatusHistory[1].Comments)
	assert.Equal(t, domain.PriorityMedium, r.Priority)
	assert.Equal(t, domain.ComponentServiceable, r.Component.Status)
	assert.Equal(t, domain.LocationDonorAircraft, r.Component.PhysicalLocation)
	assert.Equal(t, domain.Requester{Name: "Aina", Department: "CAMO Planning"}, r.Requester)
	assert.True(t, r.CreatedDate.Equal(clock))
	assert.NoError(t, r.CheckInvariants())
}

func TestBuildRequestWithoutValidCertificate(t *testing.T) {
	r := newRequest(t, noCofA)
	assert.Equal(t, domain.StatusAwaitingFTAMApproval, r.Status)
	require.Len(t, r.StatusHistory, 2)
	assert.Equal(t, "Automatic transition: Donor aircraft does not have valid C of A", r.StatusHistory[1].Comments)
}

func TestBuildRequestCollectsEveryProblem(t *testing.T) {
	_, err := engine.BuildRequest(engine.CreateInput{DonorAircraft: "9M-XXD", RecipientAircraft: " 9m-xxd "}, domain.Actor{Role: domain.RoleCAMOPlanning}, 1, clock)
	var ve engine.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.ElementsMatch(t, []string{
		"requester_name",
		"recipient_aircraft",
		"donor_has_valid_certificate",
		"reason",
		"work_order_number",
		"component.description",
		"component.part_number",
		"component.serial_number",
		"component.ata_chapter",
	}, ve.Fields())
	assert.Equal(t, engine.KindValidation, engine.ErrorKind(err))
}

func TestBuildRequestDepartmentFallsBackToRole(t *testing.T) {
	r, err := engine.BuildRequest(scenarioInput(validCofA), domain.Actor{Name: "Faris", Role: domain.RoleFTAM}, 12, clock)
	require.NoError(t, err)
	assert.Equal(t, "FTAM", r.Requester.Department)
	assert.Equal(t, "CR-2025-0012", r.RequestID)
}

func TestBuildRequestPriorityAndExtension(t *testing.T) {
	in := scenarioInput(noCofA)
	in.Priority = "high"
	in.ExtensionApproval = doc
	r, err := engine.BuildRequest(in, planner, 1, clock)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityHigh, r.Priority)
	assert.Equal(t, doc.Handle, r.Documentation.ExtensionApproval.Document.Handle)

	in.Priority = "urgent"
	_, err = engine.BuildRequest(in, planner, 1, clock)
	var ve engine.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"priority"}, ve.Fields())
}

func TestFormatRequestID(t *testing.T) {
	assert.Equal(t, "CR-2024-0007", engine.FormatRequestID(2024, 7))
	assert.Equal(t, "CR-2024-12345", engine.FormatRequestID(2024, 12345))
}
