package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"robline/internal/domain"
	"robline/internal/engine"
)

var (
	clock = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

	planner   = domain.Actor{Name: "Aina", Role: domain.RoleCAMOPlanning, Department: "CAMO Planning"}
	ftam      = domain.Actor{Name: "Faris", Role: domain.RoleFTAM}
	techSvc   = domain.Actor{Name: "Tan", Role: domain.RoleCAMOTechnicalServices}
	amo       = domain.Actor{Name: "Hafiz", Role: domain.RoleAMO145}
	store     = domain.Actor{Name: "Mei", Role: domain.RoleMaterialStore}
	admin     = domain.Actor{Name: "Root", Role: domain.RoleAdmin}
	doc       = &domain.DocumentRef{Handle: "documents/a.pdf", Name: "a.pdf", Size: 12, ContentType: "application/pdf"}
	yes, no   = true, false
	validCofA = &yes
	noCofA    = &no
)

func scenarioInput(cofa *bool) engine.CreateInput {
	return engine.CreateInput{
		DonorAircraft:            "9M-XXD",
		RecipientAircraft:        "9M-XBH",
		DonorHasValidCertificate: cofa,
		Reason:                   "AOG",
		WorkOrderNumber:          "WO.4000001",
		Component: engine.ComponentInput{
			Description:  "APU",
			PartNumber:   "3800454-6",
			SerialNumber: "SN-100001",
			ATAChapter:   "49",
		},
	}
}

func newRequest(t *testing.T, cofa *bool) domain.RobbingRequest {
	t.Helper()
	r, err := engine.BuildRequest(scenarioInput(cofa), planner, 1, clock)
	require.NoError(t, err)
	return r
}

// walk advances r through the given steps and fails the test on any error.
func walk(t *testing.T, r domain.RobbingRequest, steps ...step) domain.RobbingRequest {
	t.Helper()
	for _, s := range steps {
		var err error
		r, err = engine.Advance(r, s.target, s.actor, s.payload, s.comments, clock)
		require.NoError(t, err, "advance to %s", s.target)
	}
	return r
}

type step struct {
	target   domain.Status
	actor    domain.Actor
	payload  engine.TransitionPayload
	comments string
}

func future(days int) *time.Time {
	t := clock.AddDate(0, 0, days)
	return &t
}

var (
	toPendingAR = step{target: domain.StatusPendingAR, actor: planner, payload: engine.TransitionPayload{SDSReference: "SDS-1", SDSDocument: doc}}
	toRemoval   = step{target: domain.StatusPendingRemovalFromDonor, actor: techSvc, payload: engine.TransitionPayload{ARReference: "AR-1", ARDocument: doc}}
	toRemoved   = step{target: domain.StatusRemovedFromDonor, actor: amo, payload: engine.TransitionPayload{ComponentStatus: domain.ComponentServiceable}}
	toPlanned   = step{target: domain.StatusNormalizationPlanned, actor: planner, payload: engine.TransitionPayload{TargetDate: future(7), CompletionWorkOrder: "WO.5000001"}}
)
