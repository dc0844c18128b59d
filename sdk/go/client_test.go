package roblinesdk

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robline/internal/docstore"
	"robline/internal/domain"
	"robline/internal/engine"
	"robline/internal/engine/auth"
	"robline/internal/repo"
	"robline/internal/server"
)

const secret = "sdk-secret"

var clock = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

func newClient(t *testing.T, role domain.Role) (*Client, func()) {
	t.Helper()
	now := func() time.Time { return clock }
	e := engine.New(repo.NewMemory(now), docstore.NewMemory())
	e.Now = now
	handler, err := server.New(server.Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: server.AuthConfig{
			Resolver: auth.Resolver{
				JWTSecret: secret,
				APIKeys:   []auth.APIKey{{Name: "store-kiosk", Role: "Material Store", Hash: auth.HashAPIKey("kiosk")}},
				Now:       now,
			},
		},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)

	token, err := auth.IssueToken(secret, domain.Actor{Name: "Aina", Role: role}, time.Hour, clock)
	require.NoError(t, err)
	c := New(srv.URL + "/")
	c.BearerToken = token
	return c, srv.Close
}

func TestCreateAndTransition(t *testing.T) {
	c, done := newClient(t, domain.RoleCAMOPlanning)
	defer done()
	ctx := context.Background()

	valid := true
	r, err := c.CreateRequest(ctx, CreateRequest{
		DonorAircraft:            "9M-XXD",
		DonorHasValidCertificate: &valid,
		RecipientAircraft:        "9M-XBH",
		Reason:                   "AOG",
		WorkOrderNumber:          "WO.4000002",
		Component: ComponentInput{
			Description:  "Starter generator",
			PartNumber:   "23079-002",
			SerialNumber: "SG-778",
			ATAChapter:   "24",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "CR-2025-0001", r.RequestID)
	assert.Equal(t, "Pending SDS", r.Status)
	assert.Equal(t, "Serviceable", r.Component.Status)

	ref, err := c.Upload(ctx, "sds.pdf", "application/pdf", strings.NewReader("%PDF-1.7"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), ref.Size)

	moved, err := c.Transition(ctx, r.RequestID, Transition{
		Target: "Pending AR",
		Payload: map[string]any{
			"sds_reference": "SDS-77",
			"sds_document":  Handle{Handle: ref.Handle},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Pending AR", moved.Status)
	assert.Equal(t, "SDS-77", moved.Documentation.SDS.Reference)

	rc, err := c.Download(ctx, ref.Handle)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(body))

	list, err := c.ListRequests(ctx, ListOptions{Statuses: []string{"Pending AR"}, Search: "sg-778"})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, r.RequestID, list.Items[0].RequestID)

	counts, err := c.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["Pending AR"])

	events, err := c.Events(ctx, r.RequestID, 50, "")
	require.NoError(t, err)
	assert.NotEmpty(t, events.Items)
}

func TestAPIErrorCarriesEnvelope(t *testing.T) {
	c, done := newClient(t, domain.RoleCAMOPlanning)
	defer done()
	ctx := context.Background()

	_, err := c.CreateRequest(ctx, CreateRequest{Reason: "AOG"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "%v", err)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "validation_failed", apiErr.Code)
	assert.Contains(t, apiErr.Details["fields"], "donor_aircraft")

	_, err = c.GetRequest(ctx, "CR-2025-0404")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)
}

func TestCredentials(t *testing.T) {
	c, done := newClient(t, domain.RoleFTAM)
	defer done()
	ctx := context.Background()

	_, err := c.StatusCounts(ctx)
	require.NoError(t, err)

	c.BearerToken = ""
	_, err = c.StatusCounts(ctx)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	c.APIKey = "kiosk"
	_, err = c.StatusCounts(ctx)
	require.NoError(t, err)
}

func TestBaseWithoutPath(t *testing.T) {
	c := New("http://localhost:8080/")
	assert.Equal(t, "http://localhost:8080/v0", c.base())
	c.BasePath = ""
	assert.Equal(t, "http://localhost:8080", c.base())
}
