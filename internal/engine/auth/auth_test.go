package auth_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robline/internal/domain"
	"robline/internal/engine/auth"
)

func TestResolveRole(t *testing.T) {
	role, err := auth.ResolveRole("material store")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleMaterialStore, role)

	for _, raw := range []string{"System", "pilot", ""} {
		_, err := auth.ResolveRole(raw)
		var fe auth.ForbiddenRoleError
		assert.True(t, errors.As(err, &fe), raw)
	}
}

func TestIdentityDefaultsDepartment(t *testing.T) {
	a, err := auth.Identity(" Mei ", "Material Store", "")
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{Name: "Mei", Role: domain.RoleMaterialStore, Department: "Material Store"}, a)

	_, err = auth.Identity("", "FTAM", "")
	assert.Error(t, err)
}

func TestAPIKeys(t *testing.T) {
	r := auth.Resolver{APIKeys: []auth.APIKey{
		{Name: "hangar-kiosk", Role: "AMO 145", Hash: auth.HashAPIKey("s3cret")},
		{Name: "robot", Role: "System", Hash: auth.HashAPIKey("robot")},
	}}
	a, err := r.FromAPIKey("s3cret")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAMO145, a.Role)

	_, err = r.FromAPIKey("wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = r.FromAPIKey("robot")
	var fe auth.ForbiddenRoleError
	assert.ErrorAs(t, err, &fe)
}

func TestTokenRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	actor := domain.Actor{Name: "Faris", Role: domain.RoleFTAM, Department: "Flight Technical"}
	token, err := auth.IssueToken("k", actor, time.Hour, now)
	require.NoError(t, err)

	r := auth.Resolver{JWTSecret: "k", Now: func() time.Time { return now.Add(30 * time.Minute) }}
	got, err := r.FromToken(token)
	require.NoError(t, err)
	assert.Equal(t, actor, got)

	expired := auth.Resolver{JWTSecret: "k", Now: func() time.Time { return now.Add(2 * time.Hour) }}
	_, err = expired.FromToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	other := auth.Resolver{JWTSecret: "other", Now: r.Now}
	_, err = other.FromToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = auth.IssueToken("k", domain.SystemActor, time.Hour, now)
	assert.Error(t, err)
}
