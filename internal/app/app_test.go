package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robline/internal/app"
	"robline/internal/config"
	"robline/internal/domain"
	"robline/internal/engine"
)

func createInput() engine.CreateInput {
	valid := true
	return engine.CreateInput{
		DonorAircraft:            "9M-XXD",
		RecipientAircraft:        "9M-XBH",
		DonorHasValidCertificate: &valid,
		Reason:                   "AOG",
		WorkOrderNumber:          "WO.4000001",
		Component:                engine.ComponentInput{Description: "APU", PartNumber: "3800454-6", SerialNumber: "SN-100001", ATAChapter: "49"},
	}
}

func TestOpenSQLiteWorkspace(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	ctx := context.Background()
	now := func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }

	a, err := app.Open(ctx, cfg, nil, app.Options{Workspace: dir, Now: now})
	require.NoError(t, err)
	actor := domain.Actor{Name: "Aina", Role: domain.RoleCAMOPlanning}
	r, err := a.Engine.CreateRequest(ctx, actor, createInput())
	require.NoError(t, err)
	assert.Equal(t, "CR-2025-0001", r.RequestID)

	ref, err := a.Engine.UploadDocument(ctx, "sds.pdf", "application/pdf", strings.NewReader("pdf"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, ".robline", "documents"))
	require.NoError(t, err)
	require.NoError(t, a.Close())

	// state survives reopening the workspace
	b, err := app.Open(ctx, cfg, nil, app.Options{Workspace: dir, Now: now})
	require.NoError(t, err)
	defer b.Close()
	got, err := b.Engine.GetRequest(ctx, r.RequestID)
	require.NoError(t, err)
	assert.Equal(t, r.StatusHistory, got.StatusHistory)
	_, err = b.Engine.Docs.Head(ctx, ref.Handle)
	assert.NoError(t, err)
}

func TestOpenWiresWebhooks(t *testing.T) {
	var (
		mu    sync.Mutex
		types []string
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Type string `json:"type"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		types = append(types, body.Type)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	cfg := config.Default()
	cfg.Store.Driver = "memory"
	cfg.Documents.Driver = "memory"
	cfg.Notifications.Webhooks = []config.Webhook{{URL: hook.URL, Events: []string{"request.created"}}}
	require.NoError(t, cfg.Validate())

	a, err := app.Open(context.Background(), cfg, nil, app.Options{})
	require.NoError(t, err)
	defer a.Close()
	_, err = a.Engine.CreateRequest(context.Background(), domain.Actor{Name: "Aina", Role: domain.RoleCAMOPlanning}, createInput())
	require.NoError(t, err)
	a.Engine.Flush()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"request.created"}, types)
}

func TestOpenRejectsUnknownStore(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = "postgres"
	_, err := app.Open(context.Background(), cfg, nil, app.Options{Workspace: t.TempDir()})
	assert.Error(t, err)
}
