package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"robline/internal/domain"
)

// Audit event types.
const (
	TypeCreated             = "request.created"
	TypeTransitioned        = "request.transitioned"
	TypeDocumentUpdated     = "request.document.updated"
	TypeSLabelSubmitted     = "request.material_store.s_label_submitted"
	TypeUnserviceableReport = "request.material_store.unserviceable_reported"
)

type EventPayload map[string]any

// Record is an audit event before it is stored.
type Record struct {
	Type      string
	RequestID string
	Actor     domain.Actor
	Payload   EventPayload
}

// Writer appends audit events inside the caller's transaction so they commit
// together with the entity change.
type Writer struct {
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, rec Record) (domain.Event, error) {
	evt, err := w.Encode(rec)
	if err != nil {
		return domain.Event{}, err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO events(ts,type,request_id,actor_name,actor_role,payload_json) VALUES (?,?,?,?,?,?)`,
		evt.TS, evt.Type, nullable(evt.RequestID), evt.ActorName, evt.ActorRole, evt.Payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("insert event: %w", err)
	}
	if evt.ID, err = res.LastInsertId(); err != nil {
		return domain.Event{}, err
	}
	return evt, nil
}

// Encode renders rec as a stored event without an id.
func (w Writer) Encode(rec Record) (domain.Event, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	payload := rec.Payload
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("marshal event payload: %w", err)
	}
	return domain.Event{
		TS:        now().UTC().Format(time.RFC3339Nano),
		Type:      rec.Type,
		RequestID: rec.RequestID,
		ActorName: rec.Actor.Name,
		ActorRole: string(rec.Actor.Role),
		Payload:   string(data),
	}, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
