package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"robline/internal/domain"
	"robline/internal/events"
)

// SQLite stores each request as a JSON document next to the columns used for
// lookups and optimistic locking.
type SQLite struct {
	DB     *sql.DB
	Writer events.Writer
	Now    func() time.Time
}

func NewSQLite(db *sql.DB, now func() time.Time) *SQLite {
	return &SQLite{DB: db, Writer: events.Writer{Now: now}, Now: now}
}

func (s *SQLite) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SQLite) Insert(ctx context.Context, build BuildFunc, rec events.Record) (domain.RobbingRequest, domain.Event, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.RobbingRequest{}, domain.Event{}, err
	}
	defer tx.Rollback()

	var maxSeq int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq),0) FROM requests`).Scan(&maxSeq); err != nil {
		return domain.RobbingRequest{}, domain.Event{}, fmt.Errorf("read sequence: %w", err)
	}
	r, err := build(maxSeq + 1)
	if err != nil {
		return domain.RobbingRequest{}, domain.Event{}, err
	}
	if err := r.CheckInvariants(); err != nil {
		return domain.RobbingRequest{}, domain.Event{}, err
	}
	r.Version = 1
	data, err := json.Marshal(r)
	if err != nil {
		return domain.RobbingRequest{}, domain.Event{}, fmt.Errorf("marshal request: %w", err)
	}
	ts := s.now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `INSERT INTO requests(request_id,seq,status,version,donor_aircraft,recipient_aircraft,created_at,updated_at,payload_json) VALUES (?,?,?,?,?,?,?,?,?)`,
		r.RequestID, r.Seq, string(r.Status), r.Version, r.DonorAircraft, r.RecipientAircraft,
		r.CreatedDate.UTC().Format(time.RFC3339Nano), ts, string(data)); err != nil {
		return domain.RobbingRequest{}, domain.Event{}, fmt.Errorf("insert request: %w", err)
	}
	rec.RequestID = r.RequestID
	evt, err := s.Writer.Append(ctx, tx, rec)
	if err != nil {
		return domain.RobbingRequest{}, domain.Event{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.RobbingRequest{}, domain.Event{}, err
	}
	return r, evt, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (domain.RobbingRequest, error) {
	var (
		r       domain.RobbingRequest
		seq     int
		version int
		payload string
	)
	if err := row.Scan(&seq, &version, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, ErrNotFound
		}
		return r, err
	}
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return r, fmt.Errorf("decode request: %w", err)
	}
	r.Seq = seq
	r.Version = version
	return r, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRequest(ctx context.Context, q querier, requestID string) (domain.RobbingRequest, error) {
	return scanRequest(q.QueryRowContext(ctx, `SELECT seq,version,payload_json FROM requests WHERE request_id=?`, requestID))
}

func (s *SQLite) Get(ctx context.Context, requestID string) (domain.RobbingRequest, error) {
	return getRequest(ctx, s.DB, requestID)
}

func (s *SQLite) List(ctx context.Context) ([]domain.RobbingRequest, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT seq,version,payload_json FROM requests ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.RobbingRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) Replace(ctx context.Context, next domain.RobbingRequest, expectedVersion int, rec events.Record) (domain.RobbingRequest, domain.Event, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.RobbingRequest{}, domain.Event{}, err
	}
	defer tx.Rollback()

	prev, err := getRequest(ctx, tx, next.RequestID)
	if err != nil {
		return domain.RobbingRequest{}, domain.Event{}, err
	}
	if prev.Version != expectedVersion {
		return domain.RobbingRequest{}, domain.Event{}, ErrConflict
	}
	if err := checkReplace(prev, next); err != nil {
		return domain.RobbingRequest{}, domain.Event{}, err
	}
	next.Version = expectedVersion + 1
	data, err := json.Marshal(next)
	if err != nil {
		return domain.RobbingRequest{}, domain.Event{}, fmt.Errorf("marshal request: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE requests SET status=?, version=?, updated_at=?, payload_json=? WHERE request_id=? AND version=?`,
		string(next.Status), next.Version, s.now().UTC().Format(time.RFC3339Nano), string(data), next.RequestID, expectedVersion)
	if err != nil {
		return domain.RobbingRequest{}, domain.Event{}, fmt.Errorf("update request: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return domain.RobbingRequest{}, domain.Event{}, err
	} else if n == 0 {
		return domain.RobbingRequest{}, domain.Event{}, ErrConflict
	}
	rec.RequestID = next.RequestID
	evt, err := s.Writer.Append(ctx, tx, rec)
	if err != nil {
		return domain.RobbingRequest{}, domain.Event{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.RobbingRequest{}, domain.Event{}, err
	}
	return next, evt, nil
}

func (s *SQLite) Events(ctx context.Context, filter EventFilter) ([]domain.Event, error) {
	query := `SELECT id,ts,type,COALESCE(request_id,''),actor_name,actor_role,payload_json FROM events WHERE id>?`
	args := []any{filter.AfterID}
	if filter.RequestID != "" {
		query += ` AND request_id=?`
		args = append(args, filter.RequestID)
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, filter.limit())
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var evt domain.Event
		if err := rows.Scan(&evt.ID, &evt.TS, &evt.Type, &evt.RequestID, &evt.ActorName, &evt.ActorRole, &evt.Payload); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error { return s.DB.Close() }
