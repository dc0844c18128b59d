package repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"robline/internal/domain"
	"robline/internal/events"
)

// Memory is an in-process Store.
type Memory struct {
	mu       sync.RWMutex
	seq      int
	order    []string
	requests map[string]domain.RobbingRequest
	log      []domain.Event
	writer   events.Writer
}

func NewMemory(now func() time.Time) *Memory {
	return &Memory{
		requests: map[string]domain.RobbingRequest{},
		writer:   events.Writer{Now: now},
	}
}

func (m *Memory) Insert(_ context.Context, build BuildFunc, rec events.Record) (domain.RobbingRequest, domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := build(m.seq + 1)
	if err != nil {
		return domain.RobbingRequest{}, domain.Event{}, err
	}
	if err := r.CheckInvariants(); err != nil {
		return domain.RobbingRequest{}, domain.Event{}, err
	}
	if _, exists := m.requests[r.RequestID]; exists {
		return domain.RobbingRequest{}, domain.Event{}, fmt.Errorf("request %s already exists", r.RequestID)
	}
	rec.RequestID = r.RequestID
	evt, err := m.appendEvent(rec)
	if err != nil {
		return domain.RobbingRequest{}, domain.Event{}, err
	}
	m.seq++
	r.Version = 1
	m.requests[r.RequestID] = r.Clone()
	m.order = append(m.order, r.RequestID)
	return r, evt, nil
}

func (m *Memory) Get(_ context.Context, requestID string) (domain.RobbingRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[requestID]
	if !ok {
		return domain.RobbingRequest{}, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *Memory) List(_ context.Context) ([]domain.RobbingRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.RobbingRequest, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.requests[id].Clone())
	}
	return out, nil
}

func (m *Memory) Replace(_ context.Context, next domain.RobbingRequest, expectedVersion int, rec events.Record) (domain.RobbingRequest, domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.requests[next.RequestID]
	if !ok {
		return domain.RobbingRequest{}, domain.Event{}, ErrNotFound
	}
	if prev.Version != expectedVersion {
		return domain.RobbingRequest{}, domain.Event{}, ErrConflict
	}
	if err := checkReplace(prev, next); err != nil {
		return domain.RobbingRequest{}, domain.Event{}, err
	}
	rec.RequestID = next.RequestID
	evt, err := m.appendEvent(rec)
	if err != nil {
		return domain.RobbingRequest{}, domain.Event{}, err
	}
	next.Version = expectedVersion + 1
	m.requests[next.RequestID] = next.Clone()
	return next, evt, nil
}

func (m *Memory) appendEvent(rec events.Record) (domain.Event, error) {
	evt, err := m.writer.Encode(rec)
	if err != nil {
		return domain.Event{}, err
	}
	evt.ID = int64(len(m.log) + 1)
	m.log = append(m.log, evt)
	return evt, nil
}

func (m *Memory) Events(_ context.Context, filter EventFilter) ([]domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Event
	for _, evt := range m.log {
		if evt.ID <= filter.AfterID {
			continue
		}
		if filter.RequestID != "" && evt.RequestID != filter.RequestID {
			continue
		}
		out = append(out, evt)
		if len(out) == filter.limit() {
			break
		}
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
