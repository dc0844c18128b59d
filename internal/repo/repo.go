package repo

import (
	"context"
	"errors"
	"fmt"

	"robline/internal/domain"
	"robline/internal/events"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means the stored version moved on since the caller loaded it.
	ErrConflict = errors.New("version conflict")
)

// BuildFunc produces the request to insert from its creation sequence.
type BuildFunc func(seq int) (domain.RobbingRequest, error)

// Store holds requests and their audit log. Every mutation writes its audit
// event atomically with the entity change.
type Store interface {
	Insert(ctx context.Context, build BuildFunc, rec events.Record) (domain.RobbingRequest, domain.Event, error)
	Get(ctx context.Context, requestID string) (domain.RobbingRequest, error)
	// List returns every request in creation order.
	List(ctx context.Context) ([]domain.RobbingRequest, error)
	Replace(ctx context.Context, next domain.RobbingRequest, expectedVersion int, rec events.Record) (domain.RobbingRequest, domain.Event, error)
	Events(ctx context.Context, filter EventFilter) ([]domain.Event, error)
	Close() error
}

type EventFilter struct {
	RequestID string
	AfterID   int64
	Limit     int
}

const defaultEventLimit = 100

func (f EventFilter) limit() int {
	if f.Limit <= 0 {
		return defaultEventLimit
	}
	return f.Limit
}

// checkReplace guards the aggregate rules a replacement must keep.
func checkReplace(prev, next domain.RobbingRequest) error {
	if err := next.CheckInvariants(); err != nil {
		return err
	}
	if !domain.HistoryExtends(prev.StatusHistory, next.StatusHistory) {
		return fmt.Errorf("request %s: status history must only be appended to", next.RequestID)
	}
	if next.Seq != prev.Seq || !next.CreatedDate.Equal(prev.CreatedDate) {
		return fmt.Errorf("request %s: identity fields are immutable", next.RequestID)
	}
	return nil
}
