package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"robline/internal/domain"
)

// Notification is delivered to subscribers after a mutation has committed.
type Notification struct {
	Event   domain.Event          `json:"event"`
	Request domain.RobbingRequest `json:"request"`
}

// Notifier reacts to committed changes. Its failures never undo the change.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Subscriber is a named delivery target with an event type filter.
type Subscriber interface {
	Name() string
	Accepts(eventType string) bool
	Deliver(ctx context.Context, n Notification) error
}

// Dispatcher fans a notification out to every accepting subscriber in
// parallel. A failing subscriber does not cancel the others.
type Dispatcher struct {
	Subscribers []Subscriber
	Log         *zap.SugaredLogger
}

func (d Dispatcher) Notify(ctx context.Context, n Notification) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, sub := range d.Subscribers {
		if !sub.Accepts(n.Event.Type) {
			continue
		}
		g.Go(func() error {
			if err := sub.Deliver(ctx, n); err != nil {
				if d.Log != nil {
					d.Log.Warnw("notification delivery failed", "subscriber", sub.Name(), "event", n.Event.Type, "request_id", n.Event.RequestID, "error", err)
				}
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", sub.Name(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) error { return nil }

// Filter matches event types. An empty filter matches everything; a trailing
// ".*" matches a prefix.
type Filter struct {
	all      bool
	set      map[string]struct{}
	prefixes []string
}

func NewFilter(types []string) Filter {
	f := Filter{set: map[string]struct{}{}}
	for _, t := range types {
		key := strings.TrimSpace(t)
		switch {
		case key == "":
		case key == "*":
			f.all = true
		case strings.HasSuffix(key, ".*"):
			f.prefixes = append(f.prefixes, strings.TrimSuffix(key, "*"))
		default:
			f.set[key] = struct{}{}
		}
	}
	if len(f.set) == 0 && len(f.prefixes) == 0 {
		f.all = true
	}
	return f
}

func (f Filter) Match(eventType string) bool {
	if f.all {
		return true
	}
	if _, ok := f.set[eventType]; ok {
		return true
	}
	for _, p := range f.prefixes {
		if strings.HasPrefix(eventType, p) {
			return true
		}
	}
	return false
}
