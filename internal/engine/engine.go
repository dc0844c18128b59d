package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"robline/internal/catalog"
	"robline/internal/docstore"
	"robline/internal/domain"
	"robline/internal/events"
	"robline/internal/metrics"
	"robline/internal/query"
	"robline/internal/repo"
)

// Engine runs request operations against a store. Mutations on one request
// are serialized and commit together with their audit event; notifications
// go out after the commit.
type Engine struct {
	Store    repo.Store
	Docs     docstore.Store
	Notifier events.Notifier
	Metrics  *metrics.Metrics
	Log      *zap.SugaredLogger
	Now      func() time.Time

	locks  *keyedMutex
	outbox *outbox
}

// notifyTimeout bounds one background delivery.
const notifyTimeout = 30 * time.Second

// Engines built without New share these.
var (
	sharedLocks  = newKeyedMutex()
	sharedOutbox = newOutbox()
)

func New(store repo.Store, docs docstore.Store) Engine {
	return Engine{
		Store:    store,
		Docs:     docs,
		Notifier: events.NopNotifier{},
		Log:      zap.NewNop().Sugar(),
		Now:      time.Now,
		locks:    newKeyedMutex(),
		outbox:   newOutbox(),
	}
}

func (e Engine) lock(requestID string) func() {
	if e.locks == nil {
		return sharedLocks.Lock(requestID)
	}
	return e.locks.Lock(requestID)
}

func (e Engine) queue() *outbox {
	if e.outbox == nil {
		return sharedOutbox
	}
	return e.outbox
}

// Flush waits until notifications queued so far have been delivered or
// have failed.
func (e Engine) Flush() {
	e.queue().wait()
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *zap.SugaredLogger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop().Sugar()
}

// checkActor rejects identities that cannot act as a caller.
func checkActor(actor domain.Actor, action string) error {
	role, err := domain.ParseRole(string(actor.Role))
	if err != nil || role != actor.Role || role == domain.RoleSystem {
		return UnauthorizedError{Action: action, Role: actor.Role}
	}
	return nil
}

// CreateRequest builds, stores and auto-advances a new request.
func (e Engine) CreateRequest(ctx context.Context, actor domain.Actor, in CreateInput) (domain.RobbingRequest, error) {
	start := time.Now()
	defer e.Metrics.Since("create", start)
	if err := checkActor(actor, "create"); err != nil {
		return domain.RobbingRequest{}, e.reject("create", "", actor, err)
	}
	if err := e.resolveDoc(ctx, "extension_approval", &in.ExtensionApproval); err != nil {
		return domain.RobbingRequest{}, e.reject("create", "", actor, err)
	}
	now := e.now()
	// filled by build so the stored event carries the generated values
	payload := events.EventPayload{}
	build := func(seq int) (domain.RobbingRequest, error) {
		r, err := BuildRequest(in, actor, seq, now)
		if err != nil {
			return domain.RobbingRequest{}, err
		}
		payload["status"] = string(r.Status)
		payload["donor_aircraft"] = r.DonorAircraft
		payload["recipient_aircraft"] = r.RecipientAircraft
		payload["priority"] = string(r.Priority)
		payload["part_number"] = r.Component.PartNumber
		payload["serial_number"] = r.Component.SerialNumber
		return r, nil
	}
	r, evt, err := e.Store.Insert(ctx, build, events.Record{Type: events.TypeCreated, Actor: actor, Payload: payload})
	if err != nil {
		return domain.RobbingRequest{}, e.reject("create", "", actor, err)
	}
	e.Metrics.Created()
	e.log().Infow("request created", "request_id", r.RequestID, "status", r.Status, "role", actor.Role)
	e.notify(ctx, evt, r)
	return r, nil
}

// TransitionOptions are the parameters of a status transition.
type TransitionOptions struct {
	RequestID string
	Target    domain.Status
	Payload   TransitionPayload
	Comments  string
}

// Transition moves a request along one catalog edge and applies its side
// effect. On error the stored request is unchanged.
func (e Engine) Transition(ctx context.Context, actor domain.Actor, opts TransitionOptions) (domain.RobbingRequest, error) {
	start := time.Now()
	defer e.Metrics.Since("transition", start)
	if err := checkActor(actor, "transition"); err != nil {
		return domain.RobbingRequest{}, e.reject("transition", opts.RequestID, actor, err)
	}
	if err := e.resolvePayloadDocs(ctx, &opts.Payload); err != nil {
		return domain.RobbingRequest{}, e.reject("transition", opts.RequestID, actor, err)
	}
	var from domain.Status
	r, err := e.mutate(ctx, opts.RequestID, func(cur domain.RobbingRequest) (domain.RobbingRequest, events.Record, error) {
		from = cur.Status
		next, err := Advance(cur, opts.Target, actor, opts.Payload, opts.Comments, e.now())
		if err != nil {
			return domain.RobbingRequest{}, events.Record{}, err
		}
		last, _ := next.LastHistory()
		return next, events.Record{
			Type:  events.TypeTransitioned,
			Actor: actor,
			Payload: events.EventPayload{
				"from":     string(cur.Status),
				"to":       string(next.Status),
				"comments": last.Comments,
			},
		}, nil
	})
	if err != nil {
		return domain.RobbingRequest{}, e.reject("transition", opts.RequestID, actor, err)
	}
	e.Metrics.Transition(string(from), string(r.Status), string(actor.Role))
	e.log().Infow("request transitioned", "request_id", r.RequestID, "from", from, "to", r.Status, "role", actor.Role)
	return r, nil
}

// UpdateDocumentReference edits one documentation slot. Nil arguments leave
// the field unchanged; a document with an empty handle clears it.
func (e Engine) UpdateDocumentReference(ctx context.Context, actor domain.Actor, requestID string, slot domain.DocumentSlot, reference *string, doc *domain.DocumentRef) (domain.RobbingRequest, error) {
	if err := checkActor(actor, "update_document"); err != nil {
		return domain.RobbingRequest{}, e.reject("update_document", requestID, actor, err)
	}
	if doc != nil && doc.Handle != "" {
		if err := e.resolveDoc(ctx, string(slot), &doc); err != nil {
			return domain.RobbingRequest{}, e.reject("update_document", requestID, actor, err)
		}
	}
	r, err := e.mutate(ctx, requestID, func(cur domain.RobbingRequest) (domain.RobbingRequest, events.Record, error) {
		next, err := UpdateDocument(cur, slot, reference, doc)
		if err != nil {
			return domain.RobbingRequest{}, events.Record{}, err
		}
		entry := next.Documentation.Slot(slot)
		payload := events.EventPayload{"slot": string(slot), "reference": entry.Reference}
		if entry.Document.Present() {
			payload["handle"] = entry.Document.Handle
		}
		return next, events.Record{Type: events.TypeDocumentUpdated, Actor: actor, Payload: payload}, nil
	})
	if err != nil {
		return domain.RobbingRequest{}, e.reject("update_document", requestID, actor, err)
	}
	e.log().Infow("document updated", "request_id", r.RequestID, "slot", slot, "role", actor.Role)
	return r, nil
}

// MaterialStoreAction runs a Material Store side action on a removed
// component.
func (e Engine) MaterialStoreAction(ctx context.Context, actor domain.Actor, requestID string, action MaterialStoreAction, p MaterialStorePayload) (domain.RobbingRequest, error) {
	start := time.Now()
	defer e.Metrics.Since("material_store", start)
	if err := e.resolveDoc(ctx, "document", &p.Document); err != nil {
		return domain.RobbingRequest{}, e.reject(string(action), requestID, actor, err)
	}
	r, err := e.mutate(ctx, requestID, func(cur domain.RobbingRequest) (domain.RobbingRequest, events.Record, error) {
		next, err := ApplyMaterialStoreAction(cur, action, actor, p, e.now())
		if err != nil {
			return domain.RobbingRequest{}, events.Record{}, err
		}
		payload := events.EventPayload{"component_status": string(next.Component.Status)}
		typ := events.TypeSLabelSubmitted
		if action == ActionReportUnserviceable {
			typ = events.TypeUnserviceableReport
			payload["reason"] = strings.TrimSpace(p.Reason)
		} else {
			payload["reference"] = next.Documentation.SLabel.Reference
		}
		return next, events.Record{Type: typ, Actor: actor, Payload: payload}, nil
	})
	if err != nil {
		return domain.RobbingRequest{}, e.reject(string(action), requestID, actor, err)
	}
	e.log().Infow("material store action", "request_id", r.RequestID, "action", action, "component_status", r.Component.Status)
	return r, nil
}

type mutation func(cur domain.RobbingRequest) (domain.RobbingRequest, events.Record, error)

// mutate loads, changes and replaces one request under its lock.
func (e Engine) mutate(ctx context.Context, requestID string, fn mutation) (domain.RobbingRequest, error) {
	unlock := e.lock(requestID)
	defer unlock()
	cur, err := e.Store.Get(ctx, requestID)
	if err != nil {
		return domain.RobbingRequest{}, err
	}
	next, rec, err := fn(cur)
	if err != nil {
		return domain.RobbingRequest{}, err
	}
	stored, evt, err := e.Store.Replace(ctx, next, cur.Version, rec)
	if err != nil {
		return domain.RobbingRequest{}, err
	}
	// queued under the lock so one request's notifications keep commit order
	e.notify(ctx, evt, stored)
	return stored, nil
}

func (e Engine) reject(op, requestID string, actor domain.Actor, err error) error {
	kind := ErrorKind(err)
	e.Metrics.Rejected(kind)
	if kind == KindInternal {
		e.log().Errorw("operation failed", "op", op, "request_id", requestID, "role", actor.Role, "error", err)
	} else {
		e.log().Infow("operation rejected", "op", op, "request_id", requestID, "role", actor.Role, "kind", kind, "error", err)
	}
	return err
}

// notify queues delivery of a committed change. Delivery runs in the
// background on a context detached from the caller's cancellation.
func (e Engine) notify(ctx context.Context, evt domain.Event, r domain.RobbingRequest) {
	if e.Notifier == nil {
		return
	}
	n := events.Notification{Event: evt, Request: r}
	notifier, log := e.Notifier, e.log()
	detached := context.WithoutCancel(ctx)
	e.queue().push(func() {
		ctx, cancel := context.WithTimeout(detached, notifyTimeout)
		defer cancel()
		if err := notifier.Notify(ctx, n); err != nil {
			log.Warnw("notification failed", "request_id", r.RequestID, "event", evt.Type, "error", err)
		}
	})
}

// resolveDoc fills name, size and content type of a referenced document
// from the document store. Refs without a handle are left for the side
// effects to judge.
func (e Engine) resolveDoc(ctx context.Context, field string, doc **domain.DocumentRef) error {
	if e.Docs == nil || *doc == nil || strings.TrimSpace((*doc).Handle) == "" {
		return nil
	}
	stored, err := e.Docs.Head(ctx, (*doc).Handle)
	if errors.Is(err, docstore.ErrNotFound) {
		return ValidationError{Problems: []FieldProblem{{Field: field, Message: fmt.Sprintf("unknown document handle %q", (*doc).Handle)}}}
	}
	if err != nil {
		return fmt.Errorf("lookup document %s: %w", (*doc).Handle, err)
	}
	*doc = &stored
	return nil
}

func (e Engine) resolvePayloadDocs(ctx context.Context, p *TransitionPayload) error {
	for field, doc := range map[string]**domain.DocumentRef{
		"approval_document":    &p.ApprovalDocument,
		"sds_document":         &p.SDSDocument,
		"ar_document":          &p.ARDocument,
		"caam_form_1_document": &p.CAAMForm1Document,
		"s_label_document":     &p.SLabelDocument,
		"supporting_evidence":  &p.SupportingEvidence,
		"completion_evidence":  &p.CompletionEvidence,
	} {
		if err := e.resolveDoc(ctx, field, doc); err != nil {
			return err
		}
	}
	return nil
}

// UploadDocument stores raw bytes and returns the reference to attach to a
// request.
func (e Engine) UploadDocument(ctx context.Context, name, contentType string, r io.Reader) (domain.DocumentRef, error) {
	if e.Docs == nil {
		return domain.DocumentRef{}, errors.New("document storage not configured")
	}
	if strings.TrimSpace(name) == "" {
		return domain.DocumentRef{}, ValidationError{Problems: []FieldProblem{{Field: "name", Message: "required"}}}
	}
	ref, err := e.Docs.Put(ctx, name, contentType, r)
	if err != nil {
		return domain.DocumentRef{}, fmt.Errorf("store document: %w", err)
	}
	e.log().Infow("document stored", "handle", ref.Handle, "size", ref.Size, "driver", e.Docs.Driver())
	return ref, nil
}

// OpenDocument returns the stored bytes of handle. The caller closes the
// reader.
func (e Engine) OpenDocument(ctx context.Context, handle string) (domain.DocumentRef, io.ReadCloser, error) {
	if e.Docs == nil {
		return domain.DocumentRef{}, nil, errors.New("document storage not configured")
	}
	return e.Docs.Get(ctx, handle)
}

func (e Engine) GetRequest(ctx context.Context, requestID string) (domain.RobbingRequest, error) {
	return e.Store.Get(ctx, requestID)
}

// ListOptions extend the query options with an optional grouping.
type ListOptions struct {
	query.Options
	Group query.GroupKey
}

type ListResult struct {
	Requests []domain.RobbingRequest
	Groups   []query.Group
}

func (e Engine) ListRequests(ctx context.Context, opts ListOptions) (ListResult, error) {
	all, err := e.Store.List(ctx)
	if err != nil {
		return ListResult{}, err
	}
	res := ListResult{Requests: query.Apply(all, opts.Options)}
	if opts.Group != "" {
		res.Groups = query.GroupBy(res.Requests, opts.Group)
	}
	return res, nil
}

// StatusCounts counts all stored requests per status and refreshes the
// status gauge.
func (e Engine) StatusCounts(ctx context.Context) (map[domain.Status]int, error) {
	all, err := e.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	counts := query.StatusCounts(all)
	gauge := make(map[string]int, len(counts))
	for s, n := range counts {
		gauge[string(s)] = n
	}
	e.Metrics.StatusCounts(gauge)
	return counts, nil
}

// AvailableActions lists the edges role may take from the request's current
// status.
func (e Engine) AvailableActions(ctx context.Context, requestID string, role domain.Role) ([]catalog.Transition, error) {
	r, err := e.Store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return AvailableActions(r, role), nil
}

func (e Engine) Events(ctx context.Context, filter repo.EventFilter) ([]domain.Event, error) {
	return e.Store.Events(ctx, filter)
}
