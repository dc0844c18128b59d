package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"robline/internal/docstore"
	"robline/internal/domain"
	"robline/internal/engine"
	"robline/internal/engine/auth"
	"robline/internal/metrics"
	"robline/internal/query"
	"robline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Metrics  *metrics.Metrics
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"illegal_transition"`
	Message string         `json:"message" example:"illegal transition Pending SDS -> Completed"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"from\":\"Pending SDS\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Robline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// schema errors are 400; 422 is reserved for lifecycle data rules
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Robline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	router.Handle("/metrics", cfg.Metrics.Handler())
	registerDocs(router, basePath)
	registerHealth(group)
	registerCatalog(group)
	registerRequests(group, cfg.Engine)
	registerTransitions(group, cfg.Engine)
	registerDocuments(group, router, basePath, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerMe(group)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fre auth.ForbiddenRoleError
	if errors.As(err, &fre) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"role": fre.Role})
	}
	if errors.Is(err, docstore.ErrNotFound) {
		return newAPIError(http.StatusNotFound, engine.KindNotFound, err.Error(), nil)
	}
	msg := err.Error()
	switch kind := engine.ErrorKind(err); kind {
	case engine.KindValidation:
		var ve engine.ValidationError
		errors.As(err, &ve)
		return newAPIError(http.StatusBadRequest, kind, msg, map[string]any{
			"fields":   ve.Fields(),
			"problems": ve.Problems,
		})
	case engine.KindUnauthorizedTransition:
		var ute engine.UnauthorizedTransitionError
		errors.As(err, &ute)
		return newAPIError(http.StatusForbidden, kind, msg, map[string]any{"from": ute.From, "to": ute.To, "role": ute.Role})
	case engine.KindUnauthorized:
		var ue engine.UnauthorizedError
		errors.As(err, &ue)
		return newAPIError(http.StatusForbidden, kind, msg, map[string]any{"action": ue.Action, "role": ue.Role})
	case engine.KindIllegalTransition:
		var ite engine.IllegalTransitionError
		errors.As(err, &ite)
		return newAPIError(http.StatusConflict, kind, msg, map[string]any{"from": ite.From, "to": ite.To})
	case engine.KindPreconditionFailed:
		var pfe engine.PreconditionFailedError
		errors.As(err, &pfe)
		return newAPIError(http.StatusConflict, kind, msg, map[string]any{"status": pfe.Status, "required": pfe.Required})
	case engine.KindMissingRequiredData:
		var mrd engine.MissingRequiredDataError
		errors.As(err, &mrd)
		return newAPIError(http.StatusUnprocessableEntity, kind, msg, map[string]any{"target": mrd.Target, "fields": mrd.Fields})
	case engine.KindInvalidDate:
		var ide engine.InvalidDateError
		errors.As(err, &ide)
		return newAPIError(http.StatusUnprocessableEntity, kind, msg, map[string]any{"field": ide.Field})
	case engine.KindNotFound:
		return newAPIError(http.StatusNotFound, kind, msg, nil)
	case engine.KindConflict:
		return newAPIError(http.StatusConflict, kind, msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func badRequest(msg string, details map[string]any) huma.StatusError {
	return newAPIError(http.StatusBadRequest, "bad_request", msg, details)
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Robline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerCatalog(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-statuses",
		Method:      http.MethodGet,
		Path:        "/statuses",
		Summary:     "Status catalog with descriptions and transitions",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body CatalogResponse `json:"body"`
	}, error) {
		return &struct {
			Body CatalogResponse `json:"body"`
		}{Body: catalogResponse()}, nil
	})
}

type requestPath struct {
	ID string `path:"id" example:"CR-2025-0001"`
}

func registerRequests(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-requests",
		Method:      http.MethodGet,
		Path:        "/requests",
		Summary:     "List, filter, search, sort and group requests",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status    []string `query:"status" doc:"Statuses to keep; empty keeps all"`
		Search    string   `query:"search"`
		Sort      string   `query:"sort" doc:"request_id, created_date, target_date, donor_aircraft, ..."`
		Direction string   `query:"direction" enum:"asc,desc"`
		Group     string   `query:"group" enum:"donor_aircraft,recipient_aircraft,component,request"`
	}) (*struct {
		Body ListRequestsResponse `json:"body"`
	}, error) {
		opts, apiErr := listOptions(input.Status, input.Search, input.Sort, input.Direction, input.Group)
		if apiErr != nil {
			return nil, apiErr
		}
		res, err := e.ListRequests(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		body := ListRequestsResponse{Items: query.Views(res.Requests), Total: len(res.Requests)}
		if opts.Group != "" {
			body.Groups = query.GroupViews(res.Groups)
		}
		return &struct {
			Body ListRequestsResponse `json:"body"`
		}{Body: body}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-request",
		Method:      http.MethodGet,
		Path:        "/requests/{id}",
		Summary:     "Get a request",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *requestPath) (*struct {
		Body domain.RobbingRequest `json:"body"`
	}, error) {
		r, err := e.GetRequest(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.RobbingRequest `json:"body"`
		}{Body: r}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "status-counts",
		Method:      http.MethodGet,
		Path:        "/status-counts",
		Summary:     "Number of requests per status",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body StatusCountsResponse `json:"body"`
	}, error) {
		counts, err := e.StatusCounts(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		return &struct {
			Body StatusCountsResponse `json:"body"`
		}{Body: StatusCountsResponse{Counts: counts, Total: total}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "available-actions",
		Method:      http.MethodGet,
		Path:        "/requests/{id}/actions",
		Summary:     "Transitions the caller's role may take",
		Errors:      []int{http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *requestPath) (*struct {
		Body ActionsResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		r, err := e.GetRequest(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		actions, err := e.AvailableActions(ctx, input.ID, actor.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActionsResponse `json:"body"`
		}{Body: ActionsResponse{RequestID: r.RequestID, Status: r.Status, Role: actor.Role, Actions: nonNilSlice(actions)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-request",
		Method:        http.MethodPost,
		Path:          "/requests",
		Summary:       "Create a robbing request",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateRequestRequest `json:"body"`
	}) (*struct {
		Body domain.RobbingRequest `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, badRequest("body required", nil)
		}
		r, err := e.CreateRequest(ctx, actor, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.RobbingRequest `json:"body"`
		}{Body: r}, nil
	})
}

func registerTransitions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "transition-request",
		Method:      http.MethodPost,
		Path:        "/requests/{id}/transitions",
		Summary:     "Move a request to a new status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id" example:"CR-2025-0001"`
		Body TransitionRequest `json:"body"`
	}) (*struct {
		Body domain.RobbingRequest `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		target, err := domain.ParseStatus(input.Body.Target)
		if err != nil {
			return nil, badRequest(err.Error(), map[string]any{"target": input.Body.Target})
		}
		r, err := e.Transition(ctx, actor, engine.TransitionOptions{
			RequestID: input.ID,
			Target:    target,
			Payload:   input.Body.Payload.payload(),
			Comments:  input.Body.Comments,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.RobbingRequest `json:"body"`
		}{Body: r}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-document",
		Method:      http.MethodPut,
		Path:        "/requests/{id}/documents/{slot}",
		Summary:     "Update a document reference without changing status",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id" example:"CR-2025-0001"`
		Slot string                `path:"slot" example:"sds"`
		Body UpdateDocumentRequest `json:"body"`
	}) (*struct {
		Body domain.RobbingRequest `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		slot, err := domain.ParseSlot(input.Slot)
		if err != nil {
			return nil, badRequest(err.Error(), map[string]any{"slot": input.Slot})
		}
		r, err := e.UpdateDocumentReference(ctx, actor, input.ID, slot, input.Body.Reference, input.Body.Document.ref())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.RobbingRequest `json:"body"`
		}{Body: r}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "material-store-action",
		Method:      http.MethodPost,
		Path:        "/requests/{id}/material-store",
		Summary:     "Submit an S-label or report a component unserviceable",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id" example:"CR-2025-0001"`
		Body MaterialStoreRequest `json:"body"`
	}) (*struct {
		Body domain.RobbingRequest `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		action, err := engine.ParseMaterialStoreAction(input.Body.Action)
		if err != nil {
			return nil, badRequest(err.Error(), map[string]any{"action": input.Body.Action})
		}
		r, err := e.MaterialStoreAction(ctx, actor, input.ID, action, engine.MaterialStorePayload{
			Reference: input.Body.Reference,
			Document:  input.Body.Document.ref(),
			Reason:    input.Body.Reason,
			Notes:     input.Body.Notes,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.RobbingRequest `json:"body"`
		}{Body: r}, nil
	})
}

func registerDocuments(api huma.API, router chi.Router, basePath string, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "upload-document",
		Method:        http.MethodPost,
		Path:          "/documents",
		Summary:       "Store a document and return its handle",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Name        string `query:"name" required:"true" example:"sds-9M-XXD.pdf"`
		ContentType string `header:"Content-Type"`
		RawBody     []byte
	}) (*struct {
		Body domain.DocumentRef `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if len(input.RawBody) == 0 {
			return nil, badRequest("body required", nil)
		}
		ref, err := e.UploadDocument(ctx, input.Name, input.ContentType, bytes.NewReader(input.RawBody))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.DocumentRef `json:"body"`
		}{Body: ref}, nil
	})

	// handles contain slashes, which huma path params cannot carry
	router.Get(path.Join(basePath, "documents")+"/*", func(w http.ResponseWriter, r *http.Request) {
		handle := chi.URLParam(r, "*")
		ref, rc, err := e.OpenDocument(r.Context(), handle)
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		defer rc.Close()
		if ref.ContentType != "" {
			w.Header().Set("Content-Type", ref.ContentType)
		}
		if ref.Name != "" {
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ref.Name))
		}
		if ref.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(ref.Size, 10))
		}
		_, _ = io.Copy(w, rc)
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Audit log, oldest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		RequestID string `query:"request_id"`
		Limit     int    `query:"limit" default:"50"`
		Cursor    string `query:"cursor" doc:"Return events after this id"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, badRequest("invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Events(ctx, repo.EventFilter{RequestID: input.RequestID, AfterID: cursorID, Limit: limit + 1})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current caller",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			Name:       p.Actor.Name,
			Role:       p.Actor.Role,
			Department: p.Actor.Department,
			Source:     p.Source,
		}}, nil
	})
}

func listOptions(statuses []string, search, sort, direction, group string) (engine.ListOptions, huma.StatusError) {
	var opts engine.ListOptions
	for _, raw := range statuses {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			s, err := domain.ParseStatus(part)
			if err != nil {
				return opts, badRequest(err.Error(), map[string]any{"status": part})
			}
			opts.Statuses = append(opts.Statuses, s)
		}
	}
	opts.Search = search
	if sort != "" {
		field, err := query.ParseSortField(sort)
		if err != nil {
			return opts, badRequest(err.Error(), map[string]any{"sort": sort})
		}
		opts.SortField = field
	}
	dir, err := query.ParseDirection(direction)
	if err != nil {
		return opts, badRequest(err.Error(), map[string]any{"direction": direction})
	}
	opts.Direction = dir
	if group != "" {
		key, err := query.ParseGroupKey(group)
		if err != nil {
			return opts, badRequest(err.Error(), map[string]any{"group": group})
		}
		opts.Group = key
	}
	return opts, nil
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
