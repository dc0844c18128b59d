package roblinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Robline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

type DocumentRef struct {
	Handle      string `json:"handle"`
	Name        string `json:"name,omitempty"`
	Size        int64  `json:"size,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

type HistoryEntry struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	ActingUser string    `json:"acting_user"`
	ActingRole string    `json:"acting_role"`
	Comments   string    `json:"comments,omitempty"`
}

type Component struct {
	Description      string `json:"description"`
	PartNumber       string `json:"part_number"`
	SerialNumber     string `json:"serial_number"`
	ATAChapter       string `json:"ata_chapter"`
	Status           string `json:"status"`
	PhysicalLocation string `json:"physical_location"`
}

type DocumentEntry struct {
	Reference string       `json:"reference,omitempty"`
	Document  *DocumentRef `json:"document,omitempty"`
}

// Request represents the API request model (partial).
type Request struct {
	RequestID         string         `json:"request_id"`
	Version           int            `json:"version"`
	Status            string         `json:"status"`
	StatusHistory     []HistoryEntry `json:"status_history"`
	CreatedDate       time.Time      `json:"created_date"`
	DonorAircraft     string         `json:"donor_aircraft"`
	RecipientAircraft string         `json:"recipient_aircraft"`
	Priority          string         `json:"priority"`
	WorkOrderNumber   string         `json:"work_order_number"`
	Component         Component      `json:"component"`
	Documentation     struct {
		SDS                   DocumentEntry `json:"sds"`
		AcceptanceReport      DocumentEntry `json:"acceptance_report"`
		CAAMForm1             DocumentEntry `json:"caam_form_1"`
		SLabel                DocumentEntry `json:"s_label"`
		NormalizationEvidence DocumentEntry `json:"normalization_evidence"`
		ExtensionApproval     DocumentEntry `json:"extension_approval"`
	} `json:"documentation"`
	Normalization struct {
		TargetDate           *time.Time `json:"target_date,omitempty"`
		ActualCompletionDate *time.Time `json:"actual_completion_date,omitempty"`
		CompletionWorkOrder  string     `json:"completion_work_order,omitempty"`
	} `json:"normalization"`
}

// CreateRequest mirrors POST /requests.
type CreateRequest struct {
	DonorAircraft            string         `json:"donor_aircraft,omitempty"`
	DonorHasValidCertificate *bool          `json:"donor_has_valid_certificate,omitempty"`
	RecipientAircraft        string         `json:"recipient_aircraft,omitempty"`
	Reason                   string         `json:"reason,omitempty"`
	Priority                 string         `json:"priority,omitempty"`
	WorkOrderNumber          string         `json:"work_order_number,omitempty"`
	Component                ComponentInput `json:"component"`
}

type ComponentInput struct {
	Description  string `json:"description,omitempty"`
	PartNumber   string `json:"part_number,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	ATAChapter   string `json:"ata_chapter,omitempty"`
}

// Handle is a document reference in request bodies.
type Handle struct {
	Handle string `json:"handle"`
}

// Transition mirrors POST /requests/{id}/transitions. Payload keys follow the
// API field names, e.g. sds_reference or target_date.
type Transition struct {
	Target   string         `json:"target"`
	Comments string         `json:"comments,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
}

type MaterialStoreAction struct {
	Action    string  `json:"action"`
	Reference string  `json:"reference,omitempty"`
	Document  *Handle `json:"document,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	Notes     string  `json:"notes,omitempty"`
}

// RequestView is one row of a request listing.
type RequestView struct {
	RequestID         string     `json:"request_id"`
	Status            string     `json:"status"`
	StatusDescription string     `json:"status_description"`
	DonorAircraft     string     `json:"donor_aircraft"`
	RecipientAircraft string     `json:"recipient_aircraft"`
	Priority          string     `json:"priority"`
	PartNumber        string     `json:"part_number"`
	SerialNumber      string     `json:"serial_number"`
	TargetDate        *time.Time `json:"target_date,omitempty"`
}

type RequestList struct {
	Items  []RequestView `json:"items"`
	Groups []struct {
		Label    string        `json:"label"`
		Requests []RequestView `json:"requests"`
	} `json:"groups,omitempty"`
	Total int `json:"total"`
}

// ListOptions filter GET /requests. Zero values are omitted.
type ListOptions struct {
	Statuses  []string
	Search    string
	Sort      string
	Direction string
	Group     string
}

type Action struct {
	Status      string   `json:"status"`
	Roles       []string `json:"roles"`
	Label       string   `json:"label"`
	Description string   `json:"description,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID        int64          `json:"id"`
	TS        string         `json:"ts"`
	Type      string         `json:"type"`
	RequestID string         `json:"request_id"`
	ActorName string         `json:"actor_name"`
	ActorRole string         `json:"actor_role"`
	Payload   map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) CreateRequest(ctx context.Context, in CreateRequest) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodPost, "requests", in, &resp)
	return resp, err
}

func (c *Client) GetRequest(ctx context.Context, id string) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodGet, "requests/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) ListRequests(ctx context.Context, opts ListOptions) (RequestList, error) {
	q := url.Values{}
	if len(opts.Statuses) > 0 {
		q.Set("status", strings.Join(opts.Statuses, ","))
	}
	for k, v := range map[string]string{"search": opts.Search, "sort": opts.Sort, "direction": opts.Direction, "group": opts.Group} {
		if v != "" {
			q.Set(k, v)
		}
	}
	endpoint := "requests"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp RequestList
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Transition moves a request to t.Target.
func (c *Client) Transition(ctx context.Context, id string, t Transition) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodPost, "requests/"+url.PathEscape(id)+"/transitions", t, &resp)
	return resp, err
}

// Actions lists the transitions the caller's role may take.
func (c *Client) Actions(ctx context.Context, id string) ([]Action, error) {
	var resp struct {
		Actions []Action `json:"actions"`
	}
	err := c.do(ctx, http.MethodGet, "requests/"+url.PathEscape(id)+"/actions", nil, &resp)
	return resp.Actions, err
}

func (c *Client) UpdateDocument(ctx context.Context, id, slot string, reference *string, doc *Handle) (Request, error) {
	body := map[string]any{}
	if reference != nil {
		body["reference"] = *reference
	}
	if doc != nil {
		body["document"] = doc
	}
	var resp Request
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("requests/%s/documents/%s", url.PathEscape(id), url.PathEscape(slot)), body, &resp)
	return resp, err
}

func (c *Client) MaterialStore(ctx context.Context, id string, a MaterialStoreAction) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodPost, "requests/"+url.PathEscape(id)+"/material-store", a, &resp)
	return resp, err
}

// StatusCounts returns the number of requests per status.
func (c *Client) StatusCounts(ctx context.Context) (map[string]int, error) {
	var resp struct {
		Counts map[string]int `json:"counts"`
	}
	err := c.do(ctx, http.MethodGet, "status-counts", nil, &resp)
	return resp.Counts, err
}

// Upload stores r as a document and returns its reference.
func (c *Client) Upload(ctx context.Context, name, contentType string, r io.Reader) (DocumentRef, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "documents?name="+url.QueryEscape(name), r)
	if err != nil {
		return DocumentRef{}, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	var resp DocumentRef
	err = c.send(req, &resp)
	return resp, err
}

// Download returns the content of a document. The caller closes it.
func (c *Client) Download(ctx context.Context, handle string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "documents/"+handle, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client().Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, apiError(resp)
	}
	return resp.Body, nil
}

// Events returns events after cursor, oldest first.
func (c *Client) Events(ctx context.Context, requestID string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if requestID != "" {
		q.Set("request_id", requestID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := c.newRequest(ctx, method, endpoint, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func apiError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	e := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &env) == nil {
		e.Code, e.Message, e.Details = env.Error.Code, env.Error.Message, env.Error.Details
	}
	return e
}

func (c *Client) client() *http.Client {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return c.HTTPClient
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
