package execdesksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Execdesk HTTP API client.
type Client struct {
	BaseURL     string
	TenantID    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, tenantID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		TenantID: tenantID,
		Timeout:  10 * time.Second,
	}
}

// Observation is the API metric observation model.
type Observation struct {
	ID           string  `json:"id"`
	TenantID     string  `json:"tenant_id"`
	DepartmentID *string `json:"department_id,omitempty"`
	Name         string  `json:"name"`
	Value        float64 `json:"value"`
	Type         string  `json:"type"`
	PeriodStart  string  `json:"period_start"`
	PeriodEnd    string  `json:"period_end"`
}

// Metrics holds the reduced snapshot values for one scope.
type Metrics struct {
	Revenue     float64  `json:"revenue"`
	Users       *float64 `json:"users,omitempty"`
	Performance *float64 `json:"performance,omitempty"`
	Growth      *float64 `json:"growth,omitempty"`
}

// Snapshot is the computed dashboard aggregation.
type Snapshot struct {
	TenantID    string  `json:"tenant_id"`
	PeriodStart string  `json:"period_start"`
	PeriodEnd   string  `json:"period_end"`
	Global      Metrics `json:"global"`
	Departments []struct {
		DepartmentID string  `json:"department_id"`
		Metrics      Metrics `json:"metrics"`
	} `json:"departments,omitempty"`
}

// Alert is the API alert model (partial).
type Alert struct {
	ID             string  `json:"id"`
	TenantID       string  `json:"tenant_id"`
	DepartmentID   *string `json:"department_id,omitempty"`
	AlertType      string  `json:"alert_type"`
	Severity       string  `json:"severity"`
	Title          string  `json:"title"`
	IsAcknowledged bool    `json:"is_acknowledged"`
	IsResolved     bool    `json:"is_resolved"`
	Version        int     `json:"version"`
}

// Crisis is the API crisis model (partial).
type Crisis struct {
	ID         string  `json:"id"`
	TenantID   string  `json:"tenant_id"`
	Title      string  `json:"title"`
	Severity   string  `json:"severity"`
	Status     string  `json:"status"`
	ResolvedAt *string `json:"resolved_at,omitempty"`
	Version    int     `json:"version"`
}

// Event is a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	TenantID   string         `json:"tenant_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	FromStatus string         `json:"from_status,omitempty"`
	ToStatus   string         `json:"to_status,omitempty"`
	Payload    map[string]any `json:"payload"`
}

// Evaluation is the result of a threshold rule run.
type Evaluation struct {
	Snapshot Snapshot `json:"snapshot"`
	Created  []Alert  `json:"created"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// RecordObservation records one metric observation.
func (c *Client) RecordObservation(ctx context.Context, name string, value float64, metricType, periodStart, periodEnd string) (Observation, error) {
	body := map[string]any{
		"name":         name,
		"value":        value,
		"type":         metricType,
		"period_start": periodStart,
		"period_end":   periodEnd,
	}
	var resp Observation
	err := c.do(ctx, http.MethodPost, c.tenantPath("metrics"), body, &resp)
	return resp, err
}

// Snapshot computes a dashboard snapshot for the period.
func (c *Client) Snapshot(ctx context.Context, periodStart, periodEnd string) (Snapshot, error) {
	endpoint := fmt.Sprintf("%s?period_start=%s&period_end=%s",
		c.tenantPath("snapshot"), url.QueryEscape(periodStart), url.QueryEscape(periodEnd))
	var resp Snapshot
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Evaluate runs the tenant's threshold alert rules over the period.
func (c *Client) Evaluate(ctx context.Context, periodStart, periodEnd string) (Evaluation, error) {
	body := map[string]any{"period_start": periodStart, "period_end": periodEnd}
	var resp Evaluation
	err := c.do(ctx, http.MethodPost, c.tenantPath("alerts/evaluate"), body, &resp)
	return resp, err
}

// CreateCrisis registers a crisis.
func (c *Client) CreateCrisis(ctx context.Context, title, severity string) (Crisis, error) {
	body := map[string]any{"title": title, "severity": severity}
	var resp Crisis
	err := c.do(ctx, http.MethodPost, c.tenantPath("crises"), body, &resp)
	return resp, err
}

// ResolveCrisis closes a crisis from any status.
func (c *Client) ResolveCrisis(ctx context.Context, id string) (Crisis, error) {
	var resp Crisis
	endpoint := c.tenantPath(fmt.Sprintf("crises/%s/resolve", url.PathEscape(id)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// AcknowledgeAlert acknowledges an alert; the first acknowledger wins.
func (c *Client) AcknowledgeAlert(ctx context.Context, id string) (Alert, error) {
	var resp Alert
	endpoint := c.tenantPath(fmt.Sprintf("alerts/%s/ack", url.PathEscape(id)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// ResolveAlert resolves an alert; resolving twice is a no-op.
func (c *Client) ResolveAlert(ctx context.Context, id string) (Alert, error) {
	var resp Alert
	endpoint := c.tenantPath(fmt.Sprintf("alerts/%s/resolve", url.PathEscape(id)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// ListOpenAlerts lists unresolved alerts.
func (c *Client) ListOpenAlerts(ctx context.Context) ([]Alert, error) {
	var resp []Alert
	err := c.do(ctx, http.MethodGet, c.tenantPath("alerts")+"?open=true", nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := c.tenantPath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) tenantPath(p string) string {
	tenant := url.PathEscape(c.TenantID)
	return fmt.Sprintf("v0/tenants/%s/%s", tenant, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
