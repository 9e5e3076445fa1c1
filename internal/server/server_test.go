package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"execdesk/internal/config"
	"execdesk/internal/db"
	"execdesk/internal/domain"
	"execdesk/internal/engine"
	"execdesk/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("acme")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if _, err := e.InitTenant(context.Background(), "acme", "Acme Corp", "ceo"); err != nil {
		t.Fatalf("init tenant: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: "test-secret", AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asActor(id string) map[string]string {
	return map[string]string{"X-Actor-Id": id}
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func errCode(t *testing.T, data []byte) string {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error.Code
}

func TestHealthIsOpen(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, string(data))
	}
}

func TestUnauthenticatedIsRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tenants/acme/metrics", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}
	if code := errCode(t, data); code != "unauthorized" {
		t.Fatalf("code = %q", code)
	}
}

func TestRecordMetricAndSnapshot(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tenants/acme/metrics", map[string]any{
		"name":         "mrr",
		"value":        100,
		"type":         "revenue",
		"period_start": "2025-01-01T00:00:00Z",
		"period_end":   "2025-02-01T00:00:00Z",
	}, asActor("ceo"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("record metric: %d %s", res.StatusCode, string(data))
	}
	var obs domain.MetricObservation
	if err := json.Unmarshal(data, &obs); err != nil {
		t.Fatalf("unmarshal observation: %v", err)
	}
	if obs.ID == "" || obs.TenantID != "acme" {
		t.Fatalf("unexpected observation: %+v", obs)
	}

	res, data = doJSON(t, client, http.MethodGet,
		srv.URL+"/v0/tenants/acme/snapshot?period_start=2025-01-01T00:00:00Z&period_end=2025-02-01T00:00:00Z",
		nil, asActor("ceo"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("snapshot: %d %s", res.StatusCode, string(data))
	}
	var snap domain.DashboardSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snap.Global.Revenue != 100 {
		t.Fatalf("revenue = %g, want 100", snap.Global.Revenue)
	}
	// suppressed metrics are absent, not zero
	if snap.Global.Users != nil || snap.Global.Performance != nil {
		t.Fatalf("expected null metrics without samples: %+v", snap.Global)
	}
}

func TestSnapshotRequiresPeriod(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tenants/acme/snapshot", nil, asActor("ceo"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
	}
}

func TestCrisisInvalidTransitionConflict(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tenants/acme/crises", map[string]any{
		"title":    "Regional outage",
		"severity": "high",
	}, asActor("ceo"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create crisis: %d %s", res.StatusCode, string(data))
	}
	var c domain.Crisis
	if err := json.Unmarshal(data, &c); err != nil {
		t.Fatalf("unmarshal crisis: %v", err)
	}

	// detected -> responding skips investigating
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/tenants/acme/crises/"+c.ID+"/status", map[string]any{
		"status": "responding",
	}, asActor("ceo"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	if code := errCode(t, data); code != "invalid_transition" {
		t.Fatalf("code = %q", code)
	}

	// emergency closure works from any status
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tenants/acme/crises/"+c.ID+"/resolve", nil, asActor("ceo"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("resolve: %d %s", res.StatusCode, string(data))
	}
	var resolved domain.Crisis
	_ = json.Unmarshal(data, &resolved)
	if resolved.Status != "resolved" || resolved.ResolvedAt == nil {
		t.Fatalf("unexpected crisis after resolve: %+v", resolved)
	}
}

func TestDecisionSelfApprovalForbidden(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tenants/acme/decisions", map[string]any{
		"title":   "Open Berlin office",
		"options": []map[string]any{{"label": "open"}, {"label": "wait"}},
	}, asActor("ceo"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create decision: %d %s", res.StatusCode, string(data))
	}
	var d domain.Decision
	if err := json.Unmarshal(data, &d); err != nil {
		t.Fatalf("unmarshal decision: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tenants/acme/decisions/"+d.ID+"/approve", nil, asActor("ceo"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(data))
	}
	if code := errCode(t, data); code != "self_approval_forbidden" {
		t.Fatalf("code = %q", code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tenants/acme/decisions/"+d.ID+"/approve", nil, asActor("cfo"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve by cfo: %d %s", res.StatusCode, string(data))
	}
	var approved domain.Decision
	_ = json.Unmarshal(data, &approved)
	if approved.Status != "approved" || approved.ApprovedBy == nil || *approved.ApprovedBy != "cfo" {
		t.Fatalf("unexpected decision after approval: %+v", approved)
	}
}

func TestCrossTenantLookupIs404(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	if _, err := srv.Engine.InitTenant(context.Background(), "globex", "Globex", "ceo"); err != nil {
		t.Fatalf("init second tenant: %v", err)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tenants/acme/analyses", map[string]any{
		"title": "Private analysis",
	}, asActor("ceo"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create analysis: %d %s", res.StatusCode, string(data))
	}
	var a domain.StrategicAnalysis
	_ = json.Unmarshal(data, &a)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tenants/globex/analyses/"+a.ID, nil, asActor("ceo"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 across tenants, got %d %s", res.StatusCode, string(data))
	}
	if code := errCode(t, data); code != "not_found" {
		t.Fatalf("code = %q", code)
	}
}

func TestEvaluateCreatesAndDedupsAlerts(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tenants/acme/metrics", map[string]any{
		"name":         "mrr",
		"value":        -100,
		"type":         "revenue",
		"period_start": "2025-01-01T00:00:00Z",
		"period_end":   "2025-02-01T00:00:00Z",
	}, asActor("ceo"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("record metric: %d %s", res.StatusCode, string(data))
	}

	evalBody := map[string]any{
		"period_start": "2025-01-01T00:00:00Z",
		"period_end":   "2025-02-01T00:00:00Z",
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tenants/acme/alerts/evaluate", evalBody, asActor("ceo"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("evaluate: %d %s", res.StatusCode, string(data))
	}
	var eval EvaluationResponse
	if err := json.Unmarshal(data, &eval); err != nil {
		t.Fatalf("unmarshal evaluation: %v", err)
	}
	if len(eval.Created) != 1 || eval.Created[0].AlertType != "revenue.negative" {
		t.Fatalf("unexpected evaluation: %+v", eval.Created)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tenants/acme/alerts/evaluate", evalBody, asActor("ceo"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("re-evaluate: %d %s", res.StatusCode, string(data))
	}
	eval = EvaluationResponse{}
	_ = json.Unmarshal(data, &eval)
	if len(eval.Created) != 0 {
		t.Fatalf("expected dedup, got %+v", eval.Created)
	}
}

func TestAlertAckRace(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	doJSON(t, client, http.MethodPost, srv.URL+"/v0/tenants/acme/crises", map[string]any{
		"title":    "Breach",
		"severity": "critical",
	}, asActor("ceo"))

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tenants/acme/alerts?open=true", nil, asActor("ceo"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list alerts: %d %s", res.StatusCode, string(data))
	}
	var alerts []domain.Alert
	if err := json.Unmarshal(data, &alerts); err != nil {
		t.Fatalf("unmarshal alerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 open alert, got %d", len(alerts))
	}
	id := alerts[0].ID

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tenants/acme/alerts/"+id+"/ack", nil, asActor("ceo"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("ack: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tenants/acme/alerts/"+id+"/ack", nil, asActor("cfo"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	if code := errCode(t, data); code != "already_acknowledged" {
		t.Fatalf("code = %q", code)
	}
}

func TestReportWorkflowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tenants/acme/reports", map[string]any{
		"report_type":  "monthly",
		"period_start": "2025-01-01T00:00:00Z",
		"period_end":   "2025-02-01T00:00:00Z",
	}, asActor("ceo"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("compose report: %d %s", res.StatusCode, string(data))
	}
	var rep domain.ExecutiveReport
	_ = json.Unmarshal(data, &rep)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tenants/acme/reports/"+rep.ID+"/submit", nil, asActor("ceo"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tenants/acme/reports/"+rep.ID+"/approve", nil, asActor("ceo"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected self approval 403, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tenants/acme/reports/"+rep.ID+"/approve", nil, asActor("cfo"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tenants/acme/reports/"+rep.ID+"/publish", nil, asActor("ceo"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("publish: %d %s", res.StatusCode, string(data))
	}
	var published domain.ExecutiveReport
	_ = json.Unmarshal(data, &published)
	if published.Status != "published" || published.PublishedAt == nil {
		t.Fatalf("unexpected report after publish: %+v", published)
	}
}

func TestEventsCursorPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	for _, title := range []string{"One", "Two", "Three"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tenants/acme/analyses", map[string]any{
			"title": title,
		}, asActor("ceo"))
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create analysis: %d %s", res.StatusCode, string(data))
		}
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tenants/acme/events?limit=2", nil, asActor("ceo"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list events: %d %s", res.StatusCode, string(data))
	}
	var page paginatedEvents
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("unexpected first page: %d items cursor=%q", len(page.Items), page.NextCursor)
	}
	lastID := page.Items[len(page.Items)-1].ID

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tenants/acme/events?limit=2&cursor="+page.NextCursor, nil, asActor("ceo"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second page: %d %s", res.StatusCode, string(data))
	}
	var next paginatedEvents
	_ = json.Unmarshal(data, &next)
	if len(next.Items) == 0 {
		t.Fatalf("expected a second page")
	}
	if next.Items[0].ID >= lastID {
		t.Fatalf("pages overlap: %d then %d", lastID, next.Items[0].ID)
	}
}

func TestDevLoginAndBearerToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id":  "ceo",
		"tenant_id": "acme",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("unmarshal token: %v %s", err, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tenants/acme/metrics", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("bearer request: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tenants/acme/metrics", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d %s", res.StatusCode, string(data))
	}
}

func TestEmptyBodyOnPostRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v0/tenants/acme/crises", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "ceo")
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d", res.StatusCode)
	}
}
