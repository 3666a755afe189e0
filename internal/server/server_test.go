package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"veritrace/internal/analysis"
	"veritrace/internal/config"
	"veritrace/internal/db"
	"veritrace/internal/domain"
	"veritrace/internal/engine"
	"veritrace/internal/migrate"
)

const testJWTSecret = "test-secret"

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
	cfg := config.Default("vtrace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if _, err := e.CreateProject(context.Background(), cfg.Project.ID, "Validation Test System", "GxP", "", "setup"); err != nil {
		t.Fatalf("create project: %v", err)
	}
	handler, err := New(Config{
		Engine: e,
		Auth:   AuthConfig{JWTSecret: testJWTSecret},
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

func signToken(t *testing.T, subject, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: role,
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func authHeaders(t *testing.T, subject, role string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + signToken(t, subject, role)}
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

func TestHealthUnauthenticated(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
}

func TestRequirementLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	lead := authHeaders(t, "lead", "validation_lead")
	qa := authHeaders(t, "qa", "quality")
	projectID := "vtrace"

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+projectID+"/requirements", map[string]any{
		"title":       "Audit trail capture",
		"description": "The system shall record every data change in an audit trail.",
		"gxp_impact":  true,
	}, lead)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create requirement status %d: %s", res.StatusCode, string(data))
	}
	var q domain.Requirement
	if err := json.Unmarshal(data, &q); err != nil {
		t.Fatalf("unmarshal requirement: %v", err)
	}
	if q.OverallRisk == "" || q.AmbiguityScore == nil {
		t.Fatalf("derived fields missing: %+v", q)
	}

	// Author cannot approve their own requirement.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+projectID+"/requirements/"+q.ID+"/approve", nil, lead)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("self-approval status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+projectID+"/requirements/"+q.ID+"/approve", nil, qa)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+projectID+"/requirements/"+q.ID+"/specs", map[string]any{
		"title": "Audit trail module",
	}, lead)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create spec status %d: %s", res.StatusCode, string(data))
	}
	var fs domain.FunctionalSpec
	if err := json.Unmarshal(data, &fs); err != nil {
		t.Fatalf("unmarshal spec: %v", err)
	}
	if fs.RequirementID != q.ID {
		t.Fatalf("spec not linked: %+v", fs)
	}
}

func TestRBACForbidden(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	viewer := authHeaders(t, "ro", "viewer")
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/vtrace/requirements", map[string]any{
		"title": "Should be rejected",
	}, viewer)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "forbidden" {
		t.Fatalf("error code %q", envelope.Error.Code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	qa := authHeaders(t, "qa", "quality")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/apikeys", map[string]any{
		"actor_id": "robot",
		"role":     "tester",
		"name":     "ci",
	}, qa)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create api key status %d: %s", res.StatusCode, string(data))
	}
	var created APIKeyResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal api key: %v", err)
	}
	if created.Key == "" {
		t.Fatal("raw key not returned at creation")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/vtrace/requirements", nil, map[string]string{
		"X-Api-Key": created.Key,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key read status %d: %s", res.StatusCode, string(data))
	}

	// The tester role cannot create requirements.
	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/vtrace/requirements", map[string]any{
		"title": "No",
	}, map[string]string{"X-Api-Key": created.Key})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for tester write, got %d", res.StatusCode)
	}
}

func TestSummaryAndTraceabilityEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	lead := authHeaders(t, "lead", "validation_lead")
	qa := authHeaders(t, "qa", "quality")
	tester := authHeaders(t, "tester", "tester")
	projectID := "vtrace"
	base := srv.URL + "/v0/projects/" + projectID

	_, data := doJSON(t, client, http.MethodPost, base+"/requirements", map[string]any{
		"title":               "Electronic records",
		"description":         "The system shall store batch records electronically.",
		"acceptance_criteria": "Records retrievable for ten years.",
		"gxp_impact":          true,
	}, lead)
	var q domain.Requirement
	_ = json.Unmarshal(data, &q)
	doJSON(t, client, http.MethodPost, base+"/requirements/"+q.ID+"/approve", nil, qa)

	_, data = doJSON(t, client, http.MethodPost, base+"/requirements/"+q.ID+"/specs", map[string]any{
		"title": "Record storage",
	}, lead)
	var fs domain.FunctionalSpec
	_ = json.Unmarshal(data, &fs)
	doJSON(t, client, http.MethodPost, base+"/specs/"+fs.ID+"/approve", nil, qa)

	_, data = doJSON(t, client, http.MethodPost, base+"/specs/"+fs.ID+"/test-cases", map[string]any{
		"title": "Verify retrieval",
	}, lead)
	var tc domain.TestCase
	_ = json.Unmarshal(data, &tc)

	res, data := doJSON(t, client, http.MethodPost, base+"/test-cases/"+tc.ID+"/executions", map[string]any{
		"result": "Pass",
	}, tester)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("record execution status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/traceability", nil, qa)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("traceability status %d: %s", res.StatusCode, string(data))
	}
	var rows []analysis.TraceabilityRow
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("unmarshal traceability: %v", err)
	}
	if len(rows) != 1 || rows[0].Status != "Complete" {
		t.Fatalf("unexpected traceability %+v", rows)
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/summary", nil, qa)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("summary status %d: %s", res.StatusCode, string(data))
	}
	var summary analysis.ValidationSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if summary.Decision != "Approved" {
		t.Fatalf("decision %q", summary.Decision)
	}
	if summary.GeneratedBy != "qa" {
		t.Fatalf("generated_by %q", summary.GeneratedBy)
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/consistency", nil, qa)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("consistency status %d: %s", res.StatusCode, string(data))
	}
	var report analysis.ConsistencyReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("unmarshal consistency: %v", err)
	}
	if report.Score != 100 {
		t.Fatalf("consistency score %d: %s", report.Score, string(data))
	}
}

func TestErrorEnvelopeNotFound(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	qa := authHeaders(t, "qa", "quality")
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/vtrace/requirements/nope", nil, qa)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("error code %q", envelope.Error.Code)
	}
}
