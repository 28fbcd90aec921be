package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"orgchart/api/internal/logging"
)

func newTestServer(svc *Service) http.Handler {
	return NewHTTPServer(svc, ServerOptions{CORSOrigin: "*", Log: quietLogger()}).Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
	return out
}

func createChart(t *testing.T, h http.Handler) string {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/api/charts", "", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create chart: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	return decode(t, rr)["chartId"].(string)
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(newTestService(newFakeDirectory(), nil))
	rr := do(t, h, http.MethodGet, "/api/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	if ok := decode(t, rr)["ok"]; ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestReadyEndpoint(t *testing.T) {
	svc := New(newFakeDirectory(), Options{Log: quietLogger(), Checks: map[string]Pinger{"database": fakePinger{}}})
	rr := do(t, newTestServer(svc), http.MethodGet, "/api/ready", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	svc = New(newFakeDirectory(), Options{Log: quietLogger(), Checks: map[string]Pinger{"database": fakePinger{err: errors.New("connection refused")}}})
	rr = do(t, newTestServer(svc), http.MethodGet, "/api/ready", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	body := decode(t, rr)
	if body["status"] != "not_ready" {
		t.Errorf("expected not_ready, got %v", body["status"])
	}
	checks := body["checks"].(map[string]any)
	database := checks["database"].(map[string]any)
	if database["error"] != "connection refused" {
		t.Errorf("unexpected database check: %v", database)
	}
}

func TestCreateChartUsesCallerHeader(t *testing.T) {
	h := newTestServer(newTestService(newFakeDirectory(), nil))
	rr := do(t, h, http.MethodPost, "/api/charts", "", map[string]string{"X-Org-User": "cto"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decode(t, rr)
	if body["rootId"] != "cto" || body["status"] != "ready" {
		t.Fatalf("unexpected body: %v", body)
	}
	tree := body["tree"].(map[string]any)
	if tree["kind"] != "person" || tree["id"] != "cto" {
		t.Fatalf("unexpected tree: %v", tree)
	}
}

func TestCreateChartDirectoryFailure(t *testing.T) {
	dir := newFakeDirectory()
	dir.reportErr = errDirectoryDown
	h := newTestServer(newTestService(dir, nil))

	rr := do(t, h, http.MethodPost, "/api/charts", "", nil)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	body := decode(t, rr)
	if body["code"] != "DIRECTORY_UNAVAILABLE" {
		t.Fatalf("unexpected code %v", body["code"])
	}
	details := body["details"].(map[string]any)
	if details["status"] != "failed" || details["chartId"] == "" {
		t.Fatalf("expected failed view in details, got %v", details)
	}
	if !strings.Contains(details["error"].(string), "directory down") {
		t.Fatalf("expected error message in view, got %v", details["error"])
	}
}

func TestServerErrorLogCarriesRequestID(t *testing.T) {
	dir := newFakeDirectory()
	dir.reportErr = errDirectoryDown
	var logs bytes.Buffer
	h := NewHTTPServer(newTestService(dir, nil), ServerOptions{Log: logging.NewWithWriter("info", &logs)}).Handler()

	rr := do(t, h, http.MethodPost, "/api/charts", "", map[string]string{"X-Request-ID": "req-123"})
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}

	var failure map[string]any
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("unparseable log line %q: %v", line, err)
		}
		if entry["msg"] == "request failed" {
			failure = entry
		}
	}
	if failure == nil {
		t.Fatalf("no request failed entry in %s", logs.String())
	}
	if failure["request_id"] != "req-123" || failure["path"] != "/api/charts" {
		t.Fatalf("unexpected failure entry %v", failure)
	}
}

func TestUnknownCaller(t *testing.T) {
	h := newTestServer(newTestService(newFakeDirectory(), nil))
	rr := do(t, h, http.MethodPost, "/api/charts", "", map[string]string{"X-Org-User": "ghost"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if code := decode(t, rr)["code"]; code != "PERSON_NOT_FOUND" {
		t.Fatalf("expected PERSON_NOT_FOUND, got %v", code)
	}
}

func TestChartRoutes(t *testing.T) {
	h := newTestServer(newTestService(newFakeDirectory(), nil))
	id := createChart(t, h)

	rr := do(t, h, http.MethodPost, "/api/charts/"+id+"/nodes/cto/click", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("click: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodPost, "/api/charts/"+id+"/nodes/ghost/click", "", nil)
	if rr.Code != http.StatusNotFound || decode(t, rr)["code"] != "NODE_NOT_FOUND" {
		t.Fatalf("click unknown: got %d %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodPost, "/api/charts/"+id+"/nodes/cto/open", "", nil)
	if rr.Code != http.StatusOK || decode(t, rr)["rootId"] != "cto" {
		t.Fatalf("open: got %d %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodPost, "/api/charts/"+id+"/nodes/cto/more", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("more: got %d", rr.Code)
	}

	rr = do(t, h, http.MethodPost, "/api/charts/"+id+"/zoom/reset", "", nil)
	if rr.Code != http.StatusOK || decode(t, rr)["zoomResetToken"] != float64(3) {
		t.Fatalf("zoom reset: got %d %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodPost, "/api/charts/"+id+"/reset", "", nil)
	if rr.Code != http.StatusOK || decode(t, rr)["rootId"] != "ceo" {
		t.Fatalf("reset: got %d %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodGet, "/api/charts/"+id+"/search?q=tec", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("search: got %d", rr.Code)
	}
	results := decode(t, rr)["results"].([]any)
	if len(results) != 1 || results[0].(map[string]any)["id"] != "cto" {
		t.Fatalf("unexpected search results: %v", results)
	}

	rr = do(t, h, http.MethodGet, "/api/charts/"+id, "", nil)
	if rr.Code != http.StatusOK || decode(t, rr)["chartId"] != id {
		t.Fatalf("get: got %d %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodDelete, "/api/charts/"+id, "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: got %d", rr.Code)
	}
	rr = do(t, h, http.MethodGet, "/api/charts/"+id, "", nil)
	if rr.Code != http.StatusNotFound || decode(t, rr)["code"] != "CHART_NOT_FOUND" {
		t.Fatalf("get deleted: got %d %s", rr.Code, rr.Body.String())
	}
}

func TestExportDownload(t *testing.T) {
	h := newTestServer(newTestService(newFakeDirectory(), nil))
	id := createChart(t, h)

	rr := do(t, h, http.MethodGet, "/api/charts/"+id+"/export?format=csv", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("unexpected content type %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "orgchart-ceo.csv") {
		t.Errorf("unexpected content disposition %q", cd)
	}
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 rows, got %q", rr.Body.String())
	}

	rr = do(t, h, http.MethodGet, "/api/charts/"+id+"/export?format=docx", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for docx, got %d", rr.Code)
	}

	rr = do(t, h, http.MethodGet, "/api/charts/"+id+"/export?format=pdf", "", nil)
	if rr.Code != http.StatusServiceUnavailable || decode(t, rr)["code"] != "EXPORT_PDF_UNAVAILABLE" {
		t.Fatalf("expected 503 EXPORT_PDF_UNAVAILABLE, got %d %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodGet, "/api/charts/"+id+"/export?format=html", "", nil)
	if rr.Code != http.StatusOK || !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("expected html export, got %d %q", rr.Code, rr.Header().Get("Content-Type"))
	}
}

func TestExportUploadWithoutStorage(t *testing.T) {
	h := newTestServer(newTestService(newFakeDirectory(), nil))
	id := createChart(t, h)

	rr := do(t, h, http.MethodPost, "/api/charts/"+id+"/export", `{"format":"json"}`, nil)
	if rr.Code != http.StatusServiceUnavailable || decode(t, rr)["code"] != "EXPORT_STORAGE_DISABLED" {
		t.Fatalf("expected 503 EXPORT_STORAGE_DISABLED, got %d %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodPost, "/api/charts/"+id+"/export", `{`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad body, got %d", rr.Code)
	}
}

func TestUnknownRoutes(t *testing.T) {
	h := newTestServer(newTestService(newFakeDirectory(), nil))
	for _, path := range []string{"/api/nope", "/api/charts/x/nodes/y/dance", "/"} {
		rr := do(t, h, http.MethodPost, path, "", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rr.Code)
		}
	}
	rr := do(t, h, http.MethodGet, "/api/charts", "", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(newTestService(newFakeDirectory(), nil))
	rr := do(t, h, http.MethodOptions, "/api/charts", "", map[string]string{
		"Origin":                         "https://app.example.com",
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "X-Org-User",
	})
	if rr.Code != http.StatusNoContent && rr.Code != http.StatusOK {
		t.Fatalf("unexpected preflight status %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin, got %q", got)
	}
}

func TestPlainOptionsHasNoBody(t *testing.T) {
	h := newTestServer(newTestService(newFakeDirectory(), nil))
	rr := do(t, h, http.MethodOptions, "/api/charts", "", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rr.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(newTestService(newFakeDirectory(), nil))
	createChart(t, h)

	rr := do(t, h, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "orgchart_directory_calls_total") {
		t.Fatalf("expected directory call metric in output")
	}
}
