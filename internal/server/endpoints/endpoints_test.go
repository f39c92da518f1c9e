package endpoints

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/critic/internal/llmcall"
	"github.com/jackzampolin/critic/internal/providers"
	"github.com/jackzampolin/critic/internal/reviewer"
	"github.com/jackzampolin/critic/internal/svcctx"
)

const validReviewJSON = `{
	"codeIssues": [{"issueType": "logic error", "description": "off by one in loop bound", "criticalityLevel": 3}],
	"securityVulnerabilityIssues": [],
	"engineeringPracticesIssues": [],
	"documentationIssues": [{"issueDescription": "missing function docstring"}],
	"reviewScore": 72.5,
	"refactoredCode": "def add(a, b):\n    return a + b"
}`

const validExplanationJSON = `{
	"purpose": "adds two numbers",
	"components": ["add"],
	"algorithm": "returns the sum of the inputs",
	"complexity": {"time": "O(1)", "space": "O(1)"},
	"edgeCases": ["integer overflow"]
}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServices wires a mock provider through the real reviewer and
// call store, the same shape the server builds at startup.
func newTestServices(client providers.LLMClient, mode string) *svcctx.Services {
	registry := providers.NewRegistry()
	if mode != "" {
		registry.Reload(providers.RegistryConfig{
			LLMProviders: map[string]providers.LLMProviderConfig{
				"mock": {Type: "mock", Mode: mode, Enabled: true},
			},
		})
	}
	registry.RegisterLLM("mock", client)

	store := llmcall.NewStore(16)
	rev := reviewer.New(reviewer.Config{
		Registry:        registry,
		Recorder:        llmcall.NewRecorder(store),
		DefaultProvider: "mock",
		Logger:          discardLogger(),
	})

	return &svcctx.Services{
		Registry:     registry,
		Reviewer:     rev,
		LLMCallStore: store,
		Logger:       discardLogger(),
	}
}

// newTestMux registers every endpoint the way the server does, with
// services injected into each request context.
func newTestMux(svcs *svcctx.Services) *http.ServeMux {
	mux := http.NewServeMux()
	for _, ep := range All(Config{StartedAt: time.Now()}) {
		method, path, handler := ep.Route()
		mux.HandleFunc(method+" "+path, func(w http.ResponseWriter, r *http.Request) {
			handler(w, r.WithContext(svcctx.WithServices(r.Context(), svcs)))
		})
	}
	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("response is not valid JSON: %v\nbody: %s", err, rec.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	mux := newTestMux(newTestServices(providers.NewMockClient(), ""))

	rec := doRequest(t, mux, "GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp HealthResponse
	decodeJSON(t, rec, &resp)
	if resp.Status != "ok" {
		t.Errorf("Status = %q, want ok", resp.Status)
	}
	if resp.Version == "" {
		t.Error("Version should not be empty")
	}
}

func TestStatusEndpoint(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseText = validReviewJSON
	svcs := newTestServices(mock, "")
	mux := newTestMux(svcs)

	// Record one call so the counters have something to report.
	rec := doRequest(t, mux, "POST", "/review", `{"code": "x = 1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("review status = %d, want 200", rec.Code)
	}

	rec = doRequest(t, mux, "GET", "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp StatusResponse
	decodeJSON(t, rec, &resp)
	if resp.Server != "running" {
		t.Errorf("Server = %q, want running", resp.Server)
	}
	if len(resp.Providers.LLM) != 1 || resp.Providers.LLM[0] != "mock" {
		t.Errorf("Providers.LLM = %v, want [mock]", resp.Providers.LLM)
	}
	if resp.Providers.Default != "mock" {
		t.Errorf("Providers.Default = %q, want mock", resp.Providers.Default)
	}
	if resp.Calls.Recorded != 1 {
		t.Errorf("Calls.Recorded = %d, want 1", resp.Calls.Recorded)
	}
	if resp.Uptime == "" {
		t.Error("Uptime should not be empty")
	}
}

func TestReviewEndpoint(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseText = validReviewJSON
	svcs := newTestServices(mock, "")
	mux := newTestMux(svcs)

	rec := doRequest(t, mux, "POST", "/review", `{"code": "def add(a, b): return a+b", "target": "add.py"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var env map[string]json.RawMessage
	decodeJSON(t, rec, &env)
	if _, ok := env["response"]; !ok {
		t.Errorf("envelope missing response key: %s", rec.Body.String())
	}
	if _, ok := env["error"]; ok {
		t.Error("success envelope should not carry an error key")
	}

	calls := svcs.LLMCallStore.List(llmcall.QueryFilter{Flow: "review"})
	if len(calls) != 1 || calls[0].Target != "add.py" {
		t.Fatalf("expected one recorded review call for add.py, got %+v", calls)
	}
}

func TestReviewEndpoint_BadRequests(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseText = validReviewJSON
	mux := newTestMux(newTestServices(mock, ""))

	tests := []struct {
		name string
		body string
	}{
		{"malformed body", `{"code": `},
		{"empty code", `{"code": "   "}`},
		{"unknown provider", `{"code": "x = 1", "provider": "nope"}`},
		{"unknown mode", `{"code": "x = 1", "mode": "telepathy"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, mux, "POST", "/review", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400\nbody: %s", rec.Code, rec.Body.String())
			}
			var resp ErrorResponse
			decodeJSON(t, rec, &resp)
			if resp.Error == "" {
				t.Error("error message should not be empty")
			}
		})
	}
}

func TestReviewEndpoint_ExtractionFailure(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseText = "I cannot review this code, sorry."
	mux := newTestMux(newTestServices(mock, ""))

	rec := doRequest(t, mux, "POST", "/review", `{"code": "x = 1"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422\nbody: %s", rec.Code, rec.Body.String())
	}

	var env map[string]json.RawMessage
	decodeJSON(t, rec, &env)
	if _, ok := env["error"]; !ok {
		t.Errorf("failure envelope missing error key: %s", rec.Body.String())
	}
	if _, ok := env["raw_response"]; !ok {
		t.Errorf("failure envelope missing raw_response key: %s", rec.Body.String())
	}
}

func TestReviewEndpoint_ProviderFailure(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ShouldFail = true
	mux := newTestMux(newTestServices(mock, ""))

	rec := doRequest(t, mux, "POST", "/review", `{"code": "x = 1"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502\nbody: %s", rec.Code, rec.Body.String())
	}
	var resp ErrorResponse
	decodeJSON(t, rec, &resp)
	if !strings.Contains(resp.Error, "mock") {
		t.Errorf("error should name the provider, got %q", resp.Error)
	}
}

func TestReviewSarifEndpoint(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseText = validReviewJSON
	mux := newTestMux(newTestServices(mock, ""))

	rec := doRequest(t, mux, "POST", "/review/sarif", `{"code": "x = 1", "target": "main.py"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}

	var report struct {
		Version string `json:"version"`
		Runs    []struct {
			Results []struct {
				RuleID string `json:"ruleId"`
			} `json:"results"`
		} `json:"runs"`
	}
	decodeJSON(t, rec, &report)
	if report.Version != "2.1.0" {
		t.Errorf("SARIF version = %q, want 2.1.0", report.Version)
	}
	if len(report.Runs) != 1 {
		t.Fatalf("SARIF runs = %d, want 1", len(report.Runs))
	}
	// One code issue and one documentation issue in the fixture.
	if len(report.Runs[0].Results) != 2 {
		t.Errorf("SARIF results = %d, want 2", len(report.Runs[0].Results))
	}
}

func TestReviewSarifEndpoint_ExtractionFailure(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseText = "no JSON here"
	mux := newTestMux(newTestServices(mock, ""))

	rec := doRequest(t, mux, "POST", "/review/sarif", `{"code": "x = 1"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422\nbody: %s", rec.Code, rec.Body.String())
	}
	var env map[string]json.RawMessage
	decodeJSON(t, rec, &env)
	if _, ok := env["error"]; !ok {
		t.Error("failure should answer with the wire envelope, not SARIF")
	}
}

func TestExplainEndpoint(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseText = validExplanationJSON
	svcs := newTestServices(mock, "")
	mux := newTestMux(svcs)

	rec := doRequest(t, mux, "POST", "/explain", `{"code": "def add(a, b): return a+b", "language": "python"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}

	var env struct {
		Response struct {
			Purpose string `json:"purpose"`
		} `json:"response"`
	}
	decodeJSON(t, rec, &env)
	if env.Response.Purpose != "adds two numbers" {
		t.Errorf("purpose = %q", env.Response.Purpose)
	}

	calls := svcs.LLMCallStore.List(llmcall.QueryFilter{Flow: "explain"})
	if len(calls) != 1 {
		t.Fatalf("expected one recorded explain call, got %d", len(calls))
	}
}

func TestExplainEndpoint_EmptyCode(t *testing.T) {
	mux := newTestMux(newTestServices(providers.NewMockClient(), ""))

	rec := doRequest(t, mux, "POST", "/explain", `{"code": ""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	mock := providers.NewMockClient()
	tc := providers.ToolCall{ID: "call-1", Type: "function"}
	tc.Function.Name = "code_review"
	tc.Function.Arguments = validReviewJSON
	mock.ToolCalls = []providers.ToolCall{tc}
	mux := newTestMux(newTestServices(mock, ""))

	rec := doRequest(t, mux, "POST", "/analyze", `{"code": "x = 1", "instruction": "review this code"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}

	var env map[string]json.RawMessage
	decodeJSON(t, rec, &env)
	var fn string
	if err := json.Unmarshal(env["function_called"], &fn); err != nil || fn != "code_review" {
		t.Errorf("function_called = %q (%v)", fn, err)
	}
	if _, ok := env["response"]; !ok {
		t.Error("envelope missing response key")
	}
}

func TestAnalyzeEndpoint_NoFunctionCall(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseText = "This adds numbers."
	tc := providers.ToolCall{ID: "call-1", Type: "function"}
	tc.Function.Name = "unrelated"
	tc.Function.Arguments = `{}`
	mock.ToolCalls = []providers.ToolCall{tc}
	mux := newTestMux(newTestServices(mock, ""))

	rec := doRequest(t, mux, "POST", "/analyze", `{"code": "x = 1"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422\nbody: %s", rec.Code, rec.Body.String())
	}
}

func TestListCallsEndpoint(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseText = validReviewJSON
	svcs := newTestServices(mock, "")
	mux := newTestMux(svcs)

	// Two reviews and one failed extraction give the filters something
	// to separate.
	doRequest(t, mux, "POST", "/review", `{"code": "a = 1", "target": "a.py"}`)
	doRequest(t, mux, "POST", "/review", `{"code": "b = 2", "target": "b.py"}`)
	mock.Responses = []string{"not json"}
	doRequest(t, mux, "POST", "/explain", `{"code": "c = 3"}`)

	t.Run("all", func(t *testing.T) {
		rec := doRequest(t, mux, "GET", "/calls", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var resp CallsResponse
		decodeJSON(t, rec, &resp)
		if resp.Total != 3 {
			t.Errorf("Total = %d, want 3", resp.Total)
		}
	})

	t.Run("filter by flow", func(t *testing.T) {
		rec := doRequest(t, mux, "GET", "/calls?flow=review", "")
		var resp CallsResponse
		decodeJSON(t, rec, &resp)
		if resp.Total != 2 {
			t.Errorf("Total = %d, want 2", resp.Total)
		}
	})

	t.Run("filter by target", func(t *testing.T) {
		rec := doRequest(t, mux, "GET", "/calls?target=a.py", "")
		var resp CallsResponse
		decodeJSON(t, rec, &resp)
		if resp.Total != 1 {
			t.Errorf("Total = %d, want 1", resp.Total)
		}
	})

	t.Run("limit", func(t *testing.T) {
		rec := doRequest(t, mux, "GET", "/calls?limit=1", "")
		var resp CallsResponse
		decodeJSON(t, rec, &resp)
		if resp.Total != 1 {
			t.Errorf("Total = %d, want 1", resp.Total)
		}
	})

	t.Run("bad filters", func(t *testing.T) {
		for _, q := range []string{"?limit=abc", "?offset=x", "?success=maybe", "?after=yesterday", "?before=12pm"} {
			rec := doRequest(t, mux, "GET", "/calls"+q, "")
			if rec.Code != http.StatusBadRequest {
				t.Errorf("GET /calls%s status = %d, want 400", q, rec.Code)
			}
		}
	})
}

func TestGetCallEndpoint(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseText = validReviewJSON
	svcs := newTestServices(mock, "")
	mux := newTestMux(svcs)

	doRequest(t, mux, "POST", "/review", `{"code": "x = 1"}`)
	calls := svcs.LLMCallStore.List(llmcall.QueryFilter{})
	if len(calls) != 1 {
		t.Fatalf("expected one recorded call, got %d", len(calls))
	}

	rec := doRequest(t, mux, "GET", "/calls/"+calls[0].ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp CallResponse
	decodeJSON(t, rec, &resp)
	if resp.Call == nil || resp.Call.ID != calls[0].ID {
		t.Errorf("Call = %+v, want ID %s", resp.Call, calls[0].ID)
	}

	rec = doRequest(t, mux, "GET", "/calls/does-not-exist", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing call status = %d, want 404", rec.Code)
	}
}

func TestProvidersEndpoint(t *testing.T) {
	mux := newTestMux(newTestServices(providers.NewMockClient(), "structured"))

	rec := doRequest(t, mux, "GET", "/providers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp ProvidersResponse
	decodeJSON(t, rec, &resp)
	if resp.Default != "mock" {
		t.Errorf("Default = %q, want mock", resp.Default)
	}
	if len(resp.Providers) != 1 {
		t.Fatalf("Providers len = %d, want 1", len(resp.Providers))
	}
	p := resp.Providers[0]
	if p.Name != "mock" || !p.Default {
		t.Errorf("provider = %+v, want default mock", p)
	}
	if p.Type != "mock" || p.Mode != "structured" {
		t.Errorf("provider config = %+v, want type mock mode structured", p)
	}
}

func TestPromptsEndpoint(t *testing.T) {
	mux := newTestMux(newTestServices(providers.NewMockClient(), ""))

	rec := doRequest(t, mux, "GET", "/prompts", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp PromptsResponse
	decodeJSON(t, rec, &resp)
	if resp.Total == 0 {
		t.Fatal("no prompts returned")
	}
	keys := make(map[string]bool, resp.Total)
	for _, p := range resp.Prompts {
		keys[p.Key] = true
	}
	for _, want := range []string{"review.system", "review.structured", "review.freetext", "explain.user", "analyze.user"} {
		if !keys[want] {
			t.Errorf("missing prompt %s", want)
		}
	}
}

func TestSwaggerEndpoint(t *testing.T) {
	mux := newTestMux(newTestServices(providers.NewMockClient(), ""))

	rec := doRequest(t, mux, "GET", "/swagger.json", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var spec struct {
		Swagger string         `json:"swagger"`
		Paths   map[string]any `json:"paths"`
	}
	decodeJSON(t, rec, &spec)
	if spec.Swagger != "2.0" {
		t.Errorf("swagger = %q, want 2.0", spec.Swagger)
	}
	for _, path := range []string{"/review", "/explain", "/analyze", "/calls", "/health"} {
		if _, ok := spec.Paths[path]; !ok {
			t.Errorf("spec missing path %s", path)
		}
	}
}

func TestSwaggerUIEndpoint(t *testing.T) {
	mux := newTestMux(newTestServices(providers.NewMockClient(), ""))

	rec := doRequest(t, mux, "GET", "/swagger", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "swagger-ui") {
		t.Error("response should embed the swagger UI page")
	}
}

func TestAll_RoutesAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, ep := range All(Config{StartedAt: time.Now()}) {
		method, path, handler := ep.Route()
		if method == "" || path == "" || handler == nil {
			t.Errorf("%T has incomplete route: %s %s", ep, method, path)
		}
		key := method + " " + path
		if seen[key] {
			t.Errorf("duplicate route %s", key)
		}
		seen[key] = true
	}
}

func TestAll_CommandsAreBuildable(t *testing.T) {
	getURL := func() string { return "http://localhost:8080" }
	for _, ep := range All(Config{StartedAt: time.Now()}) {
		cmd := ep.Command(getURL)
		if cmd == nil {
			t.Errorf("%T.Command returned nil", ep)
			continue
		}
		if cmd.Use == "" {
			t.Errorf("%T command has no Use line", ep)
		}
	}
}
