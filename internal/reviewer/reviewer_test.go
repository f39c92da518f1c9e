package reviewer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/jackzampolin/critic/internal/llmcall"
	"github.com/jackzampolin/critic/internal/providers"
	"github.com/jackzampolin/critic/internal/review"
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

// captureClient records the last request so tests can assert on the
// request shape the reviewer builds.
type captureClient struct {
	*providers.MockClient
	lastReq   *providers.ChatRequest
	lastTools []providers.Tool
}

func (c *captureClient) Chat(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResult, error) {
	c.lastReq = req
	c.lastTools = nil
	return c.MockClient.Chat(ctx, req)
}

func (c *captureClient) ChatWithTools(ctx context.Context, req *providers.ChatRequest, tools []providers.Tool) (*providers.ChatResult, error) {
	c.lastReq = req
	c.lastTools = tools
	return c.MockClient.ChatWithTools(ctx, req, tools)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestReviewer registers the client under the given mode and returns
// the reviewer plus the call store behind it.
func newTestReviewer(client providers.LLMClient, mode string) (*Reviewer, *llmcall.Store) {
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
	r := New(Config{
		Registry:        registry,
		Recorder:        llmcall.NewRecorder(store),
		DefaultProvider: "mock",
		Logger:          discardLogger(),
	})
	return r, store
}

func decodeEnvelope(t *testing.T, envelope json.RawMessage) map[string]json.RawMessage {
	t.Helper()
	var env map[string]json.RawMessage
	if err := json.Unmarshal(envelope, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v", err)
	}
	return env
}

func reviewToolCall(name, args string) providers.ToolCall {
	tc := providers.ToolCall{ID: "call-1", Type: "function"}
	tc.Function.Name = name
	tc.Function.Arguments = args
	return tc
}

func TestReview_Freetext(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseText = validReviewJSON
	client := &captureClient{MockClient: mock}
	r, store := newTestReviewer(client, "")

	outcome, err := r.Review(context.Background(), ReviewRequest{Code: "def add(a, b): return a+b", Target: "add.py"})
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if !outcome.OK() {
		t.Fatalf("Review() failed: %v", outcome.Failure)
	}

	env := decodeEnvelope(t, outcome.Envelope)
	if _, ok := env["response"]; !ok {
		t.Errorf("envelope missing response key: %s", outcome.Envelope)
	}

	res, err := review.DecodeReview(outcome.Extraction.Doc)
	if err != nil {
		t.Fatalf("DecodeReview() error = %v", err)
	}
	if res.ReviewScore != 72.5 {
		t.Errorf("ReviewScore = %v, want 72.5", res.ReviewScore)
	}
	if len(res.CodeIssues) != 1 {
		t.Errorf("CodeIssues len = %d, want 1", len(res.CodeIssues))
	}

	// Freetext requests carry no tools and no response format.
	if client.lastTools != nil {
		t.Error("freetext review should not declare tools")
	}
	if client.lastReq.ResponseFormat != nil {
		t.Error("freetext review should not set a response format")
	}

	calls := store.List(llmcall.QueryFilter{Flow: FlowReview})
	if len(calls) != 1 {
		t.Fatalf("recorded %d calls, want 1", len(calls))
	}
	if calls[0].PromptKey != "review.freetext" {
		t.Errorf("PromptKey = %q, want review.freetext", calls[0].PromptKey)
	}
	if calls[0].Outcome != "ok" {
		t.Errorf("Outcome = %q, want ok", calls[0].Outcome)
	}
	if calls[0].Target != "add.py" {
		t.Errorf("Target = %q, want add.py", calls[0].Target)
	}
	if calls[0].PromptCID == "" {
		t.Error("PromptCID should carry the prompt hash")
	}
}

func TestReview_FreetextFencedReply(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseText = "```json\n" + validReviewJSON + "\n```"
	r, _ := newTestReviewer(mock, "")

	outcome, err := r.Review(context.Background(), ReviewRequest{Code: "x = 1"})
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if !outcome.OK() {
		t.Fatalf("fenced reply should extract, got failure: %v", outcome.Failure)
	}
}

func TestReview_Structured(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ToolCalls = []providers.ToolCall{reviewToolCall("code_review", validReviewJSON)}
	client := &captureClient{MockClient: mock}
	r, store := newTestReviewer(client, "structured")

	outcome, err := r.Review(context.Background(), ReviewRequest{Code: "x = 1"})
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if !outcome.OK() {
		t.Fatalf("Review() failed: %v", outcome.Failure)
	}

	if len(client.lastTools) != 1 || client.lastTools[0].Function.Name != "code_review" {
		t.Fatalf("structured review should declare the code_review tool, got %+v", client.lastTools)
	}
	if client.lastReq.ToolChoice != providers.ToolChoiceRequired {
		t.Errorf("ToolChoice = %q, want %q", client.lastReq.ToolChoice, providers.ToolChoiceRequired)
	}

	calls := store.List(llmcall.QueryFilter{})
	if len(calls) != 1 || calls[0].PromptKey != "review.structured" {
		t.Fatalf("expected one review.structured call, got %+v", calls)
	}
	if calls[0].Mode != "structured" {
		t.Errorf("Mode = %q, want structured", calls[0].Mode)
	}
}

func TestReview_StructuredNoToolCall(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseText = "I cannot review this code."
	mock.ToolCalls = []providers.ToolCall{reviewToolCall("something_else", `{}`)}
	r, store := newTestReviewer(mock, "structured")

	outcome, err := r.Review(context.Background(), ReviewRequest{Code: "x = 1"})
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if outcome.OK() {
		t.Fatal("expected failure when the model skips the code_review call")
	}
	if outcome.Failure.Reason != review.NoJSONFound {
		t.Errorf("Reason = %q, want %q", outcome.Failure.Reason, review.NoJSONFound)
	}

	env := decodeEnvelope(t, outcome.Envelope)
	var msg string
	if err := json.Unmarshal(env["error"], &msg); err != nil {
		t.Fatalf("envelope error field: %v", err)
	}
	if msg != "No valid review result found" {
		t.Errorf("error = %q, want no-valid-result message", msg)
	}
	if _, ok := env["raw_response"]; !ok {
		t.Error("envelope should carry raw_response")
	}

	calls := store.List(llmcall.QueryFilter{})
	if len(calls) != 1 || calls[0].Outcome != "no_json_found" {
		t.Fatalf("expected one call with no_json_found outcome, got %+v", calls)
	}
}

func TestReview_SchemaViolationRejected(t *testing.T) {
	bad := strings.Replace(validReviewJSON, `"criticalityLevel": 3`, `"criticalityLevel": 6`, 1)
	mock := providers.NewMockClient()
	mock.ToolCalls = []providers.ToolCall{reviewToolCall("code_review", bad)}
	r, store := newTestReviewer(mock, "structured")

	outcome, err := r.Review(context.Background(), ReviewRequest{Code: "x = 1"})
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if outcome.OK() {
		t.Fatal("out-of-range criticality should be rejected")
	}
	if outcome.Failure.Reason != review.SchemaViolation {
		t.Errorf("Reason = %q, want %q", outcome.Failure.Reason, review.SchemaViolation)
	}
	if outcome.Failure.Field != "codeIssues[0].criticalityLevel" {
		t.Errorf("Field = %q, want codeIssues[0].criticalityLevel", outcome.Failure.Field)
	}

	calls := store.List(llmcall.QueryFilter{})
	if len(calls) != 1 || calls[0].Outcome != "schema_violation" {
		t.Fatalf("expected one call with schema_violation outcome, got %+v", calls)
	}
}

func TestReview_ProviderFailure(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ShouldFail = true
	r, store := newTestReviewer(mock, "")

	_, err := r.Review(context.Background(), ReviewRequest{Code: "x = 1"})
	if err == nil {
		t.Fatal("expected error from failing provider")
	}

	calls := store.List(llmcall.QueryFilter{})
	if len(calls) != 1 {
		t.Fatalf("failed calls should still be recorded, got %d", len(calls))
	}
	if calls[0].Success {
		t.Error("recorded call should be marked failed")
	}
	if calls[0].Outcome != "mock_failure" {
		t.Errorf("Outcome = %q, want mock_failure", calls[0].Outcome)
	}
}

func TestReview_RequestValidation(t *testing.T) {
	r, _ := newTestReviewer(providers.NewMockClient(), "")

	if _, err := r.Review(context.Background(), ReviewRequest{Code: "   "}); err == nil {
		t.Error("empty code should be rejected")
	}
	if _, err := r.Review(context.Background(), ReviewRequest{Code: "x", Provider: "nope"}); err == nil {
		t.Error("unknown provider should be rejected")
	}
	if _, err := r.Review(context.Background(), ReviewRequest{Code: "x", Mode: "telepathy"}); err == nil {
		t.Error("unknown mode should be rejected")
	}
}

func TestExplain_StructuredUsesResponseFormat(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseJSON = json.RawMessage(validExplanationJSON)
	client := &captureClient{MockClient: mock}
	r, store := newTestReviewer(client, "structured")

	outcome, err := r.Explain(context.Background(), ExplainRequest{Code: "def add(a, b): return a+b"})
	if err != nil {
		t.Fatalf("Explain() error = %v", err)
	}
	if !outcome.OK() {
		t.Fatalf("Explain() failed: %v", outcome.Failure)
	}

	if client.lastReq.ResponseFormat == nil {
		t.Fatal("structured explain should set a response format")
	}
	if client.lastReq.ResponseFormat.Type != "json_schema" {
		t.Errorf("ResponseFormat.Type = %q, want json_schema", client.lastReq.ResponseFormat.Type)
	}
	if client.lastTools != nil {
		t.Error("explain should not declare tools")
	}

	ex, err := review.DecodeExplanation(outcome.Extraction.Doc)
	if err != nil {
		t.Fatalf("DecodeExplanation() error = %v", err)
	}
	if ex.Purpose != "adds two numbers" {
		t.Errorf("Purpose = %q", ex.Purpose)
	}

	calls := store.List(llmcall.QueryFilter{Flow: FlowExplain})
	if len(calls) != 1 || calls[0].PromptKey != "explain.user" {
		t.Fatalf("expected one explain.user call, got %+v", calls)
	}
}

func TestExplain_Freetext(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseText = "Here is the explanation:\n" + validExplanationJSON
	r, _ := newTestReviewer(mock, "")

	outcome, err := r.Explain(context.Background(), ExplainRequest{Code: "x = 1"})
	if err != nil {
		t.Fatalf("Explain() error = %v", err)
	}
	if !outcome.OK() {
		t.Fatalf("Explain() failed: %v", outcome.Failure)
	}
}

func TestAnalyze_ModelPicksReview(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ToolCalls = []providers.ToolCall{reviewToolCall("code_review", validReviewJSON)}
	client := &captureClient{MockClient: mock}
	r, store := newTestReviewer(client, "")

	outcome, err := r.Analyze(context.Background(), AnalyzeRequest{
		Code:        "x = 1",
		Instruction: "Please review this code for potential issues",
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if !outcome.OK() {
		t.Fatalf("Analyze() failed: %v", outcome.Failure)
	}
	if outcome.FunctionCalled != "code_review" {
		t.Errorf("FunctionCalled = %q, want code_review", outcome.FunctionCalled)
	}

	// Both functions are on offer; the model chooses.
	if len(client.lastTools) != 2 {
		t.Fatalf("analyze should declare both functions, got %d", len(client.lastTools))
	}
	if client.lastReq.ToolChoice != providers.ToolChoiceAuto {
		t.Errorf("ToolChoice = %q, want %q", client.lastReq.ToolChoice, providers.ToolChoiceAuto)
	}

	env := decodeEnvelope(t, outcome.Envelope)
	var fn string
	if err := json.Unmarshal(env["function_called"], &fn); err != nil || fn != "code_review" {
		t.Errorf("envelope function_called = %q (%v)", fn, err)
	}

	calls := store.List(llmcall.QueryFilter{Flow: FlowAnalyze})
	if len(calls) != 1 || calls[0].Outcome != "ok" {
		t.Fatalf("expected one ok analyze call, got %+v", calls)
	}
}

func TestAnalyze_ModelPicksExplanation(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ToolCalls = []providers.ToolCall{reviewToolCall("code_explanation", validExplanationJSON)}
	r, _ := newTestReviewer(mock, "")

	outcome, err := r.Analyze(context.Background(), AnalyzeRequest{Code: "x = 1", Instruction: "explain this"})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if outcome.FunctionCalled != "code_explanation" {
		t.Errorf("FunctionCalled = %q, want code_explanation", outcome.FunctionCalled)
	}
}

func TestAnalyze_ModelPicksBoth(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ToolCalls = []providers.ToolCall{
		reviewToolCall("code_review", validReviewJSON),
		reviewToolCall("code_explanation", validExplanationJSON),
	}
	r, _ := newTestReviewer(mock, "")

	outcome, err := r.Analyze(context.Background(), AnalyzeRequest{Code: "x = 1", Instruction: "review and explain"})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if !outcome.OK() {
		t.Fatalf("Analyze() failed: %v", outcome.Failure)
	}
	if outcome.FunctionCalled != "both" {
		t.Errorf("FunctionCalled = %q, want both", outcome.FunctionCalled)
	}

	env := decodeEnvelope(t, outcome.Envelope)
	var response map[string]json.RawMessage
	if err := json.Unmarshal(env["response"], &response); err != nil {
		t.Fatalf("combined response: %v", err)
	}
	if _, ok := response["review"]; !ok {
		t.Error("combined response missing review")
	}
	if _, ok := response["explanation"]; !ok {
		t.Error("combined response missing explanation")
	}
}

func TestAnalyze_BothWithInvalidPart(t *testing.T) {
	bad := strings.Replace(validReviewJSON, `"reviewScore": 72.5`, `"reviewScore": "72.5%"`, 1)
	mock := providers.NewMockClient()
	mock.ToolCalls = []providers.ToolCall{
		reviewToolCall("code_review", bad),
		reviewToolCall("code_explanation", validExplanationJSON),
	}
	r, _ := newTestReviewer(mock, "")

	outcome, err := r.Analyze(context.Background(), AnalyzeRequest{Code: "x = 1", Instruction: "review and explain"})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if outcome.OK() {
		t.Fatal("stringly reviewScore should fail validation")
	}
	if outcome.Failure.Reason != review.SchemaViolation {
		t.Errorf("Reason = %q, want %q", outcome.Failure.Reason, review.SchemaViolation)
	}
	if outcome.FunctionCalled != "both" {
		t.Errorf("FunctionCalled = %q, want both", outcome.FunctionCalled)
	}
}

func TestAnalyze_NoFunctionCall(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseText = "This code adds two numbers."
	mock.ToolCalls = []providers.ToolCall{reviewToolCall("unrelated_function", `{}`)}
	r, _ := newTestReviewer(mock, "")

	outcome, err := r.Analyze(context.Background(), AnalyzeRequest{Code: "x = 1"})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if outcome.OK() {
		t.Fatal("expected failure when no known function is called")
	}

	env := decodeEnvelope(t, outcome.Envelope)
	var msg string
	if err := json.Unmarshal(env["error"], &msg); err != nil {
		t.Fatalf("envelope error field: %v", err)
	}
	if msg != "No valid analysis result found" {
		t.Errorf("error = %q, want analysis-specific message", msg)
	}
	var raw string
	if err := json.Unmarshal(env["raw_response"], &raw); err != nil || raw != "This code adds two numbers." {
		t.Errorf("raw_response = %q (%v)", raw, err)
	}
}

func TestReviewer_DefaultProvider(t *testing.T) {
	r, _ := newTestReviewer(providers.NewMockClient(), "")

	if got := r.DefaultProvider(); got != "mock" {
		t.Errorf("DefaultProvider() = %q, want mock", got)
	}
	r.SetDefaultProvider("other")
	if got := r.DefaultProvider(); got != "other" {
		t.Errorf("DefaultProvider() = %q, want other", got)
	}
}

func TestReviewer_Prompts(t *testing.T) {
	r, _ := newTestReviewer(providers.NewMockClient(), "")

	all := r.Prompts()
	if len(all) == 0 {
		t.Fatal("no embedded prompts registered")
	}
	keys := make(map[string]bool, len(all))
	for _, p := range all {
		keys[p.Key] = true
		if p.Hash == "" {
			t.Errorf("prompt %s has no hash", p.Key)
		}
	}
	for _, want := range []string{"review.system", "review.structured", "review.freetext", "explain.user", "analyze.user"} {
		if !keys[want] {
			t.Errorf("missing embedded prompt %s", want)
		}
	}
}
