// Package reviewer orchestrates the review, explain, and analyze flows:
// it renders prompts, drives the provider client in the mode configured
// for it, runs every reply through the extraction pipeline, and records
// the call.
package reviewer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jackzampolin/critic/internal/llmcall"
	"github.com/jackzampolin/critic/internal/prompts"
	"github.com/jackzampolin/critic/internal/prompts/analyze"
	"github.com/jackzampolin/critic/internal/prompts/explain"
	reviewprompts "github.com/jackzampolin/critic/internal/prompts/review"
	"github.com/jackzampolin/critic/internal/providers"
	"github.com/jackzampolin/critic/internal/review"
)

// Flow names used in call records.
const (
	FlowReview  = "review"
	FlowExplain = "explain"
	FlowAnalyze = "analyze"
)

// ReviewRequest asks for a full review of a piece of code.
type ReviewRequest struct {
	Code     string `json:"code"`
	Language string `json:"language,omitempty"`
	Provider string `json:"provider,omitempty"`
	Mode     string `json:"mode,omitempty"`
	// Target names the reviewed artifact in call records and SARIF output.
	Target string `json:"target,omitempty"`
}

// ExplainRequest asks for an explanation of a piece of code.
type ExplainRequest struct {
	Code     string `json:"code"`
	Language string `json:"language,omitempty"`
	Provider string `json:"provider,omitempty"`
	Target   string `json:"target,omitempty"`
}

// AnalyzeRequest hands the model the user's instruction and lets it pick
// review, explanation, or both.
type AnalyzeRequest struct {
	Code        string `json:"code"`
	Instruction string `json:"instruction,omitempty"`
	Provider    string `json:"provider,omitempty"`
	Target      string `json:"target,omitempty"`
}

// Outcome is the result of one orchestrated flow. Envelope is always set
// and shaped per the wire contract; Failure is set when the envelope
// carries an error instead of a document.
type Outcome struct {
	Envelope json.RawMessage
	Failure  *review.Failure
	// Extraction holds the extraction result when a single document was
	// extracted. Nil for combined analyze responses.
	Extraction *review.Result
	// Chat is the provider result the envelope was derived from.
	Chat *providers.ChatResult
	// Call is the recorded call log entry. Nil when recording is off.
	Call *llmcall.Call
	// FunctionCalled reports which function the model chose during
	// analysis: "code_review", "code_explanation", or "both".
	FunctionCalled string
}

// OK reports whether the envelope carries a document.
func (o *Outcome) OK() bool {
	return o.Failure == nil
}

// Config configures a Reviewer.
type Config struct {
	Registry        *providers.Registry
	Recorder        *llmcall.Recorder
	DefaultProvider string
	Logger          *slog.Logger
}

// Reviewer drives review, explanation, and analysis flows end to end.
type Reviewer struct {
	registry *providers.Registry
	recorder *llmcall.Recorder
	resolver *prompts.Resolver
	logger   *slog.Logger

	mu              sync.RWMutex
	defaultProvider string
}

// New creates a Reviewer. Every embedded prompt is registered with the
// resolver so call records reference exact prompt versions by hash.
func New(cfg Config) *Reviewer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	resolver := prompts.NewResolver(logger)
	reviewprompts.RegisterPrompts(resolver)
	explain.RegisterPrompts(resolver)
	analyze.RegisterPrompts(resolver)

	return &Reviewer{
		registry:        cfg.Registry,
		recorder:        cfg.Recorder,
		resolver:        resolver,
		logger:          logger.With("component", "reviewer"),
		defaultProvider: cfg.DefaultProvider,
	}
}

// SetDefaultProvider updates the provider used when a request names none.
// Called on config reload.
func (r *Reviewer) SetDefaultProvider(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultProvider = name
}

// DefaultProvider returns the provider used when a request names none.
func (r *Reviewer) DefaultProvider() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultProvider
}

// Prompts returns every embedded prompt, sorted by key.
func (r *Reviewer) Prompts() []prompts.EmbeddedPrompt {
	return r.resolver.All()
}

// Review runs a code review. Structured providers answer through the
// code_review function; freetext providers get the inline JSON contract
// and local extraction does the rest.
func (r *Reviewer) Review(ctx context.Context, req ReviewRequest) (*Outcome, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, fmt.Errorf("code is required")
	}

	name, client, cfgMode, err := r.resolveClient(req.Provider)
	if err != nil {
		return nil, err
	}
	modeStr := req.Mode
	if modeStr == "" {
		modeStr = cfgMode
	}
	mode, err := review.ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	schema := review.CodeReview()
	data := reviewprompts.PromptData{Code: req.Code, Language: req.Language}

	var (
		chat      *providers.ChatResult
		chatErr   error
		promptKey string
	)
	if mode == review.ModeStructured {
		promptKey = reviewprompts.StructuredKey
		user, err := reviewprompts.StructuredPrompt(data)
		if err != nil {
			return nil, err
		}
		chatReq := &providers.ChatRequest{
			Messages: []providers.Message{
				{Role: "system", Content: reviewprompts.SystemPrompt()},
				{Role: "user", Content: user},
			},
			ToolChoice: providers.ToolChoiceRequired,
		}
		chat, chatErr = client.ChatWithTools(ctx, chatReq, []providers.Tool{functionTool(schema)})
	} else {
		promptKey = reviewprompts.FreetextKey
		user, err := reviewprompts.FreetextPrompt(data)
		if err != nil {
			return nil, err
		}
		chatReq := &providers.ChatRequest{
			Messages: []providers.Message{
				{Role: "system", Content: reviewprompts.SystemPrompt()},
				{Role: "user", Content: user},
			},
		}
		chat, chatErr = client.Chat(ctx, chatReq)
	}

	if err := r.providerFailure(chat, chatErr); err != nil {
		r.record(chat, FlowReview, req.Target, promptKey, mode.String(), chatErrorType(chat))
		return nil, fmt.Errorf("provider %s failed: %w", name, err)
	}

	var result *review.Result
	if mode == review.ModeStructured {
		result = extractToolCall(chat, schema)
	} else {
		result = review.Extract(chat.Content, schema, review.ModeFreeText)
	}

	call := r.record(chat, FlowReview, req.Target, promptKey, mode.String(), extractionOutcome(result))
	r.logFlow(FlowReview, name, mode.String(), result, chat)

	return &Outcome{
		Envelope:   result.Wire(),
		Failure:    result.Failure,
		Extraction: result,
		Chat:       chat,
		Call:       call,
	}, nil
}

// Explain runs a code explanation. Structured providers are held to the
// explanation schema through the response format; freetext providers rely
// on the inline contract in the prompt.
func (r *Reviewer) Explain(ctx context.Context, req ExplainRequest) (*Outcome, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, fmt.Errorf("code is required")
	}

	name, client, cfgMode, err := r.resolveClient(req.Provider)
	if err != nil {
		return nil, err
	}
	mode, err := review.ParseMode(cfgMode)
	if err != nil {
		return nil, err
	}

	schema := review.CodeExplanationSchema()
	user, err := explain.UserPrompt(explain.PromptData{Code: req.Code, Language: req.Language})
	if err != nil {
		return nil, err
	}
	chatReq := &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: explain.SystemPrompt()},
			{Role: "user", Content: user},
		},
	}
	if mode == review.ModeStructured {
		chatReq.ResponseFormat = &providers.ResponseFormat{
			Type:       "json_schema",
			JSONSchema: schema.JSONSchema(),
		}
	}

	chat, chatErr := client.Chat(ctx, chatReq)
	if err := r.providerFailure(chat, chatErr); err != nil {
		r.record(chat, FlowExplain, req.Target, explain.UserKey, mode.String(), chatErrorType(chat))
		return nil, fmt.Errorf("provider %s failed: %w", name, err)
	}

	raw := chat.Content
	if mode == review.ModeStructured && len(chat.ParsedJSON) > 0 {
		raw = string(chat.ParsedJSON)
	}
	result := review.Extract(raw, schema, mode)

	call := r.record(chat, FlowExplain, req.Target, explain.UserKey, mode.String(), extractionOutcome(result))
	r.logFlow(FlowExplain, name, mode.String(), result, chat)

	return &Outcome{
		Envelope:   result.Wire(),
		Failure:    result.Failure,
		Extraction: result,
		Chat:       chat,
		Call:       call,
	}, nil
}

// Analyze declares both functions and lets the model pick per the user's
// instruction. The envelope is annotated with the function it called;
// when it calls both, the response combines the two documents.
func (r *Reviewer) Analyze(ctx context.Context, req AnalyzeRequest) (*Outcome, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, fmt.Errorf("code is required")
	}

	name, client, _, err := r.resolveClient(req.Provider)
	if err != nil {
		return nil, err
	}

	user, err := analyze.UserPrompt(analyze.PromptData{Code: req.Code, Instruction: req.Instruction})
	if err != nil {
		return nil, err
	}
	chatReq := &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: analyze.SystemPrompt()},
			{Role: "user", Content: user},
		},
		ToolChoice: providers.ToolChoiceAuto,
	}
	tools := []providers.Tool{
		functionTool(review.CodeReview()),
		functionTool(review.CodeExplanationSchema()),
	}

	chat, chatErr := client.ChatWithTools(ctx, chatReq, tools)
	if err := r.providerFailure(chat, chatErr); err != nil {
		r.record(chat, FlowAnalyze, req.Target, analyze.UserKey, "structured", chatErrorType(chat))
		return nil, fmt.Errorf("provider %s failed: %w", name, err)
	}

	outcome := r.analyzeOutcome(chat)
	call := r.record(chat, FlowAnalyze, req.Target, analyze.UserKey, "structured", analyzeRecordOutcome(outcome))
	outcome.Call = call
	r.logFlow(FlowAnalyze, name, "structured", outcome.Extraction, chat)

	return outcome, nil
}

// analyzeOutcome maps the model's tool choice onto the wire envelope.
func (r *Reviewer) analyzeOutcome(chat *providers.ChatResult) *Outcome {
	reviewArgs, hasReview := toolArguments(chat, "code_review")
	explainArgs, hasExplain := toolArguments(chat, "code_explanation")

	switch {
	case hasReview && hasExplain:
		reviewRes := review.Extract(reviewArgs, review.CodeReview(), review.ModeStructured)
		explainRes := review.Extract(explainArgs, review.CodeExplanationSchema(), review.ModeStructured)
		for _, res := range []*review.Result{reviewRes, explainRes} {
			if !res.Success() {
				return &Outcome{
					Envelope:       res.WireWith(map[string]any{"function_called": "both"}),
					Failure:        res.Failure,
					Chat:           chat,
					FunctionCalled: "both",
				}
			}
		}
		envelope := mustEnvelope(map[string]any{
			"response": map[string]any{
				"review":      reviewRes.Doc,
				"explanation": explainRes.Doc,
			},
			"function_called": "both",
		})
		return &Outcome{
			Envelope:       envelope,
			Chat:           chat,
			FunctionCalled: "both",
		}

	case hasReview:
		res := review.Extract(reviewArgs, review.CodeReview(), review.ModeStructured)
		return &Outcome{
			Envelope:       res.WireWith(map[string]any{"function_called": "code_review"}),
			Failure:        res.Failure,
			Extraction:     res,
			Chat:           chat,
			FunctionCalled: "code_review",
		}

	case hasExplain:
		res := review.Extract(explainArgs, review.CodeExplanationSchema(), review.ModeStructured)
		return &Outcome{
			Envelope:       res.WireWith(map[string]any{"function_called": "code_explanation"}),
			Failure:        res.Failure,
			Extraction:     res,
			Chat:           chat,
			FunctionCalled: "code_explanation",
		}
	}

	// The model answered in prose instead of calling a function.
	payload := map[string]any{"error": "No valid analysis result found"}
	if chat.Content != "" {
		payload["raw_response"] = chat.Content
	}
	return &Outcome{
		Envelope: mustEnvelope(payload),
		Failure: &review.Failure{
			Reason: review.NoJSONFound,
			Detail: "model called no function",
			Raw:    chat.Content,
		},
		Chat: chat,
	}
}

// resolveClient picks the provider client and its configured mode.
func (r *Reviewer) resolveClient(name string) (string, providers.LLMClient, string, error) {
	if name == "" {
		name = r.DefaultProvider()
	}
	if name == "" {
		return "", nil, "", fmt.Errorf("no provider named and no default configured")
	}
	client, err := r.registry.GetLLM(name)
	if err != nil {
		return "", nil, "", err
	}
	mode := ""
	if cfg, ok := r.registry.Config(name); ok {
		mode = cfg.Mode
	}
	return name, client, mode, nil
}

// providerFailure turns a failed chat into an error. Schema validation
// failures are not provider failures: the last reply is still present and
// extraction decides whether it stands.
func (r *Reviewer) providerFailure(chat *providers.ChatResult, chatErr error) error {
	if chatErr != nil {
		return chatErr
	}
	if chat == nil {
		return fmt.Errorf("provider returned no result")
	}
	if !chat.Success && chat.ErrorType != "schema_validation" {
		return fmt.Errorf("%s: %s", chat.ErrorType, chat.ErrorMessage)
	}
	return nil
}

func (r *Reviewer) record(chat *providers.ChatResult, flow, target, promptKey, mode, outcome string) *llmcall.Call {
	if chat == nil {
		return nil
	}
	return r.recorder.Record(chat, llmcall.RecordOptions{
		Flow:      flow,
		Target:    target,
		PromptKey: promptKey,
		PromptCID: r.promptCID(promptKey),
		Mode:      mode,
		Outcome:   outcome,
		Logger:    r.logger,
	})
}

func (r *Reviewer) promptCID(key string) string {
	if p, ok := r.resolver.Get(key); ok {
		return p.Hash
	}
	return ""
}

func (r *Reviewer) logFlow(flow, provider, mode string, result *review.Result, chat *providers.ChatResult) {
	if result != nil && result.Failure != nil {
		r.logger.Warn("extraction failed",
			"flow", flow, "provider", provider, "mode", mode,
			"reason", result.Failure.Reason, "detail", result.Failure.Detail)
		return
	}
	r.logger.Debug("flow complete",
		"flow", flow, "provider", provider, "mode", mode,
		"latency", chat.ExecutionTime, "tokens", chat.TotalTokens)
}

// extractionOutcome is the call record annotation for an extraction.
func extractionOutcome(res *review.Result) string {
	if res.Success() {
		return "ok"
	}
	return string(res.Failure.Reason)
}

func chatErrorType(chat *providers.ChatResult) string {
	if chat == nil || chat.ErrorType == "" {
		return "provider_error"
	}
	return chat.ErrorType
}

func analyzeRecordOutcome(o *Outcome) string {
	if o.Failure != nil {
		return string(o.Failure.Reason)
	}
	return "ok"
}

// functionTool declares a provider tool from a schema descriptor.
func functionTool(d *review.SchemaDescriptor) providers.Tool {
	// Descriptor literals always marshal.
	params, _ := json.Marshal(d.FunctionParameters())
	return providers.Tool{
		Type: "function",
		Function: providers.ToolFunction{
			Name:        d.Name,
			Description: d.Desc,
			Parameters:  params,
		},
	}
}

// extractToolCall extracts the named function's arguments from a tool
// reply. A reply without the expected call carries no document.
func extractToolCall(chat *providers.ChatResult, schema *review.SchemaDescriptor) *review.Result {
	args, found := toolArguments(chat, schema.Name)
	if !found {
		return &review.Result{Failure: &review.Failure{
			Reason: review.NoJSONFound,
			Detail: fmt.Sprintf("model made no %s call", schema.Name),
			Raw:    chat.Content,
		}}
	}
	return review.Extract(args, schema, review.ModeStructured)
}

// toolArguments returns the arguments of the named function call. When
// the model calls the same function more than once the last call wins.
func toolArguments(chat *providers.ChatResult, name string) (string, bool) {
	var args string
	found := false
	for _, tc := range chat.ToolCalls {
		if tc.Function.Name == name {
			args = tc.Function.Arguments
			found = true
		}
	}
	return args, found
}

// mustEnvelope marshals an envelope built from known-good parts.
func mustEnvelope(payload map[string]any) json.RawMessage {
	b, err := json.Marshal(payload)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"error": "failed to encode response"})
	}
	return b
}
