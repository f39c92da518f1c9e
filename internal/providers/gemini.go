package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"google.golang.org/genai"
)

const GeminiName = "gemini"

// GenerativeClient abstracts the Gemini generative AI client for testability.
type GenerativeClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClientFactory creates a GenerativeClient. Production code uses
// DefaultGeminiFactory; tests inject a factory that returns a mock.
type GeminiClientFactory func(ctx context.Context, apiKey string) (GenerativeClient, error)

// genaiClient wraps the real genai.Client to satisfy GenerativeClient.
type genaiClient struct {
	inner *genai.Client
}

func (g *genaiClient) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return g.inner.Models.GenerateContent(ctx, model, contents, config)
}

// DefaultGeminiFactory creates a real Gemini API client.
func DefaultGeminiFactory(ctx context.Context, apiKey string) (GenerativeClient, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &genaiClient{inner: c}, nil
}

// GeminiConfig holds configuration for the Gemini chat client.
type GeminiConfig struct {
	APIKey       string
	DefaultModel string
	Timeout      time.Duration
	// Rate limiting
	RPM        int           // Requests per minute (default: DefaultGeminiRPM, the free-tier quota)
	MaxRetries int           // Max retry attempts (default: 3)
	RetryDelay time.Duration // Base delay between retries (default: 1s)

	// Factory creates the underlying generative client; leave nil for
	// production use.
	Factory GeminiClientFactory
}

// GeminiClient implements LLMClient using the Google Gemini API.
type GeminiClient struct {
	apiKey       string
	defaultModel string
	timeout      time.Duration
	maxRetries   int
	retryDelay   time.Duration
	limiter      *RateLimiter
	factory      GeminiClientFactory

	mu     sync.Mutex
	client GenerativeClient
}

// NewGeminiClient creates a new Gemini chat client.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-2.5-flash"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.RPM == 0 {
		cfg.RPM = DefaultGeminiRPM
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Factory == nil {
		cfg.Factory = DefaultGeminiFactory
	}

	return &GeminiClient{
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
		timeout:      cfg.Timeout,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		limiter:      NewRateLimiter(cfg.RPM),
		factory:      cfg.Factory,
	}
}

// Name returns the client identifier.
func (c *GeminiClient) Name() string {
	return GeminiName
}

// Limiter exposes the client's rate limiter for status reporting.
func (c *GeminiClient) Limiter() *RateLimiter {
	return c.limiter
}

// Chat sends a chat completion request.
func (c *GeminiClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	return c.doChat(ctx, req, nil)
}

// ChatWithTools sends a chat request with function declarations.
func (c *GeminiClient) ChatWithTools(ctx context.Context, req *ChatRequest, tools []Tool) (*ChatResult, error) {
	return c.doChat(ctx, req, tools)
}

func (c *GeminiClient) ensureClient(ctx context.Context) (GenerativeClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		client, err := c.factory(ctx, c.apiKey)
		if err != nil {
			return nil, fmt.Errorf("creating Gemini client: %w", err)
		}
		c.client = client
	}
	return c.client, nil
}

func (c *GeminiClient) doChat(ctx context.Context, req *ChatRequest, tools []Tool) (*ChatResult, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	result := &ChatResult{
		RequestID: requestID,
		Provider:  GeminiName,
	}

	fail := func(errType string, err error) (*ChatResult, error) {
		result.Success = false
		result.ErrorType = errType
		result.ErrorMessage = err.Error()
		result.ExecutionTime = time.Since(start)
		var rle *RateLimitError
		if errors.As(err, &rle) {
			result.ErrorType = "rate_limit"
			result.RetryAfter = rle.RetryAfter
		}
		return result, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fail("rate_limit_wait", err)
	}

	client, err := c.ensureClient(ctx)
	if err != nil {
		return fail("client_init", err)
	}

	contents, config, err := c.buildRequest(req, tools)
	if err != nil {
		return fail("request_build", err)
	}

	resp, err := c.generate(ctx, client, req, model, contents, config, result)
	if err != nil {
		return fail(errorTypeOf(err), err)
	}

	result.Success = true
	result.Content = responseText(resp)
	result.ModelUsed = resp.ModelVersion
	if result.ModelUsed == "" {
		result.ModelUsed = model
	}
	if usage := resp.UsageMetadata; usage != nil {
		result.PromptTokens = int(usage.PromptTokenCount)
		result.CompletionTokens = int(usage.CandidatesTokenCount)
		result.TotalTokens = int(usage.TotalTokenCount)
	}

	for i, fc := range resp.FunctionCalls() {
		args, err := json.Marshal(fc.Args)
		if err != nil {
			return fail("json_parse", fmt.Errorf("encoding function call arguments: %w", err))
		}
		id := fc.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		call := ToolCall{ID: id, Type: "function"}
		call.Function.Name = fc.Name
		call.Function.Arguments = string(args)
		result.ToolCalls = append(result.ToolCalls, call)
	}

	// Structured output: Gemini enforces the response schema server side,
	// but the reply still gets validated against the canonical schema with
	// a bounded chance to repair.
	if req.ResponseFormat != nil && result.Content != "" {
		parsed, perr := parseStructuredJSON(result.Content)
		if perr == nil {
			perr = validateStructuredJSON(req.ResponseFormat.JSONSchema, parsed)
		}
		for repair := 0; perr != nil && repair < maxStructuredRepairAttempts; repair++ {
			repaired := append(contents,
				&genai.Content{Role: "model", Parts: []*genai.Part{{Text: result.Content}}},
				&genai.Content{Role: "user", Parts: []*genai.Part{{Text: structuredRepairPrompt(req.ResponseFormat.JSONSchema, result.Content, perr)}}},
			)
			resp, rerr := c.generate(ctx, client, req, model, repaired, config, result)
			if rerr != nil {
				break
			}
			if usage := resp.UsageMetadata; usage != nil {
				result.PromptTokens += int(usage.PromptTokenCount)
				result.CompletionTokens += int(usage.CandidatesTokenCount)
				result.TotalTokens += int(usage.TotalTokenCount)
			}
			result.Content = responseText(resp)
			parsed, perr = parseStructuredJSON(result.Content)
			if perr == nil {
				perr = validateStructuredJSON(req.ResponseFormat.JSONSchema, parsed)
			}
		}
		if perr != nil {
			result.Success = false
			result.ErrorType = "schema_validation"
			result.ErrorMessage = perr.Error()
		} else {
			result.ParsedJSON = parsed
		}
	}

	result.ExecutionTime = time.Since(start)
	return result, nil
}

// generate performs one logical generation with per-attempt timeout and
// local retry on transient failures.
func (c *GeminiClient) generate(ctx context.Context, client GenerativeClient, req *ChatRequest, model string, contents []*genai.Content, config *genai.GenerateContentConfig, result *ChatResult) (*genai.GenerateContentResponse, error) {
	timeout := req.Timeout
	if timeout == 0 {
		timeout = c.timeout
	}

	var resp *genai.GenerateContentResponse
	err := retry.Do(
		func() error {
			result.Attempts++
			reqCtx, cancel := context.WithTimeout(ctx, timeout)
			r, err := client.GenerateContent(reqCtx, model, contents, config)
			cancel()
			if err != nil {
				err = mapGeminiError(err)
				var rle *RateLimitError
				if errors.As(err, &rle) {
					c.limiter.Record429(rle.RetryAfter)
				}
				return err
			}
			if len(r.Candidates) == 0 {
				return fmt.Errorf("no candidates in response")
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryableGeminiError),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *GeminiClient) buildRequest(req *ChatRequest, tools []Tool) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	config := &genai.GenerateContentConfig{}

	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			// Gemini carries the system prompt in config, not the
			// conversation.
			config.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: m.Content}},
			}
		case "assistant":
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: m.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}
	}

	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	if req.ResponseFormat != nil && len(req.ResponseFormat.JSONSchema) > 0 {
		schema, err := genaiResponseSchema(req.ResponseFormat.JSONSchema)
		if err != nil {
			return nil, nil, err
		}
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = schema
	}

	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(tools))
		for _, t := range tools {
			decl := &genai.FunctionDeclaration{
				Name:        t.Function.Name,
				Description: t.Function.Description,
			}
			if len(t.Function.Parameters) > 0 {
				var params map[string]any
				if err := json.Unmarshal(t.Function.Parameters, &params); err != nil {
					return nil, nil, fmt.Errorf("invalid parameters for function %s: %w", t.Function.Name, err)
				}
				decl.Parameters = genaiSchemaFromMap(params)
			}
			decls = append(decls, decl)
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}

		mode := genai.FunctionCallingConfigModeAuto
		if req.ToolChoice == ToolChoiceRequired {
			mode = genai.FunctionCallingConfigModeAny
		}
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode},
		}
	}

	return contents, config, nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

// genaiResponseSchema converts the canonical json_schema wrapper into a
// genai schema. Bare schema documents are accepted too.
func genaiResponseSchema(schemaRaw json.RawMessage) (*genai.Schema, error) {
	var wrapper struct {
		Schema     map[string]any `json:"schema"`
		JSONSchema struct {
			Schema map[string]any `json:"schema"`
		} `json:"json_schema"`
	}
	if err := json.Unmarshal(schemaRaw, &wrapper); err != nil {
		return nil, fmt.Errorf("invalid response schema: %w", err)
	}
	schema := wrapper.JSONSchema.Schema
	if schema == nil {
		schema = wrapper.Schema
	}
	if schema == nil {
		var bare map[string]any
		if err := json.Unmarshal(schemaRaw, &bare); err != nil {
			return nil, fmt.Errorf("invalid response schema: %w", err)
		}
		schema = bare
	}
	return genaiSchemaFromMap(schema), nil
}

// genaiSchemaFromMap converts a JSON schema document into the genai schema
// type. Unsupported keywords (additionalProperties among them) are dropped.
func genaiSchemaFromMap(m map[string]any) *genai.Schema {
	s := &genai.Schema{}

	if t, ok := m["type"].(string); ok {
		switch t {
		case "object":
			s.Type = genai.TypeObject
		case "array":
			s.Type = genai.TypeArray
		case "string":
			s.Type = genai.TypeString
		case "number":
			s.Type = genai.TypeNumber
		case "integer":
			s.Type = genai.TypeInteger
		case "boolean":
			s.Type = genai.TypeBoolean
		}
	}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if sub, ok := raw.(map[string]any); ok {
				s.Properties[name] = genaiSchemaFromMap(sub)
			}
		}
	}
	if req, ok := m["required"].([]any); ok {
		for _, r := range req {
			if name, ok := r.(string); ok {
				s.Required = append(s.Required, name)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = genaiSchemaFromMap(items)
	}
	if min, ok := m["minimum"].(float64); ok {
		s.Minimum = genai.Ptr(min)
	}
	if max, ok := m["maximum"].(float64); ok {
		s.Maximum = genai.Ptr(max)
	}
	if enum, ok := m["enum"].([]any); ok {
		for _, e := range enum {
			if v, ok := e.(string); ok {
				s.Enum = append(s.Enum, v)
			}
		}
	}
	return s
}

// mapGeminiError converts genai API errors into local error types.
func mapGeminiError(err error) error {
	if apiErr, ok := geminiAPIError(err); ok {
		if apiErr.Code == http.StatusTooManyRequests {
			return &RateLimitError{
				Message:    fmt.Sprintf("gemini rate limited: %s", apiErr.Message),
				StatusCode: apiErr.Code,
			}
		}
		return fmt.Errorf("gemini chat failed (status %d): %w", apiErr.Code, err)
	}
	return err
}

// retryableGeminiError reports whether a mapped error is worth retrying.
func retryableGeminiError(err error) bool {
	if IsRateLimit(err) {
		return true
	}
	if apiErr, ok := geminiAPIError(err); ok {
		return apiErr.Code == http.StatusRequestTimeout || apiErr.Code >= 500
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// Per-attempt deadlines and network-level failures.
	return true
}

var _ LLMClient = (*GeminiClient)(nil)
