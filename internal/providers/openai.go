package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const OpenAIName = "openai"

// OpenAIConfig holds configuration for the OpenAI chat client. BaseURL
// makes the client work against Azure OpenAI or any compatible endpoint.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
	// Rate limiting
	RPM        int           // Requests per minute (default: DefaultOpenAIRPM)
	MaxRetries int           // Max retry attempts (default: 3)
	RetryDelay time.Duration // Base delay between retries (default: 1s)
}

// OpenAIClient implements LLMClient on the official SDK.
type OpenAIClient struct {
	client       openai.Client
	defaultModel string
	timeout      time.Duration
	maxRetries   int
	retryDelay   time.Duration
	limiter      *RateLimiter
}

// NewOpenAIClient creates a new OpenAI chat client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.RPM == 0 {
		cfg.RPM = DefaultOpenAIRPM
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Retries are handled locally so attempts get counted and rate
		// limits feed back into the limiter.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		client:       openai.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		timeout:      cfg.Timeout,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		limiter:      NewRateLimiter(cfg.RPM),
	}
}

// Name returns the client identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIName
}

// Limiter exposes the client's rate limiter for status reporting.
func (c *OpenAIClient) Limiter() *RateLimiter {
	return c.limiter
}

// Chat sends a chat completion request.
func (c *OpenAIClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	return c.doChat(ctx, req, nil)
}

// ChatWithTools sends a chat request with tool definitions.
func (c *OpenAIClient) ChatWithTools(ctx context.Context, req *ChatRequest, tools []Tool) (*ChatResult, error) {
	return c.doChat(ctx, req, tools)
}

func (c *OpenAIClient) doChat(ctx context.Context, req *ChatRequest, tools []Tool) (*ChatResult, error) {
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
		Provider:  OpenAIName,
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

	params, err := c.buildParams(model, req, tools)
	if err != nil {
		return fail("request_build", err)
	}

	resp, err := c.complete(ctx, req, &params, result)
	if err != nil {
		return fail(errorTypeOf(err), err)
	}
	if len(resp.Choices) == 0 {
		return fail("empty_response", fmt.Errorf("no choices in response"))
	}

	choice := resp.Choices[0]
	result.Success = true
	result.Content = choice.Message.Content
	result.ModelUsed = resp.Model
	result.PromptTokens = int(resp.Usage.PromptTokens)
	result.CompletionTokens = int(resp.Usage.CompletionTokens)
	result.TotalTokens = int(resp.Usage.TotalTokens)

	for _, tc := range choice.Message.ToolCalls {
		call := ToolCall{ID: tc.ID, Type: "function"}
		call.Function.Name = tc.Function.Name
		call.Function.Arguments = tc.Function.Arguments
		result.ToolCalls = append(result.ToolCalls, call)
	}

	// Structured output: parse, validate against the canonical schema,
	// and give the model a bounded chance to repair its own output.
	if req.ResponseFormat != nil && result.Content != "" {
		parsed, perr := parseStructuredJSON(result.Content)
		if perr == nil {
			perr = validateStructuredJSON(req.ResponseFormat.JSONSchema, parsed)
		}
		for repair := 0; perr != nil && repair < maxStructuredRepairAttempts; repair++ {
			content, rerr := c.repairOnce(ctx, req, params, result, perr)
			if rerr != nil {
				break
			}
			result.Content = content
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

// complete performs one logical completion with local retry on transient
// failures.
func (c *OpenAIClient) complete(ctx context.Context, req *ChatRequest, params *openai.ChatCompletionNewParams, result *ChatResult) (*openai.ChatCompletion, error) {
	timeout := req.Timeout
	if timeout == 0 {
		timeout = c.timeout
	}

	var resp *openai.ChatCompletion
	err := retry.Do(
		func() error {
			result.Attempts++
			r, err := c.client.Chat.Completions.New(ctx, *params, option.WithRequestTimeout(timeout))
			if err != nil {
				err = mapOpenAIChatError(err)
				var rle *RateLimitError
				if errors.As(err, &rle) {
					c.limiter.Record429(rle.RetryAfter)
				}
				return err
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryableOpenAIError),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// repairOnce re-prompts the model with its own invalid output and the
// validation issue appended to the conversation.
func (c *OpenAIClient) repairOnce(ctx context.Context, req *ChatRequest, params openai.ChatCompletionNewParams, result *ChatResult, issue error) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(params.Messages)+2)
	messages = append(messages, params.Messages...)
	messages = append(messages,
		openai.AssistantMessage(result.Content),
		openai.UserMessage(structuredRepairPrompt(req.ResponseFormat.JSONSchema, result.Content, issue)),
	)
	params.Messages = messages

	resp, err := c.complete(ctx, req, &params, result)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in repair response")
	}
	result.PromptTokens += int(resp.Usage.PromptTokens)
	result.CompletionTokens += int(resp.Usage.CompletionTokens)
	result.TotalTokens += int(resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) buildParams(model string, req *ChatRequest, tools []Tool) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
	}

	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case "assistant":
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	if req.ResponseFormat != nil && len(req.ResponseFormat.JSONSchema) > 0 {
		rf, err := responseFormatParam(req.ResponseFormat.JSONSchema)
		if err != nil {
			return params, err
		}
		params.ResponseFormat = rf
	}

	if len(tools) > 0 {
		for _, t := range tools {
			var fnParams shared.FunctionParameters
			if len(t.Function.Parameters) > 0 {
				if err := json.Unmarshal(t.Function.Parameters, &fnParams); err != nil {
					return params, fmt.Errorf("invalid parameters for tool %s: %w", t.Function.Name, err)
				}
			}
			fn := shared.FunctionDefinitionParam{
				Name:       t.Function.Name,
				Parameters: fnParams,
			}
			if t.Function.Description != "" {
				fn.Description = openai.String(t.Function.Description)
			}
			params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(fn))
		}
		if req.ToolChoice == ToolChoiceRequired {
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
				OfAuto: openai.String("required"),
			}
		}
	}

	return params, nil
}

// responseFormatParam converts the canonical json_schema wrapper into SDK
// params. Bare schema documents are accepted too.
func responseFormatParam(schemaRaw json.RawMessage) (openai.ChatCompletionNewParamsResponseFormatUnion, error) {
	var wrapper struct {
		Name       string         `json:"name"`
		Strict     bool           `json:"strict"`
		Schema     map[string]any `json:"schema"`
		JSONSchema struct {
			Name   string         `json:"name"`
			Strict bool           `json:"strict"`
			Schema map[string]any `json:"schema"`
		} `json:"json_schema"`
	}
	if err := json.Unmarshal(schemaRaw, &wrapper); err != nil {
		return openai.ChatCompletionNewParamsResponseFormatUnion{}, fmt.Errorf("invalid response format schema: %w", err)
	}

	name := wrapper.JSONSchema.Name
	strict := wrapper.JSONSchema.Strict
	schema := wrapper.JSONSchema.Schema
	if schema == nil {
		name = wrapper.Name
		strict = wrapper.Strict
		schema = wrapper.Schema
	}
	if schema == nil {
		var bare map[string]any
		if err := json.Unmarshal(schemaRaw, &bare); err != nil {
			return openai.ChatCompletionNewParamsResponseFormatUnion{}, fmt.Errorf("invalid response format schema: %w", err)
		}
		schema = bare
	}
	if name == "" {
		name = "response"
	}

	js := shared.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:   name,
		Schema: schema,
	}
	if strict {
		js.Strict = openai.Bool(true)
	}
	return openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{JSONSchema: js},
	}, nil
}

// mapOpenAIChatError converts SDK errors into local error types while
// keeping the original error reachable for classification.
func mapOpenAIChatError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			retryAfter := time.Duration(0)
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return &RateLimitError{
				Message:    fmt.Sprintf("openai rate limited: %s", apiErr.Message),
				RetryAfter: retryAfter,
				StatusCode: apiErr.StatusCode,
			}
		}
		return fmt.Errorf("openai chat failed (status %d): %w", apiErr.StatusCode, err)
	}
	return err
}

// retryableOpenAIError reports whether a mapped error is worth retrying.
func retryableOpenAIError(err error) bool {
	if IsRateLimit(err) {
		return true
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusRequestTimeout || apiErr.StatusCode >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Network-level failures.
	return true
}

var _ LLMClient = (*OpenAIClient)(nil)
