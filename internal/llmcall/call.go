// Package llmcall provides LLM call recording and querying for traceability.
// Every LLM API call is recorded with its prompt key, response, and metrics.
package llmcall

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/critic/internal/providers"
)

// Call represents a recorded LLM API call.
type Call struct {
	// Unique identifier
	ID string `json:"id"`

	// Timing
	Timestamp time.Time `json:"timestamp"`
	LatencyMs int       `json:"latency_ms"`

	// Context references
	Flow   string `json:"flow,omitempty"`   // "review", "explain", "analyze"
	Target string `json:"target,omitempty"` // File or snippet label under review

	// Prompt traceability
	PromptKey string `json:"prompt_key"`
	PromptCID string `json:"prompt_cid,omitempty"` // Content-addressed ID linking to the exact prompt version used

	// Model info
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Mode        string   `json:"mode,omitempty"` // "structured" or "freetext"
	Temperature *float64 `json:"temperature,omitempty"`

	// Token usage
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	Attempts     int `json:"attempts,omitempty"`

	// Response
	Response  string          `json:"response"`
	ToolCalls json.RawMessage `json:"tool_calls,omitempty"`

	// Status
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	// Extraction outcome ("ok" or the failure reason)
	Outcome string `json:"outcome,omitempty"`
}

// RecordOptions provides context for recording an LLM call.
type RecordOptions struct {
	// Context references (all optional)
	Flow   string
	Target string

	// Prompt identification (required for traceability)
	PromptKey string
	PromptCID string // Content-addressed ID linking to exact prompt version

	// Request parameters (pointer to distinguish "not set" from "set to 0")
	Temperature *float64
	Mode        string

	// Extraction outcome ("ok" or the failure reason), set once the reply
	// has been through the extraction pipeline.
	Outcome string

	// Optional logger for non-fatal serialization warnings.
	Logger *slog.Logger
}

// FromChatResult creates a Call from a ChatResult.
// Returns nil if result is nil.
func FromChatResult(result *providers.ChatResult, opts RecordOptions) *Call {
	if result == nil {
		return nil
	}

	call := &Call{
		ID:           uuid.New().String(),
		Timestamp:    time.Now(),
		LatencyMs:    int(result.ExecutionTime.Milliseconds()),
		Flow:         opts.Flow,
		Target:       opts.Target,
		PromptKey:    opts.PromptKey,
		PromptCID:    opts.PromptCID,
		Provider:     result.Provider,
		Model:        result.ModelUsed,
		Mode:         opts.Mode,
		InputTokens:  result.PromptTokens,
		OutputTokens: result.CompletionTokens,
		Attempts:     result.Attempts,
		Response:     result.Content,
		Success:      result.Success,
		Outcome:      opts.Outcome,
	}

	if opts.Temperature != nil {
		call.Temperature = opts.Temperature
	}

	if !result.Success {
		call.Error = result.ErrorMessage
	}

	// Serialize tool calls if present
	if len(result.ToolCalls) > 0 {
		if data, err := json.Marshal(result.ToolCalls); err != nil {
			logger := opts.Logger
			if logger == nil {
				logger = slog.Default()
			}
			logger.Warn("failed to serialize tool calls for LLM call record",
				"error", err,
				"tool_call_count", len(result.ToolCalls))
		} else {
			call.ToolCalls = data
		}
	}

	return call
}
