package review

import (
	"encoding/json"
	"fmt"
)

// FailureReason classifies why extraction could not produce a document.
type FailureReason string

const (
	// MalformedJSON means the reply appeared to carry JSON but no parse
	// strategy produced a document.
	MalformedJSON FailureReason = "malformed_json"
	// NoJSONFound means the reply contains no object boundary at all.
	NoJSONFound FailureReason = "no_json_found"
	// EmptyPayload means nothing remained after fence stripping.
	EmptyPayload FailureReason = "empty_payload"
	// SchemaViolation means the document parsed but does not conform to
	// the descriptor.
	SchemaViolation FailureReason = "schema_violation"
)

// Failure describes why an extraction produced no document. It travels as
// data on the Result; Extract never turns a bad reply into a Go error.
type Failure struct {
	Reason FailureReason `json:"reason"`
	Field  string        `json:"field,omitempty"`
	Detail string        `json:"detail,omitempty"`

	// Raw preserves the original reply for diagnostics and the wire
	// envelope. Excluded from the failure's own JSON form.
	Raw string `json:"-"`
}

// Error implements error so failures format cleanly in logs.
func (f *Failure) Error() string {
	switch {
	case f.Field != "" && f.Detail != "":
		return fmt.Sprintf("%s: %s: %s", f.Reason, f.Field, f.Detail)
	case f.Detail != "":
		return fmt.Sprintf("%s: %s", f.Reason, f.Detail)
	}
	return string(f.Reason)
}

// Message returns the caller-facing error string used on the wire.
func (f *Failure) Message() string {
	switch f.Reason {
	case MalformedJSON:
		return "Error decoding JSON response"
	case NoJSONFound:
		return "No valid review result found"
	case EmptyPayload:
		return "Empty response from model"
	case SchemaViolation:
		if f.Field != "" {
			return fmt.Sprintf("Response violates schema: %s (%s)", f.Field, f.Detail)
		}
		return fmt.Sprintf("Response violates schema: %s", f.Detail)
	}
	return string(f.Reason)
}

// Result is the outcome of one extraction. Exactly one of Doc or Failure
// is set.
type Result struct {
	// Doc is the canonical JSON of the validated document.
	Doc json.RawMessage
	// Failure is non-nil when no valid document could be produced.
	Failure *Failure
}

// Success reports whether extraction produced a validated document.
func (r *Result) Success() bool {
	return r.Failure == nil
}

// Decode unmarshals the validated document into v.
func (r *Result) Decode(v any) error {
	if r.Failure != nil {
		return fmt.Errorf("cannot decode failed extraction: %w", r.Failure)
	}
	return json.Unmarshal(r.Doc, v)
}

// Wire renders the caller-facing envelope: {"response": doc} on success,
// {"error": msg, "raw_response": raw} on failure.
func (r *Result) Wire() json.RawMessage {
	return r.WireWith(nil)
}

// WireWith renders the envelope with extra top-level annotations, such as
// the function_called marker on analyze responses.
func (r *Result) WireWith(extra map[string]any) json.RawMessage {
	env := make(map[string]any, len(extra)+2)
	if r.Failure != nil {
		env["error"] = r.Failure.Message()
		if r.Failure.Raw != "" {
			env["raw_response"] = r.Failure.Raw
		}
	} else {
		env["response"] = r.Doc
	}
	for k, v := range extra {
		env[k] = v
	}
	b, err := json.Marshal(env)
	if err != nil {
		// Envelope values are maps, strings, and raw JSON; this cannot
		// fail for real documents.
		b, _ = json.Marshal(map[string]string{"error": "failed to encode response"})
	}
	return b
}

// DecodeReview decodes a validated document into a ReviewResult. Slice
// fields the provider omitted come back as empty slices, never nil.
func DecodeReview(doc json.RawMessage) (*ReviewResult, error) {
	var res ReviewResult
	if err := json.Unmarshal(doc, &res); err != nil {
		return nil, fmt.Errorf("failed to decode review result: %w", err)
	}
	if res.CodeIssues == nil {
		res.CodeIssues = []IssueRecord{}
	}
	if res.SecurityVulnerabilityIssues == nil {
		res.SecurityVulnerabilityIssues = []IssueRecord{}
	}
	if res.EngineeringPracticesIssues == nil {
		res.EngineeringPracticesIssues = []IssueRecord{}
	}
	if res.DocumentationIssues == nil {
		res.DocumentationIssues = []DocumentationIssue{}
	}
	return &res, nil
}

// DecodeExplanation decodes a validated document into a CodeExplanation
// with nil slice fields defaulted to empty.
func DecodeExplanation(doc json.RawMessage) (*CodeExplanation, error) {
	var ex CodeExplanation
	if err := json.Unmarshal(doc, &ex); err != nil {
		return nil, fmt.Errorf("failed to decode explanation: %w", err)
	}
	if ex.Components == nil {
		ex.Components = []string{}
	}
	if ex.EdgeCases == nil {
		ex.EdgeCases = []string{}
	}
	return &ex, nil
}
