package review

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Mode selects how a raw model reply is interpreted.
type Mode int

const (
	// ModeStructured treats the reply as a complete JSON document, as
	// produced by native function calls or schema-constrained outputs.
	ModeStructured Mode = iota
	// ModeFreeText treats the reply as prose that should contain a JSON
	// document, possibly fenced, prefixed, or mangled by the model.
	ModeFreeText
)

func (m Mode) String() string {
	if m == ModeStructured {
		return "structured"
	}
	return "freetext"
}

// ParseMode maps a config or API mode string to a Mode. The empty string
// defaults to freetext, the safe interpretation for unknown providers.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "structured", "function", "tool":
		return ModeStructured, nil
	case "freetext", "free_text", "text", "":
		return ModeFreeText, nil
	}
	return ModeFreeText, fmt.Errorf("unknown extraction mode %q", s)
}

// Extract turns a raw model reply into a validated document. Reply
// problems surface as a Failure on the Result, never as a panic or a Go
// error; one reply in, one result out, no re-prompting.
func Extract(raw string, schema *SchemaDescriptor, mode Mode) *Result {
	if mode == ModeStructured {
		return extractStructured(raw, schema)
	}
	return extractFreeText(raw, schema)
}

// extractStructured parses a reply that is already supposed to be JSON.
// No recovery: a structured channel that emits garbage is malformed.
func extractStructured(raw string, schema *SchemaDescriptor) *Result {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return failed(&Failure{
			Reason: MalformedJSON,
			Detail: err.Error(),
		}, raw)
	}
	return finish(doc, schema, raw)
}

// extractFreeText runs the recovery pipeline: fence stripping, boundary
// scan, direct parse, then tail-field recovery.
func extractFreeText(raw string, schema *SchemaDescriptor) *Result {
	body := stripFences(raw)
	if body == "" {
		return failed(&Failure{
			Reason: EmptyPayload,
			Detail: "no content after stripping code fences",
		}, raw)
	}

	start := strings.Index(body, "{")
	if start < 0 {
		return failed(&Failure{
			Reason: NoJSONFound,
			Detail: "reply contains no JSON object",
		}, raw)
	}
	candidate := body[start:]

	if doc, err := decodeFirstObject(candidate); err == nil {
		return finish(doc, schema, raw)
	}

	if doc, ok := recoverTail(candidate, schema); ok {
		return finish(doc, schema, raw)
	}

	return failed(&Failure{
		Reason: MalformedJSON,
		Detail: "reply does not contain a parseable JSON object",
	}, raw)
}

func failed(f *Failure, raw string) *Result {
	f.Raw = raw
	return &Result{Failure: f}
}

// finish validates the decoded document and normalizes it to canonical
// JSON.
func finish(doc any, schema *SchemaDescriptor, raw string) *Result {
	if f := validateDocument(doc, schema); f != nil {
		return failed(f, raw)
	}
	normalized, err := json.Marshal(doc)
	if err != nil {
		return failed(&Failure{
			Reason: MalformedJSON,
			Detail: "failed to normalize document: " + err.Error(),
		}, raw)
	}
	return &Result{Doc: normalized}
}

// stripFences removes a single leading markdown fence line (```json or
// bare ```) and a trailing fence line, then trims whitespace. Unfenced
// input comes back trimmed. Stripping already-stripped output changes
// nothing.
func stripFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	lines := strings.Split(trimmed, "\n")
	// Drop the fence line itself, including any language tag.
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// decodeFirstObject decodes the first JSON value starting at the head of
// the candidate, tolerating trailing prose after the closing brace.
func decodeFirstObject(candidate string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(candidate))
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// recoverTail salvages documents whose final string field carries raw
// newlines or quotes the model failed to escape, a frequent failure shape
// when refactored code is returned inline. The tail value is taken
// verbatim from just past its opening quote to the closing boundary, the
// head is parsed with a placeholder, and the recovered value substituted
// back in.
func recoverTail(candidate string, schema *SchemaDescriptor) (map[string]any, bool) {
	tail, ok := schema.TailStringField()
	if !ok {
		return nil, false
	}

	keyToken := `"` + tail.Name + `"`
	keyPos := strings.Index(candidate, keyToken)
	if keyPos < 0 {
		return nil, false
	}

	rest := candidate[keyPos+len(keyToken):]
	colon := strings.Index(rest, ":")
	if colon < 0 {
		return nil, false
	}
	quote := strings.Index(rest[colon+1:], `"`)
	if quote < 0 {
		return nil, false
	}
	if probe := rest[colon+1 : colon+1+quote]; strings.TrimSpace(probe) != "" {
		// Something other than whitespace between colon and quote; the
		// value is not a string literal here.
		return nil, false
	}
	valStart := keyPos + len(keyToken) + colon + 1 + quote + 1

	value := tailValue(candidate[valStart:])
	// Models often double-escape newlines in code; the recovered bytes
	// keep everything else verbatim.
	value = strings.ReplaceAll(value, `\n`, "\n")

	head := strings.TrimRight(candidate[:keyPos], " \t\r\n")
	synthesized := head + keyToken + `:""}`

	var doc map[string]any
	if err := json.Unmarshal([]byte(synthesized), &doc); err != nil {
		return nil, false
	}
	doc[tail.Name] = value
	return doc, true
}

// tailValue isolates the verbatim tail value given everything past its
// opening quote. The value ends at the last closing quote that is
// followed only by whitespace and a closing brace; trailing prose or
// fences beyond that boundary are discarded. A reply truncated before the
// boundary is used as-is minus trailing quote/brace/fence characters.
func tailValue(s string) string {
	end := strings.LastIndex(s, "}")
	for end >= 0 {
		q := strings.LastIndex(s[:end], `"`)
		if q < 0 {
			break
		}
		if strings.TrimSpace(s[q+1:end]) == "" {
			return s[:q]
		}
		end = strings.LastIndex(s[:end], "}")
	}
	return strings.TrimRight(s, "\"`} \t\r\n")
}
