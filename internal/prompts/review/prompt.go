// Package review holds the code review prompt templates. The structured
// variant instructs the model to answer through the code_review function;
// the freetext variant spells out the JSON contract inline for providers
// called without native structured output.
package review

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/jackzampolin/critic/internal/prompts"
)

//go:embed system.tmpl
var systemPrompt string

//go:embed structured.tmpl
var structuredPrompt string

//go:embed freetext.tmpl
var freetextPrompt string

// Hierarchical prompt keys.
const (
	SystemKey     = "review.system"
	StructuredKey = "review.structured"
	FreetextKey   = "review.freetext"
)

var (
	structuredTmpl = template.Must(template.New(StructuredKey).Parse(structuredPrompt))
	freetextTmpl   = template.Must(template.New(FreetextKey).Parse(freetextPrompt))
)

// PromptData carries the template inputs for a review prompt.
type PromptData struct {
	Code     string
	Language string
}

// SystemPrompt returns the reviewer persona used as the system message.
func SystemPrompt() string {
	return strings.TrimSpace(systemPrompt)
}

// StructuredPrompt renders the user prompt for function-calling providers.
func StructuredPrompt(data PromptData) (string, error) {
	var b strings.Builder
	if err := structuredTmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render structured review prompt: %w", err)
	}
	return b.String(), nil
}

// FreetextPrompt renders the user prompt that spells out the JSON contract
// for providers without structured output support.
func FreetextPrompt(data PromptData) (string, error) {
	var b strings.Builder
	if err := freetextTmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render freetext review prompt: %w", err)
	}
	return b.String(), nil
}

// RegisterPrompts registers the review prompts with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         SystemKey,
		Text:        systemPrompt,
		Description: "Code reviewer persona system prompt",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         StructuredKey,
		Text:        structuredPrompt,
		Description: "Review request for providers answering through the code_review function",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         FreetextKey,
		Text:        freetextPrompt,
		Description: "Review request with the inline JSON contract for freetext providers",
	})
}
