// Package analyze holds the prompts for intent-driven analysis, where the
// model chooses between the review and explanation functions.
package analyze

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/jackzampolin/critic/internal/prompts"
)

//go:embed system.tmpl
var systemPrompt string

//go:embed user.tmpl
var userPrompt string

// Hierarchical prompt keys.
const (
	SystemKey = "analyze.system"
	UserKey   = "analyze.user"
)

// DefaultInstruction is used when the caller gives no instruction of
// their own.
const DefaultInstruction = "Review this code and point out anything worth fixing."

var userTmpl = template.Must(template.New(UserKey).Parse(userPrompt))

// PromptData carries the template inputs for an analysis prompt.
type PromptData struct {
	Code        string
	Instruction string
}

// SystemPrompt returns the dual-role persona used as the system message.
func SystemPrompt() string {
	return strings.TrimSpace(systemPrompt)
}

// UserPrompt renders the analysis request.
func UserPrompt(data PromptData) (string, error) {
	if strings.TrimSpace(data.Instruction) == "" {
		data.Instruction = DefaultInstruction
	}
	var b strings.Builder
	if err := userTmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render analysis prompt: %w", err)
	}
	return b.String(), nil
}

// RegisterPrompts registers the analysis prompts with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         SystemKey,
		Text:        systemPrompt,
		Description: "Dual review/explain persona system prompt",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         UserKey,
		Text:        userPrompt,
		Description: "Intent-driven analysis request; the model picks the function to call",
	})
}
