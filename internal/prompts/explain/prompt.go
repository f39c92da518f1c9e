// Package explain holds the code explanation prompt templates.
package explain

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
	SystemKey = "explain.system"
	UserKey   = "explain.user"
)

var userTmpl = template.Must(template.New(UserKey).Parse(userPrompt))

// PromptData carries the template inputs for an explanation prompt.
type PromptData struct {
	Code     string
	Language string
}

// SystemPrompt returns the explainer persona used as the system message.
func SystemPrompt() string {
	return strings.TrimSpace(systemPrompt)
}

// UserPrompt renders the explanation request.
func UserPrompt(data PromptData) (string, error) {
	var b strings.Builder
	if err := userTmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render explanation prompt: %w", err)
	}
	return b.String(), nil
}

// RegisterPrompts registers the explanation prompts with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         SystemKey,
		Text:        systemPrompt,
		Description: "Code explainer persona system prompt",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         UserKey,
		Text:        userPrompt,
		Description: "Explanation request with the JSON contract inline",
	})
}
