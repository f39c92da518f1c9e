package review

import (
	"strings"
	"testing"

	"github.com/jackzampolin/critic/internal/prompts"
)

func TestStructuredPrompt(t *testing.T) {
	got, err := StructuredPrompt(PromptData{Code: "def f():\n    pass", Language: "Python"})
	if err != nil {
		t.Fatalf("StructuredPrompt() error = %v", err)
	}
	if !strings.Contains(got, "def f():") {
		t.Error("prompt missing the code under review")
	}
	if !strings.Contains(got, "code_review") {
		t.Error("prompt missing the function name")
	}
	if !strings.Contains(got, "written in Python") {
		t.Error("prompt missing the language hint")
	}

	noLang, err := StructuredPrompt(PromptData{Code: "x = 1"})
	if err != nil {
		t.Fatalf("StructuredPrompt() error = %v", err)
	}
	if strings.Contains(noLang, "written in") {
		t.Error("language hint should be omitted when unset")
	}
}

func TestFreetextPromptSpellsOutContract(t *testing.T) {
	got, err := FreetextPrompt(PromptData{Code: "SELECT 1"})
	if err != nil {
		t.Fatalf("FreetextPrompt() error = %v", err)
	}
	for _, want := range []string{
		"codeIssues",
		"securityVulnerabilityIssues",
		"engineeringPracticesIssues",
		"documentationIssues",
		"reviewScore",
		"refactoredCode",
		"SELECT 1",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("freetext prompt missing %q", want)
		}
	}
}

func TestRegisterPrompts(t *testing.T) {
	r := prompts.NewResolver(nil)
	RegisterPrompts(r)

	for _, key := range []string{SystemKey, StructuredKey, FreetextKey} {
		if _, ok := r.Get(key); !ok {
			t.Errorf("prompt %s not registered", key)
		}
	}
}
