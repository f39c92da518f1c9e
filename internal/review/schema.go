// Package review implements schema-constrained extraction of code review
// documents from model replies. A SchemaDescriptor declares the expected
// document shape; Extract turns a raw reply into a validated Result with
// failures carried as data rather than Go errors.
package review

import (
	"encoding/json"
)

// FieldKind enumerates the value shapes a schema field can declare.
type FieldKind int

const (
	KindString FieldKind = iota
	KindNumber
	KindInteger
	KindObject
	KindObjectArray
	KindStringArray
)

func (k FieldKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindInteger:
		return "integer"
	case KindObject:
		return "object"
	case KindObjectArray:
		return "object array"
	case KindStringArray:
		return "string array"
	}
	return "unknown"
}

// Bounds is an inclusive numeric range. Out-of-range values are rejected
// during validation, never clamped.
type Bounds struct {
	Min float64
	Max float64
}

// Field describes one named field of a document shape. Declaration order
// matters: the last declared field is the tail recovery candidate during
// free-text extraction.
type Field struct {
	Name     string
	Kind     FieldKind
	Desc     string
	Required bool
	Bounds   *Bounds
	Sub      []Field // element shape for KindObject and KindObjectArray
}

// SchemaDescriptor declares the document shape a model reply must match.
// It is the single source of truth for validation, response format
// generation, and provider tool declarations.
type SchemaDescriptor struct {
	Name   string
	Desc   string
	Fields []Field
}

// Required returns the names of required top-level fields in declared order.
func (d *SchemaDescriptor) Required() []string {
	var names []string
	for _, f := range d.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// Field returns the declared field with the given name.
func (d *SchemaDescriptor) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// TailStringField returns the last declared field when its kind is string.
// Only such a field is eligible for tail recovery during free-text
// extraction; schemas ending in a non-string field get no recovery pass.
func (d *SchemaDescriptor) TailStringField() (Field, bool) {
	if len(d.Fields) == 0 {
		return Field{}, false
	}
	last := d.Fields[len(d.Fields)-1]
	if last.Kind != KindString {
		return Field{}, false
	}
	return last, true
}

// issueRecordFields is the shared sub-shape of the three issue categories.
func issueRecordFields(typeDesc, descDesc, critDesc string) []Field {
	return []Field{
		{Name: "issueType", Kind: KindString, Desc: typeDesc, Required: true},
		{Name: "description", Kind: KindString, Desc: descDesc, Required: true},
		{Name: "criticalityLevel", Kind: KindInteger, Desc: critDesc, Required: true, Bounds: &Bounds{Min: 0, Max: 5}},
	}
}

// CodeReview returns the descriptor for the code review document. All six
// fields are required; refactoredCode is declared last so truncated or
// unescaped code blocks remain recoverable from free-text replies.
func CodeReview() *SchemaDescriptor {
	return &SchemaDescriptor{
		Name: "code_review",
		Desc: "Review code and provide detailed analysis",
		Fields: []Field{
			{
				Name: "codeIssues", Kind: KindObjectArray, Required: true,
				Sub: issueRecordFields(
					"Type of the code issue (e.g., logic error, redundancy, performance bottleneck)",
					"Detailed description of the issue",
					"Criticality level of the issue (0 - low, 5 - high)",
				),
			},
			{
				Name: "securityVulnerabilityIssues", Kind: KindObjectArray, Required: true,
				Sub: issueRecordFields(
					"Type of security vulnerability (e.g., SQL injection, XSS, hardcoded credentials)",
					"Description of the vulnerability",
					"Criticality level (0-5)",
				),
			},
			{
				Name: "engineeringPracticesIssues", Kind: KindObjectArray, Required: true,
				Sub: issueRecordFields(
					"Type of engineering practice issue (e.g., naming conventions, meaningful function names)",
					"Detailed description of the issue along with relevant code context",
					"Criticality level (0 = low, 5 = high)",
				),
			},
			{
				Name: "documentationIssues", Kind: KindObjectArray, Required: true,
				Sub: []Field{
					{
						Name: "issueDescription", Kind: KindString, Required: true,
						Desc: "Description of documentation issue (e.g., missing class-level comments, lack of function docstrings, unclear inline comments)",
					},
				},
			},
			{
				Name: "reviewScore", Kind: KindNumber, Required: true,
				Desc:   "Overall code review score in percentage (0-100)",
				Bounds: &Bounds{Min: 0, Max: 100},
			},
			{
				Name: "refactoredCode", Kind: KindString, Required: true,
				Desc: "Refactored version of the input code with improvements applied",
			},
		},
	}
}

// CodeExplanationSchema returns the descriptor for the code explanation
// document. No field is required; the model fills in what applies. The
// validated document decodes into CodeExplanation.
func CodeExplanationSchema() *SchemaDescriptor {
	return &SchemaDescriptor{
		Name: "code_explanation",
		Desc: "Explain code in detail",
		Fields: []Field{
			{Name: "purpose", Kind: KindString},
			{Name: "components", Kind: KindStringArray},
			{Name: "algorithm", Kind: KindString},
			{
				Name: "complexity", Kind: KindObject,
				Sub: []Field{
					{Name: "time", Kind: KindString},
					{Name: "space", Kind: KindString},
				},
			},
			{Name: "edgeCases", Kind: KindStringArray},
		},
	}
}

// FunctionParameters returns the bare JSON schema object used as function
// parameters in provider tool declarations.
func (d *SchemaDescriptor) FunctionParameters() map[string]any {
	properties := make(map[string]any, len(d.Fields))
	for _, f := range d.Fields {
		properties[f.Name] = fieldSchema(f)
	}
	params := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if required := d.Required(); len(required) > 0 {
		params["required"] = required
	}
	return params
}

// JSONSchema returns the strict response_format wrapper understood by
// OpenAI-compatible chat endpoints. Strict mode demands every property be
// listed as required and additionalProperties be false; descriptor-level
// validation still applies the declared Required flags.
func (d *SchemaDescriptor) JSONSchema() json.RawMessage {
	properties := make(map[string]any, len(d.Fields))
	required := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		properties[f.Name] = fieldSchema(f)
		required = append(required, f.Name)
	}
	wrapper := map[string]any{
		"type": "json_schema",
		"json_schema": map[string]any{
			"name":   d.Name,
			"strict": true,
			"schema": map[string]any{
				"type":                 "object",
				"properties":           properties,
				"required":             required,
				"additionalProperties": false,
			},
		},
	}
	b, err := json.Marshal(wrapper)
	if err != nil {
		// Descriptors only contain marshalable literals.
		return nil
	}
	return b
}

func fieldSchema(f Field) map[string]any {
	node := map[string]any{}
	switch f.Kind {
	case KindString:
		node["type"] = "string"
	case KindNumber:
		node["type"] = "number"
	case KindInteger:
		node["type"] = "integer"
	case KindObject:
		node["type"] = "object"
		node["properties"] = subProperties(f.Sub)
		if required := subRequired(f.Sub); len(required) > 0 {
			node["required"] = required
		}
	case KindObjectArray:
		items := map[string]any{
			"type":       "object",
			"properties": subProperties(f.Sub),
		}
		if required := subRequired(f.Sub); len(required) > 0 {
			items["required"] = required
		}
		node["type"] = "array"
		node["items"] = items
	case KindStringArray:
		node["type"] = "array"
		node["items"] = map[string]any{"type": "string"}
	}
	if f.Desc != "" {
		node["description"] = f.Desc
	}
	if f.Bounds != nil {
		node["minimum"] = f.Bounds.Min
		node["maximum"] = f.Bounds.Max
	}
	return node
}

func subProperties(fields []Field) map[string]any {
	properties := make(map[string]any, len(fields))
	for _, f := range fields {
		properties[f.Name] = fieldSchema(f)
	}
	return properties
}

func subRequired(fields []Field) []string {
	var names []string
	for _, f := range fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}
