package review

// IssueRecord is a single finding in one of the issue categories.
// CriticalityLevel runs 0 (low) to 5 (high).
type IssueRecord struct {
	IssueType        string `json:"issueType"`
	Description      string `json:"description"`
	CriticalityLevel int    `json:"criticalityLevel"`
}

// DocumentationIssue is a single documentation finding.
type DocumentationIssue struct {
	IssueDescription string `json:"issueDescription"`
}

// ReviewResult is the validated code review document. After a successful
// extraction every slice field is non-nil: empty categories are empty
// slices, never null.
type ReviewResult struct {
	CodeIssues                  []IssueRecord        `json:"codeIssues"`
	SecurityVulnerabilityIssues []IssueRecord        `json:"securityVulnerabilityIssues"`
	EngineeringPracticesIssues  []IssueRecord        `json:"engineeringPracticesIssues"`
	DocumentationIssues         []DocumentationIssue `json:"documentationIssues"`
	ReviewScore                 float64              `json:"reviewScore"`
	RefactoredCode              string               `json:"refactoredCode"`
}

// IssueCount returns the total number of findings across all categories.
func (r *ReviewResult) IssueCount() int {
	return len(r.CodeIssues) +
		len(r.SecurityVulnerabilityIssues) +
		len(r.EngineeringPracticesIssues) +
		len(r.DocumentationIssues)
}

// MaxCriticality returns the highest criticality level across the issue
// categories, or 0 when no leveled findings exist.
func (r *ReviewResult) MaxCriticality() int {
	max := 0
	for _, group := range [][]IssueRecord{
		r.CodeIssues,
		r.SecurityVulnerabilityIssues,
		r.EngineeringPracticesIssues,
	} {
		for _, issue := range group {
			if issue.CriticalityLevel > max {
				max = issue.CriticalityLevel
			}
		}
	}
	return max
}

// ComplexityEstimate holds big-O style time and space estimates.
type ComplexityEstimate struct {
	Time  string `json:"time,omitempty"`
	Space string `json:"space,omitempty"`
}

// CodeExplanation is the validated code explanation document.
type CodeExplanation struct {
	Purpose    string             `json:"purpose,omitempty"`
	Components []string           `json:"components"`
	Algorithm  string             `json:"algorithm,omitempty"`
	Complexity ComplexityEstimate `json:"complexity"`
	EdgeCases  []string           `json:"edgeCases"`
}
