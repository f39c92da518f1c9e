package review

import (
	"fmt"

	"github.com/owenrumney/go-sarif/v2/sarif"
)

// SARIF rule IDs, one per review category.
const (
	ruleCodeQuality   = "code-quality"
	ruleSecurity      = "security-vulnerability"
	rulePractices     = "engineering-practices"
	ruleDocumentation = "documentation"
)

const toolInformationURI = "https://github.com/jackzampolin/critic"

// ToSARIF renders a review result as a SARIF 2.1.0 report suitable for
// code scanning upload. target is the URI of the reviewed artifact;
// criticality maps onto SARIF levels (0-1 note, 2-3 warning, 4-5 error).
// The review schema carries no line information, so every result points
// at the top of the artifact.
func ToSARIF(res *ReviewResult, target string) (*sarif.Report, error) {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return nil, fmt.Errorf("failed to create sarif report: %w", err)
	}

	run := sarif.NewRunWithInformationURI("critic", toolInformationURI)
	run.AddRule(ruleCodeQuality).
		WithDescription("Code quality issue found during automated review")
	run.AddRule(ruleSecurity).
		WithDescription("Security vulnerability found during automated review")
	run.AddRule(rulePractices).
		WithDescription("Engineering practices issue found during automated review")
	run.AddRule(ruleDocumentation).
		WithDescription("Documentation issue found during automated review")

	addIssueResults(run, ruleCodeQuality, target, res.CodeIssues)
	addIssueResults(run, ruleSecurity, target, res.SecurityVulnerabilityIssues)
	addIssueResults(run, rulePractices, target, res.EngineeringPracticesIssues)
	for _, issue := range res.DocumentationIssues {
		addResult(run, ruleDocumentation, "note", target, issue.IssueDescription)
	}

	report.AddRun(run)
	return report, nil
}

func addIssueResults(run *sarif.Run, ruleID, target string, issues []IssueRecord) {
	for _, issue := range issues {
		msg := issue.Description
		if issue.IssueType != "" {
			msg = fmt.Sprintf("%s: %s", issue.IssueType, issue.Description)
		}
		addResult(run, ruleID, sarifLevel(issue.CriticalityLevel), target, msg)
	}
}

func addResult(run *sarif.Run, ruleID, level, target, message string) {
	run.CreateResultForRule(ruleID).
		WithLevel(level).
		WithMessage(sarif.NewTextMessage(message)).
		WithLocations([]*sarif.Location{
			sarif.NewLocationWithPhysicalLocation(
				sarif.NewPhysicalLocation().
					WithArtifactLocation(sarif.NewSimpleArtifactLocation(target)).
					WithRegion(sarif.NewSimpleRegion(1, 1)),
			),
		})
}

// sarifLevel maps a criticality level onto a SARIF result level.
func sarifLevel(criticality int) string {
	switch {
	case criticality >= 4:
		return "error"
	case criticality >= 2:
		return "warning"
	}
	return "note"
}
