package analysis

import (
	"fmt"

	"veritrace/internal/domain"
)

// ConsistencyIssue is one cross-artifact violation found in a project.
type ConsistencyIssue struct {
	Entity      string `json:"entity"`
	EntityID    string `json:"entity_id"`
	IssueType   string `json:"issue_type"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
}

// ConsistencyReport lists all violations and an overall score,
// 100 minus 10 per issue, floored at 0.
type ConsistencyReport struct {
	ProjectID string             `json:"project_id"`
	Issues    []ConsistencyIssue `json:"issues"`
	Score     int                `json:"score"`
}

// CheckConsistency scans a project snapshot for structural violations:
// functional specs linked to a missing requirement, functional specs
// with no test coverage, and High or Critical requirements that are
// not approved. All violations are collected, never fail-fast.
func CheckConsistency(projectID string, snap Snapshot) ConsistencyReport {
	var issues []ConsistencyIssue

	reqIDs := make(map[string]bool, len(snap.Requirements))
	for _, r := range snap.Requirements {
		reqIDs[r.ID] = true
	}
	for _, fs := range snap.FunctionalSpecs {
		if !reqIDs[fs.RequirementID] {
			issues = append(issues, ConsistencyIssue{
				Entity:      "FunctionalSpec",
				EntityID:    fs.ID,
				IssueType:   "Orphan FS",
				Description: fmt.Sprintf("FS %s linked to non-existent URS %s", fs.ID, fs.RequirementID),
				Suggestion:  "Link to valid URS or remove",
			})
		}
	}

	testedFS := make(map[string]bool, len(snap.TestCases))
	for _, tc := range snap.TestCases {
		testedFS[tc.FunctionalSpecID] = true
	}
	for _, fs := range snap.FunctionalSpecs {
		if !testedFS[fs.ID] {
			issues = append(issues, ConsistencyIssue{
				Entity:      "FunctionalSpec",
				EntityID:    fs.ID,
				IssueType:   "Untested FS",
				Description: fmt.Sprintf("FS %s has no test cases", fs.ID),
				Suggestion:  "Create test cases for coverage",
			})
		}
	}

	for _, r := range snap.Requirements {
		if r.OverallRisk != domain.RiskHigh && r.OverallRisk != domain.RiskCritical {
			continue
		}
		if r.Status != domain.ReqApproved {
			issues = append(issues, ConsistencyIssue{
				Entity:      "Requirement",
				EntityID:    r.ID,
				IssueType:   "High Risk Unapproved",
				Description: fmt.Sprintf("High-risk URS %s is not approved", r.ID),
				Suggestion:  "Prioritize review and approval",
			})
		}
	}

	score := 100 - len(issues)*10
	if score < 0 {
		score = 0
	}
	return ConsistencyReport{ProjectID: projectID, Issues: issues, Score: score}
}
