package analysis

import (
	"math"
	"strings"

	"veritrace/internal/domain"
)

// AmbiguityIssue is one flagged phrase or structural gap in a requirement.
type AmbiguityIssue struct {
	Category   string `json:"category"`
	Term       string `json:"term"`
	Suggestion string `json:"suggestion"`
}

// AmbiguityReport carries the findings for a single requirement.
// Score is 0 (precise) to 1 (highly ambiguous), rounded to 2 decimals.
type AmbiguityReport struct {
	RequirementID string           `json:"requirement_id"`
	Score         float64          `json:"ambiguity_score"`
	Issues        []AmbiguityIssue `json:"issues"`
	Suggestions   []string         `json:"suggestions"`
}

// DetectAmbiguity scans a requirement's title and description for vague
// language and structural gaps. Pattern issues contribute 0.15 each;
// a missing shall/must imperative adds 0.10 and empty acceptance
// criteria adds 0.20, each capped at 1.0.
func DetectAmbiguity(req domain.Requirement) AmbiguityReport {
	text := strings.ToLower(req.Title + " " + req.Description)
	var issues []AmbiguityIssue

	for _, p := range ambiguityPatterns {
		if strings.Contains(text, p.Term) {
			issues = append(issues, AmbiguityIssue{
				Category:   p.Category,
				Term:       p.Term,
				Suggestion: p.Suggestion,
			})
		}
	}

	score := math.Min(float64(len(issues))*0.15, 1.0)

	if !strings.Contains(text, "shall") && !strings.Contains(text, "must") {
		issues = append(issues, AmbiguityIssue{
			Category:   "Missing Imperative",
			Term:       "No 'shall' or 'must'",
			Suggestion: "Add clear imperative language for requirements",
		})
		score = math.Min(score+0.1, 1.0)
	}

	if req.AcceptanceCriteria == "" {
		issues = append(issues, AmbiguityIssue{
			Category:   "Missing Acceptance Criteria",
			Term:       "No acceptance criteria",
			Suggestion: "Define measurable acceptance criteria",
		})
		score = math.Min(score+0.2, 1.0)
	}

	suggestions := make([]string, 0, 3)
	for _, issue := range issues {
		if len(suggestions) == 3 {
			break
		}
		suggestions = append(suggestions, issue.Suggestion)
	}

	return AmbiguityReport{
		RequirementID: req.ID,
		Score:         math.Round(score*100) / 100,
		Issues:        issues,
		Suggestions:   suggestions,
	}
}
