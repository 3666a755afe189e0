package analysis

import (
	"fmt"
	"strings"

	"veritrace/internal/domain"
)

// ChangeImpact describes the blast radius of a proposed change.
type ChangeImpact struct {
	ChangeID             string   `json:"change_id"`
	AffectedRequirements []string `json:"affected_requirements"`
	AffectedSpecs        []string `json:"affected_specs"`
	AffectedTestCases    []string `json:"affected_test_cases"`
	RevalidationRequired bool     `json:"revalidation_required"`
	EstimatedEffort      string   `json:"estimated_effort"`
	RiskLevel            string   `json:"risk_level" enum:"Low,Medium"`
}

// AnalyzeChangeImpact propagates a change request's description through
// the traceability chain. Tokens longer than four characters from the
// description are matched as substrings against each requirement's
// title and description; impact then flows requirement to spec to test
// case. A test case is affected when either parent is, counted once.
func AnalyzeChangeImpact(change domain.ChangeRequest, snap Snapshot) ChangeImpact {
	var keywords []string
	for _, tok := range strings.Fields(strings.ToLower(change.Description)) {
		if len(tok) > 4 {
			keywords = append(keywords, tok)
		}
	}

	affectedReqs := []string{}
	reqSet := map[string]bool{}
	for _, r := range snap.Requirements {
		text := strings.ToLower(r.Title + " " + r.Description)
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				affectedReqs = append(affectedReqs, r.ID)
				reqSet[r.ID] = true
				break
			}
		}
	}

	affectedSpecs := []string{}
	specSet := map[string]bool{}
	for _, fs := range snap.FunctionalSpecs {
		if reqSet[fs.RequirementID] {
			affectedSpecs = append(affectedSpecs, fs.ID)
			specSet[fs.ID] = true
		}
	}

	affectedTCs := []string{}
	for _, tc := range snap.TestCases {
		if specSet[tc.FunctionalSpecID] || reqSet[tc.RequirementID] {
			affectedTCs = append(affectedTCs, tc.ID)
		}
	}

	revalidation := len(affectedReqs) > 0 || len(affectedTCs) > 0
	risk := domain.RiskLow
	if revalidation {
		risk = domain.RiskMedium
	}

	return ChangeImpact{
		ChangeID:             change.ID,
		AffectedRequirements: affectedReqs,
		AffectedSpecs:        affectedSpecs,
		AffectedTestCases:    affectedTCs,
		RevalidationRequired: revalidation,
		EstimatedEffort:      fmt.Sprintf("%d test cases to re-execute", len(affectedTCs)),
		RiskLevel:            risk,
	}
}
