package analysis

import (
	"fmt"

	"veritrace/internal/domain"
)

type ScopeSummary struct {
	SystemName           string   `json:"system_name"`
	SystemType           string   `json:"system_type"`
	Regulations          []string `json:"regulations"`
	TotalRequirements    int      `json:"total_requirements"`
	ApprovedRequirements int      `json:"approved_requirements"`
	TotalSpecs           int      `json:"total_specs"`
	ApprovedSpecs        int      `json:"approved_specs"`
}

type TestingSummary struct {
	TotalTestCases  int    `json:"total_test_cases"`
	TotalExecutions int    `json:"total_executions"`
	Passed          int    `json:"passed"`
	Failed          int    `json:"failed"`
	Blocked         int    `json:"blocked"`
	NotExecuted     int    `json:"not_executed"`
	PassRate        string `json:"pass_rate"`
}

type CoverageSummary struct {
	RequirementsWithTests int    `json:"requirements_with_tests"`
	SpecsWithTests        int    `json:"specs_with_tests"`
	CoveragePct           string `json:"coverage_pct"`
}

type DeviationSummary struct {
	Total      int            `json:"total"`
	Open       int            `json:"open"`
	Closed     int            `json:"closed"`
	BySeverity map[string]int `json:"by_severity"`
}

type CAPASummary struct {
	Total    int `json:"total"`
	Verified int `json:"verified"`
	Pending  int `json:"pending"`
}

type ChangeSummary struct {
	Total    int `json:"total"`
	Approved int `json:"approved"`
	Pending  int `json:"pending"`
}

type TraceSummary struct {
	CompleteChains int      `json:"complete_chains"`
	PartialChains  int      `json:"partial_chains"`
	Gaps           []string `json:"gaps"`
}

// ValidationSummary is the validation summary report for a project:
// aggregate counts over every artifact kind plus the release decision.
type ValidationSummary struct {
	ProjectID      string           `json:"project_id"`
	ProjectName    string           `json:"project_name"`
	GeneratedAt    string           `json:"generated_at,omitempty" format:"date-time"`
	GeneratedBy    string           `json:"generated_by,omitempty"`
	Scope          ScopeSummary     `json:"scope"`
	Testing        TestingSummary   `json:"testing"`
	Coverage       CoverageSummary  `json:"coverage"`
	Deviations     DeviationSummary `json:"deviations"`
	CAPA           CAPASummary      `json:"capa"`
	Changes        ChangeSummary    `json:"changes"`
	Traceability   TraceSummary     `json:"traceability"`
	Decision       string           `json:"decision" enum:"Approved,Conditionally Approved,Not Approved"`
	Conclusion     string           `json:"conclusion"`
	Recommendation string           `json:"recommendation"`
	Conditions     []string         `json:"conditions"`
}

// BuildSummary synthesizes the validation summary for a project.
// Decision priority is fixed: Approved requires zero failures, zero
// open deviations, at least one test case and at least one pass;
// otherwise any open deviation yields Conditionally Approved; anything
// else is Not Approved. Rates degrade to "N/A" on empty denominators.
func BuildSummary(project domain.Project, regulations []string, snap Snapshot) ValidationSummary {
	approvedReqs := 0
	for _, r := range snap.Requirements {
		if r.Status == domain.ReqApproved {
			approvedReqs++
		}
	}
	approvedSpecs := 0
	for _, fs := range snap.FunctionalSpecs {
		if fs.Status == domain.SpecApproved {
			approvedSpecs++
		}
	}

	var passed, failed, blocked, notExecuted int
	for _, ex := range snap.Executions {
		switch ex.Result {
		case domain.ResultPass:
			passed++
		case domain.ResultFail:
			failed++
		case domain.ResultBlocked:
			blocked++
		case domain.ResultNotExecuted:
			notExecuted++
		}
	}
	passRate := "N/A"
	if len(snap.Executions) > 0 {
		passRate = fmt.Sprintf("%.1f%%", float64(passed)/float64(len(snap.Executions))*100)
	}

	reqsWithTests := map[string]bool{}
	specsWithTests := map[string]bool{}
	for _, tc := range snap.TestCases {
		reqsWithTests[tc.RequirementID] = true
		specsWithTests[tc.FunctionalSpecID] = true
	}
	coveragePct := "N/A"
	if len(snap.Requirements) > 0 {
		coveragePct = fmt.Sprintf("%.0f%%", float64(len(reqsWithTests))/float64(len(snap.Requirements))*100)
	}

	bySeverity := map[string]int{
		domain.RiskCritical: 0,
		domain.RiskHigh:     0,
		domain.RiskMedium:   0,
		domain.RiskLow:      0,
	}
	var openDevs, closedDevs int
	capa := CAPASummary{}
	for _, d := range snap.Deviations {
		bySeverity[d.Severity]++
		if d.Status == domain.DevClosed {
			closedDevs++
		} else {
			openDevs++
		}
		if d.CAPACorrective != "" {
			capa.Total++
			if d.Status == domain.DevCAPAVerified || d.Status == domain.DevClosed {
				capa.Verified++
			} else {
				capa.Pending++
			}
		}
	}

	changes := ChangeSummary{Total: len(snap.Changes)}
	for _, c := range snap.Changes {
		if c.Status == domain.ChangeApproved {
			changes.Approved++
		}
		if c.Status != domain.ChangeCompleted && c.Status != domain.ChangeRejected {
			changes.Pending++
		}
	}

	passedCases := map[string]bool{}
	for _, ex := range snap.Executions {
		if ex.Result == domain.ResultPass {
			passedCases[ex.TestCaseID] = true
		}
	}
	trace := TraceSummary{Gaps: []string{}}
	for _, r := range snap.Requirements {
		hasTest := false
		hasPass := false
		for _, tc := range snap.TestCases {
			if tc.RequirementID != r.ID {
				continue
			}
			hasTest = true
			if passedCases[tc.ID] {
				hasPass = true
			}
		}
		if hasPass {
			trace.CompleteChains++
		}
		if !hasTest {
			trace.PartialChains++
			trace.Gaps = append(trace.Gaps, r.ID)
		}
	}

	summary := ValidationSummary{
		ProjectID:   project.ID,
		ProjectName: project.Name,
		Scope: ScopeSummary{
			SystemName:           project.Name,
			SystemType:           project.SystemType,
			Regulations:          regulations,
			TotalRequirements:    len(snap.Requirements),
			ApprovedRequirements: approvedReqs,
			TotalSpecs:           len(snap.FunctionalSpecs),
			ApprovedSpecs:        approvedSpecs,
		},
		Testing: TestingSummary{
			TotalTestCases:  len(snap.TestCases),
			TotalExecutions: len(snap.Executions),
			Passed:          passed,
			Failed:          failed,
			Blocked:         blocked,
			NotExecuted:     notExecuted,
			PassRate:        passRate,
		},
		Coverage: CoverageSummary{
			RequirementsWithTests: len(reqsWithTests),
			SpecsWithTests:        len(specsWithTests),
			CoveragePct:           coveragePct,
		},
		Deviations: DeviationSummary{
			Total:      len(snap.Deviations),
			Open:       openDevs,
			Closed:     closedDevs,
			BySeverity: bySeverity,
		},
		CAPA:         capa,
		Changes:      changes,
		Traceability: trace,
	}

	switch {
	case failed == 0 && openDevs == 0 && len(snap.TestCases) > 0 && passed > 0:
		summary.Decision = "Approved"
		summary.Conclusion = "VALIDATION SUCCESSFUL - All testing completed with no open issues."
		summary.Recommendation = "System is recommended for production release."
		summary.Conditions = []string{}
	case openDevs > 0:
		summary.Decision = "Conditionally Approved"
		summary.Conclusion = "VALIDATION CONDITIONALLY COMPLETE - Open deviations require resolution."
		summary.Recommendation = "Resolve all deviations before production use."
		summary.Conditions = []string{
			fmt.Sprintf("Close %d open deviation(s)", openDevs),
			"Verify CAPA effectiveness",
		}
	default:
		summary.Decision = "Not Approved"
		summary.Conclusion = "VALIDATION IN PROGRESS - Testing incomplete."
		summary.Recommendation = "Complete all testing and resolve issues before release."
		summary.Conditions = []string{"Complete test execution", "Review all failures"}
	}
	return summary
}
