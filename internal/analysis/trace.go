package analysis

import "veritrace/internal/domain"

// TraceabilityRow is one row of the requirements traceability matrix.
// A requirement fans out to one row per functional spec per test case;
// a requirement with no specs, or a spec with no test cases, still
// produces a row so gaps stay visible.
type TraceabilityRow struct {
	RequirementID     string `json:"requirement_id"`
	RequirementTitle  string `json:"requirement_title"`
	RequirementStatus string `json:"requirement_status"`
	RequirementRisk   string `json:"requirement_risk"`
	SpecID            string `json:"spec_id,omitempty"`
	SpecTitle         string `json:"spec_title,omitempty"`
	SpecStatus        string `json:"spec_status,omitempty"`
	DesignID          string `json:"design_id,omitempty"`
	DesignTitle       string `json:"design_title,omitempty"`
	TestCaseID        string `json:"test_case_id,omitempty"`
	TestCaseTitle     string `json:"test_case_title,omitempty"`
	TestType          string `json:"test_type,omitempty"`
	ExecutionID       string `json:"execution_id,omitempty"`
	ExecutionResult   string `json:"execution_result,omitempty"`
	ExecutedAt        string `json:"executed_at,omitempty"`
	DeviationID       string `json:"deviation_id,omitempty"`
	DeviationStatus   string `json:"deviation_status,omitempty"`
	Status            string `json:"status" enum:"Not Started,Partial,Complete,Failed"`
}

// BuildTraceability derives the full traceability matrix for a project.
// For each test case the authoritative execution is the one with the
// latest executed_at timestamp; ties go to the greater execution id so
// the choice is deterministic under identical timestamps.
func BuildTraceability(snap Snapshot) []TraceabilityRow {
	specsByReq := map[string][]domain.FunctionalSpec{}
	for _, fs := range snap.FunctionalSpecs {
		specsByReq[fs.RequirementID] = append(specsByReq[fs.RequirementID], fs)
	}
	designsBySpec := map[string][]domain.DesignSpec{}
	for _, ds := range snap.DesignSpecs {
		designsBySpec[ds.FunctionalSpecID] = append(designsBySpec[ds.FunctionalSpecID], ds)
	}
	casesBySpec := map[string][]domain.TestCase{}
	for _, tc := range snap.TestCases {
		casesBySpec[tc.FunctionalSpecID] = append(casesBySpec[tc.FunctionalSpecID], tc)
	}
	execsByCase := map[string][]domain.TestExecution{}
	for _, ex := range snap.Executions {
		execsByCase[ex.TestCaseID] = append(execsByCase[ex.TestCaseID], ex)
	}
	deviations := map[string]domain.Deviation{}
	for _, d := range snap.Deviations {
		deviations[d.ID] = d
	}

	matrix := []TraceabilityRow{}
	for _, req := range snap.Requirements {
		base := TraceabilityRow{
			RequirementID:     req.ID,
			RequirementTitle:  req.Title,
			RequirementStatus: req.Status,
			RequirementRisk:   req.OverallRisk,
		}
		specs := specsByReq[req.ID]
		if len(specs) == 0 {
			row := base
			row.Status = "Not Started"
			matrix = append(matrix, row)
			continue
		}
		for _, fs := range specs {
			withSpec := base
			withSpec.SpecID = fs.ID
			withSpec.SpecTitle = fs.Title
			withSpec.SpecStatus = fs.Status
			if designs := designsBySpec[fs.ID]; len(designs) > 0 {
				withSpec.DesignID = designs[0].ID
				withSpec.DesignTitle = designs[0].Title
			}
			cases := casesBySpec[fs.ID]
			if len(cases) == 0 {
				row := withSpec
				row.Status = "Partial"
				matrix = append(matrix, row)
				continue
			}
			for _, tc := range cases {
				row := withSpec
				row.TestCaseID = tc.ID
				row.TestCaseTitle = tc.Title
				row.TestType = tc.TestType
				row.Status = "Partial"
				if ex, ok := latestExecution(execsByCase[tc.ID]); ok {
					row.ExecutionID = ex.ID
					row.ExecutionResult = ex.Result
					row.ExecutedAt = ex.ExecutedAt
					if ex.Result != domain.ResultNotExecuted {
						row.Status = "Complete"
					}
					if ex.Result == domain.ResultFail {
						row.Status = "Failed"
					}
					if ex.DeviationID != nil {
						if dev, ok := deviations[*ex.DeviationID]; ok {
							row.DeviationID = dev.ID
							row.DeviationStatus = dev.Status
						}
					}
				}
				matrix = append(matrix, row)
			}
		}
	}
	return matrix
}

func latestExecution(execs []domain.TestExecution) (domain.TestExecution, bool) {
	if len(execs) == 0 {
		return domain.TestExecution{}, false
	}
	best := execs[0]
	for _, ex := range execs[1:] {
		if ex.ExecutedAt > best.ExecutedAt || (ex.ExecutedAt == best.ExecutedAt && ex.ID > best.ID) {
			best = ex
		}
	}
	return best, true
}
