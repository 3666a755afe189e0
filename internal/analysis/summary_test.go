package analysis

import (
	"testing"

	"veritrace/internal/domain"
)

func summaryProject() domain.Project {
	return domain.Project{ID: "P-1", Name: "LIMS", SystemType: "GxP"}
}

func TestBuildSummaryApproved(t *testing.T) {
	snap := Snapshot{
		Requirements: []domain.Requirement{
			{ID: "URS-1", Status: domain.ReqApproved},
		},
		FunctionalSpecs: []domain.FunctionalSpec{
			{ID: "FS-1", RequirementID: "URS-1", Status: domain.SpecApproved},
		},
		TestCases: []domain.TestCase{
			{ID: "TC-1", FunctionalSpecID: "FS-1", RequirementID: "URS-1"},
		},
		Executions: []domain.TestExecution{
			{ID: "EX-1", TestCaseID: "TC-1", Result: domain.ResultPass},
		},
	}
	got := BuildSummary(summaryProject(), []string{"21 CFR Part 11"}, snap)
	if got.Decision != "Approved" {
		t.Fatalf("decision = %s, want Approved", got.Decision)
	}
	if got.Testing.PassRate != "100.0%" {
		t.Errorf("pass rate = %s", got.Testing.PassRate)
	}
	if got.Coverage.CoveragePct != "100%" {
		t.Errorf("coverage = %s", got.Coverage.CoveragePct)
	}
	if got.Traceability.CompleteChains != 1 || len(got.Traceability.Gaps) != 0 {
		t.Errorf("traceability = %+v", got.Traceability)
	}
	if len(got.Conditions) != 0 {
		t.Errorf("conditions = %v, want none", got.Conditions)
	}
}

func TestBuildSummaryConditionallyApproved(t *testing.T) {
	snap := Snapshot{
		Requirements: []domain.Requirement{{ID: "URS-1"}},
		TestCases:    []domain.TestCase{{ID: "TC-1", RequirementID: "URS-1"}},
		Executions: []domain.TestExecution{
			{ID: "EX-1", TestCaseID: "TC-1", Result: domain.ResultPass},
		},
		Deviations: []domain.Deviation{
			{ID: "DEV-1", Severity: domain.RiskHigh, Status: domain.DevInvestigating},
		},
	}
	got := BuildSummary(summaryProject(), nil, snap)
	if got.Decision != "Conditionally Approved" {
		t.Fatalf("decision = %s, want Conditionally Approved", got.Decision)
	}
	if got.Conditions[0] != "Close 1 open deviation(s)" {
		t.Errorf("conditions = %v", got.Conditions)
	}
	if got.Deviations.Open != 1 || got.Deviations.BySeverity[domain.RiskHigh] != 1 {
		t.Errorf("deviations = %+v", got.Deviations)
	}
}

func TestBuildSummaryNotApprovedWhenNoTests(t *testing.T) {
	snap := Snapshot{
		Requirements: []domain.Requirement{{ID: "URS-1"}},
	}
	got := BuildSummary(summaryProject(), nil, snap)
	if got.Decision != "Not Approved" {
		t.Fatalf("decision = %s, want Not Approved", got.Decision)
	}
	if got.Testing.PassRate != "N/A" {
		t.Errorf("pass rate = %s, want N/A on zero executions", got.Testing.PassRate)
	}
	if got.Traceability.PartialChains != 1 || len(got.Traceability.Gaps) != 1 {
		t.Errorf("traceability = %+v", got.Traceability)
	}
}

func TestBuildSummaryFailureBlocksApproval(t *testing.T) {
	snap := Snapshot{
		Requirements: []domain.Requirement{{ID: "URS-1"}},
		TestCases:    []domain.TestCase{{ID: "TC-1", RequirementID: "URS-1"}},
		Executions: []domain.TestExecution{
			{ID: "EX-1", TestCaseID: "TC-1", Result: domain.ResultPass},
			{ID: "EX-2", TestCaseID: "TC-1", Result: domain.ResultFail},
		},
	}
	got := BuildSummary(summaryProject(), nil, snap)
	if got.Decision != "Not Approved" {
		t.Fatalf("decision = %s, want Not Approved with a failure and no open deviation", got.Decision)
	}
	if got.Testing.PassRate != "50.0%" {
		t.Errorf("pass rate = %s", got.Testing.PassRate)
	}
}

func TestBuildSummaryCAPACounts(t *testing.T) {
	snap := Snapshot{
		Deviations: []domain.Deviation{
			{ID: "DEV-1", Severity: domain.RiskLow, Status: domain.DevClosed, CAPACorrective: "fix"},
			{ID: "DEV-2", Severity: domain.RiskLow, Status: domain.DevCAPAAssigned, CAPACorrective: "fix"},
			{ID: "DEV-3", Severity: domain.RiskLow, Status: domain.DevOpen},
		},
	}
	got := BuildSummary(summaryProject(), nil, snap)
	if got.CAPA.Total != 2 || got.CAPA.Verified != 1 || got.CAPA.Pending != 1 {
		t.Errorf("capa = %+v", got.CAPA)
	}
	if got.Deviations.Closed != 1 || got.Deviations.Open != 2 {
		t.Errorf("deviations = %+v", got.Deviations)
	}
}
