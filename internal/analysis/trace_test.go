package analysis

import (
	"testing"

	"veritrace/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestBuildTraceabilityFanOut(t *testing.T) {
	snap := Snapshot{
		Requirements: []domain.Requirement{
			{ID: "URS-1", Title: "Tracked", Status: domain.ReqApproved, OverallRisk: domain.RiskHigh},
			{ID: "URS-2", Title: "Bare", Status: domain.ReqDraft, OverallRisk: domain.RiskLow},
		},
		FunctionalSpecs: []domain.FunctionalSpec{
			{ID: "FS-1", RequirementID: "URS-1", Title: "Spec one", Status: domain.SpecApproved},
			{ID: "FS-2", RequirementID: "URS-1", Title: "Spec two", Status: domain.SpecDraft},
		},
		DesignSpecs: []domain.DesignSpec{
			{ID: "DS-1", FunctionalSpecID: "FS-1", Title: "Design one"},
		},
		TestCases: []domain.TestCase{
			{ID: "TC-1", FunctionalSpecID: "FS-1", RequirementID: "URS-1", Title: "Case one", TestType: "Functional"},
		},
		Executions: []domain.TestExecution{
			{ID: "EX-1", TestCaseID: "TC-1", Result: domain.ResultPass, ExecutedAt: "2026-01-02T10:00:00Z"},
		},
	}
	rows := BuildTraceability(snap)
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}

	// URS-1 / FS-1 / TC-1: complete chain with design and execution
	r := rows[0]
	if r.SpecID != "FS-1" || r.DesignID != "DS-1" || r.TestCaseID != "TC-1" {
		t.Errorf("chain row = %+v", r)
	}
	if r.ExecutionID != "EX-1" || r.Status != "Complete" {
		t.Errorf("execution row = %+v", r)
	}

	// URS-1 / FS-2: spec without tests
	if rows[1].SpecID != "FS-2" || rows[1].Status != "Partial" {
		t.Errorf("untested spec row = %+v", rows[1])
	}
	if rows[1].DesignID != "" {
		t.Errorf("FS-2 row should have no design: %+v", rows[1])
	}

	// URS-2: requirement without specs
	if rows[2].RequirementID != "URS-2" || rows[2].Status != "Not Started" {
		t.Errorf("bare requirement row = %+v", rows[2])
	}
	if rows[2].SpecID != "" {
		t.Errorf("bare row should have no spec: %+v", rows[2])
	}
}

func TestBuildTraceabilityLatestExecutionWins(t *testing.T) {
	snap := Snapshot{
		Requirements:    []domain.Requirement{{ID: "URS-1", Title: "R"}},
		FunctionalSpecs: []domain.FunctionalSpec{{ID: "FS-1", RequirementID: "URS-1"}},
		TestCases:       []domain.TestCase{{ID: "TC-1", FunctionalSpecID: "FS-1", RequirementID: "URS-1"}},
		Executions: []domain.TestExecution{
			{ID: "EX-1", TestCaseID: "TC-1", Result: domain.ResultFail, ExecutedAt: "2026-01-01T10:00:00Z"},
			{ID: "EX-2", TestCaseID: "TC-1", Result: domain.ResultPass, ExecutedAt: "2026-01-03T10:00:00Z"},
		},
	}
	rows := BuildTraceability(snap)
	if rows[0].ExecutionID != "EX-2" || rows[0].Status != "Complete" {
		t.Errorf("latest execution not authoritative: %+v", rows[0])
	}
}

func TestBuildTraceabilityTimestampTieBreak(t *testing.T) {
	ts := "2026-01-01T10:00:00Z"
	snap := Snapshot{
		Requirements:    []domain.Requirement{{ID: "URS-1"}},
		FunctionalSpecs: []domain.FunctionalSpec{{ID: "FS-1", RequirementID: "URS-1"}},
		TestCases:       []domain.TestCase{{ID: "TC-1", FunctionalSpecID: "FS-1", RequirementID: "URS-1"}},
		Executions: []domain.TestExecution{
			{ID: "EX-b", TestCaseID: "TC-1", Result: domain.ResultPass, ExecutedAt: ts},
			{ID: "EX-a", TestCaseID: "TC-1", Result: domain.ResultFail, ExecutedAt: ts},
		},
	}
	rows := BuildTraceability(snap)
	if rows[0].ExecutionID != "EX-b" {
		t.Errorf("tie should go to greater id, got %s", rows[0].ExecutionID)
	}
}

func TestBuildTraceabilityFailedWithDeviation(t *testing.T) {
	snap := Snapshot{
		Requirements:    []domain.Requirement{{ID: "URS-1"}},
		FunctionalSpecs: []domain.FunctionalSpec{{ID: "FS-1", RequirementID: "URS-1"}},
		TestCases:       []domain.TestCase{{ID: "TC-1", FunctionalSpecID: "FS-1", RequirementID: "URS-1"}},
		Executions: []domain.TestExecution{
			{ID: "EX-1", TestCaseID: "TC-1", Result: domain.ResultFail,
				ExecutedAt: "2026-01-01T10:00:00Z", DeviationID: strPtr("DEV-1")},
		},
		Deviations: []domain.Deviation{
			{ID: "DEV-1", Status: domain.DevOpen},
		},
	}
	rows := BuildTraceability(snap)
	r := rows[0]
	if r.Status != "Failed" {
		t.Errorf("status = %s, want Failed", r.Status)
	}
	if r.DeviationID != "DEV-1" || r.DeviationStatus != domain.DevOpen {
		t.Errorf("deviation not surfaced: %+v", r)
	}
}

func TestBuildTraceabilityNotExecutedIsPartial(t *testing.T) {
	snap := Snapshot{
		Requirements:    []domain.Requirement{{ID: "URS-1"}},
		FunctionalSpecs: []domain.FunctionalSpec{{ID: "FS-1", RequirementID: "URS-1"}},
		TestCases:       []domain.TestCase{{ID: "TC-1", FunctionalSpecID: "FS-1", RequirementID: "URS-1"}},
		Executions: []domain.TestExecution{
			{ID: "EX-1", TestCaseID: "TC-1", Result: domain.ResultNotExecuted, ExecutedAt: "2026-01-01T10:00:00Z"},
		},
	}
	rows := BuildTraceability(snap)
	if rows[0].Status != "Partial" {
		t.Errorf("status = %s, want Partial", rows[0].Status)
	}
}
