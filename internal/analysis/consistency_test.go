package analysis

import (
	"testing"

	"veritrace/internal/domain"
)

func TestCheckConsistencyClean(t *testing.T) {
	snap := Snapshot{
		Requirements: []domain.Requirement{
			{ID: "URS-1", OverallRisk: domain.RiskHigh, Status: domain.ReqApproved},
		},
		FunctionalSpecs: []domain.FunctionalSpec{
			{ID: "FS-1", RequirementID: "URS-1"},
		},
		TestCases: []domain.TestCase{
			{ID: "TC-1", FunctionalSpecID: "FS-1", RequirementID: "URS-1"},
		},
	}
	got := CheckConsistency("P-1", snap)
	if len(got.Issues) != 0 {
		t.Fatalf("issues = %d, want 0", len(got.Issues))
	}
	if got.Score != 100 {
		t.Errorf("score = %d, want 100", got.Score)
	}
}

func TestCheckConsistencyViolations(t *testing.T) {
	snap := Snapshot{
		Requirements: []domain.Requirement{
			{ID: "URS-1", OverallRisk: domain.RiskHigh, Status: domain.ReqDraft},
			{ID: "URS-2", OverallRisk: domain.RiskLow, Status: domain.ReqDraft},
		},
		FunctionalSpecs: []domain.FunctionalSpec{
			{ID: "FS-1", RequirementID: "URS-1"},
			{ID: "FS-2", RequirementID: "URS-gone"},
		},
	}
	got := CheckConsistency("P-1", snap)
	// orphan FS-2, untested FS-1 and FS-2, unapproved high-risk URS-1
	if len(got.Issues) != 4 {
		t.Fatalf("issues = %d, want 4: %+v", len(got.Issues), got.Issues)
	}
	if got.Issues[0].IssueType != "Orphan FS" || got.Issues[0].EntityID != "FS-2" {
		t.Errorf("first issue = %+v", got.Issues[0])
	}
	if got.Issues[3].IssueType != "High Risk Unapproved" || got.Issues[3].EntityID != "URS-1" {
		t.Errorf("last issue = %+v", got.Issues[3])
	}
	if got.Score != 60 {
		t.Errorf("score = %d, want 60", got.Score)
	}
}

func TestCheckConsistencyScoreFloor(t *testing.T) {
	var specs []domain.FunctionalSpec
	for i := 0; i < 12; i++ {
		specs = append(specs, domain.FunctionalSpec{
			ID:            string(rune('A' + i)),
			RequirementID: "URS-missing",
		})
	}
	got := CheckConsistency("P-1", Snapshot{FunctionalSpecs: specs})
	if got.Score != 0 {
		t.Errorf("score = %d, want floored at 0", got.Score)
	}
}
