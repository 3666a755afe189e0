package analysis

import (
	"reflect"
	"testing"

	"veritrace/internal/domain"
)

func impactSnapshot() Snapshot {
	return Snapshot{
		Requirements: []domain.Requirement{
			{ID: "URS-1", Title: "Sample tracking", Description: "Track samples through the laboratory"},
			{ID: "URS-2", Title: "User login", Description: "Authenticate users"},
		},
		FunctionalSpecs: []domain.FunctionalSpec{
			{ID: "FS-1", RequirementID: "URS-1"},
			{ID: "FS-2", RequirementID: "URS-2"},
		},
		TestCases: []domain.TestCase{
			{ID: "TC-1", FunctionalSpecID: "FS-1", RequirementID: "URS-1"},
			{ID: "TC-2", FunctionalSpecID: "FS-2", RequirementID: "URS-2"},
			{ID: "TC-3", FunctionalSpecID: "FS-other", RequirementID: "URS-1"},
		},
	}
}

func TestAnalyzeChangeImpactPropagation(t *testing.T) {
	change := domain.ChangeRequest{ID: "CR-1", Description: "Update the laboratory barcode printer"}
	got := AnalyzeChangeImpact(change, impactSnapshot())

	if !reflect.DeepEqual(got.AffectedRequirements, []string{"URS-1"}) {
		t.Errorf("requirements = %v", got.AffectedRequirements)
	}
	if !reflect.DeepEqual(got.AffectedSpecs, []string{"FS-1"}) {
		t.Errorf("specs = %v", got.AffectedSpecs)
	}
	// TC-3 pulled in through its requirement even though its spec is unaffected
	if !reflect.DeepEqual(got.AffectedTestCases, []string{"TC-1", "TC-3"}) {
		t.Errorf("test cases = %v", got.AffectedTestCases)
	}
	if !got.RevalidationRequired {
		t.Error("revalidation should be required")
	}
	if got.EstimatedEffort != "2 test cases to re-execute" {
		t.Errorf("effort = %q", got.EstimatedEffort)
	}
	if got.RiskLevel != domain.RiskMedium {
		t.Errorf("risk = %s, want Medium", got.RiskLevel)
	}
}

func TestAnalyzeChangeImpactShortTokensIgnored(t *testing.T) {
	// every token is four characters or fewer, so nothing matches
	change := domain.ChangeRequest{ID: "CR-2", Description: "fix the big red bug now"}
	got := AnalyzeChangeImpact(change, impactSnapshot())
	if len(got.AffectedRequirements) != 0 || len(got.AffectedTestCases) != 0 {
		t.Errorf("unexpected impact: %+v", got)
	}
	if got.RevalidationRequired {
		t.Error("revalidation should not be required")
	}
	if got.RiskLevel != domain.RiskLow {
		t.Errorf("risk = %s, want Low", got.RiskLevel)
	}
	if got.EstimatedEffort != "0 test cases to re-execute" {
		t.Errorf("effort = %q", got.EstimatedEffort)
	}
}

func TestAnalyzeChangeImpactNoDuplicateTestCases(t *testing.T) {
	change := domain.ChangeRequest{ID: "CR-3", Description: "Rework sample tracking and samples intake"}
	got := AnalyzeChangeImpact(change, impactSnapshot())
	seen := map[string]int{}
	for _, id := range got.AffectedTestCases {
		seen[id]++
		if seen[id] > 1 {
			t.Fatalf("test case %s counted twice", id)
		}
	}
}
