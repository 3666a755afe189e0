package analysis

import (
	"testing"

	"veritrace/internal/domain"
)

func TestDetectAmbiguityClean(t *testing.T) {
	got := DetectAmbiguity(domain.Requirement{
		ID:                 "URS-1",
		Title:              "Record retention",
		Description:        "The system shall retain records for 10 years",
		AcceptanceCriteria: "Records retrievable after 10 years",
	})
	if got.Score != 0 {
		t.Errorf("score = %v, want 0", got.Score)
	}
	if len(got.Issues) != 0 {
		t.Errorf("issues = %d, want 0", len(got.Issues))
	}
}

func TestDetectAmbiguityPatterns(t *testing.T) {
	got := DetectAmbiguity(domain.Requirement{
		ID:                 "URS-2",
		Title:              "Response time",
		Description:        "The system shall respond in a timely and appropriate manner",
		AcceptanceCriteria: "Defined",
	})
	// "appropriate" then "timely", in table order
	if len(got.Issues) != 2 {
		t.Fatalf("issues = %d, want 2", len(got.Issues))
	}
	if got.Issues[0].Term != "appropriate" || got.Issues[1].Term != "timely" {
		t.Errorf("issue order = %s, %s", got.Issues[0].Term, got.Issues[1].Term)
	}
	if got.Score != 0.3 {
		t.Errorf("score = %v, want 0.3", got.Score)
	}
}

func TestDetectAmbiguityStructuralGaps(t *testing.T) {
	got := DetectAmbiguity(domain.Requirement{
		ID:          "URS-3",
		Title:       "Reporting",
		Description: "Reports can be generated",
	})
	if len(got.Issues) != 2 {
		t.Fatalf("issues = %d, want 2 (imperative + acceptance criteria)", len(got.Issues))
	}
	if got.Issues[0].Category != "Missing Imperative" {
		t.Errorf("first issue = %s", got.Issues[0].Category)
	}
	if got.Issues[1].Category != "Missing Acceptance Criteria" {
		t.Errorf("second issue = %s", got.Issues[1].Category)
	}
	// 0 pattern hits, +0.10 imperative, +0.20 criteria
	if got.Score != 0.3 {
		t.Errorf("score = %v, want 0.3", got.Score)
	}
}

func TestDetectAmbiguityScoreCapped(t *testing.T) {
	got := DetectAmbiguity(domain.Requirement{
		ID:    "URS-4",
		Title: "Everything vague",
		Description: "The system should be appropriate, adequate, user-friendly and fast, " +
			"updating as needed and/or on demand, it may retry in a timely fashion, etc",
	})
	if got.Score != 1.0 {
		t.Errorf("score = %v, want capped at 1.0", got.Score)
	}
	if len(got.Suggestions) != 3 {
		t.Errorf("suggestions = %d, want top 3", len(got.Suggestions))
	}
	if got.Suggestions[0] != "Define specific criteria" {
		t.Errorf("first suggestion = %q", got.Suggestions[0])
	}
}
