package analysis

import "strings"

// Keyword lexicons driving risk dimension scoring. Matching is
// case-insensitive substring containment, one hit per keyword.
var patientSafetyKeywords = []string{
	"patient", "safety", "dose", "dosing", "adverse", "sterile",
	"contamination", "potency", "toxicity", "allergen", "critical",
	"life-threatening", "clinical", "therapeutic",
}

var productQualityKeywords = []string{
	"quality", "purity", "stability", "specification", "release",
	"batch", "manufacturing", "process", "formulation", "testing",
	"impurity", "degradation", "assay", "dissolution",
}

var dataIntegrityKeywords = []string{
	"data", "integrity", "audit", "trail", "electronic", "record",
	"signature", "21 cfr", "part 11", "annex 11", "alcoa", "backup",
	"attributable", "legible", "contemporaneous", "original", "accurate",
}

type ambiguityPattern struct {
	Term       string
	Category   string
	Suggestion string
}

// ambiguityPatterns is scanned in order; detection order determines
// issue order and which suggestions surface first.
var ambiguityPatterns = []ambiguityPattern{
	{"appropriate", "Vague Term", "Define specific criteria"},
	{"adequate", "Vague Term", "Specify measurable threshold"},
	{"as needed", "Ambiguous Condition", "Define trigger conditions"},
	{"etc", "Incomplete List", "Provide complete enumeration"},
	{"and/or", "Logical Ambiguity", "Use explicit AND or OR"},
	{"should", "Weak Requirement", "Use 'shall' for mandatory requirements"},
	{"may", "Optional vs Required", "Clarify if optional or conditional"},
	{"timely", "Vague Timing", "Specify time limit (e.g., within 24 hours)"},
	{"user-friendly", "Subjective", "Define specific usability criteria"},
	{"fast", "Vague Performance", "Specify response time (e.g., <2 seconds)"},
}

func countKeywords(text string, keywords []string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}
