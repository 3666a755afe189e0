package analysis

import (
	"strings"
	"testing"

	"veritrace/internal/domain"
)

func TestAssessRiskDimensions(t *testing.T) {
	cases := []struct {
		name    string
		req     domain.Requirement
		gxp     bool
		patient string
		quality string
		data    string
		overall string
	}{
		{
			name:    "no keywords no gxp",
			req:     domain.Requirement{ID: "URS-1", Title: "Login page color", Description: "The screen is blue"},
			gxp:     false,
			patient: domain.RiskLow,
			quality: domain.RiskLow,
			data:    domain.RiskLow,
			overall: domain.RiskLow,
		},
		{
			name: "data integrity keywords imply gxp",
			req: domain.Requirement{
				ID:          "URS-2",
				Title:       "Audit trail",
				Description: "The system shall keep an electronic record with audit trail",
			},
			gxp:     true,
			patient: domain.RiskLow,
			quality: domain.RiskMedium,
			data:    domain.RiskHigh,
			overall: domain.RiskHigh,
		},
		{
			name: "gxp flag with two patient hits is high",
			req: domain.Requirement{
				ID:          "URS-3",
				Title:       "Dose check",
				Description: "Verify patient dose before release",
				GxPImpact:   true,
			},
			gxp:     true,
			patient: domain.RiskHigh,
			quality: domain.RiskMedium,
			data:    domain.RiskLow,
			overall: domain.RiskHigh,
		},
		{
			name: "single quality hit without gxp is medium",
			req: domain.Requirement{
				ID:          "URS-4",
				Title:       "Batch listing",
				Description: "Show the current batch in the UI",
			},
			gxp:     false,
			patient: domain.RiskLow,
			quality: domain.RiskMedium,
			data:    domain.RiskLow,
			overall: domain.RiskMedium,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := AssessRisk(tc.req)
			if got.GxPImpact != tc.gxp {
				t.Errorf("gxp = %v, want %v", got.GxPImpact, tc.gxp)
			}
			if got.PatientSafetyRisk != tc.patient {
				t.Errorf("patient = %s, want %s", got.PatientSafetyRisk, tc.patient)
			}
			if got.ProductQualityRisk != tc.quality {
				t.Errorf("quality = %s, want %s", got.ProductQualityRisk, tc.quality)
			}
			if got.DataIntegrityRisk != tc.data {
				t.Errorf("data = %s, want %s", got.DataIntegrityRisk, tc.data)
			}
			if got.OverallRisk != tc.overall {
				t.Errorf("overall = %s, want %s", got.OverallRisk, tc.overall)
			}
		})
	}
}

func TestAssessRiskNeverCritical(t *testing.T) {
	req := domain.Requirement{
		ID:        "URS-5",
		Title:     "Sterile dosing with patient safety and clinical data integrity",
		GxPImpact: true,
		Description: "Critical life-threatening adverse contamination toxicity allergen potency " +
			"quality purity stability batch manufacturing process audit trail electronic record signature alcoa",
	}
	got := AssessRisk(req)
	if got.OverallRisk == domain.RiskCritical {
		t.Fatalf("overall = Critical; automatic assessment must cap at High")
	}
	if got.OverallRisk != domain.RiskHigh {
		t.Fatalf("overall = %s, want High", got.OverallRisk)
	}
}

func TestAssessRiskReason(t *testing.T) {
	got := AssessRisk(domain.Requirement{
		ID:          "URS-6",
		Title:       "Patient record",
		Description: "Store the patient record with audit trail",
	})
	if !strings.Contains(got.Reason, "Patient safety indicators") {
		t.Errorf("reason missing patient indicators: %q", got.Reason)
	}
	if !strings.Contains(got.Reason, "GxP regulatory impact") {
		t.Errorf("reason missing gxp note: %q", got.Reason)
	}
	if !strings.HasSuffix(got.Reason, "risk.") {
		t.Errorf("reason missing overall suffix: %q", got.Reason)
	}
	if got.Confidence != 0.85 {
		t.Errorf("confidence = %v, want 0.85", got.Confidence)
	}
}

func TestMaxRisk(t *testing.T) {
	if got := domain.MaxRisk(domain.RiskLow, domain.RiskCritical, domain.RiskMedium); got != domain.RiskCritical {
		t.Errorf("MaxRisk = %s, want Critical", got)
	}
	if got := domain.MaxRisk(); got != domain.RiskLow {
		t.Errorf("MaxRisk() = %s, want Low", got)
	}
	if got := domain.MaxRisk("bogus", domain.RiskMedium); got != domain.RiskMedium {
		t.Errorf("MaxRisk with unknown = %s, want Medium", got)
	}
}
