package analysis

import (
	"fmt"
	"strings"

	"veritrace/internal/domain"
)

// RiskAssessment is the derived risk profile for a single requirement.
type RiskAssessment struct {
	RequirementID      string  `json:"requirement_id"`
	GxPImpact          bool    `json:"gxp_impact"`
	PatientSafetyRisk  string  `json:"patient_safety_risk" enum:"Low,Medium,High,Critical"`
	ProductQualityRisk string  `json:"product_quality_risk" enum:"Low,Medium,High,Critical"`
	DataIntegrityRisk  string  `json:"data_integrity_risk" enum:"Low,Medium,High,Critical"`
	OverallRisk        string  `json:"overall_risk" enum:"Low,Medium,High,Critical"`
	Reason             string  `json:"reason"`
	Confidence         float64 `json:"confidence"`
}

// AssessRisk derives the three risk dimensions and the overall rating
// for a requirement from keyword evidence in its title, description and
// acceptance criteria. The stored GxP flag is widened to effective GxP
// impact when any data-integrity keyword matches. Critical is never
// assigned automatically; only a human assessment can set it.
func AssessRisk(req domain.Requirement) RiskAssessment {
	text := req.Title + " " + req.Description + " " + req.AcceptanceCriteria

	patientCount := countKeywords(text, patientSafetyKeywords)
	qualityCount := countKeywords(text, productQualityKeywords)
	dataCount := countKeywords(text, dataIntegrityKeywords)

	gxp := req.GxPImpact || dataCount > 0

	patientRisk := dimensionRisk(patientCount, gxp && patientCount > 0)
	qualityRisk := dimensionRisk(qualityCount, gxp)
	dataRisk := dimensionRisk(dataCount, gxp && dataCount > 0)
	overall := domain.MaxRisk(patientRisk, qualityRisk, dataRisk)

	var reasons []string
	if patientCount > 0 {
		reasons = append(reasons, fmt.Sprintf("Patient safety indicators (%d matches)", patientCount))
	}
	if qualityCount > 0 {
		reasons = append(reasons, fmt.Sprintf("Product quality indicators (%d matches)", qualityCount))
	}
	if dataCount > 0 {
		reasons = append(reasons, fmt.Sprintf("Data integrity indicators (%d matches)", dataCount))
	}
	if gxp {
		reasons = append(reasons, "GxP regulatory impact")
	}

	return RiskAssessment{
		RequirementID:      req.ID,
		GxPImpact:          gxp,
		PatientSafetyRisk:  patientRisk,
		ProductQualityRisk: qualityRisk,
		DataIntegrityRisk:  dataRisk,
		OverallRisk:        overall,
		Reason:             strings.Join(reasons, ". ") + fmt.Sprintf(". Overall: %s risk.", overall),
		Confidence:         0.85,
	}
}

func dimensionRisk(count int, gxp bool) string {
	switch {
	case gxp && count >= 2:
		return domain.RiskHigh
	case count >= 3:
		return domain.RiskHigh
	case count >= 1 || gxp:
		return domain.RiskMedium
	}
	return domain.RiskLow
}
