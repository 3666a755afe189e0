package domain

// Risk ratings share a single four-level scale across requirements,
// deviations, and change requests.
const (
	RiskLow      = "Low"
	RiskMedium   = "Medium"
	RiskHigh     = "High"
	RiskCritical = "Critical"
)

// Requirement lifecycle statuses.
const (
	ReqDraft       = "Draft"
	ReqUnderReview = "Under Review"
	ReqApproved    = "Approved"
	ReqObsolete    = "Obsolete"
)

// Specification lifecycle statuses (functional and design).
const (
	SpecDraft       = "Draft"
	SpecUnderReview = "Under Review"
	SpecApproved    = "Approved"
)

// Test execution results.
const (
	ResultNotExecuted = "Not Executed"
	ResultPass        = "Pass"
	ResultFail        = "Fail"
	ResultBlocked     = "Blocked"
)

// Deviation lifecycle statuses.
const (
	DevOpen          = "Open"
	DevInvestigating = "Investigating"
	DevCAPAAssigned  = "CAPA Assigned"
	DevCAPAVerified  = "CAPA Verified"
	DevClosed        = "Closed"
)

// Change request lifecycle statuses.
const (
	ChangeRequested      = "Requested"
	ChangeImpactAnalysis = "Impact Analysis"
	ChangeApproved       = "Approved"
	ChangeImplementing   = "Implementing"
	ChangeCompleted      = "Completed"
	ChangeRejected       = "Rejected"
)

// riskRank orders the shared scale. Unknown values rank below Low so a
// corrupt rating can never outrank a real one.
var riskRank = map[string]int{
	RiskLow:      1,
	RiskMedium:   2,
	RiskHigh:     3,
	RiskCritical: 4,
}

// RiskRank returns the ordinal of a risk rating (Low=1 .. Critical=4, 0 for unknown).
func RiskRank(level string) int {
	return riskRank[level]
}

// MaxRisk returns the highest rating among the given levels under
// Low < Medium < High < Critical. Empty input yields Low.
func MaxRisk(levels ...string) string {
	best := RiskLow
	for _, l := range levels {
		if riskRank[l] > riskRank[best] {
			best = l
		}
	}
	return best
}

type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	SystemType  string `json:"system_type" enum:"GxP,Non-GxP"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	CreatedBy   string `json:"created_by"`
}

type Requirement struct {
	ID                 string   `json:"id"`
	ProjectID          string   `json:"project_id"`
	Category           string   `json:"category"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	AcceptanceCriteria string   `json:"acceptance_criteria,omitempty"`
	GxPImpact          bool     `json:"gxp_impact"`
	PatientSafetyRisk  string   `json:"patient_safety_risk" enum:"Low,Medium,High,Critical"`
	ProductQualityRisk string   `json:"product_quality_risk" enum:"Low,Medium,High,Critical"`
	DataIntegrityRisk  string   `json:"data_integrity_risk" enum:"Low,Medium,High,Critical"`
	OverallRisk        string   `json:"overall_risk" enum:"Low,Medium,High,Critical"`
	Version            string   `json:"version"`
	Status             string   `json:"status" enum:"Draft,Under Review,Approved,Obsolete"`
	AmbiguityScore     *float64 `json:"ambiguity_score,omitempty"`
	ApprovedBy         *string  `json:"approved_by,omitempty"`
	ApprovedAt         *string  `json:"approved_at,omitempty" format:"date-time"`
	CreatedAt          string   `json:"created_at" format:"date-time"`
	CreatedBy          string   `json:"created_by"`
}

type FunctionalSpec struct {
	ID            string  `json:"id"`
	RequirementID string  `json:"requirement_id"`
	ProjectID     string  `json:"project_id"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	Approach      string  `json:"approach,omitempty"`
	Version       string  `json:"version"`
	Status        string  `json:"status" enum:"Draft,Under Review,Approved"`
	ApprovedBy    *string `json:"approved_by,omitempty"`
	ApprovedAt    *string `json:"approved_at,omitempty" format:"date-time"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	CreatedBy     string  `json:"created_by"`
}

type DesignSpec struct {
	ID               string  `json:"id"`
	FunctionalSpecID string  `json:"functional_spec_id"`
	ProjectID        string  `json:"project_id"`
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	Version          string  `json:"version"`
	Status           string  `json:"status" enum:"Draft,Under Review,Approved"`
	ApprovedBy       *string `json:"approved_by,omitempty"`
	ApprovedAt       *string `json:"approved_at,omitempty" format:"date-time"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
	CreatedBy        string  `json:"created_by"`
}

type TestCase struct {
	ID               string `json:"id"`
	FunctionalSpecID string `json:"functional_spec_id"`
	RequirementID    string `json:"requirement_id"`
	ProjectID        string `json:"project_id"`
	TestType         string `json:"test_type" enum:"Functional,Negative,Integration,Performance"`
	Title            string `json:"title"`
	Description      string `json:"description,omitempty"`
	Steps            string `json:"steps,omitempty"`
	ExpectedResult   string `json:"expected_result,omitempty"`
	Priority         string `json:"priority"`
	CreatedAt        string `json:"created_at" format:"date-time"`
	CreatedBy        string `json:"created_by"`
}

type TestExecution struct {
	ID           string  `json:"id"`
	TestCaseID   string  `json:"test_case_id"`
	ProjectID    string  `json:"project_id"`
	Cycle        int     `json:"cycle"`
	Executor     string  `json:"executor"`
	ExecutedAt   string  `json:"executed_at" format:"date-time"`
	Result       string  `json:"result" enum:"Not Executed,Pass,Fail,Blocked"`
	ActualResult string  `json:"actual_result,omitempty"`
	Environment  string  `json:"environment,omitempty"`
	DeviationID  *string `json:"deviation_id,omitempty"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
}

type Deviation struct {
	ID                string  `json:"id"`
	TestExecutionID   string  `json:"test_execution_id"`
	ProjectID         string  `json:"project_id"`
	Severity          string  `json:"severity" enum:"Low,Medium,High,Critical"`
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	RootCause         string  `json:"root_cause,omitempty"`
	RootCauseCategory string  `json:"root_cause_category,omitempty"`
	CAPACorrective    string  `json:"capa_corrective,omitempty"`
	CAPAPreventive    string  `json:"capa_preventive,omitempty"`
	Status            string  `json:"status" enum:"Open,Investigating,CAPA Assigned,CAPA Verified,Closed"`
	AssignedTo        *string `json:"assigned_to,omitempty"`
	ClosedBy          *string `json:"closed_by,omitempty"`
	ClosedAt          *string `json:"closed_at,omitempty" format:"date-time"`
	CreatedAt         string  `json:"created_at" format:"date-time"`
	CreatedBy         string  `json:"created_by"`
}

type ChangeRequest struct {
	ID                   string   `json:"id"`
	ProjectID            string   `json:"project_id"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	ChangeType           string   `json:"change_type"`
	Priority             string   `json:"priority"`
	Justification        string   `json:"justification,omitempty"`
	AffectedRequirements []string `json:"affected_requirements,omitempty"`
	AffectedSpecs        []string `json:"affected_specs,omitempty"`
	AffectedTestCases    []string `json:"affected_test_cases,omitempty"`
	RevalidationRequired bool     `json:"revalidation_required"`
	RiskLevel            string   `json:"risk_level" enum:"Low,Medium,High,Critical"`
	Status               string   `json:"status" enum:"Requested,Impact Analysis,Approved,Implementing,Completed,Rejected"`
	RequestedBy          string   `json:"requested_by"`
	RequestedAt          string   `json:"requested_at" format:"date-time"`
	ApprovedBy           *string  `json:"approved_by,omitempty"`
	ApprovedAt           *string  `json:"approved_at,omitempty" format:"date-time"`
}

type AuditEntry struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	ActorID    string `json:"actor_id"`
	Action     string `json:"action"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ProjectID  string `json:"project_id,omitempty"`
	Detail     string `json:"detail_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Role      string `json:"role"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
