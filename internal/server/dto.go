package server

// Request payloads. Responses reuse the domain structs, which carry
// full JSON tags and no storage-only fields.

type CreateProjectRequest struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	SystemType  string `json:"system_type,omitempty" enum:"GxP,Non-GxP"`
	Description string `json:"description,omitempty"`
}

type CreateRequirementRequest struct {
	ID                 string `json:"id,omitempty"`
	Category           string `json:"category,omitempty"`
	Title              string `json:"title"`
	Description        string `json:"description,omitempty"`
	AcceptanceCriteria string `json:"acceptance_criteria,omitempty"`
	GxPImpact          bool   `json:"gxp_impact,omitempty"`
}

type SetStatusRequest struct {
	Status string `json:"status"`
}

type CreateSpecRequest struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Approach    string `json:"approach,omitempty"`
}

type CreateDesignRequest struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type CreateTestCaseRequest struct {
	ID             string `json:"id,omitempty"`
	TestType       string `json:"test_type,omitempty" enum:"Functional,Negative,Integration,Performance"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	Steps          string `json:"steps,omitempty"`
	ExpectedResult string `json:"expected_result,omitempty"`
	Priority       string `json:"priority,omitempty"`
}

type RecordExecutionRequest struct {
	ID           string `json:"id,omitempty"`
	Result       string `json:"result" enum:"Not Executed,Pass,Fail,Blocked"`
	ActualResult string `json:"actual_result,omitempty"`
	Environment  string `json:"environment,omitempty"`
}

type CreateDeviationRequest struct {
	ID              string `json:"id,omitempty"`
	TestExecutionID string `json:"test_execution_id"`
	Severity        string `json:"severity,omitempty" enum:"Low,Medium,High,Critical"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
}

type InvestigateDeviationRequest struct {
	RootCause         string `json:"root_cause"`
	RootCauseCategory string `json:"root_cause_category,omitempty"`
}

type AssignCAPARequest struct {
	Corrective string `json:"corrective"`
	Preventive string `json:"preventive,omitempty"`
	AssignedTo string `json:"assigned_to,omitempty"`
}

type CreateChangeRequest struct {
	ID            string `json:"id,omitempty"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	ChangeType    string `json:"change_type,omitempty"`
	Priority      string `json:"priority,omitempty"`
	Justification string `json:"justification,omitempty"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role"`
	Name    string `json:"name,omitempty"`
}

// APIKeyResponse surfaces the raw key exactly once, at creation.
type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Role      string `json:"role"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
