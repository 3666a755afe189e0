package veritracesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Veritrace HTTP API client.
type Client struct {
	BaseURL     string
	ProjectID   string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// Requirement represents the API requirement model (partial).
type Requirement struct {
	ID                 string   `json:"id"`
	ProjectID          string   `json:"project_id"`
	Category           string   `json:"category"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	GxPImpact          bool     `json:"gxp_impact"`
	PatientSafetyRisk  string   `json:"patient_safety_risk"`
	ProductQualityRisk string   `json:"product_quality_risk"`
	DataIntegrityRisk  string   `json:"data_integrity_risk"`
	OverallRisk        string   `json:"overall_risk"`
	AmbiguityScore     *float64 `json:"ambiguity_score,omitempty"`
	Status             string   `json:"status"`
}

// FunctionalSpec represents a functional specification.
type FunctionalSpec struct {
	ID            string `json:"id"`
	ProjectID     string `json:"project_id"`
	RequirementID string `json:"requirement_id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Status        string `json:"status"`
}

// TestCase represents a test case.
type TestCase struct {
	ID               string `json:"id"`
	ProjectID        string `json:"project_id"`
	FunctionalSpecID string `json:"functional_spec_id"`
	RequirementID    string `json:"requirement_id"`
	TestType         string `json:"test_type"`
	Title            string `json:"title"`
	Status           string `json:"status"`
}

// TestExecution represents a recorded test run.
type TestExecution struct {
	ID         string `json:"id"`
	TestCaseID string `json:"test_case_id"`
	Cycle      int    `json:"cycle"`
	Result     string `json:"result"`
	Executor   string `json:"executor"`
	ExecutedAt string `json:"executed_at"`
}

// Deviation represents a deviation record.
type Deviation struct {
	ID              string `json:"id"`
	ProjectID       string `json:"project_id"`
	TestExecutionID string `json:"test_execution_id"`
	Severity        string `json:"severity"`
	Title           string `json:"title"`
	Status          string `json:"status"`
}

// TraceabilityRow is one row of the traceability matrix.
type TraceabilityRow struct {
	RequirementID   string `json:"requirement_id"`
	SpecID          string `json:"spec_id,omitempty"`
	TestCaseID      string `json:"test_case_id,omitempty"`
	ExecutionResult string `json:"execution_result,omitempty"`
	DeviationID     string `json:"deviation_id,omitempty"`
	Status          string `json:"status"`
}

// ConsistencyReport summarizes cross-artifact issues.
type ConsistencyReport struct {
	ProjectID string           `json:"project_id"`
	Issues    []map[string]any `json:"issues"`
	Score     int              `json:"score"`
}

// ValidationSummary is the release decision report (partial).
type ValidationSummary struct {
	ProjectID      string   `json:"project_id"`
	ProjectName    string   `json:"project_name"`
	Decision       string   `json:"decision"`
	Conclusion     string   `json:"conclusion"`
	Recommendation string   `json:"recommendation"`
	Conditions     []string `json:"conditions"`
	GeneratedAt    string   `json:"generated_at"`
	GeneratedBy    string   `json:"generated_by"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateRequirement creates a requirement; risk and ambiguity are derived
// server-side from the text.
func (c *Client) CreateRequirement(ctx context.Context, category, title, description, acceptanceCriteria string, gxpImpact bool) (Requirement, error) {
	body := map[string]any{
		"category":            category,
		"title":               title,
		"description":         description,
		"acceptance_criteria": acceptanceCriteria,
		"gxp_impact":          gxpImpact,
	}
	var resp Requirement
	err := c.do(ctx, http.MethodPost, c.projectPath("requirements"), body, &resp)
	return resp, err
}

// GetRequirement fetches a requirement by id.
func (c *Client) GetRequirement(ctx context.Context, id string) (Requirement, error) {
	var resp Requirement
	endpoint := c.projectPath(fmt.Sprintf("requirements/%s", url.PathEscape(id)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ApproveRequirement approves a requirement. The author cannot approve
// their own requirement.
func (c *Client) ApproveRequirement(ctx context.Context, id string) (Requirement, error) {
	var resp Requirement
	endpoint := c.projectPath(fmt.Sprintf("requirements/%s/approve", url.PathEscape(id)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// CreateSpec creates a functional spec under an approved requirement.
func (c *Client) CreateSpec(ctx context.Context, requirementID, title, description string) (FunctionalSpec, error) {
	body := map[string]any{
		"title":       title,
		"description": description,
	}
	var resp FunctionalSpec
	endpoint := c.projectPath(fmt.Sprintf("requirements/%s/specs", url.PathEscape(requirementID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ApproveSpec approves a functional spec.
func (c *Client) ApproveSpec(ctx context.Context, id string) (FunctionalSpec, error) {
	var resp FunctionalSpec
	endpoint := c.projectPath(fmt.Sprintf("specs/%s/approve", url.PathEscape(id)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// CreateTestCase creates a test case under an approved spec.
func (c *Client) CreateTestCase(ctx context.Context, specID, testType, title, steps, expected string) (TestCase, error) {
	body := map[string]any{
		"test_type":       testType,
		"title":           title,
		"steps":           steps,
		"expected_result": expected,
	}
	var resp TestCase
	endpoint := c.projectPath(fmt.Sprintf("specs/%s/test-cases", url.PathEscape(specID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// RecordExecution records an execution of a test case.
func (c *Client) RecordExecution(ctx context.Context, testCaseID, result, actual, environment string) (TestExecution, error) {
	body := map[string]any{
		"result":        result,
		"actual_result": actual,
		"environment":   environment,
	}
	var resp TestExecution
	endpoint := c.projectPath(fmt.Sprintf("test-cases/%s/executions", url.PathEscape(testCaseID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// CreateDeviation opens a deviation against a failed or blocked execution.
func (c *Client) CreateDeviation(ctx context.Context, executionID, severity, title, description string) (Deviation, error) {
	body := map[string]any{
		"test_execution_id": executionID,
		"severity":          severity,
		"title":             title,
		"description":       description,
	}
	var resp Deviation
	err := c.do(ctx, http.MethodPost, c.projectPath("deviations"), body, &resp)
	return resp, err
}

// Traceability returns the project traceability matrix.
func (c *Client) Traceability(ctx context.Context) ([]TraceabilityRow, error) {
	var resp []TraceabilityRow
	err := c.do(ctx, http.MethodGet, c.projectPath("traceability"), nil, &resp)
	return resp, err
}

// Consistency returns the cross-artifact consistency report.
func (c *Client) Consistency(ctx context.Context) (ConsistencyReport, error) {
	var resp ConsistencyReport
	err := c.do(ctx, http.MethodGet, c.projectPath("consistency"), nil, &resp)
	return resp, err
}

// Summary returns the validation summary with the release decision.
func (c *Client) Summary(ctx context.Context) (ValidationSummary, error) {
	var resp ValidationSummary
	err := c.do(ctx, http.MethodGet, c.projectPath("summary"), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
