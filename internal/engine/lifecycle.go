package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"veritrace/internal/analysis"
	"veritrace/internal/audit"
	"veritrace/internal/domain"
)

// TestCaseCreateOptions are parameters for creating a test case.
type TestCaseCreateOptions struct {
	ID               string
	FunctionalSpecID string
	TestType         string
	Title            string
	Description      string
	Steps            string
	ExpectedResult   string
	Priority         string
	ActorID          string
}

var testTypes = map[string]bool{
	"Functional":  true,
	"Negative":    true,
	"Integration": true,
	"Performance": true,
}

// CreateTestCase stores a test case under a functional spec. The
// requirement link is inherited from the spec so the chain never forks.
func (e Engine) CreateTestCase(ctx context.Context, opts TestCaseCreateOptions) (domain.TestCase, error) {
	if opts.Title == "" {
		return domain.TestCase{}, errors.New("title is required")
	}
	if opts.TestType == "" {
		opts.TestType = "Functional"
	}
	if !testTypes[opts.TestType] {
		return domain.TestCase{}, fmt.Errorf("unknown test type %s", opts.TestType)
	}
	if opts.Priority == "" {
		opts.Priority = "Medium"
	}
	fs, err := e.Repo.GetFunctionalSpec(ctx, opts.FunctionalSpecID)
	if err != nil {
		return domain.TestCase{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = e.newID(fs.ProjectID, opts.Title, now)
	}
	tc := domain.TestCase{
		ID:               id,
		FunctionalSpecID: fs.ID,
		RequirementID:    fs.RequirementID,
		ProjectID:        fs.ProjectID,
		TestType:         opts.TestType,
		Title:            opts.Title,
		Description:      opts.Description,
		Steps:            opts.Steps,
		ExpectedResult:   opts.ExpectedResult,
		Priority:         opts.Priority,
		CreatedAt:        now,
		CreatedBy:        opts.ActorID,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return tc, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTestCase(ctx, tx, tc); err != nil {
		return tc, fmt.Errorf("insert test case: %w", err)
	}
	if err := e.Audit.Append(ctx, tx, "testcase.created", tc.ProjectID, "test_case", tc.ID, opts.ActorID, audit.Detail{
		"title":     tc.Title,
		"test_type": tc.TestType,
	}); err != nil {
		return tc, err
	}
	if err := tx.Commit(); err != nil {
		return tc, err
	}
	return tc, nil
}

var executionResults = map[string]bool{
	domain.ResultNotExecuted: true,
	domain.ResultPass:        true,
	domain.ResultFail:        true,
	domain.ResultBlocked:     true,
}

// ExecutionRecordOptions are parameters for recording a test execution.
type ExecutionRecordOptions struct {
	ID           string
	TestCaseID   string
	Result       string
	ActualResult string
	Environment  string
	ActorID      string
}

// RecordExecution appends an execution for a test case. The cycle
// number increments per test case; executions are never updated.
func (e Engine) RecordExecution(ctx context.Context, opts ExecutionRecordOptions) (domain.TestExecution, error) {
	if !executionResults[opts.Result] {
		return domain.TestExecution{}, fmt.Errorf("unknown result %s", opts.Result)
	}
	tc, err := e.Repo.GetTestCase(ctx, opts.TestCaseID)
	if err != nil {
		return domain.TestExecution{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = e.newID(tc.ProjectID, tc.ID, now)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TestExecution{}, err
	}
	defer tx.Rollback()
	cycle, err := e.Repo.NextCycle(ctx, tx, tc.ID)
	if err != nil {
		return domain.TestExecution{}, err
	}
	ex := domain.TestExecution{
		ID:           id,
		TestCaseID:   tc.ID,
		ProjectID:    tc.ProjectID,
		Cycle:        cycle,
		Executor:     opts.ActorID,
		ExecutedAt:   now,
		Result:       opts.Result,
		ActualResult: opts.ActualResult,
		Environment:  opts.Environment,
		CreatedAt:    now,
	}
	if err := e.Repo.InsertExecution(ctx, tx, ex); err != nil {
		return ex, fmt.Errorf("insert execution: %w", err)
	}
	if err := e.Audit.Append(ctx, tx, "execution.recorded", ex.ProjectID, "test_execution", ex.ID, opts.ActorID, audit.Detail{
		"test_case_id": ex.TestCaseID,
		"cycle":        ex.Cycle,
		"result":       ex.Result,
	}); err != nil {
		return ex, err
	}
	if err := tx.Commit(); err != nil {
		return ex, err
	}
	return ex, nil
}

// DeviationCreateOptions are parameters for opening a deviation.
type DeviationCreateOptions struct {
	ID              string
	TestExecutionID string
	Severity        string
	Title           string
	Description     string
	ActorID         string
}

// CreateDeviation opens a deviation against a failed or blocked
// execution and links it back to the execution record.
func (e Engine) CreateDeviation(ctx context.Context, opts DeviationCreateOptions) (domain.Deviation, error) {
	if opts.Title == "" {
		return domain.Deviation{}, errors.New("title is required")
	}
	if opts.Severity == "" {
		opts.Severity = domain.RiskMedium
	}
	if domain.RiskRank(opts.Severity) == 0 {
		return domain.Deviation{}, fmt.Errorf("unknown severity %s", opts.Severity)
	}
	ex, err := e.Repo.GetExecution(ctx, opts.TestExecutionID)
	if err != nil {
		return domain.Deviation{}, err
	}
	if ex.Result != domain.ResultFail && ex.Result != domain.ResultBlocked {
		return domain.Deviation{}, fmt.Errorf("execution %s result is %s; deviations attach to Fail or Blocked", ex.ID, ex.Result)
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = e.newID(ex.ProjectID, ex.ID, opts.Title, now)
	}
	d := domain.Deviation{
		ID:              id,
		TestExecutionID: ex.ID,
		ProjectID:       ex.ProjectID,
		Severity:        opts.Severity,
		Title:           opts.Title,
		Description:     opts.Description,
		Status:          domain.DevOpen,
		CreatedAt:       now,
		CreatedBy:       opts.ActorID,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertDeviation(ctx, tx, d); err != nil {
		return d, fmt.Errorf("insert deviation: %w", err)
	}
	if err := e.Repo.LinkExecutionDeviation(ctx, tx, ex.ID, d.ID); err != nil {
		return d, fmt.Errorf("link deviation: %w", err)
	}
	if err := e.Audit.Append(ctx, tx, "deviation.opened", d.ProjectID, "deviation", d.ID, opts.ActorID, audit.Detail{
		"title":             d.Title,
		"severity":          d.Severity,
		"test_execution_id": d.TestExecutionID,
	}); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	return d, nil
}

func ensureDeviationTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case domain.DevOpen:
		if newStatus == domain.DevInvestigating {
			return nil
		}
	case domain.DevInvestigating:
		if newStatus == domain.DevCAPAAssigned {
			return nil
		}
	case domain.DevCAPAAssigned:
		if newStatus == domain.DevCAPAVerified {
			return nil
		}
	case domain.DevCAPAVerified:
		if newStatus == domain.DevClosed {
			return nil
		}
	}
	return fmt.Errorf("invalid deviation status transition %s -> %s", oldStatus, newStatus)
}

// InvestigateDeviation records the root cause analysis and moves the
// deviation to Investigating.
func (e Engine) InvestigateDeviation(ctx context.Context, id, rootCause, category, actorID string) (domain.Deviation, error) {
	d, err := e.Repo.GetDeviation(ctx, id)
	if err != nil {
		return d, err
	}
	if err := ensureDeviationTransition(d.Status, domain.DevInvestigating); err != nil {
		return d, err
	}
	if rootCause == "" {
		return d, errors.New("root cause is required")
	}
	d.Status = domain.DevInvestigating
	d.RootCause = rootCause
	d.RootCauseCategory = category
	return e.saveDeviation(ctx, d, "deviation.investigating", actorID, audit.Detail{"root_cause_category": category})
}

// AssignCAPA records corrective and preventive actions.
func (e Engine) AssignCAPA(ctx context.Context, id, corrective, preventive, assignee, actorID string) (domain.Deviation, error) {
	d, err := e.Repo.GetDeviation(ctx, id)
	if err != nil {
		return d, err
	}
	if err := ensureDeviationTransition(d.Status, domain.DevCAPAAssigned); err != nil {
		return d, err
	}
	if corrective == "" {
		return d, errors.New("corrective action is required")
	}
	d.Status = domain.DevCAPAAssigned
	d.CAPACorrective = corrective
	d.CAPAPreventive = preventive
	if assignee != "" {
		d.AssignedTo = &assignee
	}
	return e.saveDeviation(ctx, d, "deviation.capa.assigned", actorID, audit.Detail{"assigned_to": assignee})
}

// VerifyCAPA marks the corrective action as verified effective.
func (e Engine) VerifyCAPA(ctx context.Context, id, actorID string) (domain.Deviation, error) {
	d, err := e.Repo.GetDeviation(ctx, id)
	if err != nil {
		return d, err
	}
	if err := ensureDeviationTransition(d.Status, domain.DevCAPAVerified); err != nil {
		return d, err
	}
	d.Status = domain.DevCAPAVerified
	return e.saveDeviation(ctx, d, "deviation.capa.verified", actorID, nil)
}

// CloseDeviation closes a deviation once its CAPA is verified.
func (e Engine) CloseDeviation(ctx context.Context, id, actorID string) (domain.Deviation, error) {
	d, err := e.Repo.GetDeviation(ctx, id)
	if err != nil {
		return d, err
	}
	if err := ensureDeviationTransition(d.Status, domain.DevClosed); err != nil {
		return d, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	d.Status = domain.DevClosed
	d.ClosedBy = &actorID
	d.ClosedAt = &now
	return e.saveDeviation(ctx, d, "deviation.closed", actorID, nil)
}

func (e Engine) saveDeviation(ctx context.Context, d domain.Deviation, action, actorID string, detail audit.Detail) (domain.Deviation, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateDeviation(ctx, tx, d); err != nil {
		return d, err
	}
	if detail == nil {
		detail = audit.Detail{}
	}
	detail["status"] = d.Status
	if err := e.Audit.Append(ctx, tx, action, d.ProjectID, "deviation", d.ID, actorID, detail); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	return d, nil
}

// ChangeCreateOptions are parameters for raising a change request.
type ChangeCreateOptions struct {
	ID            string
	ProjectID     string
	Title         string
	Description   string
	ChangeType    string
	Priority      string
	Justification string
	ActorID       string
}

// CreateChangeRequest raises a change request in Requested.
func (e Engine) CreateChangeRequest(ctx context.Context, opts ChangeCreateOptions) (domain.ChangeRequest, error) {
	if opts.Title == "" {
		return domain.ChangeRequest{}, errors.New("title is required")
	}
	if opts.ChangeType == "" {
		opts.ChangeType = "Enhancement"
	}
	if opts.Priority == "" {
		opts.Priority = "Medium"
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.ChangeRequest{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = e.newID(opts.ProjectID, opts.Title, now)
	}
	c := domain.ChangeRequest{
		ID:            id,
		ProjectID:     opts.ProjectID,
		Title:         opts.Title,
		Description:   opts.Description,
		ChangeType:    opts.ChangeType,
		Priority:      opts.Priority,
		Justification: opts.Justification,
		RiskLevel:     domain.RiskLow,
		Status:        domain.ChangeRequested,
		RequestedBy:   opts.ActorID,
		RequestedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertChange(ctx, tx, c); err != nil {
		return c, fmt.Errorf("insert change: %w", err)
	}
	if err := e.Audit.Append(ctx, tx, "change.requested", c.ProjectID, "change_request", c.ID, opts.ActorID, audit.Detail{
		"title":       c.Title,
		"change_type": c.ChangeType,
	}); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	return c, nil
}

func ensureChangeTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case domain.ChangeRequested:
		if newStatus == domain.ChangeImpactAnalysis || newStatus == domain.ChangeRejected {
			return nil
		}
	case domain.ChangeImpactAnalysis:
		if newStatus == domain.ChangeApproved || newStatus == domain.ChangeRejected {
			return nil
		}
	case domain.ChangeApproved:
		if newStatus == domain.ChangeImplementing || newStatus == domain.ChangeRejected {
			return nil
		}
	case domain.ChangeImplementing:
		if newStatus == domain.ChangeCompleted {
			return nil
		}
	}
	return fmt.Errorf("invalid change status transition %s -> %s", oldStatus, newStatus)
}

// AnalyzeChange derives and persists the change impact, moving the
// request into Impact Analysis.
func (e Engine) AnalyzeChange(ctx context.Context, id, actorID string) (domain.ChangeRequest, analysis.ChangeImpact, error) {
	c, err := e.Repo.GetChange(ctx, id)
	if err != nil {
		return c, analysis.ChangeImpact{}, err
	}
	if err := ensureChangeTransition(c.Status, domain.ChangeImpactAnalysis); err != nil {
		return c, analysis.ChangeImpact{}, err
	}
	snap, err := e.Repo.LoadSnapshot(ctx, c.ProjectID)
	if err != nil {
		return c, analysis.ChangeImpact{}, err
	}
	impact := analysis.AnalyzeChangeImpact(c, snap)
	c.AffectedRequirements = impact.AffectedRequirements
	c.AffectedSpecs = impact.AffectedSpecs
	c.AffectedTestCases = impact.AffectedTestCases
	c.RevalidationRequired = impact.RevalidationRequired
	c.RiskLevel = impact.RiskLevel
	c.Status = domain.ChangeImpactAnalysis

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, impact, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateChange(ctx, tx, c); err != nil {
		return c, impact, err
	}
	if err := e.Audit.Append(ctx, tx, "change.impact.analyzed", c.ProjectID, "change_request", c.ID, actorID, audit.Detail{
		"affected_requirements": len(c.AffectedRequirements),
		"affected_test_cases":   len(c.AffectedTestCases),
		"revalidation_required": c.RevalidationRequired,
		"risk_level":            c.RiskLevel,
	}); err != nil {
		return c, impact, err
	}
	if err := tx.Commit(); err != nil {
		return c, impact, err
	}
	return c, impact, nil
}

// ApproveChange approves an analyzed change request.
func (e Engine) ApproveChange(ctx context.Context, id, actorID string) (domain.ChangeRequest, error) {
	c, err := e.Repo.GetChange(ctx, id)
	if err != nil {
		return c, err
	}
	if c.RequestedBy != "" && c.RequestedBy == actorID {
		return c, errors.New("change cannot be approved by its requester")
	}
	if err := ensureChangeTransition(c.Status, domain.ChangeApproved); err != nil {
		return c, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	c.Status = domain.ChangeApproved
	c.ApprovedBy = &actorID
	c.ApprovedAt = &now
	return e.saveChange(ctx, c, "change.approved", actorID, audit.Detail{})
}

// SetChangeStatus applies a lifecycle transition to a change request.
func (e Engine) SetChangeStatus(ctx context.Context, id, status, actorID string) (domain.ChangeRequest, error) {
	c, err := e.Repo.GetChange(ctx, id)
	if err != nil {
		return c, err
	}
	if err := ensureChangeTransition(c.Status, status); err != nil {
		return c, err
	}
	from := c.Status
	c.Status = status
	return e.saveChange(ctx, c, "change.status.changed", actorID, audit.Detail{"from_status": from, "to_status": status})
}

func (e Engine) saveChange(ctx context.Context, c domain.ChangeRequest, action, actorID string, detail audit.Detail) (domain.ChangeRequest, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateChange(ctx, tx, c); err != nil {
		return c, err
	}
	if detail == nil {
		detail = audit.Detail{}
	}
	detail["status"] = c.Status
	if err := e.Audit.Append(ctx, tx, action, c.ProjectID, "change_request", c.ID, actorID, detail); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	return c, nil
}
