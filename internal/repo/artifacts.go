package repo

import (
	"context"
	"database/sql"

	"veritrace/internal/domain"
)

const testCaseCols = `id,functional_spec_id,requirement_id,project_id,test_type,title,COALESCE(description,''),COALESCE(steps,''),COALESCE(expected_result,''),priority,created_at,created_by`

func scanTestCase(scan func(dest ...any) error) (domain.TestCase, error) {
	var tc domain.TestCase
	err := scan(&tc.ID, &tc.FunctionalSpecID, &tc.RequirementID, &tc.ProjectID, &tc.TestType,
		&tc.Title, &tc.Description, &tc.Steps, &tc.ExpectedResult, &tc.Priority, &tc.CreatedAt, &tc.CreatedBy)
	if err == sql.ErrNoRows {
		return tc, ErrNotFound
	}
	return tc, err
}

func (r Repo) InsertTestCase(ctx context.Context, tx *sql.Tx, tc domain.TestCase) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO test_cases(id,functional_spec_id,requirement_id,project_id,test_type,title,description,steps,expected_result,priority,created_at,created_by)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		tc.ID, tc.FunctionalSpecID, tc.RequirementID, tc.ProjectID, tc.TestType, tc.Title,
		nullable(tc.Description), nullable(tc.Steps), nullable(tc.ExpectedResult), tc.Priority, tc.CreatedAt, tc.CreatedBy)
	return err
}

func (r Repo) GetTestCase(ctx context.Context, id string) (domain.TestCase, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+testCaseCols+` FROM test_cases WHERE id=?`, id)
	return scanTestCase(row.Scan)
}

func (r Repo) ListTestCases(ctx context.Context, projectID string) ([]domain.TestCase, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+testCaseCols+` FROM test_cases WHERE project_id=? ORDER BY created_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TestCase
	for rows.Next() {
		tc, err := scanTestCase(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, tc)
	}
	return res, nil
}

const executionCols = `id,test_case_id,project_id,cycle,executor,executed_at,result,COALESCE(actual_result,''),COALESCE(environment,''),deviation_id,created_at`

func scanExecution(scan func(dest ...any) error) (domain.TestExecution, error) {
	var ex domain.TestExecution
	var deviationID sql.NullString
	err := scan(&ex.ID, &ex.TestCaseID, &ex.ProjectID, &ex.Cycle, &ex.Executor, &ex.ExecutedAt,
		&ex.Result, &ex.ActualResult, &ex.Environment, &deviationID, &ex.CreatedAt)
	if err == sql.ErrNoRows {
		return ex, ErrNotFound
	}
	if err != nil {
		return ex, err
	}
	if deviationID.Valid {
		ex.DeviationID = &deviationID.String
	}
	return ex, nil
}

func (r Repo) InsertExecution(ctx context.Context, tx *sql.Tx, ex domain.TestExecution) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO test_executions(id,test_case_id,project_id,cycle,executor,executed_at,result,actual_result,environment,deviation_id,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		ex.ID, ex.TestCaseID, ex.ProjectID, ex.Cycle, ex.Executor, ex.ExecutedAt, ex.Result,
		nullable(ex.ActualResult), nullable(ex.Environment), nullableStringPtr(ex.DeviationID), ex.CreatedAt)
	return err
}

func (r Repo) LinkExecutionDeviation(ctx context.Context, tx *sql.Tx, executionID, deviationID string) error {
	res, err := tx.ExecContext(ctx, `UPDATE test_executions SET deviation_id=? WHERE id=?`, deviationID, executionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetExecution(ctx context.Context, id string) (domain.TestExecution, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+executionCols+` FROM test_executions WHERE id=?`, id)
	return scanExecution(row.Scan)
}

func (r Repo) ListExecutions(ctx context.Context, projectID string) ([]domain.TestExecution, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+executionCols+` FROM test_executions WHERE project_id=? ORDER BY executed_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TestExecution
	for rows.Next() {
		ex, err := scanExecution(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, ex)
	}
	return res, nil
}

// NextCycle returns the next execution cycle number for a test case.
func (r Repo) NextCycle(ctx context.Context, tx *sql.Tx, testCaseID string) (int, error) {
	var maxCycle int
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(cycle),0) FROM test_executions WHERE test_case_id=?`, testCaseID).Scan(&maxCycle)
	if err != nil {
		return 0, err
	}
	return maxCycle + 1, nil
}

const deviationCols = `id,test_execution_id,project_id,severity,title,description,COALESCE(root_cause,''),COALESCE(root_cause_category,''),COALESCE(capa_corrective,''),COALESCE(capa_preventive,''),status,assigned_to,closed_by,closed_at,created_at,created_by`

func scanDeviation(scan func(dest ...any) error) (domain.Deviation, error) {
	var d domain.Deviation
	var assignedTo, closedBy, closedAt sql.NullString
	err := scan(&d.ID, &d.TestExecutionID, &d.ProjectID, &d.Severity, &d.Title, &d.Description,
		&d.RootCause, &d.RootCauseCategory, &d.CAPACorrective, &d.CAPAPreventive,
		&d.Status, &assignedTo, &closedBy, &closedAt, &d.CreatedAt, &d.CreatedBy)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	if assignedTo.Valid {
		d.AssignedTo = &assignedTo.String
	}
	if closedBy.Valid {
		d.ClosedBy = &closedBy.String
	}
	if closedAt.Valid {
		d.ClosedAt = &closedAt.String
	}
	return d, nil
}

func (r Repo) InsertDeviation(ctx context.Context, tx *sql.Tx, d domain.Deviation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO deviations(id,test_execution_id,project_id,severity,title,description,root_cause,root_cause_category,capa_corrective,capa_preventive,status,assigned_to,closed_by,closed_at,created_at,created_by)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.TestExecutionID, d.ProjectID, d.Severity, d.Title, d.Description,
		nullable(d.RootCause), nullable(d.RootCauseCategory), nullable(d.CAPACorrective), nullable(d.CAPAPreventive),
		d.Status, nullableStringPtr(d.AssignedTo), nullableStringPtr(d.ClosedBy), nullableStringPtr(d.ClosedAt), d.CreatedAt, d.CreatedBy)
	return err
}

func (r Repo) UpdateDeviation(ctx context.Context, tx *sql.Tx, d domain.Deviation) error {
	res, err := tx.ExecContext(ctx, `UPDATE deviations SET severity=?, root_cause=?, root_cause_category=?, capa_corrective=?, capa_preventive=?, status=?, assigned_to=?, closed_by=?, closed_at=? WHERE id=?`,
		d.Severity, nullable(d.RootCause), nullable(d.RootCauseCategory), nullable(d.CAPACorrective), nullable(d.CAPAPreventive),
		d.Status, nullableStringPtr(d.AssignedTo), nullableStringPtr(d.ClosedBy), nullableStringPtr(d.ClosedAt), d.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetDeviation(ctx context.Context, id string) (domain.Deviation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+deviationCols+` FROM deviations WHERE id=?`, id)
	return scanDeviation(row.Scan)
}

func (r Repo) ListDeviations(ctx context.Context, projectID string) ([]domain.Deviation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+deviationCols+` FROM deviations WHERE project_id=? ORDER BY created_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Deviation
	for rows.Next() {
		d, err := scanDeviation(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, nil
}

const changeCols = `id,project_id,title,description,change_type,priority,COALESCE(justification,''),affected_requirements,affected_specs,affected_test_cases,revalidation_required,risk_level,status,requested_by,requested_at,approved_by,approved_at`

func scanChange(scan func(dest ...any) error) (domain.ChangeRequest, error) {
	var c domain.ChangeRequest
	var reqs, specs, tcs, approvedBy, approvedAt sql.NullString
	err := scan(&c.ID, &c.ProjectID, &c.Title, &c.Description, &c.ChangeType, &c.Priority, &c.Justification,
		&reqs, &specs, &tcs, &c.RevalidationRequired, &c.RiskLevel, &c.Status,
		&c.RequestedBy, &c.RequestedAt, &approvedBy, &approvedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.AffectedRequirements = unmarshalStringSlice(reqs)
	c.AffectedSpecs = unmarshalStringSlice(specs)
	c.AffectedTestCases = unmarshalStringSlice(tcs)
	if approvedBy.Valid {
		c.ApprovedBy = &approvedBy.String
	}
	if approvedAt.Valid {
		c.ApprovedAt = &approvedAt.String
	}
	return c, nil
}

func (r Repo) InsertChange(ctx context.Context, tx *sql.Tx, c domain.ChangeRequest) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO change_requests(id,project_id,title,description,change_type,priority,justification,affected_requirements,affected_specs,affected_test_cases,revalidation_required,risk_level,status,requested_by,requested_at,approved_by,approved_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.ProjectID, c.Title, c.Description, c.ChangeType, c.Priority, nullable(c.Justification),
		marshalStringSlice(c.AffectedRequirements), marshalStringSlice(c.AffectedSpecs), marshalStringSlice(c.AffectedTestCases),
		c.RevalidationRequired, c.RiskLevel, c.Status, c.RequestedBy, c.RequestedAt,
		nullableStringPtr(c.ApprovedBy), nullableStringPtr(c.ApprovedAt))
	return err
}

func (r Repo) UpdateChange(ctx context.Context, tx *sql.Tx, c domain.ChangeRequest) error {
	res, err := tx.ExecContext(ctx, `UPDATE change_requests SET affected_requirements=?, affected_specs=?, affected_test_cases=?, revalidation_required=?, risk_level=?, status=?, approved_by=?, approved_at=? WHERE id=?`,
		marshalStringSlice(c.AffectedRequirements), marshalStringSlice(c.AffectedSpecs), marshalStringSlice(c.AffectedTestCases),
		c.RevalidationRequired, c.RiskLevel, c.Status, nullableStringPtr(c.ApprovedBy), nullableStringPtr(c.ApprovedAt), c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetChange(ctx context.Context, id string) (domain.ChangeRequest, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+changeCols+` FROM change_requests WHERE id=?`, id)
	return scanChange(row.Scan)
}

func (r Repo) ListChanges(ctx context.Context, projectID string) ([]domain.ChangeRequest, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+changeCols+` FROM change_requests WHERE project_id=? ORDER BY requested_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChangeRequest
	for rows.Next() {
		c, err := scanChange(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, nil
}
