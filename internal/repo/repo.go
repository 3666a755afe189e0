package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"veritrace/internal/config"
	"veritrace/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,name,system_type,status,description,created_at,created_by) VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.Name, p.SystemType, p.Status, nullable(p.Description), p.CreatedAt, p.CreatedBy)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	var desc sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,system_type,status,description,created_at,created_by FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &p.SystemType, &p.Status, &desc, &p.CreatedAt, &p.CreatedBy)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if desc.Valid {
		p.Description = desc.String
	}
	return p, err
}

func (r Repo) SingleProject(ctx context.Context) (domain.Project, error) {
	projects, err := r.ListProjects(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	if len(projects) == 0 {
		return domain.Project{}, ErrNotFound
	}
	if len(projects) > 1 {
		return domain.Project{}, fmt.Errorf("multiple projects exist; specify --project")
	}
	return projects[0], nil
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,system_type,status,COALESCE(description,'') AS description,created_at,created_by FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.SystemType, &p.Status, &p.Description, &p.CreatedAt, &p.CreatedBy); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

func (r Repo) UpsertProjectConfig(ctx context.Context, projectID string, cfg *config.Config) error {
	return upsertProjectConfig(ctx, r.DB, nil, projectID, cfg)
}

func (r Repo) UpsertProjectConfigTx(ctx context.Context, tx *sql.Tx, projectID string, cfg *config.Config) error {
	return upsertProjectConfig(ctx, nil, tx, projectID, cfg)
}

func upsertProjectConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, projectID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Project.ID = projectID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO project_configs(project_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(project_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, projectID, string(payload), now, now)
	return err
}

func (r Repo) GetProjectConfig(ctx context.Context, projectID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM project_configs WHERE project_id=?`, projectID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Project.ID == "" {
		cfg.Project.ID = projectID
	}
	return &cfg, cfg.Validate()
}

const requirementCols = `id,project_id,category,title,description,COALESCE(acceptance_criteria,''),gxp_impact,patient_safety_risk,product_quality_risk,data_integrity_risk,overall_risk,version,status,ambiguity_score,approved_by,approved_at,created_at,created_by`

func scanRequirement(scan func(dest ...any) error) (domain.Requirement, error) {
	var q domain.Requirement
	var ambiguity sql.NullFloat64
	var approvedBy, approvedAt sql.NullString
	err := scan(&q.ID, &q.ProjectID, &q.Category, &q.Title, &q.Description, &q.AcceptanceCriteria,
		&q.GxPImpact, &q.PatientSafetyRisk, &q.ProductQualityRisk, &q.DataIntegrityRisk, &q.OverallRisk,
		&q.Version, &q.Status, &ambiguity, &approvedBy, &approvedAt, &q.CreatedAt, &q.CreatedBy)
	if err == sql.ErrNoRows {
		return q, ErrNotFound
	}
	if err != nil {
		return q, err
	}
	if ambiguity.Valid {
		q.AmbiguityScore = &ambiguity.Float64
	}
	if approvedBy.Valid {
		q.ApprovedBy = &approvedBy.String
	}
	if approvedAt.Valid {
		q.ApprovedAt = &approvedAt.String
	}
	return q, nil
}

func (r Repo) InsertRequirement(ctx context.Context, tx *sql.Tx, q domain.Requirement) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO requirements(id,project_id,category,title,description,acceptance_criteria,gxp_impact,patient_safety_risk,product_quality_risk,data_integrity_risk,overall_risk,version,status,ambiguity_score,approved_by,approved_at,created_at,created_by)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		q.ID, q.ProjectID, q.Category, q.Title, q.Description, nullable(q.AcceptanceCriteria),
		q.GxPImpact, q.PatientSafetyRisk, q.ProductQualityRisk, q.DataIntegrityRisk, q.OverallRisk,
		q.Version, q.Status, nullableFloatPtr(q.AmbiguityScore), nullableStringPtr(q.ApprovedBy), nullableStringPtr(q.ApprovedAt),
		q.CreatedAt, q.CreatedBy)
	return err
}

func (r Repo) UpdateRequirement(ctx context.Context, tx *sql.Tx, q domain.Requirement) error {
	res, err := tx.ExecContext(ctx, `UPDATE requirements SET category=?, title=?, description=?, acceptance_criteria=?, gxp_impact=?, patient_safety_risk=?, product_quality_risk=?, data_integrity_risk=?, overall_risk=?, version=?, status=?, ambiguity_score=?, approved_by=?, approved_at=? WHERE id=?`,
		q.Category, q.Title, q.Description, nullable(q.AcceptanceCriteria), q.GxPImpact,
		q.PatientSafetyRisk, q.ProductQualityRisk, q.DataIntegrityRisk, q.OverallRisk,
		q.Version, q.Status, nullableFloatPtr(q.AmbiguityScore), nullableStringPtr(q.ApprovedBy), nullableStringPtr(q.ApprovedAt), q.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetRequirement(ctx context.Context, id string) (domain.Requirement, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+requirementCols+` FROM requirements WHERE id=?`, id)
	return scanRequirement(row.Scan)
}

func (r Repo) ListRequirements(ctx context.Context, projectID string) ([]domain.Requirement, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+requirementCols+` FROM requirements WHERE project_id=? ORDER BY created_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Requirement
	for rows.Next() {
		q, err := scanRequirement(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, q)
	}
	return res, nil
}

const specCols = `id,requirement_id,project_id,title,description,COALESCE(approach,''),version,status,approved_by,approved_at,created_at,created_by`

func scanSpec(scan func(dest ...any) error) (domain.FunctionalSpec, error) {
	var fs domain.FunctionalSpec
	var approvedBy, approvedAt sql.NullString
	err := scan(&fs.ID, &fs.RequirementID, &fs.ProjectID, &fs.Title, &fs.Description, &fs.Approach,
		&fs.Version, &fs.Status, &approvedBy, &approvedAt, &fs.CreatedAt, &fs.CreatedBy)
	if err == sql.ErrNoRows {
		return fs, ErrNotFound
	}
	if err != nil {
		return fs, err
	}
	if approvedBy.Valid {
		fs.ApprovedBy = &approvedBy.String
	}
	if approvedAt.Valid {
		fs.ApprovedAt = &approvedAt.String
	}
	return fs, nil
}

func (r Repo) InsertFunctionalSpec(ctx context.Context, tx *sql.Tx, fs domain.FunctionalSpec) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO functional_specs(id,requirement_id,project_id,title,description,approach,version,status,approved_by,approved_at,created_at,created_by)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		fs.ID, fs.RequirementID, fs.ProjectID, fs.Title, fs.Description, nullable(fs.Approach),
		fs.Version, fs.Status, nullableStringPtr(fs.ApprovedBy), nullableStringPtr(fs.ApprovedAt), fs.CreatedAt, fs.CreatedBy)
	return err
}

func (r Repo) UpdateFunctionalSpecStatus(ctx context.Context, tx *sql.Tx, id, status string, approvedBy, approvedAt *string) error {
	res, err := tx.ExecContext(ctx, `UPDATE functional_specs SET status=?, approved_by=?, approved_at=? WHERE id=?`,
		status, nullableStringPtr(approvedBy), nullableStringPtr(approvedAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetFunctionalSpec(ctx context.Context, id string) (domain.FunctionalSpec, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+specCols+` FROM functional_specs WHERE id=?`, id)
	return scanSpec(row.Scan)
}

func (r Repo) ListFunctionalSpecs(ctx context.Context, projectID string) ([]domain.FunctionalSpec, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+specCols+` FROM functional_specs WHERE project_id=? ORDER BY created_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.FunctionalSpec
	for rows.Next() {
		fs, err := scanSpec(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, fs)
	}
	return res, nil
}

const designCols = `id,functional_spec_id,project_id,title,description,version,status,approved_by,approved_at,created_at,created_by`

func scanDesign(scan func(dest ...any) error) (domain.DesignSpec, error) {
	var ds domain.DesignSpec
	var approvedBy, approvedAt sql.NullString
	err := scan(&ds.ID, &ds.FunctionalSpecID, &ds.ProjectID, &ds.Title, &ds.Description,
		&ds.Version, &ds.Status, &approvedBy, &approvedAt, &ds.CreatedAt, &ds.CreatedBy)
	if err == sql.ErrNoRows {
		return ds, ErrNotFound
	}
	if err != nil {
		return ds, err
	}
	if approvedBy.Valid {
		ds.ApprovedBy = &approvedBy.String
	}
	if approvedAt.Valid {
		ds.ApprovedAt = &approvedAt.String
	}
	return ds, nil
}

func (r Repo) InsertDesignSpec(ctx context.Context, tx *sql.Tx, ds domain.DesignSpec) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO design_specs(id,functional_spec_id,project_id,title,description,version,status,approved_by,approved_at,created_at,created_by)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		ds.ID, ds.FunctionalSpecID, ds.ProjectID, ds.Title, ds.Description,
		ds.Version, ds.Status, nullableStringPtr(ds.ApprovedBy), nullableStringPtr(ds.ApprovedAt), ds.CreatedAt, ds.CreatedBy)
	return err
}

func (r Repo) GetDesignSpec(ctx context.Context, id string) (domain.DesignSpec, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+designCols+` FROM design_specs WHERE id=?`, id)
	return scanDesign(row.Scan)
}

func (r Repo) ListDesignSpecs(ctx context.Context, projectID string) ([]domain.DesignSpec, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+designCols+` FROM design_specs WHERE project_id=? ORDER BY created_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DesignSpec
	for rows.Next() {
		ds, err := scanDesign(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, ds)
	}
	return res, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func marshalStringSlice(in []string) any {
	if len(in) == 0 {
		return nil
	}
	b, _ := json.Marshal(in)
	return string(b)
}

func unmarshalStringSlice(raw sql.NullString) []string {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(raw.String), &out)
	return out
}

func whereClauses(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(clauses, " AND ")
}
