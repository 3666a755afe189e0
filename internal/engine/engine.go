package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"veritrace/internal/analysis"
	"veritrace/internal/audit"
	"veritrace/internal/config"
	"veritrace/internal/domain"
	"veritrace/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Audit  audit.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Audit:  audit.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) newID(parts ...string) string {
	seed := ""
	for _, p := range parts {
		seed += p + "|"
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}

// CreateProject initializes a project with its default configuration.
func (e Engine) CreateProject(ctx context.Context, id, name, systemType, description, actorID string) (domain.Project, error) {
	if name == "" {
		return domain.Project{}, errors.New("name is required")
	}
	if systemType == "" {
		systemType = "GxP"
	}
	if systemType != "GxP" && systemType != "Non-GxP" {
		return domain.Project{}, fmt.Errorf("system type must be GxP or Non-GxP")
	}
	now := e.now().UTC().Format(time.RFC3339)
	if id == "" {
		id = e.newID(name, now)
	}
	p := domain.Project{
		ID:          id,
		Name:        name,
		SystemType:  systemType,
		Status:      "active",
		Description: description,
		CreatedAt:   now,
		CreatedBy:   actorID,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	seedCfg := config.Default(p.ID)
	seedCfg.Project.Name = p.Name
	seedCfg.Project.SystemType = p.SystemType
	if err := e.Repo.UpsertProjectConfigTx(ctx, tx, p.ID, seedCfg); err != nil {
		return domain.Project{}, fmt.Errorf("insert project config: %w", err)
	}
	if err := e.Audit.Append(ctx, tx, "project.created", p.ID, "project", p.ID, actorID, audit.Detail{"name": p.Name, "system_type": p.SystemType}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// RequirementCreateOptions are parameters for creating a requirement.
type RequirementCreateOptions struct {
	ID                 string
	ProjectID          string
	Category           string
	Title              string
	Description        string
	AcceptanceCriteria string
	GxPImpact          bool
	ActorID            string
}

// CreateRequirement stores a new requirement in Draft with its risk
// profile and ambiguity score derived at creation time.
func (e Engine) CreateRequirement(ctx context.Context, opts RequirementCreateOptions) (domain.Requirement, error) {
	if opts.Title == "" {
		return domain.Requirement{}, errors.New("title is required")
	}
	if opts.ProjectID == "" {
		return domain.Requirement{}, errors.New("project is required")
	}
	if opts.Category == "" {
		opts.Category = "Functional"
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.Requirement{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = e.newID(opts.ProjectID, opts.Title, now)
	}
	q := domain.Requirement{
		ID:                 id,
		ProjectID:          opts.ProjectID,
		Category:           opts.Category,
		Title:              opts.Title,
		Description:        opts.Description,
		AcceptanceCriteria: opts.AcceptanceCriteria,
		GxPImpact:          opts.GxPImpact,
		Version:            "1.0",
		Status:             domain.ReqDraft,
		CreatedAt:          now,
		CreatedBy:          opts.ActorID,
	}
	risk := analysis.AssessRisk(q)
	q.GxPImpact = risk.GxPImpact
	q.PatientSafetyRisk = risk.PatientSafetyRisk
	q.ProductQualityRisk = risk.ProductQualityRisk
	q.DataIntegrityRisk = risk.DataIntegrityRisk
	q.OverallRisk = risk.OverallRisk
	ambiguity := analysis.DetectAmbiguity(q)
	q.AmbiguityScore = &ambiguity.Score

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Requirement{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertRequirement(ctx, tx, q); err != nil {
		return domain.Requirement{}, fmt.Errorf("insert requirement: %w", err)
	}
	if err := e.Audit.Append(ctx, tx, "requirement.created", q.ProjectID, "requirement", q.ID, opts.ActorID, audit.Detail{
		"title":        q.Title,
		"overall_risk": q.OverallRisk,
		"gxp_impact":   q.GxPImpact,
	}); err != nil {
		return domain.Requirement{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Requirement{}, err
	}
	return q, nil
}

func ensureRequirementTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case domain.ReqDraft:
		if newStatus == domain.ReqUnderReview || newStatus == domain.ReqApproved || newStatus == domain.ReqObsolete {
			return nil
		}
	case domain.ReqUnderReview:
		if newStatus == domain.ReqApproved || newStatus == domain.ReqDraft || newStatus == domain.ReqObsolete {
			return nil
		}
	case domain.ReqApproved:
		if newStatus == domain.ReqObsolete {
			return nil
		}
	}
	return fmt.Errorf("invalid requirement status transition %s -> %s", oldStatus, newStatus)
}

// ApproveRequirement moves a requirement to Approved and records the
// approver. The creator cannot approve their own requirement.
func (e Engine) ApproveRequirement(ctx context.Context, id, actorID string) (domain.Requirement, error) {
	q, err := e.Repo.GetRequirement(ctx, id)
	if err != nil {
		return q, err
	}
	if q.CreatedBy != "" && q.CreatedBy == actorID {
		return q, errors.New("requirement cannot be approved by its author")
	}
	if err := ensureRequirementTransition(q.Status, domain.ReqApproved); err != nil {
		return q, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	q.Status = domain.ReqApproved
	q.ApprovedBy = &actorID
	q.ApprovedAt = &now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return q, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateRequirement(ctx, tx, q); err != nil {
		return q, err
	}
	if err := e.Audit.Append(ctx, tx, "requirement.approved", q.ProjectID, "requirement", q.ID, actorID, audit.Detail{"version": q.Version}); err != nil {
		return q, err
	}
	if err := tx.Commit(); err != nil {
		return q, err
	}
	return q, nil
}

// SetRequirementStatus applies a lifecycle transition without approval
// side effects.
func (e Engine) SetRequirementStatus(ctx context.Context, id, status, actorID string) (domain.Requirement, error) {
	q, err := e.Repo.GetRequirement(ctx, id)
	if err != nil {
		return q, err
	}
	if err := ensureRequirementTransition(q.Status, status); err != nil {
		return q, err
	}
	from := q.Status
	q.Status = status
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return q, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateRequirement(ctx, tx, q); err != nil {
		return q, err
	}
	if err := e.Audit.Append(ctx, tx, "requirement.status.changed", q.ProjectID, "requirement", q.ID, actorID, audit.Detail{
		"from_status": from,
		"to_status":   status,
	}); err != nil {
		return q, err
	}
	if err := tx.Commit(); err != nil {
		return q, err
	}
	return q, nil
}

// ApplyRiskAssessment re-derives and persists the risk profile for a
// requirement from its current text.
func (e Engine) ApplyRiskAssessment(ctx context.Context, id, actorID string) (domain.Requirement, analysis.RiskAssessment, error) {
	q, err := e.Repo.GetRequirement(ctx, id)
	if err != nil {
		return q, analysis.RiskAssessment{}, err
	}
	risk := analysis.AssessRisk(q)
	q.GxPImpact = risk.GxPImpact
	q.PatientSafetyRisk = risk.PatientSafetyRisk
	q.ProductQualityRisk = risk.ProductQualityRisk
	q.DataIntegrityRisk = risk.DataIntegrityRisk
	q.OverallRisk = risk.OverallRisk

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return q, risk, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateRequirement(ctx, tx, q); err != nil {
		return q, risk, err
	}
	if err := e.Audit.Append(ctx, tx, "requirement.risk.assessed", q.ProjectID, "requirement", q.ID, actorID, audit.Detail{
		"overall_risk": risk.OverallRisk,
		"reason":       risk.Reason,
	}); err != nil {
		return q, risk, err
	}
	if err := tx.Commit(); err != nil {
		return q, risk, err
	}
	return q, risk, nil
}

func ensureSpecTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case domain.SpecDraft:
		if newStatus == domain.SpecUnderReview || newStatus == domain.SpecApproved {
			return nil
		}
	case domain.SpecUnderReview:
		if newStatus == domain.SpecApproved || newStatus == domain.SpecDraft {
			return nil
		}
	}
	return fmt.Errorf("invalid spec status transition %s -> %s", oldStatus, newStatus)
}

// SpecCreateOptions are parameters for creating a functional spec.
type SpecCreateOptions struct {
	ID            string
	RequirementID string
	Title         string
	Description   string
	Approach      string
	ActorID       string
}

// CreateFunctionalSpec stores a functional spec under an approved
// requirement. The approval gate can be relaxed per project config.
func (e Engine) CreateFunctionalSpec(ctx context.Context, opts SpecCreateOptions) (domain.FunctionalSpec, error) {
	if opts.Title == "" {
		return domain.FunctionalSpec{}, errors.New("title is required")
	}
	q, err := e.Repo.GetRequirement(ctx, opts.RequirementID)
	if err != nil {
		return domain.FunctionalSpec{}, err
	}
	if e.requireApprovedParent(true) && q.Status != domain.ReqApproved {
		return domain.FunctionalSpec{}, fmt.Errorf("requirement %s must be Approved before a spec is created", q.ID)
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = e.newID(q.ProjectID, opts.Title, now)
	}
	fs := domain.FunctionalSpec{
		ID:            id,
		RequirementID: q.ID,
		ProjectID:     q.ProjectID,
		Title:         opts.Title,
		Description:   opts.Description,
		Approach:      opts.Approach,
		Version:       "1.0",
		Status:        domain.SpecDraft,
		CreatedAt:     now,
		CreatedBy:     opts.ActorID,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return fs, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertFunctionalSpec(ctx, tx, fs); err != nil {
		return fs, fmt.Errorf("insert spec: %w", err)
	}
	if err := e.Audit.Append(ctx, tx, "spec.created", fs.ProjectID, "functional_spec", fs.ID, opts.ActorID, audit.Detail{
		"title":          fs.Title,
		"requirement_id": fs.RequirementID,
	}); err != nil {
		return fs, err
	}
	if err := tx.Commit(); err != nil {
		return fs, err
	}
	return fs, nil
}

// ApproveFunctionalSpec moves a spec to Approved.
func (e Engine) ApproveFunctionalSpec(ctx context.Context, id, actorID string) (domain.FunctionalSpec, error) {
	fs, err := e.Repo.GetFunctionalSpec(ctx, id)
	if err != nil {
		return fs, err
	}
	if fs.CreatedBy != "" && fs.CreatedBy == actorID {
		return fs, errors.New("spec cannot be approved by its author")
	}
	if err := ensureSpecTransition(fs.Status, domain.SpecApproved); err != nil {
		return fs, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	fs.Status = domain.SpecApproved
	fs.ApprovedBy = &actorID
	fs.ApprovedAt = &now
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return fs, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateFunctionalSpecStatus(ctx, tx, fs.ID, fs.Status, fs.ApprovedBy, fs.ApprovedAt); err != nil {
		return fs, err
	}
	if err := e.Audit.Append(ctx, tx, "spec.approved", fs.ProjectID, "functional_spec", fs.ID, actorID, audit.Detail{"version": fs.Version}); err != nil {
		return fs, err
	}
	if err := tx.Commit(); err != nil {
		return fs, err
	}
	return fs, nil
}

// DesignCreateOptions are parameters for creating a design spec.
type DesignCreateOptions struct {
	ID               string
	FunctionalSpecID string
	Title            string
	Description      string
	ActorID          string
}

// CreateDesignSpec stores a design spec under an approved functional spec.
func (e Engine) CreateDesignSpec(ctx context.Context, opts DesignCreateOptions) (domain.DesignSpec, error) {
	if opts.Title == "" {
		return domain.DesignSpec{}, errors.New("title is required")
	}
	fs, err := e.Repo.GetFunctionalSpec(ctx, opts.FunctionalSpecID)
	if err != nil {
		return domain.DesignSpec{}, err
	}
	if e.requireApprovedParent(false) && fs.Status != domain.SpecApproved {
		return domain.DesignSpec{}, fmt.Errorf("functional spec %s must be Approved before a design is created", fs.ID)
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = e.newID(fs.ProjectID, opts.Title, now)
	}
	ds := domain.DesignSpec{
		ID:               id,
		FunctionalSpecID: fs.ID,
		ProjectID:        fs.ProjectID,
		Title:            opts.Title,
		Description:      opts.Description,
		Version:          "1.0",
		Status:           domain.SpecDraft,
		CreatedAt:        now,
		CreatedBy:        opts.ActorID,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ds, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertDesignSpec(ctx, tx, ds); err != nil {
		return ds, fmt.Errorf("insert design: %w", err)
	}
	if err := e.Audit.Append(ctx, tx, "design.created", ds.ProjectID, "design_spec", ds.ID, opts.ActorID, audit.Detail{
		"title":              ds.Title,
		"functional_spec_id": ds.FunctionalSpecID,
	}); err != nil {
		return ds, err
	}
	if err := tx.Commit(); err != nil {
		return ds, err
	}
	return ds, nil
}

func (e Engine) requireApprovedParent(functionalSpec bool) bool {
	if e.Config == nil {
		return true
	}
	if functionalSpec {
		return e.Config.Validation.RequireApprovedBy.FunctionalSpec
	}
	return e.Config.Validation.RequireApprovedBy.DesignSpec
}
