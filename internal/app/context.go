package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"veritrace/internal/config"
	"veritrace/internal/domain"
	"veritrace/internal/repo"
)

// ResolveProjectAndConfig picks the active project and ensures a
// project + config exist in the database, seeding defaults if missing.
// It prefers the override, then the single project in the workspace.
// A workspace veritrace.yml, when present, takes precedence over the
// stored config.
func ResolveProjectAndConfig(ctx context.Context, workspace, projectOverride, actorID string, r repo.Repo) (string, *config.Config, error) {
	projectID := projectOverride
	if projectID == "" {
		if p, err := r.SingleProject(ctx); err == nil {
			projectID = p.ID
		} else {
			return "", nil, fmt.Errorf("project not specified; use --project")
		}
	}
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, err
	}
	seedCfg := fileCfg
	if seedCfg == nil {
		seedCfg = config.Default(projectID)
	}

	if _, err := r.GetProject(ctx, projectID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createProject(ctx, r, projectID, seedCfg, actorID); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetProjectConfig(ctx, projectID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := r.UpsertProjectConfig(ctx, projectID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed project config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	if fileCfg != nil {
		cfg = fileCfg
	}
	cfg.Project.ID = projectID
	return projectID, cfg, nil
}

// createProject inserts a minimal project footprint using the seed config.
func createProject(ctx context.Context, r repo.Repo, projectID string, seedCfg *config.Config, actorID string) error {
	if seedCfg == nil {
		seedCfg = config.Default(projectID)
	}
	name := seedCfg.Project.Name
	if name == "" {
		name = projectID
	}
	systemType := seedCfg.Project.SystemType
	if systemType == "" {
		systemType = "GxP"
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if actorID == "" {
		actorID = "local-user"
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	p := domain.Project{
		ID:         projectID,
		Name:       name,
		SystemType: systemType,
		Status:     "active",
		CreatedAt:  now,
		CreatedBy:  actorID,
	}
	if err := r.InsertProject(ctx, tx, p); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	if err := r.UpsertProjectConfigTx(ctx, tx, projectID, seedCfg); err != nil {
		return fmt.Errorf("insert project config: %w", err)
	}
	return tx.Commit()
}
