package repo

import (
	"context"

	"veritrace/internal/analysis"
)

// LoadSnapshot assembles the full artifact snapshot for a project, the
// input shape every derivation takes. Listing order is stable
// (created_at then id ascending) so derived outputs are deterministic.
func (r Repo) LoadSnapshot(ctx context.Context, projectID string) (analysis.Snapshot, error) {
	var snap analysis.Snapshot
	var err error
	if snap.Requirements, err = r.ListRequirements(ctx, projectID); err != nil {
		return snap, err
	}
	if snap.FunctionalSpecs, err = r.ListFunctionalSpecs(ctx, projectID); err != nil {
		return snap, err
	}
	if snap.DesignSpecs, err = r.ListDesignSpecs(ctx, projectID); err != nil {
		return snap, err
	}
	if snap.TestCases, err = r.ListTestCases(ctx, projectID); err != nil {
		return snap, err
	}
	if snap.Executions, err = r.ListExecutions(ctx, projectID); err != nil {
		return snap, err
	}
	if snap.Deviations, err = r.ListDeviations(ctx, projectID); err != nil {
		return snap, err
	}
	if snap.Changes, err = r.ListChanges(ctx, projectID); err != nil {
		return snap, err
	}
	return snap, nil
}
