package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"veritrace/internal/analysis"
	"veritrace/internal/engine"
)

// registerReports exposes the derivation endpoints. Everything here is
// computed from the stored artifacts; nothing is persisted except risk
// re-assessment, which goes through the engine.
func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "assess-requirement-risk",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/requirements/{id}/risk",
		Summary:     "Re-assess requirement risk",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body analysis.RiskAssessment `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "requirement.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		_, risk, err := e.ApplyRiskAssessment(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body analysis.RiskAssessment `json:"body"`
		}{Body: risk}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "requirement-ambiguity",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/requirements/{id}/ambiguity",
		Summary:     "Analyze requirement ambiguity",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body analysis.AmbiguityReport `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "report.read"); err != nil {
			return nil, handleError(err)
		}
		q, err := e.Repo.GetRequirement(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body analysis.AmbiguityReport `json:"body"`
		}{Body: analysis.DetectAmbiguity(q)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "suggest-spec",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/requirements/{id}/suggest-spec",
		Summary:     "Suggest a functional spec draft",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body analysis.SpecSuggestion `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "report.read"); err != nil {
			return nil, handleError(err)
		}
		q, err := e.Repo.GetRequirement(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body analysis.SpecSuggestion `json:"body"`
		}{Body: analysis.SuggestSpec(q)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "suggest-test-cases",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/specs/{id}/suggest-tests",
		Summary:     "Suggest test cases for a spec",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body []analysis.TestCaseSuggestion `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "report.read"); err != nil {
			return nil, handleError(err)
		}
		fs, err := e.Repo.GetFunctionalSpec(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []analysis.TestCaseSuggestion `json:"body"`
		}{Body: analysis.SuggestTestCases(fs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "suggest-root-cause",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/deviations/{id}/suggest-root-cause",
		Summary:     "Suggest deviation root cause and CAPA",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body analysis.RootCauseSuggestion `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "report.read"); err != nil {
			return nil, handleError(err)
		}
		d, err := e.Repo.GetDeviation(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body analysis.RootCauseSuggestion `json:"body"`
		}{Body: analysis.SuggestRootCause(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-consistency",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/consistency",
		Summary:     "Check project consistency",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body analysis.ConsistencyReport `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "report.read"); err != nil {
			return nil, handleError(err)
		}
		if _, err := e.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		snap, err := e.Repo.LoadSnapshot(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body analysis.ConsistencyReport `json:"body"`
		}{Body: analysis.CheckConsistency(input.ProjectID, snap)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-traceability",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/traceability",
		Summary:     "Build traceability matrix",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []analysis.TraceabilityRow `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "report.read"); err != nil {
			return nil, handleError(err)
		}
		if _, err := e.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		snap, err := e.Repo.LoadSnapshot(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []analysis.TraceabilityRow `json:"body"`
		}{Body: analysis.BuildTraceability(snap)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-summary",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/summary",
		Summary:     "Generate validation summary",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body analysis.ValidationSummary `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "report.read"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		var regulations []string
		if cfg, err := e.Repo.GetProjectConfig(ctx, input.ProjectID); err == nil {
			regulations = cfg.Validation.Regulations
		}
		snap, err := e.Repo.LoadSnapshot(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		summary := analysis.BuildSummary(p, regulations, snap)
		summary.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
		summary.GeneratedBy = actorID
		return &struct {
			Body analysis.ValidationSummary `json:"body"`
		}{Body: summary}, nil
	})
}
