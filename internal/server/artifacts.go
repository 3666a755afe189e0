package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"veritrace/internal/domain"
	"veritrace/internal/engine"
)

func projectMatches(pathProject, entityProject string) bool {
	return pathProject == "" || pathProject == entityProject
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		if err := requirePermission(ctx, e, "", "project.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, input.Body.ID, input.Body.Name, input.Body.SystemType, input.Body.Description, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, "", "report.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "report.read"); err != nil {
			return nil, handleError(err)
		}
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})
}

func registerRequirements(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-requirement",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/requirements",
		Summary:       "Create requirement",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                   `path:"project_id"`
		Body      CreateRequirementRequest `json:"body"`
	}) (*struct {
		Body domain.Requirement `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "requirement.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		q, err := e.CreateRequirement(ctx, engine.RequirementCreateOptions{
			ID:                 input.Body.ID,
			ProjectID:          input.ProjectID,
			Category:           input.Body.Category,
			Title:              input.Body.Title,
			Description:        input.Body.Description,
			AcceptanceCriteria: input.Body.AcceptanceCriteria,
			GxPImpact:          input.Body.GxPImpact,
			ActorID:            actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Requirement `json:"body"`
		}{Body: q}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-requirements",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/requirements",
		Summary:     "List requirements",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Status    string `query:"status"`
	}) (*struct {
		Body []domain.Requirement `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "report.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListRequirements(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		if input.Status != "" {
			filtered := items[:0]
			for _, q := range items {
				if q.Status == input.Status {
					filtered = append(filtered, q)
				}
			}
			items = filtered
		}
		return &struct {
			Body []domain.Requirement `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-requirement",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/requirements/{id}",
		Summary:     "Get requirement",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body domain.Requirement `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "report.read"); err != nil {
			return nil, handleError(err)
		}
		q, err := e.Repo.GetRequirement(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if !projectMatches(input.ProjectID, q.ProjectID) {
			return nil, newAPIError(http.StatusNotFound, "not_found", "requirement not found in project", nil)
		}
		return &struct {
			Body domain.Requirement `json:"body"`
		}{Body: q}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-requirement",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/requirements/{id}/approve",
		Summary:     "Approve requirement",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body domain.Requirement `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "requirement.approve"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		q, err := e.ApproveRequirement(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Requirement `json:"body"`
		}{Body: q}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-requirement-status",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/requirements/{id}/status",
		Summary:     "Update requirement status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string           `path:"project_id"`
		ID        string           `path:"id"`
		Body      SetStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Requirement `json:"body"`
	}, error) {
		if input.Body.Status == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "status is required", nil)
		}
		if err := requirePermission(ctx, e, input.ProjectID, "requirement.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		q, err := e.SetRequirementStatus(ctx, input.ID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Requirement `json:"body"`
		}{Body: q}, nil
	})
}

func registerSpecs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-spec",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/requirements/{id}/specs",
		Summary:       "Create functional spec",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		ID        string            `path:"id"`
		Body      CreateSpecRequest `json:"body"`
	}) (*struct {
		Body domain.FunctionalSpec `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "spec.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		fs, err := e.CreateFunctionalSpec(ctx, engine.SpecCreateOptions{
			ID:            input.Body.ID,
			RequirementID: input.ID,
			Title:         input.Body.Title,
			Description:   input.Body.Description,
			Approach:      input.Body.Approach,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.FunctionalSpec `json:"body"`
		}{Body: fs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-specs",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/specs",
		Summary:     "List functional specs",
	}, func(ctx context.Context, input *struct {
		ProjectID     string `path:"project_id"`
		RequirementID string `query:"requirement_id"`
	}) (*struct {
		Body []domain.FunctionalSpec `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "report.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListFunctionalSpecs(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		if input.RequirementID != "" {
			filtered := items[:0]
			for _, fs := range items {
				if fs.RequirementID == input.RequirementID {
					filtered = append(filtered, fs)
				}
			}
			items = filtered
		}
		return &struct {
			Body []domain.FunctionalSpec `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-spec",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/specs/{id}",
		Summary:     "Get functional spec",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body domain.FunctionalSpec `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "report.read"); err != nil {
			return nil, handleError(err)
		}
		fs, err := e.Repo.GetFunctionalSpec(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if !projectMatches(input.ProjectID, fs.ProjectID) {
			return nil, newAPIError(http.StatusNotFound, "not_found", "spec not found in project", nil)
		}
		return &struct {
			Body domain.FunctionalSpec `json:"body"`
		}{Body: fs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-spec",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/specs/{id}/approve",
		Summary:     "Approve functional spec",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body domain.FunctionalSpec `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "spec.approve"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		fs, err := e.ApproveFunctionalSpec(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.FunctionalSpec `json:"body"`
		}{Body: fs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-design",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/specs/{id}/designs",
		Summary:       "Create design spec",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		ID        string              `path:"id"`
		Body      CreateDesignRequest `json:"body"`
	}) (*struct {
		Body domain.DesignSpec `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "design.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ds, err := e.CreateDesignSpec(ctx, engine.DesignCreateOptions{
			ID:               input.Body.ID,
			FunctionalSpecID: input.ID,
			Title:            input.Body.Title,
			Description:      input.Body.Description,
			ActorID:          actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.DesignSpec `json:"body"`
		}{Body: ds}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-designs",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/designs",
		Summary:     "List design specs",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.DesignSpec `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "report.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListDesignSpecs(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.DesignSpec `json:"body"`
		}{Body: items}, nil
	})
}

func registerTesting(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-test-case",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/specs/{id}/test-cases",
		Summary:       "Create test case",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                `path:"project_id"`
		ID        string                `path:"id"`
		Body      CreateTestCaseRequest `json:"body"`
	}) (*struct {
		Body domain.TestCase `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "testcase.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tc, err := e.CreateTestCase(ctx, engine.TestCaseCreateOptions{
			ID:               input.Body.ID,
			FunctionalSpecID: input.ID,
			TestType:         input.Body.TestType,
			Title:            input.Body.Title,
			Description:      input.Body.Description,
			Steps:            input.Body.Steps,
			ExpectedResult:   input.Body.ExpectedResult,
			Priority:         input.Body.Priority,
			ActorID:          actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TestCase `json:"body"`
		}{Body: tc}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-test-cases",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/test-cases",
		Summary:     "List test cases",
	}, func(ctx context.Context, input *struct {
		ProjectID        string `path:"project_id"`
		FunctionalSpecID string `query:"functional_spec_id"`
	}) (*struct {
		Body []domain.TestCase `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "report.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListTestCases(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		if input.FunctionalSpecID != "" {
			filtered := items[:0]
			for _, tc := range items {
				if tc.FunctionalSpecID == input.FunctionalSpecID {
					filtered = append(filtered, tc)
				}
			}
			items = filtered
		}
		return &struct {
			Body []domain.TestCase `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "record-execution",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/test-cases/{id}/executions",
		Summary:       "Record test execution",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                 `path:"project_id"`
		ID        string                 `path:"id"`
		Body      RecordExecutionRequest `json:"body"`
	}) (*struct {
		Body domain.TestExecution `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "execution.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ex, err := e.RecordExecution(ctx, engine.ExecutionRecordOptions{
			ID:           input.Body.ID,
			TestCaseID:   input.ID,
			Result:       input.Body.Result,
			ActualResult: input.Body.ActualResult,
			Environment:  input.Body.Environment,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TestExecution `json:"body"`
		}{Body: ex}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-executions",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/executions",
		Summary:     "List test executions",
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		TestCaseID string `query:"test_case_id"`
	}) (*struct {
		Body []domain.TestExecution `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "report.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListExecutions(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		if input.TestCaseID != "" {
			filtered := items[:0]
			for _, ex := range items {
				if ex.TestCaseID == input.TestCaseID {
					filtered = append(filtered, ex)
				}
			}
			items = filtered
		}
		return &struct {
			Body []domain.TestExecution `json:"body"`
		}{Body: items}, nil
	})
}
