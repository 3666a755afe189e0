package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"veritrace/internal/domain"
	"veritrace/internal/engine"
	"veritrace/internal/repo"
)

func registerDeviations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-deviation",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/deviations",
		Summary:       "Open deviation",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                 `path:"project_id"`
		Body      CreateDeviationRequest `json:"body"`
	}) (*struct {
		Body domain.Deviation `json:"body"`
	}, error) {
		if input.Body.TestExecutionID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "test_execution_id is required", nil)
		}
		if err := requirePermission(ctx, e, input.ProjectID, "deviation.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.CreateDeviation(ctx, engine.DeviationCreateOptions{
			ID:              input.Body.ID,
			TestExecutionID: input.Body.TestExecutionID,
			Severity:        input.Body.Severity,
			Title:           input.Body.Title,
			Description:     input.Body.Description,
			ActorID:         actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Deviation `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-deviations",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/deviations",
		Summary:     "List deviations",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Status    string `query:"status"`
	}) (*struct {
		Body []domain.Deviation `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "report.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListDeviations(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		if input.Status != "" {
			filtered := items[:0]
			for _, d := range items {
				if d.Status == input.Status {
					filtered = append(filtered, d)
				}
			}
			items = filtered
		}
		return &struct {
			Body []domain.Deviation `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-deviation",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/deviations/{id}",
		Summary:     "Get deviation",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body domain.Deviation `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "report.read"); err != nil {
			return nil, handleError(err)
		}
		d, err := e.Repo.GetDeviation(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if !projectMatches(input.ProjectID, d.ProjectID) {
			return nil, newAPIError(http.StatusNotFound, "not_found", "deviation not found in project", nil)
		}
		return &struct {
			Body domain.Deviation `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "investigate-deviation",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/deviations/{id}/investigate",
		Summary:     "Record deviation root cause",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                      `path:"project_id"`
		ID        string                      `path:"id"`
		Body      InvestigateDeviationRequest `json:"body"`
	}) (*struct {
		Body domain.Deviation `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "deviation.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.InvestigateDeviation(ctx, input.ID, input.Body.RootCause, input.Body.RootCauseCategory, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Deviation `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-capa",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/deviations/{id}/capa",
		Summary:     "Assign CAPA",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		ID        string            `path:"id"`
		Body      AssignCAPARequest `json:"body"`
	}) (*struct {
		Body domain.Deviation `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "deviation.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.AssignCAPA(ctx, input.ID, input.Body.Corrective, input.Body.Preventive, input.Body.AssignedTo, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Deviation `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-capa",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/deviations/{id}/capa/verify",
		Summary:     "Verify CAPA effectiveness",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body domain.Deviation `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "deviation.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.VerifyCAPA(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Deviation `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-deviation",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/deviations/{id}/close",
		Summary:     "Close deviation",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body domain.Deviation `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "deviation.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.CloseDeviation(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Deviation `json:"body"`
		}{Body: d}, nil
	})
}

func registerChanges(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-change",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/changes",
		Summary:       "Create change request",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		Body      CreateChangeRequest `json:"body"`
	}) (*struct {
		Body domain.ChangeRequest `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "change.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateChangeRequest(ctx, engine.ChangeCreateOptions{
			ID:            input.Body.ID,
			ProjectID:     input.ProjectID,
			Title:         input.Body.Title,
			Description:   input.Body.Description,
			ChangeType:    input.Body.ChangeType,
			Priority:      input.Body.Priority,
			Justification: input.Body.Justification,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChangeRequest `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-changes",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/changes",
		Summary:     "List change requests",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.ChangeRequest `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "report.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListChanges(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ChangeRequest `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "analyze-change",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/changes/{id}/analyze",
		Summary:     "Analyze change impact",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body domain.ChangeRequest `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "change.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, _, err := e.AnalyzeChange(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChangeRequest `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-change",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/changes/{id}/approve",
		Summary:     "Approve change request",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body domain.ChangeRequest `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "change.approve"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.ApproveChange(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChangeRequest `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-change-status",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/changes/{id}/status",
		Summary:     "Update change status",
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
		Body domain.ChangeRequest `json:"body"`
	}, error) {
		if input.Body.Status == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "status is required", nil)
		}
		if err := requirePermission(ctx, e, input.ProjectID, "change.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.SetChangeStatus(ctx, input.ID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChangeRequest `json:"body"`
		}{Body: c}, nil
	})
}

func registerAudit(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-audit",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "List audit trail entries",
	}, func(ctx context.Context, input *struct {
		ProjectID  string `query:"project_id"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		ActorID    string `query:"actor_id"`
		Action     string `query:"action"`
		Limit      int    `query:"limit" default:"200"`
		Cursor     int64  `query:"cursor"`
	}) (*struct {
		Body []domain.AuditEntry `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.ProjectID, "report.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListAudit(ctx, repo.AuditFilters{
			ProjectID:  input.ProjectID,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			ActorID:    input.ActorID,
			Action:     input.Action,
			Limit:      input.Limit,
			Cursor:     input.Cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.AuditEntry `json:"body"`
		}{Body: items}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		if input.Body.ActorID == "" || input.Body.Role == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id and role are required", nil)
		}
		if err := requirePermission(ctx, e, "", "apikey.write"); err != nil {
			return nil, handleError(err)
		}
		rawKey := uuid.NewString()
		k := domain.APIKey{
			ID:        uuid.NewString(),
			ActorID:   input.Body.ActorID,
			Role:      input.Body.Role,
			Name:      input.Body.Name,
			KeyHash:   repo.HashAPIKey(rawKey),
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.InsertAPIKey(ctx, k); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{
			ID:        k.ID,
			ActorID:   k.ActorID,
			Role:      k.Role,
			Name:      k.Name,
			Key:       rawKey,
			CreatedAt: k.CreatedAt,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/apikeys/{id}",
		Summary:     "Revoke API key",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, e, "", "apikey.write"); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
