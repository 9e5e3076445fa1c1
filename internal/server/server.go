package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"execdesk/internal/domain"
	"execdesk/internal/engine"
	"execdesk/internal/engine/auth"
	"execdesk/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"invalid crisis status transition resolved -> investigating"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Execdesk API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Execdesk API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerTenants(group, cfg.Engine)
	registerDepartments(group, cfg.Engine)
	registerMetrics(group, cfg.Engine)
	registerSnapshots(group, cfg.Engine)
	registerAnalyses(group, cfg.Engine)
	registerDecisions(group, cfg.Engine)
	registerCrises(group, cfg.Engine)
	registerAlerts(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerRBAC(group, cfg.Engine)
	registerMe(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	var te *engine.TransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{
			"entity": te.Entity, "from": te.From, "to": te.To,
		})
	}
	switch {
	case errors.Is(err, engine.ErrSelfApproval):
		return newAPIError(http.StatusForbidden, "self_approval_forbidden", err.Error(), nil)
	case errors.Is(err, engine.ErrAlreadyAcknowledged):
		return newAPIError(http.StatusConflict, "already_acknowledged", err.Error(), nil)
	case errors.Is(err, engine.ErrAlreadyResolved):
		return newAPIError(http.StatusConflict, "already_resolved", err.Error(), nil)
	case errors.Is(err, engine.ErrInsufficientData):
		return newAPIError(http.StatusUnprocessableEntity, "insufficient_data", err.Error(), nil)
	case errors.Is(err, repo.ErrConflict):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") || strings.Contains(lowered, "must be") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// resolveTenant binds the request to one tenant. A principal scoped to a
// different tenant sees not_found, same as a missing resource.
func resolveTenant(ctx context.Context, pathTenantID string) (string, huma.StatusError) {
	principal, authErr := principalFromRequest(ctx)
	if authErr != nil {
		return "", authErr
	}
	tenantID := pathTenantID
	if tenantID == "" {
		tenantID = principal.TenantID
	}
	if tenantID == "" {
		return "", newAPIError(http.StatusBadRequest, "bad_request", "tenant is required", nil)
	}
	if principal.TenantID != "" && principal.TenantID != tenantID {
		return "", newAPIError(http.StatusNotFound, "not_found", "not found", nil)
	}
	return tenantID, nil
}

func hasPermission(perms []string, perm string) bool {
	for _, p := range perms {
		if p == perm || p == "*" {
			return true
		}
	}
	return false
}

func requirePermission(ctx context.Context, e engine.Engine, tenantID, perm string) error {
	principal, authErr := principalFromRequest(ctx)
	if authErr != nil {
		return authErr
	}
	if hasPermission(principal.Permissions, perm) {
		return nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	ok, err := e.Auth.ActorHasPermission(ctx, tx, tenantID, principal.ActorID, perm)
	if err != nil {
		return err
	}
	if !ok {
		return auth.ForbiddenError{Permission: perm}
	}
	return nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Execdesk API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerTenants(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-tenant",
		Method:        http.MethodPost,
		Path:          "/tenants",
		Summary:       "Create tenant",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateTenantRequest `json:"body"`
	}) (*struct {
		Body domain.Tenant `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.InitTenant(ctx, input.Body.ID, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Tenant `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tenants",
		Method:      http.MethodGet,
		Path:        "/tenants",
		Summary:     "List tenants",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Tenant `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListTenants(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Tenant `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-tenant",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}",
		Summary:     "Get tenant",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
	}) (*struct {
		Body domain.Tenant `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "tenant.read"); err != nil {
			return nil, handleError(err)
		}
		t, err := e.Repo.GetTenant(ctx, tenantID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Tenant `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "tenant-status",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/status",
		Summary:     "Tenant status summary",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "tenant.read"); err != nil {
			return nil, handleError(err)
		}
		t, err := e.Repo.GetTenant(ctx, tenantID)
		if err != nil {
			return nil, handleError(err)
		}
		crises, err := e.Repo.ListOpenCrises(ctx, tenantID)
		if err != nil {
			return nil, handleError(err)
		}
		alerts, err := e.Repo.ListAlerts(ctx, repo.AlertFilters{TenantID: tenantID, OpenOnly: true})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"tenant_id":   t.ID,
			"status":      t.Status,
			"open_crises": len(crises),
			"open_alerts": len(alerts),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-tenant-config",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/config",
		Summary:     "Get tenant config",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "tenant.config.read"); err != nil {
			return nil, handleError(err)
		}
		cfg, err := e.Repo.GetTenantConfig(ctx, tenantID)
		if err != nil {
			return nil, handleError(err)
		}
		var body map[string]any
		raw, _ := json.Marshal(cfg)
		_ = json.Unmarshal(raw, &body)
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: body}, nil
	})
}

func registerDepartments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "upsert-department",
		Method:      http.MethodPut,
		Path:        "/tenants/{tenant_id}/departments/{department_id}",
		Summary:     "Create or rename department",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID     string `path:"tenant_id"`
		DepartmentID string `path:"department_id"`
		Body         struct {
			Name string `json:"name,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.Department `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "department.manage"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.UpsertDepartment(ctx, tenantID, input.DepartmentID, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Department `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-departments",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/departments",
		Summary:     "List departments",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
	}) (*struct {
		Body []domain.Department `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "tenant.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListDepartments(ctx, tenantID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Department `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})
}

func registerMetrics(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-metric",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/metrics",
		Summary:       "Record metric observation",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		TenantID string                   `path:"tenant_id"`
		Body     RecordObservationRequest `json:"body"`
	}) (*struct {
		Body domain.MetricObservation `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "metric.record"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o := domain.MetricObservation{
			ID:           stringOrEmpty(input.Body.ID),
			TenantID:     tenantID,
			DepartmentID: input.Body.DepartmentID,
			Name:         input.Body.Name,
			Value:        input.Body.Value,
			Type:         input.Body.Type,
			PeriodStart:  input.Body.PeriodStart,
			PeriodEnd:    input.Body.PeriodEnd,
			Metadata:     input.Body.Metadata,
		}
		rec, err := e.RecordObservation(ctx, o, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.MetricObservation `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-metrics",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/metrics",
		Summary:     "List metric observations",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID     string `path:"tenant_id"`
		PeriodStart  string `query:"period_start" format:"date-time"`
		PeriodEnd    string `query:"period_end" format:"date-time"`
		DepartmentID string `query:"department_id"`
		Type         string `query:"type" enum:"revenue,users,performance,growth,"`
		Limit        int    `query:"limit" default:"100"`
	}) (*struct {
		Body []domain.MetricObservation `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "metric.read"); err != nil {
			return nil, handleError(err)
		}
		f := repo.ObservationFilters{
			TenantID: tenantID,
			Start:    input.PeriodStart,
			End:      input.PeriodEnd,
			Type:     input.Type,
			Limit:    normalizeLimit(input.Limit),
		}
		if input.DepartmentID != "" {
			f.DepartmentID = &input.DepartmentID
		}
		items, err := e.Repo.QueryObservations(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.MetricObservation `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})
}

func registerSnapshots(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard-snapshot",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/snapshot",
		Summary:     "Compute dashboard snapshot",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID     string `path:"tenant_id"`
		PeriodStart  string `query:"period_start" format:"date-time" required:"true"`
		PeriodEnd    string `query:"period_end" format:"date-time" required:"true"`
		DepartmentID string `query:"department_id"`
	}) (*struct {
		Body domain.DashboardSnapshot `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "snapshot.read"); err != nil {
			return nil, handleError(err)
		}
		start, end, perr := parsePeriod(input.PeriodStart, input.PeriodEnd)
		if perr != nil {
			return nil, perr
		}
		var dept *string
		if input.DepartmentID != "" {
			dept = &input.DepartmentID
		}
		snap, err := e.ComputeSnapshot(ctx, tenantID, start, end, dept)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.DashboardSnapshot `json:"body"`
		}{Body: snap}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "evaluate-alerts",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/alerts/evaluate",
		Summary:     "Evaluate threshold rules over a period",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string          `path:"tenant_id"`
		Body     EvaluateRequest `json:"body"`
	}) (*struct {
		Body EvaluationResponse `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "alert.evaluate"); err != nil {
			return nil, handleError(err)
		}
		start, end, perr := parsePeriod(input.Body.PeriodStart, input.Body.PeriodEnd)
		if perr != nil {
			return nil, perr
		}
		snap, created, err := e.RunEvaluation(ctx, tenantID, start, end)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EvaluationResponse `json:"body"`
		}{Body: EvaluationResponse{Snapshot: snap, Created: nonNilSlice(created)}}, nil
	})
}

func registerAnalyses(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-analysis",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/analyses",
		Summary:       "Create strategic analysis",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string                `path:"tenant_id"`
		Body     CreateAnalysisRequest `json:"body"`
	}) (*struct {
		Body domain.StrategicAnalysis `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "analysis.create"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateAnalysis(ctx, engine.AnalysisCreateOptions{
			ID:               stringOrEmpty(input.Body.ID),
			TenantID:         tenantID,
			DepartmentID:     stringOrEmpty(input.Body.DepartmentID),
			AnalysisType:     stringOrEmpty(input.Body.AnalysisType),
			Title:            input.Body.Title,
			Summary:          stringOrEmpty(input.Body.Summary),
			DetailedAnalysis: stringOrEmpty(input.Body.DetailedAnalysis),
			Recommendations:  input.Body.Recommendations,
			Priority:         stringOrEmpty(input.Body.Priority),
			AssignedTo:       stringOrEmpty(input.Body.AssignedTo),
			DueDate:          stringOrEmpty(input.Body.DueDate),
			ActorID:          actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.StrategicAnalysis `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-analyses",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/analyses",
		Summary:     "List strategic analyses",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		Status   string `query:"status" enum:"pending,in_progress,completed,archived,"`
		Limit    int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.StrategicAnalysis `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "analysis.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListAnalyses(ctx, tenantID, input.Status, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.StrategicAnalysis `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-analysis",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/analyses/{analysis_id}",
		Summary:     "Get strategic analysis",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID   string `path:"tenant_id"`
		AnalysisID string `path:"analysis_id"`
	}) (*struct {
		Body domain.StrategicAnalysis `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "analysis.read"); err != nil {
			return nil, handleError(err)
		}
		a, err := e.Repo.GetAnalysis(ctx, tenantID, input.AnalysisID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.StrategicAnalysis `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-analysis-status",
		Method:      http.MethodPatch,
		Path:        "/tenants/{tenant_id}/analyses/{analysis_id}/status",
		Summary:     "Transition analysis status",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		TenantID   string           `path:"tenant_id"`
		AnalysisID string           `path:"analysis_id"`
		Body       SetStatusRequest `json:"body"`
	}) (*struct {
		Body domain.StrategicAnalysis `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "analysis.update"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.SetAnalysisStatus(ctx, tenantID, input.AnalysisID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.StrategicAnalysis `json:"body"`
		}{Body: a}, nil
	})
}

func registerDecisions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-decision",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/decisions",
		Summary:       "Create decision",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string                `path:"tenant_id"`
		Body     CreateDecisionRequest `json:"body"`
	}) (*struct {
		Body domain.Decision `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "decision.create"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.CreateDecision(ctx, engine.DecisionCreateOptions{
			ID:           stringOrEmpty(input.Body.ID),
			TenantID:     tenantID,
			DepartmentID: stringOrEmpty(input.Body.DepartmentID),
			DecisionType: stringOrEmpty(input.Body.DecisionType),
			Title:        input.Body.Title,
			Description:  stringOrEmpty(input.Body.Description),
			Context:      stringOrEmpty(input.Body.Context),
			Options:      input.Body.Options,
			ChosenOption: stringOrEmpty(input.Body.ChosenOption),
			Rationale:    stringOrEmpty(input.Body.Rationale),
			Priority:     stringOrEmpty(input.Body.Priority),
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Decision `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-decisions",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/decisions",
		Summary:     "List decisions",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		Status   string `query:"status" enum:"pending,approved,implemented,cancelled,"`
		Limit    int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Decision `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "decision.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListDecisions(ctx, tenantID, input.Status, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Decision `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-decision",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/decisions/{decision_id}",
		Summary:     "Get decision",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID   string `path:"tenant_id"`
		DecisionID string `path:"decision_id"`
	}) (*struct {
		Body domain.Decision `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "decision.read"); err != nil {
			return nil, handleError(err)
		}
		d, err := e.Repo.GetDecision(ctx, tenantID, input.DecisionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Decision `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-decision",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/decisions/{decision_id}/approve",
		Summary:     "Approve decision",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		TenantID   string `path:"tenant_id"`
		DecisionID string `path:"decision_id"`
	}) (*struct {
		Body domain.Decision `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "decision.approve"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.ApproveDecision(ctx, tenantID, input.DecisionID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Decision `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-decision-status",
		Method:      http.MethodPatch,
		Path:        "/tenants/{tenant_id}/decisions/{decision_id}/status",
		Summary:     "Transition decision status",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		TenantID   string           `path:"tenant_id"`
		DecisionID string           `path:"decision_id"`
		Body       SetStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Decision `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "decision.update"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.SetDecisionStatus(ctx, tenantID, input.DecisionID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Decision `json:"body"`
		}{Body: d}, nil
	})
}

func registerCrises(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-crisis",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/crises",
		Summary:       "Register crisis",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string              `path:"tenant_id"`
		Body     CreateCrisisRequest `json:"body"`
	}) (*struct {
		Body domain.Crisis `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "crisis.create"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateCrisis(ctx, engine.CrisisCreateOptions{
			ID:           stringOrEmpty(input.Body.ID),
			TenantID:     tenantID,
			DepartmentID: stringOrEmpty(input.Body.DepartmentID),
			CrisisType:   stringOrEmpty(input.Body.CrisisType),
			Title:        input.Body.Title,
			Description:  stringOrEmpty(input.Body.Description),
			Severity:     stringOrEmpty(input.Body.Severity),
			AssignedTo:   stringOrEmpty(input.Body.AssignedTo),
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Crisis `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-crises",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/crises",
		Summary:     "List crises",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		Status   string `query:"status" enum:"detected,investigating,responding,resolved,"`
		Limit    int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Crisis `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "crisis.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListCrises(ctx, tenantID, input.Status, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Crisis `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-crisis",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/crises/{crisis_id}",
		Summary:     "Get crisis",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		CrisisID string `path:"crisis_id"`
	}) (*struct {
		Body domain.Crisis `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "crisis.read"); err != nil {
			return nil, handleError(err)
		}
		c, err := e.Repo.GetCrisis(ctx, tenantID, input.CrisisID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Crisis `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-crisis-status",
		Method:      http.MethodPatch,
		Path:        "/tenants/{tenant_id}/crises/{crisis_id}/status",
		Summary:     "Transition crisis status",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		TenantID string           `path:"tenant_id"`
		CrisisID string           `path:"crisis_id"`
		Body     SetStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Crisis `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "crisis.update"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.SetCrisisStatus(ctx, tenantID, input.CrisisID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Crisis `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-crisis",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/crises/{crisis_id}/resolve",
		Summary:     "Resolve crisis (emergency closure)",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		CrisisID string `path:"crisis_id"`
	}) (*struct {
		Body domain.Crisis `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "crisis.update"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.ResolveCrisis(ctx, tenantID, input.CrisisID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Crisis `json:"body"`
		}{Body: c}, nil
	})
}

func registerAlerts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-alerts",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/alerts",
		Summary:     "List alerts",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID     string `path:"tenant_id"`
		Open         bool   `query:"open"`
		Severity     string `query:"severity" enum:"low,medium,high,critical,"`
		DepartmentID string `query:"department_id"`
		Limit        int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Alert `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "alert.read"); err != nil {
			return nil, handleError(err)
		}
		f := repo.AlertFilters{
			TenantID: tenantID,
			OpenOnly: input.Open,
			Severity: input.Severity,
			Limit:    normalizeLimit(input.Limit),
		}
		if input.DepartmentID != "" {
			f.DepartmentID = &input.DepartmentID
		}
		items, err := e.Repo.ListAlerts(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Alert `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-alert",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/alerts/{alert_id}",
		Summary:     "Get alert",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		AlertID  string `path:"alert_id"`
	}) (*struct {
		Body domain.Alert `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "alert.read"); err != nil {
			return nil, handleError(err)
		}
		a, err := e.Repo.GetAlert(ctx, tenantID, input.AlertID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Alert `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "acknowledge-alert",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/alerts/{alert_id}/ack",
		Summary:     "Acknowledge alert",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		AlertID  string `path:"alert_id"`
	}) (*struct {
		Body domain.Alert `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "alert.ack"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.AcknowledgeAlert(ctx, tenantID, input.AlertID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Alert `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-alert",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/alerts/{alert_id}/resolve",
		Summary:     "Resolve alert",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		AlertID  string `path:"alert_id"`
	}) (*struct {
		Body domain.Alert `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "alert.resolve"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.ResolveAlert(ctx, tenantID, input.AlertID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Alert `json:"body"`
		}{Body: a}, nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "compose-report",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/reports",
		Summary:       "Compose executive report",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string               `path:"tenant_id"`
		Body     ComposeReportRequest `json:"body"`
	}) (*struct {
		Body domain.ExecutiveReport `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "report.compose"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		start, end, perr := parsePeriod(input.Body.PeriodStart, input.Body.PeriodEnd)
		if perr != nil {
			return nil, perr
		}
		rep, err := e.ComposeReport(ctx, engine.ReportCreateOptions{
			ID:               stringOrEmpty(input.Body.ID),
			TenantID:         tenantID,
			ReportType:       input.Body.ReportType,
			PeriodStart:      start,
			PeriodEnd:        end,
			ExecutiveSummary: stringOrEmpty(input.Body.ExecutiveSummary),
			Recommendations:  stringOrEmpty(input.Body.Recommendations),
			ActorID:          actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ExecutiveReport `json:"body"`
		}{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/reports",
		Summary:     "List reports",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		Status   string `query:"status" enum:"draft,review,approved,published,"`
		Limit    int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.ExecutiveReport `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "report.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListReports(ctx, tenantID, input.Status, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ExecutiveReport `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/reports/{report_id}",
		Summary:     "Get report",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		ReportID string `path:"report_id"`
	}) (*struct {
		Body domain.ExecutiveReport `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "report.read"); err != nil {
			return nil, handleError(err)
		}
		rep, err := e.Repo.GetReport(ctx, tenantID, input.ReportID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ExecutiveReport `json:"body"`
		}{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-report",
		Method:      http.MethodPatch,
		Path:        "/tenants/{tenant_id}/reports/{report_id}",
		Summary:     "Update report narrative",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		TenantID string              `path:"tenant_id"`
		ReportID string              `path:"report_id"`
		Body     UpdateReportRequest `json:"body"`
	}) (*struct {
		Body domain.ExecutiveReport `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "report.compose"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := e.UpdateReportNarrative(ctx, tenantID, input.ReportID, input.Body.ExecutiveSummary, input.Body.Recommendations, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ExecutiveReport `json:"body"`
		}{Body: rep}, nil
	})

	type reportAction struct {
		perm    string
		path    string
		op      string
		summary string
		call    func(context.Context, string, string, string) (domain.ExecutiveReport, error)
	}
	actions := []reportAction{
		{perm: "report.compose", path: "/tenants/{tenant_id}/reports/{report_id}/submit", op: "submit-report", summary: "Submit report for review", call: e.SubmitReportForReview},
		{perm: "report.approve", path: "/tenants/{tenant_id}/reports/{report_id}/approve", op: "approve-report", summary: "Approve report", call: e.ApproveReport},
		{perm: "report.publish", path: "/tenants/{tenant_id}/reports/{report_id}/publish", op: "publish-report", summary: "Publish report", call: e.PublishReport},
	}
	for _, action := range actions {
		action := action
		huma.Register(api, huma.Operation{
			OperationID: action.op,
			Method:      http.MethodPost,
			Path:        action.path,
			Summary:     action.summary,
			Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
		}, func(ctx context.Context, input *struct {
			TenantID string `path:"tenant_id"`
			ReportID string `path:"report_id"`
		}) (*struct {
			Body domain.ExecutiveReport `json:"body"`
		}, error) {
			tenantID, authErr := resolveTenant(ctx, input.TenantID)
			if authErr != nil {
				return nil, authErr
			}
			if err := requirePermission(ctx, e, tenantID, action.perm); err != nil {
				return nil, handleError(err)
			}
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			rep, err := action.call(ctx, tenantID, input.ReportID, actorID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body domain.ExecutiveReport `json:"body"`
			}{Body: rep}, nil
		})
	}
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID   string `path:"tenant_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"tenant,department,metric,analysis,decision,crisis,alert,report,rbac,apikey,"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "events.read"); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, tenantID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			// the next page resumes strictly below the last returned id
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerRBAC(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "whoami",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/me/permissions",
		Summary:     "Current actor permissions",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
	}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		who, err := e.WhoAmI(ctx, tenantID, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID:     who.ActorID,
			TenantID:    tenantID,
			Roles:       nonNilSlice(who.Roles),
			Permissions: nonNilSlice(who.Permissions),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "grant-role",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/rbac/roles/grant",
		Summary:     "Grant role",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string            `path:"tenant_id"`
		Body     RoleChangeRequest `json:"body"`
	}) (*struct{}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.GrantRole(ctx, tenantID, actorID, input.Body.ActorID, input.Body.RoleID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-role",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/rbac/roles/revoke",
		Summary:     "Revoke role",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string            `path:"tenant_id"`
		Body     RoleChangeRequest `json:"body"`
	}) (*struct{}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeRole(ctx, tenantID, actorID, input.Body.ActorID, input.Body.RoleID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		roles := principal.Roles
		perms := principal.Permissions
		if len(perms) == 0 && principal.TenantID != "" {
			if who, err := e.WhoAmI(ctx, principal.TenantID, principal.ActorID); err == nil {
				if len(roles) == 0 {
					roles = who.Roles
				}
				perms = who.Permissions
			}
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID:     principal.ActorID,
			TenantID:    principal.TenantID,
			Roles:       nonNilSlice(roles),
			Permissions: nonNilSlice(perms),
		}}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-apikey",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/apikeys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string              `path:"tenant_id"`
		Body     CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "apikey.manage"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		target := input.Body.ActorID
		if target == "" {
			target = actorID
		}
		key, raw, err := e.CreateAPIKey(ctx, tenantID, target, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{
			ID:        key.ID,
			TenantID:  key.TenantID,
			ActorID:   key.ActorID,
			Name:      key.Name,
			Key:       raw,
			CreatedAt: key.CreatedAt,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-apikeys",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/apikeys",
		Summary:     "List API keys",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		ActorID  string `query:"actor_id"`
	}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "apikey.manage"); err != nil {
			return nil, handleError(err)
		}
		keys, err := e.Repo.ListAPIKeys(ctx, tenantID, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]APIKeyResponse, 0, len(keys))
		for _, key := range keys {
			res = append(res, APIKeyResponse{
				ID:        key.ID,
				TenantID:  key.TenantID,
				ActorID:   key.ActorID,
				Name:      key.Name,
				CreatedAt: key.CreatedAt,
			})
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-apikey",
		Method:      http.MethodDelete,
		Path:        "/tenants/{tenant_id}/apikeys/{key_id}",
		Summary:     "Delete API key",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		KeyID    string `path:"key_id"`
	}) (*struct{}, error) {
		tenantID, authErr := resolveTenant(ctx, input.TenantID)
		if authErr != nil {
			return nil, authErr
		}
		if err := requirePermission(ctx, e, tenantID, "apikey.manage"); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.DeleteAPIKey(ctx, tenantID, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, strings.TrimSpace(input.Body.TenantID), input.Body.Roles, input.Body.Permissions)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func parsePeriod(startStr, endStr string) (time.Time, time.Time, huma.StatusError) {
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, newAPIError(http.StatusBadRequest, "bad_request", "invalid period_start", nil)
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, newAPIError(http.StatusBadRequest, "bad_request", "invalid period_end", nil)
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, newAPIError(http.StatusBadRequest, "bad_request", "period_start must be before period_end", nil)
	}
	return start, end, nil
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
