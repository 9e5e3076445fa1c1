package server

import (
	"encoding/json"

	"execdesk/internal/domain"
)

// Request payloads

type CreateTenantRequest struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type UpsertDepartmentRequest struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type RecordObservationRequest struct {
	ID           *string        `json:"id,omitempty"`
	DepartmentID *string        `json:"department_id,omitempty"`
	Name         string         `json:"name"`
	Value        float64        `json:"value"`
	Type         string         `json:"type" enum:"revenue,users,performance,growth"`
	PeriodStart  string         `json:"period_start" format:"date-time"`
	PeriodEnd    string         `json:"period_end" format:"date-time"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type CreateAnalysisRequest struct {
	ID               *string  `json:"id,omitempty"`
	DepartmentID     *string  `json:"department_id,omitempty"`
	AnalysisType     *string  `json:"analysis_type,omitempty"`
	Title            string   `json:"title"`
	Summary          *string  `json:"summary,omitempty"`
	DetailedAnalysis *string  `json:"detailed_analysis,omitempty"`
	Recommendations  []string `json:"recommendations,omitempty"`
	Priority         *string  `json:"priority,omitempty" enum:"low,medium,high,critical"`
	AssignedTo       *string  `json:"assigned_to,omitempty"`
	DueDate          *string  `json:"due_date,omitempty" format:"date-time"`
}

type SetStatusRequest struct {
	Status string `json:"status"`
}

type CreateDecisionRequest struct {
	ID           *string                 `json:"id,omitempty"`
	DepartmentID *string                 `json:"department_id,omitempty"`
	DecisionType *string                 `json:"decision_type,omitempty"`
	Title        string                  `json:"title"`
	Description  *string                 `json:"description,omitempty"`
	Context      *string                 `json:"context,omitempty"`
	Options      []domain.DecisionOption `json:"options"`
	ChosenOption *string                 `json:"chosen_option,omitempty"`
	Rationale    *string                 `json:"rationale,omitempty"`
	Priority     *string                 `json:"priority,omitempty" enum:"low,medium,high,critical"`
}

type CreateCrisisRequest struct {
	ID           *string `json:"id,omitempty"`
	DepartmentID *string `json:"department_id,omitempty"`
	CrisisType   *string `json:"crisis_type,omitempty"`
	Title        string  `json:"title"`
	Description  *string `json:"description,omitempty"`
	Severity     *string `json:"severity,omitempty" enum:"low,medium,high,critical"`
	AssignedTo   *string `json:"assigned_to,omitempty"`
}

type ComposeReportRequest struct {
	ID               *string `json:"id,omitempty"`
	ReportType       string  `json:"report_type,omitempty" enum:"monthly,quarterly,yearly,ad_hoc"`
	PeriodStart      string  `json:"period_start" format:"date-time"`
	PeriodEnd        string  `json:"period_end" format:"date-time"`
	ExecutiveSummary *string `json:"executive_summary,omitempty"`
	Recommendations  *string `json:"recommendations,omitempty"`
}

type UpdateReportRequest struct {
	ExecutiveSummary *string `json:"executive_summary,omitempty"`
	Recommendations  *string `json:"recommendations,omitempty"`
}

type EvaluateRequest struct {
	PeriodStart string `json:"period_start" format:"date-time"`
	PeriodEnd   string `json:"period_end" format:"date-time"`
}

type RoleChangeRequest struct {
	ActorID string `json:"actor_id"`
	RoleID  string `json:"role_id"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id,omitempty"`
	Name    string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID     string   `json:"actor_id"`
	TenantID    string   `json:"tenant_id"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	ActorID     string   `json:"actor_id"`
	TenantID    string   `json:"tenant_id,omitempty"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	TenantID   string         `json:"tenant_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	FromStatus string         `json:"from_status,omitempty"`
	ToStatus   string         `json:"to_status,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type EvaluationResponse struct {
	Snapshot domain.DashboardSnapshot `json:"snapshot"`
	Created  []domain.Alert           `json:"created"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		TenantID:   e.TenantID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		FromStatus: e.FromStatus,
		ToStatus:   e.ToStatus,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
