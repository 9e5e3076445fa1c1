package domain

type Tenant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Department struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// MetricObservation is immutable once written; identified by
// (name, period_start, period_end, department_id, tenant_id).
type MetricObservation struct {
	ID           string         `json:"id"`
	TenantID     string         `json:"tenant_id"`
	DepartmentID *string        `json:"department_id,omitempty"`
	Name         string         `json:"name"`
	Value        float64        `json:"value"`
	Type         string         `json:"type" enum:"revenue,users,performance,growth"`
	PeriodStart  string         `json:"period_start" format:"date-time"`
	PeriodEnd    string         `json:"period_end" format:"date-time"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    string         `json:"created_at" format:"date-time"`
}

type StrategicAnalysis struct {
	ID               string   `json:"id"`
	TenantID         string   `json:"tenant_id"`
	DepartmentID     *string  `json:"department_id,omitempty"`
	AnalysisType     string   `json:"analysis_type"`
	Title            string   `json:"title"`
	Summary          string   `json:"summary,omitempty"`
	DetailedAnalysis string   `json:"detailed_analysis,omitempty"`
	Recommendations  []string `json:"recommendations,omitempty"`
	Priority         string   `json:"priority" enum:"low,medium,high,critical"`
	Status           string   `json:"status" enum:"pending,in_progress,completed,archived"`
	AssignedTo       *string  `json:"assigned_to,omitempty"`
	DueDate          *string  `json:"due_date,omitempty" format:"date-time"`
	CreatedBy        string   `json:"created_by"`
	CreatedAt        string   `json:"created_at" format:"date-time"`
	UpdatedAt        string   `json:"updated_at" format:"date-time"`
	Version          int      `json:"version"`
}

// DecisionOption is one candidate in a Decision's option set.
type DecisionOption struct {
	Label     string `json:"label"`
	Tradeoffs string `json:"tradeoffs,omitempty"`
}

type Decision struct {
	ID                 string           `json:"id"`
	TenantID           string           `json:"tenant_id"`
	DepartmentID       *string          `json:"department_id,omitempty"`
	DecisionType       string           `json:"decision_type"`
	Title              string           `json:"title"`
	Description        string           `json:"description,omitempty"`
	Context            string           `json:"context,omitempty"`
	Options            []DecisionOption `json:"options"`
	ChosenOption       string           `json:"chosen_option"`
	Rationale          string           `json:"rationale,omitempty"`
	ImpactAssessment   *string          `json:"impact_assessment,omitempty"`
	ImplementationPlan *string          `json:"implementation_plan,omitempty"`
	Status             string           `json:"status" enum:"pending,approved,implemented,cancelled"`
	Priority           string           `json:"priority" enum:"low,medium,high,critical"`
	CreatedBy          string           `json:"created_by"`
	ApprovedBy         *string          `json:"approved_by,omitempty"`
	CreatedAt          string           `json:"created_at" format:"date-time"`
	UpdatedAt          string           `json:"updated_at" format:"date-time"`
	Version            int              `json:"version"`
}

type Crisis struct {
	ID                string  `json:"id"`
	TenantID          string  `json:"tenant_id"`
	DepartmentID      *string `json:"department_id,omitempty"`
	CrisisType        string  `json:"crisis_type"`
	Title             string  `json:"title"`
	Description       string  `json:"description,omitempty"`
	Severity          string  `json:"severity" enum:"low,medium,high,critical"`
	Status            string  `json:"status" enum:"detected,investigating,responding,resolved"`
	ImpactAssessment  *string `json:"impact_assessment,omitempty"`
	ResponsePlan      *string `json:"response_plan,omitempty"`
	CommunicationPlan *string `json:"communication_plan,omitempty"`
	AssignedTo        *string `json:"assigned_to,omitempty"`
	CreatedBy         string  `json:"created_by"`
	DetectedAt        string  `json:"detected_at" format:"date-time"`
	ResolvedAt        *string `json:"resolved_at,omitempty" format:"date-time"`
	UpdatedAt         string  `json:"updated_at" format:"date-time"`
	Version           int     `json:"version"`
}

type Alert struct {
	ID             string  `json:"id"`
	TenantID       string  `json:"tenant_id"`
	DepartmentID   *string `json:"department_id,omitempty"`
	AlertType      string  `json:"alert_type"`
	Severity       string  `json:"severity" enum:"low,medium,high,critical"`
	Title          string  `json:"title"`
	Description    string  `json:"description,omitempty"`
	IsAcknowledged bool    `json:"is_acknowledged"`
	AcknowledgedBy *string `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *string `json:"acknowledged_at,omitempty" format:"date-time"`
	IsResolved     bool    `json:"is_resolved"`
	ResolvedBy     *string `json:"resolved_by,omitempty"`
	ResolvedAt     *string `json:"resolved_at,omitempty" format:"date-time"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	Version        int     `json:"version"`
}

// SnapshotMetrics holds the reduced values for one scope. Nil means the
// reducer had no samples for the period (propagated, never defaulted).
type SnapshotMetrics struct {
	Revenue     float64  `json:"revenue"`
	Users       *float64 `json:"users,omitempty"`
	Performance *float64 `json:"performance,omitempty"`
	Growth      *float64 `json:"growth,omitempty"`
}

type DepartmentSnapshot struct {
	DepartmentID string          `json:"department_id"`
	Metrics      SnapshotMetrics `json:"metrics"`
}

// DashboardSnapshot is a computed point-in-time aggregation; the aggregation
// engine never persists it.
type DashboardSnapshot struct {
	TenantID    string               `json:"tenant_id"`
	PeriodStart string               `json:"period_start" format:"date-time"`
	PeriodEnd   string               `json:"period_end" format:"date-time"`
	Global      SnapshotMetrics      `json:"global"`
	Departments []DepartmentSnapshot `json:"departments,omitempty"`
}

// ReportSections are the data sections frozen at publish time.
type ReportSections struct {
	KeyMetrics            DashboardSnapshot    `json:"key_metrics"`
	DepartmentPerformance []DepartmentSnapshot `json:"department_performance,omitempty"`
	StrategicInitiatives  []StrategicAnalysis  `json:"strategic_initiatives,omitempty"`
	KeyDecisions          []Decision           `json:"key_decisions,omitempty"`
	RisksAndOpportunities ReportRisks          `json:"risks_and_opportunities"`
}

// ReportRisks carries the crises whose activity overlapped the report period,
// including ones resolved during it, plus the alerts still open at compose.
type ReportRisks struct {
	Crises     []Crisis `json:"crises,omitempty"`
	OpenAlerts []Alert  `json:"open_alerts,omitempty"`
}

type ExecutiveReport struct {
	ID               string         `json:"id"`
	TenantID         string         `json:"tenant_id"`
	ReportType       string         `json:"report_type" enum:"monthly,quarterly,yearly,ad_hoc"`
	PeriodStart      string         `json:"period_start" format:"date-time"`
	PeriodEnd        string         `json:"period_end" format:"date-time"`
	ExecutiveSummary string         `json:"executive_summary,omitempty"`
	Sections         ReportSections `json:"sections"`
	Recommendations  string         `json:"recommendations,omitempty"`
	Status           string         `json:"status" enum:"draft,review,approved,published"`
	CreatedBy        string         `json:"created_by"`
	ApprovedBy       *string        `json:"approved_by,omitempty"`
	PublishedAt      *string        `json:"published_at,omitempty" format:"date-time"`
	CreatedAt        string         `json:"created_at" format:"date-time"`
	UpdatedAt        string         `json:"updated_at" format:"date-time"`
	Version          int            `json:"version"`
}

// Event is a row in the append-only log. Lifecycle transitions carry
// from/to status; other event types leave them empty.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	TenantID   string `json:"tenant_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	FromStatus string `json:"from_status,omitempty"`
	ToStatus   string `json:"to_status,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
