package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"execdesk/internal/config"
	"execdesk/internal/domain"
	"execdesk/internal/engine/auth"
	"execdesk/internal/events"
	"execdesk/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Auth   auth.Service
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Auth:   auth.Service{DB: db},
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

// InitTenant creates the tenant row, seeds its config and RBAC footprint.
func (e Engine) InitTenant(ctx context.Context, tenantID, name, actorID string) (domain.Tenant, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Tenant{}, err
	}
	defer tx.Rollback()

	if name == "" {
		name = tenantID
	}
	now := e.now().UTC().Format(time.RFC3339)
	t := domain.Tenant{
		ID:        tenantID,
		Name:      name,
		Status:    "active",
		CreatedAt: now,
	}
	if err := e.Repo.InsertTenant(ctx, t); err != nil {
		return domain.Tenant{}, fmt.Errorf("insert tenant: %w", err)
	}
	seedCfg := config.Default(tenantID)
	if err := e.Repo.UpsertTenantConfigTx(ctx, tx, tenantID, seedCfg); err != nil {
		return domain.Tenant{}, fmt.Errorf("insert tenant config: %w", err)
	}
	if actorID == "" {
		actorID = "local-user"
	}
	if err := e.Repo.EnsureActor(ctx, tx, actorID, now); err != nil {
		return domain.Tenant{}, fmt.Errorf("ensure actor: %w", err)
	}
	if err := e.seedRBAC(ctx, tx, tenantID, actorID, seedCfg); err != nil {
		return domain.Tenant{}, err
	}
	if err := e.Events.Append(ctx, tx, "tenant.init", t.ID, "tenant", t.ID, actorID, events.EventPayload{"status": t.Status}); err != nil {
		return domain.Tenant{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Tenant{}, err
	}
	return t, nil
}

func (e Engine) seedRBAC(ctx context.Context, tx *sql.Tx, tenantID, ownerID string, cfg *config.Config) error {
	roles := cfg.RBAC.Roles
	if len(roles) == 0 {
		roles = map[string]config.RBACRole{
			"owner": {Description: "Full access", Permissions: []string{"*"}},
		}
	}
	for roleID, role := range roles {
		if err := e.Repo.InsertRole(ctx, tx, roleID, role.Description); err != nil {
			return fmt.Errorf("insert role: %w", err)
		}
		for _, perm := range role.Permissions {
			if err := e.Repo.InsertPermission(ctx, tx, perm, ""); err != nil {
				return fmt.Errorf("insert permission: %w", err)
			}
			if err := e.Repo.AddRolePermission(ctx, tx, roleID, perm); err != nil {
				return fmt.Errorf("add role permission: %w", err)
			}
		}
	}
	return e.Repo.AssignRole(ctx, tx, tenantID, ownerID, "owner")
}

// UpsertDepartment registers or renames a department within a tenant.
func (e Engine) UpsertDepartment(ctx context.Context, tenantID, departmentID, name, actorID string) (domain.Department, error) {
	if departmentID == "" {
		return domain.Department{}, errors.New("department id is required")
	}
	if _, err := e.Repo.GetTenant(ctx, tenantID); err != nil {
		return domain.Department{}, err
	}
	if name == "" {
		name = departmentID
	}
	now := e.now().UTC().Format(time.RFC3339)
	d := domain.Department{
		ID:        departmentID,
		TenantID:  tenantID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertDepartment(ctx, tx, d); err != nil {
		return d, err
	}
	if err := e.Events.Append(ctx, tx, "department.upserted", tenantID, "department", d.ID, actorID, events.EventPayload{"name": d.Name}); err != nil {
		return d, err
	}
	return d, tx.Commit()
}

// RecordObservation appends an immutable metric observation.
func (e Engine) RecordObservation(ctx context.Context, o domain.MetricObservation, actorID string) (domain.MetricObservation, error) {
	if o.TenantID == "" {
		return o, errors.New("tenant is required")
	}
	if o.Name == "" {
		return o, errors.New("name is required")
	}
	switch o.Type {
	case "revenue", "users", "performance", "growth":
	default:
		return o, fmt.Errorf("invalid metric type %q", o.Type)
	}
	start, err := time.Parse(time.RFC3339, o.PeriodStart)
	if err != nil {
		return o, fmt.Errorf("period_start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, o.PeriodEnd)
	if err != nil {
		return o, fmt.Errorf("period_end: %w", err)
	}
	if !start.Before(end) {
		return o, errors.New("period_start must be before period_end")
	}
	// normalize so stored timestamps compare lexicographically
	o.PeriodStart = start.UTC().Format(time.RFC3339)
	o.PeriodEnd = end.UTC().Format(time.RFC3339)
	if _, err := e.Repo.GetTenant(ctx, o.TenantID); err != nil {
		return o, err
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	o.CreatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.InsertObservation(ctx, o); err != nil {
		return o, err
	}
	return o, nil
}

// --- strategic analyses ---

type AnalysisCreateOptions struct {
	ID               string
	TenantID         string
	DepartmentID     string
	AnalysisType     string
	Title            string
	Summary          string
	DetailedAnalysis string
	Recommendations  []string
	Priority         string
	AssignedTo       string
	DueDate          string
	ActorID          string
}

func (e Engine) CreateAnalysis(ctx context.Context, opts AnalysisCreateOptions) (domain.StrategicAnalysis, error) {
	if opts.Title == "" {
		return domain.StrategicAnalysis{}, errors.New("title is required")
	}
	if opts.TenantID == "" {
		return domain.StrategicAnalysis{}, errors.New("tenant is required")
	}
	if opts.Priority == "" {
		opts.Priority = "medium"
	}
	if err := validPriority(opts.Priority); err != nil {
		return domain.StrategicAnalysis{}, err
	}
	if _, err := e.Repo.GetTenant(ctx, opts.TenantID); err != nil {
		return domain.StrategicAnalysis{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	a := domain.StrategicAnalysis{
		ID:               id,
		TenantID:         opts.TenantID,
		DepartmentID:     optionalString(opts.DepartmentID),
		AnalysisType:     defaultString(opts.AnalysisType, "general"),
		Title:            opts.Title,
		Summary:          opts.Summary,
		DetailedAnalysis: opts.DetailedAnalysis,
		Recommendations:  opts.Recommendations,
		Priority:         opts.Priority,
		Status:           "pending",
		AssignedTo:       optionalString(opts.AssignedTo),
		DueDate:          optionalString(opts.DueDate),
		CreatedBy:        opts.ActorID,
		CreatedAt:        now,
		UpdatedAt:        now,
		Version:          1,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAnalysis(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.Events.Append(ctx, tx, "analysis.created", a.TenantID, "analysis", a.ID, opts.ActorID, events.EventPayload{"title": a.Title, "status": a.Status}); err != nil {
		return a, err
	}
	return a, tx.Commit()
}

func ensureAnalysisTransition(from, to string) error {
	// archived is reachable directly from any non-terminal state.
	if to == "archived" && from != "archived" {
		return nil
	}
	switch from {
	case "pending":
		if to == "in_progress" {
			return nil
		}
	case "in_progress":
		if to == "completed" {
			return nil
		}
	}
	return &TransitionError{Entity: "analysis", From: from, To: to}
}

func (e Engine) SetAnalysisStatus(ctx context.Context, tenantID, id, status, actorID string) (domain.StrategicAnalysis, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StrategicAnalysis{}, err
	}
	defer tx.Rollback()
	a, err := e.Repo.GetAnalysisTx(ctx, tx, tenantID, id)
	if err != nil {
		return a, err
	}
	if err := ensureAnalysisTransition(a.Status, status); err != nil {
		return a, err
	}
	from := a.Status
	a.Status = status
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateAnalysis(ctx, tx, a); err != nil {
		return a, err
	}
	a.Version++
	evt := lifecycleEvent{
		EntityKind:   "analysis",
		EntityID:     a.ID,
		TenantID:     a.TenantID,
		DepartmentID: a.DepartmentID,
		FromStatus:   from,
		ToStatus:     status,
		Severity:     a.Priority,
		Title:        a.Title,
	}
	if err := e.emitTransition(ctx, tx, evt, actorID); err != nil {
		return a, err
	}
	return a, tx.Commit()
}

// --- decisions ---

type DecisionCreateOptions struct {
	ID           string
	TenantID     string
	DepartmentID string
	DecisionType string
	Title        string
	Description  string
	Context      string
	Options      []domain.DecisionOption
	ChosenOption string
	Rationale    string
	Priority     string
	ActorID      string
}

func (e Engine) CreateDecision(ctx context.Context, opts DecisionCreateOptions) (domain.Decision, error) {
	if opts.Title == "" {
		return domain.Decision{}, errors.New("title is required")
	}
	if opts.TenantID == "" {
		return domain.Decision{}, errors.New("tenant is required")
	}
	if len(opts.Options) == 0 {
		return domain.Decision{}, errors.New("at least one option is required")
	}
	if opts.ChosenOption != "" && !optionListed(opts.Options, opts.ChosenOption) {
		return domain.Decision{}, fmt.Errorf("chosen option %q not among options", opts.ChosenOption)
	}
	if opts.Priority == "" {
		opts.Priority = "medium"
	}
	if err := validPriority(opts.Priority); err != nil {
		return domain.Decision{}, err
	}
	if _, err := e.Repo.GetTenant(ctx, opts.TenantID); err != nil {
		return domain.Decision{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	d := domain.Decision{
		ID:           id,
		TenantID:     opts.TenantID,
		DepartmentID: optionalString(opts.DepartmentID),
		DecisionType: defaultString(opts.DecisionType, "strategic"),
		Title:        opts.Title,
		Description:  opts.Description,
		Context:      opts.Context,
		Options:      opts.Options,
		ChosenOption: opts.ChosenOption,
		Rationale:    opts.Rationale,
		Status:       "pending",
		Priority:     opts.Priority,
		CreatedBy:    opts.ActorID,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertDecision(ctx, tx, d); err != nil {
		return d, err
	}
	if err := e.Events.Append(ctx, tx, "decision.created", d.TenantID, "decision", d.ID, opts.ActorID, events.EventPayload{"title": d.Title, "status": d.Status}); err != nil {
		return d, err
	}
	return d, tx.Commit()
}

func ensureDecisionTransition(from, to string) error {
	switch from {
	case "pending":
		if to == "approved" || to == "cancelled" {
			return nil
		}
	case "approved":
		if to == "implemented" || to == "cancelled" {
			return nil
		}
	}
	return &TransitionError{Entity: "decision", From: from, To: to}
}

// ApproveDecision moves a pending decision to approved. The approver must be
// a different actor than the creator.
func (e Engine) ApproveDecision(ctx context.Context, tenantID, id, actorID string) (domain.Decision, error) {
	return e.setDecisionStatus(ctx, tenantID, id, "approved", actorID)
}

func (e Engine) SetDecisionStatus(ctx context.Context, tenantID, id, status, actorID string) (domain.Decision, error) {
	return e.setDecisionStatus(ctx, tenantID, id, status, actorID)
}

func (e Engine) setDecisionStatus(ctx context.Context, tenantID, id, status, actorID string) (domain.Decision, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Decision{}, err
	}
	defer tx.Rollback()
	d, err := e.Repo.GetDecisionTx(ctx, tx, tenantID, id)
	if err != nil {
		return d, err
	}
	if err := ensureDecisionTransition(d.Status, status); err != nil {
		return d, err
	}
	from := d.Status
	switch status {
	case "approved":
		if actorID == "" || actorID == d.CreatedBy {
			return d, ErrSelfApproval
		}
		d.ApprovedBy = &actorID
	case "cancelled":
		// approved_by is only meaningful while approved/implemented
		d.ApprovedBy = nil
	}
	d.Status = status
	d.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateDecision(ctx, tx, d); err != nil {
		return d, err
	}
	d.Version++
	evt := lifecycleEvent{
		EntityKind:   "decision",
		EntityID:     d.ID,
		TenantID:     d.TenantID,
		DepartmentID: d.DepartmentID,
		FromStatus:   from,
		ToStatus:     status,
		Severity:     d.Priority,
		Title:        d.Title,
	}
	if err := e.emitTransition(ctx, tx, evt, actorID); err != nil {
		return d, err
	}
	return d, tx.Commit()
}

// --- crises ---

type CrisisCreateOptions struct {
	ID           string
	TenantID     string
	DepartmentID string
	CrisisType   string
	Title        string
	Description  string
	Severity     string
	AssignedTo   string
	ActorID      string
}

// CreateCrisis registers a crisis in the detected state; detection itself is
// an alerting lifecycle event.
func (e Engine) CreateCrisis(ctx context.Context, opts CrisisCreateOptions) (domain.Crisis, error) {
	if opts.Title == "" {
		return domain.Crisis{}, errors.New("title is required")
	}
	if opts.TenantID == "" {
		return domain.Crisis{}, errors.New("tenant is required")
	}
	if opts.Severity == "" {
		opts.Severity = "medium"
	}
	if err := validPriority(opts.Severity); err != nil {
		return domain.Crisis{}, err
	}
	if _, err := e.Repo.GetTenant(ctx, opts.TenantID); err != nil {
		return domain.Crisis{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	c := domain.Crisis{
		ID:           id,
		TenantID:     opts.TenantID,
		DepartmentID: optionalString(opts.DepartmentID),
		CrisisType:   defaultString(opts.CrisisType, "operational"),
		Title:        opts.Title,
		Description:  opts.Description,
		Severity:     opts.Severity,
		Status:       "detected",
		AssignedTo:   optionalString(opts.AssignedTo),
		CreatedBy:    opts.ActorID,
		DetectedAt:   now,
		UpdatedAt:    now,
		Version:      1,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertCrisis(ctx, tx, c); err != nil {
		return c, err
	}
	evt := lifecycleEvent{
		EntityKind:   "crisis",
		EntityID:     c.ID,
		TenantID:     c.TenantID,
		DepartmentID: c.DepartmentID,
		FromStatus:   "",
		ToStatus:     "detected",
		Severity:     c.Severity,
		Title:        c.Title,
	}
	if err := e.emitTransition(ctx, tx, evt, opts.ActorID); err != nil {
		return c, err
	}
	return c, tx.Commit()
}

func ensureCrisisTransition(from, to string) error {
	// emergency closure: any open state may resolve directly
	if to == "resolved" && from != "resolved" {
		return nil
	}
	switch from {
	case "detected":
		if to == "investigating" {
			return nil
		}
	case "investigating":
		if to == "responding" {
			return nil
		}
	}
	return &TransitionError{Entity: "crisis", From: from, To: to}
}

func (e Engine) SetCrisisStatus(ctx context.Context, tenantID, id, status, actorID string) (domain.Crisis, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Crisis{}, err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetCrisisTx(ctx, tx, tenantID, id)
	if err != nil {
		return c, err
	}
	// duplicate close signals are tolerated as a no-op
	if status == "resolved" && c.Status == "resolved" {
		return c, nil
	}
	if err := ensureCrisisTransition(c.Status, status); err != nil {
		return c, err
	}
	from := c.Status
	c.Status = status
	now := e.now().UTC().Format(time.RFC3339)
	c.UpdatedAt = now
	if status == "resolved" {
		c.ResolvedAt = &now
	}
	if err := e.Repo.UpdateCrisis(ctx, tx, c); err != nil {
		return c, err
	}
	c.Version++
	evt := lifecycleEvent{
		EntityKind:   "crisis",
		EntityID:     c.ID,
		TenantID:     c.TenantID,
		DepartmentID: c.DepartmentID,
		FromStatus:   from,
		ToStatus:     status,
		Severity:     c.Severity,
		Title:        c.Title,
	}
	if err := e.emitTransition(ctx, tx, evt, actorID); err != nil {
		return c, err
	}
	return c, tx.Commit()
}

// ResolveCrisis is the emergency-closure shortcut.
func (e Engine) ResolveCrisis(ctx context.Context, tenantID, id, actorID string) (domain.Crisis, error) {
	return e.SetCrisisStatus(ctx, tenantID, id, "resolved", actorID)
}

// emitTransition writes the lifecycle event row and lets the alert engine
// react to it within the same transaction.
func (e Engine) emitTransition(ctx context.Context, tx *sql.Tx, evt lifecycleEvent, actorID string) error {
	if err := e.Events.Transition(ctx, tx, evt.TenantID, evt.EntityKind, evt.EntityID, evt.FromStatus, evt.ToStatus, actorID, events.EventPayload{"title": evt.Title}); err != nil {
		return err
	}
	_, err := e.onLifecycleEvent(ctx, tx, evt)
	return err
}

// --- helpers ---

func optionListed(opts []domain.DecisionOption, label string) bool {
	for _, o := range opts {
		if o.Label == label {
			return true
		}
	}
	return false
}

func validPriority(p string) error {
	switch p {
	case "low", "medium", "high", "critical":
		return nil
	}
	return fmt.Errorf("invalid priority %q", p)
}

func priorityRank(p string) int {
	switch p {
	case "low":
		return 0
	case "medium":
		return 1
	case "high":
		return 2
	case "critical":
		return 3
	}
	return -1
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
