package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"execdesk/internal/config"
	"execdesk/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

// ErrNotFound covers both unknown ids and cross-tenant access attempts; the
// two are indistinguishable to callers.
var ErrNotFound = errors.New("not found")

// ErrConflict means an optimistic version check failed; callers may re-read
// current state and re-validate the intended change.
var ErrConflict = errors.New("concurrent modification")

func (r Repo) InsertTenant(ctx context.Context, t domain.Tenant) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO tenants(id,name,status,created_at) VALUES (?,?,?,?)`,
		t.ID, t.Name, t.Status, t.CreatedAt)
	return err
}

func (r Repo) GetTenant(ctx context.Context, id string) (domain.Tenant, error) {
	var t domain.Tenant
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,status,created_at FROM tenants WHERE id=?`, id).
		Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) SingleTenant(ctx context.Context) (domain.Tenant, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,status,created_at FROM tenants`)
	if err != nil {
		return domain.Tenant{}, err
	}
	defer rows.Close()
	var tenants []domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt); err != nil {
			return domain.Tenant{}, err
		}
		tenants = append(tenants, t)
	}
	if len(tenants) == 0 {
		return domain.Tenant{}, ErrNotFound
	}
	if len(tenants) > 1 {
		return domain.Tenant{}, fmt.Errorf("multiple tenants exist; specify --tenant")
	}
	return tenants[0], nil
}

func (r Repo) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,status,created_at FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

func (r Repo) UpsertTenantConfig(ctx context.Context, tenantID string, cfg *config.Config) error {
	return upsertTenantConfig(ctx, r.DB, nil, tenantID, cfg)
}

func (r Repo) UpsertTenantConfigTx(ctx context.Context, tx *sql.Tx, tenantID string, cfg *config.Config) error {
	return upsertTenantConfig(ctx, nil, tx, tenantID, cfg)
}

func upsertTenantConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, tenantID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Tenant.ID = tenantID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO tenant_configs(tenant_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(tenant_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, tenantID, string(payload), now, now)
	return err
}

func (r Repo) GetTenantConfig(ctx context.Context, tenantID string) (*config.Config, error) {
	return scanTenantConfig(r.DB.QueryRowContext(ctx, `SELECT config_json FROM tenant_configs WHERE tenant_id=?`, tenantID), tenantID)
}

func (r Repo) GetTenantConfigTx(ctx context.Context, tx *sql.Tx, tenantID string) (*config.Config, error) {
	return scanTenantConfig(tx.QueryRowContext(ctx, `SELECT config_json FROM tenant_configs WHERE tenant_id=?`, tenantID), tenantID)
}

func scanTenantConfig(row interface{ Scan(...any) error }, tenantID string) (*config.Config, error) {
	var payload string
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Tenant.ID == "" {
		cfg.Tenant.ID = tenantID
	}
	return &cfg, cfg.Validate()
}

func (r Repo) InsertObservation(ctx context.Context, o domain.MetricObservation) error {
	var meta any
	if len(o.Metadata) > 0 {
		b, err := json.Marshal(o.Metadata)
		if err != nil {
			return err
		}
		meta = string(b)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO metric_observations(id,tenant_id,department_id,name,value,type,period_start,period_end,metadata_json,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.TenantID, nullableStringPtr(o.DepartmentID), o.Name, o.Value, o.Type, o.PeriodStart, o.PeriodEnd, meta, o.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("observation already recorded for this name, period and department: %w", ErrConflict)
	}
	return err
}

// isUniqueViolation reports whether err is a SQLite unique-constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type ObservationFilters struct {
	TenantID     string
	Start        string
	End          string
	DepartmentID *string
	Type         string
	Limit        int
}

// QueryObservations returns observations overlapping [Start, End) for the
// tenant, oldest first. A nil DepartmentID matches all scopes.
func (r Repo) QueryObservations(ctx context.Context, f ObservationFilters) ([]domain.MetricObservation, error) {
	clauses := []string{"tenant_id=?"}
	args := []any{f.TenantID}
	if f.Start != "" && f.End != "" {
		clauses = append(clauses, "period_start < ?", "period_end > ?")
		args = append(args, f.End, f.Start)
	}
	if f.DepartmentID != nil {
		clauses = append(clauses, "department_id=?")
		args = append(args, *f.DepartmentID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT id,tenant_id,department_id,name,value,type,period_start,period_end,metadata_json,created_at FROM metric_observations ` + where + ` ORDER BY period_end ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.MetricObservation
	for rows.Next() {
		var o domain.MetricObservation
		var dept, meta sql.NullString
		if err := rows.Scan(&o.ID, &o.TenantID, &dept, &o.Name, &o.Value, &o.Type, &o.PeriodStart, &o.PeriodEnd, &meta, &o.CreatedAt); err != nil {
			return nil, err
		}
		if dept.Valid {
			o.DepartmentID = &dept.String
		}
		if meta.Valid {
			_ = json.Unmarshal([]byte(meta.String), &o.Metadata)
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, tenantID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, tenantID, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, tenantID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if tenantID != "" {
		clauses = append(clauses, "tenant_id=?")
		args = append(args, tenantID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,tenant_id,entity_kind,entity_id,from_status,to_status,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.scanEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, tenantID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if tenantID != "" {
		clauses = append(clauses, "tenant_id=?")
		args = append(args, tenantID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,tenant_id,entity_kind,entity_id,from_status,to_status,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	return r.scanEvents(ctx, query, args...)
}

func (r Repo) scanEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var tenantID, entityID, fromStatus, toStatus, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &tenantID, &e.EntityKind, &entityID, &fromStatus, &toStatus, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		e.TenantID = tenantID.String
		e.EntityID = entityID.String
		e.FromStatus = fromStatus.String
		e.ToStatus = toStatus.String
		e.Payload = payload.String
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID for a tenant.
func (r Repo) LatestEventID(ctx context.Context, tenantID string) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events WHERE tenant_id=?`, tenantID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
