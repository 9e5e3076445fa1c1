package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"execdesk/internal/config"
	"execdesk/internal/domain"
	"execdesk/internal/events"
)

// lifecycleEvent is the in-process notification the lifecycle engine hands to
// the alert engine inside the same transaction.
type lifecycleEvent struct {
	EntityKind   string
	EntityID     string
	TenantID     string
	DepartmentID *string
	FromStatus   string
	ToStatus     string
	Severity     string
	Title        string
}

// tenantConfig resolves the rule tables for the tenant being evaluated. A
// long-lived engine serves every tenant, so the stored per-tenant config
// wins; the construction-time config only covers tenants without one.
func (e Engine) tenantConfig(ctx context.Context, tx *sql.Tx, tenantID string) *config.Config {
	var cfg *config.Config
	var err error
	if tx != nil {
		cfg, err = e.Repo.GetTenantConfigTx(ctx, tx, tenantID)
	} else {
		cfg, err = e.Repo.GetTenantConfig(ctx, tenantID)
	}
	if err != nil || cfg == nil {
		return e.Config
	}
	return cfg
}

// onLifecycleEvent applies the tenant's lifecycle alert rules to one
// transition. Runs in the caller's transaction so the entity update, the
// event row and any raised alert commit together. Returns how many alerts
// were actually created after dedup.
func (e Engine) onLifecycleEvent(ctx context.Context, tx *sql.Tx, evt lifecycleEvent) (int, error) {
	cfg := e.tenantConfig(ctx, tx, evt.TenantID)
	if cfg == nil {
		return 0, nil
	}
	created := 0
	for _, rule := range cfg.Alerts.Lifecycle {
		if rule.Entity != evt.EntityKind || rule.ToStatus != evt.ToStatus {
			continue
		}
		if rule.MinPriority != "" && priorityRank(evt.Severity) < priorityRank(rule.MinPriority) {
			continue
		}
		severity := rule.Severity
		if severity == "" {
			severity = evt.Severity
		}
		if priorityRank(severity) < 0 {
			severity = "medium"
		}
		a := domain.Alert{
			ID:           uuid.New().String(),
			TenantID:     evt.TenantID,
			DepartmentID: evt.DepartmentID,
			AlertType:    rule.AlertType,
			Severity:     severity,
			Title:        evt.Title,
			Description:  fmt.Sprintf("%s %s moved to %s", evt.EntityKind, evt.EntityID, evt.ToStatus),
			CreatedAt:    e.now().UTC().Format(time.RFC3339),
			Version:      1,
		}
		inserted, err := e.Repo.InsertAlertDedup(ctx, tx, a)
		if err != nil {
			return created, err
		}
		if !inserted {
			continue
		}
		created++
		if err := e.Events.Append(ctx, tx, "alert.created", a.TenantID, "alert", a.ID, "", events.EventPayload{
			"alert_type": a.AlertType, "severity": a.Severity, "source": evt.EntityKind + "." + evt.ToStatus,
		}); err != nil {
			return created, err
		}
	}
	return created, nil
}

// EvaluateThresholds applies the tenant's threshold rules to a computed
// snapshot and returns the alerts that were newly created. Re-running over
// the same state creates nothing thanks to open-alert dedup.
func (e Engine) EvaluateThresholds(ctx context.Context, tenantID string, snap domain.DashboardSnapshot) ([]domain.Alert, error) {
	cfg := e.tenantConfig(ctx, nil, tenantID)
	if cfg == nil || len(cfg.Alerts.Thresholds) == 0 {
		return nil, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var created []domain.Alert
	now := e.now().UTC().Format(time.RFC3339)
	raise := func(rule config.ThresholdRule, deptID *string, value float64) error {
		scope := "tenant"
		if deptID != nil {
			scope = "department " + *deptID
		}
		a := domain.Alert{
			ID:           uuid.New().String(),
			TenantID:     tenantID,
			DepartmentID: deptID,
			AlertType:    rule.AlertType,
			Severity:     rule.Severity,
			Title:        fmt.Sprintf("%s %s %s %g", rule.Metric, scope, rule.Comparator, rule.Threshold),
			Description:  fmt.Sprintf("%s is %g over %s to %s", rule.Metric, value, snap.PeriodStart, snap.PeriodEnd),
			CreatedAt:    now,
			Version:      1,
		}
		inserted, err := e.Repo.InsertAlertDedup(ctx, tx, a)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		created = append(created, a)
		return e.Events.Append(ctx, tx, "alert.created", tenantID, "alert", a.ID, "", events.EventPayload{
			"alert_type": a.AlertType, "severity": a.Severity, "metric": rule.Metric, "value": value,
		})
	}

	for _, rule := range cfg.Alerts.Thresholds {
		scope := rule.Scope
		if scope == "" {
			scope = "all"
		}
		if scope == "global" || scope == "all" {
			if v, ok := metricValue(snap.Global, rule.Metric); ok && compare(v, rule.Comparator, rule.Threshold) {
				if err := raise(rule, nil, v); err != nil {
					return created, err
				}
			}
		}
		if scope == "department" || scope == "all" {
			for _, dept := range snap.Departments {
				v, ok := metricValue(dept.Metrics, rule.Metric)
				if !ok || !compare(v, rule.Comparator, rule.Threshold) {
					continue
				}
				deptID := dept.DepartmentID
				if err := raise(rule, &deptID, v); err != nil {
					return created, err
				}
			}
		}
	}
	return created, tx.Commit()
}

// metricValue extracts one reduced metric; ok is false when the reducer had
// no samples, and absent data never fires a rule.
func metricValue(m domain.SnapshotMetrics, metric string) (float64, bool) {
	switch metric {
	case "revenue":
		return m.Revenue, true
	case "users":
		if m.Users == nil {
			return 0, false
		}
		return *m.Users, true
	case "performance":
		if m.Performance == nil {
			return 0, false
		}
		return *m.Performance, true
	case "growth":
		if m.Growth == nil {
			return 0, false
		}
		return *m.Growth, true
	}
	return 0, false
}

func compare(value float64, comparator string, threshold float64) bool {
	switch comparator {
	case "lt":
		return value < threshold
	case "lte":
		return value <= threshold
	case "gt":
		return value > threshold
	case "gte":
		return value >= threshold
	case "eq":
		return value == threshold
	}
	return false
}

// AcknowledgeAlert marks an alert as seen. The first acknowledger wins; the
// same actor may repeat the call as a no-op, anyone else gets
// ErrAlreadyAcknowledged. Resolved alerts cannot be acknowledged.
func (e Engine) AcknowledgeAlert(ctx context.Context, tenantID, id, actorID string) (domain.Alert, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Alert{}, err
	}
	defer tx.Rollback()
	a, err := e.Repo.GetAlertTx(ctx, tx, tenantID, id)
	if err != nil {
		return a, err
	}
	if a.IsResolved {
		return a, ErrAlreadyResolved
	}
	if a.IsAcknowledged {
		if a.AcknowledgedBy != nil && *a.AcknowledgedBy == actorID {
			return a, nil
		}
		return a, ErrAlreadyAcknowledged
	}
	now := e.now().UTC().Format(time.RFC3339)
	a.IsAcknowledged = true
	a.AcknowledgedBy = &actorID
	a.AcknowledgedAt = &now
	if err := e.Repo.UpdateAlert(ctx, tx, a); err != nil {
		return a, err
	}
	a.Version++
	if err := e.Events.Append(ctx, tx, "alert.acknowledged", tenantID, "alert", a.ID, actorID, nil); err != nil {
		return a, err
	}
	return a, tx.Commit()
}

// ResolveAlert closes an alert. Resolving an already resolved alert is a
// no-op; acknowledgement state is left as it was.
func (e Engine) ResolveAlert(ctx context.Context, tenantID, id, actorID string) (domain.Alert, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Alert{}, err
	}
	defer tx.Rollback()
	a, err := e.Repo.GetAlertTx(ctx, tx, tenantID, id)
	if err != nil {
		return a, err
	}
	if a.IsResolved {
		return a, nil
	}
	now := e.now().UTC().Format(time.RFC3339)
	a.IsResolved = true
	a.ResolvedBy = &actorID
	a.ResolvedAt = &now
	if err := e.Repo.UpdateAlert(ctx, tx, a); err != nil {
		return a, err
	}
	a.Version++
	if err := e.Events.Append(ctx, tx, "alert.resolved", tenantID, "alert", a.ID, actorID, nil); err != nil {
		return a, err
	}
	return a, tx.Commit()
}
