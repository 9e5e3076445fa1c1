package repo

import (
	"context"
	"database/sql"

	"execdesk/internal/domain"
)

// InsertAlertDedup inserts an alert unless an open alert with the same
// (alert_type, department_id, tenant_id) key already exists; the partial
// unique index makes the check-then-create atomic. Returns false when the
// insert was a dedup no-op.
func (r Repo) InsertAlertDedup(ctx context.Context, tx *sql.Tx, a domain.Alert) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO alerts(id,tenant_id,department_id,alert_type,severity,title,description,is_acknowledged,acknowledged_by,acknowledged_at,is_resolved,resolved_by,resolved_at,created_at,version)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.TenantID, nullableStringPtr(a.DepartmentID), a.AlertType, a.Severity, a.Title, nullable(a.Description),
		boolInt(a.IsAcknowledged), nullableStringPtr(a.AcknowledgedBy), nullableStringPtr(a.AcknowledgedAt),
		boolInt(a.IsResolved), nullableStringPtr(a.ResolvedBy), nullableStringPtr(a.ResolvedAt), a.CreatedAt, a.Version)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) UpdateAlert(ctx context.Context, tx *sql.Tx, a domain.Alert) error {
	res, err := tx.ExecContext(ctx, `UPDATE alerts SET is_acknowledged=?, acknowledged_by=?, acknowledged_at=?, is_resolved=?, resolved_by=?, resolved_at=?, version=version+1
WHERE id=? AND tenant_id=? AND version=?`,
		boolInt(a.IsAcknowledged), nullableStringPtr(a.AcknowledgedBy), nullableStringPtr(a.AcknowledgedAt),
		boolInt(a.IsResolved), nullableStringPtr(a.ResolvedBy), nullableStringPtr(a.ResolvedAt),
		a.ID, a.TenantID, a.Version)
	if err != nil {
		return err
	}
	return r.checkVersioned(ctx, tx, res, "alerts", a.ID, a.TenantID)
}

const alertCols = `id,tenant_id,department_id,alert_type,severity,title,description,is_acknowledged,acknowledged_by,acknowledged_at,is_resolved,resolved_by,resolved_at,created_at,version`

func scanAlert(row interface{ Scan(...any) error }) (domain.Alert, error) {
	var a domain.Alert
	var dept, desc, ackBy, ackAt, resBy, resAt sql.NullString
	var acked, resolved int
	err := row.Scan(&a.ID, &a.TenantID, &dept, &a.AlertType, &a.Severity, &a.Title, &desc,
		&acked, &ackBy, &ackAt, &resolved, &resBy, &resAt, &a.CreatedAt, &a.Version)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.DepartmentID = nullStringPtr(dept)
	a.Description = desc.String
	a.IsAcknowledged = acked != 0
	a.AcknowledgedBy = nullStringPtr(ackBy)
	a.AcknowledgedAt = nullStringPtr(ackAt)
	a.IsResolved = resolved != 0
	a.ResolvedBy = nullStringPtr(resBy)
	a.ResolvedAt = nullStringPtr(resAt)
	return a, nil
}

func (r Repo) GetAlert(ctx context.Context, tenantID, id string) (domain.Alert, error) {
	return scanAlert(r.DB.QueryRowContext(ctx, `SELECT `+alertCols+` FROM alerts WHERE id=? AND tenant_id=?`, id, tenantID))
}

func (r Repo) GetAlertTx(ctx context.Context, tx *sql.Tx, tenantID, id string) (domain.Alert, error) {
	return scanAlert(tx.QueryRowContext(ctx, `SELECT `+alertCols+` FROM alerts WHERE id=? AND tenant_id=?`, id, tenantID))
}

type AlertFilters struct {
	TenantID     string
	OpenOnly     bool
	Severity     string
	DepartmentID *string
	Limit        int
}

func (r Repo) ListAlerts(ctx context.Context, f AlertFilters) ([]domain.Alert, error) {
	query := `SELECT ` + alertCols + ` FROM alerts WHERE tenant_id=?`
	args := []any{f.TenantID}
	if f.OpenOnly {
		query += ` AND is_resolved=0`
	}
	if f.Severity != "" {
		query += ` AND severity=?`
		args = append(args, f.Severity)
	}
	if f.DepartmentID != nil {
		query += ` AND department_id=?`
		args = append(args, *f.DepartmentID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
