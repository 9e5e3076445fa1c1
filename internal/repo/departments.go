package repo

import (
	"context"
	"database/sql"

	"execdesk/internal/domain"
)

func (r Repo) UpsertDepartment(ctx context.Context, tx *sql.Tx, d domain.Department) error {
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return r.DB.ExecContext(ctx, query, args...)
	}
	_, err := exec(`INSERT INTO departments(id,tenant_id,name,created_at,updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(tenant_id,id) DO UPDATE SET name=excluded.name, updated_at=excluded.updated_at`,
		d.ID, d.TenantID, d.Name, d.CreatedAt, d.UpdatedAt)
	return err
}

func (r Repo) GetDepartment(ctx context.Context, tenantID, id string) (domain.Department, error) {
	var d domain.Department
	err := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,name,created_at,updated_at FROM departments WHERE tenant_id=? AND id=?`, tenantID, id).
		Scan(&d.ID, &d.TenantID, &d.Name, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

func (r Repo) ListDepartments(ctx context.Context, tenantID string) ([]domain.Department, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,tenant_id,name,created_at,updated_at FROM departments WHERE tenant_id=? ORDER BY id ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Department
	for rows.Next() {
		var d domain.Department
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Name, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}
