package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"execdesk/internal/domain"
)

func (r Repo) InsertReport(ctx context.Context, tx *sql.Tx, rep domain.ExecutiveReport) error {
	sections, err := json.Marshal(rep.Sections)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO reports(id,tenant_id,report_type,period_start,period_end,executive_summary,sections_json,recommendations,status,created_by,approved_by,published_at,created_at,updated_at,version)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rep.ID, rep.TenantID, rep.ReportType, rep.PeriodStart, rep.PeriodEnd, nullable(rep.ExecutiveSummary), string(sections),
		nullable(rep.Recommendations), rep.Status, rep.CreatedBy, nullableStringPtr(rep.ApprovedBy), nullableStringPtr(rep.PublishedAt),
		rep.CreatedAt, rep.UpdatedAt, rep.Version)
	return err
}

// UpdateReport never touches sections_json: the data sections are written once
// at compose time and stay immutable from then on.
func (r Repo) UpdateReport(ctx context.Context, tx *sql.Tx, rep domain.ExecutiveReport) error {
	res, err := tx.ExecContext(ctx, `UPDATE reports SET executive_summary=?, recommendations=?, status=?, approved_by=?, published_at=?, updated_at=?, version=version+1
WHERE id=? AND tenant_id=? AND version=?`,
		nullable(rep.ExecutiveSummary), nullable(rep.Recommendations), rep.Status, nullableStringPtr(rep.ApprovedBy),
		nullableStringPtr(rep.PublishedAt), rep.UpdatedAt, rep.ID, rep.TenantID, rep.Version)
	if err != nil {
		return err
	}
	return r.checkVersioned(ctx, tx, res, "reports", rep.ID, rep.TenantID)
}

const reportCols = `id,tenant_id,report_type,period_start,period_end,executive_summary,sections_json,recommendations,status,created_by,approved_by,published_at,created_at,updated_at,version`

func scanReport(row interface{ Scan(...any) error }) (domain.ExecutiveReport, error) {
	var rep domain.ExecutiveReport
	var summary, recs, approved, published sql.NullString
	var sections string
	err := row.Scan(&rep.ID, &rep.TenantID, &rep.ReportType, &rep.PeriodStart, &rep.PeriodEnd, &summary, &sections,
		&recs, &rep.Status, &rep.CreatedBy, &approved, &published, &rep.CreatedAt, &rep.UpdatedAt, &rep.Version)
	if err == sql.ErrNoRows {
		return rep, ErrNotFound
	}
	if err != nil {
		return rep, err
	}
	rep.ExecutiveSummary = summary.String
	rep.Recommendations = recs.String
	rep.ApprovedBy = nullStringPtr(approved)
	rep.PublishedAt = nullStringPtr(published)
	if err := json.Unmarshal([]byte(sections), &rep.Sections); err != nil {
		return rep, err
	}
	return rep, nil
}

func (r Repo) GetReport(ctx context.Context, tenantID, id string) (domain.ExecutiveReport, error) {
	return scanReport(r.DB.QueryRowContext(ctx, `SELECT `+reportCols+` FROM reports WHERE id=? AND tenant_id=?`, id, tenantID))
}

func (r Repo) GetReportTx(ctx context.Context, tx *sql.Tx, tenantID, id string) (domain.ExecutiveReport, error) {
	return scanReport(tx.QueryRowContext(ctx, `SELECT `+reportCols+` FROM reports WHERE id=? AND tenant_id=?`, id, tenantID))
}

func (r Repo) ListReports(ctx context.Context, tenantID, status string, limit int) ([]domain.ExecutiveReport, error) {
	query := `SELECT ` + reportCols + ` FROM reports WHERE tenant_id=?`
	args := []any{tenantID}
	if status != "" {
		query += ` AND status=?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ExecutiveReport
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rep)
	}
	return res, rows.Err()
}
