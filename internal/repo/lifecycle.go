package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"execdesk/internal/domain"
)

// Versioned updates: every UPDATE checks the expected version and bumps it.
// Zero affected rows means either the row vanished (ErrNotFound) or another
// writer got there first (ErrConflict).

func (r Repo) checkVersioned(ctx context.Context, tx *sql.Tx, res sql.Result, table, id, tenantID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var cur int
	err = tx.QueryRowContext(ctx, `SELECT version FROM `+table+` WHERE id=? AND tenant_id=?`, id, tenantID).Scan(&cur)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrConflict
}

// --- strategic analyses ---

func (r Repo) InsertAnalysis(ctx context.Context, tx *sql.Tx, a domain.StrategicAnalysis) error {
	recs, err := marshalStrings(a.Recommendations)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO analyses(id,tenant_id,department_id,analysis_type,title,summary,detailed_analysis,recommendations_json,priority,status,assigned_to,due_date,created_by,created_at,updated_at,version)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.TenantID, nullableStringPtr(a.DepartmentID), a.AnalysisType, a.Title, nullable(a.Summary), nullable(a.DetailedAnalysis),
		recs, a.Priority, a.Status, nullableStringPtr(a.AssignedTo), nullableStringPtr(a.DueDate), a.CreatedBy, a.CreatedAt, a.UpdatedAt, a.Version)
	return err
}

func (r Repo) UpdateAnalysis(ctx context.Context, tx *sql.Tx, a domain.StrategicAnalysis) error {
	recs, err := marshalStrings(a.Recommendations)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE analyses SET summary=?, detailed_analysis=?, recommendations_json=?, priority=?, status=?, assigned_to=?, due_date=?, updated_at=?, version=version+1
WHERE id=? AND tenant_id=? AND version=?`,
		nullable(a.Summary), nullable(a.DetailedAnalysis), recs, a.Priority, a.Status, nullableStringPtr(a.AssignedTo), nullableStringPtr(a.DueDate),
		a.UpdatedAt, a.ID, a.TenantID, a.Version)
	if err != nil {
		return err
	}
	return r.checkVersioned(ctx, tx, res, "analyses", a.ID, a.TenantID)
}

const analysisCols = `id,tenant_id,department_id,analysis_type,title,summary,detailed_analysis,recommendations_json,priority,status,assigned_to,due_date,created_by,created_at,updated_at,version`

func scanAnalysis(row interface{ Scan(...any) error }) (domain.StrategicAnalysis, error) {
	var a domain.StrategicAnalysis
	var dept, summary, detail, recs, assigned, due sql.NullString
	err := row.Scan(&a.ID, &a.TenantID, &dept, &a.AnalysisType, &a.Title, &summary, &detail, &recs,
		&a.Priority, &a.Status, &assigned, &due, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt, &a.Version)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.DepartmentID = nullStringPtr(dept)
	a.Summary = summary.String
	a.DetailedAnalysis = detail.String
	a.AssignedTo = nullStringPtr(assigned)
	a.DueDate = nullStringPtr(due)
	if recs.Valid {
		_ = json.Unmarshal([]byte(recs.String), &a.Recommendations)
	}
	return a, nil
}

func (r Repo) GetAnalysis(ctx context.Context, tenantID, id string) (domain.StrategicAnalysis, error) {
	return scanAnalysis(r.DB.QueryRowContext(ctx, `SELECT `+analysisCols+` FROM analyses WHERE id=? AND tenant_id=?`, id, tenantID))
}

func (r Repo) GetAnalysisTx(ctx context.Context, tx *sql.Tx, tenantID, id string) (domain.StrategicAnalysis, error) {
	return scanAnalysis(tx.QueryRowContext(ctx, `SELECT `+analysisCols+` FROM analyses WHERE id=? AND tenant_id=?`, id, tenantID))
}

func (r Repo) ListAnalyses(ctx context.Context, tenantID, status string, limit int) ([]domain.StrategicAnalysis, error) {
	query := `SELECT ` + analysisCols + ` FROM analyses WHERE tenant_id=?`
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
	var res []domain.StrategicAnalysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// ListAnalysesOverlapping returns analyses whose activity window overlaps
// [start, end): created before the period ends and not archived before it starts.
func (r Repo) ListAnalysesOverlapping(ctx context.Context, tenantID, start, end string) ([]domain.StrategicAnalysis, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+analysisCols+` FROM analyses
WHERE tenant_id=? AND created_at < ? AND (status != 'archived' OR updated_at >= ?)
ORDER BY created_at DESC, id DESC`, tenantID, end, start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StrategicAnalysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// --- decisions ---

func (r Repo) InsertDecision(ctx context.Context, tx *sql.Tx, d domain.Decision) error {
	opts, err := json.Marshal(d.Options)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO decisions(id,tenant_id,department_id,decision_type,title,description,context,options_json,chosen_option,rationale,impact_assessment,implementation_plan,status,priority,created_by,approved_by,created_at,updated_at,version)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.TenantID, nullableStringPtr(d.DepartmentID), d.DecisionType, d.Title, nullable(d.Description), nullable(d.Context),
		string(opts), d.ChosenOption, nullable(d.Rationale), nullableStringPtr(d.ImpactAssessment), nullableStringPtr(d.ImplementationPlan),
		d.Status, d.Priority, d.CreatedBy, nullableStringPtr(d.ApprovedBy), d.CreatedAt, d.UpdatedAt, d.Version)
	return err
}

func (r Repo) UpdateDecision(ctx context.Context, tx *sql.Tx, d domain.Decision) error {
	res, err := tx.ExecContext(ctx, `UPDATE decisions SET rationale=?, impact_assessment=?, implementation_plan=?, status=?, approved_by=?, updated_at=?, version=version+1
WHERE id=? AND tenant_id=? AND version=?`,
		nullable(d.Rationale), nullableStringPtr(d.ImpactAssessment), nullableStringPtr(d.ImplementationPlan),
		d.Status, nullableStringPtr(d.ApprovedBy), d.UpdatedAt, d.ID, d.TenantID, d.Version)
	if err != nil {
		return err
	}
	return r.checkVersioned(ctx, tx, res, "decisions", d.ID, d.TenantID)
}

const decisionCols = `id,tenant_id,department_id,decision_type,title,description,context,options_json,chosen_option,rationale,impact_assessment,implementation_plan,status,priority,created_by,approved_by,created_at,updated_at,version`

func scanDecision(row interface{ Scan(...any) error }) (domain.Decision, error) {
	var d domain.Decision
	var dept, desc, dctx, rationale, impact, plan, approved sql.NullString
	var opts string
	err := row.Scan(&d.ID, &d.TenantID, &dept, &d.DecisionType, &d.Title, &desc, &dctx, &opts, &d.ChosenOption,
		&rationale, &impact, &plan, &d.Status, &d.Priority, &d.CreatedBy, &approved, &d.CreatedAt, &d.UpdatedAt, &d.Version)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.DepartmentID = nullStringPtr(dept)
	d.Description = desc.String
	d.Context = dctx.String
	d.Rationale = rationale.String
	d.ImpactAssessment = nullStringPtr(impact)
	d.ImplementationPlan = nullStringPtr(plan)
	d.ApprovedBy = nullStringPtr(approved)
	if err := json.Unmarshal([]byte(opts), &d.Options); err != nil {
		return d, err
	}
	return d, nil
}

func (r Repo) GetDecision(ctx context.Context, tenantID, id string) (domain.Decision, error) {
	return scanDecision(r.DB.QueryRowContext(ctx, `SELECT `+decisionCols+` FROM decisions WHERE id=? AND tenant_id=?`, id, tenantID))
}

func (r Repo) GetDecisionTx(ctx context.Context, tx *sql.Tx, tenantID, id string) (domain.Decision, error) {
	return scanDecision(tx.QueryRowContext(ctx, `SELECT `+decisionCols+` FROM decisions WHERE id=? AND tenant_id=?`, id, tenantID))
}

func (r Repo) ListDecisions(ctx context.Context, tenantID, status string, limit int) ([]domain.Decision, error) {
	query := `SELECT ` + decisionCols + ` FROM decisions WHERE tenant_id=?`
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
	var res []domain.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// ListDecisionsOverlapping returns decisions whose activity window overlaps
// [start, end): created before the period ends and not closed before it starts.
func (r Repo) ListDecisionsOverlapping(ctx context.Context, tenantID, start, end string) ([]domain.Decision, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+decisionCols+` FROM decisions
WHERE tenant_id=? AND created_at < ? AND (status NOT IN ('implemented','cancelled') OR updated_at >= ?)
ORDER BY created_at DESC, id DESC`, tenantID, end, start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// --- crises ---

func (r Repo) InsertCrisis(ctx context.Context, tx *sql.Tx, c domain.Crisis) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO crises(id,tenant_id,department_id,crisis_type,title,description,severity,status,impact_assessment,response_plan,communication_plan,assigned_to,created_by,detected_at,resolved_at,updated_at,version)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.TenantID, nullableStringPtr(c.DepartmentID), c.CrisisType, c.Title, nullable(c.Description), c.Severity, c.Status,
		nullableStringPtr(c.ImpactAssessment), nullableStringPtr(c.ResponsePlan), nullableStringPtr(c.CommunicationPlan),
		nullableStringPtr(c.AssignedTo), c.CreatedBy, c.DetectedAt, nullableStringPtr(c.ResolvedAt), c.UpdatedAt, c.Version)
	return err
}

func (r Repo) UpdateCrisis(ctx context.Context, tx *sql.Tx, c domain.Crisis) error {
	res, err := tx.ExecContext(ctx, `UPDATE crises SET severity=?, status=?, impact_assessment=?, response_plan=?, communication_plan=?, assigned_to=?, resolved_at=?, updated_at=?, version=version+1
WHERE id=? AND tenant_id=? AND version=?`,
		c.Severity, c.Status, nullableStringPtr(c.ImpactAssessment), nullableStringPtr(c.ResponsePlan), nullableStringPtr(c.CommunicationPlan),
		nullableStringPtr(c.AssignedTo), nullableStringPtr(c.ResolvedAt), c.UpdatedAt, c.ID, c.TenantID, c.Version)
	if err != nil {
		return err
	}
	return r.checkVersioned(ctx, tx, res, "crises", c.ID, c.TenantID)
}

const crisisCols = `id,tenant_id,department_id,crisis_type,title,description,severity,status,impact_assessment,response_plan,communication_plan,assigned_to,created_by,detected_at,resolved_at,updated_at,version`

func scanCrisis(row interface{ Scan(...any) error }) (domain.Crisis, error) {
	var c domain.Crisis
	var dept, desc, impact, response, comms, assigned, resolved sql.NullString
	err := row.Scan(&c.ID, &c.TenantID, &dept, &c.CrisisType, &c.Title, &desc, &c.Severity, &c.Status,
		&impact, &response, &comms, &assigned, &c.CreatedBy, &c.DetectedAt, &resolved, &c.UpdatedAt, &c.Version)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.DepartmentID = nullStringPtr(dept)
	c.Description = desc.String
	c.ImpactAssessment = nullStringPtr(impact)
	c.ResponsePlan = nullStringPtr(response)
	c.CommunicationPlan = nullStringPtr(comms)
	c.AssignedTo = nullStringPtr(assigned)
	c.ResolvedAt = nullStringPtr(resolved)
	return c, nil
}

func (r Repo) GetCrisis(ctx context.Context, tenantID, id string) (domain.Crisis, error) {
	return scanCrisis(r.DB.QueryRowContext(ctx, `SELECT `+crisisCols+` FROM crises WHERE id=? AND tenant_id=?`, id, tenantID))
}

func (r Repo) GetCrisisTx(ctx context.Context, tx *sql.Tx, tenantID, id string) (domain.Crisis, error) {
	return scanCrisis(tx.QueryRowContext(ctx, `SELECT `+crisisCols+` FROM crises WHERE id=? AND tenant_id=?`, id, tenantID))
}

func (r Repo) ListCrises(ctx context.Context, tenantID, status string, limit int) ([]domain.Crisis, error) {
	query := `SELECT ` + crisisCols + ` FROM crises WHERE tenant_id=?`
	args := []any{tenantID}
	if status != "" {
		query += ` AND status=?`
		args = append(args, status)
	}
	query += ` ORDER BY detected_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Crisis
	for rows.Next() {
		c, err := scanCrisis(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// ListCrisesOverlapping returns crises whose activity window overlaps
// [start, end): detected before the period ends and not resolved before it
// starts, so a crisis resolved mid-period still counts.
func (r Repo) ListCrisesOverlapping(ctx context.Context, tenantID, start, end string) ([]domain.Crisis, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+crisisCols+` FROM crises
WHERE tenant_id=? AND detected_at < ? AND (status != 'resolved' OR resolved_at >= ?)
ORDER BY detected_at DESC, id DESC`, tenantID, end, start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Crisis
	for rows.Next() {
		c, err := scanCrisis(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) ListOpenCrises(ctx context.Context, tenantID string) ([]domain.Crisis, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+crisisCols+` FROM crises WHERE tenant_id=? AND status != 'resolved' ORDER BY detected_at DESC, id DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Crisis
	for rows.Next() {
		c, err := scanCrisis(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func marshalStrings(in []string) (any, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
