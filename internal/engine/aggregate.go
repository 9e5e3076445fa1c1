package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	"execdesk/internal/domain"
	"execdesk/internal/repo"
)

// ComputeSnapshot reduces the tenant's raw observations over [start, end) into
// a dashboard snapshot. The result is derived on every call and never stored;
// the same data always reduces to the same snapshot. A non-nil departmentID
// narrows the whole computation to that department's observations.
func (e Engine) ComputeSnapshot(ctx context.Context, tenantID string, start, end time.Time, departmentID *string) (domain.DashboardSnapshot, error) {
	snap := domain.DashboardSnapshot{TenantID: tenantID}
	if !start.Before(end) {
		return snap, errors.New("period_start must be before period_end")
	}
	if _, err := e.Repo.GetTenant(ctx, tenantID); err != nil {
		return snap, err
	}
	startStr := start.UTC().Format(time.RFC3339)
	endStr := end.UTC().Format(time.RFC3339)
	snap.PeriodStart = startStr
	snap.PeriodEnd = endStr

	current, err := e.Repo.QueryObservations(ctx, repo.ObservationFilters{
		TenantID: tenantID, Start: startStr, End: endStr, DepartmentID: departmentID,
	})
	if err != nil {
		return snap, err
	}
	// growth is period-over-period: compare against the window of equal
	// length immediately before this one.
	priorStart := start.Add(-end.Sub(start))
	prior, err := e.Repo.QueryObservations(ctx, repo.ObservationFilters{
		TenantID:     tenantID,
		Start:        priorStart.UTC().Format(time.RFC3339),
		End:          startStr,
		DepartmentID: departmentID,
		Type:         "growth",
	})
	if err != nil {
		return snap, err
	}

	snap.Global = reduceMetrics(current, prior)

	byDept := map[string][]domain.MetricObservation{}
	for _, o := range current {
		if o.DepartmentID != nil {
			byDept[*o.DepartmentID] = append(byDept[*o.DepartmentID], o)
		}
	}
	priorByDept := map[string][]domain.MetricObservation{}
	for _, o := range prior {
		if o.DepartmentID != nil {
			priorByDept[*o.DepartmentID] = append(priorByDept[*o.DepartmentID], o)
		}
	}
	deptIDs := make([]string, 0, len(byDept))
	for id := range byDept {
		deptIDs = append(deptIDs, id)
	}
	sort.Strings(deptIDs)
	for _, id := range deptIDs {
		snap.Departments = append(snap.Departments, domain.DepartmentSnapshot{
			DepartmentID: id,
			Metrics:      reduceMetrics(byDept[id], priorByDept[id]),
		})
	}
	return snap, nil
}

// reduceMetrics applies the per-type reducers to one scope's observations.
// Reducers without samples yield nil rather than a defaulted value; revenue
// is the exception, an empty sum is a true zero.
func reduceMetrics(cur, prior []domain.MetricObservation) domain.SnapshotMetrics {
	var m domain.SnapshotMetrics
	var lastUsers *domain.MetricObservation
	var perfObs []domain.MetricObservation
	var growthSum float64
	growthN := 0
	for i, o := range cur {
		switch o.Type {
		case "revenue":
			m.Revenue += o.Value
		case "users":
			// a gauge: the observation whose period ends last wins
			if lastUsers == nil || o.PeriodEnd > lastUsers.PeriodEnd ||
				(o.PeriodEnd == lastUsers.PeriodEnd && o.CreatedAt >= lastUsers.CreatedAt) {
				lastUsers = &cur[i]
			}
		case "performance":
			perfObs = append(perfObs, o)
		case "growth":
			growthSum += o.Value
			growthN++
		}
	}
	if lastUsers != nil {
		v := lastUsers.Value
		m.Users = &v
	}
	if avg, err := weightedAverage(perfObs); err == nil {
		m.Performance = &avg
	}
	var priorSum float64
	priorN := 0
	for _, o := range prior {
		if o.Type == "growth" {
			priorSum += o.Value
			priorN++
		}
	}
	if growthN > 0 && priorN > 0 {
		delta := growthSum - priorSum
		m.Growth = &delta
	}
	return m
}

// weightedAverage averages observation values weighted by period duration.
// Returns ErrInsufficientData when there are no samples; callers decide
// whether to surface or suppress that.
func weightedAverage(obs []domain.MetricObservation) (float64, error) {
	var num, den float64
	for _, o := range obs {
		s, err := time.Parse(time.RFC3339, o.PeriodStart)
		if err != nil {
			return 0, err
		}
		en, err := time.Parse(time.RFC3339, o.PeriodEnd)
		if err != nil {
			return 0, err
		}
		w := en.Sub(s).Seconds()
		num += o.Value * w
		den += w
	}
	if den == 0 {
		return 0, ErrInsufficientData
	}
	return num / den, nil
}

// RunEvaluation computes the snapshot for the window and applies the tenant's
// threshold rules against it. Scheduling is the caller's concern.
func (e Engine) RunEvaluation(ctx context.Context, tenantID string, start, end time.Time) (domain.DashboardSnapshot, []domain.Alert, error) {
	snap, err := e.ComputeSnapshot(ctx, tenantID, start, end, nil)
	if err != nil {
		return snap, nil, err
	}
	created, err := e.EvaluateThresholds(ctx, tenantID, snap)
	return snap, created, err
}
