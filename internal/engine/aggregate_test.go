package engine_test

import (
	"math"
	"testing"
	"time"

	"execdesk/internal/domain"
)

var (
	windowStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
)

func record(t *testing.T, env testEnv, metricType string, value float64, dept string, start, end time.Time) {
	t.Helper()
	o := domain.MetricObservation{
		TenantID:    "acme",
		Name:        metricType,
		Value:       value,
		Type:        metricType,
		PeriodStart: start.Format(time.RFC3339),
		PeriodEnd:   end.Format(time.RFC3339),
	}
	if dept != "" {
		o.DepartmentID = &dept
	}
	if _, err := env.Engine.RecordObservation(env.Ctx, o, "ceo"); err != nil {
		t.Fatalf("record %s: %v", metricType, err)
	}
}

func TestSnapshotRevenueSumPerScope(t *testing.T) {
	env := newTestEnv(t)
	record(t, env, "revenue", 100, "sales", windowStart, windowStart.AddDate(0, 0, 10))
	record(t, env, "revenue", 50, "sales", windowStart.AddDate(0, 0, 10), windowStart.AddDate(0, 0, 20))
	record(t, env, "revenue", 30, "", windowStart, windowEnd)

	snap, err := env.Engine.ComputeSnapshot(env.Ctx, "acme", windowStart, windowEnd, nil)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Global.Revenue != 180 {
		t.Fatalf("global revenue = %g, want 180", snap.Global.Revenue)
	}
	if len(snap.Departments) != 1 || snap.Departments[0].DepartmentID != "sales" {
		t.Fatalf("unexpected departments: %+v", snap.Departments)
	}
	if snap.Departments[0].Metrics.Revenue != 150 {
		t.Fatalf("sales revenue = %g, want 150", snap.Departments[0].Metrics.Revenue)
	}
	// no samples for the other types
	if snap.Global.Users != nil || snap.Global.Performance != nil || snap.Global.Growth != nil {
		t.Fatalf("expected nil metrics without samples: %+v", snap.Global)
	}
}

func TestSnapshotUsersTakesLastObservation(t *testing.T) {
	env := newTestEnv(t)
	record(t, env, "users", 900, "", windowStart, windowStart.AddDate(0, 0, 15))
	record(t, env, "users", 1200, "", windowStart.AddDate(0, 0, 15), windowStart.AddDate(0, 0, 30))
	record(t, env, "users", 700, "", windowStart, windowStart.AddDate(0, 0, 7))

	snap, err := env.Engine.ComputeSnapshot(env.Ctx, "acme", windowStart, windowEnd, nil)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Global.Users == nil || *snap.Global.Users != 1200 {
		t.Fatalf("users = %v, want 1200", snap.Global.Users)
	}
}

func TestSnapshotPerformanceDurationWeighted(t *testing.T) {
	env := newTestEnv(t)
	// 100 over 10 days, 50 over 20 days -> (100*10 + 50*20) / 30
	record(t, env, "performance", 100, "", windowStart, windowStart.AddDate(0, 0, 10))
	record(t, env, "performance", 50, "", windowStart.AddDate(0, 0, 10), windowStart.AddDate(0, 0, 30))

	snap, err := env.Engine.ComputeSnapshot(env.Ctx, "acme", windowStart, windowEnd, nil)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Global.Performance == nil {
		t.Fatalf("expected performance value")
	}
	want := (100.0*10 + 50.0*20) / 30
	if math.Abs(*snap.Global.Performance-want) > 1e-9 {
		t.Fatalf("performance = %g, want %g", *snap.Global.Performance, want)
	}
}

func TestSnapshotGrowthIsPeriodOverPeriodDelta(t *testing.T) {
	env := newTestEnv(t)
	priorStart := windowStart.AddDate(0, -1, 0)
	record(t, env, "growth", 5, "", priorStart, windowStart)
	record(t, env, "growth", 8, "", windowStart, windowEnd)

	snap, err := env.Engine.ComputeSnapshot(env.Ctx, "acme", windowStart, windowEnd, nil)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Global.Growth == nil || *snap.Global.Growth != 3 {
		t.Fatalf("growth = %v, want 3", snap.Global.Growth)
	}
}

func TestSnapshotGrowthNilWithoutPriorWindow(t *testing.T) {
	env := newTestEnv(t)
	record(t, env, "growth", 8, "", windowStart, windowEnd)

	snap, err := env.Engine.ComputeSnapshot(env.Ctx, "acme", windowStart, windowEnd, nil)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Global.Growth != nil {
		t.Fatalf("growth = %v, want nil without a prior window", *snap.Global.Growth)
	}
}

func TestSnapshotDepartmentFilter(t *testing.T) {
	env := newTestEnv(t)
	record(t, env, "revenue", 100, "sales", windowStart, windowEnd)
	record(t, env, "revenue", 40, "eng", windowStart, windowEnd)

	dept := "sales"
	snap, err := env.Engine.ComputeSnapshot(env.Ctx, "acme", windowStart, windowEnd, &dept)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Global.Revenue != 100 {
		t.Fatalf("filtered revenue = %g, want 100", snap.Global.Revenue)
	}
	if len(snap.Departments) != 1 || snap.Departments[0].DepartmentID != "sales" {
		t.Fatalf("unexpected departments: %+v", snap.Departments)
	}
}

func TestSnapshotIgnoresObservationsOutsideWindow(t *testing.T) {
	env := newTestEnv(t)
	record(t, env, "revenue", 100, "", windowStart, windowEnd)
	// entirely before the window
	record(t, env, "revenue", 999, "", windowStart.AddDate(0, -2, 0), windowStart.AddDate(0, -1, 0))

	snap, err := env.Engine.ComputeSnapshot(env.Ctx, "acme", windowStart, windowEnd, nil)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Global.Revenue != 100 {
		t.Fatalf("revenue = %g, want 100", snap.Global.Revenue)
	}
}

func TestSnapshotRejectsInvertedPeriod(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.ComputeSnapshot(env.Ctx, "acme", windowEnd, windowStart, nil); err == nil {
		t.Fatalf("expected inverted period to error")
	}
}
