package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"execdesk/internal/config"
	"execdesk/internal/db"
	"execdesk/internal/domain"
	"execdesk/internal/engine"
	"execdesk/internal/migrate"
	"execdesk/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("acme")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.InitTenant(ctx, "acme", "Acme Corp", "ceo"); err != nil {
		t.Fatalf("init tenant: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func TestAnalysisStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.CreateAnalysis(env.Ctx, engine.AnalysisCreateOptions{
		TenantID: "acme",
		Title:    "Market expansion",
		ActorID:  "ceo",
	})
	if err != nil {
		t.Fatalf("create analysis: %v", err)
	}
	if a.Status != "pending" {
		t.Fatalf("expected pending, got %s", a.Status)
	}
	a, err = env.Engine.SetAnalysisStatus(env.Ctx, "acme", a.ID, "in_progress", "ceo")
	if err != nil || a.Status != "in_progress" {
		t.Fatalf("to in_progress: %v", err)
	}
	a, err = env.Engine.SetAnalysisStatus(env.Ctx, "acme", a.ID, "completed", "ceo")
	if err != nil || a.Status != "completed" {
		t.Fatalf("to completed: %v", err)
	}
	// completed -> in_progress is not a legal move
	_, err = env.Engine.SetAnalysisStatus(env.Ctx, "acme", a.ID, "in_progress", "ceo")
	if !engine.IsInvalidTransition(err) {
		t.Fatalf("expected transition error, got %v", err)
	}
	a, err = env.Engine.SetAnalysisStatus(env.Ctx, "acme", a.ID, "archived", "ceo")
	if err != nil || a.Status != "archived" {
		t.Fatalf("to archived: %v", err)
	}
	// archived is terminal
	_, err = env.Engine.SetAnalysisStatus(env.Ctx, "acme", a.ID, "pending", "ceo")
	if !engine.IsInvalidTransition(err) {
		t.Fatalf("expected terminal error, got %v", err)
	}
}

func TestAnalysisArchiveFromAnyActiveStatus(t *testing.T) {
	env := newTestEnv(t)
	for _, via := range []string{"pending", "in_progress"} {
		a, err := env.Engine.CreateAnalysis(env.Ctx, engine.AnalysisCreateOptions{
			TenantID: "acme", Title: "archive via " + via, ActorID: "ceo",
		})
		if err != nil {
			t.Fatal(err)
		}
		if via == "in_progress" {
			if _, err := env.Engine.SetAnalysisStatus(env.Ctx, "acme", a.ID, "in_progress", "ceo"); err != nil {
				t.Fatal(err)
			}
		}
		got, err := env.Engine.SetAnalysisStatus(env.Ctx, "acme", a.ID, "archived", "ceo")
		if err != nil || got.Status != "archived" {
			t.Fatalf("archive from %s: %v", via, err)
		}
	}
}

func TestDecisionApprovalRequiresSecondActor(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.Engine.CreateDecision(env.Ctx, engine.DecisionCreateOptions{
		TenantID: "acme",
		Title:    "Acquire competitor",
		Options: []domain.DecisionOption{
			{Label: "acquire"},
			{Label: "partner"},
		},
		ChosenOption: "acquire",
		ActorID:      "ceo",
	})
	if err != nil {
		t.Fatalf("create decision: %v", err)
	}
	_, err = env.Engine.ApproveDecision(env.Ctx, "acme", d.ID, "ceo")
	if !errors.Is(err, engine.ErrSelfApproval) {
		t.Fatalf("expected self approval error, got %v", err)
	}
	d, err = env.Engine.ApproveDecision(env.Ctx, "acme", d.ID, "cfo")
	if err != nil {
		t.Fatalf("approve by cfo: %v", err)
	}
	if d.Status != "approved" || d.ApprovedBy == nil || *d.ApprovedBy != "cfo" {
		t.Fatalf("unexpected decision after approval: %+v", d)
	}
	d, err = env.Engine.SetDecisionStatus(env.Ctx, "acme", d.ID, "implemented", "ceo")
	if err != nil || d.Status != "implemented" {
		t.Fatalf("to implemented: %v", err)
	}
	// implemented is terminal
	_, err = env.Engine.SetDecisionStatus(env.Ctx, "acme", d.ID, "cancelled", "ceo")
	if !engine.IsInvalidTransition(err) {
		t.Fatalf("expected terminal error, got %v", err)
	}
}

func TestDecisionCancelClearsApprover(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.Engine.CreateDecision(env.Ctx, engine.DecisionCreateOptions{
		TenantID: "acme", Title: "Freeze hiring",
		Options: []domain.DecisionOption{{Label: "freeze"}},
		ActorID: "ceo",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ApproveDecision(env.Ctx, "acme", d.ID, "cfo"); err != nil {
		t.Fatal(err)
	}
	d, err = env.Engine.SetDecisionStatus(env.Ctx, "acme", d.ID, "cancelled", "ceo")
	if err != nil || d.Status != "cancelled" {
		t.Fatalf("cancel approved decision: %v", err)
	}
	if d.ApprovedBy != nil {
		t.Fatalf("expected approver cleared on cancel, got %v", *d.ApprovedBy)
	}
}

func TestDecisionChosenOptionMustBeListed(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateDecision(env.Ctx, engine.DecisionCreateOptions{
		TenantID:     "acme",
		Title:        "Pick vendor",
		Options:      []domain.DecisionOption{{Label: "vendor-a"}},
		ChosenOption: "vendor-b",
		ActorID:      "ceo",
	})
	if err == nil {
		t.Fatalf("expected unlisted chosen option to be rejected")
	}
}

func TestCrisisLifecycleAndResolvedAt(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.Engine.CreateCrisis(env.Ctx, engine.CrisisCreateOptions{
		TenantID: "acme",
		Title:    "Data center outage",
		Severity: "high",
		ActorID:  "ceo",
	})
	if err != nil {
		t.Fatalf("create crisis: %v", err)
	}
	if c.Status != "detected" || c.ResolvedAt != nil {
		t.Fatalf("unexpected new crisis: %+v", c)
	}
	c, err = env.Engine.SetCrisisStatus(env.Ctx, "acme", c.ID, "investigating", "ceo")
	if err != nil {
		t.Fatal(err)
	}
	if c.ResolvedAt != nil {
		t.Fatalf("resolved_at must stay empty until resolved")
	}
	c, err = env.Engine.SetCrisisStatus(env.Ctx, "acme", c.ID, "responding", "ceo")
	if err != nil {
		t.Fatal(err)
	}
	c, err = env.Engine.SetCrisisStatus(env.Ctx, "acme", c.ID, "resolved", "ceo")
	if err != nil {
		t.Fatal(err)
	}
	if c.ResolvedAt == nil {
		t.Fatalf("expected resolved_at to be set")
	}
	first := *c.ResolvedAt
	// resolving again is a silent no-op
	again, err := env.Engine.ResolveCrisis(env.Ctx, "acme", c.ID, "cfo")
	if err != nil {
		t.Fatalf("double resolve: %v", err)
	}
	if again.ResolvedAt == nil || *again.ResolvedAt != first {
		t.Fatalf("double resolve must not move resolved_at")
	}
}

func TestCrisisEmergencyResolveFromAnyStatus(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.Engine.CreateCrisis(env.Ctx, engine.CrisisCreateOptions{
		TenantID: "acme", Title: "Security breach", Severity: "critical", ActorID: "ceo",
	})
	if err != nil {
		t.Fatal(err)
	}
	// straight from detected, skipping the normal path
	c, err = env.Engine.ResolveCrisis(env.Ctx, "acme", c.ID, "ceo")
	if err != nil || c.Status != "resolved" || c.ResolvedAt == nil {
		t.Fatalf("emergency resolve: %v %+v", err, c)
	}
	// but detected -> responding must still be rejected
	c2, err := env.Engine.CreateCrisis(env.Ctx, engine.CrisisCreateOptions{
		TenantID: "acme", Title: "Another", ActorID: "ceo",
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.SetCrisisStatus(env.Ctx, "acme", c2.ID, "responding", "ceo")
	if !engine.IsInvalidTransition(err) {
		t.Fatalf("expected transition error, got %v", err)
	}
}

func TestCrossTenantLookupIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.InitTenant(env.Ctx, "globex", "Globex", "ceo"); err != nil {
		t.Fatal(err)
	}
	a, err := env.Engine.CreateAnalysis(env.Ctx, engine.AnalysisCreateOptions{
		TenantID: "acme", Title: "Private analysis", ActorID: "ceo",
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.Repo.GetAnalysis(env.Ctx, "globex", a.ID)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found across tenants, got %v", err)
	}
	_, err = env.Engine.SetAnalysisStatus(env.Ctx, "globex", a.ID, "in_progress", "ceo")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found on cross-tenant transition, got %v", err)
	}
}

func TestStaleVersionUpdateConflicts(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.CreateAnalysis(env.Ctx, engine.AnalysisCreateOptions{
		TenantID: "acme", Title: "Versioned", ActorID: "ceo",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetAnalysisStatus(env.Ctx, "acme", a.ID, "in_progress", "ceo"); err != nil {
		t.Fatal(err)
	}
	// a still carries version 1; writing through it must conflict
	stale := a
	stale.Summary = "stale write"
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	err = env.Engine.Repo.UpdateAnalysis(env.Ctx, tx, stale)
	if !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestObservationPeriodValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.RecordObservation(env.Ctx, domain.MetricObservation{
		TenantID:    "acme",
		Name:        "mrr",
		Value:       100,
		Type:        "revenue",
		PeriodStart: "2025-01-31T00:00:00Z",
		PeriodEnd:   "2025-01-01T00:00:00Z",
	}, "ceo")
	if err == nil {
		t.Fatalf("expected inverted period to be rejected")
	}
	_, err = env.Engine.RecordObservation(env.Ctx, domain.MetricObservation{
		TenantID:    "acme",
		Name:        "mrr",
		Value:       100,
		Type:        "headcount",
		PeriodStart: "2025-01-01T00:00:00Z",
		PeriodEnd:   "2025-01-31T00:00:00Z",
	}, "ceo")
	if err == nil {
		t.Fatalf("expected unknown metric type to be rejected")
	}
}

func TestObservationDuplicateIdentityConflicts(t *testing.T) {
	env := newTestEnv(t)
	o := domain.MetricObservation{
		TenantID:    "acme",
		Name:        "mrr",
		Value:       100,
		Type:        "revenue",
		PeriodStart: "2025-01-01T00:00:00Z",
		PeriodEnd:   "2025-02-01T00:00:00Z",
	}
	if _, err := env.Engine.RecordObservation(env.Ctx, o, "ceo"); err != nil {
		t.Fatalf("first record: %v", err)
	}
	// same name, period and (absent) department
	o.Value = 200
	_, err := env.Engine.RecordObservation(env.Ctx, o, "ceo")
	if !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected conflict on duplicate identity, got %v", err)
	}
	// a different period is a distinct identity
	o.PeriodStart = "2025-02-01T00:00:00Z"
	o.PeriodEnd = "2025-03-01T00:00:00Z"
	if _, err := env.Engine.RecordObservation(env.Ctx, o, "ceo"); err != nil {
		t.Fatalf("distinct period: %v", err)
	}
}

func TestObservationTimestampsNormalizedToUTC(t *testing.T) {
	env := newTestEnv(t)
	o, err := env.Engine.RecordObservation(env.Ctx, domain.MetricObservation{
		TenantID:    "acme",
		Name:        "mrr",
		Value:       100,
		Type:        "revenue",
		PeriodStart: "2025-01-01T02:00:00+02:00",
		PeriodEnd:   "2025-02-01T02:00:00+02:00",
	}, "ceo")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if o.PeriodStart != "2025-01-01T00:00:00Z" || o.PeriodEnd != "2025-02-01T00:00:00Z" {
		t.Fatalf("expected UTC normalization, got %s .. %s", o.PeriodStart, o.PeriodEnd)
	}
}

func TestTransitionEventsLogged(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.Engine.CreateCrisis(env.Ctx, engine.CrisisCreateOptions{
		TenantID: "acme", Title: "Outage", ActorID: "ceo",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetCrisisStatus(env.Ctx, "acme", c.ID, "investigating", "ceo"); err != nil {
		t.Fatal(err)
	}
	events, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "acme", "crisis.transition", "", c.ID)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 transition events, got %d", len(events))
	}
	// newest first
	if events[0].FromStatus != "detected" || events[0].ToStatus != "investigating" {
		t.Fatalf("unexpected head event: %+v", events[0])
	}
	if events[1].FromStatus != "" || events[1].ToStatus != "detected" {
		t.Fatalf("unexpected creation event: %+v", events[1])
	}
}
