package engine_test

import (
	"errors"
	"testing"
	"time"

	"execdesk/internal/config"
	"execdesk/internal/domain"
	"execdesk/internal/engine"
	"execdesk/internal/repo"
)

func openAlerts(t *testing.T, env testEnv) []domain.Alert {
	t.Helper()
	alerts, err := env.Engine.Repo.ListAlerts(env.Ctx, repo.AlertFilters{TenantID: "acme", OpenOnly: true})
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	return alerts
}

func TestThresholdEvaluationAndDedup(t *testing.T) {
	env := newTestEnv(t)
	record(t, env, "revenue", -100, "", windowStart, windowEnd)

	_, created, err := env.Engine.RunEvaluation(env.Ctx, "acme", windowStart, windowEnd)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(created))
	}
	a := created[0]
	if a.AlertType != "revenue.negative" || a.Severity != "high" {
		t.Fatalf("unexpected alert: %+v", a)
	}
	if a.Title != "revenue tenant lt 0" {
		t.Fatalf("unexpected title: %q", a.Title)
	}
	// re-running over the same state must not duplicate the open alert
	_, created, err = env.Engine.RunEvaluation(env.Ctx, "acme", windowStart, windowEnd)
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 0 {
		t.Fatalf("expected dedup to suppress, got %d new alerts", len(created))
	}
	// resolving reopens the dedup slot
	if _, err := env.Engine.ResolveAlert(env.Ctx, "acme", a.ID, "ceo"); err != nil {
		t.Fatal(err)
	}
	_, created, err = env.Engine.RunEvaluation(env.Ctx, "acme", windowStart, windowEnd)
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 1 {
		t.Fatalf("expected a fresh alert after resolve, got %d", len(created))
	}
}

func TestThresholdDepartmentScope(t *testing.T) {
	env := newTestEnv(t)
	record(t, env, "revenue", -50, "sales", windowStart, windowEnd)

	_, created, err := env.Engine.RunEvaluation(env.Ctx, "acme", windowStart, windowEnd)
	if err != nil {
		t.Fatal(err)
	}
	// the department observation also drags the tenant total negative, so the
	// "all" scope rule fires once per scope
	if len(created) != 2 {
		t.Fatalf("expected tenant + department alerts, got %d", len(created))
	}
	var deptAlert *domain.Alert
	for i := range created {
		if created[i].DepartmentID != nil {
			deptAlert = &created[i]
		}
	}
	if deptAlert == nil || *deptAlert.DepartmentID != "sales" {
		t.Fatalf("expected a department-scoped alert: %+v", created)
	}
	if deptAlert.Title != "revenue department sales lt 0" {
		t.Fatalf("unexpected title: %q", deptAlert.Title)
	}
}

func TestThresholdAbsentMetricDoesNotFire(t *testing.T) {
	env := newTestEnv(t)
	// no performance observations at all; the performance < 50 rule must not
	// fire on the missing value
	record(t, env, "revenue", 100, "", windowStart, windowEnd)

	_, created, err := env.Engine.RunEvaluation(env.Ctx, "acme", windowStart, windowEnd)
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 0 {
		t.Fatalf("expected no alerts, got %+v", created)
	}
}

func TestCrisisDetectionRaisesAlert(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.Engine.CreateCrisis(env.Ctx, engine.CrisisCreateOptions{
		TenantID: "acme", Title: "Database outage", Severity: "critical", ActorID: "ceo",
	})
	if err != nil {
		t.Fatal(err)
	}
	alerts := openAlerts(t, env)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].AlertType != "crisis.detected" || alerts[0].Severity != "critical" {
		t.Fatalf("unexpected alert: %+v", alerts[0])
	}
	if alerts[0].Title != c.Title {
		t.Fatalf("alert title should carry the crisis title, got %q", alerts[0].Title)
	}
	// a second detection while the first alert is open is deduped
	if _, err := env.Engine.CreateCrisis(env.Ctx, engine.CrisisCreateOptions{
		TenantID: "acme", Title: "Second outage", Severity: "high", ActorID: "ceo",
	}); err != nil {
		t.Fatal(err)
	}
	if got := openAlerts(t, env); len(got) != 1 {
		t.Fatalf("expected dedup, got %d open alerts", len(got))
	}
}

func TestDecisionCancellationAlertRespectsMinPriority(t *testing.T) {
	env := newTestEnv(t)
	low, err := env.Engine.CreateDecision(env.Ctx, engine.DecisionCreateOptions{
		TenantID: "acme", Title: "Minor tooling change",
		Options:  []domain.DecisionOption{{Label: "go"}},
		Priority: "low", ActorID: "ceo",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetDecisionStatus(env.Ctx, "acme", low.ID, "cancelled", "ceo"); err != nil {
		t.Fatal(err)
	}
	if got := openAlerts(t, env); len(got) != 0 {
		t.Fatalf("low priority cancellation must not alert, got %+v", got)
	}

	crit, err := env.Engine.CreateDecision(env.Ctx, engine.DecisionCreateOptions{
		TenantID: "acme", Title: "Cancel the merger",
		Options:  []domain.DecisionOption{{Label: "proceed"}},
		Priority: "critical", ActorID: "ceo",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetDecisionStatus(env.Ctx, "acme", crit.ID, "cancelled", "ceo"); err != nil {
		t.Fatal(err)
	}
	alerts := openAlerts(t, env)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].AlertType != "decision.cancelled" || alerts[0].Severity != "high" {
		t.Fatalf("unexpected alert: %+v", alerts[0])
	}
}

func TestAlertRulesFollowTenantConfig(t *testing.T) {
	env := newTestEnv(t)
	// the engine was constructed with acme's config; globex stores its own
	// with every rule table emptied
	if _, err := env.Engine.InitTenant(env.Ctx, "globex", "Globex", "ceo"); err != nil {
		t.Fatal(err)
	}
	quiet := config.Default("globex")
	quiet.Alerts.Thresholds = nil
	quiet.Alerts.Lifecycle = nil
	if err := env.Engine.Repo.UpsertTenantConfig(env.Ctx, "globex", quiet); err != nil {
		t.Fatalf("store globex config: %v", err)
	}

	if _, err := env.Engine.RecordObservation(env.Ctx, domain.MetricObservation{
		TenantID:    "globex",
		Name:        "mrr",
		Value:       -100,
		Type:        "revenue",
		PeriodStart: windowStart.Format(time.RFC3339),
		PeriodEnd:   windowEnd.Format(time.RFC3339),
	}, "ceo"); err != nil {
		t.Fatalf("record for globex: %v", err)
	}
	_, created, err := env.Engine.RunEvaluation(env.Ctx, "globex", windowStart, windowEnd)
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 0 {
		t.Fatalf("globex disabled all thresholds, got %+v", created)
	}
	if _, err := env.Engine.CreateCrisis(env.Ctx, engine.CrisisCreateOptions{
		TenantID: "globex", Title: "Quiet crisis", Severity: "critical", ActorID: "ceo",
	}); err != nil {
		t.Fatal(err)
	}
	globexAlerts, err := env.Engine.Repo.ListAlerts(env.Ctx, repo.AlertFilters{TenantID: "globex", OpenOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(globexAlerts) != 0 {
		t.Fatalf("globex disabled lifecycle rules, got %+v", globexAlerts)
	}

	// acme's own rules are unaffected
	record(t, env, "revenue", -100, "", windowStart, windowEnd)
	_, created, err = env.Engine.RunEvaluation(env.Ctx, "acme", windowStart, windowEnd)
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 1 || created[0].AlertType != "revenue.negative" {
		t.Fatalf("expected acme alert, got %+v", created)
	}
}

func TestAlertAckFirstWins(t *testing.T) {
	env := newTestEnv(t)
	record(t, env, "revenue", -100, "", windowStart, windowEnd)
	_, created, err := env.Engine.RunEvaluation(env.Ctx, "acme", windowStart, windowEnd)
	if err != nil || len(created) != 1 {
		t.Fatalf("setup: %v %d", err, len(created))
	}
	id := created[0].ID

	a, err := env.Engine.AcknowledgeAlert(env.Ctx, "acme", id, "ceo")
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	if !a.IsAcknowledged || a.AcknowledgedBy == nil || *a.AcknowledgedBy != "ceo" {
		t.Fatalf("unexpected ack state: %+v", a)
	}
	// the same actor may repeat
	if _, err := env.Engine.AcknowledgeAlert(env.Ctx, "acme", id, "ceo"); err != nil {
		t.Fatalf("repeat ack by same actor: %v", err)
	}
	// anyone else lost the race
	_, err = env.Engine.AcknowledgeAlert(env.Ctx, "acme", id, "cfo")
	if !errors.Is(err, engine.ErrAlreadyAcknowledged) {
		t.Fatalf("expected already acknowledged, got %v", err)
	}
	// resolved alerts cannot be acknowledged
	if _, err := env.Engine.ResolveAlert(env.Ctx, "acme", id, "ceo"); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.AcknowledgeAlert(env.Ctx, "acme", id, "cfo")
	if !errors.Is(err, engine.ErrAlreadyResolved) {
		t.Fatalf("expected already resolved, got %v", err)
	}
}

func TestAlertResolveIdempotent(t *testing.T) {
	env := newTestEnv(t)
	record(t, env, "revenue", -100, "", windowStart, windowEnd)
	_, created, err := env.Engine.RunEvaluation(env.Ctx, "acme", windowStart, windowEnd)
	if err != nil || len(created) != 1 {
		t.Fatalf("setup: %v %d", err, len(created))
	}
	id := created[0].ID

	a, err := env.Engine.ResolveAlert(env.Ctx, "acme", id, "ceo")
	if err != nil || !a.IsResolved {
		t.Fatalf("resolve: %v %+v", err, a)
	}
	again, err := env.Engine.ResolveAlert(env.Ctx, "acme", id, "cfo")
	if err != nil {
		t.Fatalf("double resolve: %v", err)
	}
	if again.ResolvedBy == nil || *again.ResolvedBy != "ceo" {
		t.Fatalf("double resolve must not change the resolver, got %+v", again.ResolvedBy)
	}
}
