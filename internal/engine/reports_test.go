package engine_test

import (
	"errors"
	"testing"

	"execdesk/internal/domain"
	"execdesk/internal/engine"
)

func composeTestReport(t *testing.T, env testEnv, actorID string) string {
	t.Helper()
	rep, err := env.Engine.ComposeReport(env.Ctx, engine.ReportCreateOptions{
		TenantID:    "acme",
		ReportType:  "monthly",
		PeriodStart: windowStart,
		PeriodEnd:   windowEnd,
		ActorID:     actorID,
	})
	if err != nil {
		t.Fatalf("compose report: %v", err)
	}
	return rep.ID
}

func TestReportComposeFreezesSections(t *testing.T) {
	env := newTestEnv(t)
	record(t, env, "revenue", 100, "", windowStart, windowEnd)
	id := composeTestReport(t, env, "ceo")

	// data recorded after compose must not leak into the frozen sections
	record(t, env, "revenue", 9000, "", windowStart, windowEnd)

	rep, err := env.Engine.Repo.GetReport(env.Ctx, "acme", id)
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if rep.Sections.KeyMetrics.Global.Revenue != 100 {
		t.Fatalf("sections changed after compose: revenue = %g", rep.Sections.KeyMetrics.Global.Revenue)
	}
}

func TestReportComposeCapturesOpenRisks(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateCrisis(env.Ctx, engine.CrisisCreateOptions{
		TenantID: "acme", Title: "Supply chain disruption", Severity: "high", ActorID: "ceo",
	}); err != nil {
		t.Fatal(err)
	}
	id := composeTestReport(t, env, "ceo")
	rep, err := env.Engine.Repo.GetReport(env.Ctx, "acme", id)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Sections.RisksAndOpportunities.Crises) != 1 {
		t.Fatalf("expected crisis in sections, got %+v", rep.Sections.RisksAndOpportunities)
	}
	// the crisis detection alert is open too
	if len(rep.Sections.RisksAndOpportunities.OpenAlerts) != 1 {
		t.Fatalf("expected open alert in sections, got %+v", rep.Sections.RisksAndOpportunities)
	}
}

func TestReportSectionsCoverPeriodActivity(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.Engine.CreateDecision(env.Ctx, engine.DecisionCreateOptions{
		TenantID: "acme", Title: "Enter APAC market",
		Options: []domain.DecisionOption{{Label: "enter"}, {Label: "hold"}},
		ActorID: "ceo",
	})
	if err != nil {
		t.Fatal(err)
	}
	c, err := env.Engine.CreateCrisis(env.Ctx, engine.CrisisCreateOptions{
		TenantID: "acme", Title: "Brief outage", Severity: "medium", ActorID: "ceo",
	})
	if err != nil {
		t.Fatal(err)
	}
	// resolved inside the report period; it still belongs in the report
	if _, err := env.Engine.ResolveCrisis(env.Ctx, "acme", c.ID, "ceo"); err != nil {
		t.Fatal(err)
	}

	id := composeTestReport(t, env, "ceo")
	rep, err := env.Engine.Repo.GetReport(env.Ctx, "acme", id)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Sections.KeyDecisions) != 1 || rep.Sections.KeyDecisions[0].ID != d.ID {
		t.Fatalf("expected the decision in sections, got %+v", rep.Sections.KeyDecisions)
	}
	crises := rep.Sections.RisksAndOpportunities.Crises
	if len(crises) != 1 || crises[0].ID != c.ID || crises[0].Status != "resolved" {
		t.Fatalf("expected the mid-period resolved crisis in sections, got %+v", crises)
	}
}

func TestReportWorkflowAndSelfApproval(t *testing.T) {
	env := newTestEnv(t)
	id := composeTestReport(t, env, "ceo")

	// draft -> approved skips review
	_, err := env.Engine.ApproveReport(env.Ctx, "acme", id, "cfo")
	if !engine.IsInvalidTransition(err) {
		t.Fatalf("expected transition error, got %v", err)
	}
	rep, err := env.Engine.SubmitReportForReview(env.Ctx, "acme", id, "ceo")
	if err != nil || rep.Status != "review" {
		t.Fatalf("submit: %v", err)
	}
	// composer cannot approve their own report
	_, err = env.Engine.ApproveReport(env.Ctx, "acme", id, "ceo")
	if !errors.Is(err, engine.ErrSelfApproval) {
		t.Fatalf("expected self approval error, got %v", err)
	}
	rep, err = env.Engine.ApproveReport(env.Ctx, "acme", id, "cfo")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if rep.Status != "approved" || rep.ApprovedBy == nil || *rep.ApprovedBy != "cfo" {
		t.Fatalf("unexpected report after approval: %+v", rep)
	}
	if rep.PublishedAt != nil {
		t.Fatalf("published_at must stay empty until published")
	}
	rep, err = env.Engine.PublishReport(env.Ctx, "acme", id, "ceo")
	if err != nil || rep.Status != "published" {
		t.Fatalf("publish: %v", err)
	}
	if rep.PublishedAt == nil {
		t.Fatalf("expected published_at to be set")
	}
	// published is terminal
	_, err = env.Engine.SubmitReportForReview(env.Ctx, "acme", id, "ceo")
	if !engine.IsInvalidTransition(err) {
		t.Fatalf("expected terminal error, got %v", err)
	}
}

func TestReportNarrativeEditableUntilApproval(t *testing.T) {
	env := newTestEnv(t)
	id := composeTestReport(t, env, "ceo")

	summary := "Q1 beat plan on revenue."
	rep, err := env.Engine.UpdateReportNarrative(env.Ctx, "acme", id, &summary, nil, "ceo")
	if err != nil {
		t.Fatalf("narrative in draft: %v", err)
	}
	if rep.ExecutiveSummary != summary {
		t.Fatalf("summary not updated: %q", rep.ExecutiveSummary)
	}
	if _, err := env.Engine.SubmitReportForReview(env.Ctx, "acme", id, "ceo"); err != nil {
		t.Fatal(err)
	}
	recs := "Increase sales headcount."
	rep, err = env.Engine.UpdateReportNarrative(env.Ctx, "acme", id, nil, &recs, "ceo")
	if err != nil {
		t.Fatalf("narrative in review: %v", err)
	}
	if rep.Recommendations != recs || rep.ExecutiveSummary != summary {
		t.Fatalf("unexpected narrative: %+v", rep)
	}
	if _, err := env.Engine.ApproveReport(env.Ctx, "acme", id, "cfo"); err != nil {
		t.Fatal(err)
	}
	// approved reports are locked
	_, err = env.Engine.UpdateReportNarrative(env.Ctx, "acme", id, &summary, nil, "ceo")
	if !engine.IsInvalidTransition(err) {
		t.Fatalf("expected locked report error, got %v", err)
	}
}

func TestReportRejectsUnknownType(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.ComposeReport(env.Ctx, engine.ReportCreateOptions{
		TenantID:    "acme",
		ReportType:  "weekly",
		PeriodStart: windowStart,
		PeriodEnd:   windowEnd,
		ActorID:     "ceo",
	})
	if err == nil {
		t.Fatalf("expected unknown report type to be rejected")
	}
}
