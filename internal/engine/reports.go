package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"execdesk/internal/domain"
	"execdesk/internal/events"
	"execdesk/internal/repo"
)

type ReportCreateOptions struct {
	ID               string
	TenantID         string
	ReportType       string
	PeriodStart      time.Time
	PeriodEnd        time.Time
	ExecutiveSummary string
	Recommendations  string
	ActorID          string
}

// ComposeReport snapshots the tenant's state over the report period into a
// draft report. The data sections are frozen at compose time; only the
// narrative fields and the status can change afterwards.
func (e Engine) ComposeReport(ctx context.Context, opts ReportCreateOptions) (domain.ExecutiveReport, error) {
	switch opts.ReportType {
	case "":
		opts.ReportType = "ad_hoc"
	case "monthly", "quarterly", "yearly", "ad_hoc":
	default:
		return domain.ExecutiveReport{}, fmt.Errorf("invalid report type %q", opts.ReportType)
	}
	if opts.TenantID == "" {
		return domain.ExecutiveReport{}, errors.New("tenant is required")
	}
	snap, err := e.ComputeSnapshot(ctx, opts.TenantID, opts.PeriodStart, opts.PeriodEnd, nil)
	if err != nil {
		return domain.ExecutiveReport{}, err
	}
	analyses, err := e.Repo.ListAnalysesOverlapping(ctx, opts.TenantID, snap.PeriodStart, snap.PeriodEnd)
	if err != nil {
		return domain.ExecutiveReport{}, err
	}
	decisions, err := e.Repo.ListDecisionsOverlapping(ctx, opts.TenantID, snap.PeriodStart, snap.PeriodEnd)
	if err != nil {
		return domain.ExecutiveReport{}, err
	}
	crises, err := e.Repo.ListCrisesOverlapping(ctx, opts.TenantID, snap.PeriodStart, snap.PeriodEnd)
	if err != nil {
		return domain.ExecutiveReport{}, err
	}
	alerts, err := e.Repo.ListAlerts(ctx, repo.AlertFilters{TenantID: opts.TenantID, OpenOnly: true})
	if err != nil {
		return domain.ExecutiveReport{}, err
	}

	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	rep := domain.ExecutiveReport{
		ID:               id,
		TenantID:         opts.TenantID,
		ReportType:       opts.ReportType,
		PeriodStart:      snap.PeriodStart,
		PeriodEnd:        snap.PeriodEnd,
		ExecutiveSummary: opts.ExecutiveSummary,
		Sections: domain.ReportSections{
			KeyMetrics:            snap,
			DepartmentPerformance: snap.Departments,
			StrategicInitiatives:  analyses,
			KeyDecisions:          decisions,
			RisksAndOpportunities: domain.ReportRisks{
				Crises:     crises,
				OpenAlerts: alerts,
			},
		},
		Recommendations: opts.Recommendations,
		Status:          "draft",
		CreatedBy:       opts.ActorID,
		CreatedAt:       now,
		UpdatedAt:       now,
		Version:         1,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rep, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertReport(ctx, tx, rep); err != nil {
		return rep, err
	}
	if err := e.Events.Append(ctx, tx, "report.composed", rep.TenantID, "report", rep.ID, opts.ActorID, events.EventPayload{
		"report_type": rep.ReportType, "period_start": rep.PeriodStart, "period_end": rep.PeriodEnd,
	}); err != nil {
		return rep, err
	}
	return rep, tx.Commit()
}

func ensureReportTransition(from, to string) error {
	switch from {
	case "draft":
		if to == "review" {
			return nil
		}
	case "review":
		if to == "approved" {
			return nil
		}
	case "approved":
		if to == "published" {
			return nil
		}
	}
	return &TransitionError{Entity: "report", From: from, To: to}
}

// SubmitReportForReview moves a draft into review.
func (e Engine) SubmitReportForReview(ctx context.Context, tenantID, id, actorID string) (domain.ExecutiveReport, error) {
	return e.setReportStatus(ctx, tenantID, id, "review", actorID)
}

// ApproveReport moves a report under review to approved. The approver must be
// a different actor than the report's author.
func (e Engine) ApproveReport(ctx context.Context, tenantID, id, actorID string) (domain.ExecutiveReport, error) {
	return e.setReportStatus(ctx, tenantID, id, "approved", actorID)
}

// PublishReport finalizes an approved report and stamps published_at.
func (e Engine) PublishReport(ctx context.Context, tenantID, id, actorID string) (domain.ExecutiveReport, error) {
	return e.setReportStatus(ctx, tenantID, id, "published", actorID)
}

func (e Engine) setReportStatus(ctx context.Context, tenantID, id, status, actorID string) (domain.ExecutiveReport, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ExecutiveReport{}, err
	}
	defer tx.Rollback()
	rep, err := e.Repo.GetReportTx(ctx, tx, tenantID, id)
	if err != nil {
		return rep, err
	}
	if err := ensureReportTransition(rep.Status, status); err != nil {
		return rep, err
	}
	from := rep.Status
	now := e.now().UTC().Format(time.RFC3339)
	switch status {
	case "approved":
		if actorID == "" || actorID == rep.CreatedBy {
			return rep, ErrSelfApproval
		}
		rep.ApprovedBy = &actorID
	case "published":
		rep.PublishedAt = &now
	}
	rep.Status = status
	rep.UpdatedAt = now
	if err := e.Repo.UpdateReport(ctx, tx, rep); err != nil {
		return rep, err
	}
	rep.Version++
	if err := e.Events.Transition(ctx, tx, rep.TenantID, "report", rep.ID, from, status, actorID, events.EventPayload{
		"report_type": rep.ReportType,
	}); err != nil {
		return rep, err
	}
	return rep, tx.Commit()
}

// UpdateReportNarrative changes the executive summary and recommendations.
// Allowed while the report is in draft or review only; the data sections are
// untouched either way.
func (e Engine) UpdateReportNarrative(ctx context.Context, tenantID, id string, summary, recommendations *string, actorID string) (domain.ExecutiveReport, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ExecutiveReport{}, err
	}
	defer tx.Rollback()
	rep, err := e.Repo.GetReportTx(ctx, tx, tenantID, id)
	if err != nil {
		return rep, err
	}
	if rep.Status != "draft" && rep.Status != "review" {
		return rep, &TransitionError{Entity: "report", From: rep.Status, To: rep.Status}
	}
	if summary != nil {
		rep.ExecutiveSummary = *summary
	}
	if recommendations != nil {
		rep.Recommendations = *recommendations
	}
	rep.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateReport(ctx, tx, rep); err != nil {
		return rep, err
	}
	rep.Version++
	if err := e.Events.Append(ctx, tx, "report.updated", rep.TenantID, "report", rep.ID, actorID, nil); err != nil {
		return rep, err
	}
	return rep, tx.Commit()
}
