package fracas

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/google/uuid"

	"github.com/umputun/fracas/app/enums"
	"github.com/umputun/fracas/app/fracas/request"
	"github.com/umputun/fracas/app/persistence"
)

// ReportFailure records a failure in reported status. With req.OpenWorkOrder set it also opens a corrective
// work order for the failed asset, prioritized by the failure severity.
func (s *Service) ReportFailure(ctx context.Context, req request.ReportFailure) (persistence.FailureReport, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validator.Validate(req); err != nil {
		return persistence.FailureReport{}, err
	}
	now := s.now()
	if req.OccurredAt.IsZero() {
		req.OccurredAt = now
	}
	if req.OccurredAt.After(now.Add(time.Minute)) {
		return persistence.FailureReport{}, fieldError("occurred_at", "past", "occurred_at must not be in the future")
	}
	asset, err := s.checkAsset(ctx, req.AssetID)
	if err != nil {
		return persistence.FailureReport{}, err
	}
	if err := s.checkUser(ctx, "reported_by", req.ReportedBy); err != nil {
		return persistence.FailureReport{}, err
	}
	if err := s.checkAssignee(ctx, "assignee_id", req.AssigneeID); err != nil {
		return persistence.FailureReport{}, err
	}

	f := persistence.FailureReport{
		ID: uuid.NewString(), AssetID: req.AssetID, ReportedBy: req.ReportedBy, Title: req.Title,
		Description: strings.TrimSpace(req.Description), Severity: req.Severity, Status: enums.FailureStatusReported,
		DowntimeMinutes: req.DowntimeMinutes, OccurredAt: req.OccurredAt, CreatedAt: now,
	}

	var linked *persistence.WorkOrder
	if req.OpenWorkOrder {
		linked = &persistence.WorkOrder{
			ID: uuid.NewString(), Title: fmt.Sprintf("Repair %s: %s", asset.Tag, req.Title), Description: f.Description,
			Type: enums.WorkOrderTypeCorrective, Priority: req.Severity.Priority(), Status: enums.WorkOrderStatusOpen,
			AssetID: req.AssetID, AssigneeID: req.AssigneeID, RequestedBy: req.ReportedBy, CreatedAt: now,
		}
	}

	res, err := s.store.CreateFailure(ctx, f, linked, req.ReportedBy)
	if err != nil {
		return persistence.FailureReport{}, fmt.Errorf("failed to report failure: %w", err)
	}
	if linked != nil {
		log.Printf("[INFO] failure %s reported on %s, work order %s opened", res.Ref(), asset.Tag, linked.Ref())
	} else {
		log.Printf("[INFO] failure %s reported on %s", res.Ref(), asset.Tag)
	}
	return s.store.GetFailure(ctx, res.ID)
}

// GetFailure returns failure report by id
func (s *Service) GetFailure(ctx context.Context, id string) (persistence.FailureReport, error) {
	return s.store.GetFailure(ctx, id)
}

// ListFailures returns failure reports matching the query
func (s *Service) ListFailures(ctx context.Context, q persistence.FailureQuery) ([]persistence.FailureReport, error) {
	q.Search = strings.TrimSpace(q.Search)
	return s.store.ListFailures(ctx, q)
}

// RecordAnalysis stores failure mode, cause and root cause. The first analysis moves a reported failure
// to analyzing, later calls refine the analysis without changing status.
func (s *Service) RecordAnalysis(ctx context.Context, req request.RecordAnalysis) (persistence.FailureReport, error) {
	req.RootCause = strings.TrimSpace(req.RootCause)
	if err := s.validator.Validate(req); err != nil {
		return persistence.FailureReport{}, err
	}
	f, err := s.store.GetFailure(ctx, req.ID)
	if err != nil {
		return persistence.FailureReport{}, err
	}
	if f.Status == enums.FailureStatusClosed {
		return persistence.FailureReport{}, fmt.Errorf("%w: %s", ErrFailureClosed, f.Ref())
	}
	if _, err := s.store.GetFailureMode(ctx, req.FailureMode); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return persistence.FailureReport{}, fieldError("failure_mode", "exists", "failure_mode refers to unknown mode")
		}
		return persistence.FailureReport{}, fmt.Errorf("failed to check failure mode: %w", err)
	}
	if req.FailureCause != "" {
		if _, err := s.store.GetFailureCause(ctx, req.FailureCause); err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				return persistence.FailureReport{}, fieldError("failure_cause", "exists", "failure_cause refers to unknown cause")
			}
			return persistence.FailureReport{}, fmt.Errorf("failed to check failure cause: %w", err)
		}
	}

	expected := f.Status
	if f.Status == enums.FailureStatusReported {
		f.Status = enums.FailureStatusAnalyzing
	}
	f.FailureMode, f.FailureCause, f.RootCause = req.FailureMode, req.FailureCause, req.RootCause
	if req.DowntimeMinutes != nil {
		f.DowntimeMinutes = *req.DowntimeMinutes
	}
	f.UpdatedAt = s.now()
	if err := s.store.UpdateFailure(ctx, f, expected); err != nil {
		return persistence.FailureReport{}, fmt.Errorf("failed to save analysis of %s: %w", f.Ref(), err)
	}
	log.Printf("[INFO] failure %s analyzed, mode %s", f.Ref(), f.FailureMode)
	return s.store.GetFailure(ctx, f.ID)
}

// CloseFailure closes the FRACAS loop of a failure. Requires completed analysis and every corrective action
// either verified or cancelled.
func (s *Service) CloseFailure(ctx context.Context, id string) (persistence.FailureReport, error) {
	f, err := s.store.GetFailure(ctx, id)
	if err != nil {
		return persistence.FailureReport{}, err
	}
	switch f.Status {
	case enums.FailureStatusClosed:
		return persistence.FailureReport{}, fmt.Errorf("%w: %s", ErrFailureClosed, f.Ref())
	case enums.FailureStatusReported:
		return persistence.FailureReport{}, fmt.Errorf("%w: %s is not analyzed", ErrAnalysisIncomplete, f.Ref())
	}
	if !f.Analyzed() {
		return persistence.FailureReport{}, fmt.Errorf("%w: %s needs failure mode and root cause", ErrAnalysisIncomplete, f.Ref())
	}

	actions, err := s.store.ListActions(ctx, persistence.ActionQuery{FailureID: f.ID})
	if err != nil {
		return persistence.FailureReport{}, fmt.Errorf("failed to get actions of %s: %w", f.Ref(), err)
	}
	pending := 0
	for _, a := range actions {
		if a.Status != enums.ActionStatusVerified && a.Status != enums.ActionStatusCancelled {
			pending++
		}
	}
	if pending > 0 {
		return persistence.FailureReport{}, fmt.Errorf("%w: %d pending on %s", ErrOpenActions, pending, f.Ref())
	}

	expected := f.Status
	now := s.now()
	f.Status, f.ClosedAt, f.UpdatedAt = enums.FailureStatusClosed, now, now
	if err := s.store.UpdateFailure(ctx, f, expected); err != nil {
		return persistence.FailureReport{}, fmt.Errorf("failed to close %s: %w", f.Ref(), err)
	}
	log.Printf("[INFO] failure %s closed", f.Ref())
	return s.store.GetFailure(ctx, f.ID)
}

// ReopenFailure moves a closed failure back to analyzing, e.g. when the failure recurs
func (s *Service) ReopenFailure(ctx context.Context, id string) (persistence.FailureReport, error) {
	f, err := s.store.GetFailure(ctx, id)
	if err != nil {
		return persistence.FailureReport{}, err
	}
	if f.Status != enums.FailureStatusClosed {
		return persistence.FailureReport{}, fmt.Errorf("%w: %s is %s, not closed", ErrInvalidTransition, f.Ref(), f.Status)
	}
	f.Status, f.ClosedAt, f.UpdatedAt = enums.FailureStatusAnalyzing, time.Time{}, s.now()
	if err := s.store.UpdateFailure(ctx, f, enums.FailureStatusClosed); err != nil {
		return persistence.FailureReport{}, fmt.Errorf("failed to reopen %s: %w", f.Ref(), err)
	}
	log.Printf("[INFO] failure %s reopened", f.Ref())
	return s.store.GetFailure(ctx, f.ID)
}

// AddCorrectiveAction adds an open corrective action to an analyzed failure. The first action moves
// the failure from analyzing to corrective_action.
func (s *Service) AddCorrectiveAction(ctx context.Context, req request.AddAction) (persistence.CorrectiveAction, error) {
	req.Description = strings.TrimSpace(req.Description)
	if err := s.validator.Validate(req); err != nil {
		return persistence.CorrectiveAction{}, err
	}
	if err := s.checkAssignee(ctx, "owner_id", req.OwnerID); err != nil {
		return persistence.CorrectiveAction{}, err
	}
	f, err := s.store.GetFailure(ctx, req.FailureID)
	if err != nil {
		return persistence.CorrectiveAction{}, err
	}

	var advanceFrom, advanceTo enums.FailureStatus
	switch f.Status {
	case enums.FailureStatusClosed:
		return persistence.CorrectiveAction{}, fmt.Errorf("%w: %s", ErrFailureClosed, f.Ref())
	case enums.FailureStatusReported:
		return persistence.CorrectiveAction{}, fmt.Errorf("%w: analyze %s before adding actions", ErrAnalysisIncomplete, f.Ref())
	case enums.FailureStatusAnalyzing:
		advanceFrom, advanceTo = enums.FailureStatusAnalyzing, enums.FailureStatusCorrectiveAction
	}

	a := persistence.CorrectiveAction{ID: uuid.NewString(), FailureID: f.ID, Description: req.Description,
		OwnerID: req.OwnerID, Status: enums.ActionStatusOpen, DueAt: req.DueAt, CreatedAt: s.now()}
	if err := s.store.CreateAction(ctx, a, advanceFrom, advanceTo); err != nil {
		return persistence.CorrectiveAction{}, fmt.Errorf("failed to add action to %s: %w", f.Ref(), err)
	}
	log.Printf("[INFO] corrective action added to %s", f.Ref())
	return s.store.GetAction(ctx, a.ID)
}

// ListActions returns corrective actions matching the query
func (s *Service) ListActions(ctx context.Context, q persistence.ActionQuery) ([]persistence.CorrectiveAction, error) {
	return s.store.ListActions(ctx, q)
}

// TransitionAction moves a corrective action to the requested status. Verification outcomes
// (verified, ineffective) record verification time and note.
func (s *Service) TransitionAction(ctx context.Context, req request.TransitionAction) (persistence.CorrectiveAction, error) {
	req.Note = strings.TrimSpace(req.Note)
	if err := s.validator.Validate(req); err != nil {
		return persistence.CorrectiveAction{}, err
	}
	a, err := s.store.GetAction(ctx, req.ID)
	if err != nil {
		return persistence.CorrectiveAction{}, err
	}
	from := a.Status
	if !CanTransitionAction(from, req.To) {
		return persistence.CorrectiveAction{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, req.To)
	}

	now := s.now()
	switch req.To {
	case enums.ActionStatusImplemented:
		a.ImplementedAt = now
	case enums.ActionStatusVerified, enums.ActionStatusIneffective:
		if req.To == enums.ActionStatusIneffective && req.Note == "" {
			return persistence.CorrectiveAction{}, fieldError("note", "required", "note is required for ineffective action")
		}
		a.VerifiedAt = now
		a.VerificationNote = req.Note
	case enums.ActionStatusInProgress:
		if from == enums.ActionStatusIneffective { // another attempt
			a.ImplementedAt, a.VerifiedAt = time.Time{}, time.Time{}
		}
	}
	a.Status, a.UpdatedAt = req.To, now

	if err := s.store.UpdateAction(ctx, a, from); err != nil {
		return persistence.CorrectiveAction{}, fmt.Errorf("failed to save corrective action: %w", err)
	}
	log.Printf("[INFO] corrective action %s of FR-%06d: %s -> %s", a.ID, a.FailureNumber, from, req.To)
	return s.store.GetAction(ctx, a.ID)
}
