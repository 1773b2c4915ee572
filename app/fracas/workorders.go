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

// OpenWorkOrder validates and creates a work order in open status
func (s *Service) OpenWorkOrder(ctx context.Context, req request.OpenWorkOrder) (persistence.WorkOrder, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validator.Validate(req); err != nil {
		return persistence.WorkOrder{}, err
	}
	if _, err := s.checkAsset(ctx, req.AssetID); err != nil {
		return persistence.WorkOrder{}, err
	}
	if err := s.checkAssignee(ctx, "assignee_id", req.AssigneeID); err != nil {
		return persistence.WorkOrder{}, err
	}
	if err := s.checkUser(ctx, "requested_by", req.RequestedBy); err != nil {
		return persistence.WorkOrder{}, err
	}
	if req.FailureID != "" {
		f, err := s.store.GetFailure(ctx, req.FailureID)
		if errors.Is(err, persistence.ErrNotFound) {
			return persistence.WorkOrder{}, fieldError("failure_id", "exists", "failure_id refers to unknown failure")
		}
		if err != nil {
			return persistence.WorkOrder{}, fmt.Errorf("failed to check failure: %w", err)
		}
		if f.AssetID != req.AssetID {
			return persistence.WorkOrder{}, fieldError("failure_id", "asset", "linked failure belongs to another asset")
		}
	}

	wo := persistence.WorkOrder{
		ID: uuid.NewString(), Title: req.Title, Description: strings.TrimSpace(req.Description), Type: req.Type,
		Priority: req.Priority, Status: enums.WorkOrderStatusOpen, AssetID: req.AssetID, FailureID: req.FailureID,
		AssigneeID: req.AssigneeID, RequestedBy: req.RequestedBy, DueAt: req.DueAt, CreatedAt: s.now(),
	}
	res, err := s.store.CreateWorkOrder(ctx, wo, req.RequestedBy, "")
	if err != nil {
		return persistence.WorkOrder{}, fmt.Errorf("failed to open work order: %w", err)
	}
	log.Printf("[INFO] work order %s opened: %s", res.Ref(), res.Title)
	return s.store.GetWorkOrder(ctx, res.ID)
}

// GetWorkOrder returns work order by id
func (s *Service) GetWorkOrder(ctx context.Context, id string) (persistence.WorkOrder, error) {
	return s.store.GetWorkOrder(ctx, id)
}

// ListWorkOrders returns work orders matching the query
func (s *Service) ListWorkOrders(ctx context.Context, q persistence.WorkOrderQuery) ([]persistence.WorkOrder, error) {
	q.Search = strings.TrimSpace(q.Search)
	return s.store.ListWorkOrders(ctx, q)
}

// WorkOrderHistory returns status events of the work order, oldest first
func (s *Service) WorkOrderHistory(ctx context.Context, id string) ([]persistence.WorkOrderEvent, error) {
	if _, err := s.store.GetWorkOrder(ctx, id); err != nil {
		return nil, err
	}
	return s.store.WorkOrderEvents(ctx, id)
}

// TransitionWorkOrder moves the work order to the requested status, setting lifecycle timestamps
// and recording the change in its history
func (s *Service) TransitionWorkOrder(ctx context.Context, req request.TransitionWorkOrder) (persistence.WorkOrder, error) {
	req.Resolution, req.Note = strings.TrimSpace(req.Resolution), strings.TrimSpace(req.Note)
	if err := s.validator.Validate(req); err != nil {
		return persistence.WorkOrder{}, err
	}
	if err := s.checkUser(ctx, "actor_id", req.ActorID); err != nil {
		return persistence.WorkOrder{}, err
	}
	wo, err := s.store.GetWorkOrder(ctx, req.ID)
	if err != nil {
		return persistence.WorkOrder{}, err
	}

	from := wo.Status
	if !CanTransitionWorkOrder(from, req.To) {
		return persistence.WorkOrder{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, req.To)
	}
	if err := s.applyTransition(&wo, req); err != nil {
		return persistence.WorkOrder{}, err
	}

	ev := persistence.WorkOrderEvent{FromStatus: from, ToStatus: req.To, ActorID: req.ActorID, Note: req.Note,
		CreatedAt: wo.UpdatedAt}
	if err := s.store.UpdateWorkOrder(ctx, wo, from, ev); err != nil {
		return persistence.WorkOrder{}, fmt.Errorf("failed to save work order %s: %w", wo.Ref(), err)
	}
	log.Printf("[INFO] work order %s: %s -> %s", wo.Ref(), from, req.To)
	return s.store.GetWorkOrder(ctx, wo.ID)
}

// applyTransition sets status and lifecycle fields of the work order for the target status
func (s *Service) applyTransition(wo *persistence.WorkOrder, req request.TransitionWorkOrder) error {
	now := s.now()
	switch req.To {
	case enums.WorkOrderStatusInProgress:
		if wo.StartedAt.IsZero() {
			wo.StartedAt = now
		}
		if wo.Status == enums.WorkOrderStatusCompleted { // rework
			wo.CompletedAt = time.Time{}
		}
	case enums.WorkOrderStatusCompleted:
		if req.Resolution != "" {
			wo.Resolution = req.Resolution
		}
		if wo.Type == enums.WorkOrderTypeCorrective && wo.Resolution == "" {
			return fieldError("resolution", "required", "resolution is required to complete corrective work")
		}
		wo.CompletedAt = now
	case enums.WorkOrderStatusVerified:
		wo.VerifiedAt = now
	case enums.WorkOrderStatusClosed, enums.WorkOrderStatusCancelled:
		wo.ClosedAt = now
	}
	wo.LaborHours += req.LaborHours
	wo.Status = req.To
	wo.UpdatedAt = now
	return nil
}

// AssignWorkOrder changes assignee of an active work order, the change is recorded in history
func (s *Service) AssignWorkOrder(ctx context.Context, req request.AssignWorkOrder) (persistence.WorkOrder, error) {
	if err := s.validator.Validate(req); err != nil {
		return persistence.WorkOrder{}, err
	}
	if err := s.checkAssignee(ctx, "assignee_id", req.AssigneeID); err != nil {
		return persistence.WorkOrder{}, err
	}
	wo, err := s.store.GetWorkOrder(ctx, req.ID)
	if err != nil {
		return persistence.WorkOrder{}, err
	}
	if !wo.Status.IsActive() {
		return persistence.WorkOrder{}, fmt.Errorf("%w: can't assign %s work order", ErrInvalidTransition, wo.Status)
	}
	if wo.AssigneeID == req.AssigneeID {
		return wo, nil
	}

	note := "unassigned"
	if req.AssigneeID != "" {
		u, err := s.store.GetUser(ctx, req.AssigneeID)
		if err != nil {
			return persistence.WorkOrder{}, fmt.Errorf("failed to get assignee: %w", err)
		}
		note = "assigned to " + u.Name
	}
	wo.AssigneeID = req.AssigneeID
	wo.UpdatedAt = s.now()
	ev := persistence.WorkOrderEvent{FromStatus: wo.Status, ToStatus: wo.Status, ActorID: req.ActorID, Note: note,
		CreatedAt: wo.UpdatedAt}
	if err := s.store.UpdateWorkOrder(ctx, wo, wo.Status, ev); err != nil {
		return persistence.WorkOrder{}, fmt.Errorf("failed to assign work order %s: %w", wo.Ref(), err)
	}
	log.Printf("[INFO] work order %s %s", wo.Ref(), note)
	return s.store.GetWorkOrder(ctx, wo.ID)
}
