package fracas

import (
	"context"
	"fmt"
	"sort"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/google/uuid"

	"github.com/umputun/fracas/app/enums"
	"github.com/umputun/fracas/app/persistence"
)

// PMStatus is the preventive maintenance state of a scheduled asset
type PMStatus struct {
	Asset        persistence.Asset `json:"asset"`
	LastDone     time.Time         `json:"last_done,omitzero"` // last completed preventive work order
	NextDue      time.Time         `json:"next_due"`
	Overdue      bool              `json:"overdue"`
	OpenOrderID  string            `json:"open_order_id,omitempty"`
	OpenOrderRef string            `json:"open_order_ref,omitempty"`
}

// PreventiveDue evaluates preventive maintenance schedules of all scheduled assets, earliest due first.
// Next due date follows the schedule from the last completed preventive work order, or from the asset
// in-service date (creation date if unknown) when none was done yet.
func (s *Service) PreventiveDue(ctx context.Context) ([]PMStatus, error) {
	assets, err := s.store.ListAssets(ctx, persistence.AssetQuery{Scheduled: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled assets: %w", err)
	}
	now := s.now()
	res := make([]PMStatus, 0, len(assets))
	for _, a := range assets {
		st, err := s.pmStatus(ctx, a, now)
		if err != nil {
			log.Printf("[WARN] can't evaluate preventive schedule of %s: %v", a.Tag, err)
			continue
		}
		res = append(res, st)
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].NextDue.Before(res[j].NextDue) })
	return res, nil
}

func (s *Service) pmStatus(ctx context.Context, a persistence.Asset, now time.Time) (PMStatus, error) {
	sched, err := s.parser.Parse(a.PMSchedule)
	if err != nil {
		return PMStatus{}, fmt.Errorf("invalid schedule %q: %w", a.PMSchedule, err)
	}
	last, err := s.store.LastCompletedAt(ctx, a.ID, enums.WorkOrderTypePreventive)
	if err != nil {
		return PMStatus{}, err
	}
	base := last
	if base.IsZero() {
		base = a.InServiceAt
	}
	if base.IsZero() {
		base = a.CreatedAt
	}

	res := PMStatus{Asset: a, LastDone: last, NextDue: sched.Next(base)}
	res.Overdue = res.NextDue.Before(now)

	open, err := s.store.ListWorkOrders(ctx, persistence.WorkOrderQuery{AssetID: a.ID,
		Type: enums.WorkOrderTypePreventive, ActiveOnly: true, Limit: 1})
	if err != nil {
		return PMStatus{}, err
	}
	if len(open) > 0 {
		res.OpenOrderID, res.OpenOrderRef = open[0].ID, open[0].Ref()
	}
	return res, nil
}

// GeneratePreventiveWorkOrder opens a preventive work order for the asset, due at the next scheduled date.
// Only one preventive work order per asset can be active at a time.
func (s *Service) GeneratePreventiveWorkOrder(ctx context.Context, assetID, actorID string) (persistence.WorkOrder, error) {
	a, err := s.store.GetAsset(ctx, assetID)
	if err != nil {
		return persistence.WorkOrder{}, err
	}
	if a.PMSchedule == "" {
		return persistence.WorkOrder{}, fmt.Errorf("%w: %s", ErrPMNotScheduled, a.Tag)
	}
	if err := s.checkUser(ctx, "actor_id", actorID); err != nil {
		return persistence.WorkOrder{}, err
	}
	st, err := s.pmStatus(ctx, a, s.now())
	if err != nil {
		return persistence.WorkOrder{}, err
	}
	if st.OpenOrderID != "" {
		return persistence.WorkOrder{}, fmt.Errorf("%w: %s for %s", ErrPMAlreadyOpen, st.OpenOrderRef, a.Tag)
	}

	wo := persistence.WorkOrder{
		ID: uuid.NewString(), Title: fmt.Sprintf("Preventive maintenance %s %s", a.Tag, a.Name),
		Description: fmt.Sprintf("scheduled by %q", a.PMSchedule), Type: enums.WorkOrderTypePreventive,
		Priority: criticalityPriority(a.Criticality), Status: enums.WorkOrderStatusOpen, AssetID: a.ID,
		RequestedBy: actorID, DueAt: st.NextDue, CreatedAt: s.now(),
	}
	res, err := s.store.CreateWorkOrder(ctx, wo, actorID, "generated from schedule")
	if err != nil {
		return persistence.WorkOrder{}, fmt.Errorf("failed to open preventive work order for %s: %w", a.Tag, err)
	}
	log.Printf("[INFO] preventive work order %s opened for %s, due %s", res.Ref(), a.Tag, st.NextDue.Format(time.DateOnly))
	return s.store.GetWorkOrder(ctx, res.ID)
}

func criticalityPriority(c enums.Criticality) enums.Priority {
	switch c {
	case enums.CriticalityHigh:
		return enums.PriorityHigh
	case enums.CriticalityLow:
		return enums.PriorityLow
	default:
		return enums.PriorityMedium
	}
}
