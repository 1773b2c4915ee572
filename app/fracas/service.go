// Package fracas implements the work order and failure reporting domain: request validation, work order and
// corrective action state machines, the failure report loop (report, analyze, act, verify, close) and
// preventive maintenance scheduling. All state lives in the store, the service keeps none between calls.
package fracas

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/umputun/fracas/app/enums"
	"github.com/umputun/fracas/app/fracas/request"
	"github.com/umputun/fracas/app/persistence"
)

// Store defines persistence operations used by the service
type Store interface {
	CreateUser(ctx context.Context, u persistence.User) error
	GetUser(ctx context.Context, id string) (persistence.User, error)
	ListUsers(ctx context.Context, activeOnly bool) ([]persistence.User, error)

	ListFailureModes(ctx context.Context) ([]persistence.FailureMode, error)
	ListFailureCauses(ctx context.Context) ([]persistence.FailureCause, error)
	GetFailureMode(ctx context.Context, code string) (persistence.FailureMode, error)
	GetFailureCause(ctx context.Context, code string) (persistence.FailureCause, error)

	CreateAsset(ctx context.Context, a persistence.Asset) error
	GetAsset(ctx context.Context, id string) (persistence.Asset, error)
	ListAssets(ctx context.Context, q persistence.AssetQuery) ([]persistence.Asset, error)
	AssetCategories(ctx context.Context) ([]string, error)

	CreateWorkOrder(ctx context.Context, wo persistence.WorkOrder, actorID, note string) (persistence.WorkOrder, error)
	GetWorkOrder(ctx context.Context, id string) (persistence.WorkOrder, error)
	ListWorkOrders(ctx context.Context, q persistence.WorkOrderQuery) ([]persistence.WorkOrder, error)
	UpdateWorkOrder(ctx context.Context, wo persistence.WorkOrder, expected enums.WorkOrderStatus, ev persistence.WorkOrderEvent) error
	WorkOrderEvents(ctx context.Context, workOrderID string) ([]persistence.WorkOrderEvent, error)
	LastCompletedAt(ctx context.Context, assetID string, tp enums.WorkOrderType) (time.Time, error)

	CreateFailure(ctx context.Context, f persistence.FailureReport, linked *persistence.WorkOrder, actorID string) (persistence.FailureReport, error)
	GetFailure(ctx context.Context, id string) (persistence.FailureReport, error)
	ListFailures(ctx context.Context, q persistence.FailureQuery) ([]persistence.FailureReport, error)
	UpdateFailure(ctx context.Context, f persistence.FailureReport, expected enums.FailureStatus) error

	CreateAction(ctx context.Context, a persistence.CorrectiveAction, advanceFrom, advanceTo enums.FailureStatus) error
	GetAction(ctx context.Context, id string) (persistence.CorrectiveAction, error)
	ListActions(ctx context.Context, q persistence.ActionQuery) ([]persistence.CorrectiveAction, error)
	UpdateAction(ctx context.Context, a persistence.CorrectiveAction, expected enums.ActionStatus) error
}

// Service implements fracas operations on top of the store
type Service struct {
	store     Store
	validator *Validator
	parser    cron.Parser
	now       func() time.Time
}

// Option configures Service
type Option func(s *Service)

// WithClock sets time source, used by tests
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// ScheduleParser returns parser of preventive maintenance schedules: five standard fields or a descriptor
func ScheduleParser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// New makes fracas service
func New(store Store, opts ...Option) *Service {
	parser := ScheduleParser()
	res := &Service{store: store, parser: parser, validator: NewValidator(parser), now: time.Now}
	for _, opt := range opts {
		opt(res)
	}
	return res
}

// CreateUser validates and adds a new active user
func (s *Service) CreateUser(ctx context.Context, req request.CreateUser) (persistence.User, error) {
	req.Name, req.Email = strings.TrimSpace(req.Name), strings.TrimSpace(req.Email)
	if err := s.validator.Validate(req); err != nil {
		return persistence.User{}, err
	}
	u := persistence.User{ID: uuid.NewString(), Name: req.Name, Email: strings.ToLower(req.Email), Role: req.Role,
		Active: true, CreatedAt: s.now()}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			return persistence.User{}, fieldError("email", "unique", "email is already used by another user")
		}
		return persistence.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	log.Printf("[INFO] user %q (%s) created", u.Name, u.Role)
	return u, nil
}

// ListUsers returns users, optionally only active ones
func (s *Service) ListUsers(ctx context.Context, activeOnly bool) ([]persistence.User, error) {
	return s.store.ListUsers(ctx, activeOnly)
}

// ListFailureModes returns failure mode lookup
func (s *Service) ListFailureModes(ctx context.Context) ([]persistence.FailureMode, error) {
	return s.store.ListFailureModes(ctx)
}

// ListFailureCauses returns failure cause lookup
func (s *Service) ListFailureCauses(ctx context.Context) ([]persistence.FailureCause, error) {
	return s.store.ListFailureCauses(ctx)
}

// CreateAsset validates and registers an asset
func (s *Service) CreateAsset(ctx context.Context, req request.CreateAsset) (persistence.Asset, error) {
	req.Tag, req.Name, req.PMSchedule = strings.TrimSpace(req.Tag), strings.TrimSpace(req.Name), strings.TrimSpace(req.PMSchedule)
	if err := s.validator.Validate(req); err != nil {
		return persistence.Asset{}, err
	}
	now := s.now()
	if req.InServiceAt.After(now) {
		return persistence.Asset{}, fieldError("in_service_at", "past", "in_service_at must not be in the future")
	}
	a := persistence.Asset{ID: uuid.NewString(), Tag: req.Tag, Name: req.Name, Category: strings.TrimSpace(req.Category),
		Location: strings.TrimSpace(req.Location), Criticality: req.Criticality, PMSchedule: req.PMSchedule,
		InServiceAt: req.InServiceAt, CreatedAt: now, UpdatedAt: now}
	if err := s.store.CreateAsset(ctx, a); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			return persistence.Asset{}, fieldError("tag", "unique", fmt.Sprintf("asset with tag %q already exists", req.Tag))
		}
		return persistence.Asset{}, fmt.Errorf("failed to create asset: %w", err)
	}
	log.Printf("[INFO] asset %s %q registered", a.Tag, a.Name)
	return a, nil
}

// GetAsset returns asset by id
func (s *Service) GetAsset(ctx context.Context, id string) (persistence.Asset, error) {
	return s.store.GetAsset(ctx, id)
}

// ListAssets returns assets matching the query
func (s *Service) ListAssets(ctx context.Context, q persistence.AssetQuery) ([]persistence.Asset, error) {
	return s.store.ListAssets(ctx, q)
}

// AssetCategories returns distinct asset categories
func (s *Service) AssetCategories(ctx context.Context) ([]string, error) {
	return s.store.AssetCategories(ctx)
}

// checkUser makes sure optional user reference points to an existing user
func (s *Service) checkUser(ctx context.Context, field, id string) error {
	_, err := s.findUser(ctx, field, id)
	return err
}

// checkAssignee is checkUser for fields assigning work, which can't go to a deactivated user
func (s *Service) checkAssignee(ctx context.Context, field, id string) error {
	u, err := s.findUser(ctx, field, id)
	if err != nil || id == "" {
		return err
	}
	if !u.Active {
		return fieldError(field, "active", fmt.Sprintf("%s refers to inactive user %s", field, u.Name))
	}
	return nil
}

func (s *Service) findUser(ctx context.Context, field, id string) (persistence.User, error) {
	if id == "" {
		return persistence.User{}, nil
	}
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return persistence.User{}, fieldError(field, "exists", fmt.Sprintf("%s refers to unknown user", field))
		}
		return persistence.User{}, fmt.Errorf("failed to check %s: %w", field, err)
	}
	return u, nil
}

// checkAsset makes sure asset reference points to an existing asset and returns it
func (s *Service) checkAsset(ctx context.Context, id string) (persistence.Asset, error) {
	a, err := s.store.GetAsset(ctx, id)
	if errors.Is(err, persistence.ErrNotFound) {
		return persistence.Asset{}, fieldError("asset_id", "exists", "asset_id refers to unknown asset")
	}
	if err != nil {
		return persistence.Asset{}, fmt.Errorf("failed to check asset: %w", err)
	}
	return a, nil
}
