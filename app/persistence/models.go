package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/umputun/fracas/app/enums"
)

// User is a person who requests, performs or owns work
type User struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email,omitempty"`
	Role      enums.Role `json:"role"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
}

// FailureMode is a lookup entry classifying how equipment failed
type FailureMode struct {
	Code        string `json:"code" db:"code"`
	Name        string `json:"name" db:"name"`
	Category    string `json:"category" db:"category"`
	Description string `json:"description" db:"description"`
}

// FailureCause is a lookup entry classifying why equipment failed
type FailureCause struct {
	Code        string `json:"code" db:"code"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
}

// Asset is a piece of equipment work orders and failures refer to
type Asset struct {
	ID          string            `json:"id"`
	Tag         string            `json:"tag"`
	Name        string            `json:"name"`
	Category    string            `json:"category"`
	Location    string            `json:"location"`
	Criticality enums.Criticality `json:"criticality"`
	PMSchedule  string            `json:"pm_schedule,omitempty"`
	InServiceAt time.Time         `json:"in_service_at,omitzero"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// WorkOrder is a unit of maintenance work with its lifecycle timestamps
type WorkOrder struct {
	ID          string                `json:"id"`
	Number      int64                 `json:"number"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Type        enums.WorkOrderType   `json:"type"`
	Priority    enums.Priority        `json:"priority"`
	Status      enums.WorkOrderStatus `json:"status"`
	AssetID     string                `json:"asset_id"`
	FailureID   string                `json:"failure_id,omitempty"`
	AssigneeID  string                `json:"assignee_id,omitempty"`
	RequestedBy string                `json:"requested_by,omitempty"`
	Resolution  string                `json:"resolution,omitempty"`
	LaborHours  float64               `json:"labor_hours"`
	DueAt       time.Time             `json:"due_at,omitzero"`
	StartedAt   time.Time             `json:"started_at,omitzero"`
	CompletedAt time.Time             `json:"completed_at,omitzero"`
	VerifiedAt  time.Time             `json:"verified_at,omitzero"`
	ClosedAt    time.Time             `json:"closed_at,omitzero"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`

	// joined for display, ignored on writes
	AssetTag      string `json:"asset_tag,omitempty"`
	AssetName     string `json:"asset_name,omitempty"`
	FailureNumber int64  `json:"failure_number,omitempty"`
	AssigneeName  string `json:"assignee_name,omitempty"`
	RequesterName string `json:"requester_name,omitempty"`
}

// Ref returns human-readable work order number
func (w WorkOrder) Ref() string { return fmt.Sprintf("WO-%06d", w.Number) }

// Overdue reports whether an active work order is past its due date
func (w WorkOrder) Overdue(now time.Time) bool {
	return w.Status.IsActive() && !w.DueAt.IsZero() && w.DueAt.Before(now)
}

// RepairTime returns time spent from start to completion, zero if not completed
func (w WorkOrder) RepairTime() time.Duration {
	if w.StartedAt.IsZero() || w.CompletedAt.IsZero() {
		return 0
	}
	return w.CompletedAt.Sub(w.StartedAt)
}

// WorkOrderEvent is a status history entry of a work order
type WorkOrderEvent struct {
	ID          int64                 `json:"id"`
	WorkOrderID string                `json:"work_order_id"`
	FromStatus  enums.WorkOrderStatus `json:"from_status,omitempty"`
	ToStatus    enums.WorkOrderStatus `json:"to_status"`
	ActorID     string                `json:"actor_id,omitempty"`
	ActorName   string                `json:"actor_name,omitempty"`
	Note        string                `json:"note,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

// FailureReport records an equipment failure and its analysis
type FailureReport struct {
	ID              string              `json:"id"`
	Number          int64               `json:"number"`
	AssetID         string              `json:"asset_id"`
	ReportedBy      string              `json:"reported_by,omitempty"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	Severity        enums.Severity      `json:"severity"`
	Status          enums.FailureStatus `json:"status"`
	FailureMode     string              `json:"failure_mode,omitempty"`
	FailureCause    string              `json:"failure_cause,omitempty"`
	RootCause       string              `json:"root_cause,omitempty"`
	DowntimeMinutes int                 `json:"downtime_minutes"`
	OccurredAt      time.Time           `json:"occurred_at"`
	ClosedAt        time.Time           `json:"closed_at,omitzero"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`

	// joined for display
	AssetTag     string `json:"asset_tag,omitempty"`
	AssetName    string `json:"asset_name,omitempty"`
	ReporterName string `json:"reporter_name,omitempty"`
	ModeName     string `json:"mode_name,omitempty"`
	CauseName    string `json:"cause_name,omitempty"`
}

// Ref returns human-readable failure report number
func (f FailureReport) Ref() string { return fmt.Sprintf("FR-%06d", f.Number) }

// Analyzed reports whether failure mode and root cause are recorded
func (f FailureReport) Analyzed() bool { return f.FailureMode != "" && f.RootCause != "" }

// CorrectiveAction is a remediation of a failure, tracked to verified effectiveness
type CorrectiveAction struct {
	ID               string             `json:"id"`
	FailureID        string             `json:"failure_id"`
	Description      string             `json:"description"`
	OwnerID          string             `json:"owner_id,omitempty"`
	Status           enums.ActionStatus `json:"status"`
	DueAt            time.Time          `json:"due_at,omitzero"`
	ImplementedAt    time.Time          `json:"implemented_at,omitzero"`
	VerifiedAt       time.Time          `json:"verified_at,omitzero"`
	VerificationNote string             `json:"verification_note,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`

	// joined for display
	FailureNumber int64  `json:"failure_number,omitempty"`
	FailureTitle  string `json:"failure_title,omitempty"`
	OwnerName     string `json:"owner_name,omitempty"`
}

// Overdue reports whether an unfinished action is past its due date
func (a CorrectiveAction) Overdue(now time.Time) bool {
	return !a.Status.IsDone() && !a.DueAt.IsZero() && a.DueAt.Before(now)
}

// rows as stored, converted to public models after scan

type userRow struct {
	ID        string         `db:"id"`
	Name      string         `db:"name"`
	Email     sql.NullString `db:"email"`
	Role      string         `db:"role"`
	Active    bool           `db:"active"`
	CreatedAt int64          `db:"created_at"`
}

func (r userRow) model() User {
	return User{ID: r.ID, Name: r.Name, Email: r.Email.String, Role: enums.Role(r.Role), Active: r.Active,
		CreatedAt: time.Unix(r.CreatedAt, 0)}
}

type assetRow struct {
	ID          string        `db:"id"`
	Tag         string        `db:"tag"`
	Name        string        `db:"name"`
	Category    string        `db:"category"`
	Location    string        `db:"location"`
	Criticality string        `db:"criticality"`
	PMSchedule  string        `db:"pm_schedule"`
	InServiceAt sql.NullInt64 `db:"in_service_at"`
	CreatedAt   int64         `db:"created_at"`
	UpdatedAt   int64         `db:"updated_at"`
}

func (r assetRow) model() Asset {
	return Asset{
		ID: r.ID, Tag: r.Tag, Name: r.Name, Category: r.Category, Location: r.Location,
		Criticality: enums.Criticality(r.Criticality), PMSchedule: r.PMSchedule,
		InServiceAt: fromUnix(r.InServiceAt), CreatedAt: time.Unix(r.CreatedAt, 0), UpdatedAt: time.Unix(r.UpdatedAt, 0),
	}
}

type workOrderRow struct {
	ID          string         `db:"id"`
	Number      int64          `db:"number"`
	Title       string         `db:"title"`
	Description string         `db:"description"`
	Type        string         `db:"type"`
	Priority    string         `db:"priority"`
	Status      string         `db:"status"`
	AssetID     string         `db:"asset_id"`
	FailureID   sql.NullString `db:"failure_id"`
	AssigneeID  sql.NullString `db:"assignee_id"`
	RequestedBy sql.NullString `db:"requested_by"`
	Resolution  string         `db:"resolution"`
	LaborHours  float64        `db:"labor_hours"`
	DueAt       sql.NullInt64  `db:"due_at"`
	StartedAt   sql.NullInt64  `db:"started_at"`
	CompletedAt sql.NullInt64  `db:"completed_at"`
	VerifiedAt  sql.NullInt64  `db:"verified_at"`
	ClosedAt    sql.NullInt64  `db:"closed_at"`
	CreatedAt   int64          `db:"created_at"`
	UpdatedAt   int64          `db:"updated_at"`

	AssetTag      sql.NullString `db:"asset_tag"`
	AssetName     sql.NullString `db:"asset_name"`
	FailureNumber sql.NullInt64  `db:"failure_number"`
	AssigneeName  sql.NullString `db:"assignee_name"`
	RequesterName sql.NullString `db:"requester_name"`
}

func (r workOrderRow) model() WorkOrder {
	return WorkOrder{
		ID: r.ID, Number: r.Number, Title: r.Title, Description: r.Description,
		Type: enums.WorkOrderType(r.Type), Priority: enums.Priority(r.Priority), Status: enums.WorkOrderStatus(r.Status),
		AssetID: r.AssetID, FailureID: r.FailureID.String, AssigneeID: r.AssigneeID.String,
		RequestedBy: r.RequestedBy.String, Resolution: r.Resolution, LaborHours: r.LaborHours,
		DueAt: fromUnix(r.DueAt), StartedAt: fromUnix(r.StartedAt), CompletedAt: fromUnix(r.CompletedAt),
		VerifiedAt: fromUnix(r.VerifiedAt), ClosedAt: fromUnix(r.ClosedAt),
		CreatedAt: time.Unix(r.CreatedAt, 0), UpdatedAt: time.Unix(r.UpdatedAt, 0),
		AssetTag: r.AssetTag.String, AssetName: r.AssetName.String, FailureNumber: r.FailureNumber.Int64,
		AssigneeName: r.AssigneeName.String, RequesterName: r.RequesterName.String,
	}
}

type eventRow struct {
	ID          int64          `db:"id"`
	WorkOrderID string         `db:"work_order_id"`
	FromStatus  string         `db:"from_status"`
	ToStatus    string         `db:"to_status"`
	ActorID     sql.NullString `db:"actor_id"`
	ActorName   sql.NullString `db:"actor_name"`
	Note        string         `db:"note"`
	CreatedAt   int64          `db:"created_at"`
}

func (r eventRow) model() WorkOrderEvent {
	return WorkOrderEvent{
		ID: r.ID, WorkOrderID: r.WorkOrderID, FromStatus: enums.WorkOrderStatus(r.FromStatus),
		ToStatus: enums.WorkOrderStatus(r.ToStatus), ActorID: r.ActorID.String, ActorName: r.ActorName.String,
		Note: r.Note, CreatedAt: time.Unix(r.CreatedAt, 0),
	}
}

type failureRow struct {
	ID              string         `db:"id"`
	Number          int64          `db:"number"`
	AssetID         string         `db:"asset_id"`
	ReportedBy      sql.NullString `db:"reported_by"`
	Title           string         `db:"title"`
	Description     string         `db:"description"`
	Severity        string         `db:"severity"`
	Status          string         `db:"status"`
	FailureMode     sql.NullString `db:"failure_mode"`
	FailureCause    sql.NullString `db:"failure_cause"`
	RootCause       string         `db:"root_cause"`
	DowntimeMinutes int            `db:"downtime_minutes"`
	OccurredAt      int64          `db:"occurred_at"`
	ClosedAt        sql.NullInt64  `db:"closed_at"`
	CreatedAt       int64          `db:"created_at"`
	UpdatedAt       int64          `db:"updated_at"`

	AssetTag     sql.NullString `db:"asset_tag"`
	AssetName    sql.NullString `db:"asset_name"`
	ReporterName sql.NullString `db:"reporter_name"`
	ModeName     sql.NullString `db:"mode_name"`
	CauseName    sql.NullString `db:"cause_name"`
}

func (r failureRow) model() FailureReport {
	return FailureReport{
		ID: r.ID, Number: r.Number, AssetID: r.AssetID, ReportedBy: r.ReportedBy.String, Title: r.Title,
		Description: r.Description, Severity: enums.Severity(r.Severity), Status: enums.FailureStatus(r.Status),
		FailureMode: r.FailureMode.String, FailureCause: r.FailureCause.String, RootCause: r.RootCause,
		DowntimeMinutes: r.DowntimeMinutes, OccurredAt: time.Unix(r.OccurredAt, 0), ClosedAt: fromUnix(r.ClosedAt),
		CreatedAt: time.Unix(r.CreatedAt, 0), UpdatedAt: time.Unix(r.UpdatedAt, 0),
		AssetTag: r.AssetTag.String, AssetName: r.AssetName.String, ReporterName: r.ReporterName.String,
		ModeName: r.ModeName.String, CauseName: r.CauseName.String,
	}
}

type actionRow struct {
	ID               string         `db:"id"`
	FailureID        string         `db:"failure_id"`
	Description      string         `db:"description"`
	OwnerID          sql.NullString `db:"owner_id"`
	Status           string         `db:"status"`
	DueAt            sql.NullInt64  `db:"due_at"`
	ImplementedAt    sql.NullInt64  `db:"implemented_at"`
	VerifiedAt       sql.NullInt64  `db:"verified_at"`
	VerificationNote string         `db:"verification_note"`
	CreatedAt        int64          `db:"created_at"`
	UpdatedAt        int64          `db:"updated_at"`

	FailureNumber sql.NullInt64  `db:"failure_number"`
	FailureTitle  sql.NullString `db:"failure_title"`
	OwnerName     sql.NullString `db:"owner_name"`
}

func (r actionRow) model() CorrectiveAction {
	return CorrectiveAction{
		ID: r.ID, FailureID: r.FailureID, Description: r.Description, OwnerID: r.OwnerID.String,
		Status: enums.ActionStatus(r.Status), DueAt: fromUnix(r.DueAt), ImplementedAt: fromUnix(r.ImplementedAt),
		VerifiedAt: fromUnix(r.VerifiedAt), VerificationNote: r.VerificationNote,
		CreatedAt: time.Unix(r.CreatedAt, 0), UpdatedAt: time.Unix(r.UpdatedAt, 0),
		FailureNumber: r.FailureNumber.Int64, FailureTitle: r.FailureTitle.String, OwnerName: r.OwnerName.String,
	}
}
