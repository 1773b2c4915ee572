// Package request contains input types of fracas service operations.
// Fields are checked by validate tags, json tags name the fields in validation errors and API payloads.
package request

import (
	"time"

	"github.com/umputun/fracas/app/enums"
)

// CreateUser contains parameters for adding a user
type CreateUser struct {
	Name  string     `json:"name" validate:"notblank,max=100"`
	Email string     `json:"email" validate:"omitempty,email,max=200"`
	Role  enums.Role `json:"role" validate:"required,oneof=technician engineer supervisor viewer"`
}

// CreateAsset contains parameters for registering an asset
type CreateAsset struct {
	Tag         string            `json:"tag" validate:"notblank,max=50"`
	Name        string            `json:"name" validate:"notblank,max=200"`
	Category    string            `json:"category" validate:"max=100"`
	Location    string            `json:"location" validate:"max=200"`
	Criticality enums.Criticality `json:"criticality" validate:"required,oneof=low medium high"`
	PMSchedule  string            `json:"pm_schedule" validate:"omitempty,cronspec"`
	InServiceAt time.Time         `json:"in_service_at"`
}

// OpenWorkOrder contains parameters for opening a work order
type OpenWorkOrder struct {
	Title       string              `json:"title" validate:"notblank,max=200"`
	Description string              `json:"description" validate:"max=5000"`
	Type        enums.WorkOrderType `json:"type" validate:"required,oneof=corrective preventive inspection"`
	Priority    enums.Priority      `json:"priority" validate:"required,oneof=low medium high critical"`
	AssetID     string              `json:"asset_id" validate:"required"`
	FailureID   string              `json:"failure_id"`
	AssigneeID  string              `json:"assignee_id"`
	RequestedBy string              `json:"requested_by"`
	DueAt       time.Time           `json:"due_at"`
}

// TransitionWorkOrder contains parameters for moving a work order to another status
type TransitionWorkOrder struct {
	ID         string                `json:"id" validate:"required"`
	To         enums.WorkOrderStatus `json:"to" validate:"required,oneof=open in_progress on_hold completed verified closed cancelled"`
	ActorID    string                `json:"actor_id"`
	Note       string                `json:"note" validate:"max=2000"`
	Resolution string                `json:"resolution" validate:"max=5000"`
	LaborHours float64               `json:"labor_hours" validate:"gte=0,lte=1000"`
}

// AssignWorkOrder contains parameters for changing a work order assignee, empty AssigneeID unassigns
type AssignWorkOrder struct {
	ID         string `json:"id" validate:"required"`
	AssigneeID string `json:"assignee_id"`
	ActorID    string `json:"actor_id"`
}

// ReportFailure contains parameters for reporting a failure
type ReportFailure struct {
	AssetID         string         `json:"asset_id" validate:"required"`
	ReportedBy      string         `json:"reported_by"`
	Title           string         `json:"title" validate:"notblank,max=200"`
	Description     string         `json:"description" validate:"max=5000"`
	Severity        enums.Severity `json:"severity" validate:"required,oneof=minor major critical"`
	OccurredAt      time.Time      `json:"occurred_at"` // now if not set
	DowntimeMinutes int            `json:"downtime_minutes" validate:"gte=0,lte=525600"`
	OpenWorkOrder   bool           `json:"open_work_order"` // open a linked corrective work order
	AssigneeID      string         `json:"assignee_id"`     // assignee of the linked work order
}

// RecordAnalysis contains failure analysis results
type RecordAnalysis struct {
	ID              string `json:"id" validate:"required"`
	FailureMode     string `json:"failure_mode" validate:"required"`
	FailureCause    string `json:"failure_cause"`
	RootCause       string `json:"root_cause" validate:"notblank,max=5000"`
	DowntimeMinutes *int   `json:"downtime_minutes" validate:"omitempty,gte=0,lte=525600"` // nil keeps reported value
}

// AddAction contains parameters for adding a corrective action to a failure
type AddAction struct {
	FailureID   string    `json:"failure_id" validate:"required"`
	Description string    `json:"description" validate:"notblank,max=2000"`
	OwnerID     string    `json:"owner_id"`
	DueAt       time.Time `json:"due_at"`
}

// TransitionAction contains parameters for moving a corrective action to another status
type TransitionAction struct {
	ID   string             `json:"id" validate:"required"`
	To   enums.ActionStatus `json:"to" validate:"required,oneof=open in_progress implemented verified ineffective cancelled"`
	Note string             `json:"note" validate:"max=2000"` // verification note, required when ineffective
}
