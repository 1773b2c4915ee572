// Package enums provides type-safe enumeration types shared by persistence, domain and web layers.
//
// Every enum is a string type stored as-is in the database and rendered as-is in JSON, so no
// custom Scan/Value or Marshal methods are needed. Each type provides:
//   - exported constants for each value (e.g. WorkOrderStatusOpen)
//   - a *Values slice listing all values in display order
//   - Parse* for string-to-enum conversion with validation
//   - String and Title for display
//
// Usage:
//
//	status, err := enums.ParseWorkOrderStatus("in_progress")
//	if err != nil {
//	    // handle invalid input
//	}
//	fmt.Println(status.Title()) // "In Progress"
package enums

import (
	"fmt"
	"strings"
)

// WorkOrderStatus is the lifecycle state of a work order
type WorkOrderStatus string

// work order statuses
const (
	WorkOrderStatusOpen       WorkOrderStatus = "open"
	WorkOrderStatusInProgress WorkOrderStatus = "in_progress"
	WorkOrderStatusOnHold     WorkOrderStatus = "on_hold"
	WorkOrderStatusCompleted  WorkOrderStatus = "completed"
	WorkOrderStatusVerified   WorkOrderStatus = "verified"
	WorkOrderStatusClosed     WorkOrderStatus = "closed"
	WorkOrderStatusCancelled  WorkOrderStatus = "cancelled"
)

// WorkOrderStatusValues lists work order statuses in lifecycle order
var WorkOrderStatusValues = []WorkOrderStatus{
	WorkOrderStatusOpen, WorkOrderStatusInProgress, WorkOrderStatusOnHold, WorkOrderStatusCompleted,
	WorkOrderStatusVerified, WorkOrderStatusClosed, WorkOrderStatusCancelled,
}

// ParseWorkOrderStatus converts string to WorkOrderStatus
func ParseWorkOrderStatus(v string) (WorkOrderStatus, error) {
	return parse(v, WorkOrderStatusValues, "work order status")
}

func (e WorkOrderStatus) String() string { return string(e) }

// Title returns human-readable name
func (e WorkOrderStatus) Title() string { return title(string(e)) }

// IsActive reports whether the work order still needs work
func (e WorkOrderStatus) IsActive() bool {
	return e == WorkOrderStatusOpen || e == WorkOrderStatusInProgress || e == WorkOrderStatusOnHold
}

// WorkOrderType is the kind of maintenance work
type WorkOrderType string

// work order types
const (
	WorkOrderTypeCorrective WorkOrderType = "corrective"
	WorkOrderTypePreventive WorkOrderType = "preventive"
	WorkOrderTypeInspection WorkOrderType = "inspection"
)

// WorkOrderTypeValues lists work order types
var WorkOrderTypeValues = []WorkOrderType{WorkOrderTypeCorrective, WorkOrderTypePreventive, WorkOrderTypeInspection}

// ParseWorkOrderType converts string to WorkOrderType
func ParseWorkOrderType(v string) (WorkOrderType, error) {
	return parse(v, WorkOrderTypeValues, "work order type")
}

func (e WorkOrderType) String() string { return string(e) }

// Title returns human-readable name
func (e WorkOrderType) Title() string { return title(string(e)) }

// Priority of a work order
type Priority string

// priorities
const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// PriorityValues lists priorities from lowest to highest
var PriorityValues = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// ParsePriority converts string to Priority
func ParsePriority(v string) (Priority, error) { return parse(v, PriorityValues, "priority") }

func (e Priority) String() string { return string(e) }

// Title returns human-readable name
func (e Priority) Title() string { return title(string(e)) }

// Rank returns position of the priority, higher is more urgent, -1 for unknown
func (e Priority) Rank() int { return rank(e, PriorityValues) }

// Severity of a reported failure
type Severity string

// severities
const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// SeverityValues lists severities from lowest to highest
var SeverityValues = []Severity{SeverityMinor, SeverityMajor, SeverityCritical}

// ParseSeverity converts string to Severity
func ParseSeverity(v string) (Severity, error) { return parse(v, SeverityValues, "severity") }

func (e Severity) String() string { return string(e) }

// Title returns human-readable name
func (e Severity) Title() string { return title(string(e)) }

// Priority maps failure severity to the priority of the work order repairing it
func (e Severity) Priority() Priority {
	switch e {
	case SeverityCritical:
		return PriorityCritical
	case SeverityMajor:
		return PriorityHigh
	default:
		return PriorityMedium
	}
}

// FailureStatus is the FRACAS loop state of a failure report
type FailureStatus string

// failure statuses
const (
	FailureStatusReported         FailureStatus = "reported"
	FailureStatusAnalyzing        FailureStatus = "analyzing"
	FailureStatusCorrectiveAction FailureStatus = "corrective_action"
	FailureStatusClosed           FailureStatus = "closed"
)

// FailureStatusValues lists failure statuses in loop order
var FailureStatusValues = []FailureStatus{
	FailureStatusReported, FailureStatusAnalyzing, FailureStatusCorrectiveAction, FailureStatusClosed,
}

// ParseFailureStatus converts string to FailureStatus
func ParseFailureStatus(v string) (FailureStatus, error) {
	return parse(v, FailureStatusValues, "failure status")
}

func (e FailureStatus) String() string { return string(e) }

// Title returns human-readable name
func (e FailureStatus) Title() string { return title(string(e)) }

// ActionStatus is the state of a corrective action
type ActionStatus string

// corrective action statuses
const (
	ActionStatusOpen        ActionStatus = "open"
	ActionStatusInProgress  ActionStatus = "in_progress"
	ActionStatusImplemented ActionStatus = "implemented"
	ActionStatusVerified    ActionStatus = "verified"
	ActionStatusIneffective ActionStatus = "ineffective"
	ActionStatusCancelled   ActionStatus = "cancelled"
)

// ActionStatusValues lists corrective action statuses
var ActionStatusValues = []ActionStatus{
	ActionStatusOpen, ActionStatusInProgress, ActionStatusImplemented, ActionStatusVerified,
	ActionStatusIneffective, ActionStatusCancelled,
}

// ParseActionStatus converts string to ActionStatus
func ParseActionStatus(v string) (ActionStatus, error) {
	return parse(v, ActionStatusValues, "action status")
}

func (e ActionStatus) String() string { return string(e) }

// Title returns human-readable name
func (e ActionStatus) Title() string { return title(string(e)) }

// IsDone reports whether the action needs no more work
func (e ActionStatus) IsDone() bool { return e == ActionStatusVerified || e == ActionStatusCancelled }

// Role of a user
type Role string

// roles
const (
	RoleTechnician Role = "technician"
	RoleEngineer   Role = "engineer"
	RoleSupervisor Role = "supervisor"
	RoleViewer     Role = "viewer"
)

// RoleValues lists user roles
var RoleValues = []Role{RoleTechnician, RoleEngineer, RoleSupervisor, RoleViewer}

// ParseRole converts string to Role
func ParseRole(v string) (Role, error) { return parse(v, RoleValues, "role") }

func (e Role) String() string { return string(e) }

// Title returns human-readable name
func (e Role) Title() string { return title(string(e)) }

// Criticality of an asset
type Criticality string

// criticalities
const (
	CriticalityLow    Criticality = "low"
	CriticalityMedium Criticality = "medium"
	CriticalityHigh   Criticality = "high"
)

// CriticalityValues lists asset criticalities
var CriticalityValues = []Criticality{CriticalityLow, CriticalityMedium, CriticalityHigh}

// ParseCriticality converts string to Criticality
func ParseCriticality(v string) (Criticality, error) {
	return parse(v, CriticalityValues, "criticality")
}

func (e Criticality) String() string { return string(e) }

// Title returns human-readable name
func (e Criticality) Title() string { return title(string(e)) }

// Theme represents UI themes
type Theme string

// themes
const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ThemeValues lists UI themes
var ThemeValues = []Theme{ThemeLight, ThemeDark}

// ParseTheme converts string to Theme
func ParseTheme(v string) (Theme, error) { return parse(v, ThemeValues, "theme") }

func (e Theme) String() string { return string(e) }

// TrendInterval is the bucket size of trend charts
type TrendInterval string

// trend intervals
const (
	TrendIntervalDay   TrendInterval = "day"
	TrendIntervalWeek  TrendInterval = "week"
	TrendIntervalMonth TrendInterval = "month"
)

// TrendIntervalValues lists trend intervals
var TrendIntervalValues = []TrendInterval{TrendIntervalDay, TrendIntervalWeek, TrendIntervalMonth}

// ParseTrendInterval converts string to TrendInterval
func ParseTrendInterval(v string) (TrendInterval, error) {
	return parse(v, TrendIntervalValues, "trend interval")
}

func (e TrendInterval) String() string { return string(e) }

// ParetoMetric selects what Pareto analysis weighs failure modes by
type ParetoMetric string

// pareto metrics
const (
	ParetoMetricCount    ParetoMetric = "count"
	ParetoMetricDowntime ParetoMetric = "downtime"
)

// ParetoMetricValues lists pareto metrics
var ParetoMetricValues = []ParetoMetric{ParetoMetricCount, ParetoMetricDowntime}

// ParseParetoMetric converts string to ParetoMetric
func ParseParetoMetric(v string) (ParetoMetric, error) {
	return parse(v, ParetoMetricValues, "pareto metric")
}

func (e ParetoMetric) String() string { return string(e) }

// parse finds v among values, case-insensitive and tolerant to spaces and dashes in place of underscores
func parse[T ~string](v string, values []T, kind string) (T, error) {
	norm := strings.ToLower(strings.TrimSpace(v))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	for _, val := range values {
		if string(val) == norm {
			return val, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, v)
}

func rank[T comparable](v T, values []T) int {
	for i, val := range values {
		if val == v {
			return i
		}
	}
	return -1
}

// title converts snake_case value to "Title Case"
func title(s string) string {
	words := strings.Split(s, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
