package fracas

import (
	"slices"

	"github.com/umputun/fracas/app/enums"
)

var workOrderTransitions = map[enums.WorkOrderStatus][]enums.WorkOrderStatus{
	enums.WorkOrderStatusOpen:       {enums.WorkOrderStatusInProgress, enums.WorkOrderStatusCancelled},
	enums.WorkOrderStatusInProgress: {enums.WorkOrderStatusOnHold, enums.WorkOrderStatusCompleted, enums.WorkOrderStatusCancelled},
	enums.WorkOrderStatusOnHold:     {enums.WorkOrderStatusInProgress, enums.WorkOrderStatusCancelled},
	enums.WorkOrderStatusCompleted:  {enums.WorkOrderStatusVerified, enums.WorkOrderStatusInProgress},
	enums.WorkOrderStatusVerified:   {enums.WorkOrderStatusClosed},
}

var actionTransitions = map[enums.ActionStatus][]enums.ActionStatus{
	enums.ActionStatusOpen:        {enums.ActionStatusInProgress, enums.ActionStatusCancelled},
	enums.ActionStatusInProgress:  {enums.ActionStatusImplemented, enums.ActionStatusCancelled},
	enums.ActionStatusImplemented: {enums.ActionStatusVerified, enums.ActionStatusIneffective},
	enums.ActionStatusIneffective: {enums.ActionStatusInProgress},
}

// NextWorkOrderStatuses returns statuses a work order can move to from the given one
func NextWorkOrderStatuses(from enums.WorkOrderStatus) []enums.WorkOrderStatus {
	return slices.Clone(workOrderTransitions[from])
}

// CanTransitionWorkOrder reports whether a work order can move between statuses
func CanTransitionWorkOrder(from, to enums.WorkOrderStatus) bool {
	return slices.Contains(workOrderTransitions[from], to)
}

// NextActionStatuses returns statuses a corrective action can move to from the given one
func NextActionStatuses(from enums.ActionStatus) []enums.ActionStatus {
	return slices.Clone(actionTransitions[from])
}

// CanTransitionAction reports whether a corrective action can move between statuses
func CanTransitionAction(from, to enums.ActionStatus) bool {
	return slices.Contains(actionTransitions[from], to)
}
