package fracas

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/fracas/app/enums"
	"github.com/umputun/fracas/app/fracas/request"
)

func TestCanTransitionWorkOrder(t *testing.T) {
	allowed := map[[2]enums.WorkOrderStatus]bool{
		{enums.WorkOrderStatusOpen, enums.WorkOrderStatusInProgress}:       true,
		{enums.WorkOrderStatusOpen, enums.WorkOrderStatusCancelled}:        true,
		{enums.WorkOrderStatusInProgress, enums.WorkOrderStatusOnHold}:     true,
		{enums.WorkOrderStatusInProgress, enums.WorkOrderStatusCompleted}:  true,
		{enums.WorkOrderStatusInProgress, enums.WorkOrderStatusCancelled}:  true,
		{enums.WorkOrderStatusOnHold, enums.WorkOrderStatusInProgress}:     true,
		{enums.WorkOrderStatusOnHold, enums.WorkOrderStatusCancelled}:      true,
		{enums.WorkOrderStatusCompleted, enums.WorkOrderStatusVerified}:    true,
		{enums.WorkOrderStatusCompleted, enums.WorkOrderStatusInProgress}:  true,
		{enums.WorkOrderStatusVerified, enums.WorkOrderStatusClosed}:       true,
	}
	for _, from := range enums.WorkOrderStatusValues {
		for _, to := range enums.WorkOrderStatusValues {
			assert.Equal(t, allowed[[2]enums.WorkOrderStatus{from, to}], CanTransitionWorkOrder(from, to), "%s -> %s", from, to)
		}
	}

	assert.Empty(t, NextWorkOrderStatuses(enums.WorkOrderStatusClosed))
	assert.Empty(t, NextWorkOrderStatuses(enums.WorkOrderStatusCancelled))
	next := NextWorkOrderStatuses(enums.WorkOrderStatusCompleted)
	assert.Equal(t, []enums.WorkOrderStatus{enums.WorkOrderStatusVerified, enums.WorkOrderStatusInProgress}, next)
	next[0] = enums.WorkOrderStatusClosed
	assert.Equal(t, enums.WorkOrderStatusVerified, NextWorkOrderStatuses(enums.WorkOrderStatusCompleted)[0], "returns a copy")
}

func TestCanTransitionAction(t *testing.T) {
	tests := []struct {
		from, to enums.ActionStatus
		want     bool
	}{
		{enums.ActionStatusOpen, enums.ActionStatusInProgress, true},
		{enums.ActionStatusOpen, enums.ActionStatusImplemented, false},
		{enums.ActionStatusInProgress, enums.ActionStatusImplemented, true},
		{enums.ActionStatusImplemented, enums.ActionStatusVerified, true},
		{enums.ActionStatusImplemented, enums.ActionStatusIneffective, true},
		{enums.ActionStatusIneffective, enums.ActionStatusInProgress, true},
		{enums.ActionStatusVerified, enums.ActionStatusInProgress, false},
		{enums.ActionStatusCancelled, enums.ActionStatusOpen, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransitionAction(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
	assert.Len(t, NextActionStatuses(enums.ActionStatusImplemented), 2)
	assert.Empty(t, NextActionStatuses(enums.ActionStatusVerified))
}

func TestValidator(t *testing.T) {
	v := NewValidator(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor))

	require.NoError(t, v.Validate(request.CreateAsset{Tag: "T", Name: "n", Criticality: enums.CriticalityLow,
		PMSchedule: "@weekly"}))

	err := v.Validate(request.CreateAsset{Tag: " ", Name: "n", Criticality: "huge", PMSchedule: "61 * * * *"})
	var verr ValidationErrors
	require.ErrorAs(t, err, &verr)
	byField := verr.ByField()
	assert.Equal(t, "tag is required", byField["tag"])
	assert.Equal(t, "criticality must be one of: low, medium, high", byField["criticality"])
	assert.Contains(t, byField["pm_schedule"], "pm_schedule must be a valid cron schedule")
	assert.Contains(t, err.Error(), "tag is required; ")

	err = v.Validate(request.TransitionWorkOrder{ID: "x", To: enums.WorkOrderStatusCompleted, LaborHours: -1})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "labor_hours must be greater than or equal to 0", verr.ByField()["labor_hours"])
}

func TestRegisterTags(t *testing.T) {
	always := func(validator.FieldLevel) bool { return true }

	v := validator.New()
	require.NoError(t, registerTags(v, []customTag{{"notblank", validateNotBlank}, {"always", always}}))
	require.NoError(t, v.Var("x", "always"))
	require.Error(t, v.Var(" ", "notblank"))

	err := registerTags(validator.New(), []customTag{{"always", always}, {"", always}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `failed to register validation ""`)

	assert.NotPanics(t, func() { NewValidator(ScheduleParser()) })
}
