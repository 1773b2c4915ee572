package fracas

import (
	"errors"

	"github.com/umputun/fracas/app/persistence"
)

// domain errors, matched with errors.Is
var (
	// work orders
	ErrInvalidTransition = errors.New("invalid status transition")

	// failures and corrective actions
	ErrFailureClosed      = persistence.ErrFailureClosed // also enforced by the store on adding an action
	ErrAnalysisIncomplete = errors.New("failure analysis is incomplete")
	ErrOpenActions        = persistence.ErrPendingActions // also enforced by the store on closing

	// preventive maintenance
	ErrPMNotScheduled = errors.New("asset has no preventive maintenance schedule")
	ErrPMAlreadyOpen  = errors.New("preventive work order is already open")
)
