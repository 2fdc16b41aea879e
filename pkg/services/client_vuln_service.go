// Package services is the stateless coordination layer between engines and
// repositories: it enforces invariants that span more than one repository
// call and the customer-facing state-machine guards, one small service per
// aggregate rather than one monolithic "business logic" package.
package services

import (
	"context"
	"time"

	"github.com/owensanzas/vulnsentinel/pkg/models"
	"github.com/owensanzas/vulnsentinel/pkg/store"
)

// allowedTransitions is the customer-facing status DAG, implemented as a
// transition table rather than free-form conditionals at each call site.
// A nil "from" key
// represents the pre-recorded state and is handled separately, since
// recorded is stamped automatically by the reachability facade rather than
// requested through this service.
var allowedTransitions = map[models.Status][]models.Status{
	models.StatusRecorded:  {models.StatusReported},
	models.StatusReported:  {models.StatusConfirmed},
	models.StatusConfirmed: {models.StatusFixed},
}

// terminalStatuses permit no further transitions.
var terminalStatuses = map[models.Status]bool{
	models.StatusFixed:     true,
	models.StatusNotAffect: true,
}

// ClientVulnService coordinates ClientVuln state transitions across the
// pipeline- and customer-facing state machines.
type ClientVulnService struct {
	repo *store.ClientVulnRepo
}

// NewClientVulnService builds a ClientVulnService over repo.
func NewClientVulnService(repo *store.ClientVulnRepo) *ClientVulnService {
	return &ClientVulnService{repo: repo}
}

// ValidateStatusTransition reports whether moving a ClientVuln currently at
// "from" to "to" is legal under the forward-only DAG: null → recorded →
// reported → confirmed → fixed, plus null → not_affect, with fixed and
// not_affect terminal. The two edges out of null are applied only by the
// reachability facade, so a nil "from" is always rejected here.
func ValidateStatusTransition(from *models.Status, to models.Status) error {
	if from == nil {
		return store.NewValidationError("status", "status is set automatically by the reachability facade, not requested directly")
	}
	if terminalStatuses[*from] {
		return store.NewValidationError("status", "cannot transition out of a terminal status")
	}
	for _, allowed := range allowedTransitions[*from] {
		if allowed == to {
			return nil
		}
	}
	return store.NewValidationError("status", "illegal transition from "+string(*from)+" to "+string(to))
}

// Transition validates and applies a customer-facing status transition,
// stamping the transition's timestamp and optional free-text message.
// Returns the validation error unapplied if the transition is illegal.
func (s *ClientVulnService) Transition(ctx context.Context, cv *models.ClientVuln, to models.Status, message string) error {
	if err := ValidateStatusTransition(cv.Status, to); err != nil {
		return err
	}
	return s.repo.TransitionStatus(ctx, cv.ID, to, message, time.Now())
}
