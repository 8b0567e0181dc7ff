package state

import (
	"fmt"

	"escrow_engine/internal/domain"
	"escrow_engine/internal/logger"
)

// Service routes transition checks to the validator for an entity type.
// It never mutates any entity; once it returns true the mutation is the
// caller's responsibility.
type Service struct {
	validators map[EntityType]*Validator
}

// NewService builds the service with the full validator set. Validators are
// injected here once at process start; there is no global registry.
func NewService() *Service {
	return &Service{
		validators: map[EntityType]*Validator{
			EntityEscrow:      NewValidator(EntityEscrow, escrowTransitions),
			EntityExchange:    NewValidator(EntityExchange, exchangeTransitions),
			EntityCashout:     NewValidator(EntityCashout, cashoutTransitions),
			EntityTransaction: NewValidator(EntityTransaction, unifiedTransitions),
			EntityUser:        NewValidator(EntityUser, userTransitions),
			EntityDispute:     NewValidator(EntityDispute, disputeTransitions),
		},
	}
}

func (s *Service) validator(entity EntityType) (*Validator, error) {
	v, ok := s.validators[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownEntityType, string(entity))
	}
	return v, nil
}

// TransitionEntityStatus validates a transition and logs the attempt and
// outcome. Returns (false, nil) for a handled rejection so callers can
// branch, and a typed *domain.InvalidTransitionError wrapped in the second
// return for callers that want to propagate it instead.
func (s *Service) TransitionEntityStatus(entity EntityType, entityID, from, to, context string, force bool) (bool, error) {
	v, err := s.validator(entity)
	if err != nil {
		return false, err
	}

	ok, reason := v.ValidateTransition(from, to, entityID, force)
	if !ok {
		logger.Warn("status transition rejected",
			"entity_type", string(entity),
			"entity_id", entityID,
			"from_status", from,
			"to_status", to,
			"reason", reason,
			"context", context,
		)
		return false, &domain.InvalidTransitionError{
			EntityType: string(entity),
			EntityID:   entityID,
			From:       from,
			To:         to,
			Reason:     reason,
		}
	}

	logger.Debug("status transition validated",
		"entity_type", string(entity),
		"entity_id", entityID,
		"from_status", from,
		"to_status", to,
		"context", context,
		"forced", force,
	)
	return true, nil
}

// ValidateTransitionOnly checks a transition without the logging
// side-channel; meant for pre-flight UI decisions.
func (s *Service) ValidateTransitionOnly(entity EntityType, from, to string) (bool, error) {
	v, err := s.validator(entity)
	if err != nil {
		return false, err
	}
	ok, _ := v.ValidateTransition(from, to, "", false)
	return ok, nil
}

// GetValidTransitions returns the statuses reachable from current.
func (s *Service) GetValidTransitions(entity EntityType, current string) (map[string]struct{}, error) {
	v, err := s.validator(entity)
	if err != nil {
		return nil, err
	}
	return v.ValidTransitions(current), nil
}

// IsTerminalState reports whether the valid-transition set is empty.
func (s *Service) IsTerminalState(entity EntityType, status string) (bool, error) {
	v, err := s.validator(entity)
	if err != nil {
		return false, err
	}
	return v.IsTerminal(status), nil
}
