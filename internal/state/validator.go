package state

import (
	"fmt"

	"escrow_engine/internal/logger"
)

// Validator answers whether one status may move to another for a single
// entity type. Pure lookup, no I/O.
type Validator struct {
	entity EntityType
	table  transitionTable
}

// NewValidator builds a validator over a static transition table.
func NewValidator(entity EntityType, table transitionTable) *Validator {
	return &Validator{entity: entity, table: table}
}

// ValidateTransition reports whether from -> to is allowed.
//
// Same-status input is always valid. force bypasses the table entirely but
// emits a critical audit log entry; that path exists only for admin
// remediation. Unknown legacy statuses are allowed with a warning so old
// rows do not crash the validator.
func (v *Validator) ValidateTransition(from, to, entityID string, force bool) (bool, string) {
	if from == to {
		return true, "no-op transition"
	}

	if force {
		logger.Critical("status validation bypassed",
			"entity_type", string(v.entity),
			"entity_id", entityID,
			"from_status", from,
			"to_status", to,
		)
		return true, "forced transition, validation bypassed"
	}

	allowed, known := v.table[from]
	if !known {
		logger.Warn("unknown status, skipping validation",
			"entity_type", string(v.entity),
			"entity_id", entityID,
			"from_status", from,
			"to_status", to,
		)
		return true, fmt.Sprintf("unknown status %q, validation skipped", from)
	}

	if _, ok := allowed[to]; ok {
		return true, "transition allowed"
	}

	if len(allowed) == 0 {
		return false, fmt.Sprintf("%s is a terminal status", from)
	}
	return false, fmt.Sprintf("transition %s -> %s is not allowed", from, to)
}

// ValidTransitions returns the set of statuses reachable from current.
// The returned map is a copy; callers may mutate it.
func (v *Validator) ValidTransitions(current string) map[string]struct{} {
	out := make(map[string]struct{})
	for st := range v.table[current] {
		out[st] = struct{}{}
	}
	return out
}

// IsTerminal reports whether a status has no outbound transitions.
// Unknown statuses are not terminal.
func (v *Validator) IsTerminal(status string) bool {
	allowed, known := v.table[status]
	return known && len(allowed) == 0
}
