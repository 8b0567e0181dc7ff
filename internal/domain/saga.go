package domain

import "time"

// StepType routes a saga step to its typed executor. No string-keyed
// reflection: the executor switches on this closed enum.
type StepType string

const (
	StepValidateBalance   StepType = "validate_balance"
	StepHoldFunds         StepType = "hold_funds"
	StepExternalPayout    StepType = "external_payout"
	StepConsumeFunds      StepType = "consume_funds"
	StepNotify            StepType = "notify"
	StepValidateParams    StepType = "validate_params"
	StepCreateHolding     StepType = "create_holding"
	StepLockRate          StepType = "lock_rate"
	StepDebitSource       StepType = "debit_source"
	StepCreditTarget      StepType = "credit_target"
	StepGenerateDepositIn StepType = "generate_deposit_address"
)

// StepStatus is the lifecycle of one saga step
type StepStatus string

const (
	StepPending      StepStatus = "pending"
	StepRunning      StepStatus = "running"
	StepCompleted    StepStatus = "completed"
	StepFailed       StepStatus = "failed"
	StepCompensating StepStatus = "compensating"
	StepCompensated  StepStatus = "compensated"
)

// SagaStep is one ordered unit of a saga. Steps are created in a batch at
// saga initiation and mutated step-by-step during execution/compensation.
type SagaStep struct {
	ID             string                 `db:"id" json:"id"`
	SagaID         string                 `db:"saga_id" json:"saga_id"`
	TransactionID  string                 `db:"transaction_id" json:"transaction_id"`
	Name           string                 `db:"name" json:"name"`
	Type           StepType               `db:"step_type" json:"step_type"`
	Order          int                    `db:"step_order" json:"step_order"`
	TargetService  string                 `db:"target_service" json:"target_service"` // audit only, not dispatch
	TargetMethod   string                 `db:"target_method" json:"target_method"`
	ActionPayload  map[string]interface{} `db:"action_payload" json:"action_payload,omitempty"`
	CompPayload    map[string]interface{} `db:"comp_payload" json:"comp_payload,omitempty"` // nil means not compensatable
	DependsOn      []string               `db:"depends_on" json:"depends_on,omitempty"`
	Status         StepStatus             `db:"status" json:"status"`
	Attempts       int                    `db:"attempts" json:"attempts"`
	MaxAttempts    int                    `db:"max_attempts" json:"max_attempts"`
	TimeoutSeconds int                    `db:"timeout_seconds" json:"timeout_seconds"`
	Result         string                 `db:"result" json:"result,omitempty"`
	CompResult     string                 `db:"comp_result" json:"comp_result,omitempty"`
	CreatedAt      time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time              `db:"updated_at" json:"updated_at"`
}

// Compensatable reports whether the step has a compensating action.
func (s *SagaStep) Compensatable() bool {
	return s.CompPayload != nil
}
