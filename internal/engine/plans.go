package engine

import (
	"fmt"
	"time"

	"escrow_engine/internal/domain"

	"github.com/google/uuid"
)

const (
	defaultMaxAttempts = 3
	defaultStepTimeout = 30 // seconds
)

type stepSpec struct {
	name          string
	stepType      domain.StepType
	targetService string
	targetMethod  string
	compensatable bool
	maxAttempts   int
}

// plan templates per transaction type. Static and versionless: the step list
// is computed once at saga initiation and never mutated afterwards.
var sagaPlans = map[domain.TransactionType][]stepSpec{
	domain.TypeWalletCashout: {
		{"validate balance", domain.StepValidateBalance, "ledger", "Available", false, 1},
		{"hold funds", domain.StepHoldFunds, "ledger", "Hold", true, defaultMaxAttempts},
		{"external payout", domain.StepExternalPayout, "payment", "CreateWithdrawal", false, defaultMaxAttempts},
		{"consume held funds", domain.StepConsumeFunds, "ledger", "ConsumeHold", false, defaultMaxAttempts},
		{"notify user", domain.StepNotify, "notification", "SendNotification", false, defaultMaxAttempts},
	},
	domain.TypeEscrow: {
		{"validate parameters", domain.StepValidateParams, "engine", "ValidateParams", false, 1},
		{"create holding", domain.StepCreateHolding, "ledger", "Hold", true, defaultMaxAttempts},
	},
	domain.TypeExchangeBuy: {
		{"lock exchange rate", domain.StepLockRate, "rates", "GetExchangeRate", false, defaultMaxAttempts},
		{"debit source wallet", domain.StepDebitSource, "ledger", "Debit", true, defaultMaxAttempts},
		{"credit target wallet", domain.StepCreditTarget, "ledger", "Credit", true, defaultMaxAttempts},
		{"notify user", domain.StepNotify, "notification", "SendNotification", false, defaultMaxAttempts},
	},
	domain.TypeExchangeSell: {
		{"lock exchange rate", domain.StepLockRate, "rates", "GetExchangeRate", false, defaultMaxAttempts},
		{"debit source wallet", domain.StepDebitSource, "ledger", "Debit", true, defaultMaxAttempts},
		{"credit target wallet", domain.StepCreditTarget, "ledger", "Credit", true, defaultMaxAttempts},
		{"notify user", domain.StepNotify, "notification", "SendNotification", false, defaultMaxAttempts},
	},
	domain.TypeWalletFunding: {
		{"generate deposit address", domain.StepGenerateDepositIn, "payment", "GenerateDepositAddress", false, defaultMaxAttempts},
		{"notify user", domain.StepNotify, "notification", "SendNotification", false, defaultMaxAttempts},
	},
}

// BuildPlan computes the saga step batch for a transaction. The action
// payload carries the transaction's money fields; metadata stays opaque and
// is echoed into every step so executors can pass it through to providers.
func BuildPlan(txn *domain.Transaction) ([]*domain.SagaStep, error) {
	specs, ok := sagaPlans[txn.Type]
	if !ok {
		return nil, &domain.EngineError{
			Op:  "build saga plan",
			Err: fmt.Errorf("no plan for transaction type %q", txn.Type),
		}
	}
	if len(specs) == 0 {
		return nil, &domain.EngineError{
			Op:  "build saga plan",
			Err: fmt.Errorf("empty plan for transaction type %q", txn.Type),
		}
	}

	sagaID := uuid.NewString()
	now := time.Now().UTC()

	action := map[string]interface{}{
		"user_id":  txn.UserID,
		"amount":   txn.Amount.String(),
		"currency": txn.Currency,
		"metadata": txn.Metadata,
	}

	steps := make([]*domain.SagaStep, 0, len(specs))
	var prevID string
	for i, spec := range specs {
		step := &domain.SagaStep{
			ID:             uuid.NewString(),
			SagaID:         sagaID,
			TransactionID:  txn.ID,
			Name:           spec.name,
			Type:           spec.stepType,
			Order:          i + 1,
			TargetService:  spec.targetService,
			TargetMethod:   spec.targetMethod,
			ActionPayload:  action,
			Status:         domain.StepPending,
			MaxAttempts:    spec.maxAttempts,
			TimeoutSeconds: defaultStepTimeout,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if spec.compensatable {
			step.CompPayload = action
		}
		if prevID != "" {
			step.DependsOn = []string{prevID}
		}
		prevID = step.ID
		steps = append(steps, step)
	}
	return steps, nil
}
