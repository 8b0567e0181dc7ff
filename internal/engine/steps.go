package engine

import (
	"context"
	"errors"
	"fmt"

	"escrow_engine/internal/domain"
	"escrow_engine/internal/provider"

	"github.com/shopspring/decimal"
)

// StepExecutor runs forward and compensating actions for saga steps.
type StepExecutor interface {
	Execute(ctx context.Context, txn *domain.Transaction, step *domain.SagaStep) domain.ProviderResult
	Compensate(ctx context.Context, txn *domain.Transaction, step *domain.SagaStep) domain.ProviderResult
}

// providerExecutor routes steps through the injected ledger and provider
// registry by switching on the closed StepType enum.
type providerExecutor struct {
	ledger    Ledger
	providers *provider.Registry
}

// NewStepExecutor builds the production step executor.
func NewStepExecutor(ledger Ledger, providers *provider.Registry) StepExecutor {
	return &providerExecutor{ledger: ledger, providers: providers}
}

const engineProvider = "engine"

func (e *providerExecutor) Execute(ctx context.Context, txn *domain.Transaction, step *domain.SagaStep) domain.ProviderResult {
	switch step.Type {
	case domain.StepValidateBalance:
		available, err := e.ledger.Available(ctx, txn.UserID, txn.Currency)
		if err != nil {
			return domain.Fail(engineProvider, "ledger_error", err.Error(), true)
		}
		if available.LessThan(txn.Amount) {
			return domain.Fail(engineProvider, "insufficient_funds",
				fmt.Sprintf("available %s, need %s", available, txn.Amount), false)
		}
		return domain.OK(engineProvider, "balance sufficient", map[string]interface{}{
			"available": available.String(),
		})

	case domain.StepHoldFunds, domain.StepCreateHolding:
		if err := e.ledger.Hold(ctx, txn.UserID, txn.Amount, txn.Currency, txn.ID); err != nil {
			return ledgerFailure(err)
		}
		return domain.OK(engineProvider, "funds held", nil)

	case domain.StepConsumeFunds:
		if err := e.ledger.ConsumeHold(ctx, txn.UserID, txn.Amount, txn.Currency, txn.ID); err != nil {
			return ledgerFailure(err)
		}
		return domain.OK(engineProvider, "held funds consumed", nil)

	case domain.StepExternalPayout:
		payment, err := e.providers.Payment(txn.Provider)
		if err != nil {
			return domain.Fail(engineProvider, "no_provider", err.Error(), false)
		}
		address, _ := txn.Metadata["destination_address"].(string)
		return payment.CreateWithdrawal(ctx, provider.WithdrawalRequest{
			TransactionID: txn.ID,
			UserID:        txn.UserID,
			Address:       address,
			Amount:        txn.Amount,
			Currency:      txn.Currency,
			Reference:     txn.ID,
		})

	case domain.StepGenerateDepositIn:
		payment, err := e.providers.Payment(txn.Provider)
		if err != nil {
			return domain.Fail(engineProvider, "no_provider", err.Error(), false)
		}
		return payment.GenerateDepositAddress(ctx, txn.UserID, txn.Currency)

	case domain.StepLockRate:
		rates, err := e.providers.Rates("")
		if err != nil {
			return domain.Fail(engineProvider, "no_provider", err.Error(), false)
		}
		target, _ := txn.Metadata["target_currency"].(string)
		if target == "" {
			return domain.Fail(engineProvider, "missing_target_currency",
				"exchange requires metadata.target_currency", false)
		}
		return rates.GetExchangeRate(ctx, txn.Currency, target)

	case domain.StepDebitSource:
		if err := e.ledger.Debit(ctx, txn.UserID, txn.Amount, txn.Currency, txn.ID); err != nil {
			return ledgerFailure(err)
		}
		return domain.OK(engineProvider, "source debited", nil)

	case domain.StepCreditTarget:
		target, _ := txn.Metadata["target_currency"].(string)
		converted, err := e.convert(ctx, txn, target)
		if err != nil {
			return domain.Fail(engineProvider, "conversion_failed", err.Error(), true)
		}
		if err := e.ledger.Credit(ctx, txn.UserID, converted, target, txn.ID); err != nil {
			return ledgerFailure(err)
		}
		return domain.OK(engineProvider, "target credited", map[string]interface{}{
			"credited": converted.String(), "currency": target,
		})

	case domain.StepNotify:
		notifier, err := e.providers.Notifier("")
		if err != nil {
			return domain.Fail(engineProvider, "no_provider", err.Error(), false)
		}
		return notifier.SendNotification(ctx, provider.Notification{
			UserID:  txn.UserID,
			Subject: "Transaction update",
			Body: fmt.Sprintf("Your %s for %s %s has been processed.",
				txn.Type, txn.Amount, txn.Currency),
			Metadata: txn.Metadata,
		})

	case domain.StepValidateParams:
		if txn.Amount.LessThanOrEqual(decimal.Zero) {
			return domain.Fail(engineProvider, "invalid_amount", "amount must be positive", false)
		}
		if txn.Currency == "" {
			return domain.Fail(engineProvider, "missing_currency", "currency is required", false)
		}
		return domain.OK(engineProvider, "parameters valid", nil)
	}

	return domain.Fail(engineProvider, "unknown_step",
		fmt.Sprintf("no executor for step type %q", step.Type), false)
}

func (e *providerExecutor) Compensate(ctx context.Context, txn *domain.Transaction, step *domain.SagaStep) domain.ProviderResult {
	switch step.Type {
	case domain.StepHoldFunds, domain.StepCreateHolding:
		if err := e.ledger.ReleaseHold(ctx, txn.UserID, txn.Amount, txn.Currency, txn.ID); err != nil {
			return ledgerFailure(err)
		}
		return domain.OK(engineProvider, "hold released", nil)

	case domain.StepDebitSource:
		if err := e.ledger.Credit(ctx, txn.UserID, txn.Amount, txn.Currency, txn.ID); err != nil {
			return ledgerFailure(err)
		}
		return domain.OK(engineProvider, "source refunded", nil)

	case domain.StepCreditTarget:
		target, _ := txn.Metadata["target_currency"].(string)
		converted, err := e.convert(ctx, txn, target)
		if err != nil {
			return domain.Fail(engineProvider, "conversion_failed", err.Error(), true)
		}
		if err := e.ledger.Debit(ctx, txn.UserID, converted, target, txn.ID); err != nil {
			return ledgerFailure(err)
		}
		return domain.OK(engineProvider, "target credit reversed", nil)
	}

	return domain.Fail(engineProvider, "not_compensatable",
		fmt.Sprintf("step type %q has no compensating action", step.Type), false)
}

func (e *providerExecutor) convert(ctx context.Context, txn *domain.Transaction, target string) (decimal.Decimal, error) {
	rates, err := e.providers.Rates("")
	if err != nil {
		return decimal.Decimal{}, err
	}
	res := rates.ConvertAmount(ctx, txn.Amount, txn.Currency, target)
	if !res.Success {
		return decimal.Decimal{}, fmt.Errorf("%s: %s", res.ErrorCode, res.Message)
	}
	raw, _ := res.Data["converted"].(string)
	converted, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("bad converted amount %q: %w", raw, err)
	}
	return converted, nil
}

func isInsufficient(err error) bool {
	return errors.Is(err, domain.ErrInsufficientFunds)
}

func ledgerFailure(err error) domain.ProviderResult {
	// ledger failures are internal; treat them as retryable unless the
	// ledger said the money simply is not there
	retryable := true
	if isInsufficient(err) {
		retryable = false
	}
	return domain.Fail(engineProvider, "ledger_error", err.Error(), retryable)
}
