package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType identifies the financial operation a transaction performs
type TransactionType string

const (
	TypeEscrow        TransactionType = "escrow"
	TypeWalletCashout TransactionType = "wallet_cashout"
	TypeExchangeBuy   TransactionType = "exchange_buy"
	TypeExchangeSell  TransactionType = "exchange_sell"
	TypeWalletFunding TransactionType = "wallet_funding"
	TypeEscrowPayment TransactionType = "escrow_payment"
	TypeEscrowRelease TransactionType = "escrow_release"
	TypeGeneric       TransactionType = "generic"
)

// TransactionStatus is the unified lifecycle status of a transaction
type TransactionStatus string

const (
	// Initiation phase
	StatusInitiated        TransactionStatus = "INITIATED"
	StatusPending          TransactionStatus = "PENDING"
	StatusAwaitingPayment  TransactionStatus = "AWAITING_PAYMENT"
	StatusPartialPayment   TransactionStatus = "PARTIAL_PAYMENT"
	StatusPaymentConfirmed TransactionStatus = "PAYMENT_CONFIRMED"

	// Authorization phase
	StatusFundsHeld        TransactionStatus = "FUNDS_HELD"
	StatusAwaitingApproval TransactionStatus = "AWAITING_APPROVAL"
	StatusOTPPending       TransactionStatus = "OTP_PENDING"
	StatusAdminPending     TransactionStatus = "ADMIN_PENDING"

	// Execution phase
	StatusProcessing       TransactionStatus = "PROCESSING"
	StatusExternalPending  TransactionStatus = "EXTERNAL_PENDING"
	StatusAwaitingResponse TransactionStatus = "AWAITING_RESPONSE"
	StatusReleasePending   TransactionStatus = "RELEASE_PENDING"
	StatusFundsReleased    TransactionStatus = "FUNDS_RELEASED"
	StatusCompleted        TransactionStatus = "COMPLETED"
	StatusDelivered        TransactionStatus = "DELIVERED"

	// Terminal phase
	StatusFailed    TransactionStatus = "FAILED"
	StatusCancelled TransactionStatus = "CANCELLED"
	StatusDisputed  TransactionStatus = "DISPUTED"
	StatusRefunded  TransactionStatus = "REFUNDED"
	StatusExpired   TransactionStatus = "EXPIRED"
)

// Priority orders saga scheduling; it is not a correctness concern
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Transaction is the unit of work driven by the engine.
// Status is mutated only through the engine's validated transition path;
// rows are never deleted, terminal statuses are final.
type Transaction struct {
	ID        string                 `db:"id" json:"id"`
	Type      TransactionType        `db:"type" json:"type"`
	Status    TransactionStatus      `db:"status" json:"status"`
	Priority  Priority               `db:"priority" json:"priority"`
	UserID    int64                  `db:"user_id" json:"user_id"`
	Amount    decimal.Decimal        `db:"amount" json:"amount"`
	Currency  string                 `db:"currency" json:"currency"`
	Metadata  map[string]interface{} `db:"metadata" json:"metadata,omitempty"`
	LegacyID  *string                `db:"legacy_id" json:"legacy_id,omitempty"`
	ParentID  *string                `db:"parent_id" json:"parent_id,omitempty"`
	Provider  string                 `db:"provider" json:"provider,omitempty"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt time.Time              `db:"updated_at" json:"updated_at"`
}

// CreateTransactionRequest is the input for Engine.CreateTransaction
type CreateTransactionRequest struct {
	Type              TransactionType        `json:"type" binding:"required"`
	UserID            int64                  `json:"user_id" binding:"required"`
	Amount            decimal.Decimal        `json:"amount" binding:"required"`
	Currency          string                 `json:"currency" binding:"required"`
	Priority          Priority               `json:"priority,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	LegacyID          *string                `json:"legacy_id,omitempty"`
	ParentID          *string                `json:"parent_id,omitempty"`
	PreferredProvider string                 `json:"preferred_provider,omitempty"`
}

// TransactionResult is the uniform result envelope returned by every
// engine operation. Success and Error are never both set.
type TransactionResult struct {
	Success       bool              `json:"success"`
	TransactionID string            `json:"transaction_id,omitempty"`
	Status        TransactionStatus `json:"status,omitempty"`
	Message       string            `json:"message,omitempty"`
	Error         string            `json:"error,omitempty"`
	ErrorCode     string            `json:"error_code,omitempty"`
	IsRetryable   bool              `json:"is_retryable,omitempty"`
}

// RequiresSaga reports whether this transaction type executes as a
// multi-step saga instead of a single unit of work.
func (t TransactionType) RequiresSaga() bool {
	switch t {
	case TypeEscrow, TypeWalletCashout, TypeExchangeBuy, TypeExchangeSell, TypeWalletFunding:
		return true
	}
	return false
}
