package domain

// EscrowStatus is the lifecycle status of an escrow trade
type EscrowStatus string

const (
	EscrowCreated          EscrowStatus = "CREATED"
	EscrowPaymentPending   EscrowStatus = "PAYMENT_PENDING"
	EscrowPaymentConfirmed EscrowStatus = "PAYMENT_CONFIRMED"
	EscrowFundsHeld        EscrowStatus = "FUNDS_HELD"
	EscrowInProgress       EscrowStatus = "IN_PROGRESS"
	EscrowDeliveryPending  EscrowStatus = "DELIVERY_PENDING"
	EscrowDelivered        EscrowStatus = "DELIVERED"
	EscrowReleasePending   EscrowStatus = "RELEASE_PENDING"
	EscrowCompleted        EscrowStatus = "COMPLETED"
	EscrowDisputed         EscrowStatus = "DISPUTED"
	EscrowRefunded         EscrowStatus = "REFUNDED"
	EscrowCancelled        EscrowStatus = "CANCELLED"
	EscrowExpired          EscrowStatus = "EXPIRED"
)

// CashoutStatus is the lifecycle status of a wallet cashout
type CashoutStatus string

const (
	CashoutPending         CashoutStatus = "PENDING"
	CashoutValidating      CashoutStatus = "VALIDATING"
	CashoutOTPPending      CashoutStatus = "OTP_PENDING"
	CashoutApproved        CashoutStatus = "APPROVED"
	CashoutProcessing      CashoutStatus = "PROCESSING"
	CashoutExternalPending CashoutStatus = "EXTERNAL_PENDING"
	CashoutSuccess         CashoutStatus = "SUCCESS"
	CashoutFailed          CashoutStatus = "FAILED"
	CashoutCancelled       CashoutStatus = "CANCELLED"
)

// ExchangeStatus is the lifecycle status of a currency exchange
type ExchangeStatus string

const (
	ExchangeQuoteRequested   ExchangeStatus = "QUOTE_REQUESTED"
	ExchangeRateLocked       ExchangeStatus = "RATE_LOCKED"
	ExchangeAwaitingPayment  ExchangeStatus = "AWAITING_PAYMENT"
	ExchangePaymentConfirmed ExchangeStatus = "PAYMENT_CONFIRMED"
	ExchangeConverting       ExchangeStatus = "CONVERTING"
	ExchangeSettling         ExchangeStatus = "SETTLING"
	ExchangeSettled          ExchangeStatus = "SETTLED"
	ExchangeCompleted        ExchangeStatus = "COMPLETED"
	ExchangeDisputed         ExchangeStatus = "DISPUTED"
	ExchangeFailed           ExchangeStatus = "FAILED"
	ExchangeCancelled        ExchangeStatus = "CANCELLED"
	ExchangeExpired          ExchangeStatus = "EXPIRED"
)

// UserStatus is the simplified account lifecycle
type UserStatus string

const (
	UserActive    UserStatus = "ACTIVE"
	UserSuspended UserStatus = "SUSPENDED"
	UserBanned    UserStatus = "BANNED"
	UserDeleted   UserStatus = "DELETED"
)

// DisputeStatus is the simplified dispute lifecycle
type DisputeStatus string

const (
	DisputeOpen        DisputeStatus = "OPEN"
	DisputeUnderReview DisputeStatus = "UNDER_REVIEW"
	DisputeResolved    DisputeStatus = "RESOLVED"
	DisputeClosed      DisputeStatus = "CLOSED"
)
