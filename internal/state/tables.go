package state

import "escrow_engine/internal/domain"

// EntityType selects which transition table validates an entity. The set is
// closed; routing on anything else is a programmer error.
type EntityType string

const (
	EntityEscrow      EntityType = "escrow"
	EntityExchange    EntityType = "exchange"
	EntityCashout     EntityType = "cashout"
	EntityTransaction EntityType = "transaction"
	EntityUser        EntityType = "user"
	EntityDispute     EntityType = "dispute"
)

type statusSet map[string]struct{}

func set(statuses ...string) statusSet {
	s := make(statusSet, len(statuses))
	for _, st := range statuses {
		s[st] = struct{}{}
	}
	return s
}

// transitionTable maps a status to the set of statuses it may move to.
// Terminal statuses are present with an empty set so the validator can tell
// "terminal" apart from "unknown legacy status".
type transitionTable map[string]statusSet

// unifiedTransitions drives the engine's own lifecycle.
// FAILED -> PENDING is the single controlled retry path; COMPLETED and
// DELIVERED may still open a dispute; REFUNDED, CANCELLED and EXPIRED are
// hard terminal.
var unifiedTransitions = transitionTable{
	string(domain.StatusInitiated): set(
		string(domain.StatusPending), string(domain.StatusCancelled), string(domain.StatusFailed)),
	string(domain.StatusPending): set(
		string(domain.StatusAwaitingPayment), string(domain.StatusProcessing),
		string(domain.StatusCancelled), string(domain.StatusExpired), string(domain.StatusFailed)),
	string(domain.StatusAwaitingPayment): set(
		string(domain.StatusPartialPayment), string(domain.StatusPaymentConfirmed),
		string(domain.StatusCancelled), string(domain.StatusExpired), string(domain.StatusFailed)),
	string(domain.StatusPartialPayment): set(
		string(domain.StatusPaymentConfirmed), string(domain.StatusAwaitingPayment),
		string(domain.StatusCancelled), string(domain.StatusExpired)),
	string(domain.StatusPaymentConfirmed): set(
		string(domain.StatusFundsHeld), string(domain.StatusProcessing),
		string(domain.StatusFailed), string(domain.StatusCancelled)),
	string(domain.StatusFundsHeld): set(
		string(domain.StatusAwaitingApproval), string(domain.StatusProcessing),
		string(domain.StatusReleasePending), string(domain.StatusRefunded),
		string(domain.StatusDisputed), string(domain.StatusFailed)),
	string(domain.StatusAwaitingApproval): set(
		string(domain.StatusOTPPending), string(domain.StatusAdminPending),
		string(domain.StatusProcessing), string(domain.StatusCancelled), string(domain.StatusFailed)),
	string(domain.StatusOTPPending): set(
		string(domain.StatusAdminPending), string(domain.StatusProcessing),
		string(domain.StatusCancelled), string(domain.StatusFailed), string(domain.StatusExpired)),
	string(domain.StatusAdminPending): set(
		string(domain.StatusProcessing), string(domain.StatusCancelled), string(domain.StatusFailed)),
	string(domain.StatusProcessing): set(
		string(domain.StatusExternalPending), string(domain.StatusAwaitingResponse),
		string(domain.StatusReleasePending), string(domain.StatusFundsReleased),
		string(domain.StatusCompleted), string(domain.StatusFailed),
		string(domain.StatusCancelled)),
	string(domain.StatusExternalPending): set(
		string(domain.StatusAwaitingResponse), string(domain.StatusProcessing),
		string(domain.StatusCompleted), string(domain.StatusFailed)),
	string(domain.StatusAwaitingResponse): set(
		string(domain.StatusProcessing), string(domain.StatusReleasePending),
		string(domain.StatusCompleted), string(domain.StatusFailed), string(domain.StatusExpired)),
	string(domain.StatusReleasePending): set(
		string(domain.StatusFundsReleased), string(domain.StatusFailed), string(domain.StatusDisputed)),
	string(domain.StatusFundsReleased): set(
		string(domain.StatusCompleted), string(domain.StatusDelivered), string(domain.StatusDisputed)),
	string(domain.StatusCompleted): set(
		string(domain.StatusDelivered), string(domain.StatusDisputed)),
	string(domain.StatusDelivered): set(string(domain.StatusDisputed)),
	string(domain.StatusFailed):    set(string(domain.StatusPending)),
	string(domain.StatusDisputed): set(
		string(domain.StatusCompleted), string(domain.StatusRefunded), string(domain.StatusCancelled)),
	string(domain.StatusCancelled): set(),
	string(domain.StatusRefunded):  set(),
	string(domain.StatusExpired):   set(),
}

// escrowTransitions: COMPLETED -> DISPUTED is the only exit from COMPLETED.
var escrowTransitions = transitionTable{
	string(domain.EscrowCreated): set(
		string(domain.EscrowPaymentPending), string(domain.EscrowCancelled)),
	string(domain.EscrowPaymentPending): set(
		string(domain.EscrowPaymentConfirmed), string(domain.EscrowCancelled), string(domain.EscrowExpired)),
	string(domain.EscrowPaymentConfirmed): set(
		string(domain.EscrowFundsHeld), string(domain.EscrowRefunded)),
	string(domain.EscrowFundsHeld): set(
		string(domain.EscrowInProgress), string(domain.EscrowDisputed), string(domain.EscrowRefunded)),
	string(domain.EscrowInProgress): set(
		string(domain.EscrowDeliveryPending), string(domain.EscrowDisputed), string(domain.EscrowCancelled)),
	string(domain.EscrowDeliveryPending): set(
		string(domain.EscrowDelivered), string(domain.EscrowDisputed), string(domain.EscrowExpired)),
	string(domain.EscrowDelivered): set(
		string(domain.EscrowReleasePending), string(domain.EscrowDisputed)),
	string(domain.EscrowReleasePending): set(
		string(domain.EscrowCompleted), string(domain.EscrowDisputed)),
	string(domain.EscrowCompleted): set(string(domain.EscrowDisputed)),
	string(domain.EscrowDisputed): set(
		string(domain.EscrowCompleted), string(domain.EscrowRefunded), string(domain.EscrowCancelled)),
	string(domain.EscrowRefunded):  set(),
	string(domain.EscrowCancelled): set(),
	string(domain.EscrowExpired):   set(),
}

// cashoutTransitions: FAILED -> PENDING allows one controlled retry;
// SUCCESS and CANCELLED are terminal.
var cashoutTransitions = transitionTable{
	string(domain.CashoutPending): set(
		string(domain.CashoutValidating), string(domain.CashoutCancelled)),
	string(domain.CashoutValidating): set(
		string(domain.CashoutApproved), string(domain.CashoutOTPPending), string(domain.CashoutFailed)),
	string(domain.CashoutOTPPending): set(
		string(domain.CashoutApproved), string(domain.CashoutCancelled), string(domain.CashoutFailed)),
	string(domain.CashoutApproved): set(
		string(domain.CashoutProcessing), string(domain.CashoutCancelled)),
	string(domain.CashoutProcessing): set(
		string(domain.CashoutExternalPending), string(domain.CashoutSuccess), string(domain.CashoutFailed)),
	string(domain.CashoutExternalPending): set(
		string(domain.CashoutSuccess), string(domain.CashoutFailed)),
	string(domain.CashoutFailed):    set(string(domain.CashoutPending)),
	string(domain.CashoutSuccess):   set(),
	string(domain.CashoutCancelled): set(),
}

var exchangeTransitions = transitionTable{
	string(domain.ExchangeQuoteRequested): set(
		string(domain.ExchangeRateLocked), string(domain.ExchangeCancelled), string(domain.ExchangeExpired)),
	string(domain.ExchangeRateLocked): set(
		string(domain.ExchangeAwaitingPayment), string(domain.ExchangeCancelled), string(domain.ExchangeExpired)),
	string(domain.ExchangeAwaitingPayment): set(
		string(domain.ExchangePaymentConfirmed), string(domain.ExchangeCancelled), string(domain.ExchangeExpired)),
	string(domain.ExchangePaymentConfirmed): set(
		string(domain.ExchangeConverting), string(domain.ExchangeFailed)),
	string(domain.ExchangeConverting): set(
		string(domain.ExchangeSettling), string(domain.ExchangeFailed)),
	string(domain.ExchangeSettling): set(
		string(domain.ExchangeSettled), string(domain.ExchangeFailed)),
	string(domain.ExchangeSettled): set(
		string(domain.ExchangeCompleted), string(domain.ExchangeDisputed)),
	string(domain.ExchangeCompleted): set(string(domain.ExchangeDisputed)),
	string(domain.ExchangeDisputed): set(
		string(domain.ExchangeCompleted), string(domain.ExchangeCancelled)),
	string(domain.ExchangeFailed):    set(),
	string(domain.ExchangeCancelled): set(),
	string(domain.ExchangeExpired):   set(),
}

// User and dispute lifecycles are simple enough that ad hoc tables suffice.
var userTransitions = transitionTable{
	string(domain.UserActive): set(
		string(domain.UserSuspended), string(domain.UserBanned), string(domain.UserDeleted)),
	string(domain.UserSuspended): set(
		string(domain.UserActive), string(domain.UserBanned), string(domain.UserDeleted)),
	string(domain.UserBanned):  set(string(domain.UserActive)),
	string(domain.UserDeleted): set(),
}

var disputeTransitions = transitionTable{
	string(domain.DisputeOpen): set(
		string(domain.DisputeUnderReview), string(domain.DisputeClosed)),
	string(domain.DisputeUnderReview): set(
		string(domain.DisputeResolved), string(domain.DisputeClosed)),
	string(domain.DisputeResolved): set(string(domain.DisputeClosed)),
	string(domain.DisputeClosed):   set(),
}
