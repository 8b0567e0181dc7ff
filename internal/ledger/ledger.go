package ledger

import (
	"context"
	"errors"
	"fmt"

	"escrow_engine/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// entry kinds recorded in ledger_entries
const (
	kindHold        = "hold"
	kindReleaseHold = "release_hold"
	kindConsumeHold = "consume_hold"
	kindDebit       = "debit"
	kindCredit      = "credit"
)

// Ledger moves money between a wallet's available and held balances. Every
// movement locks the wallet row and records a ledger entry in the same unit
// of work, so balances and entries cannot drift apart.
type Ledger struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Ledger {
	return &Ledger{db: db}
}

// Available returns the spendable balance (held funds excluded). A missing
// wallet reads as zero.
func (l *Ledger) Available(ctx context.Context, userID int64, currency string) (decimal.Decimal, error) {
	var balanceStr string
	err := l.db.QueryRow(ctx,
		`SELECT balance::text FROM wallets WHERE user_id = $1 AND currency = $2`,
		userID, currency,
	).Scan(&balanceStr)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(balanceStr)
}

// Hold moves amount from available to held
func (l *Ledger) Hold(ctx context.Context, userID int64, amount decimal.Decimal, currency, ref string) error {
	return l.move(ctx, userID, currency, ref, kindHold, func(ctx context.Context, tx pgx.Tx, balance decimal.Decimal) error {
		if balance.LessThan(amount) {
			return fmt.Errorf("%w: available %s, need %s", domain.ErrInsufficientFunds, balance, amount)
		}
		_, err := tx.Exec(ctx,
			`UPDATE wallets SET balance = balance - $1, held = held + $1
			 WHERE user_id = $2 AND currency = $3`,
			amount.String(), userID, currency)
		return err
	}, amount.Neg())
}

// ReleaseHold moves amount from held back to available
func (l *Ledger) ReleaseHold(ctx context.Context, userID int64, amount decimal.Decimal, currency, ref string) error {
	return l.move(ctx, userID, currency, ref, kindReleaseHold, func(ctx context.Context, tx pgx.Tx, _ decimal.Decimal) error {
		tag, err := tx.Exec(ctx,
			`UPDATE wallets SET balance = balance + $1, held = held - $1
			 WHERE user_id = $2 AND currency = $3 AND held >= $1`,
			amount.String(), userID, currency)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: held balance below %s", domain.ErrInsufficientFunds, amount)
		}
		return nil
	}, amount)
}

// ConsumeHold removes amount from held for good (the payout left the system)
func (l *Ledger) ConsumeHold(ctx context.Context, userID int64, amount decimal.Decimal, currency, ref string) error {
	return l.move(ctx, userID, currency, ref, kindConsumeHold, func(ctx context.Context, tx pgx.Tx, _ decimal.Decimal) error {
		tag, err := tx.Exec(ctx,
			`UPDATE wallets SET held = held - $1
			 WHERE user_id = $2 AND currency = $3 AND held >= $1`,
			amount.String(), userID, currency)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: held balance below %s", domain.ErrInsufficientFunds, amount)
		}
		return nil
	}, amount.Neg())
}

// Debit removes amount from available
func (l *Ledger) Debit(ctx context.Context, userID int64, amount decimal.Decimal, currency, ref string) error {
	return l.move(ctx, userID, currency, ref, kindDebit, func(ctx context.Context, tx pgx.Tx, balance decimal.Decimal) error {
		if balance.LessThan(amount) {
			return fmt.Errorf("%w: available %s, need %s", domain.ErrInsufficientFunds, balance, amount)
		}
		_, err := tx.Exec(ctx,
			`UPDATE wallets SET balance = balance - $1
			 WHERE user_id = $2 AND currency = $3`,
			amount.String(), userID, currency)
		return err
	}, amount.Neg())
}

// Credit adds amount to available, creating the wallet if needed
func (l *Ledger) Credit(ctx context.Context, userID int64, amount decimal.Decimal, currency, ref string) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return domain.ErrInvalidAmount
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO wallets (user_id, currency, balance, held)
		 VALUES ($1, $2, $3, 0)
		 ON CONFLICT (user_id, currency)
		 DO UPDATE SET balance = wallets.balance + EXCLUDED.balance`,
		userID, currency, amount.String())
	if err != nil {
		return err
	}

	if err := recordEntry(ctx, tx, userID, currency, kindCredit, ref, amount); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// move locks the wallet row, applies the mutation and records the entry
func (l *Ledger) move(ctx context.Context, userID int64, currency, ref, kind string,
	apply func(context.Context, pgx.Tx, decimal.Decimal) error, entryAmount decimal.Decimal) error {

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var balanceStr string
	err = tx.QueryRow(ctx,
		`SELECT balance::text FROM wallets WHERE user_id = $1 AND currency = $2 FOR UPDATE`,
		userID, currency,
	).Scan(&balanceStr)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: no %s wallet for user %d", domain.ErrInsufficientFunds, currency, userID)
	}
	if err != nil {
		return err
	}
	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return err
	}

	if err := apply(ctx, tx, balance); err != nil {
		return err
	}
	if err := recordEntry(ctx, tx, userID, currency, kind, ref, entryAmount); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func recordEntry(ctx context.Context, tx pgx.Tx, userID int64, currency, kind, ref string, amount decimal.Decimal) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO ledger_entries (user_id, currency, kind, amount, reference)
		 VALUES ($1, $2, $3, $4, $5)`,
		userID, currency, kind, amount.String(), ref)
	return err
}
