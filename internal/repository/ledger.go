package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rocketscienceinc/polyhex-backend/internal/apperror"
)

// LedgerRepository moves money on player accounts. Every movement carries a
// unique reference; replaying a reference is a no-op that returns the
// current balance, so callers may retry a credit or debit safely.
type LedgerRepository interface {
	Credit(ctx context.Context, playerID string, amount decimal.Decimal, reference string) (decimal.Decimal, error)
	Debit(ctx context.Context, playerID string, amount decimal.Decimal, reference string) (decimal.Decimal, error)
	Balance(ctx context.Context, playerID string) (decimal.Decimal, error)
}

type dbLedger struct {
	pool *pgxpool.Pool
}

func NewLedgerRepository(pool *pgxpool.Pool) LedgerRepository {
	return &dbLedger{
		pool: pool,
	}
}

func (that *dbLedger) Credit(ctx context.Context, playerID string, amount decimal.Decimal, reference string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", apperror.ErrInvalidAmount, amount)
	}

	tx, err := that.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `INSERT INTO accounts (player_id) VALUES ($1) ON CONFLICT (player_id) DO NOTHING`, playerID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to open account: %w", err)
	}

	balance, err := lockBalance(ctx, tx, playerID)
	if err != nil {
		return decimal.Zero, err
	}

	applied, err := recordEntry(ctx, tx, playerID, amount, reference)
	if err != nil {
		return decimal.Zero, err
	}

	if applied {
		balance, err = adjustBalance(ctx, tx, playerID, amount)
		if err != nil {
			return decimal.Zero, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("failed to commit credit: %w", err)
	}

	return balance, nil
}

func (that *dbLedger) Debit(ctx context.Context, playerID string, amount decimal.Decimal, reference string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", apperror.ErrInvalidAmount, amount)
	}

	tx, err := that.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	balance, err := lockBalance(ctx, tx, playerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("%w: no account for %s", apperror.ErrInsufficientFunds, playerID)
	}

	if err != nil {
		return decimal.Zero, err
	}

	// the entry goes first so a replayed debit is recognised before the funds check
	applied, err := recordEntry(ctx, tx, playerID, amount.Neg(), reference)
	if err != nil {
		return decimal.Zero, err
	}

	if applied {
		if balance.LessThan(amount) {
			return decimal.Zero, fmt.Errorf("%w: balance %s, need %s", apperror.ErrInsufficientFunds, balance, amount)
		}

		balance, err = adjustBalance(ctx, tx, playerID, amount.Neg())
		if err != nil {
			return decimal.Zero, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("failed to commit debit: %w", err)
	}

	return balance, nil
}

func (that *dbLedger) Balance(ctx context.Context, playerID string) (decimal.Decimal, error) {
	var balance string

	err := that.pool.QueryRow(ctx, `SELECT balance::text FROM accounts WHERE player_id = $1`, playerID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}

	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}

	return parseAmount(balance)
}

// lockBalance reads the balance and holds the row until the transaction ends.
func lockBalance(ctx context.Context, tx pgx.Tx, playerID string) (decimal.Decimal, error) {
	var balance string

	err := tx.QueryRow(ctx, `SELECT balance::text FROM accounts WHERE player_id = $1 FOR UPDATE`, playerID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, err
	}

	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to lock account: %w", err)
	}

	return parseAmount(balance)
}

// recordEntry reports false when the reference was already booked.
func recordEntry(ctx context.Context, tx pgx.Tx, playerID string, amount decimal.Decimal, reference string) (bool, error) {
	tag, err := tx.Exec(ctx,
		`INSERT INTO ledger_entries (reference, player_id, amount) VALUES ($1, $2, $3::numeric)
		ON CONFLICT (reference) DO NOTHING`,
		reference, playerID, amount.String(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to record ledger entry: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func adjustBalance(ctx context.Context, tx pgx.Tx, playerID string, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance string

	err := tx.QueryRow(ctx,
		`UPDATE accounts SET balance = balance + $1::numeric, updated_at = now() WHERE player_id = $2 RETURNING balance::text`,
		delta.String(), playerID,
	).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to update balance: %w", err)
	}

	return parseAmount(balance)
}

func parseAmount(value string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse amount %q: %w", value, err)
	}

	return amount, nil
}
