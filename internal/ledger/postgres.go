package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres keeps balances in the accounts table. Balances are NUMERIC(20,0) so
// the full uint64 range fits; amounts are bound as decimal text.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool. The schema comes from database.Migrate.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// maxBalance keeps NUMERIC balances inside uint64.
const maxBalance = "18446744073709551615"

// OpenAccount registers a payable account, crediting it if it already exists.
func (p *Postgres) OpenAccount(ctx context.Context, account uuid.UUID, balance uint64) error {
	q := `
	INSERT INTO accounts (id, balance, frozen, payable)
	VALUES ($1, $2::numeric, false, true)
	ON CONFLICT (id) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance, payable = true
	WHERE accounts.balance + EXCLUDED.balance <= $3::numeric
	`
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, q, account, strconv.FormatUint(balance, 10), maxBalance)
		if err != nil {
			return fmt.Errorf("open account %s: %w", account, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: balance overflow on %s", ErrTransferRejected, account)
		}
		return nil
	})
}

// AccountBalance returns the balance of an account, zero if it does not exist.
func (p *Postgres) AccountBalance(ctx context.Context, account uuid.UUID) (uint64, error) {
	var s string
	err := p.pool.QueryRow(ctx, `SELECT balance::text FROM accounts WHERE id = $1`, account).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(s, 10, 64)
}

// Transfer debits and credits inside one transaction and appends to the transfers journal.
func (p *Postgres) Transfer(ctx context.Context, from, to uuid.UUID, amount uint64) error {
	if amount == 0 || from == to {
		return fmt.Errorf("%w: %d from %s to %s", ErrTransferRejected, amount, from, to)
	}
	amt := strconv.FormatUint(amount, 10)

	debitQ := `
	UPDATE accounts SET balance = balance - $2::numeric
	WHERE id = $1 AND NOT frozen AND balance >= $2::numeric
	`
	// credited accounts that do not exist yet are created non-payable (escrow, sinks)
	creditQ := `
	INSERT INTO accounts (id, balance, frozen, payable)
	VALUES ($1, $2::numeric, false, false)
	ON CONFLICT (id) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance
	WHERE NOT accounts.frozen AND accounts.balance + EXCLUDED.balance <= $3::numeric
	`
	journalQ := `INSERT INTO transfers (from_account, to_account, amount) VALUES ($1, $2, $3::numeric)`

	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, debitQ, from, amt)
		if err != nil {
			return fmt.Errorf("debit %s: %w", from, err)
		}
		if tag.RowsAffected() == 0 {
			return p.debitFailure(ctx, tx, from, amount)
		}
		tag, err = tx.Exec(ctx, creditQ, to, amt, maxBalance)
		if err != nil {
			return fmt.Errorf("credit %s: %w", to, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: account %s frozen or full", ErrTransferRejected, to)
		}
		if _, err := tx.Exec(ctx, journalQ, from, to, amt); err != nil {
			return fmt.Errorf("journal transfer: %w", err)
		}
		return nil
	})
}

// debitFailure tells an empty account from a frozen or missing one.
func (p *Postgres) debitFailure(ctx context.Context, tx pgx.Tx, from uuid.UUID, amount uint64) error {
	var frozen bool
	err := tx.QueryRow(ctx, `SELECT frozen FROM accounts WHERE id = $1`, from).Scan(&frozen)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: unknown account %s", ErrTransferRejected, from)
	}
	if err != nil {
		return err
	}
	if frozen {
		return fmt.Errorf("%w: account %s frozen", ErrTransferRejected, from)
	}
	return fmt.Errorf("%w: %s cannot cover %d", ErrInsufficientFunds, from, amount)
}

// Destination resolves a player to their payable account.
func (p *Postgres) Destination(ctx context.Context, player uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	q := `SELECT id FROM accounts WHERE id = $1 AND payable AND NOT frozen`
	err := p.pool.QueryRow(ctx, q, player).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrNoDestination, player)
	}
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

var _ Accounts = (*Postgres)(nil)
