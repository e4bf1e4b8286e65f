package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Service struct {
	db  *pgxpool.Pool
	log *slog.Logger
}

func NewService(db *pgxpool.Pool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, log: logger}
}

// Debit removes amount from the account in its own transaction.
func (s *Service) Debit(ctx context.Context, acct AccountID, amount decimal.Decimal, reason string) (Receipt, error) {
	var receipt Receipt
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		receipt, err = DebitTx(ctx, tx, acct, amount, reason)
		return err
	})
	return receipt, err
}

// Credit adds amount to the account in its own transaction, creating the
// account on first credit.
func (s *Service) Credit(ctx context.Context, acct AccountID, amount decimal.Decimal, reason string) (Receipt, error) {
	var receipt Receipt
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		receipt, err = CreditTx(ctx, tx, acct, amount, reason)
		return err
	})
	return receipt, err
}

// Transfer moves amount between two accounts atomically: the debit and the
// credit either both apply or neither does. Locks are taken in AccountID
// order, never in argument order.
func (s *Service) Transfer(ctx context.Context, from, to AccountID, amount decimal.Decimal, reason string) (Receipt, error) {
	if from == to {
		return Receipt{}, ErrSameAccount
	}
	var receipt Receipt
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		first, second := from, to
		if second.Less(first) {
			first, second = second, first
		}
		if err := lockAccount(ctx, tx, first); err != nil {
			return err
		}
		if err := lockAccount(ctx, tx, second); err != nil {
			return err
		}
		var err error
		if receipt, err = DebitTx(ctx, tx, from, amount, reason); err != nil {
			return err
		}
		_, err = CreditTx(ctx, tx, to, amount, reason)
		return err
	})
	return receipt, err
}

// Balances lists every non-empty scope the owner holds.
func (s *Service) Balances(ctx context.Context, owner string) ([]Balance, error) {
	rows, err := s.db.Query(ctx, `
		SELECT scope, balance::text
		FROM accounts
		WHERE owner = $1 AND balance > 0
		ORDER BY balance DESC
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Balance
	for rows.Next() {
		var b Balance
		var raw string
		if err := rows.Scan(&b.Scope, &raw); err != nil {
			return nil, err
		}
		if b.Amount, err = decimal.NewFromString(raw); err != nil {
			return nil, fmt.Errorf("decode balance: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// RecentTransactions returns the newest log rows for an owner.
func (s *Service) RecentTransactions(ctx context.Context, owner string, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, owner, scope, amount::text, reason, balance_after::text, created_at
		FROM account_transactions
		WHERE owner = $1
		ORDER BY id DESC
		LIMIT $2
	`, owner, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		var amount, after string
		if err := rows.Scan(&t.ID, &t.Account.Owner, &t.Account.Scope, &amount, &t.Reason, &after, &t.CreatedAt); err != nil {
			return nil, err
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("decode amount: %w", err)
		}
		if t.BalanceAfter, err = decimal.NewFromString(after); err != nil {
			return nil, fmt.Errorf("decode balance_after: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CollectZeroBalances removes regional-currency rows that have drained to
// zero. The gold scope is never collected. Run by the worker.
func (s *Service) CollectZeroBalances(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM accounts
		WHERE balance = 0 AND scope LIKE 'cc:%'
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Service) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DebitTx removes amount from the account inside the caller's transaction.
// The balance is re-read under a row lock; a balance below amount fails with
// ErrInsufficientFunds and mutates nothing. Draining a regional account to
// zero deletes its row; the transaction log keeps the full history.
func DebitTx(ctx context.Context, tx pgx.Tx, acct AccountID, amount decimal.Decimal, reason string) (Receipt, error) {
	if err := validateAmount(amount); err != nil {
		return Receipt{}, err
	}

	balance, err := lockBalance(ctx, tx, acct)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Receipt{}, ErrInsufficientFunds
		}
		return Receipt{}, err
	}
	if balance.LessThan(amount) {
		return Receipt{}, ErrInsufficientFunds
	}

	next := balance.Sub(amount)
	if next.IsZero() && IsRegionScope(acct.Scope) {
		if _, err := tx.Exec(ctx, `
			DELETE FROM accounts WHERE owner = $1 AND scope = $2
		`, acct.Owner, acct.Scope); err != nil {
			return Receipt{}, err
		}
	} else {
		if _, err := tx.Exec(ctx, `
			UPDATE accounts SET balance = $1::numeric, updated_at = now()
			WHERE owner = $2 AND scope = $3
		`, next.String(), acct.Owner, acct.Scope); err != nil {
			return Receipt{}, err
		}
	}

	if err := appendTransaction(ctx, tx, acct, amount.Neg(), reason, next); err != nil {
		return Receipt{}, err
	}
	return Receipt{Account: acct, Amount: amount.Neg(), Reason: reason, BalanceAfter: next}, nil
}

// CreditTx adds amount to the account inside the caller's transaction,
// creating the account row on first credit. Fails with ErrOverflow if the
// resulting balance would exceed MaxTransactionAmount.
func CreditTx(ctx context.Context, tx pgx.Tx, acct AccountID, amount decimal.Decimal, reason string) (Receipt, error) {
	if err := validateAmount(amount); err != nil {
		return Receipt{}, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO accounts (owner, scope, balance)
		VALUES ($1, $2, 0)
		ON CONFLICT (owner, scope) DO NOTHING
	`, acct.Owner, acct.Scope); err != nil {
		return Receipt{}, err
	}

	balance, err := lockBalance(ctx, tx, acct)
	if err != nil {
		return Receipt{}, err
	}
	next := balance.Add(amount)
	if next.GreaterThan(MaxTransactionAmount) {
		return Receipt{}, ErrOverflow
	}

	if _, err := tx.Exec(ctx, `
		UPDATE accounts SET balance = $1::numeric, updated_at = now()
		WHERE owner = $2 AND scope = $3
	`, next.String(), acct.Owner, acct.Scope); err != nil {
		return Receipt{}, err
	}
	if err := appendTransaction(ctx, tx, acct, amount, reason, next); err != nil {
		return Receipt{}, err
	}
	return Receipt{Account: acct, Amount: amount, Reason: reason, BalanceAfter: next}, nil
}

func lockAccount(ctx context.Context, tx pgx.Tx, acct AccountID) error {
	_, err := lockBalance(ctx, tx, acct)
	if errors.Is(err, ErrAccountNotFound) {
		return nil // created lazily by the credit leg if needed
	}
	return err
}

func lockBalance(ctx context.Context, tx pgx.Tx, acct AccountID) (decimal.Decimal, error) {
	var raw string
	err := tx.QueryRow(ctx, `
		SELECT balance::text
		FROM accounts
		WHERE owner = $1 AND scope = $2
		FOR UPDATE
	`, acct.Owner, acct.Scope).Scan(&raw)
	if err == pgx.ErrNoRows {
		return decimal.Zero, ErrAccountNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode balance: %w", err)
	}
	return balance, nil
}

func appendTransaction(ctx context.Context, tx pgx.Tx, acct AccountID, amount decimal.Decimal, reason string, balanceAfter decimal.Decimal) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO account_transactions (owner, scope, amount, reason, balance_after)
		VALUES ($1, $2, $3::numeric, $4, $5::numeric)
	`, acct.Owner, acct.Scope, amount.String(), reason, balanceAfter.String())
	return err
}
