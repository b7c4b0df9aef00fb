package store

import (
	"context"

	"github.com/punchamoorthee/offpay/internal/domain"
)

// Accounts is the account side of the store. ApplyDelta is the only way a
// balance changes and it refuses to go below zero.
type Accounts interface {
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	GetAccountByHandle(ctx context.Context, handle string) (*domain.Account, error)
	ApplyDelta(ctx context.Context, id string, delta int64) (*domain.Account, error)
	CreateAccount(ctx context.Context, handle, pin string, balance int64) (*domain.Account, error)
}

// Ledger is read-only from outside a transaction. Records are appended through
// Tx and are never updated or removed.
type Ledger interface {
	ListTransactions(ctx context.Context, accountID string) ([]domain.TransactionRecord, error)
	LastTransactions(ctx context.Context, accountID string, n int) ([]domain.TransactionRecord, error)
}

// Tx is a unit of work. Nothing written through it is visible to other
// callers until the function passed to WithTx returns nil.
type Tx interface {
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	GetAccountByHandle(ctx context.Context, handle string) (*domain.Account, error)
	// LockAccounts acquires exclusive locks in ascending id order and returns
	// fresh snapshots keyed by id. It may be called once per Tx.
	LockAccounts(ctx context.Context, ids ...string) (map[string]*domain.Account, error)
	ApplyDelta(ctx context.Context, id string, delta int64) (*domain.Account, error)
	AppendTransaction(ctx context.Context, accountID string, rec domain.TransactionRecord) error
}

type Store interface {
	Accounts
	Ledger
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Close()
}

// lastN returns the tail of records, oldest first.
func lastN(records []domain.TransactionRecord, n int) []domain.TransactionRecord {
	if n <= 0 {
		return []domain.TransactionRecord{}
	}
	if len(records) > n {
		records = records[len(records)-n:]
	}
	out := make([]domain.TransactionRecord, len(records))
	copy(out, records)
	return out
}
