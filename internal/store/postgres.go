package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"

	"github.com/exaring/otelpgx"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/offpay/internal/domain"
)

//go:embed schema.sql
var schema string

const accountColumns = "id, handle, pin, balance, created_at"

type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore opens a pool and pings it. With tracing set, every query
// is reported as an OpenTelemetry span.
func NewPostgresStore(ctx context.Context, connString string, tracing bool) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	if tracing {
		config.ConnConfig.Tracer = otelpgx.NewTracer()
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{db: pool}, nil
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// Migrate applies the embedded schema. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Handle, &a.PIN, &a.Balance, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAccount is used by registration and the seeder; the transfer path
// never creates accounts.
func (s *PostgresStore) CreateAccount(ctx context.Context, handle, pin string, balance int64) (*domain.Account, error) {
	if balance < 0 {
		return nil, domain.ErrInvalidAmount
	}
	acct, err := scanAccount(s.db.QueryRow(ctx,
		"INSERT INTO accounts (id, handle, pin, balance) VALUES ($1, $2, $3, $4) RETURNING "+accountColumns,
		uuid.NewString(), handle, pin, balance,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrDuplicateHandle
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return acct, nil
}

// BulkCreateAccounts loads accounts with CopyFrom. IDs are generated for
// entries that have none.
func (s *PostgresStore) BulkCreateAccounts(ctx context.Context, accounts []domain.Account) (int64, error) {
	rows := make([][]any, 0, len(accounts))
	for i := range accounts {
		if accounts[i].ID == "" {
			accounts[i].ID = uuid.NewString()
		}
		a := accounts[i]
		rows = append(rows, []any{a.ID, a.Handle, a.PIN, a.Balance, a.CreatedAt})
	}
	n, err := s.db.CopyFrom(
		ctx,
		pgx.Identifier{"accounts"},
		[]string{"id", "handle", "pin", "balance", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("bulk insert: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountAccounts(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM accounts").Scan(&count)
	return count, err
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return scanAccount(s.db.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1", id))
}

func (s *PostgresStore) GetAccountByHandle(ctx context.Context, handle string) (*domain.Account, error) {
	return scanAccount(s.db.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE handle = $1", handle))
}

func (s *PostgresStore) ApplyDelta(ctx context.Context, id string, delta int64) (*domain.Account, error) {
	var out *domain.Account
	err := s.WithTx(ctx, func(tx Tx) error {
		acct, err := tx.ApplyDelta(ctx, id, delta)
		out = acct
		return err
	})
	return out, err
}

func (s *PostgresStore) ListTransactions(ctx context.Context, accountID string) ([]domain.TransactionRecord, error) {
	if err := s.checkExists(ctx, accountID); err != nil {
		return nil, err
	}
	return s.queryRecords(ctx,
		"SELECT reference_number, direction, counterparty, amount, date FROM transactions WHERE account_id = $1 ORDER BY id",
		accountID)
}

func (s *PostgresStore) LastTransactions(ctx context.Context, accountID string, n int) ([]domain.TransactionRecord, error) {
	if err := s.checkExists(ctx, accountID); err != nil {
		return nil, err
	}
	if n <= 0 {
		return []domain.TransactionRecord{}, nil
	}
	recs, err := s.queryRecords(ctx,
		"SELECT reference_number, direction, counterparty, amount, date FROM transactions WHERE account_id = $1 ORDER BY id DESC LIMIT $2",
		accountID, n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

func (s *PostgresStore) checkExists(ctx context.Context, accountID string) error {
	var exists bool
	err := s.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)", accountID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (s *PostgresStore) queryRecords(ctx context.Context, sql string, args ...any) ([]domain.TransactionRecord, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.TransactionRecord, error) {
		var r domain.TransactionRecord
		err := row.Scan(&r.ReferenceNumber, &r.Type, &r.Counterparty, &r.Amount, &r.Date)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan transactions: %w", err)
	}
	return recs, nil
}

// WithTx runs fn inside one READ COMMITTED transaction. Row locks taken by
// LockAccounts serialize writers on the same account; serialization failures
// and deadlocks come back as domain.ErrConflict.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("tx commit failed: %w", err))
	}
	return nil
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.Message)
		}
	}
	return err
}

type pgTx struct {
	tx     pgx.Tx
	locked bool
}

func (t *pgTx) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return scanAccount(t.tx.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1", id))
}

func (t *pgTx) GetAccountByHandle(ctx context.Context, handle string) (*domain.Account, error) {
	return scanAccount(t.tx.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE handle = $1", handle))
}

// LockAccounts acquires row locks in id order so two transfers over the same
// pair in opposite directions cannot deadlock.
func (t *pgTx) LockAccounts(ctx context.Context, ids ...string) (map[string]*domain.Account, error) {
	if t.locked {
		return nil, errors.New("accounts already locked in this transaction")
	}
	t.locked = true

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	out := make(map[string]*domain.Account, len(sorted))
	for _, id := range sorted {
		if _, dup := out[id]; dup {
			continue
		}
		acct, err := scanAccount(t.tx.QueryRow(ctx,
			"SELECT "+accountColumns+" FROM accounts WHERE id = $1 FOR UPDATE", id))
		if err != nil {
			if errors.Is(err, domain.ErrAccountNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("lock acquisition failed: %w", err)
		}
		out[id] = acct
	}
	return out, nil
}

func (t *pgTx) ApplyDelta(ctx context.Context, id string, delta int64) (*domain.Account, error) {
	acct, err := scanAccount(t.tx.QueryRow(ctx,
		"UPDATE accounts SET balance = balance + $1 WHERE id = $2 AND balance + $1 >= 0 RETURNING "+accountColumns,
		delta, id))
	if errors.Is(err, domain.ErrAccountNotFound) {
		// Either the row is missing or the guard refused a negative balance.
		var exists bool
		if qerr := t.tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)", id).Scan(&exists); qerr != nil {
			return nil, qerr
		}
		if exists {
			return nil, domain.ErrInsufficientFunds
		}
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("balance update failed: %w", err)
	}
	return acct, nil
}

func (t *pgTx) AppendTransaction(ctx context.Context, accountID string, rec domain.TransactionRecord) error {
	_, err := t.tx.Exec(ctx,
		"INSERT INTO transactions (account_id, reference_number, direction, counterparty, amount, date) VALUES ($1, $2, $3, $4, $5, $6)",
		accountID, rec.ReferenceNumber, string(rec.Type), rec.Counterparty, rec.Amount, rec.Date,
	)
	if err != nil {
		return fmt.Errorf("ledger entry failed: %w", err)
	}
	return nil
}
