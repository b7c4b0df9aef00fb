package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/punchamoorthee/offpay/internal/domain"
)

// newTestPostgres connects to TEST_DB_SOURCE, or skips.
func newTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("TEST_DB_SOURCE")
	if dsn == "" {
		t.Skip("TEST_DB_SOURCE not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn, false)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	return s
}

func uniqueHandle(prefix string) string {
	return fmt.Sprintf("%s-%d@test", prefix, time.Now().UnixNano())
}

func TestPostgresAccountLifecycle(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()

	handle := uniqueHandle("a")
	a, err := s.CreateAccount(ctx, handle, "1234", 100)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateAccount(ctx, handle, "1", 1); !errors.Is(err, domain.ErrDuplicateHandle) {
		t.Fatalf("duplicate handle err=%v", err)
	}
	got, err := s.GetAccountByHandle(ctx, handle)
	if err != nil || got.ID != a.ID || got.PIN != "1234" {
		t.Fatalf("GetAccountByHandle=%+v err=%v", got, err)
	}
	if _, err := s.GetAccount(ctx, "does-not-exist"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("err=%v", err)
	}

	if _, err := s.ApplyDelta(ctx, a.ID, -101); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("overdraw err=%v", err)
	}
	upd, err := s.ApplyDelta(ctx, a.ID, -100)
	if err != nil || upd.Balance != 0 {
		t.Fatalf("ApplyDelta=%+v err=%v", upd, err)
	}
	if _, err := s.ApplyDelta(ctx, "does-not-exist", 1); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("missing account err=%v", err)
	}
}

func TestPostgresTxAtomicity(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()
	a, _ := s.CreateAccount(ctx, uniqueHandle("a"), "1", 100)
	b, _ := s.CreateAccount(ctx, uniqueHandle("b"), "2", 100)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.LockAccounts(ctx, a.ID, b.ID); err != nil {
			return err
		}
		if _, err := tx.ApplyDelta(ctx, a.ID, -40); err != nil {
			return err
		}
		if err := tx.AppendTransaction(ctx, a.ID, domain.TransactionRecord{
			ReferenceNumber: "000000000001", Type: domain.Debit, Counterparty: "x", Amount: 40, Date: "d",
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if got, _ := s.GetAccount(ctx, a.ID); got.Balance != 100 {
		t.Fatalf("balance=%d after rollback", got.Balance)
	}
	if recs, _ := s.ListTransactions(ctx, a.ID); len(recs) != 0 {
		t.Fatalf("records after rollback: %+v", recs)
	}

	for i := 1; i <= 3; i++ {
		err := s.WithTx(ctx, func(tx Tx) error {
			if _, err := tx.LockAccounts(ctx, b.ID, a.ID); err != nil {
				return err
			}
			return tx.AppendTransaction(ctx, b.ID, domain.TransactionRecord{
				ReferenceNumber: fmt.Sprintf("%012d", i), Type: domain.Credit, Counterparty: "x", Amount: int64(i), Date: "d",
			})
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	last, err := s.LastTransactions(ctx, b.ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(last) != 2 || last[0].Amount != 2 || last[1].Amount != 3 {
		t.Fatalf("LastTransactions=%+v", last)
	}
}

func TestPostgresConcurrentOppositeTransfers(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()
	a, _ := s.CreateAccount(ctx, uniqueHandle("a"), "1", 1000)
	b, _ := s.CreateAccount(ctx, uniqueHandle("b"), "2", 1000)

	move := func(from, to string) error {
		return s.WithTx(ctx, func(tx Tx) error {
			if _, err := tx.LockAccounts(ctx, from, to); err != nil {
				return err
			}
			if _, err := tx.ApplyDelta(ctx, from, -1); err != nil {
				return err
			}
			_, err := tx.ApplyDelta(ctx, to, 1)
			return err
		})
	}

	const n = 50
	var wg sync.WaitGroup
	wg.Add(2 * n)
	for i := 0; i < n; i++ {
		go func() { defer wg.Done(); _ = move(a.ID, b.ID) }()
		go func() { defer wg.Done(); _ = move(b.ID, a.ID) }()
	}
	wg.Wait()

	ga, _ := s.GetAccount(ctx, a.ID)
	gb, _ := s.GetAccount(ctx, b.ID)
	if ga.Balance+gb.Balance != 2000 {
		t.Fatalf("total=%d want 2000", ga.Balance+gb.Balance)
	}
}
