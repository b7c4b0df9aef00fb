package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/offpay/internal/domain"
)

type memAccount struct {
	mu      sync.Mutex
	acct    domain.Account
	history []domain.TransactionRecord
}

// MemoryStore keeps accounts in process. Each account carries its own mutex so
// transfers over disjoint pairs run in parallel; a transaction holds the
// mutexes of every account it touches until it commits or aborts.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*memAccount
	handles  map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*memAccount),
		handles:  make(map[string]string),
	}
}

func (s *MemoryStore) Close() {}

func (s *MemoryStore) lookup(id string) (*memAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return a, nil
}

func (s *MemoryStore) lookupHandle(handle string) (*memAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.handles[handle]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return s.accounts[id], nil
}

func (a *memAccount) snapshot() *domain.Account {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := a.acct
	return &cp
}

func (s *MemoryStore) CreateAccount(ctx context.Context, handle, pin string, balance int64) (*domain.Account, error) {
	if balance < 0 {
		return nil, domain.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.handles[handle]; taken {
		return nil, domain.ErrDuplicateHandle
	}
	a := &memAccount{acct: domain.Account{
		ID:        uuid.NewString(),
		Handle:    handle,
		PIN:       pin,
		Balance:   balance,
		CreatedAt: time.Now(),
	}}
	s.accounts[a.acct.ID] = a
	s.handles[handle] = a.acct.ID
	cp := a.acct
	return &cp, nil
}

func (s *MemoryStore) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	a, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return a.snapshot(), nil
}

func (s *MemoryStore) GetAccountByHandle(ctx context.Context, handle string) (*domain.Account, error) {
	a, err := s.lookupHandle(handle)
	if err != nil {
		return nil, err
	}
	return a.snapshot(), nil
}

func (s *MemoryStore) ApplyDelta(ctx context.Context, id string, delta int64) (*domain.Account, error) {
	var out *domain.Account
	err := s.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.LockAccounts(ctx, id); err != nil {
			return err
		}
		acct, err := tx.ApplyDelta(ctx, id, delta)
		out = acct
		return err
	})
	return out, err
}

func (s *MemoryStore) ListTransactions(ctx context.Context, accountID string) ([]domain.TransactionRecord, error) {
	a, err := s.lookup(accountID)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.TransactionRecord, len(a.history))
	copy(out, a.history)
	return out, nil
}

func (s *MemoryStore) LastTransactions(ctx context.Context, accountID string, n int) ([]domain.TransactionRecord, error) {
	a, err := s.lookup(accountID)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return lastN(a.history, n), nil
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memTx{
		s:       s,
		held:    make(map[string]*memAccount),
		deltas:  make(map[string]int64),
		appends: make(map[string][]domain.TransactionRecord),
	}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

var errNotLocked = errors.New("account not locked by this transaction")

type memTx struct {
	s       *MemoryStore
	held    map[string]*memAccount
	order   []*memAccount
	deltas  map[string]int64
	appends map[string][]domain.TransactionRecord
}

// view overlays staged deltas on a held account. Caller holds a.mu.
func (t *memTx) view(id string, a *memAccount) *domain.Account {
	cp := a.acct
	cp.Balance += t.deltas[id]
	return &cp
}

func (t *memTx) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	if a, ok := t.held[id]; ok {
		return t.view(id, a), nil
	}
	return t.s.GetAccount(ctx, id)
}

func (t *memTx) GetAccountByHandle(ctx context.Context, handle string) (*domain.Account, error) {
	t.s.mu.RLock()
	id, ok := t.s.handles[handle]
	t.s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return t.GetAccount(ctx, id)
}

func (t *memTx) LockAccounts(ctx context.Context, ids ...string) (map[string]*domain.Account, error) {
	if len(t.held) > 0 {
		return nil, errors.New("accounts already locked in this transaction")
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	out := make(map[string]*domain.Account, len(sorted))
	for _, id := range sorted {
		if _, dup := t.held[id]; dup {
			continue
		}
		a, err := t.s.lookup(id)
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		t.held[id] = a
		t.order = append(t.order, a)
		out[id] = t.view(id, a)
	}
	return out, nil
}

func (t *memTx) ApplyDelta(ctx context.Context, id string, delta int64) (*domain.Account, error) {
	a, ok := t.held[id]
	if !ok {
		return nil, fmt.Errorf("apply delta %s: %w", id, errNotLocked)
	}
	if a.acct.Balance+t.deltas[id]+delta < 0 {
		return nil, domain.ErrInsufficientFunds
	}
	t.deltas[id] += delta
	return t.view(id, a), nil
}

func (t *memTx) AppendTransaction(ctx context.Context, accountID string, rec domain.TransactionRecord) error {
	if _, ok := t.held[accountID]; !ok {
		return fmt.Errorf("append %s: %w", accountID, errNotLocked)
	}
	t.appends[accountID] = append(t.appends[accountID], rec)
	return nil
}

func (t *memTx) commit() {
	for id, a := range t.held {
		a.acct.Balance += t.deltas[id]
		a.history = append(a.history, t.appends[id]...)
	}
}

func (t *memTx) release() {
	for i := len(t.order) - 1; i >= 0; i-- {
		t.order[i].mu.Unlock()
	}
	t.order = nil
	t.held = map[string]*memAccount{}
}
