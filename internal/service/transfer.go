package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/offpay/internal/domain"
	"github.com/punchamoorthee/offpay/internal/store"
)

// DateLayout renders record timestamps the way the mobile clients display them.
const DateLayout = "02/01/2006, 3:04:05 pm MST"

// HistoryLimit is how many records a history query returns.
const HistoryLimit = 5

var transfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "offpay_transfers_total",
	Help: "Transfer attempts by channel and outcome",
}, []string{"channel", "outcome"})

var referenceSpace = big.NewInt(1_000_000_000_000)

type TransferService struct {
	store  store.Store
	loc    *time.Location
	now    func() time.Time
	newRef func() (string, error)
}

type Option func(*TransferService)

func WithLocation(loc *time.Location) Option {
	return func(s *TransferService) { s.loc = loc }
}

func WithClock(now func() time.Time) Option {
	return func(s *TransferService) { s.now = now }
}

func WithReferenceGenerator(gen func() (string, error)) Option {
	return func(s *TransferService) { s.newRef = gen }
}

func NewTransferService(s store.Store, opts ...Option) *TransferService {
	svc := &TransferService{
		store:  s,
		loc:    time.Local,
		now:    time.Now,
		newRef: RandomReference,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// RandomReference draws a 12-digit reference number. Uniqueness is not
// checked; the space keeps collisions negligible.
func RandomReference() (string, error) {
	n, err := rand.Int(rand.Reader, referenceSpace)
	if err != nil {
		return "", fmt.Errorf("reference number: %w", err)
	}
	return fmt.Sprintf("%012d", n), nil
}

// Transfer validates and executes req. Validation runs in a fixed order
// (sender, receiver, PIN, amount and funds) and the first failure wins. Both
// balance updates and both ledger appends commit together or not at all.
// Resubmitting the same request performs a second transfer.
func (s *TransferService) Transfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	if req.Channel == "" {
		req.Channel = domain.ChannelOnline
	}
	at := &attempt{state: StateReceived}

	res, err := s.transfer(ctx, req, at)
	if err != nil {
		at.advance(StateRejected)
		log.Printf("transfer rejected: channel=%s sender=%s receiver=%s at=%s err=%v",
			req.Channel, req.SenderID, req.ReceiverHandle, at.failedAt, err)
		transfersTotal.WithLabelValues(string(req.Channel), outcome(err)).Inc()
		return nil, err
	}
	at.advance(StateCompleted)
	transfersTotal.WithLabelValues(string(req.Channel), "completed").Inc()
	return res, nil
}

func (s *TransferService) transfer(ctx context.Context, req domain.TransferRequest, at *attempt) (*domain.TransferResult, error) {
	ref, err := s.newRef()
	if err != nil {
		return nil, err
	}
	date := s.now().In(s.loc).Format(DateLayout)

	var res *domain.TransferResult
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		// 1. Sender exists.
		sender, err := tx.GetAccount(ctx, req.SenderID)
		if errors.Is(err, domain.ErrAccountNotFound) {
			return domain.ErrSenderNotFound
		} else if err != nil {
			return err
		}

		// 2. Receiver handle resolves.
		receiver, err := tx.GetAccountByHandle(ctx, req.ReceiverHandle)
		if errors.Is(err, domain.ErrAccountNotFound) {
			return domain.ErrReceiverNotFound
		} else if err != nil {
			return err
		}
		if receiver.ID == sender.ID {
			return domain.ErrSelfTransfer
		}

		locked, err := tx.LockAccounts(ctx, sender.ID, receiver.ID)
		if err != nil {
			return err
		}
		sender, receiver = locked[sender.ID], locked[receiver.ID]

		// 3. PIN, compared verbatim.
		if sender.PIN != req.PIN {
			return domain.ErrWrongPin
		}

		// 4. Amount and funds. A transfer that would leave exactly zero is refused.
		if req.Amount <= 0 {
			return domain.ErrInvalidAmount
		}
		if sender.Balance <= req.Amount {
			return domain.ErrInsufficientFunds
		}
		at.advance(StateValidated)

		debited, err := tx.ApplyDelta(ctx, sender.ID, -req.Amount)
		if err != nil {
			return err
		}
		credited, err := tx.ApplyDelta(ctx, receiver.ID, req.Amount)
		if err != nil {
			return err
		}
		at.advance(StateApplied)

		err = tx.AppendTransaction(ctx, sender.ID, domain.TransactionRecord{
			ReferenceNumber: ref,
			Type:            domain.Debit,
			Counterparty:    receiver.Handle,
			Amount:          req.Amount,
			Date:            date,
		})
		if err != nil {
			return err
		}
		err = tx.AppendTransaction(ctx, receiver.ID, domain.TransactionRecord{
			ReferenceNumber: ref,
			Type:            domain.Credit,
			Counterparty:    sender.Handle,
			Amount:          req.Amount,
			Date:            date,
		})
		if err != nil {
			return err
		}
		at.advance(StateRecorded)

		res = &domain.TransferResult{
			ReferenceNumber: ref,
			SenderBalance:   debited.Balance,
			ReceiverBalance: credited.Balance,
			ReceiverHandle:  receiver.Handle,
			Amount:          req.Amount,
			Message:         "Amount sent successfully",
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}
	return res, nil
}

// Balance answers a PIN-checked balance query.
func (s *TransferService) Balance(ctx context.Context, accountID, pin string) (int64, error) {
	acct, err := s.Account(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if acct.PIN != pin {
		return 0, domain.ErrWrongPin
	}
	return acct.Balance, nil
}

// Account returns the account for an already authenticated caller.
func (s *TransferService) Account(ctx context.Context, accountID string) (*domain.Account, error) {
	acct, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, senderError(err)
	}
	return acct, nil
}

// LastTransactions returns up to n of the most recent records, oldest first.
func (s *TransferService) LastTransactions(ctx context.Context, accountID string, n int) ([]domain.TransactionRecord, error) {
	recs, err := s.store.LastTransactions(ctx, accountID, n)
	if err != nil {
		return nil, senderError(err)
	}
	return recs, nil
}

// History is LastTransactions in the compact form sent to offline clients.
func (s *TransferService) History(ctx context.Context, accountID string, n int) ([]domain.HistoryItem, error) {
	recs, err := s.LastTransactions(ctx, accountID, n)
	if err != nil {
		return nil, err
	}
	items := make([]domain.HistoryItem, len(recs))
	for i, r := range recs {
		items[i] = r.Item()
	}
	return items, nil
}

// Transactions returns the full ledger of an account in append order.
func (s *TransferService) Transactions(ctx context.Context, accountID string) ([]domain.TransactionRecord, error) {
	recs, err := s.store.ListTransactions(ctx, accountID)
	if err != nil {
		return nil, senderError(err)
	}
	return recs, nil
}

// Outcome is the result of Execute; exactly one of its payload fields is set
// according to Op.
type Outcome struct {
	Op       domain.Operation
	Transfer *domain.TransferResult
	Balance  int64
	History  []domain.HistoryItem
}

// Execute routes a request by its operation code.
func (s *TransferService) Execute(ctx context.Context, req domain.TransferRequest) (*Outcome, error) {
	switch req.Op {
	case domain.OpTransfer:
		res, err := s.Transfer(ctx, req)
		if err != nil {
			return nil, err
		}
		return &Outcome{Op: req.Op, Transfer: res}, nil
	case domain.OpBalance:
		bal, err := s.Balance(ctx, req.SenderID, req.PIN)
		if err != nil {
			return nil, err
		}
		return &Outcome{Op: req.Op, Balance: bal}, nil
	case domain.OpHistory:
		items, err := s.History(ctx, req.SenderID, HistoryLimit)
		if err != nil {
			return nil, err
		}
		return &Outcome{Op: req.Op, History: items}, nil
	}
	return nil, fmt.Errorf("%w: unknown operation %q", domain.ErrDecode, string(req.Op))
}

var domainErrors = []error{
	domain.ErrSenderNotFound,
	domain.ErrReceiverNotFound,
	domain.ErrWrongPin,
	domain.ErrInsufficientFunds,
	domain.ErrInvalidAmount,
	domain.ErrSelfTransfer,
	domain.ErrDecode,
	domain.ErrStoreUnavailable,
	domain.ErrAccountNotFound,
	domain.ErrConflict,
}

// storeError passes domain errors through and files everything else under
// ErrStoreUnavailable.
func storeError(err error) error {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

func senderError(err error) error {
	if errors.Is(err, domain.ErrAccountNotFound) {
		return domain.ErrSenderNotFound
	}
	return storeError(err)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrSenderNotFound):
		return "sender_not_found"
	case errors.Is(err, domain.ErrReceiverNotFound):
		return "receiver_not_found"
	case errors.Is(err, domain.ErrWrongPin):
		return "wrong_pin"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, domain.ErrSelfTransfer):
		return "self_transfer"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	}
	return "store_unavailable"
}
