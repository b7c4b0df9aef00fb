package domain

import "errors"

var (
	ErrSenderNotFound    = errors.New("sender not found")
	ErrReceiverNotFound  = errors.New("receiver not found")
	ErrWrongPin          = errors.New("wrong pin")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrSelfTransfer      = errors.New("cannot transfer to self")
	ErrDecode            = errors.New("malformed envelope")
	ErrStoreUnavailable  = errors.New("store unavailable")

	// ErrAccountNotFound is the store-level miss; the engine narrows it to
	// ErrSenderNotFound or ErrReceiverNotFound.
	ErrAccountNotFound = errors.New("account not found")

	// ErrConflict means the store aborted the unit of work on contention; the
	// caller may resubmit.
	ErrConflict = errors.New("concurrent update conflict")

	ErrDuplicateHandle = errors.New("payment handle already taken")
)
