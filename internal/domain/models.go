package domain

import "time"

// Account is a user's cash balance in minor units, addressed internally by ID
// and externally by its payment handle.
type Account struct {
	ID        string    `json:"id"`
	Handle    string    `json:"handle"`
	PIN       string    `json:"-"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

type Direction string

const (
	Debit  Direction = "Debit"
	Credit Direction = "Credit"
)

// TransactionRecord is one side of a transfer as seen by the account that owns it.
// A transfer always yields a Debit on the sender and a Credit on the receiver
// that share ReferenceNumber and Amount.
type TransactionRecord struct {
	ReferenceNumber string    `json:"referenceNumber"`
	Type            Direction `json:"type"`
	Counterparty    string    `json:"upiId"`
	Amount          int64     `json:"amount"`
	Date            string    `json:"date"`
}

type Channel string

const (
	ChannelOnline  Channel = "online"
	ChannelOffline Channel = "offline"
)

// Operation selects what an offline request asks for.
type Operation string

const (
	OpTransfer Operation = "1"
	OpBalance  Operation = "2"
	OpHistory  Operation = "3"
)

func (o Operation) Valid() bool {
	return o == OpTransfer || o == OpBalance || o == OpHistory
}

func (o Operation) String() string {
	switch o {
	case OpTransfer:
		return "transfer"
	case OpBalance:
		return "balance"
	case OpHistory:
		return "history"
	}
	return "unknown"
}

// TransferRequest is built per call and never persisted.
type TransferRequest struct {
	SenderID       string
	ReceiverHandle string
	Amount         int64
	PIN            string
	Channel        Channel
	Op             Operation
}

// TransferResult is returned once a transfer reaches Completed.
type TransferResult struct {
	ReferenceNumber string `json:"referenceNumber"`
	SenderBalance   int64  `json:"balance"`
	ReceiverBalance int64  `json:"-"`
	ReceiverHandle  string `json:"-"`
	Amount          int64  `json:"-"`
	Message         string `json:"message"`
}

// HistoryItem is the compact form of a record used by history queries.
type HistoryItem struct {
	Type         Direction `json:"type"`
	Amount       int64     `json:"amount"`
	Counterparty string    `json:"upiId"`
	Date         string    `json:"date"`
}

func (r TransactionRecord) Item() HistoryItem {
	return HistoryItem{Type: r.Type, Amount: r.Amount, Counterparty: r.Counterparty, Date: r.Date}
}
