package models

import (
	"encoding/json"

	"github.com/punchamoorthee/offpay/internal/domain"
)

// PIN decodes from a JSON string or number; older clients send a number.
type PIN string

func (p *PIN) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = PIN(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*p = PIN(n.String())
	return nil
}

// TransferRequest is the online transfer payload. The sender comes from the
// session, never from the body.
type TransferRequest struct {
	ReceiverHandle string `json:"receiverUpi"`
	Amount         int64  `json:"amount"`
	PIN            PIN    `json:"pin"`
}

// TransferResponse is returned with 201 Created.
type TransferResponse struct {
	ReferenceNumber string `json:"referenceNumber"`
	Balance         int64  `json:"balance"`
	Message         string `json:"message"`
}

type AccountResponse struct {
	ID      string `json:"id"`
	Handle  string `json:"upiId"`
	Balance int64  `json:"balance"`
}

type BalanceResponse struct {
	Balance int64 `json:"balance"`
}

type TransactionsResponse struct {
	Transactions []domain.TransactionRecord `json:"transactions"`
}

// EnvelopeRequest asks the server to build an offline envelope for the
// session's account.
type EnvelopeRequest struct {
	Option         string `json:"option"`
	ReceiverHandle string `json:"receiverUpi,omitempty"`
	Amount         int64  `json:"amount,omitempty"`
	PIN            PIN    `json:"pin,omitempty"`
	Send           bool   `json:"send,omitempty"`
}

type EnvelopeResponse struct {
	Envelope string `json:"envelope"`
	SMSLink  string `json:"smsLink,omitempty"`
	Sent     bool   `json:"sent"`
}

// InboundMessage is the JSON form of a relay webhook call.
type InboundMessage struct {
	Message string `json:"message"`
	From    string `json:"from"`
}

// RelayResponse reports the result of an inbound envelope. Last5Transactions
// is set only for history queries and is then always a list, possibly empty.
type RelayResponse struct {
	Operation         string                `json:"operation"`
	Message           string                `json:"message"`
	ReferenceNumber   string                `json:"referenceNumber,omitempty"`
	Balance           *int64                `json:"balance,omitempty"`
	Last5Transactions *[]domain.HistoryItem `json:"last5Transactions,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
