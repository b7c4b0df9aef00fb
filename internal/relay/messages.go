package relay

import (
	"errors"
	"fmt"
	"strings"

	"github.com/punchamoorthee/offpay/internal/domain"
	"github.com/punchamoorthee/offpay/internal/service"
	"github.com/shopspring/decimal"
)

// Rupees renders a minor-unit amount, e.g. 2500 -> "Rs.25.00".
func Rupees(minor int64) string {
	return "Rs." + decimal.New(minor, -2).StringFixed(2)
}

// Summary is the human-readable text sent back over the relay for a
// successful request.
func Summary(out *service.Outcome) string {
	switch out.Op {
	case domain.OpTransfer:
		return fmt.Sprintf("%s sent to %s successfully. Ref %s.",
			Rupees(out.Transfer.Amount), out.Transfer.ReceiverHandle, out.Transfer.ReferenceNumber)
	case domain.OpBalance:
		return "Your current balance is " + Rupees(out.Balance)
	case domain.OpHistory:
		if len(out.History) == 0 {
			return "No transactions yet"
		}
		lines := make([]string, len(out.History))
		for i, h := range out.History {
			lines[i] = fmt.Sprintf("%s %s %s %s", h.Type, Rupees(h.Amount), h.Counterparty, h.Date)
		}
		return fmt.Sprintf("Last %d Transactions: %s", len(lines), strings.Join(lines, "; "))
	}
	return "Request processed"
}

// FailureText is the relay notification for a failed request.
func FailureText(op domain.Operation, err error) string {
	switch {
	case errors.Is(err, domain.ErrDecode):
		return "Invalid Option"
	case errors.Is(err, domain.ErrSenderNotFound):
		return "Sender not found"
	case errors.Is(err, domain.ErrReceiverNotFound):
		return "Receiver not found"
	case errors.Is(err, domain.ErrWrongPin) && op == domain.OpBalance:
		return "Unable to check balance due to Wrong Pin"
	case errors.Is(err, domain.ErrWrongPin):
		return "Transaction Failed due to Wrong Pin"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "Transaction Failed due to Insufficient Balance"
	case errors.Is(err, domain.ErrInvalidAmount):
		return "Transaction Failed due to Invalid Amount"
	case errors.Is(err, domain.ErrSelfTransfer):
		return "Transaction Failed: cannot send money to yourself"
	}
	return "An error occurred during transaction"
}
