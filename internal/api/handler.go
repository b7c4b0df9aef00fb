package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/offpay/internal/auth"
	"github.com/punchamoorthee/offpay/internal/domain"
	"github.com/punchamoorthee/offpay/internal/models"
	"github.com/punchamoorthee/offpay/internal/relay"
	"github.com/punchamoorthee/offpay/internal/service"
)

// Metrics
var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offpay_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "offpay_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	svc         *service.TransferService
	relay       *relay.Dispatcher
	relayNumber string
}

// NewHandler wires the HTTP surface. relayNumber is the address offline
// clients text their envelopes to.
func NewHandler(svc *service.TransferService, d *relay.Dispatcher, relayNumber string) *Handler {
	return &Handler{svc: svc, relay: d, relayNumber: relayNumber}
}

func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	const method, endpoint = "POST", "/transfers"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues(method, endpoint))
	defer timer.ObserveDuration()

	senderID, _ := auth.AccountID(r.Context())

	var req models.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", method, endpoint)
		return
	}
	if req.ReceiverHandle == "" || req.PIN == "" {
		h.respondError(w, http.StatusBadRequest, "Missing required fields", method, endpoint)
		return
	}

	res, err := h.svc.Transfer(r.Context(), domain.TransferRequest{
		SenderID:       senderID,
		ReceiverHandle: req.ReceiverHandle,
		Amount:         req.Amount,
		PIN:            string(req.PIN),
		Channel:        domain.ChannelOnline,
		Op:             domain.OpTransfer,
	})
	if err != nil {
		h.respondDomainError(w, err, method, endpoint)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/accounts/me/transactions?ref=%s", res.ReferenceNumber))
	h.respondJSON(w, http.StatusCreated, models.TransferResponse{
		ReferenceNumber: res.ReferenceNumber,
		Balance:         res.SenderBalance,
		Message:         res.Message,
	}, method, endpoint)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	const method, endpoint = "GET", "/accounts/me"
	id, _ := auth.AccountID(r.Context())

	acct, err := h.svc.Account(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err, method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, models.AccountResponse{
		ID:      acct.ID,
		Handle:  acct.Handle,
		Balance: acct.Balance,
	}, method, endpoint)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	const method, endpoint = "GET", "/accounts/me/balance"
	id, _ := auth.AccountID(r.Context())

	acct, err := h.svc.Account(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err, method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, models.BalanceResponse{Balance: acct.Balance}, method, endpoint)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	const method, endpoint = "GET", "/accounts/me/transactions"
	id, _ := auth.AccountID(r.Context())

	var (
		recs []domain.TransactionRecord
		err  error
	)
	if s := r.URL.Query().Get("limit"); s != "" {
		n, perr := strconv.Atoi(s)
		if perr != nil || n < 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer", method, endpoint)
			return
		}
		recs, err = h.svc.LastTransactions(r.Context(), id, n)
	} else {
		recs, err = h.svc.Transactions(r.Context(), id)
	}
	if err != nil {
		h.respondDomainError(w, err, method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, models.TransactionsResponse{Transactions: recs}, method, endpoint)
}

// statusFor maps the error taxonomy onto HTTP.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrSenderNotFound):
		return http.StatusNotFound, "Sender account not found"
	case errors.Is(err, domain.ErrReceiverNotFound):
		return http.StatusNotFound, "Receiver account not found"
	case errors.Is(err, domain.ErrWrongPin):
		return http.StatusForbidden, "Incorrect PIN"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "Insufficient balance"
	case errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, "Amount must be positive"
	case errors.Is(err, domain.ErrSelfTransfer):
		return http.StatusUnprocessableEntity, "Cannot transfer to self"
	case errors.Is(err, domain.ErrDecode):
		return http.StatusBadRequest, "Malformed envelope"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "Concurrent update, retry the request"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "Ledger temporarily unavailable"
	}
	return http.StatusInternalServerError, "Internal Server Error"
}

// Helpers
func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, models.ErrorResponse{Error: http.StatusText(code), Message: msg}, method, endpoint)
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error, method, endpoint string) {
	code, msg := statusFor(err)
	h.respondError(w, code, msg, method, endpoint)
}
