package api

import (
	"encoding/json"
	"errors"
	"log"
	"mime"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/punchamoorthee/offpay/internal/auth"
	"github.com/punchamoorthee/offpay/internal/domain"
	"github.com/punchamoorthee/offpay/internal/envelope"
	"github.com/punchamoorthee/offpay/internal/models"
)

// CreateEnvelope builds an offline envelope for the session's account. With
// send set, the envelope is also handed to the relay number.
func (h *Handler) CreateEnvelope(w http.ResponseWriter, r *http.Request) {
	const method, endpoint = "POST", "/offline/envelopes"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues(method, endpoint))
	defer timer.ObserveDuration()

	senderID, _ := auth.AccountID(r.Context())

	var req models.EnvelopeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", method, endpoint)
		return
	}
	op := domain.Operation(req.Option)
	if !op.Valid() {
		h.respondError(w, http.StatusBadRequest, "Invalid Option", method, endpoint)
		return
	}

	token, err := envelope.Encode(domain.TransferRequest{
		SenderID:       senderID,
		ReceiverHandle: req.ReceiverHandle,
		Amount:         req.Amount,
		PIN:            string(req.PIN),
		Channel:        domain.ChannelOffline,
		Op:             op,
	})
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), method, endpoint)
		return
	}

	resp := models.EnvelopeResponse{Envelope: token}
	if h.relayNumber != "" {
		resp.SMSLink = envelope.SMSLink(h.relayNumber, token)
	}
	if req.Send {
		if err := h.relay.Send(r.Context(), h.relayNumber, token); err != nil {
			log.Printf("envelope relay failed: %v", err)
			h.respondError(w, http.StatusBadGateway, "Relay unavailable", method, endpoint)
			return
		}
		resp.Sent = true
	}
	h.respondJSON(w, http.StatusCreated, resp, method, endpoint)
}

// RelayInbound receives an envelope from the SMS gateway. It accepts the
// JSON form {"message","from"} and the gateway's form post (Body, From).
func (h *Handler) RelayInbound(w http.ResponseWriter, r *http.Request) {
	const method, endpoint = "POST", "/relay/inbound"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues(method, endpoint))
	defer timer.ObserveDuration()

	var in models.InboundMessage
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" || ct == "multipart/form-data" {
		if err := r.ParseForm(); err != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid form", method, endpoint)
			return
		}
		in.Message = r.PostForm.Get("Body")
		in.From = r.PostForm.Get("From")
	} else if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", method, endpoint)
		return
	}

	reply, err := h.relay.OnReceive(r.Context(), in.From, in.Message)
	if err != nil {
		code, msg := statusFor(err)
		if reply != nil && !errors.Is(err, domain.ErrStoreUnavailable) {
			msg = reply.Message
		}
		h.respondError(w, code, msg, method, endpoint)
		return
	}

	resp := models.RelayResponse{
		Operation: reply.Request.Op.String(),
		Message:   reply.Message,
	}
	switch out := reply.Outcome; out.Op {
	case domain.OpTransfer:
		resp.ReferenceNumber = out.Transfer.ReferenceNumber
		resp.Balance = &out.Transfer.SenderBalance
	case domain.OpBalance:
		resp.Balance = &out.Balance
	case domain.OpHistory:
		items := out.History
		if items == nil {
			items = []domain.HistoryItem{}
		}
		resp.Last5Transactions = &items
	}
	h.respondJSON(w, http.StatusOK, resp, method, endpoint)
}
