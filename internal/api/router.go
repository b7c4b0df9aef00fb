package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/punchamoorthee/offpay/internal/auth"
)

// NewRouter mounts the health, metrics and /api/v1 routes.
func NewRouter(h *Handler, issuer *auth.Issuer) *mux.Router {
	r := mux.NewRouter()
	r.Use(h.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/relay/inbound", h.RelayInbound).Methods("POST")

	session := apiV1.NewRoute().Subrouter()
	session.Use(h.RequireSession(issuer))
	session.HandleFunc("/transfers", h.CreateTransfer).Methods("POST")
	session.HandleFunc("/accounts/me", h.GetAccount).Methods("GET")
	session.HandleFunc("/accounts/me/balance", h.GetBalance).Methods("GET")
	session.HandleFunc("/accounts/me/transactions", h.ListTransactions).Methods("GET")
	session.HandleFunc("/offline/envelopes", h.CreateEnvelope).Methods("POST")

	return r
}
