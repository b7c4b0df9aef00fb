package api

import (
	"log"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gorilla/mux"
	"github.com/punchamoorthee/offpay/internal/auth"
	"github.com/punchamoorthee/offpay/internal/models"
)

// Recoverer turns a handler panic into a 500.
func (h *Handler) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("panic: %v\n%s", rec, debug.Stack())
				h.respondError(w, http.StatusInternalServerError, "Internal Server Error", r.Method, "panic")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// RequireSession verifies the bearer token and puts the account id on the
// request context. Handlers behind it trust that id without further checks.
func (h *Handler) RequireSession(issuer *auth.Issuer) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			endpoint := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					endpoint = strings.TrimPrefix(tpl, "/api/v1")
				}
			}

			header := r.Header.Get("Authorization")
			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
				h.unauthorized(w, "No token provided or invalid format", r.Method, endpoint)
				return
			}
			accountID, err := issuer.Parse(token)
			if err != nil {
				h.unauthorized(w, "Invalid Token", r.Method, endpoint)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAccountID(r.Context(), accountID)))
		})
	}
}

func (h *Handler) unauthorized(w http.ResponseWriter, msg, method, endpoint string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	h.respondJSON(w, http.StatusUnauthorized, models.ErrorResponse{
		Error:   http.StatusText(http.StatusUnauthorized),
		Message: msg,
	}, method, endpoint)
}
