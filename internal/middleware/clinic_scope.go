package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rpattn/clinicleads/internal/auth"

	"github.com/google/uuid"
)

// ClinicIDHeader selects the tenant a request acts for.
const ClinicIDHeader = "X-Clinic-ID"

// ClinicScopeMiddleware attaches the clinic id and the caller's bearer token
// to the request context. Both are optional; a malformed clinic id is rejected.
func ClinicScopeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if raw := strings.TrimSpace(r.Header.Get(ClinicIDHeader)); raw != "" {
			clinicID, err := uuid.Parse(raw)
			if err != nil {
				http.Error(w, fmt.Sprintf("invalid %s: %v", ClinicIDHeader, err), http.StatusBadRequest)
				return
			}
			ctx = auth.ContextWithClinicID(ctx, clinicID)
		}

		if token := auth.BearerToken(r.Header.Get("Authorization")); token != "" {
			ctx = auth.ContextWithAPIToken(ctx, token)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
