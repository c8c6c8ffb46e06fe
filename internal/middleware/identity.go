package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const customerIDKey contextKey = "customer_id"

// Identity headers are injected by the authenticating gateway in front of
// this service. Requests without them are treated as guest traffic.
const (
	HeaderCustomerID = "X-Customer-ID"
	HeaderStaffActor = "X-Staff-Actor"
)

// CustomerIdentity extracts the gateway-authenticated customer id into the
// request context. Absent or malformed headers leave the request anonymous.
func CustomerIdentity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw := r.Header.Get(HeaderCustomerID); raw != "" {
				if id, err := uuid.Parse(raw); err == nil {
					ctx := context.WithValue(r.Context(), customerIDKey, id)
					r = r.WithContext(ctx)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CustomerIDFromContext returns the authenticated customer id, or nil for
// guest requests.
func CustomerIDFromContext(ctx context.Context) *uuid.UUID {
	if id, ok := ctx.Value(customerIDKey).(uuid.UUID); ok {
		return &id
	}
	return nil
}

// StaffActor returns the staff identity for audit attribution, defaulting to
// "staff" when the gateway did not supply one.
func StaffActor(r *http.Request) string {
	if actor := r.Header.Get(HeaderStaffActor); actor != "" {
		return actor
	}
	return "staff"
}
