package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
)

type contextKey string

const ownerIDKey contextKey = "ownerID"

// RequireOwner extracts the authenticated caller's owner id from the
// X-User-ID header and stores it in the request context. The id is treated
// as an opaque identifier supplied by the identity layer in front of this
// service; requests without one are rejected.
func RequireOwner(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("X-User-ID")
			if header == "" {
				log.Warn("Middleware: X-User-ID header is missing")
				writeAuthError(w, "X-User-ID header required")
				return
			}

			ownerID, err := strconv.ParseInt(header, 10, 64)
			if err != nil || ownerID <= 0 {
				log.Warnf("Middleware: invalid X-User-ID header: %q", header)
				writeAuthError(w, "Invalid X-User-ID header")
				return
			}

			ctx := context.WithValue(r.Context(), ownerIDKey, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerFromContext returns the owner id placed in the context by
// RequireOwner.
func OwnerFromContext(ctx context.Context) (int64, bool) {
	ownerID, ok := ctx.Value(ownerIDKey).(int64)
	return ownerID, ok
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
