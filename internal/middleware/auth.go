package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/MaherMaker/TimelyBackend/internal/models"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Header names set by the upstream authentication gateway. Credential
// verification happens there; this server only trusts the verified pair.
const (
	UserIDHeader   = "X-User-ID"
	DeviceIDHeader = "X-Device-ID"
)

// GetIdentityFromContext retrieves the authenticated identity from request context
func GetIdentityFromContext(ctx context.Context) *models.Identity {
	if id, ok := ctx.Value(identityContextKey).(*models.Identity); ok {
		return id
	}
	return nil
}

// WithIdentity returns a context carrying the identity. Exposed for tests and
// for the websocket upgrade path.
func WithIdentity(ctx context.Context, id *models.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// GatewayAuth verifies the shared gateway key (constant-time) and extracts the
// already-authenticated (userId, deviceId) pair from the gateway headers.
// Health endpoints are exempt.
func GatewayAuth(apiKey, headerName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if path == "/health" || path == "/api/health" {
				next.ServeHTTP(w, r)
				return
			}

			providedKey := r.Header.Get(headerName)
			if providedKey == "" {
				writeAuthError(w, "API key is required.")
				return
			}
			if !constantTimeEquals(apiKey, providedKey) {
				writeAuthError(w, "Invalid API key.")
				return
			}

			userID, err := strconv.Atoi(r.Header.Get(UserIDHeader))
			if err != nil || userID <= 0 {
				writeAuthError(w, "Missing or invalid user identity.")
				return
			}
			deviceID := r.Header.Get(DeviceIDHeader)
			if deviceID == "" {
				// Websocket clients may carry the device id as a query
				// parameter instead of a header.
				deviceID = r.URL.Query().Get("deviceId")
			}
			if deviceID == "" {
				writeAuthError(w, "Missing device identity.")
				return
			}

			identity := &models.Identity{UserID: userID, DeviceID: deviceID}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(models.ErrorResponse{Success: false, Message: msg})
}

// constantTimeEquals prevents timing attacks on the key comparison
func constantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
