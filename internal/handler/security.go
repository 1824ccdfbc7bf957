package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
)

// Request headers carrying the caller's identity.
const (
	CustomerHeader = "X-Customer-ID"
	APIKeyHeader   = "api_key"
)

type customerKey struct{}

// customerFrom returns the customer authenticated by RequireCustomer.
func customerFrom(ctx context.Context) string {
	id, _ := ctx.Value(customerKey{}).(string)
	return id
}

// RequireCustomer rejects requests without the customer identity set by the
// session layer in the X-Customer-ID header.
func RequireCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(CustomerHeader))
		if id == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "Please sign in to continue.")
			return
		}
		ctx := zctx.With(r.Context(), zap.String("customer_id", id))
		ctx = context.WithValue(ctx, customerKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAPIKey authenticates the api_key header by its HMAC-SHA256 hash and
// requires the key to carry scope.
func (h *Handler) RequireAPIKey(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := auth.Authenticate(r.Context(), h.APIKeys, h.pepper, r.Header.Get(APIKeyHeader))
			switch {
			case errors.Is(err, auth.ErrKeyNotFound):
				writeError(w, http.StatusUnauthorized, "Unauthorized", "A valid API key is required.")
				return
			case err != nil:
				respondError(w, r, errors.Wrap(err, "authenticate api key"))
				return
			case !info.HasScope(scope):
				writeError(w, http.StatusForbidden, "Forbidden", "This API key is not allowed to do that.")
				return
			}

			next.ServeHTTP(w, r.WithContext(zctx.With(r.Context(), zap.String("api_key", info.Name))))
		})
	}
}
