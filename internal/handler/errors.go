package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/fault"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

const internalMessage = "Something went wrong, please try again."

func statusOf(kind fault.Kind) int {
	switch kind {
	case fault.NotFound:
		return http.StatusNotFound
	case fault.InvalidInput:
		return http.StatusBadRequest
	case fault.PolicyViolation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes classified failures with their own message and hides
// everything else behind a logged 500.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	if fe, ok := fault.As(err); ok {
		writeError(w, statusOf(fe.Kind), string(fe.Kind), fe.Message)
		return
	}
	zctx.From(r.Context()).Error("Request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, httpmiddleware.KindInternal, internalMessage)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	httpmiddleware.WriteError(w, status, kind, message)
}
