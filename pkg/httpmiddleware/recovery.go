package httpmiddleware

import (
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Recovery turns handler panics into a 500 with the API error envelope and
// logs them to lg with a stack trace. It sits outside the logger injection,
// so the request ID is read back from the response headers.
// http.ErrAbortHandler is re-raised for net/http to handle.
func Recovery(lg *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				lg.Error("Panic recovered",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("request_id", w.Header().Get(RequestIDHeader)),
					zap.Stack("stack"),
				)
				w.Header().Set("Connection", "close")
				WriteError(w, http.StatusInternalServerError, KindInternal, "Something went wrong, please try again.")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
