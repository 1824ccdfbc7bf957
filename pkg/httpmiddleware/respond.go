package httpmiddleware

import (
	"net/http"

	"github.com/go-faster/jx"
)

// Error kinds emitted by the middlewares themselves.
const (
	KindRateLimited = "RateLimited"
	KindInternal    = "Internal"
)

// WriteError writes the API error envelope
// {"ok":false,"errorKind":kind,"message":message} with the given status.
func WriteError(w http.ResponseWriter, status int, kind, message string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.Obj(func(e *jx.Encoder) {
		e.Field("ok", func(e *jx.Encoder) { e.Bool(false) })
		e.Field("errorKind", func(e *jx.Encoder) { e.Str(kind) })
		e.Field("message", func(e *jx.Encoder) { e.Str(message) })
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
