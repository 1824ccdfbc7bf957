package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type noopTelemetry struct{}

func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }
func (noopTelemetry) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }

func TestWrap_Order(t *testing.T) {
	var calls []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls = append(calls, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Wrap(okHandler(), mark("outer"), mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner"}, calls)
}

func TestInjectLogger_AddsRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zctx.From(r.Context()).Info("hello")
	}), RequestID(), InjectLogger(zap.New(core)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "req-42", logs.All()[0].ContextMap()["request_id"])
}

func newRoutedServer(lg *zap.Logger, mws ...Middleware) http.Handler {
	r := chi.NewRouter()
	for _, mw := range mws {
		r.Use(mw)
	}
	r.Get("/api/orders/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	return Wrap(r, InjectLogger(lg))
}

func TestLogRequests(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		level  zapcore.Level
		route  string
		status int64
	}{
		{name: "Matched", path: "/api/orders/abc", level: zapcore.InfoLevel, route: "/api/orders/{id}", status: http.StatusAccepted},
		{name: "ServerError", path: "/boom", level: zapcore.WarnLevel, route: "/boom", status: http.StatusBadGateway},
		{name: "Unmatched", path: "/nope", level: zapcore.InfoLevel, route: "unmatched", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			h := newRoutedServer(zap.New(core), LogRequests(ChiRouteFinder))

			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, tt.level, entry.Level)
			fields := entry.ContextMap()
			assert.Equal(t, tt.route, fields["route"])
			assert.Equal(t, tt.status, fields["status"])
		})
	}
}

func TestInstrument_PassesThrough(t *testing.T) {
	h := newRoutedServer(zap.NewNop(), Instrument("storefront", ChiRouteFinder, noopTelemetry{}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders/abc", nil))

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestChiRouteFinder_OutsideRouter(t *testing.T) {
	_, ok := ChiRouteFinder(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
}

func TestRecovery_WritesEnvelope(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	h := Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}), Recovery(zap.New(core)), RequestID())

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(RequestIDHeader, "req-7")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "kaboom", fields["panic"])
	assert.Equal(t, "/boom", fields["path"])
	assert.Equal(t, "req-7", fields["request_id"])

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "close", w.Header().Get("Connection"))
	assert.JSONEq(t,
		`{"ok":false,"errorKind":"Internal","message":"Something went wrong, please try again."}`,
		w.Body.String())
}

func TestRecovery_ReraisesAbort(t *testing.T) {
	h := Recovery(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "Reused", incoming: "abc-123", keep: true},
		{name: "Missing", incoming: "", keep: false},
		{name: "NonPrintable", incoming: "bad\x01id", keep: false},
		{name: "TooLong", incoming: strings.Repeat("a", 129), keep: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set("X-Request-ID", tt.incoming)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			require.NotEmpty(t, seen)
			assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
			if tt.keep {
				assert.Equal(t, tt.incoming, seen)
				return
			}
			id, err := uuid.Parse(seen)
			require.NoError(t, err)
			assert.Equal(t, uuid.Version(7), id.Version())
		})
	}
}

func TestCORS_PreflightDefaults(t *testing.T) {
	h := CORS(CORSConfig{AllowOrigins: []string{"https://shop.example.com"}, MaxAge: 600})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/admin/orders/1/status", nil)
	req.Header.Set("Origin", "https://SHOP.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	req.Header.Set("Access-Control-Request-Headers", "api_key")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://shop.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	assert.Equal(t, "api_key", w.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_UnknownOrigin(t *testing.T) {
	h := CORS(CORSConfig{AllowOrigins: []string{"https://shop.example.com"}})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))
}

func TestCORS_AllowOrigin(t *testing.T) {
	tests := []struct {
		name   string
		cfg    CORSConfig
		origin string
		want   string
	}{
		{name: "Wildcard", cfg: CORSConfig{}, origin: "https://a.example.com", want: "*"},
		{name: "WildcardWithCredentials", cfg: CORSConfig{AllowCredentials: true}, origin: "https://a.example.com", want: "https://a.example.com"},
		{name: "Subdomain", cfg: CORSConfig{AllowOrigins: []string{"https://*.shop.example.com"}}, origin: "https://eu.shop.example.com", want: "https://eu.shop.example.com"},
		{name: "SubdomainWrongScheme", cfg: CORSConfig{AllowOrigins: []string{"https://*.shop.example.com"}}, origin: "http://eu.shop.example.com", want: ""},
		{name: "SubdomainBareHost", cfg: CORSConfig{AllowOrigins: []string{"https://*.shop.example.com"}}, origin: "https://.shop.example.com", want: ""},
		{name: "SubdomainLookalike", cfg: CORSConfig{AllowOrigins: []string{"https://*.shop.example.com"}}, origin: "https://evilshop.example.com", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := CORS(tt.cfg)(okHandler())

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.want != "" {
				assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), RequestIDHeader)
			}
		})
	}
}
