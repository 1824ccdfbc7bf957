package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures the CORS middleware.
type CORSConfig struct {
	// AllowOrigins lists allowed origins. Empty or "*" allows any origin. An
	// entry like "https://*.example.com" allows every subdomain of example.com
	// over https.
	AllowOrigins []string
	// AllowMethods defaults to GET, POST, PUT, PATCH, DELETE, OPTIONS.
	AllowMethods []string
	// AllowHeaders lists request headers clients may send. When empty the
	// preflight's Access-Control-Request-Headers is echoed.
	AllowHeaders []string
	// ExposeHeaders defaults to the request ID and rate limit headers.
	ExposeHeaders []string
	// AllowCredentials disables the "*" response; the caller's origin is
	// echoed instead.
	AllowCredentials bool
	// MaxAge is the preflight cache lifetime in seconds. Zero omits the
	// header; a negative value sends "0".
	MaxAge int
}

var (
	defaultCORSMethods = []string{
		http.MethodGet, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}
	defaultCORSExpose = []string{
		RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After",
	}
)

type wildcardOrigin struct {
	scheme string // "https://"
	suffix string // ".example.com"
}

type corsPolicy struct {
	any         bool
	credentials bool
	exact       map[string]string // lowercase -> configured spelling
	wildcards   []wildcardOrigin

	methods string
	headers string
	expose  string
	maxAge  string
}

func newCORSPolicy(cfg CORSConfig) *corsPolicy {
	p := &corsPolicy{
		any:         len(cfg.AllowOrigins) == 0,
		credentials: cfg.AllowCredentials,
		exact:       make(map[string]string, len(cfg.AllowOrigins)),
		methods:     strings.Join(orDefault(cfg.AllowMethods, defaultCORSMethods), ", "),
		headers:     strings.Join(cfg.AllowHeaders, ", "),
		expose:      strings.Join(orDefault(cfg.ExposeHeaders, defaultCORSExpose), ", "),
	}
	for _, o := range cfg.AllowOrigins {
		lower := strings.ToLower(o)
		switch {
		case o == "*":
			p.any = true
		case strings.Contains(lower, "://*."):
			scheme, host, _ := strings.Cut(lower, "*")
			p.wildcards = append(p.wildcards, wildcardOrigin{scheme: scheme, suffix: host})
		default:
			p.exact[lower] = o
		}
	}
	switch {
	case cfg.MaxAge > 0:
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	case cfg.MaxAge < 0:
		p.maxAge = "0"
	}
	return p
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or ""
// when it is not allowed.
func (p *corsPolicy) allowOrigin(origin string) string {
	if p.any {
		if p.credentials {
			return origin
		}
		return "*"
	}
	lower := strings.ToLower(origin)
	if o, ok := p.exact[lower]; ok {
		return o
	}
	for _, w := range p.wildcards {
		host, ok := strings.CutPrefix(lower, w.scheme)
		if ok && strings.HasSuffix(host, w.suffix) && len(host) > len(w.suffix) {
			return origin
		}
	}
	return ""
}

// echoesOrigin reports whether responses depend on the Origin header.
func (p *corsPolicy) echoesOrigin() bool {
	return !p.any || p.credentials
}

func (p *corsPolicy) preflight(w http.ResponseWriter, r *http.Request, allowed string) {
	h := w.Header()
	h.Add("Vary", "Origin")
	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")

	if allowed != "" {
		h.Set("Access-Control-Allow-Origin", allowed)
		h.Set("Access-Control-Allow-Methods", p.methods)
		if p.headers != "" {
			h.Set("Access-Control-Allow-Headers", p.headers)
		} else if rh := r.Header.Get("Access-Control-Request-Headers"); rh != "" {
			h.Set("Access-Control-Allow-Headers", rh)
		}
		if p.credentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if p.maxAge != "" {
			h.Set("Access-Control-Max-Age", p.maxAge)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *corsPolicy) actual(w http.ResponseWriter, allowed string) {
	h := w.Header()
	if p.echoesOrigin() {
		h.Add("Vary", "Origin")
	}
	if allowed == "" {
		return
	}
	h.Set("Access-Control-Allow-Origin", allowed)
	if p.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if p.expose != "" {
		h.Set("Access-Control-Expose-Headers", p.expose)
	}
}

// CORS answers preflight requests itself and decorates actual cross-origin
// responses. Requests without an Origin header pass through untouched apart
// from Vary.
func CORS(cfg CORSConfig) Middleware {
	p := newCORSPolicy(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				if p.echoesOrigin() {
					w.Header().Add("Vary", "Origin")
				}
				next.ServeHTTP(w, r)
				return
			}

			allowed := p.allowOrigin(origin)
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				p.preflight(w, r, allowed)
				return
			}
			p.actual(w, allowed)
			next.ServeHTTP(w, r)
		})
	}
}
