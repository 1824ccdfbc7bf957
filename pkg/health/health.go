// Package health serves the /livez and /readyz endpoints of the API server and
// reports the state of every dependency behind them.
//
// Checks are polled in the background; the endpoints only read the last
// result. Readiness fails while a required dependency is down or pending, or
// while the server is draining. Optional dependencies are reported as
// degraded without taking the server out of rotation.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"go.uber.org/zap"
)

// CheckFunc returns nil when the checked dependency is usable.
type CheckFunc func(ctx context.Context) error

// Kind selects the endpoint a check contributes to.
type Kind int

const (
	// Liveness checks guard the process itself.
	Liveness Kind = iota
	// Readiness checks guard the dependencies requests need.
	Readiness
)

func (k Kind) String() string {
	if k == Liveness {
		return "liveness"
	}
	return "readiness"
}

// Check describes a registered dependency or process check.
type Check struct {
	Name string
	Kind Kind
	Run  CheckFunc
	// Timeout bounds a single run. Defaults to 5s.
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that mark the
	// check down. Defaults to 1.
	FailureThreshold int
	// Optional checks never fail their endpoint; a down optional check turns
	// the report degraded.
	Optional bool
}

// Check states as reported.
const (
	StatePending = "pending"
	StateUp      = "up"
	StateDown    = "down"
)

// Report statuses.
const (
	StatusOK          = "ok"
	StatusDegraded    = "degraded"
	StatusUnavailable = "unavailable"
)

// CheckState is the last observed result of a check.
type CheckState struct {
	Name      string
	State     string
	Optional  bool
	Error     string
	Failures  int
	Latency   time.Duration
	CheckedAt time.Time
}

type check struct {
	Check

	mu sync.Mutex
	st CheckState
}

func (c *check) state() CheckState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// run executes the check once and returns the previous and the new state.
func (c *check) run(ctx context.Context, now func() time.Time) (prev, next CheckState) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	start := now()
	err := c.Run(ctx)
	end := now()

	c.mu.Lock()
	defer c.mu.Unlock()

	prev = c.st
	c.st.Latency = end.Sub(start)
	c.st.CheckedAt = end
	if err == nil {
		c.st.State = StateUp
		c.st.Error = ""
		c.st.Failures = 0
		return prev, c.st
	}

	c.st.Error = err.Error()
	c.st.Failures++
	// Below the threshold the check keeps its state, pending included.
	if c.st.Failures >= c.FailureThreshold {
		c.st.State = StateDown
	}
	return prev, c.st
}

// Health runs the registered checks and serves the health endpoints.
type Health struct {
	lg    *zap.Logger
	now   func() time.Time
	ready atomic.Bool

	mu     sync.Mutex
	checks []*check
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Health that logs check state changes to lg. The server starts
// not ready; call SetReady(true) once it accepts traffic.
func New(lg *zap.Logger) *Health {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Health{lg: lg, now: time.Now}
}

// Register adds a check. Checks registered after Start are not polled.
func (h *Health) Register(c Check) {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	c.FailureThreshold = max(c.FailureThreshold, 1)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, &check{
		Check: c,
		st:    CheckState{Name: c.Name, State: StatePending, Optional: c.Optional},
	})
}

// Start runs every check once, so the first report reflects real state, and
// then polls each check every interval until ctx is done or Stop is called.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := append([]*check(nil), h.checks...)
	h.mu.Unlock()

	var first sync.WaitGroup
	for _, c := range checks {
		first.Add(1)
		go func() {
			defer first.Done()
			h.runOnce(ctx, c)
		}()
	}
	first.Wait()

	for _, c := range checks {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.poll(ctx, c, interval)
		}()
	}
}

func (h *Health) poll(ctx context.Context, c *check, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.runOnce(ctx, c)
		}
	}
}

func (h *Health) runOnce(ctx context.Context, c *check) {
	prev, next := c.run(ctx, h.now)
	if prev.State == next.State {
		return
	}
	lg := h.lg.With(
		zap.String("check", c.Name),
		zap.Stringer("kind", c.Kind),
		zap.Bool("optional", c.Optional),
	)
	switch next.State {
	case StateDown:
		lg.Warn("Health check down", zap.String("error", next.Error), zap.Int("failures", next.Failures))
	case StateUp:
		if prev.State == StateDown {
			lg.Info("Health check recovered", zap.Duration("latency", next.Latency))
		}
	}
}

// Stop cancels polling and waits for running checks to return. It is safe
// to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	h.wg.Wait()
}

// SetReady marks whether the server accepts traffic. It is cleared at the
// start of a graceful shutdown so load balancers drain the instance.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Report is the evaluated state of one endpoint.
type Report struct {
	Status string
	// Draining is set on readiness reports while the server is not marked
	// ready.
	Draining bool
	Checks   []CheckState
}

// Report evaluates the checks of kind k from their last results. For
// liveness a pending check counts as passing; for readiness it does not.
func (h *Health) Report(k Kind) Report {
	h.mu.Lock()
	checks := append([]*check(nil), h.checks...)
	h.mu.Unlock()

	r := Report{Status: StatusOK}
	if k == Readiness && !h.ready.Load() {
		r.Draining = true
		r.Status = StatusUnavailable
	}
	for _, c := range checks {
		if c.Kind != k {
			continue
		}
		st := c.state()
		r.Checks = append(r.Checks, st)

		failing := st.State == StateDown || (k == Readiness && st.State == StatePending)
		switch {
		case !failing:
		case c.Optional:
			if r.Status == StatusOK {
				r.Status = StatusDegraded
			}
		default:
			r.Status = StatusUnavailable
		}
	}
	return r
}

// Ready reports whether /readyz currently passes.
func (h *Health) Ready() bool {
	return h.Report(Readiness).Status != StatusUnavailable
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, h.Report(Liveness))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, h.Report(Readiness))
}

// writeReport answers 200 unless the report is unavailable, with every check
// listed under "checks" in registration order.
func writeReport(w http.ResponseWriter, r Report) {
	code := http.StatusOK
	if r.Status == StatusUnavailable {
		code = http.StatusServiceUnavailable
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(r.Status) })
		if r.Draining {
			e.Field("draining", func(e *jx.Encoder) { e.Bool(true) })
		}
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, st := range r.Checks {
					e.Field(st.Name, func(e *jx.Encoder) { encodeState(e, st) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

func encodeState(e *jx.Encoder, st CheckState) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("state", func(e *jx.Encoder) { e.Str(st.State) })
		if st.Optional {
			e.Field("optional", func(e *jx.Encoder) { e.Bool(true) })
		}
		if st.CheckedAt.IsZero() {
			return
		}
		e.Field("latencyMs", func(e *jx.Encoder) { e.Int64(st.Latency.Milliseconds()) })
		e.Field("checkedAt", func(e *jx.Encoder) { e.Str(st.CheckedAt.UTC().Format(time.RFC3339Nano)) })
		if st.Error != "" {
			e.Field("error", func(e *jx.Encoder) { e.Str(st.Error) })
			e.Field("failures", func(e *jx.Encoder) { e.Int(st.Failures) })
		}
	})
}
