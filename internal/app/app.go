package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/notify"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

const serverName = "storefront-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New(lg.Named("health"))
	healthSvc.Register(health.Check{
		Name:    "postgres",
		Kind:    health.Readiness,
		Run:     health.PingCheck(pool),
		Timeout: 5 * time.Second,
	})
	healthSvc.Register(health.Check{
		Name:  "goroutines",
		Kind:  health.Liveness,
		Run:   health.GoroutineCountCheck(10000),
	})
	healthSvc.Register(health.Check{
		Name:             "gc_pause",
		Kind:             health.Liveness,
		Run:              health.GCMaxPauseCheck(time.Second),
		FailureThreshold: 3,
	})

	// Status change events.
	var notifier order.Notifier = notify.Nop{}
	if cfg.Notify.Enabled() {
		w := notify.NewKafkaWriter(cfg.Notify.Brokers, cfg.Notify.Topic)
		defer func() {
			if err := w.Close(); err != nil {
				lg.Warn("Close kafka writer", zap.Error(err))
			}
		}()
		notifier = notify.NewPublisher(w)
		// Events are best effort: an unreachable broker degrades the report
		// but keeps the server in rotation.
		healthSvc.Register(health.Check{
			Name:             "kafka",
			Kind:             health.Readiness,
			Run:              notify.BrokerCheck(cfg.Notify.Brokers),
			Timeout:          3 * time.Second,
			FailureThreshold: 3,
			Optional:         true,
		})
		lg.Info("Publishing order events",
			zap.Strings("brokers", cfg.Notify.Brokers),
			zap.String("topic", cfg.Notify.Topic),
		)
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	root, err := newRootHandler(ctx, cfg, pool, healthSvc, notifier, m)
	if err != nil {
		return err
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           root,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newRootHandler wires repositories, domain services and HTTP handlers into the
// complete middleware-wrapped router.
func newRootHandler(
	ctx context.Context,
	cfg *Config,
	pool *pgxpool.Pool,
	healthSvc *health.Health,
	notifier order.Notifier,
	tel httpmiddleware.Telemetry,
) (http.Handler, error) {
	pricing, err := cfg.Checkout.Pricing()
	if err != nil {
		return nil, errors.Wrap(err, "checkout pricing")
	}
	unit, err := cfg.Checkout.Unit()
	if err != nil {
		return nil, errors.Wrap(err, "checkout currency")
	}

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	addressRepo := postgres.NewAddressRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Domain services.
	engine := coupon.NewEngine(couponRepo, unit)
	addresses := address.NewService(addressRepo)

	policy := order.TransitionPolicy(order.DefaultTransitions)
	if !cfg.Orders.StrictTransitions {
		policy = order.AnyTransition
	}
	workflow := order.NewWorkflow(orderRepo,
		order.WithPolicy(policy),
		order.WithNotifier(notifier),
	)

	// HTTP handlers.
	h, err := handler.New(
		handler.Config{
			ImageBaseURL: cfg.ImageBaseURL,
			APIKeyPepper: []byte(cfg.APIKeyPepper),
		},
		handler.Deps{
			Coupons:   engine,
			Admin:     coupon.NewManager(couponRepo),
			Checkout:  order.NewCheckout(productRepo, engine, addresses, orderRepo, pricing),
			Workflow:  workflow,
			Orders:    order.NewQueries(orderRepo),
			Addresses: addresses,
			APIKeys:   apikeyRepo,
			Meter:     tel.MeterProvider().Meter(serverName),
		},
	)
	if err != nil {
		return nil, errors.Wrap(err, "create handler")
	}

	// Router: health endpoints + API routes on one server. Route-aware
	// middleware runs inside chi so the matched pattern is known.
	r := chi.NewRouter()
	r.Use(
		httpmiddleware.Instrument(serverName, httpmiddleware.ChiRouteFinder, tel),
		httpmiddleware.LogRequests(httpmiddleware.ChiRouteFinder),
	)
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	h.Mount(r)

	return httpmiddleware.Wrap(r,
		httpmiddleware.Recovery(zctx.From(ctx)),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", handler.APIKeyHeader, handler.CustomerHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
			Rules: []httpmiddleware.RateLimitRule{{
				PathPrefix: handler.CouponValidatePath,
				Max:        cfg.RateLimit.CouponMax,
				Window:     cfg.RateLimit.Window,
			}},
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
	), nil
}
