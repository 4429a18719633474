package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/openkart/checkout/internal/domain/cart"
	"github.com/openkart/checkout/internal/domain/coupon"
	"github.com/openkart/checkout/internal/domain/delivery"
	"github.com/openkart/checkout/internal/domain/order"
	"github.com/openkart/checkout/internal/handler"
	"github.com/openkart/checkout/internal/handler/auth"
	"github.com/openkart/checkout/internal/payment"
	"github.com/openkart/checkout/internal/repository"
	"github.com/openkart/checkout/pkg/health"
	"github.com/openkart/checkout/pkg/httpmiddleware"
	"github.com/openkart/checkout/pkg/retry"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application: every service
// receives its collaborators here, nothing reaches for globals.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations. The initial ping retries so the server
	// survives a database that comes up a few seconds after it does.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	policy := retry.NewPolicy()
	if err := policy.Do(ctx, retry.ReadIdempotent, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return retry.Transient(err)
		}
		return nil
	}); err != nil {
		return errors.Wrap(err, "ping database")
	}

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Redis for payment sessions and the delivery zone cache.
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return errors.Wrap(err, "parse redis URL")
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		_ = redisClient.Close()
	}()

	// Health probes.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddReadinessCheck("redis", 5*time.Second, func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	zoneRepo := repository.NewDeliveryZoneRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)
	zoneCache := repository.NewRedisZoneCache(redisClient, cfg.Session.ZoneCacheTTL)
	sessions := payment.NewRedisSessionStore(redisClient, cfg.Session.TTL)

	// Domain services.
	engine := coupon.NewEngine(couponRepo, orderRepo)
	resolver := delivery.NewResolver(zoneRepo, zoneCache)
	aggregator := cart.NewAggregator(decimal.NewFromFloat(cfg.TaxRate))
	gateway := payment.NewClient(cfg.Payment.BaseURL, cfg.Payment.SecretKey, m.TracerProvider())

	meter := m.MeterProvider().Meter("checkout")
	placedCounter, err := meter.Int64Counter("orders_placed_total")
	if err != nil {
		return errors.Wrap(err, "create orders counter")
	}

	orderService := order.NewService(
		orderRepo, productRepo,
		engine, couponRepo,
		resolver, aggregator,
		gateway, sessions,
		placedCounter,
	)

	// HTTP surface.
	admin := auth.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper))
	h := handler.New(orderService, productRepo, engine, couponRepo, resolver, sessions, admin)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-User-ID", "api_key"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("checkout-api", m.TracerProvider()),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: flip readiness off, let the balancer drain, then
	// stop accepting connections.
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
