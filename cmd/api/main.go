package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/storefront-promo/internal/app"
	"github.com/noah-isme/storefront-promo/internal/auth"
	"github.com/noah-isme/storefront-promo/internal/checkout"
	"github.com/noah-isme/storefront-promo/internal/common"
	"github.com/noah-isme/storefront-promo/internal/config"
	"github.com/noah-isme/storefront-promo/internal/db"
	"github.com/noah-isme/storefront-promo/internal/health"
	"github.com/noah-isme/storefront-promo/internal/obs"
	"github.com/noah-isme/storefront-promo/internal/promotion"
	"github.com/noah-isme/storefront-promo/internal/ratelimit"
	"github.com/noah-isme/storefront-promo/internal/redemption"
	"github.com/noah-isme/storefront-promo/internal/resilience"
	"github.com/noah-isme/storefront-promo/internal/security"
)

const metricsNamespace = "storefront"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		Enabled:       cfg.OTelEnabled,
		ServiceName:   cfg.OTelServiceName,
		Endpoint:      cfg.OTelEndpoint,
		SamplingRatio: cfg.OTelSampleRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Error().Err(err).Msg("shutdown tracer")
			}
		}()
	}

	if cfg.AutoMigrate {
		if err := db.Up(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
	}

	startCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := app.OpenPostgres(startCtx, cfg.DatabaseURL, "storefront-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer pool.Close()

	redisClient, err := app.OpenRedis(startCtx, cfg.RedisURL, cfg.MetricsEnabled, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	promoStore := promotion.NewStore(pool)
	source, err := app.PromotionSource(cfg, promoStore, redisClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise promotion source")
	}
	bus := app.EventBus(pool, source)

	promoSvc := &promotion.Service{
		Source: source,
		Codes:  promoStore,
		Logger: logger.With().Str("component", "promotion").Logger(),
	}
	promoHandler := &promotion.Handler{Svc: promoSvc}
	promoAdmin := &promotion.AdminHandler{Store: promoStore, Svc: promoSvc, Events: bus}

	authService, err := auth.NewService(auth.Config{
		Secret:            cfg.JWTSecret,
		TokenTTL:          cfg.AccessTokenTTL,
		Issuer:            cfg.JWTIssuer,
		Audience:          cfg.JWTAudience,
		AdminEmail:        cfg.AdminEmail,
		AdminPasswordHash: cfg.AdminPasswordHash,
		Denylist:          auth.RedisDenylist{Client: redisClient},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}
	authHandler := &auth.Handler{Service: authService}
	authMiddleware := auth.Middleware{Service: authService}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse task queue redis url")
	}
	taskClient := asynq.NewClient(redisOpt)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	checkoutHandler := &checkout.Handler{}
	if cfg.CheckoutEnabled() {
		checkoutHandler.Svc = &checkout.Service{
			Pricer: promoSvc,
			Sessions: &checkout.SessionClient{
				HTTP: resilience.HTTPClient{
					Client: checkout.NewHTTPClient(cfg.CheckoutTimeout),
					Breaker: resilience.NewBreaker(5, 0.5, 30*time.Second).
						WithTarget("checkout-session").
						WithLogger(logger),
					Target:      "checkout-session",
					BaseBackoff: 200 * time.Millisecond,
					MaxAttempts: 2,
					Jitter:      0.2,
					Timeout:     cfg.CheckoutTimeout,
				},
				Endpoint: cfg.CheckoutFunctionURL,
				APIKey:   cfg.CheckoutFunctionKey,
			},
			Redemptions: redemption.Enqueuer{Client: taskClient},
			Events:      bus,
			SuccessURL:  cfg.CheckoutSuccessURL,
			CancelURL:   cfg.CheckoutCancelURL,
			Logger:      logger.With().Str("component", "checkout").Logger(),
		}
	} else {
		logger.Warn().Msg("CHECKOUT_FUNCTION_URL not set; checkout disabled")
	}

	couponLimiter, err := ratelimit.NewRedisLimiter(redisClient, "ratelimit:coupon", cfg.CouponRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise coupon rate limiter")
	}
	couponLimit := ratelimit.Handler{
		Limiter: couponLimiter,
		Key:     ratelimit.ByClientIP,
		OnError: func(err error) { logger.Warn().Err(err).Msg("coupon rate limiter unavailable") },
	}
	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	healthHandler := health.Handler{
		Checker:      health.Probes{DB: pool, Redis: redisClient},
		DBTimeout:    500 * time.Millisecond,
		RedisTimeout: 300 * time.Millisecond,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.TracingMiddleware)
	if cfg.MetricsEnabled {
		r.Use(obs.HTTPObs{Metrics: obs.NewHTTPMetrics(metricsNamespace, nil, nil)}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.CORS(cfg.CORSAllowedOrigins))
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.IsProduction()}.Middleware)
	r.Use(security.BodyLimit{Max: 1 << 20}.Middleware)

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/promotions/active", promoHandler.Active)
		v.Get("/promotions/home", promoHandler.Home)
		v.Get("/products/{productID}/promotions", promoHandler.ForProduct)
		v.Post("/cart/totals", promoHandler.CartTotals)
		v.With(couponLimit.Middleware).Post("/coupons/validate", promoHandler.ValidateCoupon)
		v.With(idem.Middleware).Post("/checkout/session", checkoutHandler.Start)

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(security.Headers{Enable: true, NoStore: true}.Middleware)
			admin.Post("/auth/login", authHandler.Login)

			admin.Group(func(g chi.Router) {
				g.Use(authMiddleware.RequireAuth)
				g.Post("/auth/logout", authHandler.Logout)
				g.Get("/auth/session", authHandler.Session)

				g.Get("/promotions", promoAdmin.List)
				g.Post("/promotions", promoAdmin.Create)
				g.Post("/promotions/cache/invalidate", promoAdmin.InvalidateCache)
				g.Get("/promotions/{id}", promoAdmin.Get)
				g.Put("/promotions/{id}", promoAdmin.Update)
				g.Delete("/promotions/{id}", promoAdmin.Delete)
				g.Post("/promotions/{id}/toggle", promoAdmin.Toggle)
				g.Get("/scope-options/{kind}", promoAdmin.ScopeOptions)
			})
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown http server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Bool("checkout", cfg.CheckoutEnabled()).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}
