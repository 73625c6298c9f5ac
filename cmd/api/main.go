package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"campusclubs/config"
	_ "campusclubs/docs"
	"campusclubs/internal/adapters/auth"
	"campusclubs/internal/adapters/email"
	"campusclubs/internal/adapters/lock"
	"campusclubs/internal/adapters/payment/aamarpay"
	"campusclubs/internal/adapters/payment/stripepay"
	httpdelivery "campusclubs/internal/delivery/http"
	"campusclubs/internal/delivery/http/middleware"
	"campusclubs/internal/domain"
	"campusclubs/internal/metrics"
	"campusclubs/internal/migration"
	"campusclubs/internal/repository/postgres"
	"campusclubs/internal/services"
)

// @title Campus Clubs API
// @version 1.0
// @description Event registration, club membership and payment reconciliation for university clubs.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	logger := config.NewLogger()
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.DBUrl)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if cfg.MigrateOnStart {
		if err := migration.Run(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations applied")
	}

	store := postgres.NewStore(db)
	transactor := postgres.NewTransactor(db)

	gateway, webhooks, err := newGateway(cfg, logger)
	if err != nil {
		return err
	}

	mailer, err := email.NewMailer(email.MailerConfig{
		Provider:    cfg.Email.Provider,
		FromAddress: cfg.Email.FromAddress,
		FromName:    cfg.Email.FromName,
		SES: email.SESConfig{
			Region:             cfg.Email.AWSRegion,
			AccessKeyID:        cfg.Email.AWSAccessKeyID,
			SecretAccessKey:    cfg.Email.AWSSecretAccessKey,
			InsecureSkipVerify: cfg.Email.SESInsecureSkipVerify,
			Endpoint:           cfg.Email.SESEndpoint,
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("create mailer: %w", err)
	}
	emailService := services.NewEmailService(mailer, email.NewTemplateRenderer(), logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var locker domain.CallbackLocker
	if cfg.RedisURL != "" {
		client, err := lock.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		redisLocker, err := lock.NewRedisLocker(client, cfg.CallbackLockTTL)
		if err != nil {
			return err
		}
		locker = redisLocker
	} else {
		logger.Warn("REDIS_URL not set, callbacks are serialized by database transitions only")
	}

	signingKey := cfg.CallbackSigningKey
	if signingKey == "" {
		signingKey = cfg.JWTSecret
		logger.Warn("CALLBACK_SIGNING_KEY not set, falling back to JWT_SECRET")
	}
	signer := services.NewCallbackSigner([]byte(signingKey))

	deps := services.RegistrationDeps{
		Store:           store,
		Transactor:      transactor,
		Gateway:         gateway,
		Signer:          signer,
		Email:           emailService,
		Metrics:         m,
		Logger:          logger,
		CallbackBaseURL: cfg.PublicBaseURL,
		DefaultCurrency: cfg.Payment.Currency,
		SeatHold:        cfg.SeatHold,
		Timeout:         cfg.ContextTimeout,
	}
	eventService := services.NewEventRegistrationService(deps)
	clubService := services.NewClubRegistrationService(deps)

	mux := httpdelivery.NewRouter(httpdelivery.RouterDeps{
		Logger:       logger,
		Verifier:     auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTLeeway),
		Events:       eventService,
		Clubs:        clubService,
		Callbacks:    services.NewCallbackRouter(store, signer, locker, m, logger, eventService, clubService),
		Webhooks:     webhooks,
		Verification: services.NewVerificationService(store, cfg.ContextTimeout),
		Gatherer:     registry,
		Health:       db,
	})

	var handler http.Handler = mux
	handler = middleware.CORS(cfg.AllowedOrigins, handler)
	handler = middleware.Recover(logger, handler)
	handler = middleware.LoggingMiddleware(logger, handler)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.ContextTimeout + 15*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr, "env", cfg.Environment, "payment_provider", gateway.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newGateway builds the configured payment gateway. The webhook parser is nil for gateways that
// only report through browser redirects.
func newGateway(cfg *config.Config, logger *slog.Logger) (domain.PaymentGateway, domain.WebhookParser, error) {
	switch cfg.Payment.Provider {
	case config.ProviderStripe:
		gw, err := stripepay.NewGateway(stripepay.Config{
			SecretKey:     cfg.Payment.StripeSecretKey,
			WebhookSecret: cfg.Payment.StripeWebhookSecret,
		}, nil, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("create stripe gateway: %w", err)
		}
		if cfg.Payment.StripeWebhookSecret == "" {
			logger.Warn("STRIPE_WEBHOOK_SECRET not set, webhook endpoint disabled")
			return gw, nil, nil
		}
		return gw, gw, nil
	default:
		gw, err := aamarpay.NewClient(aamarpay.Config{
			BaseURL:      cfg.Payment.AamarpayBaseURL,
			StoreID:      cfg.Payment.AamarpayStoreID,
			SignatureKey: cfg.Payment.AamarpaySignatureKey,
			Timeout:      cfg.Payment.AamarpayTimeout,
		}, nil, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("create aamarpay client: %w", err)
		}
		return gw, nil, nil
	}
}
