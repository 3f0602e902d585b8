package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/designdock/designdock-backend/api/routes"
	"github.com/designdock/designdock-backend/internal/bag"
	"github.com/designdock/designdock-backend/internal/checkout"
	"github.com/designdock/designdock-backend/internal/mailer"
	"github.com/designdock/designdock-backend/internal/orders"
	"github.com/designdock/designdock-backend/internal/products"
	"github.com/designdock/designdock-backend/internal/profiles"
	stripewebhook "github.com/designdock/designdock-backend/internal/webhooks/stripe"
	"github.com/designdock/designdock-backend/pkg/config"
	"github.com/designdock/designdock-backend/pkg/db"
	"github.com/designdock/designdock-backend/pkg/logger"
	"github.com/designdock/designdock-backend/pkg/mail"
	"github.com/designdock/designdock-backend/pkg/metrics"
	"github.com/designdock/designdock-backend/pkg/migrate"
	"github.com/designdock/designdock-backend/pkg/redis"
	pkgstripe "github.com/designdock/designdock-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	mailClient, err := mail.NewClient(cfg.Sendgrid)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap sendgrid", err)
		os.Exit(1)
	}

	checkoutMetrics := metrics.NewCheckoutMetrics(prometheus.DefaultRegisterer)

	productsRepo := products.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())
	profilesRepo := profiles.NewRepository(dbClient.DB())

	bagSessions, err := bag.NewSessionStore(redisClient, cfg.Bag.SessionTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create bag session store", err)
		os.Exit(1)
	}

	bagService, err := bag.NewService(productsRepo, cfg.Delivery)
	if err != nil {
		logg.Error(context.Background(), "failed to create bag service", err)
		os.Exit(1)
	}

	profileService, err := profiles.NewService(profilesRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create profile service", err)
		os.Exit(1)
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:     ordersRepo,
		Products: productsRepo,
		Runner:   dbClient,
		Delivery: cfg.Delivery,
		Logger:   logg,
		Metrics:  checkoutMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Bags:     bagService,
		Sessions: bagSessions,
		Stripe:   checkout.NewStripeClient(stripeClient),
		Currency: cfg.Stripe.Currency,
		Profiles: profileService,
		Orders:   orderService,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	dispatcher, err := mailer.NewDispatcher(mailer.DispatcherParams{
		Orders:      ordersRepo,
		Sender:      mailClient,
		ContactFrom: cfg.Sendgrid.DefaultFrom,
		Logger:      logg,
		Metrics:     checkoutMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create mail dispatcher", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Orders:   orderService,
		Profiles: profileService,
		Mailer:   dispatcher,
		Config:   cfg.Webhook,
		Logger:   logg,
		Metrics:  checkoutMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			productsRepo,
			bagSessions,
			bagService,
			checkoutService,
			profileService,
			orderService,
			stripeClient,
			webhookService,
			webhookGuard,
		),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case sig := <-stop:
		logg.Info(logg.WithField(ctx, "signal", sig.String()), "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var closeErr error
		closeErr = multierr.Append(closeErr, server.Shutdown(shutdownCtx))
		closeErr = multierr.Append(closeErr, redisClient.Close())
		closeErr = multierr.Append(closeErr, dbClient.Close())
		if closeErr != nil {
			logg.Error(ctx, "shutdown finished with errors", closeErr)
			os.Exit(1)
		}
		logg.Info(ctx, "shutdown complete")
	}
}
