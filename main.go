package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appcart "github.com/caffeinepub/kodinar-bazaar/internal/application/cart"
	appcheckout "github.com/caffeinepub/kodinar-bazaar/internal/application/checkout"
	apporder "github.com/caffeinepub/kodinar-bazaar/internal/application/order"
	apppaymentconfig "github.com/caffeinepub/kodinar-bazaar/internal/application/paymentconfig"
	appreconcile "github.com/caffeinepub/kodinar-bazaar/internal/application/reconcile"
	"github.com/caffeinepub/kodinar-bazaar/internal/config"
	dompayment "github.com/caffeinepub/kodinar-bazaar/internal/domain/payment"
	"github.com/caffeinepub/kodinar-bazaar/internal/infrastructure/identity"
	infraobs "github.com/caffeinepub/kodinar-bazaar/internal/infrastructure/observability"
	"github.com/caffeinepub/kodinar-bazaar/internal/infrastructure/observability/oteltrace"
	"github.com/caffeinepub/kodinar-bazaar/internal/infrastructure/observability/prometrics"
	"github.com/caffeinepub/kodinar-bazaar/internal/infrastructure/observability/zaplogger"
	"github.com/caffeinepub/kodinar-bazaar/internal/infrastructure/outbox"
	"github.com/caffeinepub/kodinar-bazaar/internal/infrastructure/stripe"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability"
	"github.com/caffeinepub/kodinar-bazaar/internal/pkg/keylock"
	httppresentation "github.com/caffeinepub/kodinar-bazaar/internal/presentation/http"
	workerpresentation "github.com/caffeinepub/kodinar-bazaar/internal/presentation/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "kodinar-bazaar:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}

	baseLogger, err := zaplogger.New(zaplogger.Options{
		Service: cfg.ServiceName,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		LogFile: cfg.LogFile,
	})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger.Zap())
	systemLogger := baseLogger.With(observability.F("component", "system"))

	reg := prometrics.New("", "")
	counters, histograms := infraobs.Instruments(reg)
	tel := infraobs.New(oteltrace.New(cfg.ServiceName), baseLogger, counters, histograms)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := openStores(ctx, cfg, systemLogger)
	if err != nil {
		return err
	}
	defer stores.close()

	configs := stores.paymentConfigs
	if cfg.StripeSecretKey != "" {
		seed, err := dompayment.NewConfiguration(cfg.StripeSecretKey, cfg.StripeAllowedCountries)
		if err != nil {
			return fmt.Errorf("STRIPE_SECRET_KEY: %w", err)
		}
		if err := configs.Store(ctx, seed); err != nil {
			return fmt.Errorf("seed payment configuration: %w", err)
		}
		systemLogger.Info("payment_configuration_seeded", observability.F("configuration", seed.String()))
	}
	gateway := newGateway(cfg, configs, tel)

	// In-process outbox: use cases publish, workers and the Kafka forwarder consume.
	bus := outbox.NewBus(baseLogger, tel)
	bus.Start(ctx)

	forwarder, err := newForwarder(cfg, tel)
	if err != nil {
		return err
	}
	if forwarder != nil {
		bus.Subscribe(outbox.AllEvents, forwarder.Handle)
		systemLogger.Info("kafka_forwarder_enabled",
			observability.F("brokers", cfg.KafkaBrokers),
			observability.F("topic", cfg.KafkaTopic),
		)
	}

	reconcileUC := appreconcile.NewUseCase(stores.orders, gateway, bus, tel)
	workerpresentation.NewReconcileWorker(bus, reconcileUC, baseLogger, tel).Start()

	if cfg.JWTSecret == "" {
		systemLogger.Warn("jwt_secret_missing", observability.F("effect", "authenticated routes reject every request"))
	}
	var webhooks dompayment.NotificationVerifier
	if cfg.StripeWebhookSecret != "" {
		webhooks = stripe.NewWebhookVerifier(cfg.StripeWebhookSecret)
	}

	handler := httppresentation.NewHandler(httppresentation.Deps{
		Cart: appcart.NewService(stores.carts, stores.catalog, tel),
		PlaceOrder: appcheckout.NewPlaceOrderUseCase(appcheckout.PlaceOrderDeps{
			Carts:     stores.carts,
			Catalog:   stores.catalog,
			Stock:     stores.catalog,
			Orders:    stores.orders,
			IDs:       stores.orders,
			Gateway:   gateway,
			Buyers:    keylock.New(),
			Publisher: bus,
			Currency:  cfg.Currency,
		}, tel),
		PaymentSession: appcheckout.NewCreatePaymentSessionUseCase(stores.orders, gateway, bus, tel),
		Reconcile:      reconcileUC,
		GetOrder:       apporder.NewGetOrderUseCase(stores.orders, tel),
		ListOrders:     apporder.NewListOrdersUseCase(stores.orders, tel),
		UpdateStatus:   apporder.NewUpdateStatusUseCase(stores.orders, bus, tel),
		SetConfig:      apppaymentconfig.NewSetUseCase(configs, tel),
		ConfigStatus:   apppaymentconfig.NewStatus(gateway),
		Auth:           identity.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		Webhooks:       webhooks,
		Publisher:      bus,
	}, baseLogger, tel)

	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		systemLogger.Info("http_server_start",
			observability.F("addr", server.Addr),
			observability.F("payment_gateway", cfg.PaymentGateway),
		)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			systemLogger.Error("http_server_error", observability.Err(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", observability.Err(err))
	} else {
		systemLogger.Info("http_server_stopped")
	}

	// drain queued events before the forwarder's writer goes away
	bus.Stop(shutdownCtx)
	if forwarder != nil {
		if err := forwarder.Close(); err != nil {
			systemLogger.Warn("kafka_forwarder_close_failed", observability.Err(err))
		}
	}
	return nil
}
