package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"

	appcheckout "github.com/caffeinepub/kodinar-bazaar/internal/application/checkout"
	"github.com/caffeinepub/kodinar-bazaar/internal/config"
	domcart "github.com/caffeinepub/kodinar-bazaar/internal/domain/cart"
	domorder "github.com/caffeinepub/kodinar-bazaar/internal/domain/order"
	dompayment "github.com/caffeinepub/kodinar-bazaar/internal/domain/payment"
	kafkafwd "github.com/caffeinepub/kodinar-bazaar/internal/infrastructure/kafka"
	"github.com/caffeinepub/kodinar-bazaar/internal/infrastructure/memory"
	"github.com/caffeinepub/kodinar-bazaar/internal/infrastructure/postgres"
	redisstore "github.com/caffeinepub/kodinar-bazaar/internal/infrastructure/redis"
	"github.com/caffeinepub/kodinar-bazaar/internal/infrastructure/stripe"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability"
)

type orderLedger interface {
	domorder.Repository
	appcheckout.IDGenerator
}

type stores struct {
	orders         orderLedger
	carts          domcart.Store
	catalog        *memory.CatalogRepository
	paymentConfigs dompayment.ConfigStore
	closers        []func() error
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

// openStores picks Postgres and Redis when configured, in-process maps otherwise.
func openStores(ctx context.Context, cfg config.Config, logger observability.Logger) (*stores, error) {
	s := &stores{
		catalog:        memory.NewCatalogRepository(),
		paymentConfigs: memory.NewPaymentConfigStore(),
	}

	if cfg.PostgresDSN != "" {
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		if err := migrate(db, logger); err != nil {
			s.close()
			return nil, err
		}
		s.orders = postgres.NewOrderRepository(db)
		logger.Info("order_ledger_selected", observability.F("backend", "postgres"))
	} else {
		s.orders = memory.NewOrderRepository()
		logger.Warn("order_ledger_selected", observability.F("backend", "memory"))
	}

	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = client.Close()
			s.close()
			return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		s.closers = append(s.closers, client.Close)
		s.carts = redisstore.NewCartStore(client)
		logger.Info("cart_store_selected", observability.F("backend", "redis"))
	} else {
		s.carts = memory.NewCartStore()
		logger.Info("cart_store_selected", observability.F("backend", "memory"))
	}

	if cfg.CatalogSeedFile != "" {
		f, err := os.Open(cfg.CatalogSeedFile)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("open catalog seed: %w", err)
		}
		n, err := s.catalog.LoadSeed(ctx, f, cfg.Currency)
		_ = f.Close()
		if err != nil {
			s.close()
			return nil, err
		}
		logger.Info("catalog_seeded", observability.F("products", n), observability.F("file", cfg.CatalogSeedFile))
	}
	return s, nil
}

func migrate(db *sql.DB, logger observability.Logger) error {
	start := time.Now()
	if err := postgres.Migrate(db); err != nil {
		return err
	}
	logger.Info("order_ledger_migrated", observability.F("elapsed", time.Since(start)))
	return nil
}

func newGateway(cfg config.Config, configs dompayment.ConfigStore, tel observability.Observability) dompayment.Gateway {
	if cfg.PaymentGateway == "fake" {
		return memory.NewGateway(configs)
	}
	opts := []stripe.Option{stripe.WithTimeout(cfg.GatewayTimeout)}
	if cfg.StripeAPIURL != "" {
		opts = append(opts, stripe.WithAPIURL(cfg.StripeAPIURL))
	}
	return stripe.NewGateway(configs, tel, opts...)
}

// newForwarder returns nil when no brokers are configured.
func newForwarder(cfg config.Config, tel observability.Observability) (*kafkafwd.Forwarder, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, nil
	}
	if cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return kafkafwd.NewForwarder(kafkafwd.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic), cfg.ServiceName, tel), nil
}
