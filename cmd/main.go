package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/RaikyD/storefront-orders/internal/application"
	"github.com/RaikyD/storefront-orders/internal/cache"
	"github.com/RaikyD/storefront-orders/internal/config"
	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/kafka"
	"github.com/RaikyD/storefront-orders/internal/logger"
	"github.com/RaikyD/storefront-orders/internal/migrate"
	"github.com/RaikyD/storefront-orders/internal/payments"
	"github.com/RaikyD/storefront-orders/internal/presentation"
	"github.com/RaikyD/storefront-orders/internal/repository"
	"github.com/RaikyD/storefront-orders/internal/repository/memory"
	"github.com/RaikyD/storefront-orders/internal/shipping"
	"github.com/RaikyD/storefront-orders/internal/shipping/carriers"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("STOREFRONT_CONFIG"), "path to an optional YAML config file")
	flag.Parse()

	logger.Init(logger.Options{Level: "info"})
	cfg, err := config.LoadConfig(*cfgPath)
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}
	logger.Init(logger.Options{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		FilePath:    cfg.Log.File,
	})
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("service stopped with error", "err", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("service stopped")
}

type stores struct {
	orders  repository.OrderStore
	catalog repository.CatalogReader
	rules   repository.ShippingRuleSource
	db      presentation.Pinger
}

func run(ctx context.Context, cfg *config.Config) error {
	st, closeStore, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var locker cache.Locker = cache.NewKeyedMutex()
	if cfg.RedisEnabled() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		locker = cache.NewRedisLocker(rdb, cfg.Redis.LockTTL)
		logger.Info("redis order locks enabled", "addr", cfg.Redis.Addr)
	}

	events := application.NopPublisher
	if cfg.KafkaEnabled() {
		prod := kafka.NewProducer(splitBrokers(cfg.Kafka.Brokers), cfg.Kafka.EventsTopic)
		defer prod.Close()
		events = prod
	}

	gw, err := payments.NewHTTPGateway(payments.HTTPGatewayConfig{
		BaseURL:     cfg.Gateway.BaseURL,
		AccessToken: cfg.Gateway.AccessToken,
		Timeout:     cfg.Gateway.Timeout,
	})
	if err != nil {
		return err
	}

	svc := application.NewOrdersService(st.orders, st.catalog, gw, events, application.ServiceConfig{
		Currency: cfg.Store.Currency,
		URLs: application.CheckoutURLs{
			Success:      cfg.Gateway.SuccessURL,
			Failure:      cfg.Gateway.FailureURL,
			Pending:      cfg.Gateway.PendingURL,
			Notification: cfg.Gateway.NotificationURL,
		},
	})
	rec := application.NewReconciler(gw, st.orders, locker, events)
	agg := shipping.NewAggregator(st.catalog, st.rules, carrierAdapters(cfg),
		shipping.WithCarrierTimeout(cfg.Shipping.CarrierTimeout),
		shipping.WithOriginZip(cfg.Shipping.OriginZip),
	)

	// Cancelling consumerCtx stops fetching and retrying. A reconciliation attempt that is
	// already running completes and its message is committed.
	consumerCtx, cancelConsumer := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelConsumer()
	var consumer *kafka.Consumer
	if cfg.KafkaEnabled() {
		consumer = kafka.StartConsumer(consumerCtx, rec, kafka.ConsumerConfig{
			Brokers: splitBrokers(cfg.Kafka.Brokers),
			Topic:   cfg.Kafka.NotificationsTopic,
			GroupID: cfg.Kafka.GroupID,
		})
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTP.Port,
		Handler: presentation.NewRouter(presentation.RouterDeps{
			Orders:         presentation.NewOrdersHandler(svc),
			Webhooks:       presentation.NewWebhookHandler(rec),
			Shipping:       presentation.NewShippingHandler(agg),
			DB:             st.db,
			RequestTimeout: cfg.HTTP.WriteTimeout,
			RateLimitRPS:   cfg.HTTP.RateLimitRPS,
			RateLimitBurst: cfg.HTTP.RateLimitBurst,
		}),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting http", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "err", err)
	}
	cancelConsumer()
	if consumer != nil {
		consumer.Wait()
	}
	return nil
}

func openStores(ctx context.Context, cfg *config.Config) (stores, func(), error) {
	if cfg.Store.Driver == "memory" {
		mem := memory.NewStore()
		seedDemoCatalog(mem)
		logger.Warn("using in-memory store; data is lost on restart")
		return stores{orders: mem, catalog: mem, rules: mem}, func() {}, nil
	}

	if cfg.Store.Migrate {
		applied, err := migrate.Up(ctx, cfg.Store.DSN)
		if err != nil {
			return stores{}, nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations applied", "versions", applied)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Store.DSN)
	if err != nil {
		return stores{}, nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.Store.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Store.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return stores{}, nil, fmt.Errorf("pgxpool new: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return stores{}, nil, fmt.Errorf("db ping: %w", err)
	}
	logger.Info("db connected")

	return stores{
		orders:  repository.NewOrderRepository(pool),
		catalog: repository.NewCatalogRepository(pool),
		rules:   repository.NewShippingRuleRepository(pool),
		db:      pool,
	}, pool.Close, nil
}

func carrierAdapters(cfg *config.Config) []shipping.CarrierAdapter {
	client := &http.Client{Timeout: cfg.Shipping.CarrierTimeout + time.Second}
	var out []shipping.CarrierAdapter
	if c := cfg.Shipping.CarrierA; c.Enabled {
		out = append(out, carriers.NewJSONCarrier(c.BaseURL, c.APIKey, client))
	}
	if c := cfg.Shipping.CarrierB; c.Enabled {
		out = append(out, carriers.NewXMLCarrier(c.BaseURL, c.TaxID, c.Operation, client))
	}
	if c := cfg.Shipping.CarrierC; c.Enabled {
		out = append(out, carriers.NewTokenCarrier(c.BaseURL, c.Username, c.Password, client))
	}
	for _, a := range out {
		logger.Info("carrier enabled", "provider", a.Provider())
	}
	return out
}

func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// seedDemoCatalog gives the in-memory mode something to sell.
func seedDemoCatalog(s *memory.Store) {
	large := int64(5200)
	s.PutProduct(domain.Product{
		ID: "demo-mug", Name: "Ceramic mug", Price: 4500, Stock: 25, Published: true,
		Dimensions: domain.Dimensions{WeightGrams: 350, WidthCm: 10, HeightCm: 12, LengthCm: 10},
		Variants: []domain.Variant{
			{ID: "demo-mug-l", ProductID: "demo-mug", Name: "Large", Stock: 8, Price: &large},
		},
	})
	s.PutProduct(domain.Product{
		ID: "demo-poster", Name: "Poster", Price: 2000, Stock: 100, Published: true,
	})
	freeFrom := int64(50000)
	s.PutRule(domain.LocalShippingRule{ID: "pickup", Name: "Store pickup", Cost: 0, IsActive: true, EstimatedDelivery: "same day"})
	s.PutRule(domain.LocalShippingRule{ID: "free", Name: "Free shipping", Cost: 0, MinAmount: &freeFrom, IsActive: true, EstimatedDelivery: "3-5 days"})
}
