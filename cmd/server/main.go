package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/rl1809/stock-ledger/internal/adapter/handler"
	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/rl1809/stock-ledger/internal/port"
)

const (
	migrateLockKey = "stockledger:migrate"
	migrateLockTTL = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		logrus.Fatalf("failed to build logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis
	var (
		rdb          *redis.Client
		cache        port.CacheRepository
		redisAdapter *storage.RedisAdapter
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatalf("failed to connect redis: %v", err)
		}
		redisAdapter = storage.NewRedisAdapter(rdb, cfg.PriceCacheTTL)
		cache = redisAdapter
		logger.WithField("addr", cfg.RedisAddr).Info("connected to redis")
	} else {
		logger.Warn("REDIS_ADDR not set, price cache and request idempotency disabled")
	}

	// Initialize storage
	var (
		db    *sql.DB
		store port.DatabaseRepository
	)
	if cfg.MySQLDSN != "" {
		db, err = storage.OpenMySQL(ctx, cfg.MySQLDSN, storage.PoolOptions{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: 5 * time.Minute,
		})
		if err != nil {
			logger.Fatalf("failed to connect mysql: %v", err)
		}
		mysqlAdapter := storage.NewMySQLAdapter(db)
		migrate := func() error { return mysqlAdapter.Migrate(ctx) }
		if redisAdapter != nil {
			err = redisAdapter.WithLock(ctx, migrateLockKey, migrateLockTTL, migrate)
		} else {
			err = migrate()
		}
		if err != nil {
			logger.Fatalf("failed to migrate schema: %v", err)
		}
		store = mysqlAdapter
		logger.Info("connected to mysql")
	} else {
		store = storage.NewMemoryAdapter()
		logger.Warn("MYSQL_DSN not set, using the in-memory store")
	}

	// Initialize services
	policy, err := service.ParsePricePolicy(cfg.PricePolicy)
	if err != nil {
		logger.Fatalf("invalid PRICE_POLICY: %v", err)
	}

	stock := service.NewStockLedger(store)
	prices := service.NewPriceLedger(store, cache)
	prices.OnCacheError = func(op string, err error) {
		logger.WithFields(logrus.Fields{"module": "price_ledger", "op": op}).WithError(err).Warn("price cache unavailable")
	}
	svc := handler.Services{
		Catalog:    service.NewCatalogService(store, service.NamedDefaultCategory(cfg.DefaultCategory), prices, stock),
		Prices:     prices,
		Taxes:      service.NewTaxLedger(store),
		Stock:      stock,
		Orders:     service.NewOrderService(store, stock, cache),
		Aggregator: service.NewOrderAggregator(store, policy),
	}

	// Start gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterOrderServiceServer(grpcServer, handler.NewGRPCHandler(svc, logger, cfg.RetryMaxAttempts))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatalf("failed to listen: %v", err)
	}
	go func() {
		logger.Infof("gRPC server listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Errorf("gRPC server error: %v", err)
		}
	}()

	// Start HTTP server
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.NewHTTPHandler(svc, logger, cfg.RetryMaxAttempts).Router(),
	}
	go func() {
		logger.Infof("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP shutdown: %v", err)
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	if rdb != nil {
		rdb.Close()
	}
	if db != nil {
		db.Close()
	}
	logger.Info("connections closed")
}
