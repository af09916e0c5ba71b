package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/rl1809/stock-ledger/internal/port"
)

const (
	initialStock  = 20
	totalRequests = 50
	maxAttempts   = 5
)

func main() {
	ctx := context.Background()
	logger := logrus.New()

	store := openStore(ctx, logger)

	stock := service.NewStockLedger(store)
	prices := service.NewPriceLedger(store, nil)
	catalog := service.NewCatalogService(store, service.NamedDefaultCategory("stress"), prices, stock)
	orders := service.NewOrderService(store, stock, nil)

	runID := uuid.NewString()[:8]
	article, err := catalog.CreateArticle(ctx, domain.ArticleInput{
		Reference: "stress-" + runID,
		Name:      "Stress test article",
	})
	if err != nil {
		logger.Fatalf("failed to create article: %v", err)
	}
	if _, err := stock.InitStock(ctx, article.ID, initialStock); err != nil {
		logger.Fatalf("failed to init stock: %v", err)
	}

	var successCount, soldOutCount, errorCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			order, err := orders.CreateOrder(ctx, fmt.Sprintf("stress-%s-%d", runID, n), fmt.Sprintf("user-%d", n))
			if err != nil {
				logger.WithError(err).Error("create order")
				errorCount.Add(1)
				return
			}

			_, err = reserve(ctx, orders, order.ID, article.ID)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrOutOfStock):
				soldOutCount.Add(1)
			default:
				logger.WithError(err).Error("reserve")
				errorCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOut)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == initialStock && soldOut == totalRequests-initialStock {
		fmt.Printf("PASS: Exactly %d reservations succeeded, %d sold out\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, soldOut)
	}

	finalStock, err := stock.Quantity(ctx, article.ID)
	if err != nil {
		logger.Fatalf("failed to read stock: %v", err)
	}
	fmt.Printf("Final Stock:      %d\n", finalStock)

	if finalStock == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", finalStock)
	}
}

// reserve takes one unit, retrying store contention with backoff.
func reserve(ctx context.Context, orders *service.OrderService, orderID, articleID uuid.UUID) (int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(b, maxAttempts-1), ctx)

	return backoff.RetryWithData(func() (int, error) {
		q, err := orders.UpdateLine(ctx, orderID, articleID, 1)
		if err != nil && !domain.IsRetryable(err) {
			return q, backoff.Permanent(err)
		}
		return q, err
	}, policy)
}

// openStore uses MySQL when MYSQL_DSN is set, otherwise the in-memory store.
func openStore(ctx context.Context, logger *logrus.Logger) port.DatabaseRepository {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		logger.Info("MYSQL_DSN not set, running against the in-memory store")
		return storage.NewMemoryAdapter()
	}

	db, err := storage.OpenMySQL(ctx, dsn, storage.PoolOptions{MaxOpenConns: totalRequests})
	if err != nil {
		logger.Fatalf("failed to connect mysql: %v", err)
	}

	adapter := storage.NewMySQLAdapter(db)
	if err := adapter.Migrate(ctx); err != nil {
		logger.Fatalf("failed to migrate: %v", err)
	}
	return adapter
}
