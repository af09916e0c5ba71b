package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

func TestWithRetry_RetriesContention(t *testing.T) {
	attempts := 0
	got, err := withRetry(context.Background(), 5, func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, domain.ErrContention
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("expected success, got: %v", err)
	}
	if got != 42 || attempts != 3 {
		t.Errorf("expected 42 after 3 attempts, got %d after %d", got, attempts)
	}
}

func TestWithRetry_PermanentError(t *testing.T) {
	attempts := 0
	_, err := withRetry(context.Background(), 5, func() (int, error) {
		attempts++
		return 0, domain.ErrOutOfStock
	})
	if !errors.Is(err, domain.ErrOutOfStock) {
		t.Errorf("expected ErrOutOfStock, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected a single attempt, got %d", attempts)
	}
}

func TestWithRetry_Exhausted(t *testing.T) {
	attempts := 0
	err := retryErr(context.Background(), 3, func() error {
		attempts++
		return domain.ErrContention
	})
	if !errors.Is(err, domain.ErrContention) {
		t.Errorf("expected ErrContention, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}
