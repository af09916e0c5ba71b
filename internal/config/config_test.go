package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDR", "GRPC_ADDR", "MYSQL_DSN", "REDIS_ADDR", "PRICE_CACHE_TTL", "DB_MAX_OPEN_CONNS", "RETRY_MAX_ATTEMPTS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.GRPCAddr != ":50051" {
		t.Errorf("unexpected addresses: %s %s", cfg.HTTPAddr, cfg.GRPCAddr)
	}
	if cfg.MySQLDSN != "" || cfg.RedisAddr != "" {
		t.Errorf("expected no external stores by default, got %q %q", cfg.MySQLDSN, cfg.RedisAddr)
	}
	if cfg.PriceCacheTTL != 10*time.Minute {
		t.Errorf("expected 10m cache ttl, got %s", cfg.PriceCacheTTL)
	}
	if cfg.DBMaxOpenConns != 50 || cfg.RetryMaxAttempts != 5 {
		t.Errorf("unexpected pool settings: %+v", cfg)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PRICE_CACHE_TTL", "30s")
	t.Setenv("DB_MAX_OPEN_CONNS", "8")
	t.Setenv("DEFAULT_CATEGORY", "misc")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PriceCacheTTL != 30*time.Second {
		t.Errorf("expected 30s, got %s", cfg.PriceCacheTTL)
	}
	if cfg.DBMaxOpenConns != 8 {
		t.Errorf("expected 8, got %d", cfg.DBMaxOpenConns)
	}
	if cfg.DefaultCategory != "misc" {
		t.Errorf("expected misc, got %s", cfg.DefaultCategory)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"PRICE_CACHE_TTL":    "soon",
		"DB_MAX_IDLE_CONNS":  "many",
		"RETRY_MAX_ATTEMPTS": "0",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestLogError(t *testing.T) {
	logger, err := NewLogger("info")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	LogError(logger, "handler", "UpdateLine", "reserve", map[string]int{"delta": 2}, errors.New("boom"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["module"] != "handler" || entry["funcName"] != "UpdateLine" || entry["msg"] != "boom" {
		t.Errorf("unexpected log entry: %v", entry)
	}
	if entry["level"] != logrus.ErrorLevel.String() {
		t.Errorf("expected error level, got %v", entry["level"])
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	if _, err := NewLogger("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
