package config

import (
	"strings"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()

	t.Setenv("DATABASE_URL", "postgres://localhost:5432/vietshop")
	t.Setenv("VNPAY_TMN_CODE", "VIETSHOP")
	t.Setenv("VNPAY_HASH_SECRET", "secret")
	t.Setenv("BASE_URL", "https://shop.example.com")
	t.Setenv("AUTH_TOKEN_SECRET", strings.Repeat("k", 32))
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.CacheProvider != "memory" {
		t.Fatalf("CacheProvider = %q, want memory", cfg.CacheProvider)
	}
	if cfg.EmailProvider != "noop" {
		t.Fatalf("EmailProvider = %q, want noop", cfg.EmailProvider)
	}
	if got := cfg.VNPayReturnURL(); got != "https://shop.example.com/payment/vnpay/return" {
		t.Fatalf("VNPayReturnURL() = %q", got)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() succeeded without DATABASE_URL")
	}
}

func TestLoadRejectsShortTokenSecret(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AUTH_TOKEN_SECRET", "short")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() accepted a short token secret")
	}
}

func TestLoadRejectsPlainHTTPBaseURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BASE_URL", "http://shop.example.com")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() accepted http base URL for a non-local host")
	}
}

func TestLoadAllowsLocalhostHTTP(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BASE_URL", "http://localhost:8080")

	if _, err := Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}
