package cache

// Package cache absorbs replayed gateway callbacks before they reach the
// database guard and backs short-lived read caching for shipper queues.

import (
	"context"
	"fmt"
	"time"
)

type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
}

func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "memory", "":
		return NewMemoryProvider()
	case "redis":
		return NewRedisProvider(cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}
}

// CallbackKey identifies one processed gateway callback by its transaction
// reference and response code, so at-least-once delivery collapses to one
// logical application.
func CallbackKey(gateway, txnRef, responseCode string) string {
	return fmt.Sprintf("callback:%s:%s:%s", gateway, txnRef, responseCode)
}
