package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	VNPayTmnCode    string `env:"VNPAY_TMN_CODE,required" validate:"required"`
	VNPayHashSecret string `env:"VNPAY_HASH_SECRET,required" validate:"required"`
	VNPayPayURL     string `env:"VNPAY_PAY_URL" envDefault:"https://sandbox.vnpayment.vn/paymentv2/vpcpay.html" validate:"required,url"`

	BaseURL string `env:"BASE_URL,required" validate:"required,url"`

	AuthTokenSecret string `env:"AUTH_TOKEN_SECRET,required" validate:"required,min=32"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis"`

	ShippingFeeFile string `env:"SHIPPING_FEE_FILE" envDefault:"shipping_fees.yaml" validate:"required"`
	UploadDir       string `env:"UPLOAD_DIR" envDefault:"uploads" validate:"required"`

	EmailProvider string `env:"EMAIL_PROVIDER" envDefault:"noop" validate:"omitempty,oneof=noop resend"`
	EmailAPIKey   string `env:"EMAIL_API_KEY" validate:"required_if=EmailProvider resend"`
	EmailFrom     string `env:"EMAIL_FROM" validate:"required_if=EmailProvider resend,omitempty,email"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"8080"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	parsed, err := url.Parse(strings.TrimSpace(c.BaseURL))
	if err != nil || parsed.Hostname() == "" {
		return fmt.Errorf("BASE_URL must be a valid absolute URL")
	}
	if !isLocalHost(parsed.Hostname()) && !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("BASE_URL must use https outside local development")
	}

	return nil
}

// VNPayReturnURL is the callback address registered with the gateway.
func (c *Config) VNPayReturnURL() string {
	return strings.TrimRight(strings.TrimSpace(c.BaseURL), "/") + "/payment/vnpay/return"
}

func isLocalHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
