package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vietshopapp/vietshop/internal/cache"
	"github.com/vietshopapp/vietshop/internal/config"
	"github.com/vietshopapp/vietshop/internal/db"
	"github.com/vietshopapp/vietshop/internal/email"
	"github.com/vietshopapp/vietshop/internal/handlers"
	"github.com/vietshopapp/vietshop/internal/services"
	"github.com/vietshopapp/vietshop/internal/shipping"
	"github.com/vietshopapp/vietshop/internal/vnpay"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *pgxpool.Pool
	CacheProvider cache.Provider
	Handlers      *handlers.Handlers
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	database, err := db.Connect(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	feeTable, err := shipping.LoadFeeTable(cfg.ShippingFeeFile)
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to load shipping fee table: %w", err)
	}

	gateway, err := vnpay.NewClient(vnpay.Config{
		TmnCode:    cfg.VNPayTmnCode,
		HashSecret: cfg.VNPayHashSecret,
		PayURL:     cfg.VNPayPayURL,
		ReturnURL:  cfg.VNPayReturnURL(),
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize payment gateway: %w", err)
	}

	emailProvider, err := email.NewProvider(email.Config{
		Provider: cfg.EmailProvider,
		APIKey:   cfg.EmailAPIKey,
		From:     cfg.EmailFrom,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize email provider: %w", err)
	}

	tokenService, err := services.NewTokenService(cfg.AuthTokenSecret, 24*time.Hour)
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	assembler := db.NewAssembler(database)
	orderStore := assembler.Orders()

	checkoutService := services.NewCheckoutService(
		assembler,
		assembler.Vouchers(),
		assembler.Inventory(),
		orderStore,
		feeTable,
		gateway,
		logger.With("component", "checkout_service"),
	)
	paymentService := services.NewPaymentService(
		gateway,
		orderStore,
		orderStore,
		assembler,
		cacheProvider,
		emailProvider,
		logger.With("component", "payment_service"),
	)
	deliveryService := services.NewDeliveryService(
		assembler.Deliveries(),
		orderStore,
		assembler,
		cacheProvider,
		logger.With("component", "delivery_service"),
	)
	returnService := services.NewReturnService(
		orderStore,
		assembler,
		logger.With("component", "return_service"),
	)

	h, err := handlers.New(handlers.Dependencies{
		Config:          cfg,
		DB:              database,
		OrderStore:      orderStore,
		Assembler:       assembler,
		CacheProvider:   cacheProvider,
		CheckoutService: checkoutService,
		PaymentService:  paymentService,
		DeliveryService: deliveryService,
		ReturnService:   returnService,
		TokenService:    tokenService,
		Logger:          logger,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		DB:            database,
		CacheProvider: cacheProvider,
		Handlers:      h,
	}, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	format := strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	case "text", "":
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level: cfg.LogLevel,
		}))
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: cfg.LogLevel}))
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
