package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vietshopapp/vietshop/internal/cache"
	"github.com/vietshopapp/vietshop/internal/config"
	"github.com/vietshopapp/vietshop/internal/db"
	"github.com/vietshopapp/vietshop/internal/logging"
	"github.com/vietshopapp/vietshop/internal/services"
)

const maxJSONBodyBytes = 1 << 20 // 1 MB

// Handlers provides the HTTP request handlers for the storefront API.
type Handlers struct {
	config          *config.Config
	db              *pgxpool.Pool
	orderStore      *db.OrderStore
	assembler       *db.Assembler
	cacheProvider   cache.Provider
	checkoutService *services.CheckoutService
	paymentService  *services.PaymentService
	deliveryService *services.DeliveryService
	returnService   *services.ReturnService
	tokenService    *services.TokenService
	logger          *slog.Logger
}

type Dependencies struct {
	Config          *config.Config
	DB              *pgxpool.Pool
	OrderStore      *db.OrderStore
	Assembler       *db.Assembler
	CacheProvider   cache.Provider
	CheckoutService *services.CheckoutService
	PaymentService  *services.PaymentService
	DeliveryService *services.DeliveryService
	ReturnService   *services.ReturnService
	TokenService    *services.TokenService
	Logger          *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("handlers dependencies: db is required")
	}
	if deps.OrderStore == nil {
		return nil, fmt.Errorf("handlers dependencies: orderStore is required")
	}
	if deps.Assembler == nil {
		return nil, fmt.Errorf("handlers dependencies: assembler is required")
	}
	if deps.CacheProvider == nil {
		return nil, fmt.Errorf("handlers dependencies: cacheProvider is required")
	}
	if deps.CheckoutService == nil {
		return nil, fmt.Errorf("handlers dependencies: checkoutService is required")
	}
	if deps.PaymentService == nil {
		return nil, fmt.Errorf("handlers dependencies: paymentService is required")
	}
	if deps.DeliveryService == nil {
		return nil, fmt.Errorf("handlers dependencies: deliveryService is required")
	}
	if deps.ReturnService == nil {
		return nil, fmt.Errorf("handlers dependencies: returnService is required")
	}
	if deps.TokenService == nil {
		return nil, fmt.Errorf("handlers dependencies: tokenService is required")
	}

	return &Handlers{
		config:          deps.Config,
		db:              deps.DB,
		orderStore:      deps.OrderStore,
		assembler:       deps.Assembler,
		cacheProvider:   deps.CacheProvider,
		checkoutService: deps.CheckoutService,
		paymentService:  deps.PaymentService,
		deliveryService: deps.DeliveryService,
		returnService:   deps.ReturnService,
		tokenService:    deps.TokenService,
		logger:          logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if err := h.db.Ping(ctx); err != nil {
		logger.Error("database health check failed", "error", err)
		http.Error(w, "Database unhealthy", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	}); err != nil {
		logger.Error("failed to encode health response", "error", err)
	}
}
