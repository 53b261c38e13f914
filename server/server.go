package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vietshopapp/vietshop/internal/config"
	"github.com/vietshopapp/vietshop/internal/handlers"
	"github.com/vietshopapp/vietshop/internal/services"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	router := s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s, nil
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.SecurityHeaders)
	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")

	// The gateway redirects the customer's browser here; it carries its own
	// signature and needs no bearer token.
	r.HandleFunc("/payment/vnpay/return", h.VNPayReturn).Methods("GET").Name("payment.vnpay.return")

	// Uploaded proof-of-delivery and return images.
	r.PathPrefix("/uploads/").Handler(
		http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.cfg.UploadDir)))).Name("uploads")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.Authenticate)

	api.HandleFunc("/checkout", h.Checkout).Methods("POST").Name("api.checkout")
	api.HandleFunc("/orders", h.ListOrders).Methods("GET").Name("api.orders.list")
	api.HandleFunc("/orders/{id}", h.GetOrder).Methods("GET").Name("api.orders.get")
	api.HandleFunc("/orders/{id}/cancel", h.CancelOrder).Methods("POST").Name("api.orders.cancel")
	api.HandleFunc("/orders/{id}/return", h.RequestReturn).Methods("POST").Name("api.orders.return")

	shipper := api.PathPrefix("/shipper").Subrouter()
	shipper.Use(h.RequireRole(services.RoleShipper))
	shipper.HandleFunc("/deliveries", h.ShipperQueue).Methods("GET").Name("api.shipper.deliveries")
	shipper.HandleFunc("/deliveries/{tracking}", h.ShipperDelivery).Methods("GET").Name("api.shipper.deliveries.get")
	shipper.HandleFunc("/deliveries/{tracking}/claim", h.ShipperClaim).Methods("POST").Name("api.shipper.deliveries.claim")
	shipper.HandleFunc("/deliveries/{tracking}/receive", h.ShipperReceive).Methods("POST").Name("api.shipper.deliveries.receive")
	shipper.HandleFunc("/deliveries/{tracking}/complete", h.ShipperComplete).Methods("POST").Name("api.shipper.deliveries.complete")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(h.RequireRole(services.RoleAdmin))
	admin.HandleFunc("/orders", h.AdminListOrders).Methods("GET").Name("api.admin.orders")
	admin.HandleFunc("/orders/expire-pending", h.AdminExpirePending).Methods("POST").Name("api.admin.orders.expire_pending")
	admin.HandleFunc("/orders/{id}", h.GetOrder).Methods("GET").Name("api.admin.orders.get")
	admin.HandleFunc("/orders/{id}/ship", h.AdminShipOrder).Methods("POST").Name("api.admin.orders.ship")
	admin.HandleFunc("/orders/{id}/return/approve", h.AdminApproveReturn).Methods("POST").Name("api.admin.orders.return.approve")
	admin.HandleFunc("/orders/{id}/return/reject", h.AdminRejectReturn).Methods("POST").Name("api.admin.orders.return.reject")
	admin.HandleFunc("/orders/{id}/return/complete", h.AdminCompleteReturn).Methods("POST").Name("api.admin.orders.return.complete")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	})

	return r
}
