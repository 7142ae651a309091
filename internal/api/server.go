package api

import (
	"context"
	"net/http"
	"slices"
	"time"

	"gateway-reconciler/internal/apperror"
	"gateway-reconciler/internal/logger"
	"gateway-reconciler/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthChecker is satisfied by database.Service.
type HealthChecker interface {
	Health(ctx context.Context) map[string]string
}

type Options struct {
	AllowedOrigins []string
	// Basic auth on the notification endpoint, off when either is empty.
	NotificationUser     string
	NotificationPassword string
}

type Server struct {
	checkout service.CheckoutService
	orders   service.OrderService
	health   HealthChecker
	logger   *zap.Logger
	opts     Options
}

func NewServer(checkout service.CheckoutService, orders service.OrderService, health HealthChecker, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		checkout: checkout,
		orders:   orders,
		health:   health,
		logger:   logger,
		opts:     opts,
	}
}

func (s *Server) RegisterRoutes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestLogger(s.logger))

	corsConfig := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:       12 * time.Hour,
	}
	if len(s.opts.AllowedOrigins) == 0 || slices.Contains(s.opts.AllowedOrigins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.opts.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	r.Use(cors.New(corsConfig))

	r.GET("/health", s.healthHandler)

	notifications := r.Group("/notifications")
	if s.opts.NotificationUser != "" && s.opts.NotificationPassword != "" {
		notifications.Use(gin.BasicAuth(gin.Accounts{s.opts.NotificationUser: s.opts.NotificationPassword}))
	}
	notifications.POST("", s.notificationHandler)

	api := r.Group("")
	api.Use(apperror.Middleware())
	api.GET("/payment-types", s.paymentTypesHandler)
	api.POST("/orders", s.createOrderHandler)
	api.GET("/orders/:reference/transactions", s.transactionsHandler)
	api.GET("/payments/:reference/request", s.buildRequestHandler)
	api.POST("/payments/:reference/checkout", s.checkoutHandler)
	api.POST("/payments/:reference/result", s.redirectResultHandler)
	api.POST("/payments/:reference/capture", s.captureHandler)

	return r
}
