package http

import (
	"context"
	"net/http"
	"time"

	"github.com/jmehdipour/wallet-notifier/internal/config"
	"github.com/jmehdipour/wallet-notifier/internal/http/middleware"
	"github.com/jmehdipour/wallet-notifier/internal/logger"
	"github.com/jmehdipour/wallet-notifier/internal/metrics"
	"github.com/jmehdipour/wallet-notifier/internal/repository"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps are the services the operator API fronts. Reports and Redis may be nil.
type Deps struct {
	Publisher EventPublisher
	Outbox    OutboxService
	Reports   repository.DeliveryReportsRepository
	Redis     *redis.Client
}

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, d Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(cfg.Operators)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          d.Redis,
		DefaultRPS:     cfg.RateLimit.RPS,
		Burst:          cfg.RateLimit.Burst,
		KeyPrefix:      "wnotif:rl:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.POST("/events", publishEventHandler(d.Publisher))
	v1.GET("/outbox/unsent", listUnsentHandler(d.Outbox))
	v1.POST("/outbox/:id/resend", resendHandler(d.Outbox))
	v1.GET("/reports/deliveries", listDeliveriesHandler(d.Reports))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	logger.L().Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

// ServeHTTP lets tests drive the router directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.e.ServeHTTP(w, r) }
