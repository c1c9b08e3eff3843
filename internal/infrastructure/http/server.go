package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	handlers "github.com/membergate/membership-service/internal/adapter/handler/http"
	"github.com/membergate/membership-service/internal/config"
	"github.com/membergate/membership-service/internal/infrastructure/database"
	"github.com/membergate/membership-service/internal/middleware/auth"
	"github.com/membergate/membership-service/internal/usecase"
	"github.com/membergate/membership-service/internal/webhook"
	"github.com/membergate/membership-service/pkg/logger"
)

// CustomValidator wraps validator for echo request binding.
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates the given struct
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

type Server struct {
	config   *config.Config
	logger   *zap.Logger
	echo     *echo.Echo
	repos    *database.Repositories
	ledger   *usecase.SubscriptionLedger
	payments *usecase.PaymentService
}

func NewServer(
	cfg *config.Config,
	log *zap.Logger,
	repos *database.Repositories,
	ledger *usecase.SubscriptionLedger,
	payments *usecase.PaymentService,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(logger.NewEchoRequestLogger(log))
	e.Use(middleware.Recover())

	return &Server{
		config:   cfg,
		logger:   log,
		echo:     e,
		repos:    repos,
		ledger:   ledger,
		payments: payments,
	}
}

func (s *Server) Start() error {
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Server.HTTP.Host, s.config.Server.HTTP.Port)
	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Health check
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": s.config.Service.Name,
		})
	})

	// Webhook route (outside API versioning, signature-authenticated)
	verifier := webhook.NewVerifier([]byte(s.config.Service.WebhookSecret), nil)
	webhookHandler := handlers.NewWebhookHandler(verifier, s.repos.EventLedger, s.payments, s.logger)
	webhookHandler.RegisterRoutes(s.echo)

	// Admin routes behind JWT
	jwtConfig := auth.JWTConfig{
		Secret: s.config.Service.AdminJWTSecret,
		Logger: s.logger,
	}
	admin := s.echo.Group("/api/v1/admin", auth.JWTMiddleware(jwtConfig))
	adminHandler := handlers.NewAdminHandler(s.ledger, s.payments, s.repos.Member, s.repos.Activity, s.logger)
	adminHandler.RegisterRoutes(admin)
}
