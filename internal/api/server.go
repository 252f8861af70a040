package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/gobot/internal/ai"
	"github.com/gobot/internal/analytics"
	"github.com/gobot/internal/config"
	"github.com/gobot/internal/license"
	"github.com/gobot/internal/license/payment"
)

// Generator produces clarifications and code implementations.
type Generator interface {
	Clarify(ctx context.Context, ticket ai.TicketInput) (*ai.ClarifiedTicket, error)
	GenerateCode(ctx context.Context, input ai.CodeGenInput) (*ai.CodeGenResult, error)
}

// LicenseStore is the subset of license.Storage the handlers read and write.
type LicenseStore interface {
	GetByKeyCode(ctx context.Context, keyCode string) (*license.Key, error)
	GetBySessionID(ctx context.Context, sessionID string) (*license.Key, error)
	GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*license.Key, error)
	FindActiveByInstall(ctx context.Context, install string) (*license.Key, error)
	GetFreeKeyByEmail(ctx context.Context, email string) (*license.Key, error)
	InsertFreeKey(ctx context.Context, email string) (*license.Key, error)
	ReactivateFreeKey(ctx context.Context, keyCode string) (*license.Key, error)
	ConsumeUsage(ctx context.Context, keyCode string) (used, limit int, applied bool, err error)
}

// KeyValidator runs the key lifecycle checks.
type KeyValidator interface {
	Validate(ctx context.Context, keyCode, install string) (*license.ValidationResult, error)
}

// Notifier delivers license-key emails.
type Notifier interface {
	SendLicenseKey(ctx context.Context, email, keyCode, plan string, limit int)
}

// AnalyticsStore records tickets and feedback and serves their aggregates.
type AnalyticsStore interface {
	InsertTicket(ctx context.Context, t analytics.Ticket)
	InsertFeedback(ctx context.Context, f analytics.Feedback) error
	StatsForInstall(ctx context.Context, install string) (*analytics.InstallStats, error)
	FeedbackStats(ctx context.Context) ([]analytics.FeedbackCount, error)
}

// CheckoutService starts a subscription checkout with the payment provider.
type CheckoutService interface {
	CreateSubscriptionCheckout(ctx context.Context, planID string) (*payment.CheckoutIntent, error)
}

// Dependencies carries everything the handlers need. Any field may be nil;
// the affected endpoints then report service unavailable.
type Dependencies struct {
	Generator Generator
	Licenses  LicenseStore
	Validator KeyValidator
	Notifier  Notifier
	Analytics AnalyticsStore
	Checkout  CheckoutService
	Webhook   echo.HandlerFunc
}

// Server is the HTTP surface of the service.
type Server struct {
	echo *echo.Echo
	cfg  *config.Config
	deps Dependencies
}

// NewServer wires middleware and routes.
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	if cfg.EnableRateLimiting {
		e.Use(middleware.RateLimiter(
			middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimitPerSecond))))
	}

	s := &Server{
		echo: e,
		cfg:  cfg,
		deps: deps,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/", s.root)
	s.echo.GET("/health", s.health)

	s.echo.POST("/clarify", s.clarify)
	s.echo.POST("/gen-code", s.genCode)

	s.echo.POST("/validate-key", s.validateKey)
	s.echo.POST("/create-free-key", s.createFreeKey)
	s.echo.GET("/usage/:keyCode", s.keyUsage)
	s.echo.POST("/find-key-by-install", s.findKeyByInstall)
	s.echo.GET("/license-key/session/:sessionID", s.keyBySession)
	s.echo.GET("/license-key/payment-intent/:paymentIntentID", s.keyByPaymentIntent)

	s.echo.POST("/create-payment-intent", s.createPaymentIntent)
	if s.deps.Webhook != nil {
		s.echo.POST("/webhook/stripe", s.deps.Webhook)
	}

	s.echo.POST("/feedback", s.submitFeedback)
	s.echo.GET("/feedback/stats", s.feedbackStats)
	s.echo.GET("/analytics/:install", s.installAnalytics)
}

// Start runs the server until an interrupt, then shuts down gracefully.
func (s *Server) Start() error {
	go func() {
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	log.Info().Msg("interrupt received, shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

func (s *Server) root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"service": "GoBot API",
		"version": "1.0.0",
		"status":  "operational",
		"features": map[string]bool{
			"rateLimiting": s.cfg.EnableRateLimiting,
			"payments":     s.cfg.EnablePayments,
			"analytics":    s.cfg.EnableAnalytics,
		},
	})
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"services": map[string]bool{
			"claude":   s.deps.Generator != nil,
			"database": s.deps.Licenses != nil,
		},
	})
}
