package main

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/varad2005/AI-IS13-HealthNova/internal/config"
	"github.com/varad2005/AI-IS13-HealthNova/internal/domain/appointment"
	"github.com/varad2005/AI-IS13-HealthNova/internal/domain/assistant"
	"github.com/varad2005/AI-IS13-HealthNova/internal/domain/identity"
	"github.com/varad2005/AI-IS13-HealthNova/internal/domain/labtest"
	"github.com/varad2005/AI-IS13-HealthNova/internal/domain/payment"
	"github.com/varad2005/AI-IS13-HealthNova/internal/domain/signaling"
	"github.com/varad2005/AI-IS13-HealthNova/internal/domain/visit"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/apperr"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/auth"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/blobstore"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/db"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/llm"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/middleware"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/razorpay"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/websocket"
)

// server holds the HTTP router and the services background jobs need.
type server struct {
	echo         *echo.Echo
	appointments *appointment.Service
	hub          *websocket.Hub
}

func newServer(cfg *config.Config, pool *pgxpool.Pool, revocations auth.RevocationStore, blobs blobstore.Store, logger zerolog.Logger) *server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.SessionCookieSecure))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}))
	e.Use(middleware.Metrics())

	sessions := auth.NewSessions(cfg.SessionSecret, cfg.SessionTTL, revocations)
	e.Use(auth.SessionMiddleware(sessions, logger))

	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	e.Use(middleware.RateLimit(rl))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", middleware.MetricsHandler())

	tx := db.NewTransactor(pool)
	gemini := llm.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel)
	var summarizer visit.Summarizer
	if gemini.Enabled() {
		summarizer = gemini
	} else {
		logger.Warn().Msg("GEMINI_API_KEY not set, AI summaries and guidance are disabled")
	}

	users := identity.NewService(identity.NewRepo(pool), tx, sessions)
	labs := labtest.NewService(labtest.NewRepo(pool), tx, blobs)
	visits := visit.NewService(visit.NewRepo(pool), tx, labs, users, summarizer, logger)

	hub := websocket.NewHub(logger)
	upgrader := websocket.NewUpgrader(cfg.CORSOrigins)
	appointments := appointment.NewService(appointment.NewRepo(pool), tx, users, hub, logger)

	gateway := razorpay.NewClient(cfg.RazorpayKeyID, cfg.RazorpayKeySecret,
		razorpay.WithWebhookSecret(cfg.RazorpayWebhookSecret))
	if !gateway.Enabled() {
		logger.Warn().Msg("Razorpay credentials not set, payment orders will fail")
	}
	payments := payment.NewService(payment.NewRepo(pool), tx, gateway, appointments, logger)

	relay := signaling.NewRelay(signaling.NewRegistry(), appointments, logger)
	appointments.SetRoomCloser(relay)

	root := e.Group("")
	identity.NewHandler(users, cfg.SessionCookieSecure).RegisterRoutes(root)
	visit.NewHandler(visits).RegisterRoutes(root)
	labtest.NewHandler(labs).RegisterRoutes(root)
	assistant.NewHandler(assistant.NewService(gemini, visits, logger)).RegisterRoutes(root)
	appointment.NewHandler(appointments).RegisterRoutes(root)
	payment.NewHandler(payments).RegisterRoutes(root)
	signaling.NewHandler(relay, upgrader, logger).RegisterRoutes(root)
	websocket.NewHandler(hub, upgrader, logger).RegisterRoutes(root)

	return &server{echo: e, appointments: appointments, hub: hub}
}
