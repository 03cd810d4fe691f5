package sandbox

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/healthassist/internal/platform/auth"
	"github.com/ehr/healthassist/internal/platform/db"
	"github.com/ehr/healthassist/internal/platform/middleware"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

type ServerConfig struct {
	Logger zerolog.Logger
	Repo   SessionRepository
	Engine *Engine
	// SigningKey enables HS256 validation. Without it every request is
	// accepted as auth.DevSubject.
	SigningKey []byte
	Issuer     string
	// Pool is optional and only exposes /health/db.
	Pool *pgxpool.Pool
	// BodyLimit defaults to middleware.DefaultBodyLimit.
	BodyLimit string
	// RateLimit defaults to middleware.DefaultRateLimitConfig.
	RateLimit middleware.RateLimitConfig
}

// NewServer assembles the sandbox echo instance.
func NewServer(cfg ServerConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(cfg.Logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(cfg.Logger))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": Version,
		})
	})
	if cfg.Pool != nil {
		e.GET("/health/db", db.HealthHandler(cfg.Pool))
	}

	apiV1 := e.Group("/api/v1")
	if len(cfg.SigningKey) > 0 {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{Issuer: cfg.Issuer, SigningKey: cfg.SigningKey}))
	} else {
		apiV1.Use(auth.DevAuthMiddleware())
	}
	rl := cfg.RateLimit
	if rl.RequestsPerSecond <= 0 || rl.BurstSize <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rl))

	svc := NewService(cfg.Repo, cfg.Engine, cfg.Logger)
	NewHandler(svc).RegisterRoutes(apiV1)
	NewSeedHandler(NewSeeder(cfg.Repo, cfg.Engine)).RegisterRoutes(apiV1)

	return e
}
