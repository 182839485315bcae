package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"license-service/internal/handler"
	"license-service/internal/middleware"
	"license-service/internal/ratelimit"
	"license-service/internal/repository"
	"license-service/internal/repository/memory"
	"license-service/internal/service"
	"license-service/pkg/config"
	"license-service/pkg/database"
	"license-service/pkg/jwtutil"
	"license-service/pkg/logger"
	"license-service/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// stores is the set of repositories the services are built on
type stores struct {
	licenses    service.Registry
	activations service.Tracker
	usage       service.Meter
	users       service.Users
	pinger      service.Pinger
	close       func()
}

func openStores(cfg *config.Config, log *zap.Logger) (*stores, error) {
	if cfg.DB.Driver == config.DriverMemory {
		log.Warn("Using in-memory store, data is lost on restart")
		s := memory.NewStore()
		return &stores{
			licenses:    s.Licenses,
			activations: s.Activations,
			usage:       s.Usage,
			users:       s.Users,
			pinger:      s,
			close:       func() {},
		}, nil
	}

	db, err := database.InitDB(&cfg.DB, log)
	if err != nil {
		return nil, err
	}
	s := repository.NewStore(db)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	log.Info("Database migrations completed")
	return &stores{
		licenses:    s.Licenses,
		activations: s.Activations,
		usage:       s.Usage,
		users:       s.Users,
		pinger:      s,
		close: func() {
			if err := database.Close(db); err != nil {
				log.Error("Failed to close database", zap.Error(err))
			}
		},
	}, nil
}

func newLimiter(ctx context.Context, cfg config.RateLimitConfig, log *zap.Logger) ratelimit.Limiter {
	if cfg.RedisURL == "" {
		return ratelimit.NewLocalLimiter(cfg.RPS, cfg.Burst)
	}
	client, err := ratelimit.Connect(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn("Redis unavailable, falling back to in-process rate limiting", zap.Error(err))
		return ratelimit.NewLocalLimiter(cfg.RPS, cfg.Burst)
	}
	limit := ratelimit.WindowLimit(cfg.RPS, cfg.Burst, cfg.Window)
	log.Info("Shared rate limiting enabled", zap.Int64("limit", limit), zap.Duration("window", cfg.Window))
	return ratelimit.NewRedisLimiter(client, limit, cfg.Window)
}

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	if err := logger.InitLogger(&logger.LogConfig{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		ServiceName: cfg.ServiceName,
	}); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	defer log.Sync()
	log.Info("Starting license service...", cfg.LogConfig()...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize store", zap.Error(err))
	}
	defer st.close()

	jwtUtil := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
		SigningKey:      cfg.JWT.SigningKey,
		ExpirationHours: cfg.JWT.ExpirationHours,
	})

	licenses := service.NewLicenseService(st.licenses, st.activations, st.usage, st.users,
		service.WithGraceDays(cfg.License.GraceDays),
		service.WithLogger(log),
	)
	auth := service.NewAuthService(st.users, jwtUtil, log)
	if err := auth.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		log.Fatal("Failed to bootstrap admin user", zap.Error(err))
	}

	e := echo.New()
	e.HideBanner = true
	handler.Setup(e)
	if e.IPExtractor, err = handler.IPExtractor(cfg.Server.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxy configuration", zap.Error(err))
	}

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware())
	e.Use(prometheus.NewHTTPMetrics(cfg.Metrics.Prefix).Middleware())
	e.Use(logger.Middleware())

	handler.RegisterRoutes(e, handler.Deps{
		ServiceName: cfg.ServiceName,
		Licenses:    licenses,
		Auth:        auth,
		JWT:         jwtUtil,
		Limiter:     newLimiter(ctx, cfg.RateLimit, log),
		Store:       st.pinger,
	})

	go licenses.RunSweeper(ctx, cfg.License.SweepInterval)

	go func() {
		log.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}
}
