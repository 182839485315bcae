package handler

import (
	"fmt"
	"net"

	"license-service/internal/middleware"
	"license-service/internal/ratelimit"
	"license-service/internal/service"
	"license-service/pkg/jwtutil"
	"license-service/prometheus"

	"github.com/labstack/echo/v4"
)

// Deps are the collaborators the HTTP surface is built from
type Deps struct {
	ServiceName string
	Licenses    *service.LicenseService
	Auth        *service.AuthService
	JWT         *jwtutil.JWTUtil
	Limiter     ratelimit.Limiter
	Store       service.Pinger
}

// Setup installs the request validator, the error handler and the client IP
// extractor on e. The client IP is the peer address until a trusted proxy
// extractor replaces it.
func Setup(e *echo.Echo) {
	e.Validator = NewRequestValidator()
	e.HTTPErrorHandler = ErrorHandler()
	e.IPExtractor = echo.ExtractIPDirect()
}

// IPExtractor reads the client IP from X-Forwarded-For, believing only hops
// inside trustedProxies. With no proxies the peer address is used.
func IPExtractor(trustedProxies []string) (echo.IPExtractor, error) {
	if len(trustedProxies) == 0 {
		return echo.ExtractIPDirect(), nil
	}

	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy range %q: %w", cidr, err)
		}
		opts = append(opts, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}

// RegisterRoutes mounts every endpoint on e
func RegisterRoutes(e *echo.Echo, d Deps) {
	health := NewHealthHandler(d.Store, d.ServiceName)
	e.GET("/health", health.HealthCheck)
	e.GET("/metrics", echo.WrapHandler(prometheus.GetPrometheusHandler()))

	auth := NewAuthHandler(d.Auth)
	authGroup := e.Group("/auth")
	authGroup.POST("/register", auth.Register)
	authGroup.POST("/login", auth.Login)

	protocol := NewLicenseHandler(d.Licenses)
	v1 := e.Group("/api/v1/license")
	if d.Limiter != nil {
		v1.Use(middleware.RateLimit(d.Limiter))
	}
	v1.POST("/activate", protocol.Activate)
	v1.POST("/validate", protocol.Validate)
	v1.POST("/deactivate", protocol.Deactivate)
	v1.POST("/usage", protocol.TrackUsage)

	admin := NewAdminHandler(d.Licenses)
	licenses := e.Group("/api/licenses")
	licenses.Use(middleware.JWTAuthMiddleware(d.JWT))
	licenses.POST("", admin.CreateLicense)
	licenses.GET("", admin.ListLicenses)
	licenses.POST("/sweep", admin.Sweep, middleware.RequireAdmin())
	licenses.GET("/:key", admin.GetLicense)
	licenses.GET("/:key/usage", admin.GetUsageHistory)
	licenses.PATCH("/:key/status", admin.UpdateStatus, middleware.RequireAdmin())
}
