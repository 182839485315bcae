package middleware

import (
	"net/http"

	"license-service/internal/ratelimit"
	"license-service/internal/service"
	"license-service/pkg/logger"
	"license-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var errRateLimited = &service.PolicyError{
	Code:       service.CodeRateLimited,
	Message:    "Too many requests",
	HTTPStatus: http.StatusTooManyRequests,
}

// RateLimit limits requests per client IP. Limiter failures are logged and
// the request is let through.
func RateLimit(limiter ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			allowed, err := limiter.Allow(c.Request().Context(), c.RealIP())
			if err != nil {
				logger.FromEcho(c).Error("Rate limiter unavailable", zap.Error(err))
				return next(c)
			}
			if !allowed {
				prometheus.RecordRateLimited()
				c.Response().Header().Set("Retry-After", "60")
				return errRateLimited
			}
			return next(c)
		}
	}
}
