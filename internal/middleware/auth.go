package middleware

import (
	"net/http"
	"strings"

	"license-service/internal/service"
	"license-service/pkg/jwtutil"
	"license-service/pkg/logger"
	"license-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const userKey = "user"

func unauthorized(msg string) *service.PolicyError {
	return &service.PolicyError{Code: service.CodeUnauthorized, Message: msg, HTTPStatus: http.StatusUnauthorized}
}

// JWTAuthMiddleware validates the bearer token and stores its claims on the context
func JWTAuthMiddleware(jwtUtil *jwtutil.JWTUtil) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromEcho(c)

			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				prometheus.RecordAuthError("missing_token")
				return unauthorized("Missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				prometheus.RecordAuthError("malformed_header")
				return unauthorized("Invalid authorization header format")
			}

			claims, err := jwtUtil.ValidateToken(parts[1])
			if err != nil {
				log.Warn("Invalid or expired token", zap.Error(err))
				prometheus.RecordAuthError("invalid_token")
				return unauthorized("Invalid or expired token")
			}

			c.Set(userKey, claims)
			log.Debug("JWT token validated successfully",
				zap.Uint("user_id", claims.UserID),
				zap.String("email", claims.Email))

			return next(c)
		}
	}
}

// RequireAdmin rejects callers whose token does not carry the admin role.
// It must run after JWTAuthMiddleware.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := Claims(c)
			if !ok {
				return unauthorized("Missing authorization header")
			}
			if !claims.IsAdmin() {
				logger.FromEcho(c).Warn("Admin access denied", zap.Uint("user_id", claims.UserID))
				return service.ErrAdminRequired
			}
			return next(c)
		}
	}
}

// Claims returns the token claims set by JWTAuthMiddleware
func Claims(c echo.Context) (*jwtutil.UserClaims, bool) {
	claims, ok := c.Get(userKey).(*jwtutil.UserClaims)
	return claims, ok
}

// Principal converts the token claims into the service caller identity
func Principal(c echo.Context) (service.Principal, bool) {
	claims, ok := Claims(c)
	if !ok {
		return service.Principal{}, false
	}
	return service.Principal{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}, true
}
