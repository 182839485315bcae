package handler

import (
	"net/http"

	"license-service/internal/service"
	"license-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// HealthHandler reports liveness together with store connectivity
type HealthHandler struct {
	store       service.Pinger
	serviceName string
}

func NewHealthHandler(store service.Pinger, serviceName string) *HealthHandler {
	return &HealthHandler{store: store, serviceName: serviceName}
}

// HealthCheck handles the health check endpoint
func (h *HealthHandler) HealthCheck(c echo.Context) error {
	if err := h.store.Ping(c.Request().Context()); err != nil {
		logger.FromEcho(c).Error("Health check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"status":  "unhealthy",
			"service": h.serviceName,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "healthy",
		"service": h.serviceName,
	})
}
