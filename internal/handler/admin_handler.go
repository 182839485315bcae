package handler

import (
	"net/http"
	"strconv"

	"license-service/internal/middleware"
	"license-service/internal/model"
	"license-service/internal/service"
	"license-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AdminHandler serves license administration for authenticated users
type AdminHandler struct {
	svc *service.LicenseService
}

func NewAdminHandler(svc *service.LicenseService) *AdminHandler {
	return &AdminHandler{svc: svc}
}

func principal(c echo.Context) (service.Principal, error) {
	p, ok := middleware.Principal(c)
	if !ok {
		return service.Principal{}, &service.PolicyError{
			Code:       service.CodeUnauthorized,
			Message:    "authentication required",
			HTTPStatus: http.StatusUnauthorized,
		}
	}
	return p, nil
}

type createLicenseRequest struct {
	OwnerEmail     string `json:"owner_email" validate:"required,email,max=255"`
	Tier           string `json:"tier" validate:"required,oneof=free starter pro agency"`
	DurationMonths int    `json:"duration_months" validate:"omitempty,min=1,max=120"`
}

// CreateLicense handles POST /api/licenses
func (h *AdminHandler) CreateLicense(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req createLicenseRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	l, err := h.svc.CreateLicense(c.Request().Context(), p, service.CreateLicenseInput{
		OwnerEmail:     req.OwnerEmail,
		Tier:           req.Tier,
		DurationMonths: req.DurationMonths,
	})
	if err != nil {
		return err
	}

	logger.FromEcho(c).Info("License issued",
		zap.Uint("issuer_id", p.UserID),
		zap.String("tier", l.Tier))
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "license": l})
}

// ListLicenses handles GET /api/licenses
func (h *AdminHandler) ListLicenses(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	licenses, err := h.svc.List(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":  true,
		"licenses": licenses,
		"count":    len(licenses),
	})
}

type detailResponse struct {
	Success bool `json:"success"`
	*service.LicenseDetail
}

// GetLicense handles GET /api/licenses/:key
func (h *AdminHandler) GetLicense(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	detail, err := h.svc.Detail(c.Request().Context(), p, c.Param("key"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detailResponse{Success: true, LicenseDetail: detail})
}

// GetUsageHistory handles GET /api/licenses/:key/usage?months=N
func (h *AdminHandler) GetUsageHistory(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	months := service.DefaultHistoryMonths
	if raw := c.QueryParam("months"); raw != "" {
		months, err = strconv.Atoi(raw)
		if err != nil || months < 1 {
			return &service.PolicyError{
				Code:       service.CodeValidation,
				Message:    "months must be a positive integer",
				HTTPStatus: http.StatusBadRequest,
			}
		}
	}

	history, err := h.svc.UsageHistory(c.Request().Context(), p, c.Param("key"), months)
	if err != nil {
		return err
	}
	if months > service.MaxHistoryMonths {
		months = service.MaxHistoryMonths
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"months":  months,
		"usage":   history,
	})
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateStatus handles PATCH /api/licenses/:key/status (admin only)
func (h *AdminHandler) UpdateStatus(c echo.Context) error {
	var req updateStatusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	l, err := h.svc.UpdateStatus(c.Request().Context(), c.Param("key"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "License status updated",
		"license": l,
	})
}

// Sweep handles POST /api/licenses/sweep (admin only)
func (h *AdminHandler) Sweep(c echo.Context) error {
	swept, err := h.svc.SweepExpired(c.Request().Context())
	if err != nil {
		return err
	}
	if swept == nil {
		swept = []model.License{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":  true,
		"expired":  len(swept),
		"licenses": swept,
	})
}
