package handler

import (
	"net/http"

	"license-service/internal/model"
	"license-service/internal/service"

	"github.com/labstack/echo/v4"
)

// LicenseHandler serves the plugin-facing activation protocol. The license
// key in the body is the only credential.
type LicenseHandler struct {
	svc *service.LicenseService
}

func NewLicenseHandler(svc *service.LicenseService) *LicenseHandler {
	return &LicenseHandler{svc: svc}
}

type activateRequest struct {
	LicenseKey      string `json:"license_key" validate:"required"`
	Domain          string `json:"domain" validate:"required,max=255"`
	SiteName        string `json:"site_name" validate:"max=255"`
	PlatformVersion string `json:"platform_version" validate:"max=50"`
	PluginVersion   string `json:"plugin_version" validate:"max=50"`
}

type activateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	*service.ActivationResult
}

// Activate handles POST /api/v1/license/activate
func (h *LicenseHandler) Activate(c echo.Context) error {
	var req activateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.svc.Activate(c.Request().Context(), service.ActivateInput{
		LicenseKey: req.LicenseKey,
		Domain:     req.Domain,
		Meta: model.SiteMeta{
			SiteName:        req.SiteName,
			PlatformVersion: req.PlatformVersion,
			PluginVersion:   req.PluginVersion,
		},
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, activateResponse{
		Success:          true,
		Message:          "License activated",
		ActivationResult: res,
	})
}

type domainRequest struct {
	LicenseKey string `json:"license_key" validate:"required"`
	Domain     string `json:"domain" validate:"required,max=255"`
}

type validateResponse struct {
	Success bool `json:"success"`
	*service.ValidationResult
}

// Validate handles POST /api/v1/license/validate. The HTTP status follows the
// reported license status.
func (h *LicenseHandler) Validate(c echo.Context) error {
	var req domainRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.svc.Validate(c.Request().Context(), req.LicenseKey, req.Domain)
	if err != nil {
		return err
	}

	status := http.StatusForbidden
	switch res.Status {
	case service.ValidationActive:
		status = http.StatusOK
	case service.ValidationInvalid:
		status = http.StatusNotFound
	}
	return c.JSON(status, validateResponse{Success: res.Valid(), ValidationResult: res})
}

// Deactivate handles POST /api/v1/license/deactivate
func (h *LicenseHandler) Deactivate(c echo.Context) error {
	var req domainRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.svc.Deactivate(c.Request().Context(), req.LicenseKey, req.Domain)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"message":     "License deactivated",
		"domain":      res.Domain,
		"activations": res.Activations,
	})
}

type usageRequest struct {
	LicenseKey string `json:"license_key" validate:"required"`
	Domain     string `json:"domain" validate:"required,max=255"`
	Count      int64  `json:"count" validate:"omitempty,min=1,max=100000"`
	BytesSaved int64  `json:"bytes_saved" validate:"min=0"`
}

// TrackUsage handles POST /api/v1/license/usage
func (h *LicenseHandler) TrackUsage(c echo.Context) error {
	var req usageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.svc.TrackUsage(c.Request().Context(), service.UsageInput{
		LicenseKey: req.LicenseKey,
		Domain:     req.Domain,
		Count:      req.Count,
		BytesSaved: req.BytesSaved,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"quota":   res.Quota,
	})
}
