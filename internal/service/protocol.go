package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"license-service/internal/model"
	"license-service/prometheus"

	"go.uber.org/zap"
)

// ActivateInput is an activation request from an installed plugin
type ActivateInput struct {
	LicenseKey string
	Domain     string
	Meta       model.SiteMeta
}

// ActivationResult describes the license as seen by an activated domain
type ActivationResult struct {
	Domain         string     `json:"domain"`
	Tier           string     `json:"tier"`
	Status         string     `json:"status"`
	ExpiresAt      *time.Time `json:"expires_at"`
	Activations    int64      `json:"activations"`
	MaxActivations int        `json:"max_activations"`
	Quota          Quota      `json:"quota"`
	Features       []string   `json:"features"`
}

// Activate binds a domain to a license. Re-activating a bound domain only
// refreshes its metadata and never counts against the ceiling.
func (s *LicenseService) Activate(ctx context.Context, in ActivateInput) (*ActivationResult, error) {
	res, err := s.activate(ctx, in)
	if pe, ok := AsPolicyError(err); ok {
		prometheus.RecordActivation(pe.Code)
	}
	return res, err
}

func (s *LicenseService) activate(ctx context.Context, in ActivateInput) (*ActivationResult, error) {
	key := model.NormalizeKey(in.LicenseKey)
	if !model.ValidKeyFormat(key) {
		return nil, errInvalidFormat
	}
	domain := model.NormalizeDomain(in.Domain)
	if domain == "" {
		return nil, errDomainRequired
	}

	l, err := s.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.usable(l, now); err != nil {
		return nil, err
	}

	_, created, err := s.activations.Upsert(ctx, l.ID, domain, in.Meta, now)
	if err != nil {
		var limitErr *model.ActivationLimitError
		if errors.As(err, &limitErr) {
			return nil, &PolicyError{
				Code:       CodeActivationLimitReached,
				Message:    "Maximum activations reached for this license",
				HTTPStatus: http.StatusForbidden,
				Details:    map[string]interface{}{"max_activations": limitErr.Max},
			}
		}
		if errors.Is(err, model.ErrNotFound) {
			return nil, errLicenseNotFound
		}
		return nil, err
	}

	count, err := s.activations.Count(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	q, err := s.quota(ctx, l, now)
	if err != nil {
		return nil, err
	}

	result := "reactivated"
	if created {
		result = "activated"
		s.log.Info("Domain activated",
			zap.Uint("license_id", l.ID),
			zap.String("domain", domain),
			zap.Int64("activations", count),
			zap.Int("max_activations", l.MaxActivations))
	}
	prometheus.RecordActivation(result)

	return &ActivationResult{
		Domain:         domain,
		Tier:           l.Tier,
		Status:         l.EffectiveStatus(now, s.graceDays),
		ExpiresAt:      l.ExpiresAt,
		Activations:    count,
		MaxActivations: l.MaxActivations,
		Quota:          q,
		Features:       features(l.Tier),
	}, nil
}

// Validation statuses
const (
	ValidationActive       = "active"
	ValidationInvalid      = "invalid"
	ValidationNotActivated = "not_activated"
	ValidationSuspended    = model.StatusSuspended
	ValidationCancelled    = model.StatusCancelled
	ValidationExpired      = model.StatusExpired
)

// ValidationResult is the answer to a periodic license check. Quota and
// features are only present for active licenses.
type ValidationResult struct {
	Status    string     `json:"status"`
	Message   string     `json:"message,omitempty"`
	Tier      string     `json:"tier,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Quota     *Quota     `json:"quota,omitempty"`
	Features  []string   `json:"features,omitempty"`
}

// Valid reports whether the license may be used by the caller
func (r *ValidationResult) Valid() bool {
	return r.Status == ValidationActive
}

// Validate reports the license status for an activated domain. It touches
// the activation and, when a license is past its grace window, persists the
// expired status. Only infrastructure failures and malformed input are
// returned as errors.
func (s *LicenseService) Validate(ctx context.Context, licenseKey, domain string) (*ValidationResult, error) {
	res, err := s.validate(ctx, licenseKey, domain)
	if err == nil {
		prometheus.RecordValidation(res.Status)
	}
	return res, err
}

func (s *LicenseService) validate(ctx context.Context, licenseKey, rawDomain string) (*ValidationResult, error) {
	domain := model.NormalizeDomain(rawDomain)
	if domain == "" {
		return nil, errDomainRequired
	}

	l, err := s.lookup(ctx, licenseKey)
	if pe, ok := AsPolicyError(err); ok && (pe == errInvalidFormat || pe == errLicenseNotFound) {
		return &ValidationResult{Status: ValidationInvalid, Message: "Invalid license key"}, nil
	}
	if err != nil {
		return nil, err
	}

	act, err := s.activations.Find(ctx, l.ID, domain)
	if errors.Is(err, model.ErrNotFound) {
		return &ValidationResult{Status: ValidationNotActivated, Message: errNotActivated.Message}, nil
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.activations.Touch(ctx, act.ID, now); err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	switch l.Status {
	case model.StatusSuspended:
		return &ValidationResult{Status: ValidationSuspended, Message: errSuspended.Message}, nil
	case model.StatusCancelled:
		return &ValidationResult{Status: ValidationCancelled, Message: errCancelled.Message}, nil
	}

	if l.PastGrace(now, s.graceDays) {
		if l.Status != model.StatusExpired {
			if _, err := s.licenses.UpdateStatus(ctx, l.Key, model.StatusExpired); err != nil {
				return nil, err
			}
			prometheus.RecordExpired("validate", 1)
			s.log.Info("License expired on validation",
				zap.Uint("license_id", l.ID),
				zap.Timep("expires_at", l.ExpiresAt))
		}
		return &ValidationResult{
			Status:    ValidationExpired,
			Message:   errExpired.Message,
			ExpiresAt: l.ExpiresAt,
		}, nil
	}

	q, err := s.quota(ctx, l, now)
	if err != nil {
		return nil, err
	}
	return &ValidationResult{
		Status:    ValidationActive,
		Tier:      l.Tier,
		ExpiresAt: l.ExpiresAt,
		Quota:     &q,
		Features:  features(l.Tier),
	}, nil
}

// DeactivationResult confirms a released activation slot
type DeactivationResult struct {
	Domain      string `json:"domain"`
	Activations int64  `json:"activations"`
}

// Deactivate releases the activation slot held by domain
func (s *LicenseService) Deactivate(ctx context.Context, licenseKey, rawDomain string) (*DeactivationResult, error) {
	res, err := s.deactivate(ctx, licenseKey, rawDomain)
	switch pe, ok := AsPolicyError(err); {
	case ok:
		prometheus.RecordDeactivation(pe.Code)
	case err == nil:
		prometheus.RecordDeactivation("deactivated")
	}
	return res, err
}

func (s *LicenseService) deactivate(ctx context.Context, licenseKey, rawDomain string) (*DeactivationResult, error) {
	domain := model.NormalizeDomain(rawDomain)
	if domain == "" {
		return nil, errDomainRequired
	}
	l, err := s.lookup(ctx, licenseKey)
	if err != nil {
		return nil, err
	}

	if _, err := s.activations.Deactivate(ctx, l.ID, domain); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, notFound(CodeActivationNotFound, "No activation found for this domain")
		}
		return nil, err
	}

	count, err := s.activations.Count(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	s.log.Info("Domain deactivated", zap.Uint("license_id", l.ID), zap.String("domain", domain))
	return &DeactivationResult{Domain: domain, Activations: count}, nil
}

// UsageInput is a usage report from an activated domain
type UsageInput struct {
	LicenseKey string
	Domain     string
	Count      int64
	BytesSaved int64
}

// UsageResult carries the quota after a report was recorded
type UsageResult struct {
	Quota Quota `json:"quota"`
}

// TrackUsage records metered calls for an activated domain. Reports that push
// the month over its limit are still recorded and fail with quota_exceeded,
// whose details carry the quota.
func (s *LicenseService) TrackUsage(ctx context.Context, in UsageInput) (*UsageResult, error) {
	if in.Count <= 0 {
		in.Count = 1
	}
	res, tier, err := s.trackUsage(ctx, in)
	switch pe, ok := AsPolicyError(err); {
	case ok && pe.Code == CodeQuotaExceeded:
		prometheus.RecordUsage(pe.Code, tier, in.Count)
	case ok:
		prometheus.RecordUsage(pe.Code, tier, 0)
	case err == nil:
		prometheus.RecordUsage("ok", tier, in.Count)
	}
	return res, err
}

func (s *LicenseService) trackUsage(ctx context.Context, in UsageInput) (*UsageResult, string, error) {
	if in.BytesSaved < 0 {
		return nil, "", inputError(CodeValidation, "bytes_saved must not be negative")
	}
	domain := model.NormalizeDomain(in.Domain)
	if domain == "" {
		return nil, "", errDomainRequired
	}

	l, err := s.lookup(ctx, in.LicenseKey)
	if err != nil {
		return nil, "", err
	}
	now := s.now()
	switch l.EffectiveStatus(now, s.graceDays) {
	case model.StatusActive:
	case model.StatusExpired:
		return nil, l.Tier, errExpired
	default:
		return nil, l.Tier, denied(CodeLicenseInactive, "License is not active")
	}

	if _, err := s.activations.Find(ctx, l.ID, domain); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, l.Tier, errNotActivated
		}
		return nil, l.Tier, err
	}

	rec, err := s.usage.Track(ctx, l.ID, model.UsageDelta{
		APICalls:            in.Count,
		ImagesCompressed:    in.Count,
		BandwidthSavedBytes: in.BytesSaved,
	}, now)
	if err != nil {
		return nil, l.Tier, err
	}

	q := quotaFor(l, rec.APICalls, now)
	res := &UsageResult{Quota: q}
	if q.Exceeded() {
		return res, l.Tier, &PolicyError{
			Code:       CodeQuotaExceeded,
			Message:    "Monthly quota exceeded",
			HTTPStatus: http.StatusTooManyRequests,
			Details:    map[string]interface{}{"quota": q},
		}
	}
	return res, l.Tier, nil
}
