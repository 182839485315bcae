package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"license-service/internal/model"
	"license-service/prometheus"

	"go.uber.org/zap"
)

const (
	defaultDurationMonths = 12
	maxDurationMonths     = 120
	keyAttempts           = 3

	DefaultHistoryMonths = 6
	MaxHistoryMonths     = 24
)

// Principal is the authenticated caller of an administrative operation
type Principal struct {
	UserID uint
	Email  string
	Role   string
}

func (p Principal) IsAdmin() bool {
	return p.Role == model.RoleAdmin
}

// CreateLicenseInput describes a license to issue
type CreateLicenseInput struct {
	OwnerEmail     string
	Tier           string
	DurationMonths int
}

// CreateLicense issues a license. Admins may issue for any email and the
// owner is linked to an existing account with that email; other users may
// only issue licenses for themselves.
func (s *LicenseService) CreateLicense(ctx context.Context, p Principal, in CreateLicenseInput) (*model.License, error) {
	email := strings.ToLower(strings.TrimSpace(in.OwnerEmail))
	if email == "" {
		return nil, inputError(CodeValidation, "owner_email is required")
	}
	if !model.ValidTier(in.Tier) {
		return nil, inputError(CodeValidation, fmt.Sprintf("unknown tier %q", in.Tier))
	}
	months := in.DurationMonths
	if months == 0 {
		months = defaultDurationMonths
	}
	if months < 1 || months > maxDurationMonths {
		return nil, inputError(CodeValidation, fmt.Sprintf("duration_months must be between 1 and %d", maxDurationMonths))
	}

	var ownerID *uint
	if p.IsAdmin() {
		u, err := s.users.FindByEmail(ctx, email)
		switch {
		case err == nil:
			ownerID = &u.ID
		case !errors.Is(err, model.ErrNotFound):
			return nil, err
		}
	} else {
		if !strings.EqualFold(email, p.Email) {
			return nil, denied(CodeForbidden, "You can only create licenses for your own email")
		}
		id := p.UserID
		ownerID = &id
	}

	return s.Create(ctx, email, in.Tier, months, ownerID)
}

// Create generates a key and stores a new active license. The activation
// ceiling is copied from the tier so later tier changes do not affect it.
func (s *LicenseService) Create(ctx context.Context, ownerEmail, tier string, durationMonths int, ownerUserID *uint) (*model.License, error) {
	policy, ok := model.Policy(tier)
	if !ok {
		return nil, inputError(CodeValidation, fmt.Sprintf("unknown tier %q", tier))
	}

	now := s.now()
	var expiresAt *time.Time
	if tier != model.TierFree {
		t := now.AddDate(0, durationMonths, 0)
		expiresAt = &t
	}

	for attempt := 1; attempt <= keyAttempts; attempt++ {
		key, err := model.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("generate license key: %w", err)
		}
		l := &model.License{
			Key:            key,
			OwnerEmail:     ownerEmail,
			OwnerUserID:    ownerUserID,
			Tier:           tier,
			Status:         model.StatusActive,
			ExpiresAt:      expiresAt,
			MaxActivations: policy.MaxActivations,
		}
		err = s.licenses.Create(ctx, l)
		if errors.Is(err, model.ErrDuplicateKey) {
			s.log.Warn("License key collision, retrying", zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, err
		}

		prometheus.RecordLicenseCreated(tier)
		s.log.Info("License created",
			zap.Uint("license_id", l.ID),
			zap.String("tier", tier),
			zap.String("owner_email", ownerEmail))
		return l, nil
	}
	return nil, fmt.Errorf("license key collided %d times; check key generation", keyAttempts)
}

// UpdateStatus overwrites a license status. Any transition between the
// four statuses is allowed.
func (s *LicenseService) UpdateStatus(ctx context.Context, licenseKey, status string) (*model.License, error) {
	if !model.ValidStatus(status) {
		return nil, inputError(CodeInvalidStatus, "status must be one of active, suspended, cancelled, expired")
	}
	key := model.NormalizeKey(licenseKey)
	if !model.ValidKeyFormat(key) {
		return nil, errInvalidFormat
	}

	l, err := s.licenses.UpdateStatus(ctx, key, status)
	if errors.Is(err, model.ErrNotFound) {
		return nil, errLicenseNotFound
	}
	if err != nil {
		return nil, err
	}

	prometheus.RecordStatusChange(status)
	s.log.Info("License status updated", zap.Uint("license_id", l.ID), zap.String("status", status))
	return l, nil
}

// List returns every license for admins and the caller's own otherwise
func (s *LicenseService) List(ctx context.Context, p Principal) ([]model.License, error) {
	if p.IsAdmin() {
		return s.licenses.ListAll(ctx)
	}
	return s.licenses.ListByOwner(ctx, p.UserID)
}

// LicenseDetail is a license with its activations and current usage
type LicenseDetail struct {
	License     *model.License     `json:"license"`
	Activations []model.Activation `json:"activations"`
	Usage       *model.UsageRecord `json:"usage"`
	Quota       Quota              `json:"quota"`
	Features    []string           `json:"features"`
}

// owned loads a license visible to p. Licenses owned by someone else are
// reported as not found.
func (s *LicenseService) owned(ctx context.Context, p Principal, licenseKey string) (*model.License, error) {
	l, err := s.lookup(ctx, licenseKey)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && (l.OwnerUserID == nil || *l.OwnerUserID != p.UserID) {
		return nil, errLicenseNotFound
	}
	return l, nil
}

func (s *LicenseService) Detail(ctx context.Context, p Principal, licenseKey string) (*LicenseDetail, error) {
	l, err := s.owned(ctx, p, licenseKey)
	if err != nil {
		return nil, err
	}
	now := s.now()
	activations, err := s.activations.ListByLicense(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	usage, err := s.usage.GetCurrentMonth(ctx, l.ID, now)
	if err != nil {
		return nil, err
	}
	return &LicenseDetail{
		License:     l,
		Activations: activations,
		Usage:       usage,
		Quota:       quotaFor(l, usage.APICalls, now),
		Features:    features(l.Tier),
	}, nil
}

// UsageHistory returns up to months monthly records, newest first
func (s *LicenseService) UsageHistory(ctx context.Context, p Principal, licenseKey string, months int) ([]model.UsageRecord, error) {
	if months <= 0 {
		months = DefaultHistoryMonths
	}
	if months > MaxHistoryMonths {
		months = MaxHistoryMonths
	}
	l, err := s.owned(ctx, p, licenseKey)
	if err != nil {
		return nil, err
	}
	return s.usage.GetHistory(ctx, l.ID, months, s.now())
}

// SweepExpired moves active licenses whose expiry date has passed to expired
func (s *LicenseService) SweepExpired(ctx context.Context) ([]model.License, error) {
	swept, err := s.licenses.SweepExpired(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("sweep expired licenses: %w", err)
	}
	prometheus.RecordExpired("sweep", len(swept))
	if len(swept) > 0 {
		s.log.Info("Expired licenses swept", zap.Int("count", len(swept)))
	}
	return swept, nil
}

// ErrAdminRequired is returned when a non-admin calls an admin-only operation
var ErrAdminRequired = &PolicyError{Code: CodeForbidden, Message: "Admin access required", HTTPStatus: http.StatusForbidden}
