package service

import (
	"context"
	"errors"
	"time"

	"license-service/internal/model"

	"go.uber.org/zap"
)

const defaultGraceDays = 7

// LicenseService runs the activation protocol and license administration
// on top of the registry, tracker and meter.
type LicenseService struct {
	licenses    Registry
	activations Tracker
	usage       Meter
	users       Users

	graceDays int
	now       func() time.Time
	log       *zap.Logger
}

// Option configures a LicenseService
type Option func(*LicenseService)

// WithGraceDays sets how long an expired license keeps working
func WithGraceDays(days int) Option {
	return func(s *LicenseService) { s.graceDays = days }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *LicenseService) { s.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *LicenseService) { s.log = log }
}

func NewLicenseService(licenses Registry, activations Tracker, usage Meter, users Users, opts ...Option) *LicenseService {
	s := &LicenseService{
		licenses:    licenses,
		activations: activations,
		usage:       usage,
		users:       users,
		graceDays:   defaultGraceDays,
		now:         time.Now,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Quota is the monthly allowance snapshot returned with protocol responses
type Quota struct {
	MonthlyLimit int    `json:"monthly_limit"`
	Used         int64  `json:"used"`
	ResetDate    string `json:"reset_date"`
}

// Exceeded reports whether usage is over a finite, non-zero limit
func (q Quota) Exceeded() bool {
	return q.MonthlyLimit > 0 && q.Used > int64(q.MonthlyLimit)
}

func (s *LicenseService) quota(ctx context.Context, l *model.License, now time.Time) (Quota, error) {
	rec, err := s.usage.GetCurrentMonth(ctx, l.ID, now)
	if err != nil {
		return Quota{}, err
	}
	return quotaFor(l, rec.APICalls, now), nil
}

func quotaFor(l *model.License, used int64, now time.Time) Quota {
	policy, _ := model.Policy(l.Tier)
	return Quota{
		MonthlyLimit: policy.MonthlyLimit,
		Used:         used,
		ResetDate:    model.NextMonthStart(now).Format(time.DateOnly),
	}
}

func features(tier string) []string {
	policy, ok := model.Policy(tier)
	if !ok {
		return []string{}
	}
	return policy.Features
}

// lookup normalizes and checks key format before touching the store
func (s *LicenseService) lookup(ctx context.Context, rawKey string) (*model.License, error) {
	key := model.NormalizeKey(rawKey)
	if !model.ValidKeyFormat(key) {
		return nil, errInvalidFormat
	}
	l, err := s.licenses.FindByKey(ctx, key)
	if errors.Is(err, model.ErrNotFound) {
		return nil, errLicenseNotFound
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// usable rejects licenses that cannot be activated or used right now
func (s *LicenseService) usable(l *model.License, now time.Time) error {
	switch l.Status {
	case model.StatusSuspended:
		return errSuspended
	case model.StatusCancelled:
		return errCancelled
	}
	if l.PastGrace(now, s.graceDays) {
		return errExpired
	}
	return nil
}
