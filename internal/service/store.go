package service

import (
	"context"
	"time"

	"license-service/internal/model"
)

// Registry persists license records.
type Registry interface {
	// Create inserts l; returns model.ErrDuplicateKey when the key is taken.
	Create(ctx context.Context, l *model.License) error
	FindByKey(ctx context.Context, key string) (*model.License, error)
	UpdateStatus(ctx context.Context, key, status string) (*model.License, error)
	// SweepExpired moves every active license whose expiry is before now to
	// expired and returns the updated rows.
	SweepExpired(ctx context.Context, now time.Time) ([]model.License, error)
	ListAll(ctx context.Context) ([]model.License, error)
	ListByOwner(ctx context.Context, userID uint) ([]model.License, error)
}

// Tracker persists activations.
type Tracker interface {
	Find(ctx context.Context, licenseID uint, domain string) (*model.Activation, error)
	Count(ctx context.Context, licenseID uint) (int64, error)
	// Upsert updates the (license, domain) activation or inserts it when the
	// license is below its ceiling, atomically. It reports whether a new row
	// was created and fails with *model.ActivationLimitError at the ceiling.
	Upsert(ctx context.Context, licenseID uint, domain string, meta model.SiteMeta, at time.Time) (*model.Activation, bool, error)
	Touch(ctx context.Context, activationID uint, at time.Time) error
	// Deactivate deletes the activation and returns it, or model.ErrNotFound.
	Deactivate(ctx context.Context, licenseID uint, domain string) (*model.Activation, error)
	ListByLicense(ctx context.Context, licenseID uint) ([]model.Activation, error)
}

// Meter persists monthly usage counters.
type Meter interface {
	// Track adds delta to the month containing at and returns the new totals.
	Track(ctx context.Context, licenseID uint, delta model.UsageDelta, at time.Time) (*model.UsageRecord, error)
	// GetCurrentMonth never creates a row; a month without usage is a zero record.
	GetCurrentMonth(ctx context.Context, licenseID uint, at time.Time) (*model.UsageRecord, error)
	// GetHistory returns at most monthsBack records ending at the month of at, newest first.
	GetHistory(ctx context.Context, licenseID uint, monthsBack int, at time.Time) ([]model.UsageRecord, error)
}

// Users persists accounts.
type Users interface {
	Create(ctx context.Context, u *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id uint) (*model.User, error)
}

// Pinger is implemented by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
