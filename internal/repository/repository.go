package repository

import (
	"context"
	"errors"

	"license-service/internal/model"
	"license-service/pkg/database"

	"gorm.io/gorm"
)

// Store bundles the gorm-backed repositories over one connection pool
type Store struct {
	db *gorm.DB

	Licenses    *LicenseRepository
	Activations *ActivationRepository
	Usage       *UsageRepository
	Users       *UserRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:          db,
		Licenses:    &LicenseRepository{db: db},
		Activations: &ActivationRepository{db: db},
		Usage:       &UsageRepository{db: db},
		Users:       &UserRepository{db: db},
	}
}

// Migrate creates or updates the tables the service owns
func (s *Store) Migrate() error {
	return database.MigrateModels(s.db,
		&model.User{},
		&model.License{},
		&model.Activation{},
		&model.UsageRecord{},
	)
}

func (s *Store) Ping(ctx context.Context) error {
	return database.Ping(ctx, s.db)
}

// mapErr converts gorm sentinels into model sentinels. The connection must be
// opened with TranslateError for duplicate keys to be recognized.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return model.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return model.ErrDuplicateKey
	}
	return err
}
