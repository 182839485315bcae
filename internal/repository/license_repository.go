package repository

import (
	"context"
	"time"

	"license-service/internal/model"
	"license-service/prometheus"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LicenseRepository struct {
	db *gorm.DB
}

func (r *LicenseRepository) Create(ctx context.Context, l *model.License) error {
	defer prometheus.TrackDBOperation("license_create")(time.Now())
	return mapErr(r.db.WithContext(ctx).Create(l).Error)
}

func (r *LicenseRepository) FindByKey(ctx context.Context, key string) (*model.License, error) {
	defer prometheus.TrackDBOperation("license_find")(time.Now())
	var l model.License
	if err := r.db.WithContext(ctx).Where("key = ?", key).Take(&l).Error; err != nil {
		return nil, mapErr(err)
	}
	return &l, nil
}

func (r *LicenseRepository) UpdateStatus(ctx context.Context, key, status string) (*model.License, error) {
	defer prometheus.TrackDBOperation("license_update_status")(time.Now())
	var l model.License
	res := r.db.WithContext(ctx).
		Model(&l).
		Clauses(clause.Returning{}).
		Where("key = ?", key).
		Update("status", status)
	if res.Error != nil {
		return nil, mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, model.ErrNotFound
	}
	return &l, nil
}

func (r *LicenseRepository) SweepExpired(ctx context.Context, now time.Time) ([]model.License, error) {
	defer prometheus.TrackDBOperation("license_sweep")(time.Now())
	var swept []model.License
	err := r.db.WithContext(ctx).
		Model(&swept).
		Clauses(clause.Returning{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", model.StatusActive, now).
		Update("status", model.StatusExpired).Error
	if err != nil {
		return nil, err
	}
	return swept, nil
}

func (r *LicenseRepository) ListAll(ctx context.Context) ([]model.License, error) {
	defer prometheus.TrackDBOperation("license_list")(time.Now())
	var licenses []model.License
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&licenses).Error; err != nil {
		return nil, err
	}
	return licenses, nil
}

func (r *LicenseRepository) ListByOwner(ctx context.Context, userID uint) ([]model.License, error) {
	defer prometheus.TrackDBOperation("license_list")(time.Now())
	var licenses []model.License
	err := r.db.WithContext(ctx).
		Where("owner_user_id = ?", userID).
		Order("created_at DESC").
		Find(&licenses).Error
	if err != nil {
		return nil, err
	}
	return licenses, nil
}
