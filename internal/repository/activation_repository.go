package repository

import (
	"context"
	"errors"
	"time"

	"license-service/internal/model"
	"license-service/prometheus"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ActivationRepository struct {
	db *gorm.DB
}

func (r *ActivationRepository) Find(ctx context.Context, licenseID uint, domain string) (*model.Activation, error) {
	defer prometheus.TrackDBOperation("activation_find")(time.Now())
	var a model.Activation
	err := r.db.WithContext(ctx).
		Where("license_id = ? AND domain = ?", licenseID, domain).
		Take(&a).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &a, nil
}

func (r *ActivationRepository) Count(ctx context.Context, licenseID uint) (int64, error) {
	defer prometheus.TrackDBOperation("activation_count")(time.Now())
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.Activation{}).
		Where("license_id = ?", licenseID).
		Count(&n).Error
	return n, err
}

// Upsert holds a row lock on the license for the whole check-and-insert so
// concurrent activations of different domains are serialized per license.
func (r *ActivationRepository) Upsert(ctx context.Context, licenseID uint, domain string, meta model.SiteMeta, at time.Time) (*model.Activation, bool, error) {
	defer prometheus.TrackDBOperation("activation_upsert")(time.Now())

	var (
		result  model.Activation
		created bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lic model.License
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "max_activations").
			Where("id = ?", licenseID).
			Take(&lic).Error
		if err != nil {
			return mapErr(err)
		}

		err = tx.Where("license_id = ? AND domain = ?", licenseID, domain).Take(&result).Error
		switch {
		case err == nil:
			result.SiteName = meta.SiteName
			result.PlatformVersion = meta.PlatformVersion
			result.PluginVersion = meta.PluginVersion
			result.LastSeenAt = at
			return tx.Model(&result).Updates(map[string]interface{}{
				"site_name":        meta.SiteName,
				"platform_version": meta.PlatformVersion,
				"plugin_version":   meta.PluginVersion,
				"last_seen_at":     at,
			}).Error
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		var n int64
		if err := tx.Model(&model.Activation{}).Where("license_id = ?", licenseID).Count(&n).Error; err != nil {
			return err
		}
		if n >= int64(lic.MaxActivations) {
			return &model.ActivationLimitError{Max: lic.MaxActivations}
		}

		result = model.Activation{
			LicenseID:       licenseID,
			Domain:          domain,
			SiteName:        meta.SiteName,
			PlatformVersion: meta.PlatformVersion,
			PluginVersion:   meta.PluginVersion,
			ActivatedAt:     at,
			LastSeenAt:      at,
		}
		if err := tx.Create(&result).Error; err != nil {
			return mapErr(err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &result, created, nil
}

func (r *ActivationRepository) Touch(ctx context.Context, activationID uint, at time.Time) error {
	defer prometheus.TrackDBOperation("activation_touch")(time.Now())
	res := r.db.WithContext(ctx).
		Model(&model.Activation{}).
		Where("id = ?", activationID).
		Update("last_seen_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (r *ActivationRepository) Deactivate(ctx context.Context, licenseID uint, domain string) (*model.Activation, error) {
	defer prometheus.TrackDBOperation("activation_delete")(time.Now())
	var removed []model.Activation
	res := r.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where("license_id = ? AND domain = ?", licenseID, domain).
		Delete(&removed)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 || len(removed) == 0 {
		return nil, model.ErrNotFound
	}
	return &removed[0], nil
}

func (r *ActivationRepository) ListByLicense(ctx context.Context, licenseID uint) ([]model.Activation, error) {
	defer prometheus.TrackDBOperation("activation_list")(time.Now())
	var activations []model.Activation
	err := r.db.WithContext(ctx).
		Where("license_id = ?", licenseID).
		Order("activated_at ASC").
		Find(&activations).Error
	if err != nil {
		return nil, err
	}
	return activations, nil
}
