package repository

import (
	"context"
	"time"

	"license-service/internal/model"
	"license-service/prometheus"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UsageRepository struct {
	db *gorm.DB
}

// Track is a single INSERT ... ON CONFLICT DO UPDATE so concurrent reports
// for the same month add up without a read-modify-write.
func (r *UsageRepository) Track(ctx context.Context, licenseID uint, delta model.UsageDelta, at time.Time) (*model.UsageRecord, error) {
	defer prometheus.TrackDBOperation("usage_track")(time.Now())
	rec := model.UsageRecord{
		LicenseID:           licenseID,
		Month:               model.MonthStart(at),
		APICalls:            delta.APICalls,
		ImagesCompressed:    delta.ImagesCompressed,
		BandwidthSavedBytes: delta.BandwidthSavedBytes,
		UpdatedAt:           at,
	}
	err := r.db.WithContext(ctx).
		Clauses(
			clause.OnConflict{
				Columns: []clause.Column{{Name: "license_id"}, {Name: "month"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"api_calls":             gorm.Expr("usage_logs.api_calls + excluded.api_calls"),
					"images_compressed":     gorm.Expr("usage_logs.images_compressed + excluded.images_compressed"),
					"bandwidth_saved_bytes": gorm.Expr("usage_logs.bandwidth_saved_bytes + excluded.bandwidth_saved_bytes"),
					"updated_at":            gorm.Expr("excluded.updated_at"),
				}),
			},
			clause.Returning{},
		).
		Create(&rec).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &rec, nil
}

func (r *UsageRepository) GetCurrentMonth(ctx context.Context, licenseID uint, at time.Time) (*model.UsageRecord, error) {
	defer prometheus.TrackDBOperation("usage_current")(time.Now())
	month := model.MonthStart(at)
	var rec model.UsageRecord
	err := r.db.WithContext(ctx).
		Where("license_id = ? AND month = ?", licenseID, month.Format(time.DateOnly)).
		Take(&rec).Error
	if err != nil {
		if mapErr(err) == model.ErrNotFound {
			return &model.UsageRecord{LicenseID: licenseID, Month: month}, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *UsageRepository) GetHistory(ctx context.Context, licenseID uint, monthsBack int, at time.Time) ([]model.UsageRecord, error) {
	defer prometheus.TrackDBOperation("usage_history")(time.Now())
	if monthsBack <= 0 {
		return []model.UsageRecord{}, nil
	}
	current := model.MonthStart(at)
	from := current.AddDate(0, -(monthsBack - 1), 0)

	var records []model.UsageRecord
	err := r.db.WithContext(ctx).
		Where("license_id = ? AND month BETWEEN ? AND ?", licenseID, from.Format(time.DateOnly), current.Format(time.DateOnly)).
		Order("month DESC").
		Limit(monthsBack).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
