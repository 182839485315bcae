package model

import "time"

// UsageRecord holds one license's counters for one calendar month
type UsageRecord struct {
	ID                  uint      `json:"-" gorm:"primaryKey"`
	LicenseID           uint      `json:"license_id" gorm:"not null;uniqueIndex:idx_usage_license_month"`
	License             *License  `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Month               time.Time `json:"month" gorm:"type:date;not null;uniqueIndex:idx_usage_license_month"`
	APICalls            int64     `json:"api_calls" gorm:"not null;default:0"`
	ImagesCompressed    int64     `json:"images_compressed" gorm:"not null;default:0"`
	BandwidthSavedBytes int64     `json:"bandwidth_saved_bytes" gorm:"not null;default:0"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (UsageRecord) TableName() string {
	return "usage_logs"
}

// UsageDelta is an additive increment to a month's counters
type UsageDelta struct {
	APICalls            int64
	ImagesCompressed    int64
	BandwidthSavedBytes int64
}

// MonthStart returns the first instant of t's calendar month in UTC
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NextMonthStart returns the first instant of the month after t's, in UTC
func NextMonthStart(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, 0)
}
