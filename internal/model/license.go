package model

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
	"time"
)

// License statuses
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

// ValidStatus reports whether s is one of the stored license statuses
func ValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusSuspended, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// License is an issued license key and the policy snapshot taken at issuance
type License struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	Key            string     `json:"license_key" gorm:"size:19;not null;uniqueIndex"`
	OwnerEmail     string     `json:"owner_email" gorm:"size:255;not null"`
	OwnerUserID    *uint      `json:"owner_user_id,omitempty" gorm:"index"`
	Tier           string     `json:"tier" gorm:"size:20;not null"`
	Status         string     `json:"status" gorm:"size:20;not null;default:active;index"`
	ExpiresAt      *time.Time `json:"expires_at"`
	MaxActivations int        `json:"max_activations" gorm:"not null"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsExpired reports whether the expiry date has passed at now
func (l *License) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// WithinGrace reports whether the license is past its expiry date but still
// inside the grace window.
func (l *License) WithinGrace(now time.Time, graceDays int) bool {
	if !l.IsExpired(now) {
		return false
	}
	return now.Before(l.ExpiresAt.AddDate(0, 0, graceDays))
}

// PastGrace reports whether the license can no longer be used because of
// expiry. A license stored as expired is only usable inside the grace window
// of an expiry date that has actually passed.
func (l *License) PastGrace(now time.Time, graceDays int) bool {
	if l.Status == StatusExpired {
		return !l.WithinGrace(now, graceDays)
	}
	return l.IsExpired(now) && !l.WithinGrace(now, graceDays)
}

// EffectiveStatus is the status callers should see at now. A license swept
// to expired still reports active inside its grace window, and an active
// license past grace reports expired before anything persists it.
func (l *License) EffectiveStatus(now time.Time, graceDays int) string {
	switch l.Status {
	case StatusActive, StatusExpired:
		if l.PastGrace(now, graceDays) {
			return StatusExpired
		}
		return StatusActive
	}
	return l.Status
}

const (
	keyAlphabet  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	keyGroups    = 4
	keyGroupSize = 4
)

var keyPattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// GenerateKey returns a random key of the form XXXX-XXXX-XXXX-XXXX drawn from
// an alphabet without 0/O and 1/I.
func GenerateKey() (string, error) {
	max := big.NewInt(int64(len(keyAlphabet)))
	var b strings.Builder
	b.Grow(keyGroups*keyGroupSize + keyGroups - 1)
	for g := 0; g < keyGroups; g++ {
		if g > 0 {
			b.WriteByte('-')
		}
		for i := 0; i < keyGroupSize; i++ {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", err
			}
			b.WriteByte(keyAlphabet[n.Int64()])
		}
	}
	return b.String(), nil
}

// NormalizeKey trims and upper-cases a caller-supplied key
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// ValidKeyFormat reports whether key (already normalized) matches the key pattern
func ValidKeyFormat(key string) bool {
	return keyPattern.MatchString(key)
}
