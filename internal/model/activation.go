package model

import (
	"net"
	"net/url"
	"strings"
	"time"
)

// Activation binds a license to one normalized domain
type Activation struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	LicenseID       uint      `json:"license_id" gorm:"not null;uniqueIndex:idx_activation_license_domain"`
	License         *License  `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Domain          string    `json:"domain" gorm:"size:255;not null;uniqueIndex:idx_activation_license_domain"`
	SiteName        string    `json:"site_name" gorm:"size:255"`
	PlatformVersion string    `json:"platform_version" gorm:"size:50"`
	PluginVersion   string    `json:"plugin_version" gorm:"size:50"`
	ActivatedAt     time.Time `json:"activated_at"`
	LastSeenAt      time.Time `json:"last_seen_at"`
}

// SiteMeta is the caller-supplied metadata stored with an activation
type SiteMeta struct {
	SiteName        string
	PlatformVersion string
	PluginVersion   string
}

// NormalizeDomain reduces a URL or host name to a bare lower-case host
// without port, path, trailing dots or leading "www.". Input without a
// usable host normalizes to "". The result is a fixed point.
func NormalizeDomain(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if ip := net.ParseIP(s); ip != nil {
		return ip.String()
	}

	if !strings.Contains(s, "://") {
		s = "//" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}
	if ip := net.ParseIP(u.Hostname()); ip != nil {
		return ip.String()
	}

	host := strings.ToLower(u.Hostname())
	for {
		trimmed := strings.TrimPrefix(strings.Trim(host, "."), "www.")
		if trimmed == host {
			break
		}
		host = trimmed
	}
	if !validHost(host) {
		return ""
	}
	return host
}

// validHost accepts DNS-style labels. Non-ASCII runes are let through for
// internationalized names.
func validHost(host string) bool {
	if host == "" {
		return false
	}
	for _, r := range host {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '-', r == '.', r == '_':
		case r >= 0x80:
		default:
			return false
		}
	}
	return true
}
