package models

import "time"

type DeviceType string

const (
	DeviceTypeDesktop DeviceType = "desktop"
	DeviceTypeMobile  DeviceType = "mobile"
	DeviceTypeTablet  DeviceType = "tablet"
)

type Device struct {
	ID          string
	AccountID   string
	Fingerprint string
	Name        string
	Type        DeviceType
	LastUsedAt  time.Time
	CreatedAt   time.Time
}

// Session is a refresh-token record. The token itself is never stored.
type Session struct {
	ID               string
	AccountID        string
	DeviceID         *string
	RefreshTokenHash []byte
	ExpiresAt        time.Time
	CreatedAt        time.Time
}
