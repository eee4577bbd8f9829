package models

import "time"

type Account struct {
	ID             string
	Email          string
	Mobile         *string
	Username       string
	PasswordHash   []byte
	TrialEndsAt    time.Time
	SubscriptionID *string
	IsActive       bool
	MaxDevices     int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AccountPatch lists the mutable account fields. Nil fields are left unchanged.
// TrialEndsAt is fixed at signup and has no patch field.
type AccountPatch struct {
	SubscriptionID *string
	IsActive       *bool
	MaxDevices     *int
}
