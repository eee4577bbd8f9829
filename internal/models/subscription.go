package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Subscription struct {
	ID           string
	AccountID    string
	PlanName     PlanName
	Price        decimal.Decimal
	DurationDays int
	StartsAt     time.Time
	EndsAt       time.Time
	IsActive     bool
	CreatedAt    time.Time
}

// DevicePurchase is an add-on granting extra device slots until EndDate.
type DevicePurchase struct {
	ID                string
	AccountID         string
	SubscriptionID    string
	AdditionalDevices int
	UnitPrice         decimal.Decimal
	TotalPrice        decimal.Decimal
	EndDate           time.Time
	CreatedAt         time.Time
}
