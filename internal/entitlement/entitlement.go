// Package entitlement decides calculator access and device quota from
// account, subscription and device state. It performs no I/O.
package entitlement

import (
	"errors"
	"time"

	"sheetcalc/api/internal/models"
)

var ErrDeviceLimitExceeded = errors.New("device limit exceeded")

// SubscriptionActive reports whether sub grants access at now.
func SubscriptionActive(sub *models.Subscription, now time.Time) bool {
	return sub != nil && sub.IsActive && now.Before(sub.EndsAt)
}

// TrialActive reports whether the account is still inside its trial window.
func TrialActive(account models.Account, now time.Time) bool {
	return now.Before(account.TrialEndsAt)
}

// HasAccess grants access when either the subscription or the trial window
// covers now. An expired subscription falls back to the trial check.
func HasAccess(account models.Account, sub *models.Subscription, now time.Time) bool {
	if SubscriptionActive(sub, now) {
		return true
	}
	return TrialActive(account, now)
}

// EffectiveDeviceQuota is the ceiling on concurrently registered devices:
// the plan allowance while a subscription is active, otherwise the
// account's own MaxDevices, plus every add-on purchase still in force.
func EffectiveDeviceQuota(account models.Account, sub *models.Subscription, purchases []models.DevicePurchase, now time.Time) int {
	quota := account.MaxDevices
	if SubscriptionActive(sub, now) {
		if plan, err := models.LookupPlan(sub.PlanName); err == nil {
			quota = plan.IncludedDevices
		}
	}

	for _, p := range purchases {
		if p.AccountID != account.ID {
			continue
		}
		if now.Before(p.EndDate) {
			quota += p.AdditionalDevices
		}
	}
	return quota
}

// CanRegisterDevice admits a fingerprint that is already registered
// (a heartbeat) or a new one while the registered count is below quota.
func CanRegisterDevice(registered []models.Device, fingerprint string, quota int) error {
	for _, d := range registered {
		if d.Fingerprint == fingerprint {
			return nil
		}
	}
	if len(registered) < quota {
		return nil
	}
	return ErrDeviceLimitExceeded
}

// AvailableSlots never goes negative, even when a quota shrinks below the
// number of devices already registered.
func AvailableSlots(quota, registered int) int {
	if registered >= quota {
		return 0
	}
	return quota - registered
}
