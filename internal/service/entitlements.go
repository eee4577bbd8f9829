package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sheetcalc/api/internal/entitlement"
	"sheetcalc/api/internal/models"
	"sheetcalc/api/internal/repository"
)

// Entitlement is the resolved access state of an account at a point in time.
type Entitlement struct {
	Account      models.Account
	Subscription *models.Subscription
	HasAccess    bool
	DeviceQuota  int
}

// loadActiveAccount loads the account behind a verified access token. A
// missing or deactivated account is treated as an invalid token, since
// access tokens stay valid until they expire.
func loadActiveAccount(ctx context.Context, accounts AccountStore, accountID string) (models.Account, error) {
	account, err := accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return models.Account{}, ErrInvalidToken
		}
		return models.Account{}, fmt.Errorf("load account: %w", err)
	}
	if !account.IsActive {
		return models.Account{}, ErrInvalidToken
	}
	return account, nil
}

type entitlementLoader struct {
	subscriptions SubscriptionStore
}

// currentSubscription follows the account's subscription reference. A
// dangling reference is treated as no subscription.
func (l entitlementLoader) currentSubscription(ctx context.Context, account models.Account) (*models.Subscription, error) {
	if account.SubscriptionID == nil {
		return nil, nil
	}
	sub, err := l.subscriptions.GetByID(ctx, *account.SubscriptionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	return &sub, nil
}

func (l entitlementLoader) resolve(ctx context.Context, account models.Account, now time.Time) (Entitlement, error) {
	sub, err := l.currentSubscription(ctx, account)
	if err != nil {
		return Entitlement{}, err
	}
	purchases, err := l.subscriptions.ListActivePurchases(ctx, account.ID, now)
	if err != nil {
		return Entitlement{}, fmt.Errorf("load device purchases: %w", err)
	}
	return Entitlement{
		Account:      account,
		Subscription: sub,
		HasAccess:    entitlement.HasAccess(account, sub, now),
		DeviceQuota:  entitlement.EffectiveDeviceQuota(account, sub, purchases, now),
	}, nil
}
