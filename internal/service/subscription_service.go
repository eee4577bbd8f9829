package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"sheetcalc/api/internal/config"
	"sheetcalc/api/internal/entitlement"
	"sheetcalc/api/internal/ids"
	"sheetcalc/api/internal/models"
	"sheetcalc/api/internal/repository"
)

type SubscriptionService struct {
	accounts      AccountStore
	subscriptions SubscriptionStore
	entitlements  entitlementLoader
	cfg           *config.AppConfig
	log           zerolog.Logger
	now           func() time.Time
}

func NewSubscriptionService(
	accounts AccountStore,
	subscriptions SubscriptionStore,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		accounts:      accounts,
		subscriptions: subscriptions,
		entitlements:  entitlementLoader{subscriptions: subscriptions},
		cfg:           cfg,
		log:           log,
		now:           time.Now,
	}
}

func (s *SubscriptionService) Plans() []models.Plan {
	return models.Plans()
}

// SubscribeInput carries an optional price and duration; zero values fall
// back to the catalog entry for PlanName.
type SubscribeInput struct {
	PlanName     string
	Price        *decimal.Decimal
	DurationDays int
}

// Subscribe makes the requested plan the account's only active
// subscription. Unexpired time left on the previous subscription is
// carried over onto the new end date.
func (s *SubscriptionService) Subscribe(ctx context.Context, accountID string, input SubscribeInput) (models.Subscription, error) {
	plan, err := models.LookupPlan(models.PlanName(input.PlanName))
	if err != nil {
		return models.Subscription{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if input.DurationDays < 0 {
		return models.Subscription{}, fmt.Errorf("%w: durationDays must be positive", ErrValidation)
	}
	days := input.DurationDays
	if days == 0 {
		days = plan.DurationDays
	}
	price := plan.Price
	if input.Price != nil {
		if input.Price.IsNegative() {
			return models.Subscription{}, fmt.Errorf("%w: price must not be negative", ErrValidation)
		}
		price = *input.Price
	}

	if _, err := loadActiveAccount(ctx, s.accounts, accountID); err != nil {
		return models.Subscription{}, err
	}

	now := s.now().UTC()
	sub, err := s.subscriptions.Activate(ctx, accountID, func(previous *models.Subscription) models.Subscription {
		base := now
		if previous != nil && previous.EndsAt.After(now) {
			base = previous.EndsAt
		}
		return models.Subscription{
			ID:           ids.New(),
			AccountID:    accountID,
			PlanName:     plan.Name,
			Price:        price,
			DurationDays: days,
			StartsAt:     now,
			EndsAt:       base.AddDate(0, 0, days),
			IsActive:     true,
			CreatedAt:    now,
		}
	})
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return models.Subscription{}, ErrInvalidToken
		}
		return models.Subscription{}, fmt.Errorf("activate subscription: %w", err)
	}

	s.log.Info().
		Str("account_id", accountID).
		Str("plan", string(sub.PlanName)).
		Time("ends_at", sub.EndsAt).
		Msg("subscription activated")
	return sub, nil
}

// PurchaseDeviceSlots adds extra device slots that last as long as the
// current subscription.
func (s *SubscriptionService) PurchaseDeviceSlots(ctx context.Context, accountID string, quantity int) (models.DevicePurchase, error) {
	if quantity < 1 || quantity > s.cfg.Entitlement.MaxSlotPurchase {
		return models.DevicePurchase{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrValidation, s.cfg.Entitlement.MaxSlotPurchase)
	}

	account, err := loadActiveAccount(ctx, s.accounts, accountID)
	if err != nil {
		return models.DevicePurchase{}, err
	}

	now := s.now().UTC()
	sub, err := s.entitlements.currentSubscription(ctx, account)
	if err != nil {
		return models.DevicePurchase{}, err
	}
	if !entitlement.SubscriptionActive(sub, now) {
		return models.DevicePurchase{}, ErrSubscriptionRequired
	}

	plan, err := models.LookupPlan(sub.PlanName)
	if err != nil {
		return models.DevicePurchase{}, fmt.Errorf("subscription plan: %w", err)
	}

	purchase := models.DevicePurchase{
		ID:                ids.New(),
		AccountID:         accountID,
		SubscriptionID:    sub.ID,
		AdditionalDevices: quantity,
		UnitPrice:         plan.PricePerExtraDevice,
		TotalPrice:        plan.PricePerExtraDevice.Mul(decimal.NewFromInt(int64(quantity))),
		EndDate:           sub.EndsAt,
		CreatedAt:         now,
	}
	if err := s.subscriptions.CreatePurchase(ctx, purchase); err != nil {
		return models.DevicePurchase{}, fmt.Errorf("create purchase: %w", err)
	}

	s.log.Info().
		Str("account_id", accountID).
		Int("additional_devices", quantity).
		Str("total_price", purchase.TotalPrice.StringFixed(2)).
		Msg("device slots purchased")
	return purchase, nil
}
