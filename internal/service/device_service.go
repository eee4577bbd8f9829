package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sheetcalc/api/internal/entitlement"
	"sheetcalc/api/internal/models"
	"sheetcalc/api/internal/repository"
)

type DeviceService struct {
	accounts     AccountStore
	devices      DeviceStore
	entitlements entitlementLoader
	log          zerolog.Logger
	now          func() time.Time
}

func NewDeviceService(accounts AccountStore, subscriptions SubscriptionStore, devices DeviceStore, log zerolog.Logger) *DeviceService {
	return &DeviceService{
		accounts:     accounts,
		devices:      devices,
		entitlements: entitlementLoader{subscriptions: subscriptions},
		log:          log,
		now:          time.Now,
	}
}

type DeviceOverview struct {
	Devices   []models.Device
	Quota     int
	Available int
}

func (s *DeviceService) List(ctx context.Context, accountID string) (DeviceOverview, error) {
	account, err := loadActiveAccount(ctx, s.accounts, accountID)
	if err != nil {
		return DeviceOverview{}, err
	}

	ent, err := s.entitlements.resolve(ctx, account, s.now().UTC())
	if err != nil {
		return DeviceOverview{}, err
	}

	devices, err := s.devices.ListByAccount(ctx, accountID)
	if err != nil {
		return DeviceOverview{}, fmt.Errorf("list devices: %w", err)
	}

	return DeviceOverview{
		Devices:   devices,
		Quota:     ent.DeviceQuota,
		Available: entitlement.AvailableSlots(ent.DeviceQuota, len(devices)),
	}, nil
}

// Remove unregisters one of the account's devices, freeing its slot and
// revoking the refresh sessions opened from it. The device behind the
// caller's own token cannot be removed this way.
func (s *DeviceService) Remove(ctx context.Context, accountID string, deviceID string, currentDeviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("%w: device id required", ErrValidation)
	}
	if deviceID == currentDeviceID {
		return fmt.Errorf("%w: cannot remove the device in use", ErrValidation)
	}
	if _, err := loadActiveAccount(ctx, s.accounts, accountID); err != nil {
		return err
	}

	if err := s.devices.Delete(ctx, accountID, deviceID); err != nil {
		if errors.Is(err, repository.ErrDeviceNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete device: %w", err)
	}

	s.log.Info().Str("account_id", accountID).Str("device_id", deviceID).Msg("device removed")
	return nil
}
