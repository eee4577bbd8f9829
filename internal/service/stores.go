package service

import (
	"context"
	"time"

	"sheetcalc/api/internal/models"
	"sheetcalc/api/internal/repository"
)

// The store interfaces are satisfied by the pgx repositories and by the
// in-memory fakes in testutil/memstore.

type AccountStore interface {
	Create(ctx context.Context, account models.Account) error
	FindByIdentifier(ctx context.Context, identifier string) (models.Account, error)
	GetByID(ctx context.Context, id string) (models.Account, error)
	Update(ctx context.Context, id string, patch models.AccountPatch) (models.Account, error)
}

type SubscriptionStore interface {
	GetByID(ctx context.Context, id string) (models.Subscription, error)
	Activate(ctx context.Context, accountID string, build func(previous *models.Subscription) models.Subscription) (models.Subscription, error)
	CreatePurchase(ctx context.Context, purchase models.DevicePurchase) error
	ListActivePurchases(ctx context.Context, accountID string, now time.Time) ([]models.DevicePurchase, error)
}

type DeviceStore interface {
	ListByAccount(ctx context.Context, accountID string) ([]models.Device, error)
	Upsert(ctx context.Context, device models.Device, admit repository.AdmitFunc) (models.Device, error)
	Delete(ctx context.Context, accountID string, deviceID string) error
}

type SessionStore interface {
	Create(ctx context.Context, session models.Session) error
	FindByRefreshHash(ctx context.Context, refreshHash []byte) (models.Session, error)
	DeleteByRefreshHash(ctx context.Context, refreshHash []byte) error
	DeleteByAccount(ctx context.Context, accountID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type CalculationStore interface {
	Create(ctx context.Context, calc models.Calculation) error
	ListRecent(ctx context.Context, accountID string, limit int) ([]models.Calculation, error)
}

// ExportStore uploads generated files and hands out time-limited links.
type ExportStore interface {
	PutExport(ctx context.Context, key string, contentType string, data []byte) error
	PresignExport(ctx context.Context, key string, ttl time.Duration) (string, error)
}
