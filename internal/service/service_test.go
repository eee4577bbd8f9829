package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"sheetcalc/api/internal/config"
	"sheetcalc/api/internal/metrics"
	"sheetcalc/api/internal/models"
	"sheetcalc/api/internal/security"
	"sheetcalc/api/internal/testutil/memstore"
)

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db      *memstore.DB
	cfg     *config.AppConfig
	metrics *metrics.Metrics
	clock   time.Time

	auth    *AuthService
	subs    *SubscriptionService
	devices *DeviceService
	calc    *CalculatorService
}

func testConfig(maxDevices int) *config.AppConfig {
	return &config.AppConfig{
		Environment: "test",
		Storage:     config.StorageConfig{PresignTTL: 15 * time.Minute},
		Security: config.SecurityConfig{
			JWTAccessSecret: "test-access-secret",
			JWTAccessTTL:    time.Hour,
			JWTRefreshTTL:   7 * 24 * time.Hour,
			Issuer:          "sheetcalc-test",
		},
		Entitlement: config.EntitlementConfig{
			TrialPeriod:       24 * time.Hour,
			DefaultMaxDevices: maxDevices,
			MaxSlotPurchase:   10,
		},
	}
}

func newFixture(t *testing.T, maxDevices int) *fixture {
	t.Helper()

	f := &fixture{
		db:      memstore.New(),
		cfg:     testConfig(maxDevices),
		metrics: metrics.New("test"),
		clock:   start,
	}
	now := func() time.Time { return f.clock }
	log := zerolog.Nop()
	tokens := security.NewAccessTokens(f.cfg.Security.JWTAccessSecret, f.cfg.Security.Issuer, f.cfg.Security.JWTAccessTTL)

	f.auth = NewAuthService(f.db.Accounts(), f.db.Subscriptions(), f.db.Devices(), f.db.Sessions(), tokens, f.cfg, f.metrics, log)
	f.auth.now = now
	f.subs = NewSubscriptionService(f.db.Accounts(), f.db.Subscriptions(), f.cfg, log)
	f.subs.now = now
	f.devices = NewDeviceService(f.db.Accounts(), f.db.Subscriptions(), f.db.Devices(), log)
	f.devices.now = now
	f.calc = NewCalculatorService(f.db.Calculations(), f.db.Exports(), f.cfg, log)
	f.calc.now = now

	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *fixture) signup(t *testing.T, email string) models.Account {
	t.Helper()
	account, err := f.auth.Signup(context.Background(), SignupInput{
		Email:    email,
		Username: "tester",
		Password: "secret1",
	})
	require.NoError(t, err)
	return account
}

func (f *fixture) login(identifier, fingerprint string) (LoginResult, error) {
	return f.auth.Login(context.Background(), LoginInput{
		Identifier:  identifier,
		Password:    "secret1",
		Fingerprint: fingerprint,
		UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
	})
}
