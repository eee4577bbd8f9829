package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"sheetcalc/api/internal/config"
	"sheetcalc/api/internal/entitlement"
	"sheetcalc/api/internal/ids"
	"sheetcalc/api/internal/metrics"
	"sheetcalc/api/internal/models"
	"sheetcalc/api/internal/repository"
	"sheetcalc/api/internal/security"
)

const (
	refreshTokenBytes = 64
	minPasswordLength = 6
)

type AuthService struct {
	accounts      AccountStore
	subscriptions SubscriptionStore
	devices       DeviceStore
	sessions      SessionStore
	tokens        *security.AccessTokens
	entitlements  entitlementLoader
	cfg           *config.AppConfig
	metrics       *metrics.Metrics
	log           zerolog.Logger
	now           func() time.Time
}

func NewAuthService(
	accounts AccountStore,
	subscriptions SubscriptionStore,
	devices DeviceStore,
	sessions SessionStore,
	tokens *security.AccessTokens,
	cfg *config.AppConfig,
	m *metrics.Metrics,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		accounts:      accounts,
		subscriptions: subscriptions,
		devices:       devices,
		sessions:      sessions,
		tokens:        tokens,
		entitlements:  entitlementLoader{subscriptions: subscriptions},
		cfg:           cfg,
		metrics:       m,
		log:           log,
		now:           time.Now,
	}
}

type SignupInput struct {
	Email    string
	Mobile   string
	Username string
	Password string
}

// Signup creates an account with a fresh trial window. It does not log the
// caller in; a device-aware login follows.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (models.Account, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	input.Mobile = strings.TrimSpace(input.Mobile)
	input.Username = strings.TrimSpace(input.Username)

	if input.Email == "" {
		return models.Account{}, fmt.Errorf("%w: email required", ErrValidation)
	}
	if strings.Contains(input.Mobile, "@") {
		return models.Account{}, fmt.Errorf("%w: mobile must be a phone number", ErrValidation)
	}
	if input.Username == "" {
		input.Username, _, _ = strings.Cut(input.Email, "@")
	}
	if len(input.Password) < minPasswordLength {
		return models.Account{}, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}

	identifiers := []string{input.Email}
	if input.Mobile != "" {
		identifiers = append(identifiers, input.Mobile)
	}
	for _, identifier := range identifiers {
		if _, err := s.accounts.FindByIdentifier(ctx, identifier); err == nil {
			s.metrics.AuthEvent("signup", "duplicate")
			return models.Account{}, ErrDuplicateIdentifier
		} else if !errors.Is(err, repository.ErrAccountNotFound) {
			return models.Account{}, fmt.Errorf("lookup identifier: %w", err)
		}
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return models.Account{}, err
	}

	now := s.now().UTC()
	account := models.Account{
		ID:           ids.New(),
		Email:        input.Email,
		Username:     input.Username,
		PasswordHash: passwordHash,
		TrialEndsAt:  now.Add(s.cfg.Entitlement.TrialPeriod),
		IsActive:     true,
		MaxDevices:   s.cfg.Entitlement.DefaultMaxDevices,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if input.Mobile != "" {
		account.Mobile = &input.Mobile
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateIdentifier) {
			s.metrics.AuthEvent("signup", "duplicate")
			return models.Account{}, ErrDuplicateIdentifier
		}
		return models.Account{}, fmt.Errorf("create account: %w", err)
	}

	s.metrics.AuthEvent("signup", "success")
	s.log.Info().Str("account_id", account.ID).Msg("account created")
	return account, nil
}

type LoginInput struct {
	Identifier  string
	Password    string
	Fingerprint string
	DeviceName  string
	UserAgent   string
}

type LoginResult struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
	Account         models.Account
	Device          models.Device
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	identifier := strings.TrimSpace(input.Identifier)
	if identifier == "" || input.Password == "" {
		return LoginResult{}, fmt.Errorf("%w: identifier and password required", ErrValidation)
	}
	if strings.TrimSpace(input.Fingerprint) == "" {
		return LoginResult{}, fmt.Errorf("%w: device fingerprint required", ErrValidation)
	}

	account, err := s.accounts.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			security.BurnVerify(input.Password)
			s.metrics.AuthEvent("login", "invalid_credentials")
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("lookup account: %w", err)
	}

	ok, err := security.VerifyPassword(input.Password, account.PasswordHash)
	if err != nil {
		s.log.Error().Err(err).Str("account_id", account.ID).Msg("stored password hash unreadable")
	}
	if err != nil || !ok || !account.IsActive {
		s.metrics.AuthEvent("login", "invalid_credentials")
		return LoginResult{}, ErrInvalidCredentials
	}

	now := s.now().UTC()
	ent, err := s.entitlements.resolve(ctx, account, now)
	if err != nil {
		return LoginResult{}, err
	}

	fingerprint := security.HashFingerprint(input.Fingerprint)
	name := strings.TrimSpace(input.DeviceName)
	if name == "" {
		name = security.DeviceNameFromUserAgent(input.UserAgent)
	}

	device, err := s.devices.Upsert(ctx, models.Device{
		ID:          ids.New(),
		AccountID:   account.ID,
		Fingerprint: fingerprint,
		Name:        name,
		Type:        security.DeviceTypeFromUserAgent(input.UserAgent),
		LastUsedAt:  now,
	}, func(registered []models.Device) error {
		return entitlement.CanRegisterDevice(registered, fingerprint, ent.DeviceQuota)
	})
	if err != nil {
		if errors.Is(err, entitlement.ErrDeviceLimitExceeded) {
			s.metrics.DeviceRegistration("denied")
			s.metrics.AuthEvent("login", "device_limit")
			s.log.Info().Str("account_id", account.ID).Int("quota", ent.DeviceQuota).Msg("device limit reached")
			return LoginResult{}, ErrDeviceLimitExceeded
		}
		return LoginResult{}, fmt.Errorf("register device: %w", err)
	}
	s.metrics.DeviceRegistration("admitted")

	result, err := s.openSession(ctx, account, device, now)
	if err != nil {
		return LoginResult{}, err
	}

	s.metrics.AuthEvent("login", "success")
	return result, nil
}

func (s *AuthService) openSession(ctx context.Context, account models.Account, device models.Device, now time.Time) (LoginResult, error) {
	refreshToken, refreshHash, err := security.GenerateRefreshToken(refreshTokenBytes)
	if err != nil {
		return LoginResult{}, err
	}

	accessToken, err := s.tokens.Issue(account.ID, device.ID, now)
	if err != nil {
		return LoginResult{}, err
	}

	deviceID := device.ID
	session := models.Session{
		ID:               ids.New(),
		AccountID:        account.ID,
		DeviceID:         &deviceID,
		RefreshTokenHash: refreshHash,
		ExpiresAt:        now.Add(s.cfg.Security.JWTRefreshTTL),
		CreatedAt:        now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return LoginResult{}, fmt.Errorf("create session: %w", err)
	}

	return LoginResult{
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		AccessExpiresAt: now.Add(s.tokens.TTL()),
		Account:         account,
		Device:          device,
	}, nil
}

type RefreshResult struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Refresh exchanges a live refresh token for a new access token bound to
// the same device. The refresh token itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	if refreshToken == "" {
		return RefreshResult{}, ErrInvalidToken
	}

	refreshHash := security.HashRefreshToken(refreshToken)
	session, err := s.sessions.FindByRefreshHash(ctx, refreshHash)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			s.metrics.AuthEvent("refresh", "invalid")
			return RefreshResult{}, ErrInvalidToken
		}
		return RefreshResult{}, fmt.Errorf("lookup session: %w", err)
	}

	now := s.now().UTC()
	if !now.Before(session.ExpiresAt) {
		if err := s.sessions.DeleteByRefreshHash(ctx, refreshHash); err != nil {
			s.log.Warn().Err(err).Str("account_id", session.AccountID).Msg("delete expired session failed")
		}
		s.metrics.AuthEvent("refresh", "expired")
		return RefreshResult{}, ErrInvalidToken
	}

	account, err := s.accounts.GetByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return RefreshResult{}, ErrInvalidToken
		}
		return RefreshResult{}, fmt.Errorf("load account: %w", err)
	}
	if !account.IsActive {
		s.metrics.AuthEvent("refresh", "invalid")
		return RefreshResult{}, ErrInvalidToken
	}

	var deviceID string
	if session.DeviceID != nil {
		deviceID = *session.DeviceID
	}
	accessToken, err := s.tokens.Issue(account.ID, deviceID, now)
	if err != nil {
		return RefreshResult{}, err
	}

	s.metrics.AuthEvent("refresh", "success")
	return RefreshResult{AccessToken: accessToken, ExpiresAt: now.Add(s.tokens.TTL())}, nil
}

// Logout drops the session behind refreshToken. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.sessions.DeleteByRefreshHash(ctx, security.HashRefreshToken(refreshToken)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.metrics.AuthEvent("logout", "success")
	return nil
}

// Authenticate verifies a bearer access token. It does not touch the store.
func (s *AuthService) Authenticate(accessToken string) (*security.AccessClaims, error) {
	claims, err := s.tokens.Parse(accessToken, s.now())
	if err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// AccessCheck resolves whether the account may use the calculator right now.
func (s *AuthService) AccessCheck(ctx context.Context, accountID string) (Entitlement, error) {
	account, err := loadActiveAccount(ctx, s.accounts, accountID)
	if err != nil {
		return Entitlement{}, err
	}

	ent, err := s.entitlements.resolve(ctx, account, s.now().UTC())
	if err != nil {
		return Entitlement{}, err
	}
	if !ent.HasAccess {
		return ent, ErrSubscriptionRequired
	}
	return ent, nil
}

type Profile struct {
	Entitlement
	DeviceCount int
}

// Me returns the account with its subscription and device usage.
func (s *AuthService) Me(ctx context.Context, accountID string) (Profile, error) {
	account, err := loadActiveAccount(ctx, s.accounts, accountID)
	if err != nil {
		return Profile{}, err
	}

	ent, err := s.entitlements.resolve(ctx, account, s.now().UTC())
	if err != nil {
		return Profile{}, err
	}

	devices, err := s.devices.ListByAccount(ctx, accountID)
	if err != nil {
		return Profile{}, fmt.Errorf("list devices: %w", err)
	}

	return Profile{Entitlement: ent, DeviceCount: len(devices)}, nil
}

// Deactivate disables the account and revokes every refresh session it holds.
func (s *AuthService) Deactivate(ctx context.Context, accountID string) error {
	inactive := false
	if _, err := s.accounts.Update(ctx, accountID, models.AccountPatch{IsActive: &inactive}); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("deactivate account: %w", err)
	}

	revoked, err := s.sessions.DeleteByAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}

	s.metrics.AuthEvent("deactivate", "success")
	s.log.Info().Str("account_id", accountID).Int64("sessions_revoked", revoked).Msg("account deactivated")
	return nil
}
