// Package memstore provides in-memory stores with the same contracts as
// the pgx repositories: sentinel errors, the account lock around device
// admission and subscription activation, and the device to session cascade.
package memstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"sheetcalc/api/internal/models"
	"sheetcalc/api/internal/repository"
)

type DB struct {
	mu            sync.Mutex
	failure       error
	accounts      map[string]models.Account
	subscriptions map[string]models.Subscription
	purchases     []models.DevicePurchase
	devices       map[string]models.Device
	sessions      map[string]models.Session
	calculations  []models.Calculation
	exports       map[string][]byte
}

func New() *DB {
	return &DB{
		accounts:      make(map[string]models.Account),
		subscriptions: make(map[string]models.Subscription),
		devices:       make(map[string]models.Device),
		sessions:      make(map[string]models.Session),
		exports:       make(map[string][]byte),
	}
}

// FailNext makes the next store call return err.
func (db *DB) FailNext(err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.failure = err
}

// takeFailure must be called with mu held.
func (db *DB) takeFailure() error {
	err := db.failure
	db.failure = nil
	return err
}

func (db *DB) Accounts() *Accounts { return &Accounts{db: db} }
func (db *DB) Subscriptions() *Subscriptions { return &Subscriptions{db: db} }
func (db *DB) Devices() *Devices { return &Devices{db: db} }
func (db *DB) Sessions() *Sessions { return &Sessions{db: db} }
func (db *DB) Calculations() *Calculations { return &Calculations{db: db} }
func (db *DB) Exports() *Exports { return &Exports{db: db} }

func (db *DB) SessionCount(accountID string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, s := range db.sessions {
		if s.AccountID == accountID {
			n++
		}
	}
	return n
}

type Accounts struct{ db *DB }

func (a *Accounts) Create(_ context.Context, account models.Account) error {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	if err := a.db.takeFailure(); err != nil {
		return err
	}

	account.Email = strings.ToLower(account.Email)
	for _, existing := range a.db.accounts {
		if existing.ID == account.ID || existing.Email == account.Email {
			return repository.ErrDuplicateIdentifier
		}
		if account.Mobile != nil && existing.Mobile != nil && *existing.Mobile == *account.Mobile {
			return repository.ErrDuplicateIdentifier
		}
	}
	account.UpdatedAt = account.CreatedAt
	a.db.accounts[account.ID] = account
	return nil
}

func (a *Accounts) FindByIdentifier(_ context.Context, identifier string) (models.Account, error) {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	if err := a.db.takeFailure(); err != nil {
		return models.Account{}, err
	}

	for _, account := range a.db.accounts {
		if strings.EqualFold(account.Email, identifier) {
			return account, nil
		}
		if account.Mobile != nil && *account.Mobile == identifier {
			return account, nil
		}
	}
	return models.Account{}, repository.ErrAccountNotFound
}

func (a *Accounts) GetByID(_ context.Context, id string) (models.Account, error) {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	if err := a.db.takeFailure(); err != nil {
		return models.Account{}, err
	}

	account, ok := a.db.accounts[id]
	if !ok {
		return models.Account{}, repository.ErrAccountNotFound
	}
	return account, nil
}

func (a *Accounts) Update(_ context.Context, id string, patch models.AccountPatch) (models.Account, error) {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	if err := a.db.takeFailure(); err != nil {
		return models.Account{}, err
	}

	account, ok := a.db.accounts[id]
	if !ok {
		return models.Account{}, repository.ErrAccountNotFound
	}
	if patch.SubscriptionID != nil {
		account.SubscriptionID = patch.SubscriptionID
	}
	if patch.IsActive != nil {
		account.IsActive = *patch.IsActive
	}
	if patch.MaxDevices != nil {
		account.MaxDevices = *patch.MaxDevices
	}
	account.UpdatedAt = time.Now().UTC()
	a.db.accounts[id] = account
	return account, nil
}

type Subscriptions struct{ db *DB }

func (s *Subscriptions) GetByID(_ context.Context, id string) (models.Subscription, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.takeFailure(); err != nil {
		return models.Subscription{}, err
	}

	sub, ok := s.db.subscriptions[id]
	if !ok {
		return models.Subscription{}, repository.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *Subscriptions) Activate(
	_ context.Context,
	accountID string,
	build func(previous *models.Subscription) models.Subscription,
) (models.Subscription, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.takeFailure(); err != nil {
		return models.Subscription{}, err
	}

	account, ok := s.db.accounts[accountID]
	if !ok {
		return models.Subscription{}, repository.ErrAccountNotFound
	}

	var previous *models.Subscription
	for _, sub := range s.db.subscriptions {
		if sub.AccountID == accountID && sub.IsActive {
			current := sub
			previous = &current
			break
		}
	}

	created := build(previous)
	if !created.EndsAt.After(created.StartsAt) {
		return models.Subscription{}, fmt.Errorf("subscription ends_at must follow starts_at")
	}
	if previous != nil {
		previous.IsActive = false
		s.db.subscriptions[previous.ID] = *previous
	}

	created.AccountID = accountID
	created.IsActive = true
	s.db.subscriptions[created.ID] = created

	id := created.ID
	account.SubscriptionID = &id
	s.db.accounts[accountID] = account
	return created, nil
}

func (s *Subscriptions) CreatePurchase(_ context.Context, purchase models.DevicePurchase) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.takeFailure(); err != nil {
		return err
	}
	s.db.purchases = append(s.db.purchases, purchase)
	return nil
}

func (s *Subscriptions) ListActivePurchases(_ context.Context, accountID string, now time.Time) ([]models.DevicePurchase, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.takeFailure(); err != nil {
		return nil, err
	}

	var out []models.DevicePurchase
	for _, p := range s.db.purchases {
		if p.AccountID == accountID && now.Before(p.EndDate) {
			out = append(out, p)
		}
	}
	return out, nil
}

type Devices struct{ db *DB }

func (d *Devices) ListByAccount(_ context.Context, accountID string) ([]models.Device, error) {
	d.db.mu.Lock()
	defer d.db.mu.Unlock()
	if err := d.db.takeFailure(); err != nil {
		return nil, err
	}
	return d.db.listDevices(accountID), nil
}

// Upsert holds the store lock across admit, the same guarantee the
// repository gets from locking the account row.
func (d *Devices) Upsert(_ context.Context, device models.Device, admit repository.AdmitFunc) (models.Device, error) {
	d.db.mu.Lock()
	defer d.db.mu.Unlock()
	if err := d.db.takeFailure(); err != nil {
		return models.Device{}, err
	}

	if _, ok := d.db.accounts[device.AccountID]; !ok {
		return models.Device{}, repository.ErrAccountNotFound
	}

	registered := d.db.listDevices(device.AccountID)
	if err := admit(registered); err != nil {
		return models.Device{}, err
	}

	for _, existing := range registered {
		if existing.Fingerprint == device.Fingerprint {
			existing.LastUsedAt = device.LastUsedAt
			if device.Name != "" {
				existing.Name = device.Name
			}
			d.db.devices[existing.ID] = existing
			return existing, nil
		}
	}

	device.CreatedAt = device.LastUsedAt
	d.db.devices[device.ID] = device
	return device, nil
}

func (d *Devices) Delete(_ context.Context, accountID string, deviceID string) error {
	d.db.mu.Lock()
	defer d.db.mu.Unlock()
	if err := d.db.takeFailure(); err != nil {
		return err
	}

	device, ok := d.db.devices[deviceID]
	if !ok || device.AccountID != accountID {
		return repository.ErrDeviceNotFound
	}
	delete(d.db.devices, deviceID)

	for key, session := range d.db.sessions {
		if session.DeviceID != nil && *session.DeviceID == deviceID {
			delete(d.db.sessions, key)
		}
	}
	return nil
}

func (db *DB) listDevices(accountID string) []models.Device {
	var out []models.Device
	for _, device := range db.devices {
		if device.AccountID == accountID {
			out = append(out, device)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUsedAt.After(out[j].LastUsedAt)
	})
	return out
}

type Sessions struct{ db *DB }

func (s *Sessions) Create(_ context.Context, session models.Session) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.takeFailure(); err != nil {
		return err
	}

	key := hex.EncodeToString(session.RefreshTokenHash)
	if _, exists := s.db.sessions[key]; exists {
		return errors.New("duplicate refresh token hash")
	}
	s.db.sessions[key] = session
	return nil
}

func (s *Sessions) FindByRefreshHash(_ context.Context, refreshHash []byte) (models.Session, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.takeFailure(); err != nil {
		return models.Session{}, err
	}

	session, ok := s.db.sessions[hex.EncodeToString(refreshHash)]
	if !ok {
		return models.Session{}, repository.ErrSessionNotFound
	}
	return session, nil
}

func (s *Sessions) DeleteByRefreshHash(_ context.Context, refreshHash []byte) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.takeFailure(); err != nil {
		return err
	}
	delete(s.db.sessions, hex.EncodeToString(refreshHash))
	return nil
}

func (s *Sessions) DeleteByAccount(_ context.Context, accountID string) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.takeFailure(); err != nil {
		return 0, err
	}

	var n int64
	for key, session := range s.db.sessions {
		if session.AccountID == accountID {
			delete(s.db.sessions, key)
			n++
		}
	}
	return n, nil
}

func (s *Sessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.takeFailure(); err != nil {
		return 0, err
	}

	var n int64
	for key, session := range s.db.sessions {
		if !session.ExpiresAt.After(now) {
			delete(s.db.sessions, key)
			n++
		}
	}
	return n, nil
}

type Calculations struct{ db *DB }

func (c *Calculations) Create(_ context.Context, calc models.Calculation) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if err := c.db.takeFailure(); err != nil {
		return err
	}
	c.db.calculations = append(c.db.calculations, calc)
	return nil
}

func (c *Calculations) ListRecent(_ context.Context, accountID string, limit int) ([]models.Calculation, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if err := c.db.takeFailure(); err != nil {
		return nil, err
	}

	var out []models.Calculation
	for _, calc := range c.db.calculations {
		if calc.AccountID == accountID {
			out = append(out, calc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Exports stands in for the object store.
type Exports struct{ db *DB }

func (e *Exports) PutExport(_ context.Context, key string, _ string, data []byte) error {
	e.db.mu.Lock()
	defer e.db.mu.Unlock()
	if err := e.db.takeFailure(); err != nil {
		return err
	}
	e.db.exports[key] = append([]byte(nil), data...)
	return nil
}

func (e *Exports) PresignExport(_ context.Context, key string, ttl time.Duration) (string, error) {
	e.db.mu.Lock()
	defer e.db.mu.Unlock()
	if err := e.db.takeFailure(); err != nil {
		return "", err
	}
	if _, ok := e.db.exports[key]; !ok {
		return "", fmt.Errorf("no export %s", key)
	}
	return fmt.Sprintf("https://exports.test/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

func (e *Exports) Get(key string) ([]byte, bool) {
	e.db.mu.Lock()
	defer e.db.mu.Unlock()
	data, ok := e.db.exports[key]
	return data, ok
}
