package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetcalc/api/internal/config"
	"sheetcalc/api/internal/metrics"
	"sheetcalc/api/internal/middleware"
	"sheetcalc/api/internal/ratelimit"
	"sheetcalc/api/internal/security"
	"sheetcalc/api/internal/service"
	"sheetcalc/api/internal/testutil/memstore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	db     *memstore.DB
}

func newTestServer(t *testing.T, cfgFn func(*config.AppConfig), limiter middleware.Limiter, probes map[string]Pinger) *testServer {
	t.Helper()

	cfg := &config.AppConfig{
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
			DefaultMaxDevices: 1,
			MaxSlotPurchase:   10,
		},
		RateLimit: config.RateLimitConfig{AuthPerMinute: 100, Prefix: "rl:auth"},
	}
	if cfgFn != nil {
		cfgFn(cfg)
	}

	db := memstore.New()
	log := zerolog.Nop()
	tokens := security.NewAccessTokens(cfg.Security.JWTAccessSecret, cfg.Security.Issuer, cfg.Security.JWTAccessTTL)
	services := Services{
		Auth:          service.NewAuthService(db.Accounts(), db.Subscriptions(), db.Devices(), db.Sessions(), tokens, cfg, metrics.New("test"), log),
		Subscriptions: service.NewSubscriptionService(db.Accounts(), db.Subscriptions(), cfg, log),
		Devices:       service.NewDeviceService(db.Accounts(), db.Subscriptions(), db.Devices(), log),
		Calculator:    service.NewCalculatorService(db.Calculations(), db.Exports(), cfg, log),
	}

	router := gin.New()
	NewHandlerSetWith(log, cfg, services, limiter, probes).Register(router.Group("/api"))
	return &testServer{router: router, db: db}
}

func (s *testServer) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s *testServer) signup(t *testing.T, email string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/signup", gin.H{"email": email, "password": "secret1"}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *testServer) login(t *testing.T, email, fingerprint string) (string, string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/login", gin.H{
		"identifier":        email,
		"password":          "secret1",
		"deviceFingerprint": fingerprint,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	return body["accessToken"].(string), body["refreshToken"].(string)
}

func TestSignupAndDuplicate(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)

	rec := s.do(t, http.MethodPost, "/api/auth/signup", gin.H{"email": "a@x.com", "password": "secret1"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Signup successful", body["message"])
	assert.NotEmpty(t, body["trialEndsAt"])

	rec = s.do(t, http.MethodPost, "/api/auth/signup", gin.H{"email": "A@x.com", "password": "secret1"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User already exists", decode(t, rec)["message"])
}

func TestSignupWithIdentifier(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)

	rec := s.do(t, http.MethodPost, "/api/auth/signup", gin.H{"identifier": "a@x.com", "password": "secret1"}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Signup successful", decode(t, rec)["message"])

	access, _ := s.login(t, "a@x.com", "fp1")
	rec = s.do(t, http.MethodGet, "/api/auth/me", nil, access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@x.com", decode(t, rec)["email"])

	rec = s.do(t, http.MethodPost, "/api/auth/signup", gin.H{"identifier": "9990001111", "email": "b@x.com", "password": "secret1"}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	s.login(t, "9990001111", "fp1")

	rec = s.do(t, http.MethodPost, "/api/auth/signup", gin.H{"identifier": "A@X.com", "password": "secret1"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User already exists", decode(t, rec)["message"])
}

func TestSignupRejectsMalformedContacts(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)

	cases := map[string]struct {
		body  gin.H
		field string
		msg   string
	}{
		"no identifier":       {gin.H{"password": "secret1"}, "identifier", "Field is required"},
		"bad identifier":      {gin.H{"identifier": "not an id", "password": "secret1"}, "identifier", "Must be an email address or mobile number"},
		"email as mobile":     {gin.H{"email": "b@x.com", "mobile": "a@x.com", "password": "secret1"}, "mobile", "Invalid mobile number"},
		"letters in mobile":   {gin.H{"email": "b@x.com", "mobile": "99900abc11", "password": "secret1"}, "mobile", "Invalid mobile number"},
		"identifier bad mail": {gin.H{"identifier": "a@", "password": "secret1"}, "identifier", "Must be an email address or mobile number"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/auth/signup", tc.body, "")
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			fields := map[string]string{}
			for _, raw := range decode(t, rec)["errors"].([]any) {
				fe := raw.(map[string]any)
				fields[fe["field"].(string)] = fe["message"].(string)
			}
			assert.Equal(t, tc.msg, fields[tc.field])
		})
	}
}

func TestSignupValidationErrors(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)

	rec := s.do(t, http.MethodPost, "/api/auth/signup", gin.H{"email": "not-an-email", "password": "123"}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Invalid request", body["message"])

	fields := map[string]string{}
	for _, raw := range body["errors"].([]any) {
		fe := raw.(map[string]any)
		fields[fe["field"].(string)] = fe["message"].(string)
	}
	assert.Equal(t, "Invalid email format", fields["email"])
	assert.Equal(t, "Value is too small", fields["password"])

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decode(t, rec)["message"])
}

func TestLoginResponses(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	s.signup(t, "a@x.com")

	access, refresh := s.login(t, "a@x.com", "fp1")
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)

	rec := s.do(t, http.MethodPost, "/api/auth/login", gin.H{"identifier": "a@x.com", "password": "wrong-one", "deviceFingerprint": "fp1"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", decode(t, rec)["message"])

	rec = s.do(t, http.MethodPost, "/api/auth/login", gin.H{"identifier": "nobody@x.com", "password": "secret1", "deviceFingerprint": "fp1"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", decode(t, rec)["message"])

	rec = s.do(t, http.MethodPost, "/api/auth/login", gin.H{"identifier": "a@x.com", "password": "secret1", "deviceFingerprint": "fp2"}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Device limit reached", decode(t, rec)["message"])
}

func TestRefreshAndLogout(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	s.signup(t, "a@x.com")
	_, refresh := s.login(t, "a@x.com", "fp1")

	rec := s.do(t, http.MethodPost, "/api/auth/refresh", gin.H{"refreshToken": refresh}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["accessToken"])

	for i := 0; i < 2; i++ {
		rec = s.do(t, http.MethodPost, "/api/auth/logout", gin.H{"refreshToken": refresh}, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Logged out successfully", decode(t, rec)["message"])
	}

	rec = s.do(t, http.MethodPost, "/api/auth/refresh", gin.H{"refreshToken": refresh}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid refresh token", decode(t, rec)["message"])
}

func TestMe(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	s.signup(t, "a@x.com")
	access, _ := s.login(t, "a@x.com", "fp1")

	rec := s.do(t, http.MethodGet, "/api/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/auth/me", nil, access)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "a@x.com", body["email"])
	assert.Equal(t, "a", body["username"])
	assert.Nil(t, body["subscription"])
	assert.Equal(t, true, body["hasAccess"])
	assert.Equal(t, float64(1), body["deviceCount"])
	assert.NotContains(t, body, "passwordHash")
}

func TestSubscribeAndDeviceSlots(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	s.signup(t, "a@x.com")
	access, _ := s.login(t, "a@x.com", "fp1")

	rec := s.do(t, http.MethodPost, "/api/subscription/device-slots", gin.H{"quantity": 2}, access)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Subscription required", decode(t, rec)["message"])

	rec = s.do(t, http.MethodPost, "/api/subscription/subscribe", gin.H{"planName": "none"}, access)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/subscription/subscribe", gin.H{"planName": "half_yearly"}, access)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "Subscription activated", body["message"])
	assert.NotEmpty(t, body["endsAt"])
	assert.Equal(t, "2399.00", body["subscription"].(map[string]any)["price"])

	rec = s.do(t, http.MethodPost, "/api/subscription/device-slots", gin.H{"quantity": 3}, access)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decode(t, rec)
	assert.Equal(t, float64(3), body["additionalDevices"])
	assert.Equal(t, "447.00", body["totalPrice"])

	rec = s.do(t, http.MethodPost, "/api/subscription/device-slots", gin.H{"quantity": 11}, access)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/devices", nil, access)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, float64(6), body["quota"])
	assert.Equal(t, float64(5), body["available"])
}

func TestPlansArePublic(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)

	rec := s.do(t, http.MethodGet, "/api/subscription/plans", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	plans := decode(t, rec)["plans"].([]any)
	require.Len(t, plans, 4)
	first := plans[0].(map[string]any)
	assert.Equal(t, "monthly", first["name"])
	assert.Equal(t, "499.00", first["price"])
}

func TestDeviceManagement(t *testing.T) {
	s := newTestServer(t, func(cfg *config.AppConfig) { cfg.Entitlement.DefaultMaxDevices = 2 }, nil, nil)
	s.signup(t, "a@x.com")
	access, _ := s.login(t, "a@x.com", "fp1")
	s.login(t, "a@x.com", "fp2")

	rec := s.do(t, http.MethodGet, "/api/devices", nil, access)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	devices := body["devices"].([]any)
	require.Len(t, devices, 2)
	assert.Equal(t, float64(0), body["available"])

	var currentID, otherID string
	for _, raw := range devices {
		d := raw.(map[string]any)
		assert.Equal(t, "mobile", d["type"])
		if d["current"] == true {
			currentID = d["id"].(string)
		} else {
			otherID = d["id"].(string)
		}
	}
	require.NotEmpty(t, currentID)
	require.NotEmpty(t, otherID)

	rec = s.do(t, http.MethodDelete, "/api/devices/"+currentID, nil, access)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/devices/"+otherID, nil, access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Device removed", decode(t, rec)["message"])

	rec = s.do(t, http.MethodDelete, "/api/devices/"+otherID, nil, access)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Device not found", decode(t, rec)["message"])

	s.login(t, "a@x.com", "fp3")
}

func TestCalculatorRoutes(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	s.signup(t, "a@x.com")
	access, _ := s.login(t, "a@x.com", "fp1")

	rec := s.do(t, http.MethodPost, "/api/calculator/calculate", gin.H{"length": 1, "width": 1, "height": 1, "thickness": 0.1}, access)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, 6.0, body["surfaceArea"])
	assert.Equal(t, 7.2, body["sheetArea"])
	assert.Equal(t, 0.72, body["materialRequired"])
	assert.Equal(t, 20.0, body["wastage"])

	rec = s.do(t, http.MethodPost, "/api/calculator/calculate", gin.H{"length": -1, "width": 1, "height": 1, "thickness": 0.1}, access)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/calculator/history", nil, access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["calculations"], 1)

	rec = s.do(t, http.MethodPost, "/api/calculator/export", nil, access)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Contains(t, body["url"], "https://exports.test/")
	assert.Equal(t, float64(1), body["rows"])
}

func TestCalculatorRequiresAccess(t *testing.T) {
	s := newTestServer(t, func(cfg *config.AppConfig) { cfg.Entitlement.TrialPeriod = 0 }, nil, nil)
	s.signup(t, "a@x.com")
	access, _ := s.login(t, "a@x.com", "fp1")

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/api/calculator/calculate"},
		{http.MethodGet, "/api/calculator/history"},
		{http.MethodPost, "/api/calculator/export"},
	} {
		rec := s.do(t, route.method, route.path, gin.H{"length": 1, "width": 1, "height": 1, "thickness": 0.1}, access)
		assert.Equal(t, http.StatusForbidden, rec.Code, route.path)
		assert.Equal(t, "Subscription required", decode(t, rec)["message"])
	}

	rec := s.do(t, http.MethodPost, "/api/subscription/subscribe", gin.H{"planName": "monthly"}, access)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/calculator/history", nil, access)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeactivate(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	s.signup(t, "a@x.com")
	access, refresh := s.login(t, "a@x.com", "fp1")

	rec := s.do(t, http.MethodPost, "/api/auth/deactivate", nil, access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Account deactivated", decode(t, rec)["message"])

	rec = s.do(t, http.MethodPost, "/api/auth/refresh", gin.H{"refreshToken": refresh}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", gin.H{"identifier": "a@x.com", "password": "secret1", "deviceFingerprint": "fp1"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", decode(t, rec)["message"])

	for _, call := range []struct {
		method, path string
		body         any
	}{
		{http.MethodPost, "/api/subscription/subscribe", gin.H{"planName": "yearly"}},
		{http.MethodPost, "/api/subscription/device-slots", gin.H{"quantity": 3}},
		{http.MethodGet, "/api/auth/me", nil},
		{http.MethodGet, "/api/devices", nil},
	} {
		rec = s.do(t, call.method, call.path, call.body, access)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, call.path)
		assert.Equal(t, "Invalid or expired token", decode(t, rec)["message"], call.path)
	}
}

func TestInternalErrorsAreHidden(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	s.signup(t, "a@x.com")

	s.db.FailNext(errors.New("pq: connection refused to 10.0.0.5"))
	rec := s.do(t, http.MethodPost, "/api/auth/login", gin.H{"identifier": "a@x.com", "password": "secret1", "deviceFingerprint": "fp1"}, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]any{"message": "Internal server error"}, decode(t, rec))
}

func TestLoginRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := ratelimit.NewLimiter(client, "rl:auth", time.Minute)

	s := newTestServer(t, func(cfg *config.AppConfig) { cfg.RateLimit.AuthPerMinute = 2 }, limiter, nil)

	payload := gin.H{"identifier": "nobody@x.com", "password": "secret1", "deviceFingerprint": "fp1"}
	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodPost, "/api/auth/login", payload, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := s.do(t, http.MethodPost, "/api/auth/login", payload, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many requests", decode(t, rec)["message"])

	rec = s.do(t, http.MethodPost, "/api/auth/refresh", gin.H{"refreshToken": "x"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil, nil, map[string]Pinger{
		"database": func(context.Context) error { return nil },
		"cache":    func(context.Context) error { return errors.New("down") },
	})

	rec := s.do(t, http.MethodGet, "/api/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]any{"database": "ok", "cache": "error"}, body["checks"])
}
