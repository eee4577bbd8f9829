package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetcalc/api/internal/metrics"
	"sheetcalc/api/internal/ratelimit"
	"sheetcalc/api/internal/security"
	"sheetcalc/api/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func messageOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Message
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

type tokenAuthenticator struct {
	tokens *security.AccessTokens
}

func (a tokenAuthenticator) Authenticate(token string) (*security.AccessClaims, error) {
	return a.tokens.Parse(token, time.Now())
}

func TestAuth(t *testing.T) {
	tokens := security.NewAccessTokens("secret", "sheetcalc-test", time.Hour)
	router := gin.New()
	router.GET("/me", Auth(tokenAuthenticator{tokens: tokens}), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"account": AccountID(c), "device": DeviceID(c)})
	})

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Authorization token required", messageOf(t, rec))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec = serve(router, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid or expired token", messageOf(t, rec))

	token, err := tokens.Issue("acc-1", "dev-1", time.Now())
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = serve(router, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"account":"acc-1","device":"dev-1"}`, rec.Body.String())
}

type stubChecker struct {
	err error
}

func (s stubChecker) AccessCheck(context.Context, string) (service.Entitlement, error) {
	return service.Entitlement{HasAccess: s.err == nil}, s.err
}

func TestRequireAccess(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"granted", nil, http.StatusOK, ""},
		{"no subscription", service.ErrSubscriptionRequired, http.StatusForbidden, "Subscription required"},
		{"account gone", service.ErrInvalidToken, http.StatusUnauthorized, "Invalid or expired token"},
		{"store down", errors.New("boom"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/calc", func(c *gin.Context) {
				c.Set(ctxAccessClaims, &security.AccessClaims{AccountID: "acc-1"})
				c.Next()
			}, RequireAccess(stubChecker{err: tc.err}, zerolog.Nop()), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			rec := serve(router, httptest.NewRequest(http.MethodGet, "/calc", nil))
			assert.Equal(t, tc.status, rec.Code)
			if tc.message != "" {
				assert.Equal(t, tc.message, messageOf(t, rec))
			}
		})
	}
}

func TestRequireAccessWithoutAuth(t *testing.T) {
	router := gin.New()
	router.GET("/calc", RequireAccess(stubChecker{}, zerolog.Nop()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/calc", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	router := gin.New()
	router.POST("/login", RateLimit(ratelimit.NewLimiter(client, "rl:auth", time.Minute), "login", 2, zerolog.Nop()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		rec := serve(router, httptest.NewRequest(http.MethodPost, "/login", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := serve(router, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many requests", messageOf(t, rec))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Time) (ratelimit.Result, error) {
	return ratelimit.Result{}, errors.New("redis down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	router := gin.New()
	router.POST("/login", RateLimit(failingLimiter{}, "login", 1, zerolog.Nop()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 3; i++ {
		rec := serve(router, httptest.NewRequest(http.MethodPost, "/login", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRecoveryReturnsInternalError(t *testing.T) {
	router := gin.New()
	router.Use(RequestID(), Recovery(zerolog.Nop()))
	router.GET("/panic", func(c *gin.Context) {
		panic("unexpected")
	})

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", messageOf(t, rec))
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequestIDKeepsCallerValue(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec := serve(router, req)
	assert.Equal(t, "req-123", rec.Header().Get(requestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"https://app.example.com"}))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := serve(router, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = serve(router, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsRecordsRouteTemplate(t *testing.T) {
	m := metrics.New("test")
	router := gin.New()
	router.Use(Metrics(m))
	router.DELETE("/devices/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(router, httptest.NewRequest(http.MethodDelete, "/devices/abc", nil))
	serve(router, httptest.NewRequest(http.MethodDelete, "/devices/def", nil))
	serve(router, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodDelete, "/devices/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404")))
}
