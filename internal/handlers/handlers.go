package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"sheetcalc/api/internal/config"
	"sheetcalc/api/internal/metrics"
	"sheetcalc/api/internal/middleware"
	"sheetcalc/api/internal/ratelimit"
	"sheetcalc/api/internal/repository"
	"sheetcalc/api/internal/security"
	"sheetcalc/api/internal/service"
	"sheetcalc/api/internal/storage"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger func(ctx context.Context) error

type Services struct {
	Auth          *service.AuthService
	Subscriptions *service.SubscriptionService
	Devices       *service.DeviceService
	Calculator    *service.CalculatorService
}

type HandlerSet struct {
	log           zerolog.Logger
	cfg           *config.AppConfig
	authService   *service.AuthService
	subscriptions *service.SubscriptionService
	devices       *service.DeviceService
	calculator    *service.CalculatorService
	limiter       middleware.Limiter
	probes        map[string]Pinger
}

func NewHandlerSet(
	log zerolog.Logger,
	db *pgxpool.Pool,
	cache *redis.Client,
	store *storage.ObjectStore,
	m *metrics.Metrics,
	cfg *config.AppConfig,
) HandlerSet {
	accountRepo := repository.NewAccountRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	deviceRepo := repository.NewDeviceRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	calculationRepo := repository.NewCalculationRepository(db)

	tokens := security.NewAccessTokens(cfg.Security.JWTAccessSecret, cfg.Security.Issuer, cfg.Security.JWTAccessTTL)

	services := Services{
		Auth:          service.NewAuthService(accountRepo, subscriptionRepo, deviceRepo, sessionRepo, tokens, cfg, m, log),
		Subscriptions: service.NewSubscriptionService(accountRepo, subscriptionRepo, cfg, log),
		Devices:       service.NewDeviceService(accountRepo, subscriptionRepo, deviceRepo, log),
		Calculator:    service.NewCalculatorService(calculationRepo, store, cfg, log),
	}

	probes := map[string]Pinger{
		"database": db.Ping,
		"cache":    func(ctx context.Context) error { return cache.Ping(ctx).Err() },
		"storage":  store.Ping,
	}

	limiter := ratelimit.NewLimiter(cache, cfg.RateLimit.Prefix, time.Minute)
	return NewHandlerSetWith(log, cfg, services, limiter, probes)
}

// NewHandlerSetWith assembles a HandlerSet from already constructed services.
func NewHandlerSetWith(log zerolog.Logger, cfg *config.AppConfig, services Services, limiter middleware.Limiter, probes map[string]Pinger) HandlerSet {
	registerValidators()

	if limiter == nil {
		limiter = (*ratelimit.Limiter)(nil)
	}

	return HandlerSet{
		log:           log,
		cfg:           cfg,
		authService:   services.Auth,
		subscriptions: services.Subscriptions,
		devices:       services.Devices,
		calculator:    services.Calculator,
		limiter:       limiter,
		probes:        probes,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	requireAuth := middleware.Auth(h.authService)
	requireAccess := middleware.RequireAccess(h.authService, h.log)
	perMinute := h.cfg.RateLimit.AuthPerMinute

	auth := router.Group("/auth")
	{
		auth.POST("/signup", middleware.RateLimit(h.limiter, "signup", perMinute, h.log), h.Signup)
		auth.POST("/login", middleware.RateLimit(h.limiter, "login", perMinute, h.log), h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", h.Logout)
		auth.GET("/me", requireAuth, h.Me)
		auth.POST("/deactivate", requireAuth, h.Deactivate)
	}

	subscription := router.Group("/subscription")
	{
		subscription.GET("/plans", h.Plans)
		subscription.POST("/subscribe", requireAuth, h.Subscribe)
		subscription.POST("/device-slots", requireAuth, h.PurchaseDeviceSlots)
	}

	devices := router.Group("/devices")
	devices.Use(requireAuth)
	{
		devices.GET("", h.ListDevices)
		devices.DELETE("/:id", h.RemoveDevice)
	}

	calc := router.Group("/calculator")
	calc.Use(requireAuth, requireAccess)
	{
		calc.POST("/calculate", h.Calculate)
		calc.GET("/history", h.History)
		calc.POST("/export", h.Export)
	}
}
