// Пакет ldapauth HTTP сервер входа через внешний каталог (LDAP, Active Directory).
//
// Основные возможности:
//   - Вход из HTML формы с cookie сессией и через JSON API с токеном доступа.
//   - Проверки каталога при создании, изменении и сбросе пароля учётных записей.
//   - Периодическое восстановление связей учётных записей с каталогом (cron).
//   - Метрики prometheus на отдельном порту.
package ldapauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	authprovider "github.com/aisa-it/ldapauth/internal/ldapauth/auth-provider"
	"github.com/aisa-it/ldapauth/internal/ldapauth/business"
	"github.com/aisa-it/ldapauth/internal/ldapauth/config"
	"github.com/aisa-it/ldapauth/internal/ldapauth/cronmanager"
	"github.com/aisa-it/ldapauth/internal/ldapauth/login"
	"github.com/aisa-it/ldapauth/internal/ldapauth/maintenance"
	"github.com/aisa-it/ldapauth/internal/ldapauth/sessions"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

type Services struct {
	db  *gorm.DB
	cfg *config.Config

	business     *business.Business
	orchestrator *login.Orchestrator
	limiter      *LoginRateLimiter
}

func NewServices(db *gorm.DB, cfg *config.Config, bl *business.Business, orchestrator *login.Orchestrator) *Services {
	return &Services{
		db:           db,
		cfg:          cfg,
		business:     bl,
		orchestrator: orchestrator,
		limiter:      NewLoginRateLimiter(cfg.LoginMaxFailures, cfg.LoginFailureWindow),
	}
}

// Close останавливает фоновые задачи сервисов.
func (s *Services) Close() {
	s.limiter.Stop()
}

func Server(db *gorm.DB, cfg *config.Config, version string) {
	provider, err := authprovider.NewLdapProvider(cfg.Ldap)
	if err != nil {
		slog.Error("Init LDAP provider", "err", err)
		os.Exit(1)
	}

	checkCtx, cancel := context.WithTimeout(context.Background(), authprovider.NetworkTimeout)
	if err := provider.Check(checkCtx); err != nil {
		slog.Warn("LDAP directory is not available", "uri", cfg.Ldap.URI, "err", err)
	}
	cancel()

	bl := business.NewBL(db, cfg.Ldap, provider)
	orchestrator := login.NewOrchestrator(provider, bl, bl, cfg.Ldap.LocalFallback)
	reconciler := maintenance.NewLdapReconciler(db, provider)

	for _, collector := range []prometheus.Collector{orchestrator.Collector(), reconciler.Collector()} {
		if err := prometheus.Register(collector); err != nil {
			slog.Error("Register metrics collector", "err", err)
			os.Exit(1)
		}
	}

	jobRegistry := cronmanager.JobRegistry{
		"ldap_reconcile": cronmanager.Job{
			Func:     reconciler.SyncJob,
			Schedule: cfg.ReconcileSchedule,
		},
	}

	// Create CronManager
	cronManager := cronmanager.NewCronManager(jobRegistry)
	cronManager.LoadJobs()

	go reconciler.SyncJob()
	cronManager.Start()

	services := NewServices(db, cfg, bl, orchestrator)
	e := NewRouter(services, version)
	e.Use(echoprometheus.NewMiddleware("ldapauth"))

	// Create a channel to handle termination signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		slog.Info("Shutting down gracefully, press Ctrl+C again to force")
		cronManager.Stop()
		services.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown", "err", err)
		}
	}()

	// Prometheus metrics
	go func() {
		bootTimeGauge := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ldapauth",
			Name:      "boot_time",
			Help:      "Server startup time",
		})
		bootTimeGauge.Set(float64(time.Now().UnixMilli()))

		if err := prometheus.Register(bootTimeGauge); err != nil {
			slog.Error("Register boot time gauge", "err", err)
			os.Exit(1)
		}

		metrics := echo.New()
		metrics.HideBanner = true
		metrics.GET("/metrics", echoprometheus.NewHandler())
		if err := metrics.Start(cfg.MetricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server fail", "err", err)
		}
	}()

	if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server fail", "err", err)
	}
}

// NewRouter собирает echo со всеми маршрутами и middleware, кроме метрик.
func NewRouter(s *Services, version string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
		}

		// Ignore 404
		if code == http.StatusNotFound {
			c.NoContent(http.StatusNotFound)
			return
		}
		slog.Error("Unhandled error in endpoint", "url", c.Request().URL, "err", err)
		EErrorMsgStatus(c, nil, code)
	}

	// Global middlewares
	e.Use(ServerHeader)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowCredentials: true,
	}))
	e.Use(middleware.BodyLimitWithConfig(middleware.BodyLimitConfig{
		Limit: "1M",
	}))
	e.Use(session.Middleware(sessions.NewCookieStore([]byte(s.cfg.SecretKey), s.cfg.SessionsSecure)))
	e.Pre(middleware.AddTrailingSlash())

	e.Validator = NewRequestValidator()

	AddAuthenticationServices(e, []byte(s.cfg.SecretKey), s.orchestrator, s.business, s.limiter)

	apiGroup := e.Group("/api/")

	//services with auth
	authGroup := apiGroup.Group("auth/",
		AuthMiddleware(AuthConfig{
			Secret:   []byte(s.cfg.SecretKey),
			Accounts: s.business,
		}),
	)
	s.AddUserServices(authGroup)

	// Version endpoint
	apiGroup.GET("version/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"version":        version,
			"local_fallback": s.cfg.Ldap.LocalFallback,
			"ldap_alt":       s.cfg.Ldap.SearchAlt != "",
		})
	})

	// Health endpoint
	apiGroup.GET("_health/", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	return e
}
