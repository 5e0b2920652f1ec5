// Управление конфигурацией приложения из переменных окружения.
// Содержит структуру Config для хранения параметров и функции ReadConfig/Load для их загрузки.
//
// Основные возможности:
//   - Загрузка конфигурации из переменных окружения с использованием тегов struct (caarlos0/env).
//   - Валидация обязательных переменных и допустимых значений (go-playground/validator).
//   - Закрытые перечисления для метода аутентификации и роли в организации.
//   - Маскировка секретных значений (passwords) в логах.
//   - Значения по умолчанию для необязательных параметров.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator"
)

type Config struct {
	SecretKey string `env:"SECRET_KEY" validate:"required"`

	DatabaseDSN string `env:"DATABASE_URL" envDefault:"sqlite:ldapauth.db"`

	SessionsSecure bool `env:"SESSIONS_SECURE" envDefault:"true"`

	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":2112"`

	ReconcileSchedule string `env:"RECONCILE_SCHEDULE" envDefault:"0 * * * *"`

	LoginMaxFailures   int           `env:"LOGIN_MAX_FAILURES" envDefault:"10"`
	LoginFailureWindow time.Duration `env:"LOGIN_FAILURE_WINDOW" envDefault:"5m"`

	Ldap LdapConfig `envPrefix:"LDAP_"`
}

// LdapConfig параметры подключения к каталогу и политики входа.
type LdapConfig struct {
	URI      string `env:"URI" validate:"required,uri"`
	StartTLS bool   `env:"START_TLS"`
	BaseDN   string `env:"BASE_DN" validate:"required"`

	SearchFilter string `env:"SEARCH_FILTER" validate:"required"`
	SearchAlt    string `env:"SEARCH_ALT"`
	SearchAltMsg string `env:"SEARCH_ALT_MSG" validate:"required_with=SearchAlt"`

	UsernameAttr string `env:"USERNAME" validate:"required"`
	EmailAttr    string `env:"EMAIL" validate:"required"`
	FullnameAttr string `env:"FULLNAME"`
	AboutAttr    string `env:"ABOUT"`

	AuthDN        string     `env:"AUTH_DN"`
	AuthPassword  string     `env:"AUTH_PASSWORD" validate:"required_with=AuthDN"`
	AuthMethod    AuthMethod `env:"AUTH_METHOD" envDefault:"SIMPLE"`
	AuthMechanism string     `env:"AUTH_MECHANISM" envDefault:"DIGEST-MD5" validate:"oneof=DIGEST-MD5"`

	OrganizationID   string `env:"ORGANIZATION_ID"`
	OrganizationRole Role   `env:"ORGANIZATION_ROLE" envDefault:"member" validate:"oneof=member editor admin"`

	LocalFallback      bool `env:"CKAN_FALLBACK"`
	PreventEdits       bool `env:"PREVENT_EDITS"`
	Migrate            bool `env:"MIGRATE"`
	AllowPasswordReset bool `env:"ALLOW_PASSWORD_RESET" envDefault:"true"`
	UseFirst           bool `env:"USE_FIRST"`

	DebugLevel int `env:"DEBUG_LEVEL"`
	TraceLevel int `env:"TRACE_LEVEL"`
}

// Attributes возвращает список атрибутов, запрашиваемых при поиске пользователя в каталоге.
func (lc LdapConfig) Attributes() []string {
	attrs := []string{lc.UsernameAttr, lc.EmailAttr}
	if lc.FullnameAttr != "" {
		attrs = append(attrs, lc.FullnameAttr)
	}
	if lc.AboutAttr != "" {
		attrs = append(attrs, lc.AboutAttr)
	}
	return attrs
}

// ReadConfig загружает конфигурацию приложения из переменных окружения и выполняет валидацию.
// При ошибке загрузки или валидации приложение завершает работу с ошибкой.
func ReadConfig() *Config {
	cfg, err := Load(nil)
	if err != nil {
		slog.Error("Read config", "err", err)
		os.Exit(1)
	}
	return cfg
}

// Load загружает конфигурацию из переданного окружения.
//
// Параметры:
//   - environ: значения переменных окружения; nil означает окружение процесса.
//
// Возвращает:
//   - *Config: неизменяемая после загрузки конфигурация.
//   - error: ошибка разбора или валидации.
func Load(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{
		Environment: environ,
		OnSet:       logConfigValue,
	}); err != nil {
		return nil, err
	}

	cfg.Ldap.AuthMechanism = strings.ToUpper(cfg.Ldap.AuthMechanism)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if !strings.Contains(cfg.Ldap.SearchFilter, LoginPlaceholder) {
		slog.Warn("LDAP search filter has no login placeholder", "filter", cfg.Ldap.SearchFilter)
	}

	return cfg, nil
}

// LoginPlaceholder подставляется в шаблон фильтра поиска.
const LoginPlaceholder = "{login}"

func logConfigValue(tag string, value interface{}, isDefault bool) {
	logValue := fmt.Sprint(value)
	if logValue == "" {
		return
	}

	source := "ENVIRONMENT"
	if isDefault {
		source = "DEFAULT"
	}

	// Secure passwords in log
	lower := strings.ToLower(tag)
	if strings.Contains(lower, "pass") || strings.Contains(lower, "secret") || strings.Contains(lower, "token") {
		logValue = maskSecret(logValue)
	}

	slog.Info("Set config value",
		slog.String("key", tag),
		slog.String("value", logValue),
		slog.String("source", source),
	)
}

func maskSecret(value string) string {
	runes := []rune(value)
	if len(runes) <= 2 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[0]) + strings.Repeat("*", len(runes)-2) + string(runes[len(runes)-1])
}
