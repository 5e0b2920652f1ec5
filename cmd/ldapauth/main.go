// Основной пакет сервиса входа через каталог. Отвечает за чтение конфигурации, подключение к БД,
// миграцию моделей, подготовку организации по умолчанию и запуск HTTP сервера.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aisa-it/ldapauth/internal/ldapauth"
	"github.com/aisa-it/ldapauth/internal/ldapauth/config"
	"github.com/aisa-it/ldapauth/internal/ldapauth/dao"
	"github.com/aisa-it/ldapauth/internal/ldapauth/gormlogger"
	"gorm.io/gorm"
)

var version string = "DEV"

// Пример запуска: go run main.go -trace -setupOrg
func main() {
	noTranslateFlag := flag.Bool("noTranslate", false, "Turn off BD errors translate")
	paramQueries := flag.Bool("paramQueries", true, "Mask queries params in log")
	noMigration := flag.Bool("noMigration", false, "Turn off DB migration")
	trace := flag.Bool("trace", false, "Verbose logs and sql trace")
	setupOrg := flag.Bool("setupOrg", false, "Create default organization from LDAP_ORGANIZATION_ID")
	flag.Parse()

	PrintBanner()

	if *trace {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	// Set prod log format
	if version != "DEV" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{})))
	}

	cfg := config.ReadConfig()

	slog.Info("ldapauth start.")

	db, err := gorm.Open(dao.Dialector(cfg.DatabaseDSN), &gorm.Config{
		TranslateError: !*noTranslateFlag,
		Logger:         gormlogger.NewGormLogger(slog.Default(), time.Second*4, *paramQueries),
	})
	if err != nil {
		slog.Error("Fail init DB connection", "err", err)
		os.Exit(1)
	}

	sqlDB, err := db.DB()
	if err != nil {
		slog.Error("Fail set settings to conn pool", "err", err)
		os.Exit(1)
	}
	if strings.HasPrefix(cfg.DatabaseDSN, "sqlite:") {
		// single writer
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetMaxIdleConns(50)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(time.Minute * 15)

	if !*noMigration {
		slog.Info("Migrate models")
		if err := dao.Migrate(db); err != nil {
			slog.Error("Migration failed", "err", err)
			os.Exit(1)
		}
	}

	if *setupOrg {
		if err := SetupOrganization(db, cfg); err != nil {
			slog.Error("Setup organization", "organization", cfg.Ldap.OrganizationID, "err", err)
			os.Exit(1)
		}
	}

	ldapauth.Server(db, cfg, version)
}

// SetupOrganization создаёт организацию по умолчанию, если её ещё нет.
func SetupOrganization(db *gorm.DB, cfg *config.Config) error {
	if cfg.Ldap.OrganizationID == "" {
		slog.Warn("LDAP_ORGANIZATION_ID is not set, skip organization setup")
		return nil
	}

	org, created, err := dao.EnsureOrganization(context.Background(), db, cfg.Ldap.OrganizationID)
	if err != nil {
		return err
	}
	if created {
		slog.Info("Organization created", "name", org.Name, "id", org.ID)
	} else {
		slog.Info("Organization already exists", "name", org.Name, "id", org.ID)
	}
	return nil
}

func PrintBanner() {
	banner := `
 _     _                           _   _
| | __| | __ _ _ __   __ _ _   _| |_| |__
| |/ _  |/ _  | '_ \ / _  | | | | __| '_ \
| | (_| | (_| | |_) | (_| | |_| | |_| | | |
|_|\__,_|\__,_| .__/ \__,_|\__,_|\__|_| |_| %s
              |_|
Directory login for local accounts
----------------------------------------------------
`
	colorReset := "\033[0m"
	colorYellow := "\033[33m"

	formattedVersion := version
	if version == "DEV" {
		formattedVersion = colorYellow + version + colorReset
	}

	fmt.Printf(banner, formattedVersion)
}
