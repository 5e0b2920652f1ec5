// DAO (Data Access Object) - модели и запросы к базе данных: локальные учётные записи,
// связи с учётными записями каталога и членство в организациях.
//
// Основные возможности:
//   - Выбор драйвера БД по строке подключения (PostgreSQL или встроенный SQLite).
//   - Миграция моделей через gorm AutoMigrate.
//   - Генерация UUID и паролей.
package dao

import (
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/gofrs/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const sqlitePrefix = "sqlite:"

// Models список моделей для AutoMigrate.
var Models = []any{&User{}, &LdapUser{}, &Organization{}, &OrganizationMember{}}

// Генерация UUID v4
func GenUUID() uuid.UUID {
	u2, _ := uuid.NewV4()
	return u2
}

// Dialector возвращает драйвер gorm для строки подключения.
// Строки вида "sqlite:<path>" открывают встроенную БД, остальные считаются DSN PostgreSQL.
func Dialector(dsn string) gorm.Dialector {
	if path, ok := strings.CutPrefix(dsn, sqlitePrefix); ok {
		return sqlite.Open(path)
	}
	return postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: false, // disables implicit prepared statement usage
	})
}

// Migrate создаёт и обновляет таблицы всех моделей.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models...)
}
