// Бизнес-логика связывания учётных записей каталога с локальными учётными записями.
//
// Основные возможности:
//   - Поиск или создание локальной учётной записи для пользователя каталога (ResolveOrCreate).
//   - Детерминированная генерация свободного имени пользователя (UniqueUsername).
//   - Проверки при создании, изменении и сбросе пароля локальных учётных записей.
//   - Предварительное создание учётной записи администратором (ProvisionUser).
package business

import (
	"context"
	"errors"

	authprovider "github.com/aisa-it/ldapauth/internal/ldapauth/auth-provider"
	"github.com/aisa-it/ldapauth/internal/ldapauth/config"
	"github.com/aisa-it/ldapauth/internal/ldapauth/dao"
	"gorm.io/gorm"
)

type Business struct {
	db *gorm.DB

	cfg       config.LdapConfig
	directory authprovider.Directory
}

func NewBL(db *gorm.DB, cfg config.LdapConfig, directory authprovider.Directory) *Business {
	return &Business{
		db:        db,
		cfg:       cfg,
		directory: directory,
	}
}

// FindLocalUser возвращает не удалённую локальную учётную запись по имени.
//
// Возвращает:
//   - *dao.User: учётная запись со связью с каталогом, если она есть.
//   - error: gorm.ErrRecordNotFound, если учётной записи нет.
func (b *Business) FindLocalUser(ctx context.Context, username string) (*dao.User, error) {
	return dao.GetUserByUsername(ctx, b.db, username)
}

// UpdateLastLogin сохраняет время и адрес входа.
func (b *Business) UpdateLastLogin(ctx context.Context, username string, ip string) error {
	return dao.UpdateLastLogin(ctx, b.db, username, ip)
}

// localUserState состояние локальной учётной записи с заданным именем.
type localUserState struct {
	user   *dao.User
	exists bool
	isLdap bool
}

func (b *Business) localUser(ctx context.Context, username string) (localUserState, error) {
	user, err := dao.GetUserByUsername(ctx, b.db, username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return localUserState{}, nil
	}
	if err != nil {
		return localUserState{}, err
	}
	return localUserState{user: user, exists: true, isLdap: user.IsLdapUser()}, nil
}
