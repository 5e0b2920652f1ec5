package business

import (
	"context"
	"errors"

	"github.com/aisa-it/ldapauth/internal/ldapauth/apierrors"
	authprovider "github.com/aisa-it/ldapauth/internal/ldapauth/auth-provider"
	"github.com/aisa-it/ldapauth/internal/ldapauth/dao"
	stack_error "github.com/aisa-it/ldapauth/internal/ldapauth/stack-error"
)

// ldapUserExists ищет пользователя каталога по имени. Неоднозначный результат считается найденным.
func (b *Business) ldapUserExists(ctx context.Context, name string) (*authprovider.LdapUser, bool, error) {
	record, err := b.directory.FindUser(ctx, name)
	if err == nil {
		return record, true, nil
	}

	var mm *authprovider.MultipleMatchError
	switch {
	case errors.Is(err, authprovider.ErrNotFound):
		return nil, false, nil
	case errors.As(err, &mm):
		return nil, true, nil
	}
	return nil, false, err
}

// CheckUserCreate запрещает создание локальной учётной записи с именем пользователя каталога.
func (b *Business) CheckUserCreate(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}

	_, exists, err := b.ldapUserExists(ctx, name)
	if err != nil {
		return stack_error.TrackErrorStack(err).AddContext("name", name)
	}
	if exists {
		return apierrors.ErrLdapUserExists
	}
	return nil
}

// CheckUserUpdate проверяет изменение учётной записи.
//
// Параметры:
//   - user: изменяемая учётная запись со связью с каталогом.
//   - newName: новое имя, пустая строка если имя не меняется.
//
// Возвращает:
//   - error: ErrCannotEditLdapUser, если редактирование связанных учётных записей запрещено;
//     ErrLdapUserExists, если новое имя принадлежит другому пользователю каталога.
func (b *Business) CheckUserUpdate(ctx context.Context, user *dao.User, newName string) error {
	if b.cfg.PreventEdits && user.IsLdapUser() {
		return apierrors.ErrCannotEditLdapUser
	}

	if newName == "" || newName == user.Username {
		return nil
	}

	record, exists, err := b.ldapUserExists(ctx, newName)
	if err != nil {
		return stack_error.TrackErrorStack(err).AddContext("name", newName)
	}
	if !exists {
		return nil
	}
	if !user.IsLdapUser() || record == nil || user.Ldap.LdapId != record.Username {
		return apierrors.ErrLdapUserExists
	}
	return nil
}

// CheckPasswordReset запрещает сброс пароля связанной с каталогом учётной записи,
// если это не разрешено настройками.
func (b *Business) CheckPasswordReset(ctx context.Context, user *dao.User) error {
	if !b.cfg.AllowPasswordReset && user.IsLdapUser() {
		return apierrors.ErrCannotResetLdapPassword
	}
	return nil
}
