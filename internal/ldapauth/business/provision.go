package business

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aisa-it/ldapauth/internal/ldapauth/apierrors"
	authprovider "github.com/aisa-it/ldapauth/internal/ldapauth/auth-provider"
	"github.com/aisa-it/ldapauth/internal/ldapauth/dao"
	stack_error "github.com/aisa-it/ldapauth/internal/ldapauth/stack-error"
)

// ProvisionUser заранее создаёт локальную учётную запись для пользователя каталога,
// чтобы её можно было добавить в проекты до первого входа.
//
// Параметры:
//   - ctx: контекст запроса.
//   - login: логин пользователя в каталоге.
//
// Возвращает:
//   - *dao.User: созданная учётная запись.
//   - error: ErrLdapUserNotFound, ErrLdapAmbiguous, ErrLdapUserExists (связь уже есть) или ErrUserConflict.
func (b *Business) ProvisionUser(ctx context.Context, login string) (*dao.User, error) {
	record, err := b.directory.FindUser(ctx, login)
	if err != nil {
		var mm *authprovider.MultipleMatchError
		switch {
		case errors.Is(err, authprovider.ErrNotFound):
			return nil, apierrors.ErrLdapUserNotFound
		case errors.As(err, &mm):
			return nil, apierrors.ErrLdapAmbiguous.WithFormattedMessage(mm.Message)
		}
		return nil, stack_error.TrackErrorStack(err).AddContext("login", login)
	}

	mapped, err := dao.LdapIdMapped(ctx, b.db, record.Username)
	if err != nil {
		return nil, stack_error.TrackErrorStack(err).AddContext("ldap_id", record.Username)
	}
	if mapped {
		return nil, apierrors.ErrLdapUserExists
	}

	username, err := b.ResolveOrCreate(ctx, record)
	if err != nil {
		var uce *UserConflictError
		if errors.As(err, &uce) {
			return nil, apierrors.ErrUserConflict
		}
		if errors.Is(err, ErrRetryable) {
			return nil, apierrors.ErrUserAlreadyExist
		}
		return nil, err
	}

	slog.Info("LDAP user provisioned", "login", login, "username", username)
	return dao.GetUserByUsername(ctx, b.db, username)
}
