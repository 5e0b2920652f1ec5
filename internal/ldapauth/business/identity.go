package business

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	authprovider "github.com/aisa-it/ldapauth/internal/ldapauth/auth-provider"
	"github.com/aisa-it/ldapauth/internal/ldapauth/dao"
	stack_error "github.com/aisa-it/ldapauth/internal/ldapauth/stack-error"
	"gorm.io/gorm"
)

const (
	maxUsernameLength = 100
	minUsernameLength = 2
)

// UserConflictMessage показывается пользователю, если имя из каталога занято локальной учётной записью.
const UserConflictMessage = "There is a username conflict. Please inform the site administrator."

// ErrRetryable запись учётной записи или связи нарушила ограничение уникальности
// из-за параллельного входа. Повтор генерирует новое имя.
var ErrRetryable = errors.New("identity write conflicted with a concurrent login")

// ErrAccountDeleted связь с каталогом есть, но связанная учётная запись удалена.
var ErrAccountDeleted = errors.New("account linked to directory identity is deleted")

// UserConflictError имя пользователя каталога совпадает с именем локальной учётной записи,
// не связанной с каталогом, а перенос учётных записей выключен.
type UserConflictError struct {
	Username string
}

func (e *UserConflictError) Error() string {
	return UserConflictMessage
}

// ResolveOrCreate возвращает имя локальной учётной записи для пользователя каталога,
// при первом входе создавая учётную запись и связь с каталогом.
//
// Параметры:
//   - ctx: контекст запроса.
//   - record: запись каталога, найденная по логину.
//
// Возвращает:
//   - string: имя локальной учётной записи.
//   - error: *UserConflictError при конфликте имён, ErrRetryable при гонке с параллельным входом.
func (b *Business) ResolveOrCreate(ctx context.Context, record *authprovider.LdapUser) (string, error) {
	mapped, err := dao.GetUserByLdapId(ctx, b.db, record.Username)
	if err == nil {
		return mapped.Username, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", stack_error.TrackErrorStack(err).AddContext("ldap_id", record.Username)
	}
	if orphan, err := dao.LdapIdMapped(ctx, b.db, record.Username); err != nil {
		return "", stack_error.TrackErrorStack(err).AddContext("ldap_id", record.Username)
	} else if orphan {
		return "", ErrAccountDeleted
	}

	existing, err := b.localUser(ctx, record.Username)
	if err != nil {
		return "", stack_error.TrackErrorStack(err).AddContext("ldap_id", record.Username)
	}

	var user *dao.User
	if existing.exists && !existing.isLdap {
		if !b.cfg.Migrate {
			return "", &UserConflictError{Username: record.Username}
		}
		user = existing.user
		if err := b.migrateUser(ctx, user, record); err != nil {
			return "", err
		}
	} else {
		// Учётная запись с таким именем, связанная с другим пользователем каталога, не конфликт.
		username, err := b.UniqueUsername(ctx, record.Username)
		if err != nil {
			return "", err
		}
		user = &dao.User{Username: username}
		if err := b.createUser(ctx, user, record); err != nil {
			return "", err
		}
	}

	b.addToOrganization(ctx, user)
	return user.Username, nil
}

func applyRecord(user *dao.User, record *authprovider.LdapUser) {
	user.Email = record.Email
	user.Password = dao.GenPasswordHash(dao.GenPassword())
	user.AuthProvider = dao.AuthProviderLdap
	if record.FullName != "" {
		user.FullName = record.FullName
	}
	if record.About != "" {
		user.About = record.About
	}
}

func (b *Business) createUser(ctx context.Context, user *dao.User, record *authprovider.LdapUser) error {
	applyRecord(user, record)
	user.IsActive = true

	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Ldap").Create(user).Error; err != nil {
			return err
		}
		return tx.Create(&dao.LdapUser{UserId: user.ID, LdapId: record.Username}).Error
	})
	return writeError(err, user.Username, record.Username)
}

func (b *Business) migrateUser(ctx context.Context, user *dao.User, record *authprovider.LdapUser) error {
	applyRecord(user, record)

	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&dao.User{}).
			Where("id = ?", user.ID).
			Updates(map[string]any{
				"email":         user.Email,
				"password":      user.Password,
				"full_name":     user.FullName,
				"about":         user.About,
				"auth_provider": user.AuthProvider,
			}).Error; err != nil {
			return err
		}
		return tx.Create(&dao.LdapUser{UserId: user.ID, LdapId: record.Username}).Error
	})
	if err == nil {
		slog.Info("Local user migrated to LDAP", "username", user.Username)
	}
	return writeError(err, user.Username, record.Username)
}

func writeError(err error, username string, ldapId string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %w", ErrRetryable, err)
	}
	return stack_error.TrackErrorStack(err).
		AddContext("username", username).
		AddContext("ldap_id", ldapId)
}

// addToOrganization добавляет учётную запись в организацию по умолчанию.
// Ошибка только пишется в лог: вход уже состоялся.
func (b *Business) addToOrganization(ctx context.Context, user *dao.User) {
	if b.cfg.OrganizationID == "" {
		return
	}

	org, _, err := dao.EnsureOrganization(ctx, b.db, b.cfg.OrganizationID)
	if err != nil {
		stack_error.LogError("Ensure organization", stack_error.TrackErrorStack(err), "organization", b.cfg.OrganizationID)
		return
	}
	if err := dao.AddOrganizationMember(ctx, b.db, org.ID, user.ID, string(b.cfg.OrganizationRole)); err != nil {
		stack_error.LogError("Add organization member", stack_error.TrackErrorStack(err),
			"organization", org.Name,
			"username", user.Username,
		)
	}
}

// SanitizeUsername приводит имя к допустимому виду: нижний регистр, символы вне [a-z0-9_-]
// заменяются на "_", длина от 2 до 100 символов.
// Нижний регистр полный, как в Unicode SpecialCasing: "İ" даёт "i" и комбинируемую точку, то есть "i_".
func SanitizeUsername(base string) string {
	var sb strings.Builder
	for _, r := range base {
		if r == '\u0130' {
			sb.WriteString("i_")
			continue
		}
		switch r = unicode.ToLower(r); {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}

	name := sb.String()
	if len(name) > maxUsernameLength {
		name = name[:maxUsernameLength]
	}
	for len(name) < minUsernameLength {
		name += "_"
	}
	return name
}

// UniqueUsername возвращает свободное имя пользователя на основе base.
// Если имя занято, добавляется числовой суффикс 1, 2, ... с усечением основы до 100 символов.
// Занятость проверяется с учётом удалённых учётных записей.
func (b *Business) UniqueUsername(ctx context.Context, base string) (string, error) {
	base = SanitizeUsername(base)

	username := base
	for count := 1; ; count++ {
		exists, err := dao.UsernameExists(ctx, b.db, username)
		if err != nil {
			return "", stack_error.TrackErrorStack(err).AddContext("username", username)
		}
		if !exists {
			return username, nil
		}

		suffix := strconv.Itoa(count)
		username = base[:min(len(base), maxUsernameLength-len(suffix))] + suffix
	}
}
