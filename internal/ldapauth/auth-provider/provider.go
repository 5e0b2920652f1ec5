// Package authprovider реализует поиск пользователей и проверку паролей во внешнем каталоге (LDAP, Active Directory).
//
// Поиск выполняется от имени служебной учётной записи (если она настроена) по шаблону фильтра,
// пароль пользователя проверяется привязкой (bind) к каталогу от имени найденной записи.
// Каждая операция открывает собственное соединение и гарантированно закрывает его.
//
// Результаты поиска:
//   - (*LdapUser, nil): найдена ровно одна запись;
//   - (nil, ErrNotFound): записи нет, либо каталог недоступен или неверно настроен (ошибка пишется в лог);
//   - (nil, *MultipleMatchError): запрос по альтернативному фильтру неоднозначен, сообщение показывается пользователю.
package authprovider

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("ldap user not found")

// LdapUser запись каталога, найденная по логину. Не сохраняется.
type LdapUser struct {
	DN       string
	Username string
	Email    string
	FullName string
	About    string
}

// MultipleMatchError поиск вернул несколько записей там, где неоднозначность нужно показать пользователю.
type MultipleMatchError struct {
	Message string
	Count   int
}

func (e *MultipleMatchError) Error() string {
	return e.Message
}

// Directory операции с каталогом, которые используются входом и хуками управления пользователями.
type Directory interface {
	FindUser(ctx context.Context, login string) (*LdapUser, error)
	VerifyPassword(ctx context.Context, dn string, password string) bool
}
