// Пакет содержит определения ошибок API, возвращаемых клиенту при входе и управлении учётными записями.  Каждая ошибка имеет код, статус HTTP и описание, что позволяет удобно обрабатывать исключения и предоставлять информативные сообщения пользователю.
//
// Основные возможности:
//   - Определение ошибок авторизации, сессий и хуков управления пользователями.
//   - Предоставление кодов ошибок, соответствующих кодам HTTP статусов.
//   - Функция для форматирования сообщений об ошибках с использованием аргументов.
package apierrors

import (
	"fmt"
	"net/http"
	"sort"
)

type DefinedError struct {
	Code       int    `json:"code"`
	StatusCode int    `json:"-"`
	Err        string `json:"error"`
	RuErr      string `json:"ru_error,omitempty"`
}

func (e DefinedError) Error() string {
	return e.Err
}

var registry []DefinedError

func register(e DefinedError) DefinedError {
	registry = append(registry, e)
	return e
}

// All все объявленные ошибки, упорядоченные по коду.
func All() []DefinedError {
	res := make([]DefinedError, len(registry))
	copy(res, registry)
	sort.Slice(res, func(i, j int) bool { return res[i].Code < res[j].Code })
	return res
}

// WithFormattedMessage подставляет аргументы в оба варианта сообщения.
func (e DefinedError) WithFormattedMessage(args ...any) DefinedError {
	e.Err = fmt.Sprintf(e.Err, args...)
	e.RuErr = fmt.Sprintf(e.RuErr, args...)
	return e
}

// WithMessage заменяет текст ошибки, например на сообщение, заданное администратором.
func (e DefinedError) WithMessage(msg string) DefinedError {
	e.Err = msg
	e.RuErr = msg
	return e
}

var (
	// 1*** - auth errors
	ErrFailedLogin              = register(DefinedError{Code: 1001, StatusCode: http.StatusUnauthorized, Err: "Bad username or password.", RuErr: "Неправильное имя пользователя или пароль"})
	ErrLoginCredentialsRequired = register(DefinedError{Code: 1003, StatusCode: http.StatusUnauthorized, Err: "Please enter a username and password", RuErr: "Поля логин и пароль не могут быть пустыми"})
	ErrLoginTriesExceed         = register(DefinedError{Code: 1004, StatusCode: http.StatusUnauthorized, Err: "login tries exceed, your account is blocked", RuErr: "Учетная запись заблокирована"})
	ErrUsernameConflict         = register(DefinedError{Code: 1011, StatusCode: http.StatusConflict, Err: "Username conflict. Please contact the site administrator.", RuErr: "Конфликт имени пользователя. Обратитесь к администратору"})
	ErrUserConflict             = register(DefinedError{Code: 1012, StatusCode: http.StatusConflict, Err: "There is a username conflict. Please inform the site administrator.", RuErr: "Конфликт имени пользователя. Сообщите администратору"})
	ErrLdapAmbiguous            = register(DefinedError{Code: 1013, StatusCode: http.StatusConflict, Err: "%s", RuErr: "%s"})

	// 11** - session errors
	ErrTokenExpired = register(DefinedError{Code: 1102, StatusCode: http.StatusUnauthorized, Err: "token expired", RuErr: "Срок действия токена истек"})
	ErrTokenInvalid = register(DefinedError{Code: 1103, StatusCode: http.StatusUnauthorized, Err: "invalid token", RuErr: "Неверный токен"})
	ErrNotLoggedIn  = register(DefinedError{Code: 1105, StatusCode: http.StatusUnauthorized, Err: "not logged in", RuErr: "Требуется вход в систему"})
	ErrForbidden    = register(DefinedError{Code: 1106, StatusCode: http.StatusForbidden, Err: "permission denied", RuErr: "Недостаточно прав"})

	// 4*** - user errors
	ErrUserNotFound            = register(DefinedError{Code: 4001, StatusCode: http.StatusNotFound, Err: "user not found", RuErr: "Пользователь не найден"})
	ErrUserAlreadyExist        = register(DefinedError{Code: 4002, StatusCode: http.StatusConflict, Err: "user already exist", RuErr: "Пользователь с таким именем уже существует"})
	ErrLdapUserExists          = register(DefinedError{Code: 4003, StatusCode: http.StatusConflict, Err: "An LDAP user by that name already exists", RuErr: "Пользователь LDAP с таким именем уже существует"})
	ErrCannotEditLdapUser      = register(DefinedError{Code: 4004, StatusCode: http.StatusForbidden, Err: "Cannot edit LDAP users", RuErr: "Пользователей LDAP нельзя редактировать"})
	ErrCannotResetLdapPassword = register(DefinedError{Code: 4005, StatusCode: http.StatusForbidden, Err: "Cannot reset password for LDAP user", RuErr: "Нельзя сбросить пароль пользователя LDAP"})
	ErrInvalidUsername         = register(DefinedError{Code: 4006, StatusCode: http.StatusBadRequest, Err: "invalid username", RuErr: "Недопустимое имя пользователя"})
	ErrLdapUserNotFound        = register(DefinedError{Code: 4007, StatusCode: http.StatusNotFound, Err: "user not found in LDAP", RuErr: "Пользователь не найден в LDAP"})

	// 9*** - common errors
	ErrGeneric  = register(DefinedError{Code: 9001, StatusCode: http.StatusBadRequest, Err: "bad request", RuErr: "Некорректный запрос"})
	ErrInternal = register(DefinedError{Code: 9002, StatusCode: http.StatusInternalServerError, Err: "internal server error", RuErr: "Внутренняя ошибка сервера"})
)
