// Сессии пользователей: подписанная cookie для форм входа и JWT для JSON API.
//
// Основные возможности:
//   - Запись и удаление имени пользователя в сессии (SessionWriter для машины состояний входа).
//   - Одноразовые сообщения (flash) об ошибке и уведомления для страницы входа.
//   - Генерация и проверка JWT токенов доступа.
package sessions

import (
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
)

const (
	SessionName = "ldapauth"

	identityKey = "ldapauth-user"

	flashNotice = "notice"
	flashError  = "error"

	sessionMaxAge = 60 * 60 * 24 * 7
)

// NewCookieStore создаёт хранилище сессий в подписанных cookie.
//
// Параметры:
//   - secret: ключ подписи cookie.
//   - secure: выставлять ли флаг Secure.
func NewCookieStore(secret []byte, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// CookieSession сессия текущего запроса. Требует session.Middleware.
type CookieSession struct {
	c echo.Context
}

func NewCookieSession(c echo.Context) *CookieSession {
	return &CookieSession{c: c}
}

func (s *CookieSession) get() (*sessions.Session, error) {
	sess, err := session.Get(SessionName, s.c)
	if err != nil && sess != nil {
		// cookie с неверной подписью заменяется новой сессией
		return sess, nil
	}
	return sess, err
}

func (s *CookieSession) save(sess *sessions.Session) error {
	return sess.Save(s.c.Request(), s.c.Response())
}

func (s *CookieSession) SetIdentity(username string) error {
	sess, err := s.get()
	if err != nil {
		return err
	}
	sess.Values[identityKey] = username
	return s.save(sess)
}

func (s *CookieSession) ClearIdentity() error {
	sess, err := s.get()
	if err != nil {
		return err
	}
	if _, ok := sess.Values[identityKey]; !ok {
		return nil
	}
	delete(sess.Values, identityKey)
	return s.save(sess)
}

// Identity возвращает имя пользователя, записанное при входе через каталог.
func (s *CookieSession) Identity() (string, bool) {
	sess, err := s.get()
	if err != nil {
		return "", false
	}
	username, ok := sess.Values[identityKey].(string)
	return username, ok && username != ""
}

// Flash сохраняет сообщения для следующей страницы. Пустые сообщения пропускаются.
func (s *CookieSession) Flash(notice string, errMsg string) error {
	sess, err := s.get()
	if err != nil {
		return err
	}
	if notice != "" {
		sess.AddFlash(notice, flashNotice)
	}
	if errMsg != "" {
		sess.AddFlash(errMsg, flashError)
	}
	return s.save(sess)
}

// Flashes извлекает и удаляет накопленные сообщения.
func (s *CookieSession) Flashes() (notices []string, errs []string, err error) {
	sess, err := s.get()
	if err != nil {
		return nil, nil, err
	}

	notices = flashStrings(sess.Flashes(flashNotice))
	errs = flashStrings(sess.Flashes(flashError))
	if len(notices) > 0 || len(errs) > 0 {
		if err := s.save(sess); err != nil {
			return nil, nil, err
		}
	}
	return notices, errs, nil
}

func flashStrings(values []any) []string {
	res := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			res = append(res, s)
		}
	}
	return res
}
