// Аутентификация: вход через каталог (форма и JSON API), выход и middleware,
// определяющее текущего пользователя по токену доступа или cookie сессии.
package ldapauth

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/aisa-it/ldapauth/internal/ldapauth/apierrors"
	"github.com/aisa-it/ldapauth/internal/ldapauth/dao"
	"github.com/aisa-it/ldapauth/internal/ldapauth/login"
	"github.com/aisa-it/ldapauth/internal/ldapauth/sessions"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// AuthContext контекст запроса аутентифицированного пользователя.
type AuthContext struct {
	echo.Context
	User *dao.User
	// TokenAuth пользователь определён по токену доступа, а не по cookie.
	TokenAuth bool
}

// IsLdapUser пользователь вошёл через каталог (учётная запись связана с пользователем каталога).
func (ac AuthContext) IsLdapUser() bool {
	return ac.User.IsLdapUser()
}

type AuthConfig struct {
	Secret   []byte
	Accounts login.Accounts
}

func AuthMiddleware(config AuthConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusOK)
			}

			var username string
			tokenAuth := false
			if schema, tokenString, ok := strings.Cut(c.Request().Header.Get(echo.HeaderAuthorization), " "); ok {
				if strings.TrimSpace(schema) != "Bearer" {
					return EErrorDefined(c, apierrors.ErrTokenInvalid)
				}
				name, err := sessions.ParseToken(config.Secret, strings.TrimSpace(tokenString))
				if err != nil {
					return EError(c, err)
				}
				username = name
				tokenAuth = true
			} else {
				// Cookie session
				name, ok := sessions.NewCookieSession(c).Identity()
				if !ok {
					return EErrorDefined(c, apierrors.ErrNotLoggedIn)
				}
				username = name
			}

			user, err := config.Accounts.FindLocalUser(c.Request().Context(), username)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return EErrorDefined(c, apierrors.ErrNotLoggedIn)
				}
				return EError(c, err)
			}
			if !user.IsActive {
				return EErrorDefined(c, apierrors.ErrLoginTriesExceed)
			}

			return next(AuthContext{c, user, tokenAuth})
		}
	}
}

type Authentication struct {
	secret       []byte
	orchestrator *login.Orchestrator
	accounts     login.Accounts
	limiter      *LoginRateLimiter
}

// AddAuthenticationServices регистрирует маршруты входа и выхода.
func AddAuthenticationServices(e *echo.Echo, secret []byte, orchestrator *login.Orchestrator, accounts login.Accounts, limiter *LoginRateLimiter) *Authentication {
	ret := &Authentication{secret, orchestrator, accounts, limiter}

	e.POST("ldap_login_handler/", ret.ldapLoginHandler)
	e.POST("api/sign-in/", ret.signIn)

	e.GET("user/login/", ret.loginPage)
	e.GET("user/logged_in/", ret.loggedIn)
	e.POST("user/logout/", ret.logout)
	return ret
}

// ldapLoginHandler вход из HTML формы. При успехе имя пользователя записывается в cookie сессии,
// при неудаче сообщения сохраняются как flash для страницы входа.
func (a *Authentication) ldapLoginHandler(c echo.Context) error {
	req := login.LoginRequest{
		Login:    c.FormValue("login"),
		Password: c.FormValue("password"),
		CameFrom: c.FormValue("came_from"),
		RemoteIP: c.RealIP(),
	}

	s := sessions.NewCookieSession(c)
	if !a.limiter.Allow(req.RemoteIP) {
		if err := s.Flash("", apierrors.ErrLoginTriesExceed.Err); err != nil {
			return EError(c, err)
		}
		return c.Redirect(http.StatusFound, "/user/login")
	}

	out := a.attempt(c, req, s)
	if out.Success() {
		return c.Redirect(http.StatusFound, "/user/logged_in?came_from="+url.QueryEscape(out.CameFrom))
	}

	if err := s.Flash(out.Notice, out.Error); err != nil {
		return EError(c, err)
	}
	return c.Redirect(http.StatusFound, "/user/login")
}

type SignInRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// signIn вход через JSON API, в ответ выдаётся токен доступа.
func (a *Authentication) signIn(c echo.Context) error {
	var req SignInRequest
	if err := c.Bind(&req); err != nil {
		return EError(c, err)
	}

	if !a.limiter.Allow(c.RealIP()) {
		return EErrorDefined(c, apierrors.ErrLoginTriesExceed)
	}

	ts := sessions.NewTokenSession(a.secret)
	out := a.attempt(c, login.LoginRequest{
		Login:    req.Login,
		Password: req.Password,
		RemoteIP: c.RealIP(),
	}, ts)
	if !out.Success() {
		return EErrorDefined(c, outcomeError(out))
	}

	user, err := a.accounts.FindLocalUser(c.Request().Context(), out.Username)
	if err != nil {
		return EError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"access_token": ts.Token.SignedString,
		"user":         user,
	})
}

// attempt выполняет попытку входа и учитывает неверные пароли в ограничителе.
func (a *Authentication) attempt(c echo.Context, req login.LoginRequest, session login.SessionWriter) login.Outcome {
	out := a.orchestrator.Login(c.Request().Context(), req, session)
	switch {
	case out.Success():
		a.limiter.Reset(req.RemoteIP)
	case out.Reason == login.ReasonBadCredentials:
		a.limiter.RecordFailure(req.RemoteIP)
	}
	return out
}

// outcomeError ошибка API для неудачной попытки входа.
func outcomeError(out login.Outcome) apierrors.DefinedError {
	switch out.Reason {
	case login.ReasonCredentialsRequired:
		return apierrors.ErrLoginCredentialsRequired
	case login.ReasonAmbiguous:
		return apierrors.ErrLdapAmbiguous.WithFormattedMessage(out.Notice)
	case login.ReasonUsernameConflict:
		return apierrors.ErrUsernameConflict
	case login.ReasonUserConflict:
		return apierrors.ErrUserConflict
	}
	return apierrors.ErrFailedLogin
}

// loginPage сообщения, накопленные для страницы входа.
func (a *Authentication) loginPage(c echo.Context) error {
	notices, errs, err := sessions.NewCookieSession(c).Flashes()
	if err != nil {
		return EError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"notices": notices,
		"errors":  errs,
	})
}

func (a *Authentication) loggedIn(c echo.Context) error {
	username, ok := sessions.NewCookieSession(c).Identity()
	if !ok {
		return EErrorDefined(c, apierrors.ErrNotLoggedIn)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"username":  username,
		"came_from": c.QueryParam("came_from"),
	})
}

func (a *Authentication) logout(c echo.Context) error {
	if err := sessions.NewCookieSession(c).ClearIdentity(); err != nil {
		return EError(c, err)
	}
	return c.NoContent(http.StatusOK)
}
