// Машина состояний входа: поиск пользователя в каталоге, проверка пароля, связывание
// с локальной учётной записью и запись сессии, либо вход по локальному паролю.
//
// Основные возможности:
//   - Явные состояния и переходы, каждый переход пишется в лог на уровне debug.
//   - Результат входа (Outcome) с разделением на уведомление (Notice) и ошибку (Error).
//   - Запись сессии через интерфейс SessionWriter, не зависящий от способа хранения.
//   - Однократный повтор связывания при гонке с параллельным входом.
package login

import (
	"context"
	"errors"
	"log/slog"

	authprovider "github.com/aisa-it/ldapauth/internal/ldapauth/auth-provider"
	"github.com/aisa-it/ldapauth/internal/ldapauth/business"
	"github.com/aisa-it/ldapauth/internal/ldapauth/dao"
	stack_error "github.com/aisa-it/ldapauth/internal/ldapauth/stack-error"
	"github.com/prometheus/client_golang/prometheus"
)

// Resolver связывает пользователя каталога с локальной учётной записью.
type Resolver interface {
	ResolveOrCreate(ctx context.Context, record *authprovider.LdapUser) (string, error)
}

// Accounts доступ к локальным учётным записям.
type Accounts interface {
	FindLocalUser(ctx context.Context, username string) (*dao.User, error)
	UpdateLastLogin(ctx context.Context, username string, ip string) error
}

// SessionWriter запись личности пользователя в сессию.
type SessionWriter interface {
	SetIdentity(username string) error
	ClearIdentity() error
}

type LoginRequest struct {
	Login    string
	Password string
	CameFrom string
	RemoteIP string
}

// Outcome результат попытки входа.
type Outcome struct {
	State    State
	Reason   Reason
	Username string
	// Notice информационное сообщение (например, просьба уточнить логин).
	Notice string
	// Error сообщение об ошибке входа.
	Error    string
	CameFrom string
}

func (o Outcome) Success() bool {
	return o.State == StateSessionEstablished
}

type Orchestrator struct {
	directory authprovider.Directory
	resolver  Resolver
	accounts  Accounts
	fallback  bool

	loginCounter *prometheus.CounterVec
}

// NewOrchestrator создаёт машину состояний входа.
//
// Параметры:
//   - directory: каталог пользователей.
//   - resolver: связывание с локальными учётными записями.
//   - accounts: локальные учётные записи.
//   - fallback: разрешён ли вход по локальному паролю, если пользователя нет в каталоге.
func NewOrchestrator(directory authprovider.Directory, resolver Resolver, accounts Accounts, fallback bool) *Orchestrator {
	return &Orchestrator{
		directory: directory,
		resolver:  resolver,
		accounts:  accounts,
		fallback:  fallback,
		loginCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ldapauth",
			Name:      "login_total",
			Help:      "Login attempts by result",
		}, []string{"result"}),
	}
}

// Collector счётчик попыток входа для регистрации в prometheus.
func (o *Orchestrator) Collector() prometheus.Collector {
	return o.loginCounter
}

// attempt данные одной попытки входа между переходами.
type attempt struct {
	req     LoginRequest
	session SessionWriter

	record  *authprovider.LdapUser
	retried bool

	out Outcome
}

func (a *attempt) fail(reason Reason, notice string, errMsg string) State {
	a.out.Reason = reason
	a.out.Notice = notice
	a.out.Error = errMsg
	return StateLoginFailed
}

// Login выполняет попытку входа до конечного состояния.
// При успехе имя локальной учётной записи записывается в сессию.
func (o *Orchestrator) Login(ctx context.Context, req LoginRequest, session SessionWriter) Outcome {
	a := &attempt{
		req:     req,
		session: session,
		out:     Outcome{CameFrom: req.CameFrom},
	}

	state := StateStart
	for !state.Terminal() {
		next := o.step(ctx, state, a)
		slog.Debug("Login transition", "login", req.Login, "from", state, "to", next)
		state = next
	}
	a.out.State = state

	if a.out.Success() {
		o.loginCounter.WithLabelValues("success").Inc()
		if err := o.accounts.UpdateLastLogin(ctx, a.out.Username, req.RemoteIP); err != nil {
			slog.Error("Update last login", "username", a.out.Username, "err", err)
		}
	} else {
		o.loginCounter.WithLabelValues(a.out.Reason.String()).Inc()
	}
	return a.out
}

func (o *Orchestrator) step(ctx context.Context, state State, a *attempt) State {
	switch state {
	case StateStart:
		if a.req.Login == "" || a.req.Password == "" {
			return a.fail(ReasonCredentialsRequired, "", MsgCredentialsRequired)
		}
		return StateDirectorySearch

	case StateDirectorySearch:
		record, err := o.directory.FindUser(ctx, a.req.Login)
		var mm *authprovider.MultipleMatchError
		switch {
		case err == nil:
			a.record = record
			return StateDirectoryHit
		case errors.As(err, &mm):
			return a.fail(ReasonAmbiguous, mm.Message, "")
		case !errors.Is(err, authprovider.ErrNotFound):
			slog.Error("LDAP search", "login", a.req.Login, "err", err)
		}
		return StateDirectoryMiss

	case StateDirectoryMiss:
		if o.fallback {
			return StateLocalAuthCheck
		}
		return a.fail(ReasonBadCredentials, "", MsgBadCredentials)

	case StateLocalAuthCheck:
		user, err := o.accounts.FindLocalUser(ctx, a.req.Login)
		if err != nil || !user.IsActive || !dao.CheckPassword(a.req.Password, user.Password) {
			return a.fail(ReasonBadCredentials, "", MsgBadCredentials)
		}
		return o.establish(a, user.Username)

	case StateDirectoryHit:
		return StatePasswordCheck

	case StatePasswordCheck:
		if o.directory.VerifyPassword(ctx, a.record.DN, a.req.Password) {
			return StateIdentityResolve
		}
		return StateHitButBadAuth

	case StateHitButBadAuth:
		// Пользователь есть в каталоге, но пароль не подошёл. Локальная учётная запись
		// с тем же именем, созданная до появления пользователя в каталоге, войти не сможет.
		if o.fallback {
			if user, err := o.accounts.FindLocalUser(ctx, a.req.Login); err == nil && !user.IsLdapUser() {
				return a.fail(ReasonUsernameConflict, "", MsgUsernameConflict)
			}
		}
		return a.fail(ReasonBadCredentials, "", MsgBadCredentials)

	case StateIdentityResolve:
		username, err := o.resolver.ResolveOrCreate(ctx, a.record)
		var uce *business.UserConflictError
		switch {
		case err == nil:
			return o.establish(a, username)
		case errors.As(err, &uce):
			return a.fail(ReasonUserConflict, "", uce.Error())
		case errors.Is(err, business.ErrRetryable) && !a.retried:
			slog.Warn("Retry identity resolve", "login", a.req.Login, "err", err)
			a.retried = true
			return StateIdentityResolve
		}
		stack_error.LogError("Resolve LDAP user", err, "login", a.req.Login)
		return a.fail(ReasonInternal, "", MsgBadCredentials)
	}

	slog.Error("Unexpected login state", "state", state)
	return a.fail(ReasonInternal, "", MsgBadCredentials)
}

func (o *Orchestrator) establish(a *attempt, username string) State {
	if err := a.session.SetIdentity(username); err != nil {
		slog.Error("Write session", "username", username, "err", err)
		return a.fail(ReasonInternal, "", MsgBadCredentials)
	}
	a.out.Username = username
	return StateSessionEstablished
}
