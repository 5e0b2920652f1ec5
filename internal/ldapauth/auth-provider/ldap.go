package authprovider

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/aisa-it/ldapauth/internal/ldapauth/config"
	"github.com/go-ldap/ldap/v3"
)

// NetworkTimeout ограничивает установку соединения и каждую операцию с каталогом.
const NetworkTimeout = 10 * time.Second

// NonUniqueMode поведение поиска, если фильтру соответствует несколько записей.
type NonUniqueMode int

const (
	// NonUniqueLog ошибка настройки фильтра: пишется в лог, пользователь считается не найденным.
	NonUniqueLog NonUniqueMode = iota
	// NonUniqueRaise неоднозначность показывается пользователю через MultipleMatchError.
	NonUniqueRaise
)

// conn подмножество *ldap.Conn, используемое провайдером.
type conn interface {
	Bind(username, password string) error
	MD5Bind(host, username, password string) error
	StartTLS(config *tls.Config) error
	Search(searchRequest *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

type dialFunc func(ctx context.Context, uri string) (conn, error)

type LdapProvider struct {
	cfg  config.LdapConfig
	host string
	dial dialFunc
}

// NewLdapProvider создаёт провайдер каталога.
//
// Параметры:
//   - cfg: параметры каталога из конфигурации.
//
// Возвращает:
//   - *LdapProvider: провайдер.
//   - error: ошибка разбора URI каталога.
func NewLdapProvider(cfg config.LdapConfig) (*LdapProvider, error) {
	u, err := url.Parse(cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("parse LDAP URI: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("LDAP URI %q has no host", cfg.URI)
	}

	return &LdapProvider{
		cfg:  cfg,
		host: u.Hostname(),
		dial: dialLDAP(cfg.TraceLevel),
	}, nil
}

func dialLDAP(traceLevel int) dialFunc {
	return func(ctx context.Context, uri string) (conn, error) {
		if err := ctx.Err(); err != nil {
			return nil, ldap.NewError(ldap.ErrorNetwork, err)
		}

		l, err := ldap.DialURL(uri, ldap.DialWithDialer(&net.Dialer{Timeout: NetworkTimeout}))
		if err != nil {
			return nil, err
		}
		l.SetTimeout(NetworkTimeout)
		if traceLevel > 0 {
			l.Debug.Enable(true)
		}
		return l, nil
	}
}

// withConn открывает соединение, выполняет fn и закрывает соединение на любом пути выхода.
func (lp *LdapProvider) withConn(ctx context.Context, fn func(c conn) error) error {
	c, err := lp.dial(ctx, lp.cfg.URI)
	if err != nil {
		return newDirectoryError("dial", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			slog.Debug("Close LDAP connection", "err", err)
		}
	}()

	if lp.cfg.StartTLS {
		if err := c.StartTLS(&tls.Config{ServerName: lp.host}); err != nil {
			return newDirectoryError("starttls", err)
		}
	}

	return fn(c)
}

// serviceBind привязывает соединение к служебной учётной записи, если она настроена.
func (lp *LdapProvider) serviceBind(c conn) error {
	if lp.cfg.AuthDN == "" {
		return nil
	}

	var err error
	switch lp.cfg.AuthMethod {
	case config.AuthSimple:
		err = c.Bind(lp.cfg.AuthDN, lp.cfg.AuthPassword)
	case config.AuthSaslDigestMD5:
		err = c.MD5Bind(lp.host, lp.cfg.AuthDN, lp.cfg.AuthPassword)
	default:
		err = ldap.NewError(ldap.LDAPResultAuthMethodNotSupported, fmt.Errorf("auth method %s", lp.cfg.AuthMethod))
	}
	if err != nil {
		return newDirectoryError("bind", err)
	}
	return nil
}

// Check проверяет доступность каталога и служебную учётную запись.
func (lp *LdapProvider) Check(ctx context.Context) error {
	return lp.withConn(ctx, lp.serviceBind)
}

// FindUser ищет запись каталога по логину.
// Сначала по основному фильтру (неоднозначность и ошибки поиска пишутся в лог), затем, если запись не найдена
// и задан альтернативный фильтр, по нему (неоднозначность возвращается как MultipleMatchError).
// Ошибки соединения и служебной привязки прерывают поиск.
func (lp *LdapProvider) FindUser(ctx context.Context, login string) (*LdapUser, error) {
	var res *LdapUser
	err := lp.withConn(ctx, func(c conn) error {
		if err := lp.serviceBind(c); err != nil {
			return err
		}

		var err error
		res, err = lp.search(c, lp.cfg.SearchFilter, login, NonUniqueLog)
		// ошибка основного поиска (фильтр, base dn) не мешает поиску по альтернативному фильтру
		var de *DirectoryError
		if errors.As(err, &de) && lp.cfg.SearchAlt != "" {
			slog.Error(de.Message(), "login", login, "err", err)
			err = ErrNotFound
		}
		if errors.Is(err, ErrNotFound) && lp.cfg.SearchAlt != "" {
			res, err = lp.search(c, lp.cfg.SearchAlt, login, NonUniqueRaise)
		}
		return err
	})

	var de *DirectoryError
	if errors.As(err, &de) {
		slog.Error(de.Message(), "login", login, "err", err)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (lp *LdapProvider) search(c conn, template string, login string, mode NonUniqueMode) (*LdapUser, error) {
	filter := strings.ReplaceAll(template, config.LoginPlaceholder, ldap.EscapeFilter(login))

	searchRequest := ldap.NewSearchRequest(
		lp.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, int(NetworkTimeout/time.Second), false,
		filter,
		lp.cfg.Attributes(),
		nil,
	)

	sr, err := c.Search(searchRequest)
	if err != nil {
		return nil, newDirectoryError("search", err)
	}

	if lp.cfg.DebugLevel > 0 {
		slog.Info("LDAP search", "filter", filter, "entries", len(sr.Entries))
	}

	switch {
	case len(sr.Entries) == 0:
		return nil, ErrNotFound
	case len(sr.Entries) > 1 && !lp.cfg.UseFirst:
		if mode == NonUniqueRaise {
			return nil, &MultipleMatchError{Message: lp.cfg.SearchAltMsg, Count: len(sr.Entries)}
		}
		slog.Error("LDAP search returned more than one entry, ignoring. Fix the search to return only 1 or 0 results.",
			"filter", filter,
			"entries", len(sr.Entries),
		)
		return nil, ErrNotFound
	}

	return lp.decode(sr.Entries[0])
}

func (lp *LdapProvider) decode(entry *ldap.Entry) (*LdapUser, error) {
	user := &LdapUser{
		DN:       entry.DN,
		Username: entry.GetAttributeValue(lp.cfg.UsernameAttr),
		Email:    entry.GetAttributeValue(lp.cfg.EmailAttr),
	}

	if user.Username == "" {
		slog.Error("LDAP search did not return a username", "dn", entry.DN, "attr", lp.cfg.UsernameAttr)
		return nil, ErrNotFound
	}
	if user.Email == "" {
		slog.Error("LDAP search did not return an email", "dn", entry.DN, "attr", lp.cfg.EmailAttr)
		return nil, ErrNotFound
	}

	if lp.cfg.FullnameAttr != "" {
		user.FullName = entry.GetAttributeValue(lp.cfg.FullnameAttr)
	}
	if lp.cfg.AboutAttr != "" {
		user.About = entry.GetAttributeValue(lp.cfg.AboutAttr)
	}
	return user, nil
}

// VerifyPassword проверяет пароль привязкой к каталогу от имени записи dn.
// Пустой пароль отклоняется без обращения к каталогу: такие привязки часто выполняются анонимно.
func (lp *LdapProvider) VerifyPassword(ctx context.Context, dn string, password string) bool {
	if password == "" || dn == "" {
		return false
	}

	err := lp.withConn(ctx, func(c conn) error {
		if err := c.Bind(dn, password); err != nil {
			return newDirectoryError("bind", err)
		}
		return nil
	})
	if err == nil {
		return true
	}

	var de *DirectoryError
	if errors.As(err, &de) && de.Code == ldap.LDAPResultInvalidCredentials {
		if lp.cfg.DebugLevel > 0 {
			slog.Info("LDAP bind rejected", "dn", dn)
		}
		return false
	}
	slog.Error("LDAP bind", "dn", dn, "err", err)
	return false
}
