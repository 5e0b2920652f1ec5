package authprovider

import (
	"context"
	"crypto/tls"
	"errors"
	"testing"

	"github.com/aisa-it/ldapauth/internal/ldapauth/config"
	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDirectory каталог в памяти: фильтр -> записи, dn -> пароль.
type fakeDirectory struct {
	entries    map[string][]*ldap.Entry
	passwords  map[string]string
	searchErr  error
	filterErrs map[string]error
	dialErr    error

	dials    int
	closes   int
	md5Binds int
	filters  []string
	attrs    []string
}

type fakeConn struct {
	d *fakeDirectory
}

func (c *fakeConn) Bind(username, password string) error {
	if password == "" {
		return ldap.NewError(ldap.ErrorEmptyPassword, errors.New("ldap: empty password not allowed by the client"))
	}
	if pw, ok := c.d.passwords[username]; ok && pw == password {
		return nil
	}
	return ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials"))
}

func (c *fakeConn) MD5Bind(host, username, password string) error {
	c.d.md5Binds++
	return c.Bind(username, password)
}

func (c *fakeConn) StartTLS(*tls.Config) error { return nil }

func (c *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	c.d.filters = append(c.d.filters, req.Filter)
	c.d.attrs = req.Attributes
	if c.d.searchErr != nil {
		return nil, c.d.searchErr
	}
	if err, ok := c.d.filterErrs[req.Filter]; ok {
		return nil, err
	}
	return &ldap.SearchResult{Entries: c.d.entries[req.Filter]}, nil
}

func (c *fakeConn) Close() error {
	c.d.closes++
	return nil
}

func testConfig() config.LdapConfig {
	return config.LdapConfig{
		URI:          "ldap://ldap.example.org",
		BaseDN:       "dc=example,dc=org",
		SearchFilter: "(uid={login})",
		UsernameAttr: "uid",
		EmailAttr:    "mail",
		FullnameAttr: "cn",
		AuthDN:       "cn=reader,dc=example,dc=org",
		AuthPassword: "reader",
	}
}

func newTestProvider(t *testing.T, cfg config.LdapConfig, d *fakeDirectory) *LdapProvider {
	lp, err := NewLdapProvider(cfg)
	require.NoError(t, err)
	lp.dial = func(ctx context.Context, uri string) (conn, error) {
		d.dials++
		if d.dialErr != nil {
			return nil, d.dialErr
		}
		return &fakeConn{d}, nil
	}
	return lp
}

func entry(dn, uid, mail, cn string) *ldap.Entry {
	attrs := map[string][]string{"uid": {uid}, "mail": {mail}}
	if cn != "" {
		attrs["cn"] = []string{cn}
	}
	return ldap.NewEntry(dn, attrs)
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		entries: map[string][]*ldap.Entry{
			"(uid=jdoe)": {entry("uid=jdoe,ou=people,dc=example,dc=org", "jdoe", "jdoe@example.org", "John Doe")},
			"(uid=twin)": {
				entry("uid=twin,ou=a,dc=example,dc=org", "twin", "twin-a@example.org", ""),
				entry("uid=twin,ou=b,dc=example,dc=org", "twin", "twin-b@example.org", ""),
			},
			"(uid=nomail)": {entry("uid=nomail,dc=example,dc=org", "nomail", "", "")},
		},
		passwords: map[string]string{
			"cn=reader,dc=example,dc=org":          "reader",
			"uid=jdoe,ou=people,dc=example,dc=org": "hunter2",
		},
	}
}

func TestFindUser(t *testing.T) {
	d := newFakeDirectory()
	lp := newTestProvider(t, testConfig(), d)

	user, err := lp.FindUser(context.Background(), "jdoe")
	require.NoError(t, err)
	assert.Equal(t, &LdapUser{
		DN:       "uid=jdoe,ou=people,dc=example,dc=org",
		Username: "jdoe",
		Email:    "jdoe@example.org",
		FullName: "John Doe",
	}, user)
	assert.Equal(t, []string{"uid", "mail", "cn"}, d.attrs)
	assert.Equal(t, 1, d.dials)
	assert.Equal(t, 1, d.closes)
}

func TestFindUserNotFound(t *testing.T) {
	d := newFakeDirectory()
	lp := newTestProvider(t, testConfig(), d)

	_, err := lp.FindUser(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, d.closes)
}

func TestFindUserEscapesLogin(t *testing.T) {
	d := newFakeDirectory()
	lp := newTestProvider(t, testConfig(), d)

	_, err := lp.FindUser(context.Background(), "*)(uid=*")
	assert.ErrorIs(t, err, ErrNotFound)
	require.Len(t, d.filters, 1)
	assert.Equal(t, `(uid=\2a\29\28uid=\2a)`, d.filters[0])
}

func TestFindUserMissingRequiredAttribute(t *testing.T) {
	d := newFakeDirectory()
	lp := newTestProvider(t, testConfig(), d)

	_, err := lp.FindUser(context.Background(), "nomail")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindUserMultipleMatches(t *testing.T) {
	t.Run("log mode on primary filter", func(t *testing.T) {
		d := newFakeDirectory()
		lp := newTestProvider(t, testConfig(), d)

		_, err := lp.FindUser(context.Background(), "twin")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("raise mode on alternative filter", func(t *testing.T) {
		d := newFakeDirectory()
		d.entries["(mail=twin)"] = d.entries["(uid=twin)"]
		delete(d.entries, "(uid=twin)")

		cfg := testConfig()
		cfg.SearchAlt = "(mail={login})"
		cfg.SearchAltMsg = "Please use your unique id"
		lp := newTestProvider(t, cfg, d)

		_, err := lp.FindUser(context.Background(), "twin")
		var mm *MultipleMatchError
		require.ErrorAs(t, err, &mm)
		assert.Equal(t, "Please use your unique id", mm.Message)
		assert.Equal(t, 2, mm.Count)
		assert.Equal(t, []string{"(uid=twin)", "(mail=twin)"}, d.filters)
		assert.Equal(t, 1, d.closes)
	})

	t.Run("use first", func(t *testing.T) {
		d := newFakeDirectory()
		cfg := testConfig()
		cfg.UseFirst = true
		lp := newTestProvider(t, cfg, d)

		user, err := lp.FindUser(context.Background(), "twin")
		require.NoError(t, err)
		assert.Equal(t, "twin-a@example.org", user.Email)
	})
}

func TestFindUserAlternativeFilterHit(t *testing.T) {
	d := newFakeDirectory()
	d.entries["(mail=jdoe@example.org)"] = d.entries["(uid=jdoe)"]

	cfg := testConfig()
	cfg.SearchAlt = "(mail={login})"
	cfg.SearchAltMsg = "Please use your unique id"
	lp := newTestProvider(t, cfg, d)

	user, err := lp.FindUser(context.Background(), "jdoe@example.org")
	require.NoError(t, err)
	assert.Equal(t, "jdoe", user.Username)
}

func TestFindUserServiceBind(t *testing.T) {
	t.Run("invalid service credentials", func(t *testing.T) {
		d := newFakeDirectory()
		cfg := testConfig()
		cfg.AuthPassword = "wrong"
		lp := newTestProvider(t, cfg, d)

		_, err := lp.FindUser(context.Background(), "jdoe")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Empty(t, d.filters)
		assert.Equal(t, 1, d.closes)
	})

	t.Run("sasl digest-md5", func(t *testing.T) {
		d := newFakeDirectory()
		cfg := testConfig()
		cfg.AuthMethod = config.AuthSaslDigestMD5
		lp := newTestProvider(t, cfg, d)

		_, err := lp.FindUser(context.Background(), "jdoe")
		require.NoError(t, err)
		assert.Equal(t, 1, d.md5Binds)
	})

	t.Run("anonymous search", func(t *testing.T) {
		d := newFakeDirectory()
		cfg := testConfig()
		cfg.AuthDN = ""
		cfg.AuthPassword = ""
		lp := newTestProvider(t, cfg, d)

		_, err := lp.FindUser(context.Background(), "jdoe")
		require.NoError(t, err)
	})
}

func TestFindUserDirectoryErrors(t *testing.T) {
	tests := []struct {
		name string
		code uint16
	}{
		{"server down", ldap.LDAPResultServerDown},
		{"operations error", ldap.LDAPResultOperationsError},
		{"no such object", ldap.LDAPResultNoSuchObject},
		{"referral", ldap.LDAPResultReferral},
		{"filter error", ldap.LDAPResultFilterError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFakeDirectory()
			d.searchErr = ldap.NewError(tt.code, errors.New(tt.name))
			lp := newTestProvider(t, testConfig(), d)

			_, err := lp.FindUser(context.Background(), "jdoe")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.Equal(t, 1, d.closes)
		})
	}

	t.Run("alternative filter after primary search error", func(t *testing.T) {
		d := newFakeDirectory()
		d.filterErrs = map[string]error{
			"(uid=jdoe)": ldap.NewError(ldap.LDAPResultFilterError, errors.New("bad filter")),
		}
		d.entries["(mail=jdoe)"] = []*ldap.Entry{entry("uid=jdoe,ou=people,dc=example,dc=org", "jdoe", "jdoe@example.org", "")}
		cfg := testConfig()
		cfg.SearchAlt = "(mail={login})"
		cfg.SearchAltMsg = "Please use your unique id"
		lp := newTestProvider(t, cfg, d)

		user, err := lp.FindUser(context.Background(), "jdoe")
		require.NoError(t, err)
		assert.Equal(t, "jdoe", user.Username)
		assert.Equal(t, []string{"(uid=jdoe)", "(mail=jdoe)"}, d.filters)
		assert.Equal(t, 1, d.closes)
	})

	t.Run("unreachable", func(t *testing.T) {
		d := newFakeDirectory()
		d.dialErr = ldap.NewError(ldap.ErrorNetwork, errors.New("connection refused"))
		lp := newTestProvider(t, testConfig(), d)

		_, err := lp.FindUser(context.Background(), "jdoe")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, 0, d.closes)
	})
}

func TestVerifyPassword(t *testing.T) {
	d := newFakeDirectory()
	lp := newTestProvider(t, testConfig(), d)
	ctx := context.Background()
	dn := "uid=jdoe,ou=people,dc=example,dc=org"

	assert.True(t, lp.VerifyPassword(ctx, dn, "hunter2"))
	assert.False(t, lp.VerifyPassword(ctx, dn, "wrong"))
	assert.Equal(t, 2, d.dials)
	assert.Equal(t, 2, d.closes)

	// empty password never reaches the directory
	assert.False(t, lp.VerifyPassword(ctx, dn, ""))
	assert.Equal(t, 2, d.dials)

	d.dialErr = ldap.NewError(ldap.ErrorNetwork, errors.New("connection refused"))
	assert.False(t, lp.VerifyPassword(ctx, dn, "hunter2"))
}

func TestCategorizeError(t *testing.T) {
	assert.Equal(t, ErrorCategoryConnection, newDirectoryError("dial", ldap.NewError(ldap.ErrorNetwork, errors.New("x"))).Category)
	assert.Equal(t, ErrorCategoryAuthentication, newDirectoryError("bind", ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("x"))).Category)
	assert.Equal(t, ErrorCategoryFilter, newDirectoryError("search", ldap.NewError(ldap.LDAPResultFilterError, errors.New("x"))).Category)
	assert.Equal(t, ErrorCategoryUnknown, newDirectoryError("search", errors.New("x")).Category)

	de := newDirectoryError("bind", ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("x")))
	assert.Contains(t, de.Message(), "LDAP_AUTH_DN")
}

func TestNewLdapProvider(t *testing.T) {
	cfg := testConfig()
	cfg.URI = "ldap://"
	_, err := NewLdapProvider(cfg)
	assert.Error(t, err)
}
