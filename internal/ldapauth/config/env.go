package config

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupportedAuthMethod = errors.New("unsupported LDAP auth method")

// AuthMethod способ привязки служебной учётной записи к каталогу.
type AuthMethod int

const (
	AuthSimple AuthMethod = iota
	AuthSaslDigestMD5
)

func (m AuthMethod) String() string {
	switch m {
	case AuthSimple:
		return "SIMPLE"
	case AuthSaslDigestMD5:
		return "SASL"
	}
	return fmt.Sprintf("AuthMethod(%d)", int(m))
}

// UnmarshalText разбирает значение LDAP_AUTH_METHOD. Допустимы SIMPLE и SASL.
func (m *AuthMethod) UnmarshalText(text []byte) error {
	switch strings.ToUpper(strings.TrimSpace(string(text))) {
	case "", "SIMPLE":
		*m = AuthSimple
	case "SASL":
		*m = AuthSaslDigestMD5
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedAuthMethod, string(text))
	}
	return nil
}

// Role роль участника организации.
type Role string

const (
	RoleMember Role = "member"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

func (r *Role) UnmarshalText(text []byte) error {
	*r = Role(strings.ToLower(strings.TrimSpace(string(text))))
	return nil
}
