package sessions

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aisa-it/ldapauth/internal/ldapauth/apierrors"
	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiresPeriod время жизни токена доступа.
const TokenExpiresPeriod = time.Hour * 12

type Token struct {
	JWT          *jwt.Token
	SignedString string
	Type         string
}

// Генерация JWT ключа
func GenJwtToken(secret []byte, tokenType string, username string) (*Token, error) {
	u, _ := uuid.NewV4()
	claims := jwt.MapClaims{
		"exp":        jwt.NewNumericDate(time.Now().Add(TokenExpiresPeriod)),
		"iat":        jwt.NewNumericDate(time.Now()),
		"jti":        fmt.Sprintf("%x", u),
		"token_type": tokenType,
		"username":   username,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedString, err := token.SignedString(secret)
	if err != nil {
		return nil, err
	}

	sigStr := signedString[strings.LastIndex(signedString, ".")+1:]
	sig, err := base64.RawURLEncoding.DecodeString(sigStr)
	if err != nil {
		return nil, err
	}
	token.Signature = sig

	return &Token{
		JWT:          token,
		SignedString: signedString,
		Type:         tokenType,
	}, nil
}

// ParseToken проверяет подпись и срок действия токена доступа.
//
// Возвращает:
//   - string: имя пользователя из токена.
//   - error: ErrTokenExpired или ErrTokenInvalid.
func ParseToken(secret []byte, signed string) (string, error) {
	token, err := jwt.Parse(signed, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if errors.Is(err, jwt.ErrTokenExpired) {
		return "", apierrors.ErrTokenExpired
	}
	if err != nil || !token.Valid {
		return "", apierrors.ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["token_type"] != "access" {
		return "", apierrors.ErrTokenInvalid
	}
	username, ok := claims["username"].(string)
	if !ok || username == "" {
		return "", apierrors.ErrTokenInvalid
	}
	return username, nil
}

// TokenSession выдаёт токен доступа вместо записи в cookie (вход через JSON API).
type TokenSession struct {
	secret []byte

	Token *Token
}

func NewTokenSession(secret []byte) *TokenSession {
	return &TokenSession{secret: secret}
}

func (s *TokenSession) SetIdentity(username string) error {
	token, err := GenJwtToken(s.secret, "access", username)
	if err != nil {
		return err
	}
	s.Token = token
	return nil
}

func (s *TokenSession) ClearIdentity() error {
	s.Token = nil
	return nil
}
