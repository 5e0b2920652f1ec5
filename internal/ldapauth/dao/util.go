package dao

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/sethvargo/go-password/password"
	"golang.org/x/crypto/pbkdf2"
)

const pbkdf2Iterations = 260000

// Генерация случайного пароля
func GenPassword() string {
	return password.MustGenerate(12, 6, 0, false, false)
}

// Генерация хэша пароля для базы
func GenPasswordHash(password string) string {
	letters := []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	salt := make([]rune, 32)
	for i := range salt {
		nBig, _ := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		salt[i] = letters[nBig.Int64()]
	}

	return fmt.Sprintf("pbkdf2_sha256$%d$%s$%s",
		pbkdf2Iterations,
		string(salt),
		base64.StdEncoding.EncodeToString(pbkdf2.Key([]byte(password), []byte(string(salt)), pbkdf2Iterations, 32, sha256.New)),
	)
}

// Проверка хешированого пароля
func CheckPassword(password string, hash string) bool {
	ss := strings.Split(hash, "$")
	if len(ss) != 4 || ss[0] != "pbkdf2_sha256" {
		return false
	}

	iterations, err := strconv.Atoi(ss[1])
	if err != nil || iterations <= 0 {
		return false
	}

	key := base64.StdEncoding.EncodeToString(pbkdf2.Key([]byte(password), []byte(ss[2]), iterations, 32, sha256.New))
	return subtle.ConstantTimeCompare([]byte(key), []byte(ss[3])) == 1
}
