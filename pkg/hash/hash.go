// Package hash 提供基于 PBKDF2-SHA256 的密码哈希。
package hash

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	iterations = 100000
	keyLength  = 32
	saltLength = 32
)

// HashPassword 使用随机盐对密码做哈希，返回十六进制编码的哈希和盐。
func HashPassword(password string) (hash string, salt string, err error) {
	raw := make([]byte, saltLength)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate salt: %w", err)
	}
	salt = hex.EncodeToString(raw)
	return derive(password, salt), salt, nil
}

// CheckPassword 以常量时间比较密码与已存哈希。
func CheckPassword(password, hash, salt string) bool {
	if hash == "" || salt == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(derive(password, salt)), []byte(hash)) == 1
}

func derive(password, salt string) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), iterations, keyLength, sha256.New)
	return hex.EncodeToString(key)
}
