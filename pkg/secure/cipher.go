// Package secure 对敏感数据（例如文件提取出的文本）做落盘加密。
package secure

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

const kdfSalt = "praivio_salt"

var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// Cipher 使用 XChaCha20-Poly1305 加解密字符串，密钥由共享密钥经 PBKDF2 派生。
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher 从共享密钥派生 256 位密钥。
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("empty secret")
	}
	key := pbkdf2.Key([]byte(secret), []byte(kdfSalt), 100000, chacha20poly1305.KeySize, sha256.New)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt 返回 base64(nonce || ciphertext)。
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt 是 Encrypt 的逆操作。
func (c *Cipher) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	if len(raw) < c.aead.NonceSize() {
		return "", ErrMalformedCiphertext
	}
	nonce, body := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, body, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	return string(plain), nil
}
