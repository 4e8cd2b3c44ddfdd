package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// ErrDecodeFailed signals that a protected destination could not be decrypted,
// which for a well-formed record means the password was wrong.
var ErrDecodeFailed = errors.New("wrong password for protected link")

const pbkdf2Iterations = 10000

// Codec is the reversible transform applied to protected destinations. The
// AES-256-GCM key is derived from the server secret concatenated with the
// link's password, so a wrong password fails authentication instead of
// producing garbage output.
type Codec struct {
	secret []byte
	salt   []byte
}

// NewCodec builds a codec over the server-side base secret.
func NewCodec(secret string) *Codec {
	salt := sha256.Sum256([]byte(secret))
	return &Codec{
		secret: []byte(secret),
		salt:   salt[:],
	}
}

// Encode encrypts the destination URL under the given password. The output is
// URL-safe base64 over nonce||ciphertext and is stable to decode regardless of
// the random nonce chosen per call.
func (c *Codec) Encode(url, password string) (string, error) {
	aead, err := c.aead(password)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(url), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode reverses Encode. Any tampering or password mismatch surfaces as
// ErrDecodeFailed, never as a silently wrong URL.
func (c *Codec) Decode(ciphertext, password string) (string, error) {
	aead, err := c.aead(password)
	if err != nil {
		return "", err
	}

	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecodeFailed
	}
	if len(raw) < aead.NonceSize() {
		return "", ErrDecodeFailed
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	url, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecodeFailed
	}
	return string(url), nil
}

func (c *Codec) aead(password string) (cipher.AEAD, error) {
	key := pbkdf2.Key(append(append([]byte{}, c.secret...), password...), c.salt, pbkdf2Iterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return aead, nil
}
