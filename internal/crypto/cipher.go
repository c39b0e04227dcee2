package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// keyHexLength is the required length of the hex-encoded AES-256 key.
	keyHexLength = 64

	// nonceSize is the GCM nonce length in bytes.
	nonceSize = 16

	// tokenAAD binds ciphertexts to their purpose; a blob encrypted for
	// another use cannot be decrypted as an OAuth token.
	tokenAAD = "oauth-token"
)

var (
	// ErrKeyNotConfigured indicates the encryption key is missing or malformed
	ErrKeyNotConfigured = errors.New("crypto: encryption key is not configured (expected 64 hex characters)")

	// ErrEmptyPlaintext indicates Encrypt was called with an empty string
	ErrEmptyPlaintext = errors.New("crypto: cannot encrypt empty plaintext")

	// ErrDecryptFailed indicates missing fields, tampering, or a wrong key.
	// Callers must treat this as terminal for the affected token.
	ErrDecryptFailed = errors.New("crypto: decryption failed")
)

// EncryptedToken is the persisted form of a protected token. All fields
// are hex-encoded and the whole value serializes to a JSON text blob.
type EncryptedToken struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
	Tag        string `json:"tag"`
}

// Marshal serializes the token to its JSON storage form.
func (t *EncryptedToken) Marshal() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("crypto: marshal encrypted token: %w", err)
	}
	return string(data), nil
}

// ParseEncryptedToken deserializes a stored JSON blob back into an
// EncryptedToken. Returns ErrDecryptFailed for malformed blobs so that
// corrupted rows surface the same way as tampered ciphertexts.
func ParseEncryptedToken(s string) (*EncryptedToken, error) {
	var t EncryptedToken
	if err := json.Unmarshal([]byte(s), &t); err != nil {
		return nil, fmt.Errorf("%w: malformed token blob", ErrDecryptFailed)
	}
	return &t, nil
}

// TokenCipher encrypts and decrypts token strings with AES-256-GCM.
// It performs no I/O and is safe for concurrent use.
type TokenCipher struct {
	key []byte
}

// NewTokenCipher creates a cipher from a 64-hex-character key.
func NewTokenCipher(hexKey string) (*TokenCipher, error) {
	if len(hexKey) != keyHexLength {
		return nil, ErrKeyNotConfigured
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, ErrKeyNotConfigured
	}
	return &TokenCipher{key: key}, nil
}

func (c *TokenCipher) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("crypto: create cipher: %w", err)
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}

// Encrypt protects a token string, producing a fresh random nonce and a
// detached authentication tag.
func (c *TokenCipher) Encrypt(plaintext string) (*EncryptedToken, error) {
	if plaintext == "" {
		return nil, ErrEmptyPlaintext
	}

	aead, err := c.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), []byte(tokenAAD))
	tagStart := len(sealed) - aead.Overhead()

	return &EncryptedToken{
		Ciphertext: hex.EncodeToString(sealed[:tagStart]),
		Nonce:      hex.EncodeToString(nonce),
		Tag:        hex.EncodeToString(sealed[tagStart:]),
	}, nil
}

// Decrypt recovers the plaintext token. Any missing field, tampered
// ciphertext, or wrong key yields ErrDecryptFailed; a plaintext is never
// returned on verification failure.
func (c *TokenCipher) Decrypt(t *EncryptedToken) (string, error) {
	if t == nil || t.Ciphertext == "" || t.Nonce == "" || t.Tag == "" {
		return "", fmt.Errorf("%w: missing field", ErrDecryptFailed)
	}

	ciphertext, err := hex.DecodeString(t.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: malformed ciphertext", ErrDecryptFailed)
	}
	nonce, err := hex.DecodeString(t.Nonce)
	if err != nil || len(nonce) != nonceSize {
		return "", fmt.Errorf("%w: malformed nonce", ErrDecryptFailed)
	}
	tag, err := hex.DecodeString(t.Tag)
	if err != nil {
		return "", fmt.Errorf("%w: malformed tag", ErrDecryptFailed)
	}

	aead, err := c.aead()
	if err != nil {
		return "", err
	}

	plaintext, err := aead.Open(nil, nonce, append(ciphertext, tag...), []byte(tokenAAD))
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecryptFailed)
	}
	return string(plaintext), nil
}

// EncryptTokenPair encrypts an access/refresh token pair into their JSON
// storage forms. The refresh token may be absent; an empty refresh token
// produces an empty stored value.
func (c *TokenCipher) EncryptTokenPair(access, refresh string) (string, string, error) {
	encAccess, err := c.Encrypt(access)
	if err != nil {
		return "", "", err
	}
	accessBlob, err := encAccess.Marshal()
	if err != nil {
		return "", "", err
	}

	if refresh == "" {
		return accessBlob, "", nil
	}

	encRefresh, err := c.Encrypt(refresh)
	if err != nil {
		return "", "", err
	}
	refreshBlob, err := encRefresh.Marshal()
	if err != nil {
		return "", "", err
	}
	return accessBlob, refreshBlob, nil
}

// DecryptTokenPair is the inverse of EncryptTokenPair.
func (c *TokenCipher) DecryptTokenPair(accessBlob, refreshBlob string) (string, string, error) {
	encAccess, err := ParseEncryptedToken(accessBlob)
	if err != nil {
		return "", "", err
	}
	access, err := c.Decrypt(encAccess)
	if err != nil {
		return "", "", err
	}

	if refreshBlob == "" {
		return access, "", nil
	}

	encRefresh, err := ParseEncryptedToken(refreshBlob)
	if err != nil {
		return "", "", err
	}
	refresh, err := c.Decrypt(encRefresh)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}
