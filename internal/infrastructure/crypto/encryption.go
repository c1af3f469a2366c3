// Package crypto keeps the upload service token encrypted at rest in the config file.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// SaltFileName is the per-installation salt stored in the config directory.
const SaltFileName = ".salt"

const saltSize = 32

// hkdfInfo binds derived keys to this use.
var hkdfInfo = []byte("scribesync remote token v1")

// ErrInvalidCiphertext is returned for data that does not open under the key.
var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// Encryptor seals short secrets with XChaCha20-Poly1305.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor derives a key from the hostname and the salt in configDir,
// creating the salt on first use. Tokens written on one machine do not
// decrypt on another.
func NewEncryptor(configDir string) (*Encryptor, error) {
	salt, err := readSalt(filepath.Join(configDir, SaltFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(host), salt, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	return NewEncryptorWithKey(key)
}

// NewEncryptorWithKey uses key directly. It must be 32 bytes.
func NewEncryptorWithKey(key []byte) (*Encryptor, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("invalid key: %w", err)
	}
	return &Encryptor{aead: aead}, nil
}

// Encrypt returns base64(nonce || ciphertext). Empty input encrypts to "".
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(plaintext)+e.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(e.aead.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

// Decrypt reverses Encrypt. Empty input decrypts to "".
func (e *Encryptor) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	if len(data) < e.aead.NonceSize()+e.aead.Overhead() {
		return "", ErrInvalidCiphertext
	}

	nonce, sealed := data[:e.aead.NonceSize()], data[e.aead.NonceSize():]
	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plaintext), nil
}

// readSalt returns the salt at path, writing a fresh one when it is missing
// or malformed.
func readSalt(path string) ([]byte, error) {
	if salt, err := os.ReadFile(path); err == nil && len(salt) == saltSize {
		return salt, nil
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, salt, 0600); err != nil {
		return nil, fmt.Errorf("failed to write salt file: %w", err)
	}
	return salt, nil
}
