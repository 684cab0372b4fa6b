package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

// scrypt parameters: interactive-strength, per the x/crypto recommendation.
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	saltLen      = 16
	vaultVersion = 1
)

// KeyVault encrypts account private keys at rest with a master password.
// Each sealed blob carries its own random salt and nonce, so one password
// protects any number of keys.
type KeyVault struct {
	password []byte
}

// NewKeyVault creates a vault bound to the master password.
func NewKeyVault(password string) (*KeyVault, error) {
	if password == "" {
		return nil, errors.New("crypto/keyvault: empty master password")
	}
	return &KeyVault{password: []byte(password)}, nil
}

// Seal encrypts plaintext (a hex private key) with AES-256-GCM under a
// scrypt-derived key. Blob layout: version || salt || nonce || ciphertext.
func (v *KeyVault) Seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("crypto/keyvault: salt: %w", err)
	}
	aead, err := v.aead(salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto/keyvault: nonce: %w", err)
	}

	blob := make([]byte, 0, 1+saltLen+len(nonce)+len(plaintext)+aead.Overhead())
	blob = append(blob, vaultVersion)
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	return aead.Seal(blob, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal. A wrong password surfaces as an
// authentication failure, not garbage plaintext.
func (v *KeyVault) Open(blob []byte) ([]byte, error) {
	if len(blob) < 1+saltLen {
		return nil, errors.New("crypto/keyvault: blob too short")
	}
	if blob[0] != vaultVersion {
		return nil, fmt.Errorf("crypto/keyvault: unsupported blob version %d", blob[0])
	}
	salt := blob[1 : 1+saltLen]
	aead, err := v.aead(salt)
	if err != nil {
		return nil, err
	}
	rest := blob[1+saltLen:]
	if len(rest) < aead.NonceSize() {
		return nil, errors.New("crypto/keyvault: blob too short")
	}
	nonce, ciphertext := rest[:aead.NonceSize()], rest[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto/keyvault: decrypt: %w", err)
	}
	return plaintext, nil
}

func (v *KeyVault) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(v.password, salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("crypto/keyvault: derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
