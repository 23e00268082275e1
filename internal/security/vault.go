package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"

	apperrors "market-tracker/internal/errors"
)

const (
	// EncryptionKeySize is the size of the AES-256 key in bytes.
	EncryptionKeySize = 32
	// SaltSize is the size of the salt for key derivation.
	SaltSize = 16
	// PBKDF2Iterations is the number of iterations for key derivation.
	PBKDF2Iterations = 100000

	// VaultFileName is the sealed token file inside the config directory.
	VaultFileName = "credentials.enc"
)

// SealedToken is the on-disk form of the API token.
type SealedToken struct {
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
	Version    int    `json:"version"`
}

// TokenVault keeps the quote API token encrypted at rest so it never has to
// live in a config file or shell history.
type TokenVault struct {
	path string
}

// NewTokenVault creates a vault stored in configDir.
func NewTokenVault(configDir string) *TokenVault {
	return &TokenVault{path: filepath.Join(configDir, VaultFileName)}
}

// Path returns the sealed file location.
func (v *TokenVault) Path() string {
	return v.path
}

// Exists reports whether a sealed token is present.
func (v *TokenVault) Exists() bool {
	_, err := os.Stat(v.path)
	return err == nil
}

// Seal encrypts token with a key derived from password and writes it with
// owner-only permissions.
func (v *TokenVault) Seal(password, token string) error {
	if password == "" {
		return apperrors.NewSecurityError("seal", "empty password", nil)
	}
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("generating salt: %w", err)
	}

	nonce, ciphertext, err := encrypt([]byte(token), deriveKey(password, salt))
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(SealedToken{
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Version:    1,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing sealed token: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(v.path), 0700); err != nil {
		return fmt.Errorf("creating vault directory: %w", err)
	}
	if err := os.WriteFile(v.path, data, 0600); err != nil {
		return fmt.Errorf("writing sealed token: %w", err)
	}
	return nil
}

// Open decrypts the sealed token.
func (v *TokenVault) Open(password string) (string, error) {
	data, err := os.ReadFile(v.path)
	if err != nil {
		return "", fmt.Errorf("reading sealed token: %w", err)
	}

	var sealed SealedToken
	if err := json.Unmarshal(data, &sealed); err != nil {
		return "", fmt.Errorf("parsing sealed token: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(sealed.Salt)
	if err != nil {
		return "", fmt.Errorf("decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(sealed.Nonce)
	if err != nil {
		return "", fmt.Errorf("decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(sealed.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}

	plaintext, err := decrypt(ciphertext, deriveKey(password, salt), nonce)
	if err != nil {
		return "", apperrors.NewSecurityError("open", "wrong password or corrupted vault", apperrors.ErrCredentialAccess)
	}
	return string(plaintext), nil
}

// deriveKey derives an encryption key from a password using PBKDF2.
func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, PBKDF2Iterations, EncryptionKeySize, sha256.New)
}

// encrypt encrypts plaintext using AES-256-GCM.
func encrypt(plaintext, key []byte) (nonce, ciphertext []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("creating GCM: %w", err)
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("generating nonce: %w", err)
	}
	return nonce, gcm.Seal(nil, nonce, plaintext, nil), nil
}

// decrypt decrypts ciphertext using AES-256-GCM.
func decrypt(ciphertext, key, nonce []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("invalid nonce size %d", len(nonce))
	}
	return gcm.Open(nil, nonce, ciphertext, nil)
}
