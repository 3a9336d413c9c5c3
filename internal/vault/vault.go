// Package vault encrypts account credentials before they reach the
// database. It never falls back to plaintext storage: with no key
// configured, encryption fails instead.
package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/inboxforge/warmline/internal/errdefs"
)

// ciphertextPrefix marks vault-produced values so legacy plaintext
// rows can be told apart from encrypted ones.
const ciphertextPrefix = "wv1:"

const nonceSize = 24

// Vault performs authenticated symmetric encryption of credentials
type Vault struct {
	key    [32]byte
	hasKey bool
}

// New creates a vault from the configured key string. An empty key
// yields a vault that refuses to encrypt.
func New(key string) *Vault {
	v := &Vault{}
	if key == "" {
		log.Printf("[Vault] ENCRYPTION_KEY not set, credential encryption disabled")
		return v
	}
	v.key = sha256.Sum256([]byte(key))
	v.hasKey = true
	return v
}

// Available reports whether the vault can encrypt
func (v *Vault) Available() bool {
	return v.hasKey
}

// Encrypt seals a credential with a fresh random nonce. Two
// encryptions of the same input produce different ciphertexts.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	if !v.hasKey {
		return "", fmt.Errorf("%w: set ENCRYPTION_KEY to store credentials", errdefs.ErrEncryptionUnavailable)
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("vault: nonce generation failed: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &v.key)
	return ciphertextPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a vault ciphertext. Values without the vault prefix
// are treated as legacy plaintext and returned unchanged.
func (v *Vault) Decrypt(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if !strings.HasPrefix(value, ciphertextPrefix) {
		if v.hasKey {
			log.Printf("[Vault] stored credential is not encrypted, assuming legacy plaintext")
		}
		return value, nil
	}
	if !v.hasKey {
		return "", fmt.Errorf("%w: data is encrypted but no key is configured", errdefs.ErrEncryptionUnavailable)
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, ciphertextPrefix))
	if err != nil {
		return "", fmt.Errorf("vault: malformed ciphertext: %w", err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", fmt.Errorf("vault: ciphertext too short")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	opened, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &v.key)
	if !ok {
		return "", fmt.Errorf("vault: decryption failed, wrong key?")
	}
	return string(opened), nil
}
