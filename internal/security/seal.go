package security

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"github.com/fernet/fernet-go"
	"golang.org/x/crypto/chacha20poly1305"
)

var ErrSealBroken = errors.New("sealed value cannot be opened")

// Sealer protects the stored session token at rest with XChaCha20-Poly1305.
// Values sealed with Fernet under one of the legacy keys still open.
type Sealer struct {
	aead   cipher.AEAD
	legacy []*fernet.Key
}

func NewSealer(secret string, legacyKeys []string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("seal secret must not be empty")
	}
	// arbitrary-length secrets are stretched to the 32-byte key size
	sum := sha256.Sum256([]byte(secret))
	aead, err := chacha20poly1305.NewX(sum[:])
	if err != nil {
		return nil, err
	}

	legacy := make([]*fernet.Key, 0, len(legacyKeys))
	for _, raw := range legacyKeys {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		k, err := fernet.DecodeKey(raw)
		if err != nil {
			return nil, err
		}
		legacy = append(legacy, k)
	}
	return &Sealer{aead: aead, legacy: legacy}, nil
}

func (s *Sealer) Seal(plain string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	out := s.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

func (s *Sealer) Open(sealed string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err == nil && len(raw) >= s.aead.NonceSize() {
		n := s.aead.NonceSize()
		if plain, err := s.aead.Open(nil, raw[:n], raw[n:], nil); err == nil {
			return string(plain), nil
		}
	}

	if len(s.legacy) > 0 {
		if plain := fernet.VerifyAndDecrypt([]byte(sealed), 0, s.legacy); plain != nil {
			return string(plain), nil
		}
	}
	return "", ErrSealBroken
}
