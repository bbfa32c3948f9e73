package secrets

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecryptionFailed covers unknown/retired key ids, malformed ciphertext,
// and failed authentication. Callers treat it as terminal for the record it
// came from, never as an empty token.
var ErrDecryptionFailed = errors.New("decryption failed")

// Cipher encrypts token material at rest. Every ciphertext carries the id of
// the key that sealed it, so retired keys stay readable during rotation. The
// key set is loaded once at construction and never mutated afterward.
type Cipher struct {
	active string
	keys   map[string]cipher.AEAD
}

// NewCipher builds a cipher over the supplied key set. Keys must be
// chacha20poly1305 sized (32 bytes); active names the key used for new
// ciphertexts and must be present in the set.
func NewCipher(keys map[string][]byte, active string) (*Cipher, error) {
	if len(keys) == 0 {
		return nil, errors.New("no encryption keys provided")
	}
	aeads := make(map[string]cipher.AEAD, len(keys))
	for id, key := range keys {
		if id == "" || strings.Contains(id, ":") {
			return nil, fmt.Errorf("invalid key id %q", id)
		}
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", id, err)
		}
		aeads[id] = aead
	}
	if _, ok := aeads[active]; !ok {
		return nil, fmt.Errorf("active key %q not in key set", active)
	}
	return &Cipher{active: active, keys: aeads}, nil
}

// ActiveKeyID returns the id of the key sealing new ciphertexts.
func (c *Cipher) ActiveKeyID() string {
	return c.active
}

// Encrypt seals plaintext with the active key. The output format is
// "<keyID>:<base64(nonce||sealed)>".
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	aead := c.keys[c.active]
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return c.active + ":" + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens ciphertext with the key named in its prefix.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	keyID, encoded, ok := strings.Cut(ciphertext, ":")
	if !ok {
		return "", fmt.Errorf("%w: missing key id", ErrDecryptionFailed)
	}
	aead, ok := c.keys[keyID]
	if !ok {
		return "", fmt.Errorf("%w: unknown key id %s", ErrDecryptionFailed, keyID)
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil || len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("%w: malformed ciphertext", ErrDecryptionFailed)
	}
	plaintext, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// ParseKeySet decodes the operator-supplied key set (key id -> base64 key)
// handed over at process start.
func ParseKeySet(encoded map[string]string) (map[string][]byte, error) {
	keys := make(map[string][]byte, len(encoded))
	for id, v := range encoded {
		key, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", id, err)
		}
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("key %s: expected %d bytes, got %d", id, chacha20poly1305.KeySize, len(key))
		}
		keys[id] = key
	}
	return keys, nil
}
