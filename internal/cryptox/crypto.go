// Package cryptox wraps the primitives used for credentials: argon2id key
// derivation, verifier hashing and AES-256-GCM sealing of small records.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/dmitrijs2005/neoma/internal/common"
	"golang.org/x/crypto/argon2"
)

// NonceSize is the AES-GCM nonce length produced by EncryptEntry.
const NonceSize = 12

// SaltSize is the per-user salt length used for password hashing.
const SaltSize = 16

var ErrInvalidNonce = errors.New("invalid nonce")

// signupKeySalt scopes server-secret derivation; it is not a per-record salt.
var signupKeySalt = []byte("neoma/pending-signup/v1")

func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// HashPassword returns a fresh salt and the verifier stored for password.
func HashPassword(password string) (salt, verifier []byte, err error) {
	salt = make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, err
	}
	return salt, MakeVerifier(DeriveMasterKey([]byte(password), salt)), nil
}

// KeyFromSecret turns a configured secret into a 32-byte AES key. A 64-char
// hex string is used as-is; anything else is stretched with argon2id.
func KeyFromSecret(secret string) []byte {
	if len(secret) == 64 {
		if k, err := hex.DecodeString(secret); err == nil {
			return k
		}
	}
	return DeriveMasterKey([]byte(secret), signupKeySalt)
}

// EncryptEntry serializes entry to JSON and seals it with AES-GCM under key
// (16, 24 or 32 bytes). A fresh random nonce is generated per call and
// returned alongside the ciphertext.
func EncryptEntry(entry any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(entry)
	if err != nil {
		return nil, nil, err
	}
	defer common.WipeByteArray(plaintext)

	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	return aesgcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// DecryptEntry opens ciphertext produced by EncryptEntry and unmarshals the
// JSON into v. Tampered data, a wrong key or a wrong nonce all fail.
func DecryptEntry(ciphertext, nonce, key []byte, v any) error {
	if len(nonce) != NonceSize {
		return ErrInvalidNonce
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(plaintext)

	return json.Unmarshal(plaintext, v)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
