// Package cryptox provides the fixed symmetric-crypto suite used by the
// server: AES-256-GCM for envelope encryption and Argon2id for hashing
// service-credential secrets.
//
// Ciphertext, IV and GCM tag are kept as three separate values because they
// are stored in three separate columns; Seal's appended tag is split off
// before returning.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

const (
	// IVSize is the GCM nonce length in bytes.
	IVSize = 12
	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16
	// SecretHashSize is the Argon2id output length in bytes.
	SecretHashSize = 32
)

// Encrypt seals plaintext under key with AES-GCM and a fresh random IV.
func Encrypt(key, plaintext []byte) (ciphertext, iv, tag []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, nil, err
	}

	iv = make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, nil, err
	}

	sealed := aesgcm.Seal(nil, iv, plaintext, nil)
	ciphertext = sealed[:len(sealed)-TagSize]
	tag = sealed[len(sealed)-TagSize:]
	return ciphertext, iv, tag, nil
}

// Decrypt opens a ciphertext produced by Encrypt. The tag is reattached
// before calling Open, so a tampered ciphertext or tag fails authentication.
func Decrypt(key, ciphertext, iv, tag []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	return aesgcm.Open(nil, iv, sealed, nil)
}

// HashSecret derives a storable hash of a credential secret with Argon2id
// and a per-row salt. Raw secrets are never persisted.
func HashSecret(secret, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, SecretHashSize)
}

// VerifySecret compares a presented secret against a stored Argon2id hash
// in constant time.
func VerifySecret(secret, salt, hash []byte) bool {
	candidate := argon2.IDKey(secret, salt, 1, 64*1024, 4, SecretHashSize)
	return subtle.ConstantTimeCompare(candidate, hash) == 1
}
