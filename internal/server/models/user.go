// Package models holds the persistence-level records shared by the
// repositories and services.
package models

import "time"

// EncryptionVersion selects how the user's private key is protected.
type EncryptionVersion int

const (
	// EncryptionV1 is the original scheme: the private key encrypted
	// directly under the password-derived key.
	EncryptionV1 EncryptionVersion = 1
	// EncryptionV2 wraps the private key under an intermediate protected
	// key, so password changes only re-encrypt the small envelope.
	EncryptionV2 EncryptionVersion = 2
)

// Device is one (ip, user-agent) pair seen for a user. Logins from a pair
// not on the list trigger a notification email.
type Device struct {
	IP        string `json:"ip"`
	UserAgent string `json:"userAgent"`
}

// User is the identity record. Salt and Verifier are the SRP registration
// material and are never transmitted after signup. The encrypted key fields
// are client-side ciphertext; the server stores and returns them opaquely.
type User struct {
	ID       string
	Email    string
	Salt     []byte
	Verifier []byte

	PublicKey           string
	EncryptedPrivateKey string
	PrivateKeyIV        string
	PrivateKeyTag       string
	ProtectedKey        string
	ProtectedKeyIV      string
	ProtectedKeyTag     string
	EncryptionVersion   EncryptionVersion

	MFAEnabled bool
	MFAMethod  string

	Devices   []Device
	CreatedAt time.Time
}

// HasDevice reports whether the (ip, userAgent) pair has been seen before.
func (u *User) HasDevice(ip, userAgent string) bool {
	for _, d := range u.Devices {
		if d.IP == ip && d.UserAgent == userAgent {
			return true
		}
	}
	return false
}
