package models

import (
	"time"

	"github.com/keyfold/keyfold/internal/cryptox/rootkey"
)

// Bot is a server-side automation identity for one organization. Its
// symmetric key is stored wrapped under a root key; KeyEncoding records
// which scheme wrapped it so legacy and current data coexist during the
// re-encryption migration. The unwrapped key never persists.
type Bot struct {
	ID           string
	OrgID        string
	Name         string
	EncryptedKey []byte
	KeyIV        []byte
	KeyTag       []byte
	KeyEncoding  rootkey.Encoding
	CreatedAt    time.Time
}

// BlindIndexSalt is the per-organization salt for secret blind indexes,
// stored wrapped the same way as bot keys and migrated alongside them.
type BlindIndexSalt struct {
	ID            string
	OrgID         string
	EncryptedSalt []byte
	SaltIV        []byte
	SaltTag       []byte
	KeyEncoding   rootkey.Encoding
	CreatedAt     time.Time
}
