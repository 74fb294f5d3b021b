// Package srp implements the SRP-6a zero-knowledge password exchange used
// by the login flow. The suite is fixed: the 2048-bit MODP group from
// RFC 3526 (group 14) with g=2, SHA-256 for the key-derivation hashes, and
// HMAC-SHA256 for the mutual proofs.
//
// The server never sees the password. At registration the client derives a
// verifier v = g^x mod N from the salted password hash x and stores (salt,
// v). Each login runs a fresh ephemeral Diffie-Hellman-style exchange; both
// sides arrive at the same session key K and prove possession of it.
package srp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"math/big"
)

var (
	// ErrInvalidPublicKey is returned when the peer's ephemeral public key
	// is zero modulo N, which would collapse the shared secret.
	ErrInvalidPublicKey = errors.New("srp: invalid ephemeral public key")

	// ErrProofMismatch is returned when the peer's proof does not match.
	ErrProofMismatch = errors.New("srp: proof verification failed")
)

// 2048-bit MODP group, RFC 3526 group 14.
const groupHex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
	"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
	"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D" +
	"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
	"83655D23DCA3AD961C62F356208552BB9ED529077096966D" +
	"670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9" +
	"DE2BCBF6955817183995497CEA956AE515D2261898FA0510" +
	"15728E5A8AACAA68FFFFFFFFFFFFFFFF"

var (
	groupN = mustParseHex(groupHex)
	groupG = big.NewInt(2)
	// k = H(N | PAD(g)), the SRP-6a multiplier.
	multiplierK = hashToInt(groupN.Bytes(), pad(groupG))
)

const (
	// SaltSize is the length of registration salts in bytes.
	SaltSize = 32
	// ephemeralSize is the length of the random private exponents in bytes.
	ephemeralSize = 32
)

func mustParseHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("srp: bad group constant")
	}
	return n
}

// pad left-pads v's big-endian bytes to the group size, per RFC 5054 PAD().
func pad(v *big.Int) []byte {
	b := v.Bytes()
	size := len(groupN.Bytes())
	if len(b) >= size {
		return b
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}

func hashToInt(parts ...[]byte) *big.Int {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return new(big.Int).SetBytes(h.Sum(nil))
}

// privateExponent derives x = H(salt | H(identity ":" password)).
func privateExponent(identity, password string, salt []byte) *big.Int {
	inner := sha256.Sum256([]byte(identity + ":" + password))
	return hashToInt(salt, inner[:])
}

// NewSalt returns a fresh random registration salt.
func NewSalt() []byte {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		panic(err)
	}
	return salt
}

// ComputeVerifier derives the password verifier v = g^x mod N stored at
// registration alongside the salt.
func ComputeVerifier(identity, password string, salt []byte) []byte {
	x := privateExponent(identity, password, salt)
	return new(big.Int).Exp(groupG, x, groupN).Bytes()
}

func randomExponent() (*big.Int, error) {
	b := make([]byte, ephemeralSize)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}

// proofM1 binds both ephemeral public keys, the salt and the identity to
// the session key: M1 = HMAC(K, A | B | salt | H(identity)).
func proofM1(key []byte, bigA, bigB *big.Int, salt []byte, identity string) []byte {
	idHash := sha256.Sum256([]byte(identity))
	mac := hmac.New(sha256.New, key)
	mac.Write(pad(bigA))
	mac.Write(pad(bigB))
	mac.Write(salt)
	mac.Write(idHash[:])
	return mac.Sum(nil)
}

// proofM2 is the server's answer proof: M2 = HMAC(K, A | M1).
func proofM2(key []byte, bigA *big.Int, m1 []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(pad(bigA))
	mac.Write(m1)
	return mac.Sum(nil)
}

// sessionKey finishes the exchange given the raw shared secret S.
func sessionKey(s *big.Int) []byte {
	sum := sha256.Sum256(pad(s))
	return sum[:]
}

// scramble computes u = H(PAD(A) | PAD(B)).
func scramble(bigA, bigB *big.Int) *big.Int {
	return hashToInt(pad(bigA), pad(bigB))
}
