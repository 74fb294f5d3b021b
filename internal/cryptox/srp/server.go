package srp

import "math/big"

// Server is the server side of one SRP exchange. It is built from the
// user's stored salt and verifier; the ephemeral private exponent b can be
// exported with PrivateKey so the second login step, possibly handled by a
// different process, can restore the exact same session.
type Server struct {
	identity string
	salt     []byte
	v        *big.Int
	b        *big.Int
	bigB     *big.Int
	bigA     *big.Int
	key      []byte
}

// NewServer starts a server session with a fresh random ephemeral keypair.
// B = (k*v + g^b) mod N.
func NewServer(identity string, salt, verifier []byte) (*Server, error) {
	b, err := randomExponent()
	if err != nil {
		return nil, err
	}
	return restoreServer(identity, salt, verifier, b), nil
}

// RestoreServer rebuilds a server session from a persisted private
// exponent. B is recomputed deterministically from b.
func RestoreServer(identity string, salt, verifier, privateKey []byte) *Server {
	return restoreServer(identity, salt, verifier, new(big.Int).SetBytes(privateKey))
}

func restoreServer(identity string, salt, verifier []byte, b *big.Int) *Server {
	v := new(big.Int).SetBytes(verifier)

	kv := new(big.Int).Mul(multiplierK, v)
	gb := new(big.Int).Exp(groupG, b, groupN)
	bigB := new(big.Int).Mod(new(big.Int).Add(kv, gb), groupN)

	return &Server{identity: identity, salt: salt, v: v, b: b, bigB: bigB}
}

// PublicKey returns B, sent to the client in the first login step.
func (s *Server) PublicKey() []byte { return s.bigB.Bytes() }

// PrivateKey returns the ephemeral exponent b for persistence between the
// two login steps. It must never leave the server side.
func (s *Server) PrivateKey() []byte { return s.b.Bytes() }

// SetClientPublicKey binds the client's A and derives the session key
// S = (A * v^u)^b mod N, K = H(S). A ≡ 0 (mod N) is rejected.
func (s *Server) SetClientPublicKey(clientPublicKey []byte) error {
	bigA := new(big.Int).SetBytes(clientPublicKey)
	if new(big.Int).Mod(bigA, groupN).Sign() == 0 {
		return ErrInvalidPublicKey
	}
	u := scramble(bigA, s.bigB)
	if u.Sign() == 0 {
		return ErrInvalidPublicKey
	}

	vu := new(big.Int).Exp(s.v, u, groupN)
	base := new(big.Int).Mod(new(big.Int).Mul(bigA, vu), groupN)
	secret := new(big.Int).Exp(base, s.b, groupN)

	s.bigA = bigA
	s.key = sessionKey(secret)
	return nil
}

// VerifyClientProof checks the client's M1 and, on success, returns the
// server proof M2. The comparison is constant time via HMAC equality.
func (s *Server) VerifyClientProof(clientProof []byte) ([]byte, error) {
	if s.key == nil {
		return nil, ErrInvalidPublicKey
	}
	expected := proofM1(s.key, s.bigA, s.bigB, s.salt, s.identity)
	if !hmacEqual(expected, clientProof) {
		return nil, ErrProofMismatch
	}
	return proofM2(s.key, s.bigA, expected), nil
}

// Key returns the shared session key K, available after a verified proof.
func (s *Server) Key() []byte { return s.key }
