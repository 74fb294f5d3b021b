package srp

import (
	"crypto/hmac"
	"math/big"
)

// Client is the client side of one SRP exchange. The server package ships
// it because registration (verifier derivation) and the exchange tests need
// a real counterparty; production browser/CLI clients implement the same
// fixed suite.
type Client struct {
	identity string
	password string
	salt     []byte
	a        *big.Int
	bigA     *big.Int
	key      []byte
	m1       []byte
}

// NewClient starts a client session with a fresh ephemeral keypair
// A = g^a mod N.
func NewClient(identity, password string, salt []byte) (*Client, error) {
	a, err := randomExponent()
	if err != nil {
		return nil, err
	}
	return &Client{
		identity: identity,
		password: password,
		salt:     salt,
		a:        a,
		bigA:     new(big.Int).Exp(groupG, a, groupN),
	}, nil
}

// PublicKey returns A, sent to the server in the first login step.
func (c *Client) PublicKey() []byte { return c.bigA.Bytes() }

// ComputeProof binds the server's B, derives the session key
// S = (B - k*g^x)^(a + u*x) mod N, and returns the client proof M1.
func (c *Client) ComputeProof(serverPublicKey []byte) ([]byte, error) {
	bigB := new(big.Int).SetBytes(serverPublicKey)
	if new(big.Int).Mod(bigB, groupN).Sign() == 0 {
		return nil, ErrInvalidPublicKey
	}
	u := scramble(c.bigA, bigB)
	if u.Sign() == 0 {
		return nil, ErrInvalidPublicKey
	}

	x := privateExponent(c.identity, c.password, c.salt)
	gx := new(big.Int).Exp(groupG, x, groupN)
	kgx := new(big.Int).Mod(new(big.Int).Mul(multiplierK, gx), groupN)

	base := new(big.Int).Mod(new(big.Int).Sub(bigB, kgx), groupN)
	exp := new(big.Int).Add(c.a, new(big.Int).Mul(u, x))
	secret := new(big.Int).Exp(base, exp, groupN)

	c.key = sessionKey(secret)
	c.m1 = proofM1(c.key, c.bigA, bigB, c.salt, c.identity)
	return c.m1, nil
}

// VerifyServerProof checks the server's answer proof M2, completing mutual
// authentication.
func (c *Client) VerifyServerProof(serverProof []byte) bool {
	if c.key == nil || c.m1 == nil {
		return false
	}
	expected := proofM2(c.key, c.bigA, c.m1)
	return hmacEqual(expected, serverProof)
}

// Key returns the shared session key K, available after ComputeProof.
func (c *Client) Key() []byte { return c.key }

func hmacEqual(a, b []byte) bool { return hmac.Equal(a, b) }
