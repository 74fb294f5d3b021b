package models

import "time"

// SRPSession is the ephemeral state between the two login steps: the
// client's ephemeral public key A and the server's private exponent b.
// Exactly one live row exists per identifier; step one atomically replaces
// it and step two atomically consumes it, so a session never survives a
// completed or failed attempt.
type SRPSession struct {
	Identifier       string
	ClientPublicKey  []byte
	ServerPrivateKey []byte
	CreatedAt        time.Time
}
