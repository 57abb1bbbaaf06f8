package server

import (
	"crypto/subtle"
	"encoding/hex"

	"github.com/codahale/thyrse/schemes/basic/mhf"
)

// authDomain namespaces the memory-hard hash from any other use of thyrse in
// this process.
const authDomain = "troopd-auth-v1"

// authSalt is fixed, not random: a peer authenticates by sending the
// hex-encoded digest of the shared secret, computed independently of the
// server, so every side must derive it from the same public (cost, salt)
// pair. The password itself, not the salt, is what must stay secret; the
// memory-hard derivation is what makes brute-forcing it expensive.
var authSalt = []byte("troopd-auth-v1-salt")

// digestSize is the number of output bytes kept from mhf.Hash; 32 is ample
// for an equality comparison and keeps the AUTH reply derivation cheap.
const digestSize = 32

// Digest derives the hex-encoded AUTH digest of password at the given
// mhf.Hash cost. Both the server (via NewSecret) and any peer that knows the
// shared password compute this the same way; the AUTH frame carries only the
// result, never the plaintext.
func Digest(password string, cost byte) string {
	hash := mhf.Hash(authDomain, cost, authSalt, []byte(password), nil, digestSize)
	return hex.EncodeToString(hash)
}

// Secret holds the configured shared password in hashed form. The server
// never retains the plaintext password past NewSecret.
type Secret struct {
	cost   byte
	digest string
}

// NewSecret derives a Secret from a plaintext password. cost is the
// mhf.Hash cost parameter; per its doc comment this should be tuned so a
// single Digest call takes roughly 100ms. The server runs Digest once, here;
// each connecting peer runs it once to produce its AUTH digest. Verify itself
// does no hashing.
func NewSecret(password string, cost byte) (*Secret, error) {
	return &Secret{cost: cost, digest: Digest(password, cost)}, nil
}

// Verify reports whether candidate — the hex-encoded digest a peer presents
// in its AUTH frame, not a plaintext password — matches this Secret's own
// digest of the configured password. The memory-hard derivation already ran
// once, in NewSecret; this is a direct digest-vs-digest comparison, run in
// constant time.
func (s *Secret) Verify(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.digest)) == 1
}
