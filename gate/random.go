package gate

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"math/big"
	"strings"
)

const (
	tokenBytes = 32 // 256-bit tokens and proofs
	keyLength  = 24 // ~119 bits over the 31-char alphabet
)

// keyAlphabet omits 0/O, 1/I and U to keep keys unambiguous when read
// aloud or copied by hand.
var keyAlphabet = []rune("23456789ABCDEFGHJKLMNPQRSTVWXYZ")

// newToken returns an opaque session handle. A failure of the entropy
// source is not recoverable per-call; it panics and takes the process
// down.
func newToken() string {
	return randomURLSafe(tokenBytes)
}

// newProof returns the per-session verification secret carried through
// the external redirect.
func newProof() string {
	return randomURLSafe(tokenBytes)
}

// newKey returns a human-copyable credential string.
func newKey() string {
	var sb strings.Builder
	sb.Grow(keyLength)
	max := big.NewInt(int64(len(keyAlphabet)))
	for i := 0; i < keyLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("gate: entropy source failed: " + err.Error())
		}
		sb.WriteRune(keyAlphabet[n.Int64()])
	}
	return sb.String()
}

func randomURLSafe(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("gate: entropy source failed: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// hashProof is the at-rest form of a proof. Only the hash is stored, so a
// leaked store snapshot cannot be replayed against /verify.
func hashProof(proof string) []byte {
	sum := sha256.Sum256([]byte(proof))
	return sum[:]
}
