package license

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	keyPrefix      = "GOBOT"
	keyAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	keySegments    = 3
	keySegmentSize = 4
)

// GenerateKeyCode produces a key of the form GOBOT-XXXX-XXXX-XXXX with each
// segment drawn from crypto/rand. The key is a bearer credential, so a
// general-purpose PRNG is not acceptable here. Uniqueness is enforced by the
// store's unique constraint; insert paths retry on collision.
func GenerateKeyCode() (string, error) {
	parts := make([]string, 0, keySegments)
	alphabetLen := big.NewInt(int64(len(keyAlphabet)))

	for i := 0; i < keySegments; i++ {
		var seg strings.Builder
		for j := 0; j < keySegmentSize; j++ {
			n, err := rand.Int(rand.Reader, alphabetLen)
			if err != nil {
				return "", fmt.Errorf("generate key code: %w", err)
			}
			seg.WriteByte(keyAlphabet[n.Int64()])
		}
		parts = append(parts, seg.String())
	}

	return keyPrefix + "-" + strings.Join(parts, "-"), nil
}
