package orders

import (
	"crypto/rand"
	"math/big"
	"time"
)

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewOrderID returns ORD-<UTC yyyymmddhhmmss>-<6 random chars>. Uniqueness is
// enforced by the store; callers retry on ErrDuplicateOrderID.
func NewOrderID(now time.Time) string {
	suffix := make([]byte, 6)
	max := big.NewInt(int64(len(idAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		suffix[i] = idAlphabet[n.Int64()]
	}
	return "ORD-" + now.UTC().Format("20060102150405") + "-" + string(suffix)
}
