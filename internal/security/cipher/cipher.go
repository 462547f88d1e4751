package cipher

import (
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

const (
	blockSize   = 8
	parallelism = 1
	digestLen   = 128
)

// DefaultCost is the scrypt CPU/memory cost parameter (N) used when the
// configuration does not override it.
const DefaultCost = 16384

// Cipher produces deterministic keyed digests of plaintext secrets using
// scrypt, keyed by the process-wide security key. There is no inverse
// operation.
type Cipher struct {
	key  []byte
	cost int
}

// New creates a cipher. The key is required; cost must be a power of two
// greater than one (scrypt rejects anything else at digest time, this
// surfaces the mistake at startup instead).
func New(key string, cost int) (*Cipher, error) {
	if key == "" {
		return nil, errors.New("cipher: security key is required")
	}
	if cost <= 0 {
		cost = DefaultCost
	}
	if cost < 2 || cost&(cost-1) != 0 {
		return nil, fmt.Errorf("cipher: cost must be a power of two greater than one, got %d", cost)
	}
	return &Cipher{key: []byte(key), cost: cost}, nil
}

// Digest transforms a plaintext secret into a hex-encoded digest. The
// same (secret, key, cost) triple always yields the same digest, so
// stored digests are comparable with ==.
func (c *Cipher) Digest(secret string) (string, error) {
	derived, err := scrypt.Key([]byte(secret), c.key, c.cost, blockSize, parallelism, digestLen)
	if err != nil {
		return "", fmt.Errorf("cipher: derive digest: %w", err)
	}
	return hex.EncodeToString(derived), nil
}
