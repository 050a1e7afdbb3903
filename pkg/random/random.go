package random

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Bytes returns n cryptographically random bytes.
func Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return b, nil
}

// Hex returns n random bytes encoded as a 2n-character hex string.
func Hex(n int) (string, error) {
	b, err := Bytes(n)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// IntInRange returns a uniformly random integer in [lo, hi).
func IntInRange(lo, hi int) (int, error) {
	if hi <= lo {
		return 0, fmt.Errorf("invalid range [%d, %d)", lo, hi)
	}
	span := uint64(hi - lo)

	// Rejection sampling to avoid modulo bias.
	max := ^uint64(0) - ^uint64(0)%span
	for {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("failed to read random bytes: %w", err)
		}
		v := binary.BigEndian.Uint64(buf[:])
		if v < max {
			return lo + int(v%span), nil
		}
	}
}
