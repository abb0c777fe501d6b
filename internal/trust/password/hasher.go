// Package password implements the credential hashing scheme: the
// plaintext is keyed with a server-side pepper via HMAC-SHA256, then fed
// to bcrypt. A stolen database row is useless without the pepper, and
// the HMAC stage keeps the bcrypt input under its 72-byte limit for
// passwords of any length.
package password

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MinCost is the lowest accepted bcrypt cost.
const MinCost = 14

// ErrPepperTooShort rejects peppers under 32 bytes at construction.
var ErrPepperTooShort = errors.New("password: pepper must be >= 32 bytes")

// ErrCostTooLow rejects bcrypt costs under MinCost at construction.
var ErrCostTooLow = errors.New("password: bcrypt cost must be >= 14")

// Hasher hashes and verifies peppered passwords.
type Hasher struct {
	pepper []byte
	cost   int
}

// NewHasher validates the pepper and cost once; misconfiguration fails
// construction rather than individual requests.
func NewHasher(pepper []byte, cost int) (*Hasher, error) {
	if len(pepper) < 32 {
		return nil, ErrPepperTooShort
	}
	if cost < MinCost {
		return nil, ErrCostTooLow
	}
	p := make([]byte, len(pepper))
	copy(p, pepper)
	return &Hasher{pepper: p, cost: cost}, nil
}

// Hash returns the bcrypt hash of the peppered password.
func (h *Hasher) Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword(h.keyed(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether plaintext matches the stored hash. A mismatch
// is (false, nil); errors mean the hash itself is unusable.
func (h *Hasher) Verify(plaintext, stored string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(stored), h.keyed(plaintext))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}

func (h *Hasher) keyed(plaintext string) []byte {
	mac := hmac.New(sha256.New, h.pepper)
	_, _ = mac.Write([]byte(plaintext))
	return mac.Sum(nil)
}
