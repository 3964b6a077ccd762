package services

import (
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher hashes and verifies passwords with bcrypt.
type PasswordHasher struct {
	cost  int
	dummy []byte
}

// NewPasswordHasher returns a hasher using cost; values outside bcrypt's range use the default.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("adminkit-dummy-password"), cost)
	return &PasswordHasher{cost: cost, dummy: dummy}
}

// Hash returns a salted bcrypt hash of plain.
func (h *PasswordHasher) Hash(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether plain matches hash. A mismatch is not an error.
func (h *PasswordHasher) Verify(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// Burn spends the same time as a failed Verify so unknown accounts cannot be
// told apart from wrong passwords by latency.
func (h *PasswordHasher) Burn(plain string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plain))
}
