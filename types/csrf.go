package types

import (
	"time"

	"github.com/google/uuid"
)

// CsrfToken is a single-use anti-forgery token issued to one client IP.
type CsrfToken struct {
	ID        uuid.UUID `json:"id" db:"id"`
	IP        string    `json:"ip" db:"ip"`
	ExpiredAt time.Time `json:"expired_at" db:"expired_at"`
	// Used is set when the token is consumed or superseded.
	Used      bool      `json:"used" db:"used"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Live reports whether the token may still pass validation at now.
func (t CsrfToken) Live(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiredAt)
}
