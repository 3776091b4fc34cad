package model

import (
	"time"

	"github.com/google/uuid"
)

// User lifecycle states. Banned and deleted are terminal for auth purposes.
const (
	StatusPending = "pending"
	StatusActive  = "active"
	StatusBanned  = "banned"
	StatusDeleted = "deleted"
)

// Security captures the client context recorded at OTP issuance and
// compared again at validation time.
type Security struct {
	IP       string
	Platform string
	OS       string
	Device   string
	Location string
}

// User represents an account. Email is stored lowercased and is unique.
type User struct {
	ID                 uuid.UUID
	Name               string
	Email              string
	Role               string
	Status             string
	AvatarURL          string
	SubscriptionStatus string
	Sessions           []uuid.UUID
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Otp is one outstanding login challenge. At most one non-expired row
// exists per email; rows are never deleted, only flagged.
type Otp struct {
	ID           uuid.UUID
	Email        string
	Code         string
	SessionToken string
	RememberMe   bool
	Security     Security
	PushToken    *string
	Expired      bool
	Used         bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session records a successful login. SessionToken is copied from the
// validated OTP and embedded verbatim in the bearer token, so a token can
// never outlive its backing row.
type Session struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	SessionToken  string
	SessionExpiry time.Time
	Security      Security
	PushToken     *string
	Expired       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Blacklist is the per-IP lockout row. IsBlocked implies a non-nil
// BlockedUntil; the lockout guard clears the flag lazily once it passes.
type Blacklist struct {
	ID                   uuid.UUID
	IPAddress            string
	Attempts             int
	BlockedUntil         *time.Time
	IsBlocked            bool
	IsPermanentlyBlocked bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// AuthNotification is an in-app notification row written on signup and on
// each new login.
type AuthNotification struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	ImageURL    *string
	Title       string
	Description string
	Link        *string
	IsRead      bool
	CreatedAt   time.Time
}
