package auth

import "net/http"

// Reason is the machine-readable code carried on every domain failure and
// echoed to clients in the i18n field of the error envelope.
type Reason string

const (
	ReasonRateLimited    Reason = "max_attempts_exceeded"
	ReasonRateLimited24h Reason = "max_attempts_exceeded_24h"
	ReasonUserExists     Reason = "user_already_exists"
	ReasonUserNotFound   Reason = "user_not_found"
	ReasonAccountBanned  Reason = "user_account_banned"
	ReasonAccountDeleted Reason = "user_account_deleted"
	ReasonOtpCooldown    Reason = "otp_cooldown"
	ReasonInvalidOtp     Reason = "invalid_otp"
	ReasonOtpUsed        Reason = "otp_already_used"
	ReasonOtpExpired     Reason = "otp_expired"
	ReasonIPMismatch     Reason = "ip_mismatch"
	ReasonInvalidSession Reason = "invalid_session_token"
	ReasonMailFailed     Reason = "otp_send_failed"
	ReasonInternal       Reason = "internal_error"
)

// Error is a typed domain failure. AttemptsLeft is set on the validation
// path only, where the per-IP counter produces a remaining-attempts hint.
type Error struct {
	Status       int
	Reason       Reason
	Message      string
	AttemptsLeft *int
}

func (e *Error) Error() string {
	return string(e.Reason) + ": " + e.Message
}

func forbidden(reason Reason, message string) *Error {
	return &Error{Status: http.StatusForbidden, Reason: reason, Message: message}
}

func badRequest(reason Reason, message string) *Error {
	return &Error{Status: http.StatusBadRequest, Reason: reason, Message: message}
}

func internal(reason Reason, message string) *Error {
	return &Error{Status: http.StatusInternalServerError, Reason: reason, Message: message}
}

// withAttempts attaches the remaining-attempts hint to a failure.
func (e *Error) withAttempts(left int) *Error {
	if left < 0 {
		left = 0
	}
	e.AttemptsLeft = &left
	return e
}
