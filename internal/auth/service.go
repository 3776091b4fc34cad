package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/classigoo/auth-server/internal/config"
	"github.com/classigoo/auth-server/internal/mail"
	"github.com/classigoo/auth-server/internal/metrics"
	"github.com/classigoo/auth-server/internal/model"
	"github.com/classigoo/auth-server/internal/repo"
)

// Service orchestrates the OTP challenge lifecycle: issuance, validation
// and resend. All durable state lives in the store; the service holds no
// cross-request state beyond configuration.
type Service struct {
	users         repo.UserRepo
	otps          repo.OtpRepo
	sessions      repo.SessionRepo
	notifications repo.NotificationRepo
	lockout       *Lockout
	tokens        *TokenService
	mailer        mail.Mailer

	sendCooldown       time.Duration
	resendCooldown     time.Duration
	codeValidity       time.Duration
	sessionTTL         time.Duration
	rememberSessionTTL time.Duration

	now func() time.Time
}

// NewService creates the auth service.
func NewService(
	users repo.UserRepo,
	otps repo.OtpRepo,
	sessions repo.SessionRepo,
	notifications repo.NotificationRepo,
	lockout *Lockout,
	tokens *TokenService,
	mailer mail.Mailer,
	cfg *config.Config,
) *Service {
	return &Service{
		users:              users,
		otps:               otps,
		sessions:           sessions,
		notifications:      notifications,
		lockout:            lockout,
		tokens:             tokens,
		mailer:             mailer,
		sendCooldown:       cfg.SendCooldown,
		resendCooldown:     cfg.ResendCooldown,
		codeValidity:       cfg.CodeValidity,
		sessionTTL:         cfg.SessionTTL,
		rememberSessionTTL: cfg.RememberSessionTTL,
		now:                time.Now,
	}
}

// SendOtpInput carries the issuance request.
type SendOtpInput struct {
	Email      string
	IsSignup   bool
	Name       string
	Role       string
	Security   model.Security
	RememberMe bool
	PushToken  *string
}

// SendOtpResult is the success envelope for issuance. The code itself is
// never returned; it travels by mail only.
type SendOtpResult struct {
	SessionToken string
}

// SendOtp issues (or rotates) the OTP challenge for an email address.
func (s *Service) SendOtp(ctx context.Context, in SendOtpInput) (*SendOtpResult, error) {
	if err := s.lockout.Check(ctx, NormalizeIP(in.Security.IP)); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))

	user, err := s.users.FindByEmail(ctx, email)
	exists := true
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, internal(ReasonInternal, "Failed to look up user, Please try again")
		}
		exists = false
	}

	if in.IsSignup && exists {
		return nil, badRequest(ReasonUserExists, "User already exists, Please login to continue")
	}
	if !in.IsSignup && !exists {
		return nil, badRequest(ReasonUserNotFound, "User not found, Please signup to continue")
	}

	if !exists {
		role := in.Role
		if role == "" {
			role = "user"
		}
		var avatarURL string
		if in.Name != "" {
			avatarURL = GenerateAvatarURL(in.Name)
		}
		user, err = s.users.Create(ctx, in.Name, email, role, avatarURL)
		if err != nil {
			log.Printf("auth: create user %s: %v", maskEmail(email), err)
			return nil, internal(ReasonInternal, "Failed to create user, Please try again")
		}
		s.notify(ctx, model.AuthNotification{
			UserID: user.ID,
			Title:  "Welcome to Classigoo",
			Description: "Thank you very much for joining Classigoo. We are very happy to have you here. " +
				"We hope you will enjoy our service. If you have any questions, please contact our support department.",
		})
	} else {
		switch user.Status {
		case model.StatusBanned:
			return nil, forbidden(ReasonAccountBanned, "Your account has been banned, Please contact support")
		case model.StatusDeleted:
			return nil, forbidden(ReasonAccountDeleted, "Your account has been deleted, Please contact support")
		}
	}

	// Anti-spam cooldown, distinct from and shorter than the IP lockout.
	if active, err := s.otps.FindActiveByEmail(ctx, email); err == nil {
		if wait := active.UpdatedAt.Add(s.sendCooldown).Sub(s.now()); wait > 0 {
			return nil, badRequest(ReasonOtpCooldown, waitMessage(wait))
		}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, internal(ReasonInternal, "Failed to issue OTP, Please try again")
	}

	// At most one active OTP per email: retire predecessors before inserting.
	if err := s.otps.ExpireAllForEmail(ctx, email); err != nil {
		return nil, internal(ReasonInternal, "Failed to issue OTP, Please try again")
	}

	code, err := GenerateCode()
	if err != nil {
		return nil, internal(ReasonInternal, "Failed to issue OTP, Please try again")
	}
	sessionToken := NewSessionToken()

	if _, err := s.otps.Create(ctx, model.Otp{
		Email:        email,
		Code:         code,
		SessionToken: sessionToken,
		RememberMe:   in.RememberMe,
		Security:     fillSecurity(in.Security),
		PushToken:    in.PushToken,
	}); err != nil {
		log.Printf("auth: create otp for %s: %v", maskEmail(email), err)
		return nil, internal(ReasonInternal, "Failed to issue OTP, Please try again")
	}

	// Delivery failure is surfaced but the OTP row stays usable; a resend
	// can still deliver the same challenge.
	if err := s.mailer.SendOtpCode(ctx, email, user.Name, code); err != nil {
		log.Printf("auth: send otp mail to %s: %v", maskEmail(email), err)
		metrics.MailFailuresTotal.Inc()
		return nil, internal(ReasonMailFailed, "Failed to send OTP to your email address, Please try again")
	}

	flow := "login"
	if in.IsSignup {
		flow = "signup"
	}
	metrics.OtpIssuedTotal.WithLabelValues(flow).Inc()
	log.Printf("auth: otp issued for %s", maskEmail(email))

	return &SendOtpResult{SessionToken: sessionToken}, nil
}

// ValidateOtpInput carries the validation request.
type ValidateOtpInput struct {
	IP           string
	Code         string
	SessionToken string
}

// ValidateOtpResult is the success envelope for validation.
type ValidateOtpResult struct {
	Token         string
	SessionExpiry time.Time
}

// ValidateOtp consumes a submitted code. Every call counts against the
// caller's IP before the code is even looked at; that counter is the sole
// defense against parallel brute force.
func (s *Service) ValidateOtp(ctx context.Context, in ValidateOtpInput) (*ValidateOtpResult, error) {
	ip := NormalizeIP(in.IP)

	bl, err := s.lockout.RecordAttempt(ctx, ip)
	if err != nil {
		var domainErr *Error
		if errors.As(err, &domainErr) {
			metrics.OtpValidationsTotal.WithLabelValues("rate_limited").Inc()
			return nil, domainErr
		}
		return nil, internal(ReasonInternal, "Failed to validate OTP, Please try again")
	}
	attemptsLeft := s.lockout.AttemptsLeft(bl.Attempts)

	otp, err := s.otps.FindByCodeAndToken(ctx, in.Code, in.SessionToken)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			metrics.OtpValidationsTotal.WithLabelValues("invalid").Inc()
			return nil, badRequest(ReasonInvalidOtp, "Invalid OTP").withAttempts(attemptsLeft)
		}
		return nil, internal(ReasonInternal, "Failed to validate OTP, Please try again")
	}

	if otp.Used {
		metrics.OtpValidationsTotal.WithLabelValues("used").Inc()
		return nil, badRequest(ReasonOtpUsed, "OTP already used").withAttempts(attemptsLeft)
	}
	if otp.Expired {
		metrics.OtpValidationsTotal.WithLabelValues("expired").Inc()
		return nil, badRequest(ReasonOtpExpired, "OTP expired").withAttempts(attemptsLeft)
	}

	// Freshness window, measured from the last rotation. Self-healing:
	// the row is flagged so later checks short-circuit on the flag.
	if s.now().After(otp.UpdatedAt.Add(s.codeValidity)) {
		if err := s.otps.MarkExpired(ctx, otp.ID); err != nil {
			log.Printf("auth: mark otp expired: %v", err)
		}
		metrics.OtpValidationsTotal.WithLabelValues("expired").Inc()
		return nil, badRequest(ReasonOtpExpired, "OTP expired").withAttempts(attemptsLeft)
	}

	// Strict same-IP binding between issuance and validation.
	if otp.Security.IP != in.IP {
		metrics.OtpValidationsTotal.WithLabelValues("ip_mismatch").Inc()
		return nil, badRequest(ReasonIPMismatch,
			"IP address mismatch! Try with same device that you have requested code!").withAttempts(attemptsLeft)
	}

	user, err := s.users.FindByEmail(ctx, otp.Email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			metrics.OtpValidationsTotal.WithLabelValues("user_not_found").Inc()
			notFound := &Error{Status: http.StatusNotFound, Reason: ReasonUserNotFound, Message: "User not found"}
			return nil, notFound.withAttempts(attemptsLeft)
		}
		return nil, internal(ReasonInternal, "Failed to validate OTP, Please try again")
	}

	ttl := s.sessionTTL
	if otp.RememberMe {
		ttl = s.rememberSessionTTL
	}

	token, expiry, err := s.tokens.Sign(user.ID.String(), otp.SessionToken, otp.Email, user.Role, ttl)
	if err != nil {
		log.Printf("auth: sign token for %s: %v", maskEmail(otp.Email), err)
		return nil, internal(ReasonInternal, "Failed to validate OTP, Please try again")
	}

	if err := s.otps.MarkUsed(ctx, otp.ID); err != nil {
		return nil, internal(ReasonInternal, "Failed to validate OTP, Please try again")
	}

	if _, err := s.sessions.Create(ctx, model.Session{
		UserID:        user.ID,
		SessionToken:  otp.SessionToken,
		SessionExpiry: expiry,
		Security:      otp.Security,
		PushToken:     otp.PushToken,
	}); err != nil {
		log.Printf("auth: create session for %s: %v", maskEmail(otp.Email), err)
		return nil, internal(ReasonInternal, "Failed to validate OTP, Please try again")
	}

	if err := s.users.SetStatus(ctx, user.ID, model.StatusActive); err != nil {
		log.Printf("auth: activate user %s: %v", maskEmail(otp.Email), err)
	}

	// A success forgives prior failed attempts from this IP. An already
	// active lock stays.
	if err := s.lockout.Reset(ctx, ip); err != nil {
		log.Printf("auth: reset lockout for %s: %v", ip, err)
	}

	s.notify(ctx, model.AuthNotification{
		UserID:      user.ID,
		Title:       "New login",
		Description: fmt.Sprintf("New login from %s", otp.Security.IP),
		Link:        strPtr("/account/security"),
	})
	if err := s.mailer.SendLoginAlert(ctx, user.Email, user.Name, otp.Security.IP); err != nil {
		log.Printf("auth: login alert mail to %s: %v", maskEmail(user.Email), err)
		metrics.MailFailuresTotal.Inc()
	}

	metrics.OtpValidationsTotal.WithLabelValues("success").Inc()
	log.Printf("auth: login for %s", maskEmail(otp.Email))

	return &ValidateOtpResult{Token: token, SessionExpiry: expiry}, nil
}

// ResendOtpInput carries the resend request.
type ResendOtpInput struct {
	SessionToken string
	IP           string
}

// ResendOtp rotates the code of an outstanding challenge in place: same
// row, same session token, fresh code and timestamp.
func (s *Service) ResendOtp(ctx context.Context, in ResendOtpInput) error {
	otp, err := s.otps.FindByToken(ctx, in.SessionToken)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return badRequest(ReasonInvalidSession, "Invalid session token")
		}
		return internal(ReasonInternal, "Failed to resend OTP, Please try again")
	}

	if otp.Used {
		return badRequest(ReasonOtpUsed, "OTP already used")
	}

	// Resend cooldown is longer than the issue cooldown.
	if wait := otp.UpdatedAt.Add(s.resendCooldown).Sub(s.now()); wait > 0 {
		return badRequest(ReasonOtpCooldown, waitMessage(wait))
	}

	if err := s.lockout.Check(ctx, NormalizeIP(in.IP)); err != nil {
		return err
	}

	code, err := GenerateCode()
	if err != nil {
		return internal(ReasonInternal, "Failed to resend OTP, Please try again")
	}

	if err := s.otps.Rotate(ctx, in.SessionToken, code); err != nil {
		return internal(ReasonInternal, "Failed to resend OTP, Please try again")
	}

	if err := s.mailer.SendOtpCode(ctx, otp.Email, "", code); err != nil {
		log.Printf("auth: resend otp mail to %s: %v", maskEmail(otp.Email), err)
		metrics.MailFailuresTotal.Inc()
		return internal(ReasonMailFailed, "Failed to send OTP to your email address, Please try again")
	}

	metrics.OtpIssuedTotal.WithLabelValues("resend").Inc()
	log.Printf("auth: otp resent for %s", maskEmail(otp.Email))

	return nil
}

// notify writes an in-app notification; failures are logged, never fatal.
func (s *Service) notify(ctx context.Context, n model.AuthNotification) {
	if err := s.notifications.Create(ctx, n); err != nil {
		log.Printf("auth: create notification: %v", err)
	}
}

// waitMessage formats the remaining cooldown the way clients display it.
func waitMessage(wait time.Duration) string {
	secs := int(wait.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("Please wait for %02d minute(s) and %02d second(s) before requesting new OTP",
		secs/60, secs%60)
}

func fillSecurity(sec model.Security) model.Security {
	if sec.Platform == "" {
		sec.Platform = "unknown"
	}
	if sec.OS == "" {
		sec.OS = "unknown"
	}
	if sec.Device == "" {
		sec.Device = "unknown"
	}
	if sec.Location == "" {
		sec.Location = "unknown"
	}
	return sec
}

func strPtr(s string) *string { return &s }
