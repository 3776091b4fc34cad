package config

import (
	"crypto/rsa"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string
	Port        string

	// RS256 key pair; the private key signs bearer tokens, the public key
	// verifies them in the access guard.
	JWTPrivateKey *rsa.PrivateKey
	JWTPublicKey  *rsa.PublicKey

	// OTP timing and lockout policy.
	SendCooldown   time.Duration // min gap between issuances per email
	ResendCooldown time.Duration // min gap before in-place rotation
	CodeValidity   time.Duration // OTP freshness window
	MaxAttempts    int           // per-IP validation attempts before lock
	LockDuration   time.Duration // penalty box length

	// Session/token lifetimes.
	SessionTTL         time.Duration
	RememberSessionTTL time.Duration

	// Mail settings. When DevMode is set the SMTP fields are unused and
	// outbound mail is logged instead.
	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	MailFrom string
	DevMode  bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:               "8080",
		SendCooldown:       time.Minute,
		ResendCooldown:     3 * time.Minute,
		CodeValidity:       5 * time.Minute,
		MaxAttempts:        5,
		LockDuration:       24 * time.Hour,
		SessionTTL:         24 * time.Hour,
		RememberSessionTTL: 30 * 24 * time.Hour,
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	privPEM := os.Getenv("JWT_PRIVATE_KEY")
	if privPEM == "" {
		return nil, fmt.Errorf("JWT_PRIVATE_KEY environment variable is required")
	}
	priv, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(privPEM))
	if err != nil {
		return nil, fmt.Errorf("parse JWT_PRIVATE_KEY: %w", err)
	}
	cfg.JWTPrivateKey = priv

	pubPEM := os.Getenv("JWT_PUBLIC_KEY")
	if pubPEM == "" {
		return nil, fmt.Errorf("JWT_PUBLIC_KEY environment variable is required")
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pubPEM))
	if err != nil {
		return nil, fmt.Errorf("parse JWT_PUBLIC_KEY: %w", err)
	}
	cfg.JWTPublicKey = pub

	if err := overrideDuration("OTP_SEND_COOLDOWN", &cfg.SendCooldown); err != nil {
		return nil, err
	}
	if err := overrideDuration("OTP_RESEND_COOLDOWN", &cfg.ResendCooldown); err != nil {
		return nil, err
	}
	if err := overrideDuration("OTP_CODE_VALIDITY", &cfg.CodeValidity); err != nil {
		return nil, err
	}
	if err := overrideDuration("LOCKOUT_DURATION", &cfg.LockDuration); err != nil {
		return nil, err
	}
	if v := os.Getenv("LOCKOUT_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid LOCKOUT_MAX_ATTEMPTS %q", v)
		}
		cfg.MaxAttempts = n
	}

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPPort = os.Getenv("SMTP_PORT")
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	cfg.SMTPPass = os.Getenv("SMTP_PASS")
	cfg.MailFrom = os.Getenv("MAIL_FROM")
	cfg.DevMode = os.Getenv("DEV_MODE") == "true"

	if !cfg.DevMode && cfg.SMTPHost == "" {
		return nil, fmt.Errorf("SMTP_HOST environment variable is required unless DEV_MODE=true")
	}

	return cfg, nil
}

// overrideDuration replaces *d with the parsed value of the env var when set.
func overrideDuration(name string, d *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	*d = parsed
	return nil
}
