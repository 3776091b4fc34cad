package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	codeLength  = 9
	codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateCode returns a 9-character uppercase alphanumeric one-time code.
func GenerateCode() (string, error) {
	var sb strings.Builder
	sb.Grow(codeLength)
	max := big.NewInt(int64(len(codeCharset)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate otp code: %w", err)
		}
		sb.WriteByte(codeCharset[n.Int64()])
	}
	return sb.String(), nil
}

// NewSessionToken returns a fresh opaque token correlating an OTP challenge
// to the eventual session.
func NewSessionToken() string {
	return uuid.NewString()
}

// GenerateAvatarURL builds the fallback avatar for a new account from the
// display name.
func GenerateAvatarURL(name string) string {
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(name) + "&background=random"
}

var ipWhitespace = regexp.MustCompile(`\s+`)

// NormalizeIP canonicalizes an IP for blacklist keying: lowercased, runs of
// whitespace collapsed to a dash.
func NormalizeIP(ip string) string {
	return ipWhitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(ip)), "-")
}

// maskEmail redacts an address for logs, e.g. jo****@example.com.
func maskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return "****"
	}
	local := email[:at]
	if len(local) <= 2 {
		return "**" + email[at:]
	}
	return local[:2] + strings.Repeat("*", len(local)-2) + email[at:]
}
