package auth

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the bearer token claims. Session carries the opaque session
// token verbatim, tying the credential to its backing session row.
type Claims struct {
	UserID  string `json:"user_id"`
	Session string `json:"session"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies RS256 bearer tokens
type TokenService struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	now        func() time.Time
}

// NewTokenService creates a new token service. The private key may be nil in
// verify-only deployments.
func NewTokenService(privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey) *TokenService {
	return &TokenService{
		privateKey: privateKey,
		publicKey:  publicKey,
		now:        time.Now,
	}
}

// Sign creates a bearer token for the user and session token with the given
// lifetime.
func (s *TokenService) Sign(userID, sessionToken, email, role string, ttl time.Duration) (string, time.Time, error) {
	if s.privateKey == nil {
		return "", time.Time{}, fmt.Errorf("token service has no signing key")
	}

	now := s.now().UTC()
	expiry := now.Add(ttl)
	claims := &Claims{
		UserID:  userID,
		Session: sessionToken,
		Email:   email,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiry, nil
}

// Verify parses the token and returns its claims. Only RS256 is accepted;
// there is no algorithm negotiation.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.publicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}
