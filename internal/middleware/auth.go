package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/classigoo/auth-server/internal/auth"
	"github.com/classigoo/auth-server/internal/metrics"
	"github.com/classigoo/auth-server/internal/model"
	"github.com/classigoo/auth-server/internal/repo"
)

type contextKey string

const (
	claimsKey  contextKey = "claims"
	sessionKey contextKey = "session"
	userKey    contextKey = "user"
)

// timeNow is swapped out in tests.
var timeNow = time.Now

// Guard validates bearer tokens on protected routes. The token signature is
// checked against the public key, then the backing session row and owning
// user are re-validated on every request. All failures collapse to a plain
// 401 so unauthenticated callers learn nothing about accounts or sessions;
// the specific reason is only counted in metrics.
func Guard(tokens *auth.TokenService, users repo.UserRepo, sessions repo.SessionRepo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				reject(w, "missing_token")
				return
			}

			claims, err := tokens.Verify(tokenString)
			if err != nil {
				reject(w, "bad_token")
				return
			}

			userID, err := uuid.Parse(claims.UserID)
			if err != nil {
				reject(w, "bad_token")
				return
			}

			session, err := sessions.FindActive(r.Context(), userID, claims.Session)
			if err != nil {
				reject(w, "session_not_found")
				return
			}

			// Lazy expiry: flag the row on detection so later checks
			// short-circuit on the expired filter.
			if timeNow().After(session.SessionExpiry) {
				if err := sessions.MarkExpired(r.Context(), session.ID); err != nil {
					log.Printf("guard: mark session expired: %v", err)
				}
				reject(w, "session_expired")
				return
			}

			user, err := users.FindByID(r.Context(), userID)
			if err != nil {
				reject(w, "user_not_found")
				return
			}
			if user.Status == model.StatusBanned || user.Status == model.StatusDeleted {
				reject(w, "account_disabled")
				return
			}

			// Defense against forged or stale claims: the session must be
			// listed on the user and agree on ownership.
			if !containsSession(user.Sessions, session.ID) {
				reject(w, "session_not_owned")
				return
			}
			if session.UserID != userID {
				reject(w, "session_user_mismatch")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			ctx = context.WithValue(ctx, sessionKey, &session)
			ctx = context.WithValue(ctx, userKey, &user)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaims returns the verified token claims attached by Guard.
func GetClaims(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*auth.Claims)
	return c, ok
}

// GetSession returns the session attached by Guard.
func GetSession(ctx context.Context) (*model.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*model.Session)
	return s, ok
}

// GetUser returns the user attached by Guard.
func GetUser(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func containsSession(list []uuid.UUID, id uuid.UUID) bool {
	for _, s := range list {
		if s == id {
			return true
		}
	}
	return false
}

func reject(w http.ResponseWriter, reason string) {
	metrics.GuardRejectionsTotal.WithLabelValues(reason).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "error",
		"message": "Unauthorized",
		"i18n":    "unauthorized_access",
	})
}
