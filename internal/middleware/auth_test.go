package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classigoo/auth-server/internal/auth"
	"github.com/classigoo/auth-server/internal/model"
	"github.com/classigoo/auth-server/internal/repo"
)

type stubUserRepo struct {
	user model.User
	err  error
}

func (r *stubUserRepo) Create(ctx context.Context, name, email, role, avatarURL string) (model.User, error) {
	return model.User{}, fmt.Errorf("not implemented")
}

func (r *stubUserRepo) FindByEmail(ctx context.Context, email string) (model.User, error) {
	return model.User{}, fmt.Errorf("not implemented")
}

func (r *stubUserRepo) FindByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	if r.err != nil {
		return model.User{}, r.err
	}
	return r.user, nil
}

func (r *stubUserRepo) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	return nil
}

type stubSessionRepo struct {
	session model.Session
	err     error
	expired []uuid.UUID
}

func (r *stubSessionRepo) Create(ctx context.Context, session model.Session) (model.Session, error) {
	return model.Session{}, fmt.Errorf("not implemented")
}

func (r *stubSessionRepo) FindActive(ctx context.Context, userID uuid.UUID, sessionToken string) (model.Session, error) {
	if r.err != nil {
		return model.Session{}, r.err
	}
	return r.session, nil
}

func (r *stubSessionRepo) MarkExpired(ctx context.Context, id uuid.UUID) error {
	r.expired = append(r.expired, id)
	return nil
}

type guardFixture struct {
	tokens   *auth.TokenService
	users    *stubUserRepo
	sessions *stubSessionRepo
	user     model.User
	session  model.Session
	token    string
}

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tokens := auth.NewTokenService(key, &key.PublicKey)

	userID := uuid.New()
	sessionID := uuid.New()
	sessionToken := uuid.NewString()

	token, expiry, err := tokens.Sign(userID.String(), sessionToken, "a@x.com", "student", time.Hour)
	require.NoError(t, err)

	session := model.Session{
		ID:            sessionID,
		UserID:        userID,
		SessionToken:  sessionToken,
		SessionExpiry: expiry,
	}
	user := model.User{
		ID:       userID,
		Email:    "a@x.com",
		Role:     "student",
		Status:   model.StatusActive,
		Sessions: []uuid.UUID{sessionID},
	}

	return &guardFixture{
		tokens:   tokens,
		users:    &stubUserRepo{user: user},
		sessions: &stubSessionRepo{session: session},
		user:     user,
		session:  session,
		token:    token,
	}
}

func (f *guardFixture) serve(t *testing.T, authorization string) (*httptest.ResponseRecorder, bool) {
	t.Helper()

	called := false
	handler := Guard(f.tokens, f.users, f.sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		user, ok := GetUser(r.Context())
		require.True(t, ok)
		assert.Equal(t, f.user.ID, user.ID)
		claims, ok := GetClaims(r.Context())
		require.True(t, ok)
		assert.Equal(t, f.session.SessionToken, claims.Session)
		_, ok = GetSession(r.Context())
		require.True(t, ok)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, called
}

func TestGuard_Success(t *testing.T) {
	f := newGuardFixture(t)
	rec, called := f.serve(t, "Bearer "+f.token)
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuard_MissingOrMalformedHeader(t *testing.T) {
	f := newGuardFixture(t)
	for name, header := range map[string]string{
		"missing":      "",
		"no_scheme":    f.token,
		"wrong_scheme": "Basic " + f.token,
		"empty_token":  "Bearer  ",
	} {
		t.Run(name, func(t *testing.T) {
			rec, called := f.serve(t, header)
			assert.False(t, called)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestGuard_GarbageToken(t *testing.T) {
	f := newGuardFixture(t)
	rec, called := f.serve(t, "Bearer not-a-jwt")
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuard_SessionNotFound(t *testing.T) {
	f := newGuardFixture(t)
	f.sessions.err = fmt.Errorf("session: %w", repo.ErrNotFound)
	rec, called := f.serve(t, "Bearer "+f.token)
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuard_LazySessionExpiry(t *testing.T) {
	f := newGuardFixture(t)

	// Signed token is still valid, but the backing session's absolute
	// expiry has passed: reject and write the expired flag back.
	orig := timeNow
	timeNow = func() time.Time { return f.session.SessionExpiry.Add(time.Minute) }
	defer func() { timeNow = orig }()

	rec, called := f.serve(t, "Bearer "+f.token)
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, []uuid.UUID{f.session.ID}, f.sessions.expired)
}

func TestGuard_TerminalUserStatuses(t *testing.T) {
	for _, status := range []string{model.StatusBanned, model.StatusDeleted} {
		t.Run(status, func(t *testing.T) {
			f := newGuardFixture(t)
			f.users.user.Status = status
			rec, called := f.serve(t, "Bearer "+f.token)
			assert.False(t, called)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestGuard_SessionNotListedOnUser(t *testing.T) {
	f := newGuardFixture(t)
	f.users.user.Sessions = []uuid.UUID{uuid.New()}
	rec, called := f.serve(t, "Bearer "+f.token)
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuard_SessionOwnerMismatch(t *testing.T) {
	f := newGuardFixture(t)
	f.sessions.session.UserID = uuid.New()
	rec, called := f.serve(t, "Bearer "+f.token)
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
