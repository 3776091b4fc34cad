package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classigoo/auth-server/internal/model"
	"github.com/classigoo/auth-server/internal/repo"
)

// In-memory repository fakes. They mirror the SQL semantics closely enough
// for the domain tests: keyed lookups, flag mutations, atomic-style counter
// upserts under a mutex.

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User // by lowercased email
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (r *fakeUserRepo) Create(ctx context.Context, name, email, role, avatarURL string) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[email]; ok {
		return model.User{}, fmt.Errorf("duplicate email")
	}
	u := &model.User{
		ID:                 uuid.New(),
		Name:               name,
		Email:              email,
		Role:               role,
		Status:             model.StatusPending,
		AvatarURL:          avatarURL,
		SubscriptionStatus: "inactive",
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
	r.users[email] = u
	return *u, nil
}

func (r *fakeUserRepo) FindByEmail(ctx context.Context, email string) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[email]; ok {
		return *u, nil
	}
	return model.User{}, fmt.Errorf("user %s: %w", email, repo.ErrNotFound)
}

func (r *fakeUserRepo) FindByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			return *u, nil
		}
	}
	return model.User{}, fmt.Errorf("user %s: %w", id, repo.ErrNotFound)
}

func (r *fakeUserRepo) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			u.Status = status
			u.UpdatedAt = time.Now()
			return nil
		}
	}
	return repo.ErrNotFound
}

func (r *fakeUserRepo) appendSession(userID, sessionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == userID {
			u.Sessions = append(u.Sessions, sessionID)
			return nil
		}
	}
	return repo.ErrNotFound
}

type fakeOtpRepo struct {
	mu   sync.Mutex
	rows []*model.Otp
	now  func() time.Time
}

func newFakeOtpRepo(now func() time.Time) *fakeOtpRepo {
	return &fakeOtpRepo{now: now}
}

func (r *fakeOtpRepo) Create(ctx context.Context, otp model.Otp) (model.Otp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	otp.ID = uuid.New()
	otp.CreatedAt = r.now()
	otp.UpdatedAt = r.now()
	stored := otp
	r.rows = append(r.rows, &stored)
	return otp, nil
}

func (r *fakeOtpRepo) FindActiveByEmail(ctx context.Context, email string) (model.Otp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *model.Otp
	for _, row := range r.rows {
		if row.Email == email && !row.Expired {
			if latest == nil || row.UpdatedAt.After(latest.UpdatedAt) {
				latest = row
			}
		}
	}
	if latest == nil {
		return model.Otp{}, fmt.Errorf("active otp: %w", repo.ErrNotFound)
	}
	return *latest, nil
}

func (r *fakeOtpRepo) FindByCodeAndToken(ctx context.Context, code, sessionToken string) (model.Otp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Code == code && row.SessionToken == sessionToken {
			return *row, nil
		}
	}
	return model.Otp{}, fmt.Errorf("otp: %w", repo.ErrNotFound)
}

func (r *fakeOtpRepo) FindByToken(ctx context.Context, sessionToken string) (model.Otp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.SessionToken == sessionToken {
			return *row, nil
		}
	}
	return model.Otp{}, fmt.Errorf("otp: %w", repo.ErrNotFound)
}

func (r *fakeOtpRepo) ExpireAllForEmail(ctx context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Email == email && !row.Expired {
			row.Expired = true
			row.UpdatedAt = r.now()
		}
	}
	return nil
}

func (r *fakeOtpRepo) MarkExpired(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			row.Expired = true
			row.UpdatedAt = r.now()
			return nil
		}
	}
	return repo.ErrNotFound
}

func (r *fakeOtpRepo) MarkUsed(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			row.Used = true
			row.Expired = true
			row.UpdatedAt = r.now()
			return nil
		}
	}
	return repo.ErrNotFound
}

func (r *fakeOtpRepo) Rotate(ctx context.Context, sessionToken, newCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.SessionToken == sessionToken {
			row.Code = newCode
			row.Expired = false
			row.UpdatedAt = r.now()
			return nil
		}
	}
	return repo.ErrNotFound
}

type fakeSessionRepo struct {
	mu    sync.Mutex
	rows  []*model.Session
	users *fakeUserRepo
	now   func() time.Time
}

func newFakeSessionRepo(users *fakeUserRepo, now func() time.Time) *fakeSessionRepo {
	return &fakeSessionRepo{users: users, now: now}
}

func (r *fakeSessionRepo) Create(ctx context.Context, session model.Session) (model.Session, error) {
	r.mu.Lock()
	session.ID = uuid.New()
	session.CreatedAt = r.now()
	session.UpdatedAt = r.now()
	stored := session
	r.rows = append(r.rows, &stored)
	r.mu.Unlock()
	if err := r.users.appendSession(session.UserID, session.ID); err != nil {
		return model.Session{}, err
	}
	return session, nil
}

func (r *fakeSessionRepo) FindActive(ctx context.Context, userID uuid.UUID, sessionToken string) (model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.UserID == userID && row.SessionToken == sessionToken && !row.Expired {
			return *row, nil
		}
	}
	return model.Session{}, fmt.Errorf("session: %w", repo.ErrNotFound)
}

func (r *fakeSessionRepo) MarkExpired(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			row.Expired = true
			row.UpdatedAt = r.now()
			return nil
		}
	}
	return repo.ErrNotFound
}

type fakeBlacklistRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Blacklist
	now  func() time.Time
}

func newFakeBlacklistRepo(now func() time.Time) *fakeBlacklistRepo {
	return &fakeBlacklistRepo{rows: make(map[string]*model.Blacklist), now: now}
}

func (r *fakeBlacklistRepo) Find(ctx context.Context, ip string) (model.Blacklist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bl, ok := r.rows[ip]; ok {
		return *bl, nil
	}
	return model.Blacklist{}, fmt.Errorf("blacklist: %w", repo.ErrNotFound)
}

func (r *fakeBlacklistRepo) IncrementAttempts(ctx context.Context, ip string) (model.Blacklist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bl, ok := r.rows[ip]
	if !ok {
		bl = &model.Blacklist{ID: uuid.New(), IPAddress: ip, CreatedAt: r.now()}
		r.rows[ip] = bl
	}
	bl.Attempts++
	bl.UpdatedAt = r.now()
	return *bl, nil
}

func (r *fakeBlacklistRepo) Block(ctx context.Context, ip string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	bl, ok := r.rows[ip]
	if !ok {
		return repo.ErrNotFound
	}
	bl.Attempts = 0
	bl.BlockedUntil = &until
	bl.IsBlocked = true
	bl.UpdatedAt = r.now()
	return nil
}

func (r *fakeBlacklistRepo) Unblock(ctx context.Context, ip string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	bl, ok := r.rows[ip]
	if !ok {
		return repo.ErrNotFound
	}
	bl.Attempts = 0
	bl.BlockedUntil = nil
	bl.IsBlocked = false
	bl.UpdatedAt = r.now()
	return nil
}

func (r *fakeBlacklistRepo) ResetAttempts(ctx context.Context, ip string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	bl, ok := r.rows[ip]
	if !ok {
		return repo.ErrNotFound
	}
	bl.Attempts = 0
	bl.UpdatedAt = r.now()
	return nil
}

type fakeNotificationRepo struct {
	mu   sync.Mutex
	rows []model.AuthNotification
}

func (r *fakeNotificationRepo) Create(ctx context.Context, n model.AuthNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.ID = uuid.New()
	r.rows = append(r.rows, n)
	return nil
}

func (r *fakeNotificationRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]model.AuthNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.AuthNotification
	for _, n := range r.rows {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

// recordMailer captures outbound mail and can simulate delivery failure.
type recordMailer struct {
	mu         sync.Mutex
	otpMails   []string // codes in send order
	alertMails []string // ips in send order
	failNext   bool
}

func (m *recordMailer) SendOtpCode(ctx context.Context, to, name, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return fmt.Errorf("relay unavailable")
	}
	m.otpMails = append(m.otpMails, code)
	return nil
}

func (m *recordMailer) SendLoginAlert(ctx context.Context, to, name, ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alertMails = append(m.alertMails, ip)
	return nil
}

func (m *recordMailer) lastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.otpMails) == 0 {
		return ""
	}
	return m.otpMails[len(m.otpMails)-1]
}
