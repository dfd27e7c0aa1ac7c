package services_test

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/guardian-dev/guardian/domain"
	serrors "github.com/guardian-dev/guardian/errors"
	"github.com/guardian-dev/guardian/services"
)

// In-memory fakes shared by the service tests.

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
	seq   int
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*domain.User)}
}

func (r *memUserRepo) CreateUser(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == user.Username {
			return serrors.ErrDuplicateRecord
		}
	}
	r.seq++
	if user.ID == "" {
		user.ID = fmt.Sprintf("user-%d", r.seq)
	}
	user.CreatedAt = time.Now()
	// Mirror UserRepositoryMongo.CreateUser, which defaults LastSeenAt on create.
	if user.LastSeenAt.IsZero() {
		user.LastSeenAt = time.Now()
	}
	r.users[user.ID] = user
	return nil
}

func (r *memUserRepo) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, serrors.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, serrors.ErrNotFound
}

func (r *memUserRepo) SetMFARequired(_ context.Context, id string, required bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return serrors.ErrNotFound
	}
	u.MFARequired = required
	return nil
}

func (r *memUserRepo) TouchLastSeen(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return serrors.ErrNotFound
	}
	u.LastSeenAt = time.Now()
	return nil
}

type memTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*domain.SessionToken
	seq    int
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{tokens: make(map[string]*domain.SessionToken)}
}

func tokenKey(sessionID string, typ domain.TokenType) string {
	return sessionID + ":" + string(typ)
}

func (r *memTokenRepo) StoreToken(_ context.Context, token *domain.SessionToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if token.ID == "" {
		token.ID = fmt.Sprintf("token-%d", r.seq)
	}
	token.CreatedAt = time.Now()
	r.tokens[tokenKey(token.SessionID, token.Type)] = token
	return nil
}

func (r *memTokenRepo) GetBySession(_ context.Context, sessionID string, typ domain.TokenType) (*domain.SessionToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, ok := r.tokens[tokenKey(sessionID, typ)]
	if !ok {
		return nil, serrors.ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (r *memTokenRepo) DeleteBySession(_ context.Context, sessionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for _, typ := range []domain.TokenType{domain.TokenTypeAccess, domain.TokenTypeRefresh} {
		if _, ok := r.tokens[tokenKey(sessionID, typ)]; ok {
			delete(r.tokens, tokenKey(sessionID, typ))
			deleted++
		}
	}
	return deleted, nil
}

func (r *memTokenRepo) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for key, tok := range r.tokens {
		if tok.UserID == userID {
			delete(r.tokens, key)
			deleted++
		}
	}
	return deleted, nil
}

func (r *memTokenRepo) ListSessionIDsByUser(_ context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	var ids []string
	for _, tok := range r.tokens {
		if tok.UserID == userID && !seen[tok.SessionID] {
			seen[tok.SessionID] = true
			ids = append(ids, tok.SessionID)
		}
	}
	return ids, nil
}

type memAttemptRepo struct {
	mu       sync.Mutex
	attempts map[string]*domain.LoginAttempt
}

func newMemAttemptRepo() *memAttemptRepo {
	return &memAttemptRepo{attempts: make(map[string]*domain.LoginAttempt)}
}

func (r *memAttemptRepo) GetByUser(_ context.Context, userID string) (*domain.LoginAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[userID]
	if !ok {
		return nil, serrors.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memAttemptRepo) Upsert(_ context.Context, attempt *domain.LoginAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *attempt
	r.attempts[attempt.UserID] = &cp
	return nil
}

// plainHasher trades bcrypt's cost for speed; the services only care about the
// Hash/Verify contract.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) {
	return "hashed!" + password, nil
}

func (plainHasher) Verify(hashedPassword, password string) error {
	if hashedPassword != "hashed!"+password {
		return fmt.Errorf("mismatch")
	}
	return nil
}

// captureMailer records sent mail instead of delivering it.
type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

func (m *captureMailer) Send(_ context.Context, to, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

var codePattern = regexp.MustCompile(`\d{6}`)

func (m *captureMailer) lastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return codePattern.FindString(m.sent[len(m.sent)-1].Body)
}

// syncScheduler queues scheduled work for explicit flushing.
type syncScheduler struct {
	mu  sync.Mutex
	fns []func()
}

func (s *syncScheduler) Schedule(_ time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fns = append(s.fns, fn)
}

func (s *syncScheduler) Flush() {
	s.mu.Lock()
	fns := s.fns
	s.fns = nil
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func newTestSigner() *services.TokenSigner {
	signer := services.NewTokenSigner()
	signer.AddKeySigner(services.KeyPurposeAccess, "test-access-secret")
	signer.AddKeySigner(services.KeyPurposeRefresh, "test-refresh-secret")
	signer.AddKeySigner(services.KeyPurposeMFA, "test-mfa-secret")
	return signer
}
