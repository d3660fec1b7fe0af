package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Screen is the top-level view the process shows.
type Screen string

const (
	ScreenLogin     Screen = "login"
	ScreenProjects  Screen = "projects"
	ScreenDashboard Screen = "dashboard"
)

// Session is the persisted login record.
type Session struct {
	ID         uuid.UUID `json:"id"`
	Role       Role      `json:"role"`
	Email      string    `json:"email"`
	LoggedInAt time.Time `json:"logged_in_at"`
}

// Valid reports whether the record can be restored.
func (s Session) Valid() bool {
	return s.Role.Valid() && strings.TrimSpace(s.Email) != ""
}

// Account is a configured login. PasswordHash is a bcrypt hash.
type Account struct {
	Email        string `json:"email" yaml:"email"`
	Role         Role   `json:"role" yaml:"role"`
	PasswordHash string `json:"password_hash" yaml:"password_hash"`
}

// StaticAuthenticator checks credentials against a fixed account list.
type StaticAuthenticator struct {
	accounts map[string]Account
}

// NewStaticAuthenticator indexes accounts by lower-cased email.
func NewStaticAuthenticator(accounts ...Account) *StaticAuthenticator {
	index := make(map[string]Account, len(accounts))
	for _, acc := range accounts {
		key := strings.ToLower(strings.TrimSpace(acc.Email))
		if key == "" {
			continue
		}
		index[key] = acc
	}
	return &StaticAuthenticator{accounts: index}
}

// HashPassword returns a bcrypt hash suitable for Account.PasswordHash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("tracker: hash password: %w", err)
	}
	return string(hash), nil
}

// Authenticate resolves the account role or returns ErrInvalidCredentials.
func (a *StaticAuthenticator) Authenticate(_ context.Context, email, password string) (Role, error) {
	if a == nil {
		return "", ErrInvalidCredentials
	}
	acc, ok := a.accounts[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return acc.Role, nil
}

// SessionOptions configures a SessionManager.
type SessionOptions struct {
	Store         KeyValueStore
	Authenticator Authenticator
	Clock         Clock
	Logger        *logrus.Entry
}

// SessionManager tracks the signed-in role and the current screen.
type SessionManager struct {
	mu      sync.RWMutex
	opts    SessionOptions
	session *Session
	screen  Screen
}

// NewSessionManager returns a manager on the login screen.
func NewSessionManager(opts SessionOptions) *SessionManager {
	if opts.Clock == nil {
		opts.Clock = NewRealClock()
	}
	opts.Logger = normalizeLogger(opts.Logger)
	return &SessionManager{opts: opts, screen: ScreenLogin}
}

// Login authenticates and persists the session. The authenticated role must
// match the requested one; on any failure nothing changes.
func (m *SessionManager) Login(ctx context.Context, role Role, email, password string) (Session, error) {
	if m.opts.Store == nil {
		return Session{}, errMissingKeyValueStore
	}
	if m.opts.Authenticator == nil || !role.Valid() {
		return Session{}, ErrInvalidCredentials
	}
	got, err := m.opts.Authenticator.Authenticate(ctx, email, password)
	if err != nil || got != role {
		m.opts.Logger.WithField("email", email).Info("login rejected")
		return Session{}, ErrInvalidCredentials
	}
	session := Session{
		ID:         uuid.New(),
		Role:       role,
		Email:      strings.TrimSpace(email),
		LoggedInAt: m.opts.Clock.Now().UTC(),
	}
	data, err := json.Marshal(session)
	if err != nil {
		return Session{}, fmt.Errorf("tracker: encode session: %w", err)
	}
	if err := m.opts.Store.Set(ctx, SessionKey, data); err != nil {
		return Session{}, fmt.Errorf("tracker: save session: %w", err)
	}

	m.mu.Lock()
	m.session = &session
	m.screen = ScreenProjects
	m.mu.Unlock()
	m.opts.Logger.WithFields(logrus.Fields{"email": session.Email, "role": session.Role}).Info("logged in")
	return session, nil
}

// Logout clears the persisted session and returns to the login screen.
func (m *SessionManager) Logout(ctx context.Context) error {
	if m.opts.Store == nil {
		return errMissingKeyValueStore
	}
	if err := m.opts.Store.Delete(ctx, SessionKey); err != nil {
		return fmt.Errorf("tracker: delete session: %w", err)
	}
	m.mu.Lock()
	m.session = nil
	m.screen = ScreenLogin
	m.mu.Unlock()
	return nil
}

// Restore loads a previously persisted session. Malformed or invalid records
// are removed and reported as no session.
func (m *SessionManager) Restore(ctx context.Context) (Session, bool, error) {
	if m.opts.Store == nil {
		return Session{}, false, errMissingKeyValueStore
	}
	raw, ok, err := m.opts.Store.Get(ctx, SessionKey)
	if err != nil {
		return Session{}, false, fmt.Errorf("tracker: load session: %w", err)
	}
	if !ok {
		return Session{}, false, nil
	}
	var session Session
	if err := json.Unmarshal(raw, &session); err != nil || !session.Valid() {
		m.opts.Logger.Warn("dropping invalid session record")
		if err := m.opts.Store.Delete(ctx, SessionKey); err != nil {
			return Session{}, false, fmt.Errorf("tracker: delete session: %w", err)
		}
		return Session{}, false, nil
	}
	m.mu.Lock()
	m.session = &session
	m.screen = ScreenProjects
	m.mu.Unlock()
	return session, true, nil
}

// Current returns the active session, if any.
func (m *SessionManager) Current() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// Role returns the active role or "" when signed out.
func (m *SessionManager) Role() Role {
	s, ok := m.Current()
	if !ok {
		return ""
	}
	return s.Role
}

// Screen returns the current screen.
func (m *SessionManager) Screen() Screen {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.screen
}

// OpenDashboard moves from the project list to the dashboard.
func (m *SessionManager) OpenDashboard() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return ErrForbidden
	}
	m.screen = ScreenDashboard
	return nil
}
