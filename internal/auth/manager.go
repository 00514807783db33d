// Package auth keeps the backend bearer token alive between runs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"aptitude-ace/internal/api"
	"aptitude-ace/internal/attempts"
	"aptitude-ace/internal/domain"
)

const (
	recordKey = "auth:session"

	DefaultRefreshAfter  = 6 * 24 * time.Hour
	DefaultCheckInterval = time.Hour
)

// Backend is the subset of the API client the manager drives.
type Backend interface {
	Login(ctx context.Context, creds api.Credentials) (api.AuthResponse, error)
	Signup(ctx context.Context, creds api.Credentials) (api.AuthResponse, error)
	Profile(ctx context.Context) (domain.Profile, error)
	RefreshToken(ctx context.Context) (string, error)
	Logout(ctx context.Context) error
}

type record struct {
	Token   string         `json:"token"`
	SavedAt time.Time      `json:"savedAt"`
	Profile domain.Profile `json:"profile"`
}

// Manager owns the current token. It is safe for concurrent use and is meant
// to be handed to the API client as its TokenSource.
type Manager struct {
	backend Backend
	store   *attempts.Store
	now     func() time.Time

	refreshAfter time.Duration
	onLogin      func(ctx context.Context)

	mu  sync.RWMutex
	rec record
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func WithRefreshAfter(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.refreshAfter = d
		}
	}
}

// WithLoginHook runs fn after every successful login or signup.
func WithLoginHook(fn func(ctx context.Context)) Option {
	return func(m *Manager) { m.onLogin = fn }
}

// NewManager restores any persisted token from store.
func NewManager(ctx context.Context, backend Backend, store *attempts.Store, opts ...Option) *Manager {
	m := &Manager{
		backend:      backend,
		store:        store,
		now:          time.Now,
		refreshAfter: DefaultRefreshAfter,
	}
	for _, opt := range opts {
		opt(m)
	}
	var rec record
	if store.LoadJSON(ctx, recordKey, &rec) && rec.Token != "" {
		m.rec = rec
	}
	return m
}

func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rec.Token
}

// UserID is empty when nobody is signed in.
func (m *Manager) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.rec.Token == "" {
		return ""
	}
	return m.rec.Profile.ID
}

func (m *Manager) Profile() (domain.Profile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rec.Profile, m.rec.Token != ""
}

func (m *Manager) Login(ctx context.Context, creds api.Credentials) (domain.Profile, error) {
	resp, err := m.backend.Login(ctx, creds)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("login: %w", err)
	}
	return m.signedIn(ctx, resp)
}

func (m *Manager) Signup(ctx context.Context, creds api.Credentials) (domain.Profile, error) {
	resp, err := m.backend.Signup(ctx, creds)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("signup: %w", err)
	}
	return m.signedIn(ctx, resp)
}

func (m *Manager) signedIn(ctx context.Context, resp api.AuthResponse) (domain.Profile, error) {
	if resp.Token == "" {
		return domain.Profile{}, domain.ErrUnauthenticated
	}
	m.set(ctx, record{Token: resp.Token, SavedAt: m.now(), Profile: resp.Profile})
	if m.onLogin != nil {
		m.onLogin(ctx)
	}
	return resp.Profile, nil
}

// Logout tells the backend and clears the token either way.
func (m *Manager) Logout(ctx context.Context) error {
	err := m.backend.Logout(ctx)
	m.clear(ctx)
	return err
}

// IssuedAt reads the token's iat claim, falling back to when it was stored.
func (m *Manager) IssuedAt() time.Time {
	m.mu.RLock()
	rec := m.rec
	m.mu.RUnlock()
	if rec.Token == "" {
		return time.Time{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rec.Token, claims); err == nil {
		if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
			return iat.Time
		}
	}
	return rec.SavedAt
}

// NeedsRefresh reports whether the token is old enough to be exchanged.
func (m *Manager) NeedsRefresh() bool {
	issued := m.IssuedAt()
	if issued.IsZero() {
		return false
	}
	return !m.now().Before(issued.Add(m.refreshAfter))
}

// Refresh exchanges the token. A 401 signs the user out.
func (m *Manager) Refresh(ctx context.Context) error {
	if m.Token() == "" {
		return domain.ErrUnauthenticated
	}
	token, err := m.backend.RefreshToken(ctx)
	if err != nil {
		if api.IsUnauthorized(err) {
			m.clear(ctx)
			return fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
		}
		return fmt.Errorf("refresh token: %w", err)
	}
	if token == "" {
		return errors.New("refresh token: empty token in response")
	}
	m.mu.Lock()
	rec := m.rec
	m.mu.Unlock()
	rec.Token = token
	rec.SavedAt = m.now()
	m.set(ctx, rec)
	return nil
}

// Check refreshes an ageing token and confirms the session with the backend.
func (m *Manager) Check(ctx context.Context) error {
	if m.Token() == "" {
		return domain.ErrUnauthenticated
	}
	if m.NeedsRefresh() {
		if err := m.Refresh(ctx); err != nil {
			return err
		}
	}
	profile, err := m.backend.Profile(ctx)
	if err != nil {
		if api.IsUnauthorized(err) {
			m.clear(ctx)
			return fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
		}
		return fmt.Errorf("check session: %w", err)
	}
	m.mu.Lock()
	rec := m.rec
	m.mu.Unlock()
	rec.Profile = profile
	m.set(ctx, rec)
	return nil
}

// Run checks the session immediately and then every interval until ctx ends.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if m.Token() != "" {
			if err := m.Check(ctx); err != nil {
				log.Printf("auth check failed: %v", err)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) set(ctx context.Context, rec record) {
	m.mu.Lock()
	m.rec = rec
	m.mu.Unlock()
	if err := m.store.SaveJSON(ctx, recordKey, rec); err != nil {
		log.Printf("persist auth token: %v", err)
	}
}

func (m *Manager) clear(ctx context.Context) {
	m.mu.Lock()
	m.rec = record{}
	m.mu.Unlock()
	if err := m.store.DeleteKey(ctx, recordKey); err != nil {
		log.Printf("clear auth token: %v", err)
	}
}
