// Package session owns the login lifecycle: it stores the credentials,
// connects the socket after login and tears it down on logout.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wavoo-crm/crmchat/frontend/internal/storage/fs"
	"github.com/wavoo-crm/crmchat/frontend/internal/transport"
	"github.com/wavoo-crm/crmchat/shared/api"
	"github.com/wavoo-crm/crmchat/shared/domain"
	internal_errors "github.com/wavoo-crm/crmchat/shared/errors"
	"github.com/wavoo-crm/crmchat/shared/jwt"
	"github.com/wavoo-crm/crmchat/shared/logger"
)

const stateKey = "session"

type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*api.LoginResponse, error)
	SuperLogin(ctx context.Context, email, password string) (*api.LoginResponse, error)
	Me(ctx context.Context, token string) (*domain.User, error)
}

// Connection is the socket as seen by the session, the only owner allowed
// to connect and disconnect it.
type Connection interface {
	transport.EventSource
	Connect(ctx context.Context, credential string) error
	Disconnect()
}

type StateStore interface {
	Save(key string, v any) error
	Load(key string, v any) error
	Delete(key string) error
}

// Notifier shows a message notification addressed to the logged-in user.
type Notifier interface {
	Notify(n domain.MessageNotification)
}

type NotifierFunc func(domain.MessageNotification)

func (f NotifierFunc) Notify(n domain.MessageNotification) { f(n) }

type persisted struct {
	Token      string       `json:"token,omitempty"`
	SuperToken string       `json:"superToken,omitempty"`
	User       *domain.User `json:"user,omitempty"`
}

type Manager struct {
	auth  AuthAPI
	conn  Connection
	store StateStore
	creds *Credentials
	log   *slog.Logger
	now   func() time.Time

	mu             sync.Mutex
	user           *domain.User
	subs           *transport.Group
	notifier       Notifier
	onForcedLogout func(reason string)
}

func New(auth AuthAPI, conn Connection, store StateStore, creds *Credentials) *Manager {
	return &Manager{
		auth:  auth,
		conn:  conn,
		store: store,
		creds: creds,
		log:   logger.Component("session"),
		now:   time.Now,
	}
}

func (m *Manager) SetNotifier(n Notifier) {
	m.mu.Lock()
	m.notifier = n
	m.mu.Unlock()
}

// OnForcedLogout registers a callback run after the server ends the session.
func (m *Manager) OnForcedLogout(fn func(reason string)) {
	m.mu.Lock()
	m.onForcedLogout = fn
	m.mu.Unlock()
}

func (m *Manager) Login(ctx context.Context, email, password string) (*domain.User, error) {
	resp, err := m.auth.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("%w: login returned no token", internal_errors.ErrNotAuthenticated)
	}
	user := resp.User
	if err := m.establish(ctx, resp.Token, &user); err != nil {
		return nil, err
	}
	m.log.Info("logged in", "user_id", user.ID, "tenant_id", user.TenantID)
	return m.User(), nil
}

// SuperLogin stores a super-admin token for /super routes. It does not touch
// the tenant session or the socket.
func (m *Manager) SuperLogin(ctx context.Context, email, password string) error {
	resp, err := m.auth.SuperLogin(ctx, email, password)
	if err != nil {
		return err
	}
	if resp.Token == "" {
		return fmt.Errorf("%w: login returned no token", internal_errors.ErrNotAuthenticated)
	}
	m.creds.setSuper(resp.Token)
	m.persist()
	m.log.Info("super admin logged in", "email", email)
	return nil
}

// Resume restores a stored session after verifying the token with the
// server. Any failure logs the session out.
func (m *Manager) Resume(ctx context.Context) (*domain.User, error) {
	var state persisted
	if err := m.store.Load(stateKey, &state); err != nil {
		if errors.Is(err, fs.ErrNotFound) {
			return nil, internal_errors.ErrNotAuthenticated
		}
		return nil, err
	}
	m.creds.setSuper(state.SuperToken)
	if state.Token == "" {
		return nil, internal_errors.ErrNotAuthenticated
	}

	user, err := m.auth.Me(ctx, state.Token)
	if err != nil {
		m.log.Warn("stored session rejected", "error", err)
		m.Logout()
		return nil, err
	}
	if err := m.establish(ctx, state.Token, user); err != nil {
		m.Logout()
		return nil, err
	}
	return m.User(), nil
}

// establish stores the session and connects the socket.
func (m *Manager) establish(ctx context.Context, token string, user *domain.User) error {
	claims, err := jwt.Inspect(token)
	if err != nil {
		m.log.Warn("session token is not a JWT, skipping expiry check", "error", err)
	} else {
		if claims.Expired(m.now()) {
			return internal_errors.ErrTokenExpired
		}
		if user.ID == "" {
			user.ID = claims.UserID
		}
		if user.TenantID == "" {
			user.TenantID = claims.TenantID
		}
		if user.Role == "" {
			user.Role = claims.Role
		}
	}

	m.creds.set(token)
	m.mu.Lock()
	m.user = user
	m.mu.Unlock()
	m.persist()

	m.listen()
	if err := m.conn.Connect(ctx, token); err != nil {
		return fmt.Errorf("failed to connect socket: %w", err)
	}
	return nil
}

func (m *Manager) listen() {
	g := &transport.Group{}
	g.Add(
		transport.Subscribe(m.conn, api.EventForceLogout, m.handleForceLogout),
		transport.Subscribe(m.conn, api.EventMessageNotify, m.handleNotification),
	)

	m.mu.Lock()
	prev := m.subs
	m.subs = g
	m.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

func (m *Manager) handleForceLogout(fl domain.ForceLogout) {
	m.log.Warn("logged out by server", "reason", fl.Message)
	m.Logout()

	m.mu.Lock()
	fn := m.onForcedLogout
	m.mu.Unlock()
	if fn != nil {
		fn(fl.Message)
	}
}

func (m *Manager) handleNotification(n domain.MessageNotification) {
	m.mu.Lock()
	user, notifier := m.user, m.notifier
	m.mu.Unlock()
	if user == nil || notifier == nil || n.AssignedTo.String() != user.ID.String() {
		return
	}
	notifier.Notify(n)
}

// Logout forgets the session token and disconnects the socket. A stored
// super-admin token is kept. It is safe to call when logged out.
func (m *Manager) Logout() {
	m.mu.Lock()
	subs := m.subs
	m.subs = nil
	m.user = nil
	m.mu.Unlock()

	if subs != nil {
		subs.Close()
	}
	m.creds.set("")
	m.persist()
	m.conn.Disconnect()
}

func (m *Manager) persist() {
	m.mu.Lock()
	state := persisted{Token: m.creds.Token(), SuperToken: m.creds.SuperToken(), User: m.user}
	m.mu.Unlock()

	var err error
	if state.Token == "" && state.SuperToken == "" {
		err = m.store.Delete(stateKey)
	} else {
		err = m.store.Save(stateKey, state)
	}
	if err != nil {
		m.log.Error("failed to persist session", "error", err)
	}
}

func (m *Manager) User() *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

func (m *Manager) Authenticated() bool {
	return m.User() != nil
}
