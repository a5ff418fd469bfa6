// Package session mirrors the auth backend's view of the signed-in user.
// The backend owns credentials, tokens and their persistence; this store
// only caches who is signed in.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dukerupert/mealprep/internal/authclient"
)

// Backend is the subset of the auth client this store drives.
type Backend interface {
	SignInWithPassword(ctx context.Context, email, password string) (*authclient.Session, error)
	SignUp(ctx context.Context, email, password string) (*authclient.Session, *authclient.User, error)
	SignOut(ctx context.Context) error
	DeleteUser(ctx context.Context) error
	GetSession(ctx context.Context) (*authclient.Session, error)
}

// AuthError is the single error kind for every auth failure. Callers show
// Message and do not branch on it.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string { return e.Message }

func (e *AuthError) Unwrap() error { return e.Err }

func authError(fallback string, err error) error {
	var apiErr *authclient.APIError
	switch {
	case errors.As(err, &apiErr):
		return &AuthError{Message: apiErr.Message, Err: err}
	case errors.Is(err, authclient.ErrNoSession):
		return &AuthError{Message: "You are not signed in", Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &AuthError{Message: "Request cancelled", Err: err}
	default:
		return &AuthError{Message: fallback, Err: err}
	}
}

type User = authclient.User

// State is a snapshot of the store.
type State struct {
	User            *User `json:"user"`
	IsAuthenticated bool  `json:"is_authenticated"`
	IsLoading       bool  `json:"is_loading"`
}

type Store struct {
	backend Backend
	logger  *slog.Logger

	mu       sync.RWMutex
	user     *User
	loading  bool
	onChange func(*User)

	loadOnce sync.Once
	loaded   chan struct{}
}

func New(backend Backend, logger *slog.Logger) *Store {
	return &Store{
		backend: backend,
		logger:  logger,
		loading: true,
		loaded:  make(chan struct{}),
	}
}

// OnChange registers fn to be called whenever the signed-in user changes.
// fn receives nil on sign-out.
func (s *Store) OnChange(fn func(*User)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Load asks the backend for its current session. A failure leaves the
// store in guest mode. Only the first call has any effect.
func (s *Store) Load(ctx context.Context) {
	s.loadOnce.Do(func() {
		sess, err := s.backend.GetSession(context.WithoutCancel(ctx))
		if err != nil {
			s.logger.Warn("load session", "error", err)
		}

		s.mu.Lock()
		if sess != nil {
			u := sess.User
			s.user = &u
		}
		s.loading = false
		s.mu.Unlock()
		close(s.loaded)

		s.logger.Debug("session loaded", "authenticated", s.IsAuthenticated())
	})
}

// Loaded is closed once Load has settled.
func (s *Store) Loaded() <-chan struct{} {
	return s.loaded
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{User: s.copyUser(), IsAuthenticated: s.user != nil, IsLoading: s.loading}
}

// User returns the signed-in user, or nil in guest mode.
func (s *Store) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyUser()
}

func (s *Store) copyUser() *User {
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Store) setUser(u *User) {
	s.mu.Lock()
	s.user = u
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn(s.User())
	}
}

func (s *Store) SignIn(ctx context.Context, email, password string) error {
	sess, err := s.backend.SignInWithPassword(ctx, email, password)
	if err != nil {
		return authError("Authentication failed", err)
	}
	u := sess.User
	s.setUser(&u)
	s.logger.Info("signed in", "user_id", u.ID)
	return nil
}

// SignUp creates an account. It reports whether the user is now signed in;
// false means the backend is waiting for email confirmation.
func (s *Store) SignUp(ctx context.Context, email, password string) (bool, error) {
	sess, _, err := s.backend.SignUp(ctx, email, password)
	if err != nil {
		return false, authError("Sign up failed", err)
	}
	if sess == nil {
		s.logger.Info("sign up pending confirmation")
		return false, nil
	}
	u := sess.User
	s.setUser(&u)
	s.logger.Info("signed up", "user_id", u.ID)
	return true, nil
}

func (s *Store) SignOut(ctx context.Context) error {
	if err := s.backend.SignOut(ctx); err != nil {
		return authError("Sign out failed", err)
	}
	s.setUser(nil)
	s.logger.Info("signed out")
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context) error {
	if err := s.backend.DeleteUser(ctx); err != nil {
		return authError("Failed to delete account", err)
	}
	s.setUser(nil)
	s.logger.Info("account deleted")
	return nil
}
