// Package authclient talks to a Supabase-compatible (GoTrue) auth service
// and keeps the issued session in a kv.Store, refreshing it when the access
// token is about to expire.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dukerupert/mealprep/internal/kv"
)

const (
	storageKey    = "auth_session"
	refreshMargin = time.Minute
)

// ErrNoSession is returned by operations that need a signed-in user.
var ErrNoSession = errors.New("not signed in")

// APIError is a rejection reported by the auth service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth service: %s (status %d)", e.Message, e.Status)
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is the token set issued on sign-in.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         User   `json:"user"`
}

// Expiry returns when the access token expires. It prefers expires_at and
// falls back to the token's exp claim. The token signature is not checked;
// the service does that.
func (s *Session) Expiry() time.Time {
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0)
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

func (s *Session) needsRefresh(now time.Time) bool {
	exp := s.Expiry()
	return !exp.IsZero() && now.Add(refreshMargin).After(exp)
}

type Config struct {
	URL     string
	AnonKey string
}

// Client is safe for concurrent use.
type Client struct {
	cfg        Config
	store      kv.Store
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu sync.Mutex
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

func NewClient(cfg Config, store kv.Store, opts ...Option) *Client {
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	c := &Client{
		cfg:        cfg,
		store:      store,
		httpClient: http.DefaultClient,
		logger:     slog.New(slog.DiscardHandler),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether a service URL and key are set.
func (c *Client) Configured() bool {
	return c.cfg.URL != "" && c.cfg.AnonKey != ""
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInWithPassword exchanges credentials for a session and persists it.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var sess Session
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", credentials{email, password}, &sess); err != nil {
		return nil, err
	}
	c.fillExpiry(&sess)
	c.save(ctx, &sess)
	return &sess, nil
}

// signUpResponse covers both shapes the service returns: a full session
// when auto-confirm is on, or just the user when email confirmation is
// pending.
type signUpResponse struct {
	Session
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SignUp creates an account. When the service requires email confirmation
// the returned session is nil and only the user is set.
func (c *Client) SignUp(ctx context.Context, email, password string) (*Session, *User, error) {
	var resp signUpResponse
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", "", credentials{email, password}, &resp); err != nil {
		return nil, nil, err
	}
	if resp.AccessToken == "" {
		return nil, &User{ID: resp.ID, Email: resp.Email}, nil
	}
	sess := resp.Session
	c.fillExpiry(&sess)
	c.save(ctx, &sess)
	return &sess, &sess.User, nil
}

// GetSession returns the persisted session, refreshing it first when the
// access token is about to expire. It returns nil, nil when signed out.
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.load(ctx)
	if err != nil || sess == nil {
		return nil, err
	}
	if !sess.needsRefresh(c.now()) {
		return sess, nil
	}

	refreshed, err := c.refresh(ctx, sess.RefreshToken)
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		// Refresh token revoked or expired: the session is gone.
		c.logger.Info("session refresh rejected", "status", apiErr.Status)
		c.clear(ctx)
		return nil, nil
	case err != nil:
		c.logger.Warn("session refresh failed, keeping stored session", "error", err)
		return sess, nil
	}
	return refreshed, nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*Session, error) {
	var sess Session
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", body, &sess); err != nil {
		return nil, err
	}
	c.fillExpiry(&sess)
	c.save(ctx, &sess)
	return &sess, nil
}

// SignOut revokes the session at the service and forgets it locally. A
// token the service no longer recognises counts as signed out.
func (c *Client) SignOut(ctx context.Context) error {
	sess, err := c.GetSession(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}

	err = c.do(ctx, http.MethodPost, "/auth/v1/logout", sess.AccessToken, nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			err = nil
		}
	}
	if err != nil {
		return err
	}
	c.clear(ctx)
	return nil
}

// DeleteUser removes the signed-in account through the delete_user RPC and
// forgets the local session.
func (c *Client) DeleteUser(ctx context.Context) error {
	sess, err := c.GetSession(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrNoSession
	}
	if err := c.do(ctx, http.MethodPost, "/rest/v1/rpc/delete_user", sess.AccessToken, map[string]any{}, nil); err != nil {
		return err
	}
	c.clear(ctx)
	return nil
}

func (c *Client) fillExpiry(sess *Session) {
	if sess.ExpiresAt == 0 && sess.ExpiresIn > 0 {
		sess.ExpiresAt = c.now().Add(time.Duration(sess.ExpiresIn) * time.Second).Unix()
	}
}

func (c *Client) load(ctx context.Context) (*Session, error) {
	raw, found, err := c.store.Get(ctx, storageKey)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !found {
		return nil, nil
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil || sess.AccessToken == "" {
		c.logger.Warn("discarding unreadable stored session", "error", err)
		return nil, nil
	}
	return &sess, nil
}

func (c *Client) save(ctx context.Context, sess *Session) {
	data, err := json.Marshal(sess)
	if err != nil {
		c.logger.Error("encode session", "error", err)
		return
	}
	kv.LogFailure(c.logger, "persist session", c.store.Set(context.WithoutCancel(ctx), storageKey, string(data)))
}

func (c *Client) clear(ctx context.Context) {
	kv.LogFailure(c.logger, "clear session", c.store.Delete(context.WithoutCancel(ctx), storageKey))
}

// errorBody covers the error fields GoTrue and PostgREST use.
type errorBody struct {
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
}

func (b errorBody) message() string {
	for _, m := range []string{b.ErrorDescription, b.Msg, b.Message, b.Error} {
		if m != "" {
			return m
		}
	}
	return ""
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	if !c.Configured() {
		return errors.New("auth client not configured: missing URL or anon key")
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.URL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.cfg.AnonKey)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if bearer == "" {
		bearer = c.cfg.AnonKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		// A body that is not JSON leaves eb empty and falls back to the
		// status text.
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		msg := eb.message()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
