package theme

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dukerupert/mealprep/internal/kv"
)

const storageKey = "theme"

type Mode string

const (
	Light Mode = "light"
	Dark  Mode = "dark"
)

var ErrInvalidMode = errors.New("invalid theme mode")

// ParseMode accepts exactly "light" or "dark".
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case Light, Dark:
		return Mode(s), true
	}
	return "", false
}

// State is a snapshot of the store.
type State struct {
	Mode      Mode `json:"mode"`
	IsDark    bool `json:"is_dark"`
	IsLoading bool `json:"is_loading"`
}

// Store holds the light/dark preference. The in-memory mode is
// authoritative; persistence is best effort and never reverts it.
type Store struct {
	kv     kv.Store
	logger *slog.Logger

	// persistMu orders writes; each one stores the mode current under it.
	persistMu sync.Mutex

	mu       sync.RWMutex
	mode     Mode
	loading  bool
	onChange func(Mode)

	loadOnce sync.Once
	loaded   chan struct{}
}

// New creates a theme store defaulting to the system appearance, or light
// when the appearance is empty or unrecognised. Call Load to read the
// persisted value.
func New(store kv.Store, systemAppearance string, logger *slog.Logger) *Store {
	mode, ok := ParseMode(strings.ToLower(strings.TrimSpace(systemAppearance)))
	if !ok {
		mode = Light
	}
	return &Store{
		kv:      store,
		logger:  logger,
		mode:    mode,
		loading: true,
		loaded:  make(chan struct{}),
	}
}

// OnChange registers fn to be called after every in-memory mode change.
func (s *Store) OnChange(fn func(Mode)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Load reads the persisted mode. It never fails: storage errors and
// unrecognised values leave the default in place. Only the first call has
// any effect.
func (s *Store) Load(ctx context.Context) {
	s.loadOnce.Do(func() {
		ctx = context.WithoutCancel(ctx)
		stored, found, err := s.kv.Get(ctx, storageKey)
		stored = kv.OrDefault(s.logger, "load theme", stored, err, "")

		s.mu.Lock()
		if mode, ok := ParseMode(stored); found && ok {
			s.mode = mode
		}
		s.loading = false
		s.mu.Unlock()
		close(s.loaded)

		s.logger.Debug("theme loaded", "mode", s.Mode())
	})
}

// Loaded is closed once Load has settled.
func (s *Store) Loaded() <-chan struct{} {
	return s.loaded
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{Mode: s.mode, IsDark: s.mode == Dark, IsLoading: s.loading}
}

func (s *Store) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

func (s *Store) IsDark() bool {
	return s.Mode() == Dark
}

func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Toggle flips the mode and persists it. The new mode is returned even if
// the write fails.
func (s *Store) Toggle(ctx context.Context) Mode {
	s.mu.Lock()
	next := Dark
	if s.mode == Dark {
		next = Light
	}
	s.mode = next
	fn := s.onChange
	s.mu.Unlock()

	s.changed(fn, next)
	s.persist(ctx)
	return next
}

// Set applies mode and persists it. Only an unknown mode is an error.
func (s *Store) Set(ctx context.Context, mode Mode) error {
	if _, ok := ParseMode(string(mode)); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	s.mu.Lock()
	s.mode = mode
	fn := s.onChange
	s.mu.Unlock()

	s.changed(fn, mode)
	s.persist(ctx)
	return nil
}

func (s *Store) changed(fn func(Mode), mode Mode) {
	if fn != nil {
		fn(mode)
	}
}

func (s *Store) persist(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	err := s.kv.Set(context.WithoutCancel(ctx), storageKey, string(s.Mode()))
	kv.LogFailure(s.logger, "save theme", err)
}
