package preferences

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/mealprep/internal/kv"
)

const storageKey = "user_preferences"

// record is the single persisted value. Preferences and the onboarding flag
// share one key so CompleteOnboarding is one write.
type record struct {
	Preferences            Preferences `json:"preferences"`
	HasCompletedOnboarding bool        `json:"hasCompletedOnboarding"`
}

// storedRecord mirrors record with optional fields so that missing parts of
// an older or partial value fall back to the in-memory defaults.
type storedRecord struct {
	Preferences *struct {
		Diet      *string   `json:"diet"`
		Allergies *[]string `json:"allergies"`
		Goal      *string   `json:"goal"`
	} `json:"preferences"`
	HasCompletedOnboarding *bool `json:"hasCompletedOnboarding"`
}

// State is a snapshot of the store.
type State struct {
	Preferences            Preferences `json:"preferences"`
	HasCompletedOnboarding bool        `json:"has_completed_onboarding"`
	IsLoading              bool        `json:"is_loading"`
}

// Store holds the user's dietary preferences and onboarding flag. Writes
// update memory first; a failed persist is logged and memory stays as is.
// Concurrent writers are last-write-wins in memory. Persists are serialized
// and each writes the memory state current at that moment, so the backing
// store always ends up matching memory.
type Store struct {
	kv     kv.Store
	logger *slog.Logger

	persistMu sync.Mutex

	mu        sync.RWMutex
	prefs     Preferences
	onboarded bool
	loading   bool
	onChange  func(State, bool)

	loadOnce sync.Once
	loaded   chan struct{}
}

func New(store kv.Store, logger *slog.Logger) *Store {
	return &Store{
		kv:      store,
		logger:  logger,
		prefs:   Default(),
		loading: true,
		loaded:  make(chan struct{}),
	}
}

// OnChange registers fn to be called after every in-memory change. The
// flag is true when the change came from CompleteOnboarding.
func (s *Store) OnChange(fn func(st State, completedOnboarding bool)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Load reads the persisted record. Storage errors and malformed JSON leave
// the defaults in place; Load never fails. Only the first call has any
// effect.
func (s *Store) Load(ctx context.Context) {
	s.loadOnce.Do(func() {
		raw, found, err := s.kv.Get(context.WithoutCancel(ctx), storageKey)
		raw = kv.OrDefault(s.logger, "load preferences", raw, err, "")

		var rec storedRecord
		if found && raw != "" {
			data, err := decodeRecord(raw)
			rec = kv.OrDefault(s.logger, "decode preferences", data, err, storedRecord{})
		}

		s.mu.Lock()
		if p := rec.Preferences; p != nil {
			if p.Diet != nil {
				s.prefs.Diet = *p.Diet
			}
			if p.Allergies != nil {
				s.prefs.Allergies = *p.Allergies
			}
			if p.Goal != nil {
				s.prefs.Goal = *p.Goal
			}
			s.prefs = s.prefs.normalize()
		}
		if rec.HasCompletedOnboarding != nil {
			s.onboarded = *rec.HasCompletedOnboarding
		}
		s.loading = false
		s.mu.Unlock()
		close(s.loaded)

		s.logger.Debug("preferences loaded", "onboarded", s.HasCompletedOnboarding())
	})
}

func decodeRecord(raw string) (storedRecord, error) {
	var rec storedRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return storedRecord{}, fmt.Errorf("decode %s: %w", storageKey, err)
	}
	return rec, nil
}

// Loaded is closed once Load has settled.
func (s *Store) Loaded() <-chan struct{} {
	return s.loaded
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *Store) stateLocked() State {
	return State{
		Preferences:            s.prefs.Clone(),
		HasCompletedOnboarding: s.onboarded,
		IsLoading:              s.loading,
	}
}

func (s *Store) Preferences() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs.Clone()
}

func (s *Store) HasCompletedOnboarding() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.onboarded
}

func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Save replaces the preferences and persists them together with the
// current onboarding flag.
func (s *Store) Save(ctx context.Context, p Preferences) {
	s.mu.Lock()
	s.prefs = p.Clone()
	st, fn := s.stateLocked(), s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(st, false)
	}
	s.persist(ctx, "save preferences")
}

// CompleteOnboarding stores p and marks onboarding done in one write. It is
// the only way the flag becomes true.
func (s *Store) CompleteOnboarding(ctx context.Context, p Preferences) {
	s.mu.Lock()
	s.prefs = p.Clone()
	s.onboarded = true
	st, fn := s.stateLocked(), s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(st, true)
	}
	s.persist(ctx, "complete onboarding")
}

// persist writes the current memory state. The record is taken under
// persistMu, not by the caller, so a slow earlier write cannot land on top
// of a later one with older values.
func (s *Store) persist(ctx context.Context, op string) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	rec := record{Preferences: s.prefs.Clone(), HasCompletedOnboarding: s.onboarded}
	s.mu.RUnlock()

	data, err := json.Marshal(rec)
	if err != nil {
		kv.LogFailure(s.logger, op, fmt.Errorf("encode %s: %w", storageKey, err))
		return
	}
	err = s.kv.Set(context.WithoutCancel(ctx), storageKey, string(data))
	kv.LogFailure(s.logger, op, err)
}
