package preferences

import (
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"sync"
	"testing"

	"github.com/dukerupert/mealprep/internal/database"
	"github.com/dukerupert/mealprep/internal/kv"
	"github.com/dukerupert/mealprep/internal/logging"
)

func setupStore(t *testing.T) (*Store, *kv.MemoryStore) {
	t.Helper()
	mem := kv.NewMemoryStore()
	return New(mem, logging.Discard()), mem
}

func loadFresh(t *testing.T, store kv.Store) *Store {
	t.Helper()
	s := New(store, logging.Discard())
	s.Load(context.Background())
	return s
}

func TestFreshInstallDefaults(t *testing.T) {
	s, _ := setupStore(t)
	if !s.IsLoading() {
		t.Error("expected IsLoading before Load")
	}
	s.Load(context.Background())

	st := s.State()
	if st.IsLoading {
		t.Error("expected IsLoading = false after Load")
	}
	if !st.Preferences.Equal(Default()) {
		t.Errorf("preferences = %+v, want defaults", st.Preferences)
	}
	if st.HasCompletedOnboarding {
		t.Error("fresh install should not be onboarded")
	}
}

func TestCompleteOnboardingRoundTrip(t *testing.T) {
	prior := []string{
		"",
		`{"preferences":{"diet":"keto","allergies":["Soy"],"goal":"energy"},"hasCompletedOnboarding":false}`,
		`{"preferences":{"diet":"vegan","allergies":[],"goal":"balanced"},"hasCompletedOnboarding":true}`,
		`not json`,
	}
	want := Preferences{Diet: "high-protein", Allergies: []string{"Nuts", "Dairy"}, Goal: "muscle-gain"}

	for _, raw := range prior {
		mem := kv.NewMemoryStore()
		if raw != "" {
			mem.Set(context.Background(), "user_preferences", raw)
		}

		s := loadFresh(t, mem)
		s.CompleteOnboarding(context.Background(), want)

		fresh := loadFresh(t, mem)
		if !fresh.Preferences().Equal(want) {
			t.Errorf("prior %q: preferences = %+v, want %+v", raw, fresh.Preferences(), want)
		}
		if !fresh.HasCompletedOnboarding() {
			t.Errorf("prior %q: expected onboarding complete", raw)
		}
	}
}

func TestCompleteOnboardingIsSingleWrite(t *testing.T) {
	s, mem := setupStore(t)
	s.Load(context.Background())

	s.CompleteOnboarding(context.Background(), Default())
	if mem.Writes() != 1 {
		t.Errorf("writes = %d, want 1", mem.Writes())
	}

	raw, _, _ := mem.Get(context.Background(), "user_preferences")
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		t.Fatalf("decode persisted record: %v", err)
	}
	if !rec.HasCompletedOnboarding {
		t.Error("persisted record missing onboarding flag")
	}
}

func TestSaveIdempotent(t *testing.T) {
	p := Preferences{Diet: "low-carb", Allergies: []string{"Gluten"}, Goal: "weight-loss"}

	once := kv.NewMemoryStore()
	s1 := loadFresh(t, once)
	s1.Save(context.Background(), p)

	twice := kv.NewMemoryStore()
	s2 := loadFresh(t, twice)
	s2.Save(context.Background(), p)
	s2.Save(context.Background(), p)

	a, _, _ := once.Get(context.Background(), "user_preferences")
	b, _, _ := twice.Get(context.Background(), "user_preferences")
	if a != b {
		t.Errorf("persisted state differs:\n once:  %s\n twice: %s", a, b)
	}
}

func TestSaveKeepsOnboardingFlag(t *testing.T) {
	s, mem := setupStore(t)
	s.Load(context.Background())
	s.CompleteOnboarding(context.Background(), Default())

	edited := Preferences{Diet: "paleo", Allergies: []string{}, Goal: "energy"}
	s.Save(context.Background(), edited)

	fresh := loadFresh(t, mem)
	if !fresh.HasCompletedOnboarding() {
		t.Error("Save cleared the onboarding flag")
	}
	if !fresh.Preferences().Equal(edited) {
		t.Errorf("preferences = %+v, want %+v", fresh.Preferences(), edited)
	}
}

func TestSaveBeforeOnboardingDoesNotCompleteIt(t *testing.T) {
	s, mem := setupStore(t)
	s.Load(context.Background())
	s.Save(context.Background(), Preferences{Diet: "vegan", Goal: "balanced"})

	fresh := loadFresh(t, mem)
	if fresh.HasCompletedOnboarding() {
		t.Error("Save must not complete onboarding")
	}
}

func TestMalformedJSONFallsBackToDefaults(t *testing.T) {
	mem := kv.NewMemoryStore()
	mem.Set(context.Background(), "user_preferences", `{"preferences": {"diet": "keto",`)

	s := loadFresh(t, mem)
	if s.IsLoading() {
		t.Error("expected IsLoading = false")
	}
	if !s.Preferences().Equal(Default()) {
		t.Errorf("preferences = %+v, want defaults", s.Preferences())
	}
	if s.HasCompletedOnboarding() {
		t.Error("expected onboarding false after malformed record")
	}
}

func TestWrongTypesFallBackToDefaults(t *testing.T) {
	mem := kv.NewMemoryStore()
	mem.Set(context.Background(), "user_preferences", `{"preferences":{"diet":5},"hasCompletedOnboarding":true}`)

	s := loadFresh(t, mem)
	if s.HasCompletedOnboarding() {
		t.Error("a record that fails to decode must be ignored entirely")
	}
}

func TestMissingSubFieldsKeepDefaults(t *testing.T) {
	mem := kv.NewMemoryStore()
	mem.Set(context.Background(), "user_preferences", `{"preferences":{"diet":"vegetarian"}}`)

	s := loadFresh(t, mem)
	p := s.Preferences()
	if p.Diet != "vegetarian" {
		t.Errorf("diet = %q, want vegetarian", p.Diet)
	}
	if p.Goal != "balanced" || len(p.Allergies) != 0 {
		t.Errorf("missing fields should keep defaults, got %+v", p)
	}
	if s.HasCompletedOnboarding() {
		t.Error("missing flag should default to false")
	}
}

func TestUnknownTagsNormalized(t *testing.T) {
	mem := kv.NewMemoryStore()
	mem.Set(context.Background(), "user_preferences",
		`{"preferences":{"diet":"fruitarian","allergies":["Nuts"],"goal":"bulk"},"hasCompletedOnboarding":true}`)

	s := loadFresh(t, mem)
	p := s.Preferences()
	if p.Diet != "balanced" || p.Goal != "balanced" {
		t.Errorf("unknown tags not normalized: %+v", p)
	}
	if len(p.Allergies) != 1 || p.Allergies[0] != "Nuts" {
		t.Errorf("allergies = %v, want [Nuts]", p.Allergies)
	}
	if !s.HasCompletedOnboarding() {
		t.Error("expected onboarding flag to survive")
	}
}

func TestStorageFailuresAreSwallowed(t *testing.T) {
	mem := kv.NewMemoryStore()
	mem.FailGets(errors.New("io"))
	mem.FailSets(errors.New("io"))

	s := loadFresh(t, mem)
	if s.IsLoading() {
		t.Error("expected load to settle despite storage failure")
	}

	p := Preferences{Diet: "keto", Allergies: []string{"Eggs"}, Goal: "energy"}
	s.CompleteOnboarding(context.Background(), p)

	// Memory stays authoritative for the process lifetime.
	if !s.HasCompletedOnboarding() || !s.Preferences().Equal(p) {
		t.Errorf("in-memory state lost after failed persist: %+v", s.State())
	}
}

func TestStateIsACopy(t *testing.T) {
	s, _ := setupStore(t)
	s.Load(context.Background())
	s.Save(context.Background(), Preferences{Diet: "balanced", Allergies: []string{"Nuts"}, Goal: "balanced"})

	p := s.Preferences()
	p.Allergies[0] = "Soy"
	if s.Preferences().Allergies[0] != "Nuts" {
		t.Error("caller mutated store state through returned slice")
	}
}

func TestOnChangeNotified(t *testing.T) {
	s, _ := setupStore(t)
	s.Load(context.Background())

	var got []State
	var fromOnboarding []bool
	s.OnChange(func(st State, completed bool) {
		got = append(got, st)
		fromOnboarding = append(fromOnboarding, completed)
	})

	s.Save(context.Background(), Default())
	s.CompleteOnboarding(context.Background(), Default())

	if len(got) != 2 {
		t.Fatalf("notifications = %d, want 2", len(got))
	}
	if got[0].HasCompletedOnboarding || !got[1].HasCompletedOnboarding {
		t.Errorf("unexpected notification states: %+v", got)
	}
	if fromOnboarding[0] || !fromOnboarding[1] {
		t.Errorf("onboarding flags = %v, want [false true]", fromOnboarding)
	}
}

func TestConcurrentSavesLastWriteWinsInMemory(t *testing.T) {
	s, _ := setupStore(t)
	s.Load(context.Background())

	var wg sync.WaitGroup
	for _, diet := range []string{"keto", "vegan", "paleo", "low-carb"} {
		wg.Add(1)
		go func(d string) {
			defer wg.Done()
			s.Save(context.Background(), Preferences{Diet: d, Goal: "balanced"})
		}(diet)
	}
	wg.Wait()

	if !IsValidDiet(s.Preferences().Diet) || s.Preferences().Diet == "balanced" {
		t.Errorf("diet = %q, want one of the saved values", s.Preferences().Diet)
	}
}

func TestSQLiteBackedRoundTrip(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store := kv.NewSQLiteStore(db)

	want := Preferences{Diet: "vegetarian", Allergies: []string{"Eggs", "Wheat"}, Goal: "energy"}
	loadFresh(t, store).CompleteOnboarding(context.Background(), want)

	fresh := loadFresh(t, store)
	if !fresh.HasCompletedOnboarding() || !fresh.Preferences().Equal(want) {
		t.Errorf("sqlite round trip = %+v", fresh.State())
	}
}

// gatedStore holds the first Set until release is closed.
type gatedStore struct {
	*kv.MemoryStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		MemoryStore: kv.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (g *gatedStore) Set(ctx context.Context, key, value string) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.MemoryStore.Set(ctx, key, value)
}

func TestSlowSaveDoesNotRevertOnboarding(t *testing.T) {
	store := newGatedStore()
	s := loadFresh(t, store)
	want := Preferences{Diet: "vegan", Allergies: []string{}, Goal: "energy"}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.Save(context.Background(), Default())
	}()
	<-store.entered

	go func() {
		defer wg.Done()
		s.CompleteOnboarding(context.Background(), want)
	}()
	for !s.HasCompletedOnboarding() {
		runtime.Gosched()
	}
	close(store.release)
	wg.Wait()

	fresh := loadFresh(t, store.MemoryStore)
	if !fresh.HasCompletedOnboarding() {
		t.Fatal("persisted onboarding flag reverted to false")
	}
	if !fresh.Preferences().Equal(s.Preferences()) {
		t.Errorf("persisted = %+v, memory = %+v", fresh.Preferences(), s.Preferences())
	}
}
