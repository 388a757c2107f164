package rulestore

import (
	"context"
	"errors"
	"testing"

	"lessonsync_go/models"
)

func mondayRule() models.RecurrenceRule {
	return models.RecurrenceRule{
		DayOfWeek:  1,
		StartTime:  "18:00",
		EndTime:    "20:00",
		Cadence:    models.CadenceWeekly,
		AnchorDate: "2025-06-02",
	}
}

// failingBackend always errors, standing in for an unreachable cache.
type failingBackend struct{}

func (failingBackend) Get(context.Context, string) (*models.RecurrenceRule, error) {
	return nil, errors.New("connection refused")
}

func (failingBackend) Put(context.Context, string, models.RecurrenceRule) error {
	return errors.New("connection refused")
}

func TestStoreGroupRuleRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New(NewMemoryBackend())

	if _, err := store.GetGroupRule(ctx, 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.SaveGroupRule(ctx, 7, mondayRule()); err != nil {
		t.Fatalf("save: %v", err)
	}
	rule, err := store.GetGroupRule(ctx, 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rule.DayOfWeek != 1 || rule.StartTime != "18:00" {
		t.Fatalf("unexpected rule %+v", rule)
	}
	if _, err := store.GetGroupRule(ctx, 8); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rules must be keyed by group, got %v", err)
	}
}

func TestStoreRejectsInvalidRule(t *testing.T) {
	store := New(NewMemoryBackend())
	bad := mondayRule()
	bad.EndTime = "17:00"
	err := store.SaveGroupRule(context.Background(), 1, bad)
	if !errors.Is(err, models.ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule, got %v", err)
	}
}

func TestStoreNormalizesCadence(t *testing.T) {
	ctx := context.Background()
	store := New(NewMemoryBackend())
	rule := mondayRule()
	rule.Cadence = "bi-weekly"
	if err := store.SaveDefaultRule(ctx, rule); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.GetDefaultRule(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Cadence != models.CadenceBiweekly {
		t.Fatalf("expected biweekly, got %q", got.Cadence)
	}
}

func TestGroupRuleOrDefault(t *testing.T) {
	ctx := context.Background()
	store := New(NewMemoryBackend())

	if _, _, err := store.GroupRuleOrDefault(ctx, 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound with nothing stored, got %v", err)
	}

	def := mondayRule()
	def.Room = "A1"
	if err := store.SaveDefaultRule(ctx, def); err != nil {
		t.Fatalf("save default: %v", err)
	}
	rule, isDefault, err := store.GroupRuleOrDefault(ctx, 3)
	if err != nil || !isDefault || rule.Room != "A1" {
		t.Fatalf("expected default rule, got %+v default=%v err=%v", rule, isDefault, err)
	}

	own := mondayRule()
	own.Room = "B2"
	if err := store.SaveGroupRule(ctx, 3, own); err != nil {
		t.Fatalf("save group: %v", err)
	}
	rule, isDefault, err = store.GroupRuleOrDefault(ctx, 3)
	if err != nil || isDefault || rule.Room != "B2" {
		t.Fatalf("expected group rule, got %+v default=%v err=%v", rule, isDefault, err)
	}
}

func TestLayeredBackendReadsThroughAndFillsCache(t *testing.T) {
	ctx := context.Background()
	primary := NewMemoryBackend()
	cache := NewMemoryBackend()
	layered := NewLayeredBackend(primary, cache)

	if err := primary.Put(ctx, GroupScope(5), mondayRule()); err != nil {
		t.Fatal(err)
	}
	if _, err := layered.Get(ctx, GroupScope(5)); err != nil {
		t.Fatalf("read through: %v", err)
	}
	if _, err := cache.Get(ctx, GroupScope(5)); err != nil {
		t.Fatalf("expected cache to be filled, got %v", err)
	}
}

func TestLayeredBackendToleratesCacheFailure(t *testing.T) {
	ctx := context.Background()
	primary := NewMemoryBackend()
	layered := NewLayeredBackend(primary, failingBackend{})

	if err := layered.Put(ctx, DefaultScope, mondayRule()); err != nil {
		t.Fatalf("put must succeed when only the cache fails: %v", err)
	}
	if _, err := layered.Get(ctx, DefaultScope); err != nil {
		t.Fatalf("get must fall back to primary: %v", err)
	}
}

func TestGroupIDFromScope(t *testing.T) {
	if id := groupIDFromScope(GroupScope(12)); id == nil || *id != 12 {
		t.Fatalf("expected 12, got %v", id)
	}
	if id := groupIDFromScope(DefaultScope); id != nil {
		t.Fatalf("expected nil for default scope, got %v", *id)
	}
}

func TestNewFromConnectionsFallsBackToMemory(t *testing.T) {
	store := NewFromConnections("layered", nil, nil)
	if _, ok := store.backend.(*MemoryBackend); !ok {
		t.Fatalf("expected memory backend, got %T", store.backend)
	}
}

// writeFailingCache serves whatever it already holds but rejects new writes.
type writeFailingCache struct {
	*MemoryBackend
}

func (writeFailingCache) Put(context.Context, string, models.RecurrenceRule) error {
	return errors.New("READONLY You can't write against a read only replica")
}

func TestLayeredBackendEvictsWhenCacheRefreshFails(t *testing.T) {
	ctx := context.Background()
	primary := NewMemoryBackend()
	cached := NewMemoryBackend()

	first := mondayRule()
	if err := NewLayeredBackend(primary, cached).Put(ctx, GroupScope(7), first); err != nil {
		t.Fatal(err)
	}

	layered := NewLayeredBackend(primary, writeFailingCache{cached})
	second := mondayRule()
	second.DayOfWeek = 3
	if err := layered.Put(ctx, GroupScope(7), second); err != nil {
		t.Fatalf("put must succeed when only the cache fails: %v", err)
	}

	got, err := layered.Get(ctx, GroupScope(7))
	if err != nil {
		t.Fatal(err)
	}
	if got.DayOfWeek != 3 {
		t.Fatalf("saved day_of_week=3, read back day_of_week=%d", got.DayOfWeek)
	}
	if _, err := cached.Get(ctx, GroupScope(7)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected stale cache entry to be evicted, got %v", err)
	}
}
