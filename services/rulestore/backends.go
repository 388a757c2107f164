package rulestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"lessonsync_go/models"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultKeyPrefix = "schedule:rule:"
	// ruleCacheTTL bounds how long a cached rule can outlive its database row
	ruleCacheTTL = 15 * time.Minute
)

// Evicter is implemented by backends that can drop a single scope
type Evicter interface {
	Delete(ctx context.Context, scope string) error
}

// MemoryBackend keeps rules in process memory
type MemoryBackend struct {
	mu    sync.RWMutex
	rules map[string]models.RecurrenceRule
}

// NewMemoryBackend creates an empty memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{rules: make(map[string]models.RecurrenceRule)}
}

func (m *MemoryBackend) Get(_ context.Context, scope string) (*models.RecurrenceRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rule, ok := m.rules[scope]
	if !ok {
		return nil, ErrNotFound
	}
	return &rule, nil
}

func (m *MemoryBackend) Put(_ context.Context, scope string, rule models.RecurrenceRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[scope] = rule
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rules, scope)
	return nil
}

// RedisBackend stores each rule as a JSON string key
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisBackend creates a redis-backed store with the given key prefix
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisBackend{client: client, prefix: prefix}
}

// WithTTL makes every written key expire after ttl; zero keeps keys forever
func (r *RedisBackend) WithTTL(ttl time.Duration) *RedisBackend {
	r.ttl = ttl
	return r
}

func (r *RedisBackend) Get(ctx context.Context, scope string) (*models.RecurrenceRule, error) {
	raw, err := r.client.Get(ctx, r.prefix+scope).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", scope, err)
	}
	var rule models.RecurrenceRule
	if err := json.Unmarshal([]byte(raw), &rule); err != nil {
		return nil, fmt.Errorf("decode rule %s: %w", scope, err)
	}
	return &rule, nil
}

func (r *RedisBackend) Put(ctx context.Context, scope string, rule models.RecurrenceRule) error {
	data, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("encode rule %s: %w", scope, err)
	}
	if err := r.client.Set(ctx, r.prefix+scope, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", scope, err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, scope string) error {
	if err := r.client.Del(ctx, r.prefix+scope).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", scope, err)
	}
	return nil
}

// GormBackend stores rules in the schedule_configs table
type GormBackend struct {
	db *gorm.DB
}

// NewGormBackend creates a database-backed store
func NewGormBackend(db *gorm.DB) *GormBackend {
	return &GormBackend{db: db}
}

func (g *GormBackend) Get(ctx context.Context, scope string) (*models.RecurrenceRule, error) {
	var row models.ScheduleConfig
	if err := g.db.WithContext(ctx).Where("scope = ?", scope).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load schedule config %s: %w", scope, err)
	}
	if row.Rule.IsNull() {
		return nil, ErrNotFound
	}
	var rule models.RecurrenceRule
	if err := json.Unmarshal(row.Rule, &rule); err != nil {
		return nil, fmt.Errorf("decode schedule config %s: %w", scope, err)
	}
	return &rule, nil
}

func (g *GormBackend) Put(ctx context.Context, scope string, rule models.RecurrenceRule) error {
	data, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("encode rule %s: %w", scope, err)
	}
	row := models.ScheduleConfig{Scope: scope, GroupID: groupIDFromScope(scope), Rule: data}
	err = g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scope"}},
		DoUpdates: clause.AssignmentColumns([]string{"rule", "group_id", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save schedule config %s: %w", scope, err)
	}
	return nil
}

func groupIDFromScope(scope string) *uint {
	raw, ok := strings.CutPrefix(scope, "group:")
	if !ok {
		return nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil
	}
	gid := uint(id)
	return &gid
}

// LayeredBackend reads through a cache in front of a primary backend.
// The primary is the source of truth. A cache entry that could not be refreshed
// after a write is evicted so reads fall through to the primary.
type LayeredBackend struct {
	primary Backend
	cache   Backend
}

// NewLayeredBackend creates a read-through cache over primary
func NewLayeredBackend(primary, cache Backend) *LayeredBackend {
	return &LayeredBackend{primary: primary, cache: cache}
}

func (l *LayeredBackend) Get(ctx context.Context, scope string) (*models.RecurrenceRule, error) {
	rule, err := l.cache.Get(ctx, scope)
	if err == nil {
		return rule, nil
	}
	if !errors.Is(err, ErrNotFound) {
		logrus.WithError(err).WithField("scope", scope).Warn("Rule cache read failed, using primary store")
	}

	rule, err = l.primary.Get(ctx, scope)
	if err != nil {
		return nil, err
	}
	if cacheErr := l.cache.Put(ctx, scope, *rule); cacheErr != nil {
		logrus.WithError(cacheErr).WithField("scope", scope).Warn("Failed to cache recurrence rule")
	}
	return rule, nil
}

func (l *LayeredBackend) Put(ctx context.Context, scope string, rule models.RecurrenceRule) error {
	if err := l.primary.Put(ctx, scope, rule); err != nil {
		return err
	}
	if err := l.cache.Put(ctx, scope, rule); err != nil {
		logrus.WithError(err).WithField("scope", scope).Warn("Failed to refresh cached recurrence rule")
		l.evict(ctx, scope)
	}
	return nil
}

func (l *LayeredBackend) evict(ctx context.Context, scope string) {
	ev, ok := l.cache.(Evicter)
	if !ok {
		return
	}
	if err := ev.Delete(ctx, scope); err != nil {
		logrus.WithError(err).WithField("scope", scope).Error("Stale recurrence rule left in cache until it expires")
	}
}
