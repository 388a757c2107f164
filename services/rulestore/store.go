package rulestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lessonsync_go/models"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrNotFound is returned when no rule is stored for a scope
var ErrNotFound = errors.New("recurrence rule not found")

// DefaultScope is the scope of the process-wide default rule
const DefaultScope = "default"

// GroupScope returns the storage scope of a group's rule
func GroupScope(groupID uint) string {
	return fmt.Sprintf("group:%d", groupID)
}

// Backend persists rules by scope
type Backend interface {
	Get(ctx context.Context, scope string) (*models.RecurrenceRule, error)
	Put(ctx context.Context, scope string, rule models.RecurrenceRule) error
}

// Store is the key-value config store of recurrence rules: one per group plus a default.
type Store struct {
	backend Backend
}

// New wraps a backend
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// NewFromConnections picks a backend for mode ("layered", "redis", "database", "memory").
// Missing connections degrade the mode, ending at memory.
func NewFromConnections(mode string, db *gorm.DB, rdb *redis.Client) *Store {
	mode = strings.ToLower(strings.TrimSpace(mode))
	var (
		primary Backend
		cache   Backend
	)
	if db != nil && (mode == "" || mode == "layered" || mode == "database") {
		primary = NewGormBackend(db)
	}
	if rdb != nil && (mode == "" || mode == "layered" || mode == "redis") {
		cache = NewRedisBackend(rdb, defaultKeyPrefix)
	}

	switch {
	case primary != nil && cache != nil:
		logrus.Info("Recurrence rules: database with redis cache")
		return New(NewLayeredBackend(primary, NewRedisBackend(rdb, defaultKeyPrefix).WithTTL(ruleCacheTTL)))
	case primary != nil:
		logrus.Info("Recurrence rules: database")
		return New(primary)
	case cache != nil:
		logrus.Info("Recurrence rules: redis")
		return New(cache)
	}
	if mode != "memory" {
		logrus.WithField("mode", mode).Warn("Recurrence rules: no persistent store available, using memory")
	}
	return New(NewMemoryBackend())
}

// GetGroupRule returns the rule stored for groupID or ErrNotFound
func (s *Store) GetGroupRule(ctx context.Context, groupID uint) (*models.RecurrenceRule, error) {
	return s.backend.Get(ctx, GroupScope(groupID))
}

// SaveGroupRule validates and stores the rule for groupID
func (s *Store) SaveGroupRule(ctx context.Context, groupID uint, rule models.RecurrenceRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	return s.backend.Put(ctx, GroupScope(groupID), rule)
}

// GetDefaultRule returns the process-wide default rule or ErrNotFound
func (s *Store) GetDefaultRule(ctx context.Context) (*models.RecurrenceRule, error) {
	return s.backend.Get(ctx, DefaultScope)
}

// SaveDefaultRule validates and stores the process-wide default rule
func (s *Store) SaveDefaultRule(ctx context.Context, rule models.RecurrenceRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	return s.backend.Put(ctx, DefaultScope, rule)
}

// GroupRuleOrDefault is for prefilling forms: it falls back to the default rule
// and reports whether it did. Scheduling operations must use GetGroupRule.
func (s *Store) GroupRuleOrDefault(ctx context.Context, groupID uint) (*models.RecurrenceRule, bool, error) {
	rule, err := s.GetGroupRule(ctx, groupID)
	if err == nil {
		return rule, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	rule, err = s.GetDefaultRule(ctx)
	if err != nil {
		return nil, false, err
	}
	return rule, true, nil
}
