package coordination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/asaskevich/EventBus"
	log "github.com/sirupsen/logrus"

	"github.com/tradeforge/strategy-engine/src/eventmodels"
)

const (
	SettingsChangedTopic   = "coordination:settings_changed"
	SettingsChangedChannel = "strategy-engine:settings-changed"

	strategySettingsCacheKeyPrefix   = "strategy:settings:"
	subscriberOverrideCacheKeyPrefix = "subscriber:override:"

	// Overrides slide: every successful read pushes expiry out again, so a
	// long-idle subscriber silently falls back to strategy defaults.
	defaultOverrideTTL = 24 * time.Hour
)

// SettingsChangeNotification fans out after a version increment is durably
// visible, carrying enough for a live consumer to decide whether to refetch.
type SettingsChangeNotification struct {
	StrategyID    eventmodels.StrategyID `json:"strategy_id"`
	NewVersion    int64                  `json:"new_version"`
	ChangedFields []string               `json:"changed_fields"`
}

type Service struct {
	cache       KeyValueStore
	store       SettingsStore
	bus         EventBus.Bus
	locks       *LockManager
	overrideTTL time.Duration
}

func NewService(cache KeyValueStore, store SettingsStore, bus EventBus.Bus) *Service {
	return &Service{
		cache:       cache,
		store:       store,
		bus:         bus,
		locks:       NewLockManager(cache),
		overrideTTL: defaultOverrideTTL,
	}
}

func (s *Service) Locks() *LockManager {
	return s.locks
}

func strategySettingsCacheKey(strategyID eventmodels.StrategyID) string {
	return strategySettingsCacheKeyPrefix + strategyID.String()
}

func subscriberOverrideCacheKey(subscriberID uint, strategyID eventmodels.StrategyID) string {
	return fmt.Sprintf("%s%d:%s", subscriberOverrideCacheKeyPrefix, subscriberID, strategyID)
}

// GetStrategySettings reads through the cache: a miss falls back to durable
// storage and writes the result back to cache before returning.
func (s *Service) GetStrategySettings(ctx context.Context, strategyID eventmodels.StrategyID) (*StrategySettingsRecord, error) {
	key := strategySettingsCacheKey(strategyID)

	cached, found, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Warnf("settings cache read failed for strategy %s: %v", strategyID, err)
	} else if found {
		var record StrategySettingsRecord
		if err := json.Unmarshal([]byte(cached), &record); err == nil {
			return &record, nil
		}

		log.Warnf("discarding unreadable cached settings for strategy %s", strategyID)
	}

	record, err := s.store.GetStrategySettings(ctx, strategyID)
	if err != nil {
		return nil, err
	}

	s.writeBack(ctx, key, record, record.Version, 0)

	return record, nil
}

// UpdateStrategySettings writes durably with an atomic version increment,
// refreshes the cache, then publishes the change notification. Ordering
// matters: the notification only goes out once a reader can fetch the data
// it refers to.
func (s *Service) UpdateStrategySettings(ctx context.Context, strategyID eventmodels.StrategyID, patch SettingsFields) (*StrategySettingsRecord, error) {
	record, changed, err := s.store.UpsertStrategySettings(ctx, strategyID, patch)
	if err != nil {
		return nil, err
	}

	s.writeBack(ctx, strategySettingsCacheKey(strategyID), record, record.Version, 0)

	s.publishChange(ctx, SettingsChangeNotification{
		StrategyID:    strategyID,
		NewVersion:    record.Version,
		ChangedFields: changed,
	})

	return record, nil
}

// GetSubscriberOverride reads through the cache with a sliding TTL that is
// refreshed on every successful read. A missing override is reported as
// ErrSettingsNotFound so the caller falls back to strategy defaults.
func (s *Service) GetSubscriberOverride(ctx context.Context, subscriberID uint, strategyID eventmodels.StrategyID) (*SubscriberOverrideRecord, error) {
	key := subscriberOverrideCacheKey(subscriberID, strategyID)

	cached, found, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Warnf("override cache read failed for subscriber %d: %v", subscriberID, err)
	} else if found {
		var record SubscriberOverrideRecord
		if err := json.Unmarshal([]byte(cached), &record); err == nil {
			if err := s.cache.Expire(ctx, key, s.overrideTTL); err != nil {
				log.Warnf("failed to refresh override ttl for subscriber %d: %v", subscriberID, err)
			}

			return &record, nil
		}
	}

	record, err := s.store.GetSubscriberOverride(ctx, subscriberID, strategyID)
	if err != nil {
		return nil, err
	}

	s.writeBack(ctx, key, record, record.Version, s.overrideTTL)

	return record, nil
}

func (s *Service) UpdateSubscriberOverride(ctx context.Context, subscriberID uint, strategyID eventmodels.StrategyID, patch SettingsFields) (*SubscriberOverrideRecord, error) {
	record, changed, err := s.store.UpsertSubscriberOverride(ctx, subscriberID, strategyID, patch)
	if err != nil {
		return nil, err
	}

	s.writeBack(ctx, subscriberOverrideCacheKey(subscriberID, strategyID), record, record.Version, s.overrideTTL)

	s.publishChange(ctx, SettingsChangeNotification{
		StrategyID:    strategyID,
		NewVersion:    record.Version,
		ChangedFields: changed,
	})

	return record, nil
}

// SubscribeSettingsChanges registers an in-process consumer of change
// notifications. Delivery is ordered relative to version increments.
func (s *Service) SubscribeSettingsChanges(callbackFn func(SettingsChangeNotification)) error {
	if err := s.bus.Subscribe(SettingsChangedTopic, callbackFn); err != nil {
		return fmt.Errorf("failed to subscribe to settings changes: %w", err)
	}

	return nil
}

// writeBack caches record unless the cache already holds an equal or newer
// version. Two concurrent writers can commit v1 then v2 durably while their
// write-backs land in the opposite order; without the guard the stale
// write-back would pin v1 under a key with no TTL.
func (s *Service) writeBack(ctx context.Context, key string, record interface{}, version int64, ttl time.Duration) {
	if cached, found, err := s.cache.Get(ctx, key); err == nil && found {
		var existing struct {
			Version int64 `json:"Version"`
		}

		if err := json.Unmarshal([]byte(cached), &existing); err == nil && existing.Version >= version {
			return
		}
	}

	raw, err := json.Marshal(record)
	if err != nil {
		log.Warnf("failed to marshal record for cache key %s: %v", key, err)
		return
	}

	if err := s.cache.Set(ctx, key, string(raw), ttl); err != nil {
		log.Warnf("cache write-back failed for key %s: %v", key, err)
	}
}

func (s *Service) publishChange(ctx context.Context, notification SettingsChangeNotification) {
	s.bus.Publish(SettingsChangedTopic, notification)

	raw, err := json.Marshal(notification)
	if err != nil {
		log.Warnf("failed to marshal settings change notification: %v", err)
		return
	}

	// Cross-worker fan-out; in-process consumers already got the bus event
	if err := s.cache.Publish(ctx, SettingsChangedChannel, string(raw)); err != nil {
		log.Warnf("failed to publish settings change for strategy %s: %v", notification.StrategyID, err)
	}
}

// IsNotFound reports whether err means the settings document does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSettingsNotFound)
}
