package coordination

import (
	"context"
	"testing"

	"github.com/asaskevich/EventBus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeforge/strategy-engine/src/eventmodels"
)

func TestGetStrategySettings(t *testing.T) {
	ctx := context.Background()

	t.Run("cache miss falls back to durable store and writes back", func(t *testing.T) {
		cache := newFakeKeyValueStore()
		store := newFakeSettingsStore()
		service := NewService(cache, store, EventBus.New())

		_, _, err := store.UpsertStrategySettings(ctx, "S1", SettingsFields{"capital": 1000.0})
		require.NoError(t, err)

		record, err := service.GetStrategySettings(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), record.Version)
		assert.Equal(t, 1, store.strategyReads)

		// Second read must be served from cache
		record, err = service.GetStrategySettings(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), record.Version)
		assert.Equal(t, 1, store.strategyReads)
	})

	t.Run("missing settings are reported as not found", func(t *testing.T) {
		service := NewService(newFakeKeyValueStore(), newFakeSettingsStore(), EventBus.New())

		_, err := service.GetStrategySettings(ctx, "unknown")
		assert.True(t, IsNotFound(err))
	})
}

func TestUpdateStrategySettings(t *testing.T) {
	ctx := context.Background()

	t.Run("versions are strictly increasing and notifications arrive in order", func(t *testing.T) {
		cache := newFakeKeyValueStore()
		service := NewService(cache, newFakeSettingsStore(), EventBus.New())

		var notifications []SettingsChangeNotification
		require.NoError(t, service.SubscribeSettingsChanges(func(n SettingsChangeNotification) {
			notifications = append(notifications, n)
		}))

		patches := []SettingsFields{
			{"capital": 1000.0},
			{"capital": 2000.0, "leverage": 2.0},
			{"risk_per_trade": 0.01},
		}

		var lastVersion int64
		for _, patch := range patches {
			record, err := service.UpdateStrategySettings(ctx, "S1", patch)
			require.NoError(t, err)
			assert.Greater(t, record.Version, lastVersion)
			lastVersion = record.Version
		}

		require.Len(t, notifications, 3)
		for i := 1; i < len(notifications); i++ {
			assert.Greater(t, notifications[i].NewVersion, notifications[i-1].NewVersion)
		}

		assert.ElementsMatch(t, []string{"capital", "leverage"}, notifications[1].ChangedFields)
		assert.Equal(t, []string{"risk_per_trade"}, notifications[2].ChangedFields)
	})

	t.Run("notification is observed only after the version is readable", func(t *testing.T) {
		cache := newFakeKeyValueStore()
		store := newFakeSettingsStore()
		service := NewService(cache, store, EventBus.New())

		var observedVersion int64
		require.NoError(t, service.SubscribeSettingsChanges(func(n SettingsChangeNotification) {
			// A reader reacting to the notification must be able to fetch
			// the version it names
			record, err := service.GetStrategySettings(context.Background(), n.StrategyID)
			require.NoError(t, err)
			observedVersion = record.Version
		}))

		record, err := service.UpdateStrategySettings(ctx, "S2", SettingsFields{"instrument": "BTCUSD"})
		require.NoError(t, err)
		assert.Equal(t, record.Version, observedVersion)
	})

	t.Run("change is published to the cross-worker channel", func(t *testing.T) {
		cache := newFakeKeyValueStore()
		service := NewService(cache, newFakeSettingsStore(), EventBus.New())

		_, err := service.UpdateStrategySettings(ctx, "S1", SettingsFields{"capital": 500.0})
		require.NoError(t, err)

		assert.Len(t, cache.publishes[SettingsChangedChannel], 1)
	})

	t.Run("stale write-back cannot clobber a newer cached version", func(t *testing.T) {
		// Replays two writers whose commits serialized as v1 then v2 but
		// whose cache write-backs arrive in the opposite order.
		store := &scriptedSettingsStore{results: []*StrategySettingsRecord{
			{StrategyID: "S3", Fields: `{"capital":2000}`, Version: 2},
			{StrategyID: "S3", Fields: `{"capital":1000}`, Version: 1},
		}}

		cache := newFakeKeyValueStore()
		service := NewService(cache, store, EventBus.New())

		_, err := service.UpdateStrategySettings(ctx, "S3", SettingsFields{"capital": 2000.0})
		require.NoError(t, err)

		_, err = service.UpdateStrategySettings(ctx, "S3", SettingsFields{"capital": 1000.0})
		require.NoError(t, err)

		record, err := service.GetStrategySettings(ctx, "S3")
		require.NoError(t, err)
		assert.Equal(t, int64(2), record.Version)
	})
}

// scriptedSettingsStore hands out canned upsert results in order, so a test
// can stage write-backs that arrive out of commit order.
type scriptedSettingsStore struct {
	results []*StrategySettingsRecord
}

func (s *scriptedSettingsStore) GetStrategySettings(ctx context.Context, strategyID eventmodels.StrategyID) (*StrategySettingsRecord, error) {
	return nil, ErrSettingsNotFound
}

func (s *scriptedSettingsStore) UpsertStrategySettings(ctx context.Context, strategyID eventmodels.StrategyID, patch SettingsFields) (*StrategySettingsRecord, []string, error) {
	record := s.results[0]
	s.results = s.results[1:]
	return record, []string{"capital"}, nil
}

func (s *scriptedSettingsStore) GetSubscriberOverride(ctx context.Context, subscriberID uint, strategyID eventmodels.StrategyID) (*SubscriberOverrideRecord, error) {
	return nil, ErrSettingsNotFound
}

func (s *scriptedSettingsStore) UpsertSubscriberOverride(ctx context.Context, subscriberID uint, strategyID eventmodels.StrategyID, patch SettingsFields) (*SubscriberOverrideRecord, []string, error) {
	return nil, nil, ErrSettingsNotFound
}

func TestSubscriberOverrides(t *testing.T) {
	ctx := context.Background()

	t.Run("read refreshes the sliding ttl", func(t *testing.T) {
		cache := newFakeKeyValueStore()
		store := newFakeSettingsStore()
		service := NewService(cache, store, EventBus.New())

		_, err := service.UpdateSubscriberOverride(ctx, 42, "S1", SettingsFields{"leverage": 3.0})
		require.NoError(t, err)

		key := subscriberOverrideCacheKey(42, "S1")

		_, err = service.GetSubscriberOverride(ctx, 42, "S1")
		require.NoError(t, err)
		assert.Equal(t, 1, cache.expires[key])

		_, err = service.GetSubscriberOverride(ctx, 42, "S1")
		require.NoError(t, err)
		assert.Equal(t, 2, cache.expires[key])
	})

	t.Run("missing override falls back to not found", func(t *testing.T) {
		service := NewService(newFakeKeyValueStore(), newFakeSettingsStore(), EventBus.New())

		_, err := service.GetSubscriberOverride(ctx, 7, "S1")
		assert.True(t, IsNotFound(err))
	})

	t.Run("override versions increment per subscriber", func(t *testing.T) {
		service := NewService(newFakeKeyValueStore(), newFakeSettingsStore(), EventBus.New())

		first, err := service.UpdateSubscriberOverride(ctx, 1, "S1", SettingsFields{"capital": 100.0})
		require.NoError(t, err)

		second, err := service.UpdateSubscriberOverride(ctx, 1, "S1", SettingsFields{"capital": 200.0})
		require.NoError(t, err)

		other, err := service.UpdateSubscriberOverride(ctx, 2, "S1", SettingsFields{"capital": 300.0})
		require.NoError(t, err)

		assert.Equal(t, int64(1), first.Version)
		assert.Equal(t, int64(2), second.Version)
		assert.Equal(t, int64(1), other.Version)
	})
}
