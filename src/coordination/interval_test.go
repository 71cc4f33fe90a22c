package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalKey(t *testing.T) {
	base := time.Date(2024, time.January, 1, 0, 5, 0, 0, time.UTC)

	t.Run("sub-minute intervals produce distinct buckets", func(t *testing.T) {
		first := IntervalKey(base, 30*time.Second)
		second := IntervalKey(base.Add(30*time.Second), 30*time.Second)

		assert.NotEqual(t, first, second)
	})

	t.Run("ticks inside one bucket share a key", func(t *testing.T) {
		first := IntervalKey(base, 30*time.Second)
		jittered := IntervalKey(base.Add(10*time.Second), 30*time.Second)

		assert.Equal(t, first, jittered)
	})

	t.Run("minute intervals keep bucketing by minute", func(t *testing.T) {
		first := IntervalKey(base, time.Minute)
		sameMinute := IntervalKey(base.Add(59*time.Second), time.Minute)
		nextMinute := IntervalKey(base.Add(time.Minute), time.Minute)

		assert.Equal(t, first, sameMinute)
		assert.NotEqual(t, first, nextMinute)
	})

	t.Run("consecutive sub-minute ticks each acquire their own lock", func(t *testing.T) {
		ctx := context.Background()
		locks := NewLockManager(newFakeKeyValueStore())

		firstKey := IntervalKey(base, 30*time.Second)
		secondKey := IntervalKey(base.Add(30*time.Second), 30*time.Second)

		acquired, err := locks.AcquireLock(ctx, "S1", firstKey, 5*time.Minute, "worker-a")
		require.NoError(t, err)
		require.True(t, acquired)

		acquired, err = locks.AcquireLock(ctx, "S1", secondKey, 5*time.Minute, "worker-a")
		require.NoError(t, err)
		assert.True(t, acquired)
	})
}
