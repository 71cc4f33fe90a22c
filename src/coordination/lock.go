package coordination

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tradeforge/strategy-engine/src/eventmodels"
)

// LockManager implements the distributed execution lock. Correctness rests on
// the TTL: a lock that is never released expires on its own, so release is an
// optimization on the happy path, not a requirement.
type LockManager struct {
	store KeyValueStore
}

func NewLockManager(store KeyValueStore) *LockManager {
	return &LockManager{store: store}
}

func lockKey(strategyID eventmodels.StrategyID, intervalKey string) string {
	return fmt.Sprintf("execution:lock:%s:%s", strategyID, intervalKey)
}

// AcquireLock attempts a single atomic set-if-absent with expiry. A false
// return means another worker owns this scheduling tick; the caller must
// skip the tick rather than retry.
func (m *LockManager) AcquireLock(ctx context.Context, strategyID eventmodels.StrategyID, intervalKey string, ttl time.Duration, ownerID string) (bool, error) {
	acquired, err := m.store.SetIfAbsent(ctx, lockKey(strategyID, intervalKey), ownerID, ttl)
	if err != nil {
		return false, fmt.Errorf("failed to acquire execution lock for strategy %s: %w", strategyID, err)
	}

	if !acquired {
		// Expected under normal fleet operation, not an error
		log.WithFields(log.Fields{
			"strategy_id":  strategyID,
			"interval_key": intervalKey,
		}).Debug("execution lock held by another worker, skipping tick")
	}

	return acquired, nil
}

func (m *LockManager) ReleaseLock(ctx context.Context, strategyID eventmodels.StrategyID, intervalKey string) error {
	if err := m.store.Delete(ctx, lockKey(strategyID, intervalKey)); err != nil {
		return fmt.Errorf("failed to release execution lock for strategy %s: %w", strategyID, err)
	}

	return nil
}
