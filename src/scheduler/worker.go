package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/tradeforge/strategy-engine/src/coordination"
	"github.com/tradeforge/strategy-engine/src/eventmodels"
	"github.com/tradeforge/strategy-engine/src/ledger"
)

// Executor is the slice of the orchestrator the worker drives.
type Executor interface {
	ExecuteBacktest(ctx context.Context, strategyID eventmodels.StrategyID, settings eventmodels.StrategySettings) eventmodels.RunResult
	ExecuteLive(ctx context.Context, strategyID eventmodels.StrategyID, settings eventmodels.StrategySettings) eventmodels.RunResult
}

type ExecutionLedger interface {
	RecordExecution(ctx context.Context, record *ledger.ExecutionRecord) error
}

// Schedule is one strategy's standing instruction to run every tick.
type Schedule struct {
	StrategyID eventmodels.StrategyID
	Mode       eventmodels.RunMode
}

// Worker is one member of the scheduler fleet. Many workers may fire on the
// same tick; the execution lock guarantees at most one of them runs a given
// strategy for that tick. The lock is left to expire naturally: releasing it
// early would reopen the tick to workers that have not attempted yet.
type Worker struct {
	ownerID      string
	coordination *coordination.Service
	executor     Executor
	ledger       ExecutionLedger

	// LockTTL must exceed worst-case provisioning plus execution time, or
	// the lock expires mid-run and another worker can start a duplicate.
	lockTTL  time.Duration
	interval time.Duration

	// Execution is one subprocess at a time per strategy within a worker.
	// A run outlasting the tick interval makes the next tick skip.
	mu       sync.Mutex
	inflight map[eventmodels.StrategyID]bool
}

func NewWorker(coordinationService *coordination.Service, executor Executor, executionLedger ExecutionLedger, lockTTL time.Duration, interval time.Duration) *Worker {
	return &Worker{
		ownerID:      uuid.NewString(),
		coordination: coordinationService,
		executor:     executor,
		ledger:       executionLedger,
		lockTTL:      lockTTL,
		interval:     interval,
		inflight:     make(map[eventmodels.StrategyID]bool),
	}
}

func (w *Worker) OwnerID() string {
	return w.ownerID
}

// beginRun marks the strategy as executing; false means a previous run has
// not finished yet.
func (w *Worker) beginRun(strategyID eventmodels.StrategyID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.inflight[strategyID] {
		return false
	}

	w.inflight[strategyID] = true
	return true
}

func (w *Worker) endRun(strategyID eventmodels.StrategyID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.inflight, strategyID)
}

// Run ticks until the context is cancelled, executing every scheduled
// strategy whose lock this worker wins. Strategies run concurrently as
// independent subprocesses.
func (w *Worker) Run(ctx context.Context, schedules []Schedule) {
	log.WithFields(log.Fields{
		"owner_id": w.ownerID,
		"interval": w.interval,
	}).Info("scheduler worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Infof("scheduler worker %s stopping", w.ownerID)
			return
		case tick := <-ticker.C:
			for _, schedule := range schedules {
				go w.RunOnce(ctx, schedule, tick)
			}
		}
	}
}

// RunOnce attempts a single scheduled execution for one tick. Lock
// contention is the expected case in a fleet and produces a skipped record,
// not an error.
func (w *Worker) RunOnce(ctx context.Context, schedule Schedule, tick time.Time) {
	if !w.beginRun(schedule.StrategyID) {
		record := ledger.NewExecutionRecord(schedule.StrategyID, schedule.Mode, ledger.ExecutionStatusSkipped, time.Now().UTC())
		record.ErrorMessage = "skipped: previous run still in progress"

		if err := w.ledger.RecordExecution(ctx, record); err != nil {
			log.Errorf("failed to record skipped execution for strategy %s: %v", schedule.StrategyID, err)
		}

		return
	}
	defer w.endRun(schedule.StrategyID)

	intervalKey := coordination.IntervalKey(tick, w.interval)

	acquired, err := w.coordination.Locks().AcquireLock(ctx, schedule.StrategyID, intervalKey, w.lockTTL, w.ownerID)
	if err != nil {
		log.Errorf("lock acquisition failed for strategy %s: %v", schedule.StrategyID, err)
		return
	}

	if !acquired {
		record := ledger.NewExecutionRecord(schedule.StrategyID, schedule.Mode, ledger.ExecutionStatusSkipped, time.Now().UTC())
		record.ErrorMessage = "skipped: execution lock not acquired"

		if err := w.ledger.RecordExecution(ctx, record); err != nil {
			log.Errorf("failed to record skipped execution for strategy %s: %v", schedule.StrategyID, err)
		}

		return
	}

	settings, err := w.resolveSettings(ctx, schedule.StrategyID)
	if err != nil {
		log.Errorf("failed to resolve settings for strategy %s: %v", schedule.StrategyID, err)

		record := ledger.NewExecutionRecord(schedule.StrategyID, schedule.Mode, ledger.ExecutionStatusFailed, time.Now().UTC())
		record.ErrorMessage = err.Error()

		if recordErr := w.ledger.RecordExecution(ctx, record); recordErr != nil {
			log.Errorf("failed to record failed execution for strategy %s: %v", schedule.StrategyID, recordErr)
		}

		return
	}

	var result eventmodels.RunResult
	if schedule.Mode == eventmodels.RunModeLive {
		result = w.executor.ExecuteLive(ctx, schedule.StrategyID, settings)
	} else {
		result = w.executor.ExecuteBacktest(ctx, schedule.StrategyID, settings)
	}

	log.WithFields(log.Fields{
		"strategy_id":  schedule.StrategyID,
		"interval_key": intervalKey,
		"success":      result.Success,
	}).Info("scheduled execution finished")
}

// resolveSettings loads the strategy's execution configuration through the
// read-through cache. A strategy with no stored settings runs on zero-value
// defaults.
func (w *Worker) resolveSettings(ctx context.Context, strategyID eventmodels.StrategyID) (eventmodels.StrategySettings, error) {
	var settings eventmodels.StrategySettings

	record, err := w.coordination.GetStrategySettings(ctx, strategyID)
	if coordination.IsNotFound(err) {
		return settings, nil
	}

	if err != nil {
		return settings, err
	}

	if err := json.Unmarshal([]byte(record.Fields), &settings); err != nil {
		return settings, err
	}

	return settings, nil
}
