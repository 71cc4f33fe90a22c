package orchestrator

import (
	"context"
	"time"

	"github.com/tradeforge/strategy-engine/src/eventmodels"
	"github.com/tradeforge/strategy-engine/src/ledger"
)

// StrategyEntry locates a strategy's code and its dependency manifest.
type StrategyEntry struct {
	FilePath     string
	ManifestText string
}

// StrategyStore is the marketplace persistence collaborator. The
// orchestrator only reads entries and writes back post-run statistics.
type StrategyStore interface {
	StrategyEntry(ctx context.Context, strategyID eventmodels.StrategyID) (StrategyEntry, error)
	UpdateBacktestMetrics(ctx context.Context, strategyID eventmodels.StrategyID, metrics eventmodels.BacktestMetrics) error
	UpdateLiveStats(ctx context.Context, strategyID eventmodels.StrategyID, tradesGenerated int) error
}

// EnvironmentProvisioner resolves a dependency manifest to a usable
// interpreter path.
type EnvironmentProvisioner interface {
	Ensure(ctx context.Context, manifestText string) (string, bool, error)
}

// CredentialResolver supplies decrypted subscriber credentials for live runs.
type CredentialResolver interface {
	ActiveSubscribers(ctx context.Context, strategyID eventmodels.StrategyID) ([]eventmodels.SubscriberCredential, error)
}

// ProgressPublisher receives typed progress events parsed from subprocess
// telemetry.
type ProgressPublisher interface {
	Publish(strategyID eventmodels.StrategyID, event eventmodels.ProgressEvent)
	Latest(strategyID eventmodels.StrategyID) (eventmodels.ProgressEvent, bool)
}

// ExecutionLedger records every execution attempt, failed or not.
type ExecutionLedger interface {
	RecordExecution(ctx context.Context, record *ledger.ExecutionRecord) error
}

// Config bounds subprocess wall-clock time per mode. Lock TTLs upstream must
// exceed these or a second worker can start a duplicate mid-run.
type Config struct {
	BacktestTimeout time.Duration
	LiveTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		BacktestTimeout: 10 * time.Minute,
		LiveTimeout:     2 * time.Minute,
	}
}
