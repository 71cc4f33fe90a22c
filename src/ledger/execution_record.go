package ledger

import (
	"time"

	"gorm.io/gorm"

	"github.com/tradeforge/strategy-engine/src/eventmodels"
)

type ExecutionStatus string

const (
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusSkipped   ExecutionStatus = "skipped"
)

// ExecutionRecord is one row per execution attempt, including attempts that
// were skipped because another worker held the execution lock.
type ExecutionRecord struct {
	gorm.Model
	StrategyID      string              `gorm:"column:strategy_id;type:varchar(64);not null;index:idx_strategy_executions"`
	Mode            eventmodels.RunMode `gorm:"column:mode;type:varchar(16);not null"`
	Status          ExecutionStatus     `gorm:"column:status;type:varchar(16);not null"`
	SubscriberCount int                 `gorm:"column:subscriber_count;not null;default:0"`
	TradesGenerated int                 `gorm:"column:trades_generated;not null;default:0"`
	DurationMs      int64               `gorm:"column:duration_ms;not null;default:0"`
	ErrorMessage    string              `gorm:"column:error_message;type:text"`
	ExecutedAt      time.Time           `gorm:"column:executed_at;type:timestamp;not null;index:idx_strategy_executions"`
}

func NewExecutionRecord(strategyID eventmodels.StrategyID, mode eventmodels.RunMode, status ExecutionStatus, executedAt time.Time) *ExecutionRecord {
	return &ExecutionRecord{
		StrategyID: strategyID.String(),
		Mode:       mode,
		Status:     status,
		ExecutedAt: executedAt,
	}
}
