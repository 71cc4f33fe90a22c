package marketplace

import (
	"time"

	"gorm.io/gorm"
)

// StrategyRecord is a published strategy listing. EntryPath points at the
// strategy's main script inside the strategies root and ManifestText is the
// pip requirements block the provisioner hashes.
type StrategyRecord struct {
	gorm.Model
	StrategyID   string `gorm:"column:strategy_id;type:varchar(64);not null;uniqueIndex:idx_marketplace_strategy"`
	Name         string `gorm:"column:name;type:varchar(255);not null"`
	AuthorID     uint   `gorm:"column:author_id;not null;index:idx_marketplace_author"`
	EntryPath    string `gorm:"column:entry_path;type:text;not null"`
	ManifestText string `gorm:"column:manifest_text;type:text;not null"`
	Published    bool   `gorm:"column:published;not null;default:false"`
	Delisted     bool   `gorm:"column:delisted;not null;default:false"`

	// Backtest metrics shown on the listing, refreshed after every
	// successful backtest.
	TotalReturn  float64    `gorm:"column:total_return"`
	WinRate      float64    `gorm:"column:win_rate"`
	MaxDrawdown  float64    `gorm:"column:max_drawdown"`
	SharpeRatio  float64    `gorm:"column:sharpe_ratio"`
	TradeCount   int        `gorm:"column:trade_count"`
	ProfitFactor float64    `gorm:"column:profit_factor"`
	BacktestedAt *time.Time `gorm:"column:backtested_at"`

	// Live counters accumulate across runs.
	LiveTradesTotal int        `gorm:"column:live_trades_total;not null;default:0"`
	LastLiveRunAt   *time.Time `gorm:"column:last_live_run_at"`
}

func (StrategyRecord) TableName() string {
	return "marketplace_strategies"
}
