package marketplace

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"gorm.io/gorm"

	"github.com/tradeforge/strategy-engine/src/eventmodels"
	"github.com/tradeforge/strategy-engine/src/orchestrator"
)

var ErrStrategyNotFound = errors.New("strategy not found in marketplace")

// GormStore serves strategy listings to the orchestrator and absorbs the
// statistics it writes back after each run. Only published, non-delisted
// strategies are executable.
type GormStore struct {
	db *gorm.DB

	// strategiesRoot anchors relative entry paths so listings stay portable
	// across hosts.
	strategiesRoot string
}

func NewGormStore(db *gorm.DB, strategiesRoot string) *GormStore {
	return &GormStore{
		db:             db,
		strategiesRoot: strategiesRoot,
	}
}

func (s *GormStore) StrategyEntry(ctx context.Context, strategyID eventmodels.StrategyID) (orchestrator.StrategyEntry, error) {
	record, err := s.fetch(ctx, strategyID)
	if err != nil {
		return orchestrator.StrategyEntry{}, err
	}

	if !record.Published || record.Delisted {
		return orchestrator.StrategyEntry{}, fmt.Errorf("strategy %s is not executable: %w", strategyID, ErrStrategyNotFound)
	}

	entryPath := record.EntryPath
	if !filepath.IsAbs(entryPath) {
		entryPath = filepath.Join(s.strategiesRoot, entryPath)
	}

	return orchestrator.StrategyEntry{
		FilePath:     entryPath,
		ManifestText: record.ManifestText,
	}, nil
}

func (s *GormStore) UpdateBacktestMetrics(ctx context.Context, strategyID eventmodels.StrategyID, metrics eventmodels.BacktestMetrics) error {
	now := time.Now().UTC()

	updates := map[string]interface{}{
		"total_return":  metrics.TotalReturn,
		"win_rate":      metrics.WinRate,
		"max_drawdown":  metrics.MaxDrawdown,
		"sharpe_ratio":  metrics.SharpeRatio,
		"trade_count":   metrics.TradeCount,
		"profit_factor": metrics.ProfitFactor,
		"backtested_at": &now,
	}

	result := s.db.WithContext(ctx).Model(&StrategyRecord{}).Where("strategy_id = ?", strategyID.String()).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update backtest metrics for strategy %s: %w", strategyID, result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("strategy %s: %w", strategyID, ErrStrategyNotFound)
	}

	return nil
}

func (s *GormStore) UpdateLiveStats(ctx context.Context, strategyID eventmodels.StrategyID, tradesGenerated int) error {
	now := time.Now().UTC()

	result := s.db.WithContext(ctx).Model(&StrategyRecord{}).Where("strategy_id = ?", strategyID.String()).Updates(map[string]interface{}{
		"live_trades_total": gorm.Expr("live_trades_total + ?", tradesGenerated),
		"last_live_run_at":  &now,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update live stats for strategy %s: %w", strategyID, result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("strategy %s: %w", strategyID, ErrStrategyNotFound)
	}

	return nil
}

// ListPublished returns executable listings for scheduling and display.
func (s *GormStore) ListPublished(ctx context.Context) ([]StrategyRecord, error) {
	var records []StrategyRecord
	if err := s.db.WithContext(ctx).Where("published = ? AND delisted = ?", true, false).Order("strategy_id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list published strategies: %w", err)
	}

	return records, nil
}

func (s *GormStore) fetch(ctx context.Context, strategyID eventmodels.StrategyID) (*StrategyRecord, error) {
	var record StrategyRecord
	if err := s.db.WithContext(ctx).Where("strategy_id = ?", strategyID.String()).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("strategy %s: %w", strategyID, ErrStrategyNotFound)
		}

		return nil, fmt.Errorf("failed to fetch strategy %s: %w", strategyID, err)
	}

	return &record, nil
}
