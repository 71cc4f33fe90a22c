package ledger

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tradeforge/strategy-engine/src/eventmodels"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// RecordExecution persists one execution attempt. Failed and skipped runs are
// recorded the same as successful ones.
func (s *Service) RecordExecution(ctx context.Context, record *ExecutionRecord) error {
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to record execution for strategy %s: %w", record.StrategyID, err)
	}

	log.WithFields(log.Fields{
		"strategy_id": record.StrategyID,
		"status":      record.Status,
		"duration_ms": record.DurationMs,
	}).Debug("recorded execution attempt")

	return nil
}

func (s *Service) OpenCycle(ctx context.Context, cycle *TradeCycle) error {
	if err := s.db.WithContext(ctx).Create(cycle).Error; err != nil {
		return fmt.Errorf("failed to open trade cycle: %w", err)
	}

	return nil
}

// AppendFill adds a fill order to an open cycle and refreshes the cycle's
// derived aggregates from the full fill set. Appending to a closed cycle is
// an invariant violation and the write is aborted.
func (s *Service) AppendFill(ctx context.Context, cycleID uint, fill *FillOrder) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cycle TradeCycle
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cycle, cycleID).Error; err != nil {
			return fmt.Errorf("failed to load trade cycle %d: %w", cycleID, err)
		}

		if cycle.IsClosed() {
			return &eventmodels.InvariantViolation{
				Message: fmt.Sprintf("cannot append fill to closed trade cycle %d", cycleID),
			}
		}

		fill.CycleID = cycleID
		if err := tx.Create(fill).Error; err != nil {
			return fmt.Errorf("failed to append fill to cycle %d: %w", cycleID, err)
		}

		var fills []FillOrder
		if err := tx.Where("cycle_id = ?", cycleID).Order("id asc").Find(&fills).Error; err != nil {
			return fmt.Errorf("failed to load fills for cycle %d: %w", cycleID, err)
		}

		pnl := cycle.RecomputePnl(fills)
		quantity, _ := pnl.Quantity.Float64()
		gross, _ := pnl.GrossPnl.Float64()
		fees, _ := pnl.Fees.Float64()
		net, _ := pnl.NetPnl.Float64()

		updates := map[string]interface{}{
			"quantity":  quantity,
			"gross_pnl": gross,
			"fees":      fees,
			"net_pnl":   net,
		}

		if err := tx.Model(&cycle).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update cycle %d aggregates: %w", cycleID, err)
		}

		return nil
	})
}

// CloseCycle transitions a cycle from OPEN to CLOSED exactly once.
func (s *Service) CloseCycle(ctx context.Context, cycleID uint, exitPrice float64, exitReason string, closedAt time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cycle TradeCycle
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cycle, cycleID).Error; err != nil {
			return fmt.Errorf("failed to load trade cycle %d: %w", cycleID, err)
		}

		if cycle.IsClosed() {
			return &eventmodels.InvariantViolation{
				Message: fmt.Sprintf("trade cycle %d is already closed", cycleID),
			}
		}

		updates := map[string]interface{}{
			"status":           TradeCycleStatusClosed,
			"exit_price":       exitPrice,
			"exit_reason":      exitReason,
			"closed_at":        closedAt,
			"holding_time_sec": int64(closedAt.Sub(cycle.OpenedAt).Seconds()),
		}

		if err := tx.Model(&cycle).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to close trade cycle %d: %w", cycleID, err)
		}

		return nil
	})
}

func (s *Service) FetchRecentExecutions(ctx context.Context, strategyID eventmodels.StrategyID, limit int) ([]ExecutionRecord, error) {
	var records []ExecutionRecord

	query := s.db.WithContext(ctx).Order("executed_at desc").Limit(limit)
	if strategyID != "" {
		query = query.Where("strategy_id = ?", strategyID.String())
	}

	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch executions: %w", err)
	}

	return records, nil
}

func (s *Service) FetchTradeCycles(ctx context.Context, strategyID eventmodels.StrategyID) ([]TradeCycle, error) {
	var cycles []TradeCycle

	if err := s.db.WithContext(ctx).Preload("Fills").Where("strategy_id = ?", strategyID.String()).Order("cycle_number asc").Find(&cycles).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch trade cycles for strategy %s: %w", strategyID, err)
	}

	return cycles, nil
}
