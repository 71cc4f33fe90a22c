package orchestrator

import (
	"context"

	"github.com/montanaflynn/stats"
	log "github.com/sirupsen/logrus"

	"github.com/tradeforge/strategy-engine/src/eventmodels"
)

// enrichMetrics recomputes summary statistics from the trade list so the
// marketplace never shows numbers the trades cannot back up.
func enrichMetrics(payload *eventmodels.BacktestPayload) {
	if len(payload.Trades) == 0 {
		return
	}

	pnls := make([]float64, 0, len(payload.Trades))
	wins := 0
	grossProfit := 0.0
	grossLoss := 0.0

	for _, trade := range payload.Trades {
		pnls = append(pnls, trade.Pnl)

		if trade.Pnl > 0 {
			wins++
			grossProfit += trade.Pnl
		} else {
			grossLoss += -trade.Pnl
		}
	}

	payload.Metrics.TradeCount = len(payload.Trades)
	payload.Metrics.WinRate = float64(wins) / float64(len(payload.Trades))

	if mean, err := stats.Mean(pnls); err == nil {
		payload.Metrics.AvgTradePnl = mean
	}

	if stdDev, err := stats.StandardDeviation(pnls); err == nil {
		payload.Metrics.PnlStdDev = stdDev
	}

	if grossLoss > 0 {
		payload.Metrics.ProfitFactor = grossProfit / grossLoss
	}
}

// finalizeBacktest enriches the metrics and pushes them to the marketplace
// store, which also flips the strategy's visibility flags. Only fully
// successful, parsed results ever reach this point.
func (o *Orchestrator) finalizeBacktest(ctx context.Context, strategyID eventmodels.StrategyID, payload *eventmodels.BacktestPayload) {
	enrichMetrics(payload)

	if err := o.store.UpdateBacktestMetrics(ctx, strategyID, payload.Metrics); err != nil {
		log.Errorf("failed to update backtest metrics for strategy %s: %v", strategyID, err)
	}
}
