package eventmodels

import "time"

type BacktestTrade struct {
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `json:"closed_at"`
	Side       string    `json:"side"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Pnl        float64   `json:"pnl"`
}

type BacktestMetrics struct {
	TotalReturn  float64    `json:"total_return"`
	WinRate      float64    `json:"win_rate"`
	MaxDrawdown  float64    `json:"max_drawdown"`
	SharpeRatio  float64    `json:"sharpe_ratio"`
	TradeCount   int        `json:"trade_count"`
	AvgTradePnl  float64    `json:"avg_trade_pnl"`
	PnlStdDev    float64    `json:"pnl_std_dev"`
	ProfitFactor float64    `json:"profit_factor"`
	FinalCapital float64    `json:"final_capital"`
	PeriodStart  *time.Time `json:"period_start,omitempty"`
	PeriodEnd    *time.Time `json:"period_end,omitempty"`
}

type BacktestPayload struct {
	Metrics BacktestMetrics `json:"metrics"`
	Trades  []BacktestTrade `json:"trades"`
}
