package eventmodels

import "time"

type StrategySettings struct {
	Capital      float64    `json:"capital"`
	Leverage     float64    `json:"leverage"`
	RiskPerTrade float64    `json:"risk_per_trade"`
	Instrument   string     `json:"instrument"`
	Resolution   string     `json:"resolution"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
}
