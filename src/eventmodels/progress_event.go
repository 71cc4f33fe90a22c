package eventmodels

import "time"

type ProgressEvent struct {
	StrategyID StrategyID    `json:"strategy_id"`
	Stage      ProgressStage `json:"stage"`
	Progress   float64       `json:"progress"`
	Message    string        `json:"message"`
	ElapsedMs  int64         `json:"elapsed_ms,omitempty"`
	BarsLoaded int           `json:"bars_loaded,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}
