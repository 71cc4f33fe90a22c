package eventmodels

type RunMode string

const (
	RunModeBacktest RunMode = "backtest"
	RunModeLive     RunMode = "live"
)
