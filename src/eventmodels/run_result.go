package eventmodels

// RunResult is the single JSON object a strategy subprocess writes to
// standard output before exiting. Exactly one of Backtest or Live is set on
// success, matching Mode.
type RunResult struct {
	Success      bool             `json:"success"`
	Mode         RunMode          `json:"mode"`
	Backtest     *BacktestPayload `json:"backtest,omitempty"`
	Live         *LivePayload     `json:"live,omitempty"`
	ErrorMessage string           `json:"error,omitempty"`
	Trace        string           `json:"trace,omitempty"`
}

func NewFailedRunResult(mode RunMode, err error) RunResult {
	return RunResult{
		Success:      false,
		Mode:         mode,
		ErrorMessage: err.Error(),
	}
}
