package eventmodels

// RunRequest is the single JSON object written to a strategy subprocess on
// standard input. Subscribers is only populated in live mode.
type RunRequest struct {
	Mode         RunMode                `json:"mode"`
	StrategyFile string                 `json:"strategy_file"`
	Settings     StrategySettings       `json:"settings"`
	Subscribers  []SubscriberCredential `json:"subscribers,omitempty"`
}
