package eventmodels

type SubscriberExecutionSummary struct {
	SubscriberID    uint    `json:"subscriber_id"`
	OrdersPlaced    int     `json:"orders_placed"`
	OrdersFilled    int     `json:"orders_filled"`
	TradesGenerated int     `json:"trades_generated"`
	Notional        float64 `json:"notional"`
	Error           string  `json:"error,omitempty"`
}

type LivePayload struct {
	Subscribers []SubscriberExecutionSummary `json:"subscribers"`
	Signal      string                       `json:"signal,omitempty"`
}
