package eventmodels

// SubscriberCredential holds a subscriber's decrypted broker credentials for
// the lifetime of a single run request. It is never written to durable
// storage; use LogFields for anything that ends up in a log line.
type SubscriberCredential struct {
	SubscriberID uint    `json:"subscriber_id"`
	ApiKey       string  `json:"api_key"`
	ApiSecret    string  `json:"api_secret"`
	Capital      float64 `json:"capital"`
	Leverage     float64 `json:"leverage"`
	RiskPerTrade float64 `json:"risk_per_trade"`
}

func (c SubscriberCredential) LogFields() map[string]interface{} {
	return map[string]interface{}{
		"subscriber_id": c.SubscriberID,
		"api_key":       "[REDACTED]",
		"api_secret":    "[REDACTED]",
		"capital":       c.Capital,
	}
}
