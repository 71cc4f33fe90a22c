package credentials

import (
	"gorm.io/gorm"
)

// Subscription is one subscriber's enrollment in a strategy. Credentials are
// stored encrypted; only the resolver ever sees plaintext, in memory, for
// the duration of a single run.
type Subscription struct {
	gorm.Model
	StrategyID         string  `gorm:"column:strategy_id;type:varchar(64);not null;index:idx_strategy_subscriptions"`
	SubscriberID       uint    `gorm:"column:subscriber_id;not null;index:idx_subscriber_subscriptions"`
	EncryptedApiKey    string  `gorm:"column:encrypted_api_key;type:text;not null"`
	EncryptedApiSecret string  `gorm:"column:encrypted_api_secret;type:text;not null"`
	Capital            float64 `gorm:"column:capital;type:numeric;not null"`
	Leverage           float64 `gorm:"column:leverage;type:numeric;not null;default:1"`
	RiskPerTrade       float64 `gorm:"column:risk_per_trade;type:numeric;not null"`
	Active             bool    `gorm:"column:active;not null;default:true"`
	Paused             bool    `gorm:"column:paused;not null;default:false"`
}
