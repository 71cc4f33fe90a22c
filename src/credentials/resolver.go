package credentials

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/tradeforge/strategy-engine/src/eventmodels"
	"github.com/tradeforge/strategy-engine/src/utils"
)

// SubscriptionStore reads subscription rows from the persistence
// collaborator.
type SubscriptionStore interface {
	ActiveSubscriptions(ctx context.Context, strategyID eventmodels.StrategyID) ([]Subscription, error)
}

type GormSubscriptionStore struct {
	db *gorm.DB
}

func NewGormSubscriptionStore(db *gorm.DB) *GormSubscriptionStore {
	return &GormSubscriptionStore{db: db}
}

func (s *GormSubscriptionStore) ActiveSubscriptions(ctx context.Context, strategyID eventmodels.StrategyID) ([]Subscription, error) {
	var subscriptions []Subscription

	err := s.db.WithContext(ctx).
		Where("strategy_id = ? AND active = ? AND paused = ?", strategyID.String(), true, false).
		Order("subscriber_id asc").
		Find(&subscriptions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subscriptions for strategy %s: %w", strategyID, err)
	}

	return subscriptions, nil
}

// Decryptor is the encryption collaborator: ciphertext in, plaintext out.
type Decryptor interface {
	Decrypt(ciphertext string) (string, error)
}

// AesDecryptor decrypts credentials sealed with utils.EncryptCredential.
type AesDecryptor struct {
	key []byte
}

func NewAesDecryptor(key []byte) *AesDecryptor {
	return &AesDecryptor{key: key}
}

func (d *AesDecryptor) Decrypt(ciphertext string) (string, error) {
	return utils.DecryptCredential(ciphertext, d.key)
}

// Resolver turns stored subscriptions into in-memory subscriber credentials
// for one execution.
type Resolver struct {
	store     SubscriptionStore
	decryptor Decryptor
}

func NewResolver(store SubscriptionStore, decryptor Decryptor) *Resolver {
	return &Resolver{
		store:     store,
		decryptor: decryptor,
	}
}

// ActiveSubscribers resolves and decrypts credentials for every active,
// unpaused subscriber of a strategy. Decryption failure policy: the affected
// subscriber is skipped and logged, the rest of the batch is returned. This
// is applied uniformly; a bad row never aborts the whole run.
func (r *Resolver) ActiveSubscribers(ctx context.Context, strategyID eventmodels.StrategyID) ([]eventmodels.SubscriberCredential, error) {
	subscriptions, err := r.store.ActiveSubscriptions(ctx, strategyID)
	if err != nil {
		return nil, err
	}

	subscribers := make([]eventmodels.SubscriberCredential, 0, len(subscriptions))

	for _, subscription := range subscriptions {
		apiKey, err := r.decryptor.Decrypt(subscription.EncryptedApiKey)
		if err != nil {
			r.logSkipped(strategyID, subscription, err)
			continue
		}

		apiSecret, err := r.decryptor.Decrypt(subscription.EncryptedApiSecret)
		if err != nil {
			r.logSkipped(strategyID, subscription, err)
			continue
		}

		subscribers = append(subscribers, eventmodels.SubscriberCredential{
			SubscriberID: subscription.SubscriberID,
			ApiKey:       apiKey,
			ApiSecret:    apiSecret,
			Capital:      subscription.Capital,
			Leverage:     subscription.Leverage,
			RiskPerTrade: subscription.RiskPerTrade,
		})
	}

	return subscribers, nil
}

func (r *Resolver) logSkipped(strategyID eventmodels.StrategyID, subscription Subscription, err error) {
	decryptErr := &eventmodels.CredentialDecryptionError{SubscriberID: subscription.SubscriberID, Err: err}

	// LogFields redacts the credential material
	fields := log.Fields(eventmodels.SubscriberCredential{
		SubscriberID: subscription.SubscriberID,
		Capital:      subscription.Capital,
	}.LogFields())
	fields["strategy_id"] = strategyID

	log.WithFields(fields).Errorf("skipping subscriber: %v", decryptErr)
}
