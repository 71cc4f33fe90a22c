package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tradeforge/strategy-engine/src/eventmodels"
)

// SettingsStore is the durable side of the cache-aside configuration layer.
type SettingsStore interface {
	GetStrategySettings(ctx context.Context, strategyID eventmodels.StrategyID) (*StrategySettingsRecord, error)
	UpsertStrategySettings(ctx context.Context, strategyID eventmodels.StrategyID, patch SettingsFields) (*StrategySettingsRecord, []string, error)
	GetSubscriberOverride(ctx context.Context, subscriberID uint, strategyID eventmodels.StrategyID) (*SubscriberOverrideRecord, error)
	UpsertSubscriberOverride(ctx context.Context, subscriberID uint, strategyID eventmodels.StrategyID, patch SettingsFields) (*SubscriberOverrideRecord, []string, error)
}

// ErrSettingsNotFound distinguishes a missing document from a storage error.
var ErrSettingsNotFound = errors.New("settings record not found")

type GormSettingsStore struct {
	db *gorm.DB
}

func NewGormSettingsStore(db *gorm.DB) *GormSettingsStore {
	return &GormSettingsStore{db: db}
}

func (s *GormSettingsStore) GetStrategySettings(ctx context.Context, strategyID eventmodels.StrategyID) (*StrategySettingsRecord, error) {
	var record StrategySettingsRecord

	err := s.db.WithContext(ctx).Where("strategy_id = ?", strategyID.String()).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSettingsNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to fetch settings for strategy %s: %w", strategyID, err)
	}

	return &record, nil
}

// UpsertStrategySettings merges patch into the stored fields and increments
// the version counter in the same transaction, so a reader can never observe
// the new fields under the old version.
func (s *GormSettingsStore) UpsertStrategySettings(ctx context.Context, strategyID eventmodels.StrategyID, patch SettingsFields) (*StrategySettingsRecord, []string, error) {
	var record StrategySettingsRecord
	var changed []string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("strategy_id = ?", strategyID.String()).First(&record).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load settings for strategy %s: %w", strategyID, err)
		}

		fields, decodeErr := DecodeSettingsFields(record.Fields)
		if decodeErr != nil {
			return decodeErr
		}

		changed = fields.Merge(patch)

		encoded, encodeErr := fields.Encode()
		if encodeErr != nil {
			return encodeErr
		}

		record.StrategyID = strategyID.String()
		record.Fields = encoded
		record.Version++
		record.ChangedAt = time.Now().UTC()

		if err := tx.Save(&record).Error; err != nil {
			return fmt.Errorf("failed to save settings for strategy %s: %w", strategyID, err)
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return &record, changed, nil
}

func (s *GormSettingsStore) GetSubscriberOverride(ctx context.Context, subscriberID uint, strategyID eventmodels.StrategyID) (*SubscriberOverrideRecord, error) {
	var record SubscriberOverrideRecord

	err := s.db.WithContext(ctx).Where("subscriber_id = ? AND strategy_id = ?", subscriberID, strategyID.String()).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSettingsNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to fetch override for subscriber %d: %w", subscriberID, err)
	}

	return &record, nil
}

func (s *GormSettingsStore) UpsertSubscriberOverride(ctx context.Context, subscriberID uint, strategyID eventmodels.StrategyID, patch SettingsFields) (*SubscriberOverrideRecord, []string, error) {
	var record SubscriberOverrideRecord
	var changed []string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("subscriber_id = ? AND strategy_id = ?", subscriberID, strategyID.String()).First(&record).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load override for subscriber %d: %w", subscriberID, err)
		}

		fields, decodeErr := DecodeSettingsFields(record.Fields)
		if decodeErr != nil {
			return decodeErr
		}

		changed = fields.Merge(patch)

		encoded, encodeErr := fields.Encode()
		if encodeErr != nil {
			return encodeErr
		}

		record.SubscriberID = subscriberID
		record.StrategyID = strategyID.String()
		record.Fields = encoded
		record.Version++
		record.ChangedAt = time.Now().UTC()

		if err := tx.Save(&record).Error; err != nil {
			return fmt.Errorf("failed to save override for subscriber %d: %w", subscriberID, err)
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return &record, changed, nil
}
