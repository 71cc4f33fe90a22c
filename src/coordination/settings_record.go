package coordination

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// StrategySettingsRecord is the durable, versioned configuration document for
// one strategy. Version increments on every write and never decreases.
type StrategySettingsRecord struct {
	gorm.Model
	StrategyID string    `gorm:"column:strategy_id;type:varchar(64);not null;uniqueIndex:idx_strategy_settings"`
	Fields     string    `gorm:"column:fields;type:text;not null"`
	Version    int64     `gorm:"column:version;not null;default:0"`
	ChangedAt  time.Time `gorm:"column:changed_at;type:timestamp;not null"`
}

// SubscriberOverrideRecord scopes configuration overrides to one
// (subscriber, strategy) pair.
type SubscriberOverrideRecord struct {
	gorm.Model
	SubscriberID uint      `gorm:"column:subscriber_id;not null;uniqueIndex:idx_subscriber_override"`
	StrategyID   string    `gorm:"column:strategy_id;type:varchar(64);not null;uniqueIndex:idx_subscriber_override"`
	Fields       string    `gorm:"column:fields;type:text;not null"`
	Version      int64     `gorm:"column:version;not null;default:0"`
	ChangedAt    time.Time `gorm:"column:changed_at;type:timestamp;not null"`
}

// SettingsFields is the free-form configuration hash stored in a record.
type SettingsFields map[string]interface{}

func (f SettingsFields) Encode() (string, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("failed to encode settings fields: %w", err)
	}

	return string(raw), nil
}

func DecodeSettingsFields(raw string) (SettingsFields, error) {
	fields := make(SettingsFields)
	if raw == "" {
		return fields, nil
	}

	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("failed to decode settings fields: %w", err)
	}

	return fields, nil
}

// Merge applies patch on top of f and returns the names of changed fields.
func (f SettingsFields) Merge(patch SettingsFields) []string {
	var changed []string
	for key, value := range patch {
		existing, found := f[key]
		if !found || fmt.Sprintf("%v", existing) != fmt.Sprintf("%v", value) {
			changed = append(changed, key)
		}

		f[key] = value
	}

	return changed
}
