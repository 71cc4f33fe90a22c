package coordination

import (
	"context"
	"sync"
	"time"

	"github.com/tradeforge/strategy-engine/src/eventmodels"
)

// fakeKeyValueStore mimics the redis semantics this package relies on:
// atomic set-if-absent and TTL expiry.
type fakeKeyValueStore struct {
	mu        sync.Mutex
	values    map[string]string
	expiries  map[string]time.Time
	expires   map[string]int
	publishes map[string][]string
}

func newFakeKeyValueStore() *fakeKeyValueStore {
	return &fakeKeyValueStore{
		values:    make(map[string]string),
		expiries:  make(map[string]time.Time),
		expires:   make(map[string]int),
		publishes: make(map[string][]string),
	}
}

func (s *fakeKeyValueStore) expired(key string) bool {
	expiry, found := s.expiries[key]
	return found && time.Now().After(expiry)
}

func (s *fakeKeyValueStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expired(key) {
		delete(s.values, key)
		delete(s.expiries, key)
	}

	value, found := s.values[key]
	return value, found, nil
}

func (s *fakeKeyValueStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	if ttl > 0 {
		s.expiries[key] = time.Now().Add(ttl)
	}

	return nil
}

func (s *fakeKeyValueStore) SetIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expired(key) {
		delete(s.values, key)
		delete(s.expiries, key)
	}

	if _, found := s.values[key]; found {
		return false, nil
	}

	s.values[key] = value
	if ttl > 0 {
		s.expiries[key] = time.Now().Add(ttl)
	}

	return true, nil
}

func (s *fakeKeyValueStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	delete(s.expiries, key)
	return nil
}

func (s *fakeKeyValueStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expires[key]++
	s.expiries[key] = time.Now().Add(ttl)
	return nil
}

func (s *fakeKeyValueStore) Publish(ctx context.Context, channel string, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.publishes[channel] = append(s.publishes[channel], payload)
	return nil
}

// fakeSettingsStore is an in-memory SettingsStore that counts reads so tests
// can assert the cache actually short-circuits durable storage.
type fakeSettingsStore struct {
	mu            sync.Mutex
	strategies    map[string]*StrategySettingsRecord
	overrides     map[string]*SubscriberOverrideRecord
	strategyReads int
	overrideReads int
}

func newFakeSettingsStore() *fakeSettingsStore {
	return &fakeSettingsStore{
		strategies: make(map[string]*StrategySettingsRecord),
		overrides:  make(map[string]*SubscriberOverrideRecord),
	}
}

func (s *fakeSettingsStore) GetStrategySettings(ctx context.Context, strategyID eventmodels.StrategyID) (*StrategySettingsRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.strategyReads++
	record, found := s.strategies[strategyID.String()]
	if !found {
		return nil, ErrSettingsNotFound
	}

	copied := *record
	return &copied, nil
}

func (s *fakeSettingsStore) UpsertStrategySettings(ctx context.Context, strategyID eventmodels.StrategyID, patch SettingsFields) (*StrategySettingsRecord, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, found := s.strategies[strategyID.String()]
	if !found {
		record = &StrategySettingsRecord{StrategyID: strategyID.String(), Fields: "{}"}
		s.strategies[strategyID.String()] = record
	}

	fields, err := DecodeSettingsFields(record.Fields)
	if err != nil {
		return nil, nil, err
	}

	changed := fields.Merge(patch)

	encoded, err := fields.Encode()
	if err != nil {
		return nil, nil, err
	}

	record.Fields = encoded
	record.Version++
	record.ChangedAt = time.Now().UTC()

	copied := *record
	return &copied, changed, nil
}

func (s *fakeSettingsStore) GetSubscriberOverride(ctx context.Context, subscriberID uint, strategyID eventmodels.StrategyID) (*SubscriberOverrideRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.overrideReads++
	record, found := s.overrides[subscriberOverrideCacheKey(subscriberID, strategyID)]
	if !found {
		return nil, ErrSettingsNotFound
	}

	copied := *record
	return &copied, nil
}

func (s *fakeSettingsStore) UpsertSubscriberOverride(ctx context.Context, subscriberID uint, strategyID eventmodels.StrategyID, patch SettingsFields) (*SubscriberOverrideRecord, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := subscriberOverrideCacheKey(subscriberID, strategyID)
	record, found := s.overrides[key]
	if !found {
		record = &SubscriberOverrideRecord{SubscriberID: subscriberID, StrategyID: strategyID.String(), Fields: "{}"}
		s.overrides[key] = record
	}

	fields, err := DecodeSettingsFields(record.Fields)
	if err != nil {
		return nil, nil, err
	}

	changed := fields.Merge(patch)

	encoded, err := fields.Encode()
	if err != nil {
		return nil, nil, err
	}

	record.Fields = encoded
	record.Version++
	record.ChangedAt = time.Now().UTC()

	copied := *record
	return &copied, changed, nil
}
