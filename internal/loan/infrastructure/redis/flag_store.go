package redis

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"
)

const flagKeyPrefix = "contract_completed_"

// FlagStore persists "contract completed" flags as plain Redis keys so they
// survive restarts and are shared by every instance.
type FlagStore struct {
	client goredis.UniversalClient
}

// NewFlagStore constructs a Redis flag store.
func NewFlagStore(client goredis.UniversalClient) (*FlagStore, error) {
	if client == nil {
		return nil, errors.New("redis flag store: nil client")
	}
	return &FlagStore{client: client}, nil
}

// IsCompleted reports whether the flag is set.
func (s *FlagStore) IsCompleted(ctx context.Context, applicationID string) (bool, error) {
	if s == nil || s.client == nil {
		return false, errors.New("redis flag store: nil client")
	}
	n, err := s.client.Exists(ctx, flagKey(applicationID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListCompleted returns the set flags among applicationIDs in one round trip.
func (s *FlagStore) ListCompleted(ctx context.Context, applicationIDs []string) (map[string]bool, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("redis flag store: nil client")
	}
	result := make(map[string]bool, len(applicationIDs))
	if len(applicationIDs) == 0 {
		return result, nil
	}
	keys := make([]string, len(applicationIDs))
	for i, id := range applicationIDs {
		keys[i] = flagKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, value := range values {
		if value != nil {
			result[applicationIDs[i]] = true
		}
	}
	return result, nil
}

// MarkCompleted sets the flag. Flags never expire.
func (s *FlagStore) MarkCompleted(ctx context.Context, applicationID string) error {
	if s == nil || s.client == nil {
		return errors.New("redis flag store: nil client")
	}
	return s.client.Set(ctx, flagKey(applicationID), "true", 0).Err()
}

func flagKey(applicationID string) string {
	return flagKeyPrefix + applicationID
}
