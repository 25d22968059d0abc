package redis

import (
	"context"
	"errors"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/nodekeeper/internal/domain"
)

// GetMetadata retrieves a single metadata value
func (s *Store) GetMetadata(ctx context.Context, service, name string) (string, error) {
	value, err := s.client.HGet(ctx, MetadataKey(service), name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrNotFound
		}
		return "", s.fail("get metadata", service, err)
	}
	return value, nil
}

// ListMetadata retrieves every metadata entry of a service, sorted by name
func (s *Store) ListMetadata(ctx context.Context, service string) ([]domain.MetadataEntry, error) {
	fields, err := s.client.HGetAll(ctx, MetadataKey(service)).Result()
	if err != nil {
		return nil, s.fail("list metadata", service, err)
	}

	entries := make([]domain.MetadataEntry, 0, len(fields))
	for name, value := range fields {
		entries = append(entries, domain.MetadataEntry{Service: service, Name: name, Value: value})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	return entries, nil
}

// SetMetadata creates a metadata key
func (s *Store) SetMetadata(ctx context.Context, service, name, value string) error {
	created, err := s.client.HSetNX(ctx, MetadataKey(service), name, value).Result()
	if err != nil {
		return s.fail("set metadata", service, err)
	}
	if !created {
		return domain.ErrDuplicateMetadata
	}
	return nil
}

// UpdateMetadata changes an existing metadata key, no-op when absent
func (s *Store) UpdateMetadata(ctx context.Context, service, name, value string) error {
	err := updateMetadataScript.Run(ctx, s.client, []string{MetadataKey(service)}, name, value).Err()
	if err != nil {
		return s.fail("update metadata", service, err)
	}
	return nil
}
