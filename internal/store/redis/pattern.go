package redis

import (
	"context"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/nodekeeper/internal/domain"
)

// ListPatterns returns every service URL pattern
func (s *Store) ListPatterns(ctx context.Context) ([]domain.ServicePattern, error) {
	services, err := s.client.SMembers(ctx, AllServicesKey()).Result()
	if err != nil {
		return nil, s.fail("list patterns", "", err)
	}
	if len(services) == 0 {
		return []domain.ServicePattern{}, nil
	}
	sort.Strings(services)

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringSliceCmd, len(services))
	for i, service := range services {
		cmds[i] = pipe.SMembers(ctx, PatternsKey(service))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, s.fail("list patterns", "", err)
	}

	var patterns []domain.ServicePattern
	for i, cmd := range cmds {
		values := cmd.Val()
		sort.Strings(values)
		for _, p := range values {
			patterns = append(patterns, domain.ServicePattern{Service: services[i], Pattern: p})
		}
	}

	return patterns, nil
}

// SavePattern stores a service pattern (bulk-safe, idempotent)
func (s *Store) SavePattern(ctx context.Context, pattern domain.ServicePattern) error {
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, PatternsKey(pattern.Service), pattern.Pattern)
	pipe.SAdd(ctx, AllServicesKey(), pattern.Service)

	if _, err := pipe.Exec(ctx); err != nil {
		return s.fail("save pattern", pattern.Service, err)
	}
	return nil
}
