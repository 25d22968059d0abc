// Package redis stores nodes, assignments, metadata and patterns in a single
// Redis database. Scaling out is done by the sharded backend, one database per
// shard key, not by Redis Cluster: setTosAllScript derives the user hash keys
// inside Lua from the service user set, so those keys are not declared in
// KEYS and may live on other cluster slots.
package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/nodekeeper/internal/domain"
	"github.com/MrSnakeDoc/nodekeeper/internal/logger"
)

// Store implements store.Backend on top of a single Redis database.
type Store struct {
	client *redis.Client
	logger logger.Logger
	now    func() time.Time
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client, log logger.Logger) *Store {
	return &Store{
		client: client,
		logger: log,
		now:    time.Now,
	}
}

func (s *Store) Name() string { return "redis" }

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return s.fail("ping", "", err)
	}
	return nil
}

// Close closes the underlying client
func (s *Store) Close() error {
	return s.client.Close()
}

// fail logs a storage failure with full detail and converts it to the
// backend error kind. Nothing of the driver error leaves this package.
func (s *Store) fail(op, service string, err error) error {
	s.logger.Error("redis operation failed",
		logger.String("op", op),
		logger.String("service", service),
		logger.String("addr", s.client.Options().Addr),
		logger.Error(err))
	return domain.NewBackendError(op, err)
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func atoi(s string) int {
	i, _ := strconv.Atoi(s)
	return i
}

func atoi64(s string) int64 {
	i, _ := strconv.ParseInt(s, 10, 64)
	return i
}
