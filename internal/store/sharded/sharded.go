// Package sharded routes every service to its own storage backend.
//
// The shard of a service is its name up to the first '-', so "sync-1.5"
// and "sync" share a backend.
package sharded

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MrSnakeDoc/nodekeeper/internal/domain"
	"github.com/MrSnakeDoc/nodekeeper/internal/logger"
	"github.com/MrSnakeDoc/nodekeeper/internal/store"
)

// Backend dispatches store calls to per-shard backends.
type Backend struct {
	shards map[string]store.Backend
	keys   []string
	logger logger.Logger
}

var _ store.Backend = (*Backend)(nil)

// New builds a sharded backend. Map keys are shard keys (see ShardKey).
func New(shards map[string]store.Backend, log logger.Logger) *Backend {
	keys := make([]string, 0, len(shards))
	for k := range shards {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return &Backend{
		shards: shards,
		keys:   keys,
		logger: log,
	}
}

// ShardKey returns the shard a service lives in.
func ShardKey(service string) string {
	key, _, _ := strings.Cut(service, "-")
	return key
}

func (b *Backend) backendFor(service string) (store.Backend, error) {
	shard, ok := b.shards[ShardKey(service)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownService, service)
	}
	return shard, nil
}

func (b *Backend) Name() string { return "sharded" }

// Ping fails if any shard is unreachable.
func (b *Backend) Ping(ctx context.Context) error {
	for _, k := range b.keys {
		if err := b.shards[k].Ping(ctx); err != nil {
			return fmt.Errorf("shard %s: %w", k, err)
		}
	}
	return nil
}

// Close closes every shard once, even when several keys share a backend.
func (b *Backend) Close() error {
	var errs []error
	closed := make(map[store.Backend]bool, len(b.shards))
	for _, k := range b.keys {
		shard := b.shards[k]
		if closed[shard] {
			continue
		}
		closed[shard] = true
		if err := shard.Close(); err != nil {
			errs = append(errs, fmt.Errorf("shard %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Backend) ListEligibleNodes(ctx context.Context, service string) ([]domain.Node, error) {
	shard, err := b.backendFor(service)
	if err != nil {
		return nil, err
	}
	return shard.ListEligibleNodes(ctx, service)
}

func (b *Backend) ListNodes(ctx context.Context, service string) ([]domain.Node, error) {
	shard, err := b.backendFor(service)
	if err != nil {
		return nil, err
	}
	return shard.ListNodes(ctx, service)
}

func (b *Backend) ClaimSlot(ctx context.Context, service, node string) error {
	shard, err := b.backendFor(service)
	if err != nil {
		return err
	}
	return shard.ClaimSlot(ctx, service, node)
}

func (b *Backend) GetNode(ctx context.Context, service, node string) (domain.Node, error) {
	shard, err := b.backendFor(service)
	if err != nil {
		return domain.Node{}, err
	}
	return shard.GetNode(ctx, service, node)
}

func (b *Backend) RegisterNode(ctx context.Context, node domain.Node) error {
	shard, err := b.backendFor(node.Service)
	if err != nil {
		return err
	}
	return shard.RegisterNode(ctx, node)
}

func (b *Backend) LookupAssignment(ctx context.Context, email, service string) (domain.Assignment, error) {
	shard, err := b.backendFor(service)
	if err != nil {
		return domain.Assignment{}, err
	}
	return shard.LookupAssignment(ctx, email, service)
}

func (b *Backend) CreateAssignment(ctx context.Context, email, service, node string, tos domain.TosState) (int64, error) {
	shard, err := b.backendFor(service)
	if err != nil {
		return 0, err
	}
	return shard.CreateAssignment(ctx, email, service, node, tos)
}

func (b *Backend) SetTosFlag(ctx context.Context, service string, tos domain.TosState, email string) error {
	shard, err := b.backendFor(service)
	if err != nil {
		return err
	}
	return shard.SetTosFlag(ctx, service, tos, email)
}

func (b *Backend) GetMetadata(ctx context.Context, service, name string) (string, error) {
	shard, err := b.backendFor(service)
	if err != nil {
		return "", err
	}
	return shard.GetMetadata(ctx, service, name)
}

func (b *Backend) ListMetadata(ctx context.Context, service string) ([]domain.MetadataEntry, error) {
	shard, err := b.backendFor(service)
	if err != nil {
		return nil, err
	}
	return shard.ListMetadata(ctx, service)
}

func (b *Backend) SetMetadata(ctx context.Context, service, name, value string) error {
	shard, err := b.backendFor(service)
	if err != nil {
		return err
	}
	return shard.SetMetadata(ctx, service, name, value)
}

func (b *Backend) UpdateMetadata(ctx context.Context, service, name, value string) error {
	shard, err := b.backendFor(service)
	if err != nil {
		return err
	}
	return shard.UpdateMetadata(ctx, service, name, value)
}

// ListPatterns combines the patterns of every shard. Unreachable shards are
// skipped so one dead shard does not hide the others.
func (b *Backend) ListPatterns(ctx context.Context) ([]domain.ServicePattern, error) {
	seen := make(map[domain.ServicePattern]bool)
	patterns := make([]domain.ServicePattern, 0)

	for _, k := range b.keys {
		found, err := b.shards[k].ListPatterns(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrBackendUnavailable) {
				b.logger.Warn("skipping unavailable shard while listing patterns",
					logger.String("shard", k),
					logger.Error(err))
				continue
			}
			return nil, err
		}

		for _, p := range found {
			if seen[p] {
				continue
			}
			seen[p] = true
			patterns = append(patterns, p)
		}
	}

	return patterns, nil
}

func (b *Backend) SavePattern(ctx context.Context, pattern domain.ServicePattern) error {
	shard, err := b.backendFor(pattern.Service)
	if err != nil {
		return err
	}
	return shard.SavePattern(ctx, pattern)
}
