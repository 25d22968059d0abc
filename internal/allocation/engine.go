// Package allocation selects the least loaded eligible node of a service
// and claims one of its slots.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/nodekeeper/internal/domain"
	"github.com/MrSnakeDoc/nodekeeper/internal/logger"
	"github.com/MrSnakeDoc/nodekeeper/internal/store"
)

// DefaultClaimRetries bounds how often a lost claim triggers a new selection.
const DefaultClaimRetries = 3

// Engine picks and claims nodes. It holds no state between calls.
type Engine struct {
	registry store.NodeRegistry
	logger   logger.Logger
	retries  int
	now      func() time.Time
}

// NewEngine creates an engine over the given node registry.
func NewEngine(registry store.NodeRegistry, log logger.Logger, retries int) *Engine {
	if retries <= 0 {
		retries = DefaultClaimRetries
	}
	return &Engine{
		registry: registry,
		logger:   log,
		retries:  retries,
		now:      time.Now,
	}
}

// SelectAndClaim returns the address of the node claimed for a new user.
//
// The ranking query is only a hint: the claim re-checks eligibility on the
// storage side, and a lost claim starts a fresh selection. After the retry
// budget is spent the caller gets domain.ErrNoNodeAvailable.
func (e *Engine) SelectAndClaim(ctx context.Context, service string) (string, error) {
	for attempt := 1; attempt <= e.retries; attempt++ {
		node, err := e.selectNode(ctx, service)
		if err != nil {
			return "", err
		}

		err = e.registry.ClaimSlot(ctx, service, node.Address)
		if err == nil {
			e.logger.Debug("node claimed",
				logger.String("service", service),
				logger.String("node", node.Address),
				logger.Int("attempt", attempt))
			return node.Address, nil
		}

		if !errors.Is(err, domain.ErrClaimConflict) && !errors.Is(err, domain.ErrNodeNotFound) {
			return "", err
		}

		e.logger.Warn("node claim lost, selecting again",
			logger.String("service", service),
			logger.String("node", node.Address),
			logger.Int("attempt", attempt),
			logger.Error(err))
	}

	return "", fmt.Errorf("%w: %s (claims kept conflicting after %d attempts)",
		domain.ErrNoNodeAvailable, service, e.retries)
}

// selectNode ranks the eligible nodes and returns the least loaded one.
func (e *Engine) selectNode(ctx context.Context, service string) (domain.Node, error) {
	nodes, err := e.registry.ListEligibleNodes(ctx, service)
	if err != nil {
		return domain.Node{}, err
	}

	node, ok := domain.LeastLoaded(nodes, e.now())
	if !ok {
		return domain.Node{}, fmt.Errorf("%w: %s", domain.ErrNoNodeAvailable, service)
	}
	return node, nil
}
