package redis

import (
	"context"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/nodekeeper/internal/domain"
)

// ListEligibleNodes returns the nodes of a service that can take a new user
func (s *Store) ListEligibleNodes(ctx context.Context, service string) ([]domain.Node, error) {
	now := s.now()
	return s.listNodes(ctx, service, func(n domain.Node) bool { return n.Eligible(now) })
}

// ListNodes returns every node registered for a service, sorted by address
func (s *Store) ListNodes(ctx context.Context, service string) ([]domain.Node, error) {
	return s.listNodes(ctx, service, func(domain.Node) bool { return true })
}

func (s *Store) listNodes(ctx context.Context, service string, keep func(domain.Node) bool) ([]domain.Node, error) {
	addrs, err := s.client.SMembers(ctx, NodesKey(service)).Result()
	if err != nil {
		return nil, s.fail("list nodes", service, err)
	}
	if len(addrs) == 0 {
		return []domain.Node{}, nil
	}
	sort.Strings(addrs)

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(addrs))
	for i, addr := range addrs {
		cmds[i] = pipe.HGetAll(ctx, NodeKey(service, addr))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, s.fail("list nodes", service, err)
	}

	nodes := make([]domain.Node, 0, len(addrs))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// Set member without a hash, skip
			continue
		}
		if n := nodeFromHash(service, addrs[i], fields); keep(n) {
			nodes = append(nodes, n)
		}
	}

	return nodes, nil
}

// ClaimSlot reserves one slot on the node in a single server-side step
func (s *Store) ClaimSlot(ctx context.Context, service, node string) error {
	res, err := claimScript.Run(ctx, s.client,
		[]string{NodeKey(service, node)},
		s.now().Unix(),
	).Int64()
	if err != nil {
		return s.fail("claim slot", service, err)
	}

	switch res {
	case 1:
		return nil
	case -1:
		return domain.ErrNodeNotFound
	default:
		return domain.ErrClaimConflict
	}
}

// GetNode retrieves a node by service and address
func (s *Store) GetNode(ctx context.Context, service, node string) (domain.Node, error) {
	fields, err := s.client.HGetAll(ctx, NodeKey(service, node)).Result()
	if err != nil {
		return domain.Node{}, s.fail("get node", service, err)
	}
	if len(fields) == 0 {
		return domain.Node{}, domain.ErrNodeNotFound
	}
	return nodeFromHash(service, node, fields), nil
}

// RegisterNode creates or updates a node without touching its current load
func (s *Store) RegisterNode(ctx context.Context, node domain.Node) error {
	err := registerNodeScript.Run(ctx, s.client,
		[]string{NodeKey(node.Service, node.Address), NodesKey(node.Service)},
		node.Available,
		node.Capacity,
		boolString(node.Downed),
		node.BackoffUnix(),
		node.Address,
		node.CurrentLoad,
	).Err()
	if err != nil {
		return s.fail("register node", node.Service, err)
	}
	return nil
}

func nodeFromHash(service, addr string, fields map[string]string) domain.Node {
	return domain.Node{
		Service:     service,
		Address:     addr,
		Available:   atoi(fields["available"]),
		CurrentLoad: atoi(fields["current_load"]),
		Capacity:    atoi(fields["capacity"]),
		Downed:      fields["downed"] != "" && fields["downed"] != "0",
		Backoff:     domain.BackoffFromUnix(atoi64(fields["backoff"])),
	}
}
