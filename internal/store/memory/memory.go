// Package memory is an in-process storage backend.
//
// Every operation runs under a single mutex, which makes ClaimSlot and
// CreateAssignment the atomic conditional writes the core relies on.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrSnakeDoc/nodekeeper/internal/domain"
	"github.com/MrSnakeDoc/nodekeeper/internal/logger"
)

type nodeKey struct{ service, node string }

type userKey struct{ email, service string }

type metaKey struct{ service, name string }

// Store keeps nodes, assignments, metadata and patterns in maps.
type Store struct {
	mu       sync.RWMutex
	nodes    map[nodeKey]*domain.Node
	order    map[string][]string // service -> node addresses, registration order
	users    map[userKey]*domain.Assignment
	metadata map[metaKey]string
	patterns []domain.ServicePattern
	lastUID  int64
	now      func() time.Time
	logger   logger.Logger
}

// New creates an empty memory store.
func New(log logger.Logger) *Store {
	return &Store{
		logger:   log,
		nodes:    make(map[nodeKey]*domain.Node),
		order:    make(map[string][]string),
		users:    make(map[userKey]*domain.Assignment),
		metadata: make(map[metaKey]string),
		now:      time.Now,
	}
}

func (s *Store) Name() string { return "memory" }

func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return s.fail("ping", "", err)
	}
	return nil
}

func (s *Store) Close() error { return nil }

// fail logs a cancelled or expired context and wraps it as a backend error.
func (s *Store) fail(op, service string, err error) error {
	s.logger.Error("memory operation failed",
		logger.String("op", op),
		logger.String("service", service),
		logger.Error(err))
	return domain.NewBackendError(op, err)
}

// ListEligibleNodes returns eligible nodes in registration order.
func (s *Store) ListEligibleNodes(ctx context.Context, service string) ([]domain.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, s.fail("list nodes", service, err)
	}
	now := s.now()
	return s.listNodes(service, func(n *domain.Node) bool { return n.Eligible(now) }), nil
}

// ListNodes returns every node of a service in registration order.
func (s *Store) ListNodes(ctx context.Context, service string) ([]domain.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, s.fail("list nodes", service, err)
	}
	return s.listNodes(service, func(*domain.Node) bool { return true }), nil
}

func (s *Store) listNodes(service string, keep func(*domain.Node) bool) []domain.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]domain.Node, 0, len(s.order[service]))
	for _, addr := range s.order[service] {
		if n := s.nodes[nodeKey{service, addr}]; keep(n) {
			nodes = append(nodes, *n)
		}
	}
	return nodes
}

// ClaimSlot reserves one slot if the node is still eligible.
func (s *Store) ClaimSlot(ctx context.Context, service, node string) error {
	if err := ctx.Err(); err != nil {
		return s.fail("claim slot", service, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[nodeKey{service, node}]
	if !ok {
		return domain.ErrNodeNotFound
	}
	if !n.Eligible(s.now()) {
		return domain.ErrClaimConflict
	}

	n.Available--
	n.CurrentLoad++
	return nil
}

// GetNode returns a copy of the node.
func (s *Store) GetNode(ctx context.Context, service, node string) (domain.Node, error) {
	if err := ctx.Err(); err != nil {
		return domain.Node{}, s.fail("get node", service, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[nodeKey{service, node}]
	if !ok {
		return domain.Node{}, domain.ErrNodeNotFound
	}
	return *n, nil
}

// RegisterNode adds or updates a node, keeping its current load.
func (s *Store) RegisterNode(ctx context.Context, node domain.Node) error {
	if err := ctx.Err(); err != nil {
		return s.fail("register node", node.Service, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := nodeKey{node.Service, node.Address}
	existing, ok := s.nodes[key]
	if !ok {
		n := node
		s.nodes[key] = &n
		s.order[node.Service] = append(s.order[node.Service], node.Address)
		return nil
	}

	existing.Capacity = node.Capacity
	existing.Available = node.Available
	existing.Downed = node.Downed
	existing.Backoff = node.Backoff
	return nil
}

// LookupAssignment returns the user's assignment.
func (s *Store) LookupAssignment(ctx context.Context, email, service string) (domain.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Assignment{}, s.fail("lookup assignment", service, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.users[userKey{email, service}]
	if !ok {
		return domain.Assignment{}, domain.ErrNotFound
	}
	return *a, nil
}

// CreateAssignment inserts a new assignment with the next uid.
func (s *Store) CreateAssignment(ctx context.Context, email, service, node string, tos domain.TosState) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, s.fail("create assignment", service, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := userKey{email, service}
	if _, ok := s.users[key]; ok {
		return 0, domain.ErrDuplicateAssignment
	}

	s.lastUID++
	s.users[key] = &domain.Assignment{
		Email:   email,
		Service: service,
		UID:     s.lastUID,
		Node:    node,
		Tos:     tos,
	}
	return s.lastUID, nil
}

// SetTosFlag updates one user, or all users of the service when email is empty.
func (s *Store) SetTosFlag(ctx context.Context, service string, tos domain.TosState, email string) error {
	if err := ctx.Err(); err != nil {
		return s.fail("set tos flag", service, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if email != "" {
		if a, ok := s.users[userKey{email, service}]; ok {
			a.Tos = tos
		}
		return nil
	}

	for key, a := range s.users {
		if key.service == service {
			a.Tos = tos
		}
	}
	return nil
}

// GetMetadata returns one metadata value.
func (s *Store) GetMetadata(ctx context.Context, service, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", s.fail("get metadata", service, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.metadata[metaKey{service, name}]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

// ListMetadata returns every entry of the service sorted by name.
func (s *Store) ListMetadata(ctx context.Context, service string) ([]domain.MetadataEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, s.fail("list metadata", service, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.MetadataEntry, 0)
	for key, v := range s.metadata {
		if key.service == service {
			entries = append(entries, domain.MetadataEntry{Service: service, Name: key.name, Value: v})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// SetMetadata creates a key.
func (s *Store) SetMetadata(ctx context.Context, service, name, value string) error {
	if err := ctx.Err(); err != nil {
		return s.fail("set metadata", service, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := metaKey{service, name}
	if _, ok := s.metadata[key]; ok {
		return domain.ErrDuplicateMetadata
	}
	s.metadata[key] = value
	return nil
}

// UpdateMetadata changes an existing key.
func (s *Store) UpdateMetadata(ctx context.Context, service, name, value string) error {
	if err := ctx.Err(); err != nil {
		return s.fail("update metadata", service, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := metaKey{service, name}
	if _, ok := s.metadata[key]; ok {
		s.metadata[key] = value
	}
	return nil
}

// ListPatterns returns all patterns in insertion order.
func (s *Store) ListPatterns(ctx context.Context) ([]domain.ServicePattern, error) {
	if err := ctx.Err(); err != nil {
		return nil, s.fail("list patterns", "", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ServicePattern, len(s.patterns))
	copy(out, s.patterns)
	return out, nil
}

// SavePattern adds a pattern unless it is already present.
func (s *Store) SavePattern(ctx context.Context, pattern domain.ServicePattern) error {
	if err := ctx.Err(); err != nil {
		return s.fail("save pattern", pattern.Service, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.patterns {
		if p == pattern {
			return nil
		}
	}
	s.patterns = append(s.patterns, pattern)
	return nil
}
