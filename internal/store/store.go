// Package store defines the storage contract consumed by the allocation core.
//
// Implementations must report constraint violations with the domain sentinel
// errors and every connectivity or timeout failure as a *domain.BackendError.
package store

import (
	"context"

	"github.com/MrSnakeDoc/nodekeeper/internal/domain"
)

// NodeRegistry is the per-service node catalogue.
type NodeRegistry interface {
	// ListEligibleNodes returns the nodes of service that can take a new user.
	ListEligibleNodes(ctx context.Context, service string) ([]domain.Node, error)

	// ListNodes returns every node of service, eligible or not.
	ListNodes(ctx context.Context, service string) ([]domain.Node, error)

	// ClaimSlot atomically decrements available and increments current_load
	// on (service, node), re-checking eligibility in the same write.
	// It returns domain.ErrNodeNotFound or domain.ErrClaimConflict on refusal.
	ClaimSlot(ctx context.Context, service, node string) error

	// GetNode returns a single node or domain.ErrNodeNotFound.
	GetNode(ctx context.Context, service, node string) (domain.Node, error)

	// RegisterNode creates the node, or updates capacity, available, downed
	// and backoff of an existing one. current_load is never overwritten.
	RegisterNode(ctx context.Context, node domain.Node) error
}

// AssignmentStore maps (email, service) to a node.
type AssignmentStore interface {
	// LookupAssignment returns domain.ErrNotFound when the user has no node.
	LookupAssignment(ctx context.Context, email, service string) (domain.Assignment, error)

	// CreateAssignment inserts the row and returns its storage-produced uid.
	// An existing row yields domain.ErrDuplicateAssignment.
	CreateAssignment(ctx context.Context, email, service, node string, tos domain.TosState) (int64, error)

	// SetTosFlag updates one user when email is non-empty, every user of
	// service otherwise. Missing users are ignored.
	SetTosFlag(ctx context.Context, service string, tos domain.TosState, email string) error
}

// MetadataStore is the per-service key/value store.
type MetadataStore interface {
	// GetMetadata returns domain.ErrNotFound when the key is absent.
	GetMetadata(ctx context.Context, service, name string) (string, error)
	ListMetadata(ctx context.Context, service string) ([]domain.MetadataEntry, error)
	// SetMetadata creates the key; an existing key yields domain.ErrDuplicateMetadata.
	SetMetadata(ctx context.Context, service, name, value string) error
	// UpdateMetadata changes an existing key and is a no-op otherwise.
	UpdateMetadata(ctx context.Context, service, name, value string) error
}

// PatternStore holds the service URL patterns.
type PatternStore interface {
	ListPatterns(ctx context.Context) ([]domain.ServicePattern, error)
	SavePattern(ctx context.Context, pattern domain.ServicePattern) error
}

// Backend bundles every store with its lifecycle.
type Backend interface {
	NodeRegistry
	AssignmentStore
	MetadataStore
	PatternStore

	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Name identifies the backend in logs and /infra.
	Name() string
	Close() error
}
