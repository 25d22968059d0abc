// Package nodeassign is the entry point of the allocation core: it binds
// users to nodes, tracks terms-of-service acknowledgment and exposes the
// per-service metadata store.
//
// A user moves through three states per service:
//
//	Unassigned -> AssignedUnsigned   (AllocateNode)
//	AssignedUnsigned -> AssignedSigned (SetTosFlag)
//	AssignedSigned -> AssignedUnsigned (SetTos, service-wide)
//
// Nothing ever returns a user to Unassigned.
package nodeassign

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrSnakeDoc/nodekeeper/internal/allocation"
	"github.com/MrSnakeDoc/nodekeeper/internal/domain"
	"github.com/MrSnakeDoc/nodekeeper/internal/logger"
	"github.com/MrSnakeDoc/nodekeeper/internal/store"
)

// Service composes the stores and the allocation engine.
type Service struct {
	backend store.Backend
	engine  *allocation.Engine
	logger  logger.Logger
}

// New creates the façade. The backend is the only storage handle used.
func New(backend store.Backend, engine *allocation.Engine, log logger.Logger) *Service {
	return &Service{
		backend: backend,
		engine:  engine,
		logger:  log,
	}
}

// Backend returns the storage handle (used for readiness checks).
func (s *Service) Backend() store.Backend { return s.backend }

// GetAssignment returns the user's node and, while the user has not signed,
// the service's current ToS URL.
func (s *Service) GetAssignment(ctx context.Context, email, service string) (domain.Lookup, error) {
	if err := requireIdentity(email, service); err != nil {
		return domain.Lookup{}, err
	}

	a, err := s.backend.LookupAssignment(ctx, email, service)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		tos, err := s.tosURL(ctx, service)
		if err != nil {
			return domain.Lookup{}, err
		}
		return domain.Lookup{TosURL: tos}, nil
	case err != nil:
		return domain.Lookup{}, err
	}

	lookup := domain.Lookup{Assigned: true, UID: a.UID, Node: a.Node}
	if a.Tos == domain.TosSigned {
		return lookup, nil
	}

	lookup.TosURL, err = s.tosURL(ctx, service)
	if err != nil {
		return domain.Lookup{}, err
	}
	return lookup, nil
}

// AllocateNode assigns a node to a user that has none yet. It never
// reallocates: an existing assignment yields domain.ErrAlreadyAssigned.
func (s *Service) AllocateNode(ctx context.Context, email, service string) (int64, string, error) {
	lookup, err := s.GetAssignment(ctx, email, service)
	if err != nil {
		return 0, "", err
	}
	if lookup.Assigned {
		return 0, "", fmt.Errorf("%w: %s/%s", domain.ErrAlreadyAssigned, service, email)
	}

	node, err := s.engine.SelectAndClaim(ctx, service)
	if err != nil {
		if errors.Is(err, domain.ErrNoNodeAvailable) {
			s.logger.Warn("no node available",
				logger.String("service", service),
				logger.Error(err))
		}
		return 0, "", err
	}

	uid, err := s.backend.CreateAssignment(ctx, email, service, node, domain.TosUnsigned)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateAssignment) {
			// A concurrent allocation won the insert. The slot claimed above
			// stays counted on the node.
			s.logger.Warn("concurrent allocation lost the insert",
				logger.String("service", service),
				logger.String("node", node))
			return 0, "", fmt.Errorf("%w: %w", domain.ErrAlreadyAssigned, err)
		}
		return 0, "", err
	}

	s.logger.Info("node allocated",
		logger.String("service", service),
		logger.String("node", node),
		logger.Int64("uid", uid))

	return uid, node, nil
}

// GetMetadata returns one value, or domain.ErrNotFound.
func (s *Service) GetMetadata(ctx context.Context, service, name string) (string, error) {
	if service == "" || name == "" {
		return "", fmt.Errorf("%w: service and name are required", domain.ErrInvalidArgument)
	}
	return s.backend.GetMetadata(ctx, service, name)
}

// ListMetadata returns every metadata entry of a service.
func (s *Service) ListMetadata(ctx context.Context, service string) ([]domain.MetadataEntry, error) {
	if service == "" {
		return nil, fmt.Errorf("%w: service is required", domain.ErrInvalidArgument)
	}
	return s.backend.ListMetadata(ctx, service)
}

// SetMetadata creates a key; use UpdateMetadata to change it.
func (s *Service) SetMetadata(ctx context.Context, service, name, value string) error {
	if service == "" || name == "" {
		return fmt.Errorf("%w: service and name are required", domain.ErrInvalidArgument)
	}
	return s.backend.SetMetadata(ctx, service, name, value)
}

// UpdateMetadata changes an existing key; absent keys are left alone.
func (s *Service) UpdateMetadata(ctx context.Context, service, name, value string) error {
	if service == "" || name == "" {
		return fmt.Errorf("%w: service and name are required", domain.ErrInvalidArgument)
	}
	return s.backend.UpdateMetadata(ctx, service, name, value)
}

// SetTos stores a new ToS URL for the service and marks every user of the
// service unsigned so they acknowledge it again.
func (s *Service) SetTos(ctx context.Context, service, url string) error {
	if service == "" || url == "" {
		return fmt.Errorf("%w: service and url are required", domain.ErrInvalidArgument)
	}

	if err := s.storeTosURL(ctx, service, url); err != nil {
		return err
	}
	if err := s.backend.SetTosFlag(ctx, service, domain.TosUnsigned, ""); err != nil {
		return err
	}

	s.logger.Info("terms of service updated, acknowledgments reset",
		logger.String("service", service),
		logger.String("url", url))
	return nil
}

// SetTosFlag sets the flag of one user, or of every user when email is empty.
func (s *Service) SetTosFlag(ctx context.Context, service string, tos domain.TosState, email string) error {
	if service == "" {
		return fmt.Errorf("%w: service is required", domain.ErrInvalidArgument)
	}
	return s.backend.SetTosFlag(ctx, service, tos, email)
}

// ListPatterns returns every service URL pattern.
func (s *Service) ListPatterns(ctx context.Context) ([]domain.ServicePattern, error) {
	return s.backend.ListPatterns(ctx)
}

// SavePattern registers a service URL pattern.
func (s *Service) SavePattern(ctx context.Context, pattern domain.ServicePattern) error {
	if pattern.Service == "" || pattern.Pattern == "" {
		return fmt.Errorf("%w: service and pattern are required", domain.ErrInvalidArgument)
	}
	return s.backend.SavePattern(ctx, pattern)
}

// RegisterNode records the capacity and health of a node as reported from outside.
func (s *Service) RegisterNode(ctx context.Context, node domain.Node) error {
	switch {
	case node.Service == "" || node.Address == "":
		return fmt.Errorf("%w: node service and address are required", domain.ErrInvalidArgument)
	case node.Capacity < 0 || node.Available < 0 || node.CurrentLoad < 0:
		return fmt.Errorf("%w: negative counters for %s", domain.ErrInvalidArgument, node.Address)
	}
	return s.backend.RegisterNode(ctx, node)
}

// storeTosURL writes the ToS URL with get-then-set/update. A concurrent
// creator turns our set into an update.
func (s *Service) storeTosURL(ctx context.Context, service, url string) error {
	_, err := s.backend.GetMetadata(ctx, service, domain.TermsOfServiceKey)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		err = s.backend.SetMetadata(ctx, service, domain.TermsOfServiceKey, url)
		if !errors.Is(err, domain.ErrDuplicateMetadata) {
			return err
		}
	case err != nil:
		return err
	}
	return s.backend.UpdateMetadata(ctx, service, domain.TermsOfServiceKey, url)
}

// tosURL returns the service ToS URL, empty when the service has none.
func (s *Service) tosURL(ctx context.Context, service string) (string, error) {
	url, err := s.backend.GetMetadata(ctx, service, domain.TermsOfServiceKey)
	if errors.Is(err, domain.ErrNotFound) {
		return "", nil
	}
	return url, err
}

func requireIdentity(email, service string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(service) == "" {
		return fmt.Errorf("%w: email and service are required", domain.ErrInvalidArgument)
	}
	return nil
}
