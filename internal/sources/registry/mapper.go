package registry

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/MrSnakeDoc/nodekeeper/internal/domain"
)

// Registry is the domain view of a registry file
type Registry struct {
	Services []string // sorted
	Nodes    []domain.Node
	Patterns []domain.ServicePattern
	Tos      map[string]string // service -> ToS URL
}

// Mapper converts a registry File into domain entities
type Mapper struct{}

// NewMapper creates a new mapper instance
func NewMapper() *Mapper {
	return &Mapper{}
}

// Map validates the file and converts it. Services are processed in name
// order so reloads are deterministic.
func (m *Mapper) Map(file *File) (*Registry, error) {
	if file == nil || len(file.Services) == 0 {
		return nil, fmt.Errorf("no services found in registry file")
	}

	names := make([]string, 0, len(file.Services))
	for name := range file.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	reg := &Registry{Services: names, Tos: make(map[string]string)}

	for _, service := range names {
		props := file.Services[service]
		if strings.TrimSpace(service) == "" {
			return nil, fmt.Errorf("empty service name in registry file")
		}

		if props.TermsOfService != "" {
			if _, err := url.ParseRequestURI(props.TermsOfService); err != nil {
				return nil, fmt.Errorf("service %s: invalid terms_of_service url: %w", service, err)
			}
			reg.Tos[service] = props.TermsOfService
		}

		for _, p := range props.Patterns {
			if p == "" {
				continue
			}
			reg.Patterns = append(reg.Patterns, domain.ServicePattern{Service: service, Pattern: p})
		}

		seen := make(map[string]bool, len(props.Nodes))
		for _, np := range props.Nodes {
			node, err := mapNode(service, np)
			if err != nil {
				return nil, err
			}
			if seen[node.Address] {
				return nil, fmt.Errorf("service %s: node %s listed twice", service, node.Address)
			}
			seen[node.Address] = true
			reg.Nodes = append(reg.Nodes, node)
		}
	}

	return reg, nil
}

func mapNode(service string, np NodeProps) (domain.Node, error) {
	if np.Node == "" {
		return domain.Node{}, fmt.Errorf("service %s: node without address", service)
	}
	if np.Capacity < 0 {
		return domain.Node{}, fmt.Errorf("service %s: node %s has negative capacity", service, np.Node)
	}

	available := np.Capacity
	if np.Available != nil {
		if *np.Available < 0 {
			return domain.Node{}, fmt.Errorf("service %s: node %s has negative available", service, np.Node)
		}
		available = *np.Available
	}

	node := domain.Node{
		Service:   service,
		Address:   np.Node,
		Available: available,
		Capacity:  np.Capacity,
		Downed:    np.Downed,
	}
	if np.Backoff != nil {
		node.Backoff = *np.Backoff
	}

	return node, nil
}
