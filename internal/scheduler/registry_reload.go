package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MrSnakeDoc/nodekeeper/internal/domain"
	"github.com/MrSnakeDoc/nodekeeper/internal/logger"
	"github.com/MrSnakeDoc/nodekeeper/internal/nodeassign"
	"github.com/MrSnakeDoc/nodekeeper/internal/sources/registry"
)

// ReloadStatus describes the outcome of the latest reload
type ReloadStatus struct {
	File       string    `json:"file"`
	LastReload time.Time `json:"last_reload,omitempty"`
	Nodes      int       `json:"nodes"`
	Patterns   int       `json:"patterns"`
	LastError  string    `json:"last_error,omitempty"`
}

// RegistryReloader periodically pushes the registry file into the backend
type RegistryReloader struct {
	loader        *registry.Loader
	mapper        *registry.Mapper
	nodes         *nodeassign.Service
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}

	mu     sync.Mutex
	seen   map[string]bool // services listed by any file loaded so far
	status ReloadStatus
}

// NewRegistryReloader creates a new registry reloader
func NewRegistryReloader(
	registryFile string,
	nodes *nodeassign.Service,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *RegistryReloader {
	return &RegistryReloader{
		loader:        registry.NewLoader(registryFile),
		mapper:        registry.NewMapper(),
		nodes:         nodes,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
		seen:          make(map[string]bool),
		status:        ReloadStatus{File: registryFile},
	}
}

// Start loads the registry once, then reloads on every tick or manual trigger
func (rr *RegistryReloader) Start(ctx context.Context) error {
	if err := rr.Reload(ctx); err != nil {
		return fmt.Errorf("initial reload failed: %w", err)
	}

	ticker := time.NewTicker(rr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := rr.Reload(ctx); err != nil {
					rr.logger.Error("failed to reload registry",
						logger.Error(err))
				}
			case <-rr.manualTrigger:
				rr.logger.Info("manual reload triggered")
				if err := rr.Reload(ctx); err != nil {
					rr.logger.Error("failed to reload registry",
						logger.Error(err))
				}
			case <-rr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader
func (rr *RegistryReloader) Stop() {
	close(rr.stopCh)
}

// Status returns a copy of the latest reload status
func (rr *RegistryReloader) Status() ReloadStatus {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return rr.status
}

// Reload loads the registry file and upserts nodes, patterns and ToS URLs.
// Stored nodes missing from the file are marked downed rather than deleted,
// so their assignments stay valid. The stored nodes are read back from the
// backend for every service of the file, every service of a previous load and
// every service owning a pattern, which covers nodes removed while the
// process was down. A removed service that never had a pattern is only
// covered once this process has loaded it.
func (rr *RegistryReloader) Reload(ctx context.Context) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	err := rr.reload(ctx)
	rr.status.LastReload = time.Now()
	rr.status.LastError = ""
	if err != nil {
		rr.status.LastError = err.Error()
	}
	return err
}

func (rr *RegistryReloader) reload(ctx context.Context) error {
	rr.logger.Info("reloading node registry",
		logger.String("file", rr.loader.Path()))

	file, err := rr.loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	reg, err := rr.mapper.Map(file)
	if err != nil {
		return fmt.Errorf("failed to map registry: %w", err)
	}

	var errs []error
	current := make(map[string]map[string]bool)

	for _, node := range reg.Nodes {
		if current[node.Service] == nil {
			current[node.Service] = make(map[string]bool)
		}
		current[node.Service][node.Address] = true

		if err := rr.nodes.RegisterNode(ctx, node); err != nil {
			errs = append(errs, fmt.Errorf("register %s/%s: %w", node.Service, node.Address, err))
		}
	}

	for _, service := range rr.storedServices(ctx, reg) {
		if err := rr.downRemoved(ctx, service, current[service]); err != nil {
			errs = append(errs, err)
		}
	}

	for _, p := range reg.Patterns {
		if err := rr.nodes.SavePattern(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("save pattern %s: %w", p.Service, err))
		}
	}

	for service, url := range reg.Tos {
		if err := rr.syncTos(ctx, service, url); err != nil {
			errs = append(errs, err)
		}
	}

	for _, service := range reg.Services {
		rr.seen[service] = true
	}
	rr.status.Nodes = len(reg.Nodes)
	rr.status.Patterns = len(reg.Patterns)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	rr.logger.Info("node registry loaded",
		logger.Int("nodes", len(reg.Nodes)),
		logger.Int("patterns", len(reg.Patterns)),
		logger.Int("tos", len(reg.Tos)))

	return nil
}

// storedServices lists the services whose stored nodes are compared with the file.
func (rr *RegistryReloader) storedServices(ctx context.Context, reg *registry.Registry) []string {
	set := make(map[string]bool, len(reg.Services)+len(rr.seen))
	for _, service := range reg.Services {
		set[service] = true
	}
	for service := range rr.seen {
		set[service] = true
	}

	patterns, err := rr.nodes.ListPatterns(ctx)
	if err != nil {
		rr.logger.Warn("cannot list stored services from patterns", logger.Error(err))
	}
	for _, p := range patterns {
		set[p.Service] = true
	}

	services := make([]string, 0, len(set))
	for service := range set {
		services = append(services, service)
	}
	sort.Strings(services)
	return services
}

// downRemoved marks downed every stored node of service absent from listed.
func (rr *RegistryReloader) downRemoved(ctx context.Context, service string, listed map[string]bool) error {
	stored, err := rr.nodes.Backend().ListNodes(ctx, service)
	if errors.Is(err, domain.ErrUnknownService) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("list stored nodes of %s: %w", service, err)
	}

	var errs []error
	for _, node := range stored {
		if listed[node.Address] || node.Downed {
			continue
		}

		rr.logger.Info("node removed from registry, marking downed",
			logger.String("service", service),
			logger.String("node", node.Address))

		node.Downed = true
		if err := rr.nodes.RegisterNode(ctx, node); err != nil {
			errs = append(errs, fmt.Errorf("mark %s/%s downed: %w", service, node.Address, err))
		}
	}
	return errors.Join(errs...)
}

// syncTos creates a missing ToS URL and only calls SetTos when the URL
// changed, since SetTos resets every user's acceptance flag.
func (rr *RegistryReloader) syncTos(ctx context.Context, service, url string) error {
	current, err := rr.nodes.GetMetadata(ctx, service, domain.TermsOfServiceKey)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("read tos for %s: %w", service, err)
	}
	if errors.Is(err, domain.ErrNotFound) {
		if err := rr.nodes.SetMetadata(ctx, service, domain.TermsOfServiceKey, url); err != nil {
			return fmt.Errorf("create tos for %s: %w", service, err)
		}
		return nil
	}
	if current == url {
		return nil
	}

	rr.logger.Info("terms of service changed",
		logger.String("service", service),
		logger.String("url", url))

	if err := rr.nodes.SetTos(ctx, service, url); err != nil {
		return fmt.Errorf("set tos for %s: %w", service, err)
	}
	return nil
}
