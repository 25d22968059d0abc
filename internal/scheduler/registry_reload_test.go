package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/nodekeeper/internal/allocation"
	"github.com/MrSnakeDoc/nodekeeper/internal/domain"
	"github.com/MrSnakeDoc/nodekeeper/internal/logger"
	"github.com/MrSnakeDoc/nodekeeper/internal/nodeassign"
	"github.com/MrSnakeDoc/nodekeeper/internal/store/memory"
)

const registryV1 = `services:
  sync:
    terms_of_service: http://example.com/tos-v1
    patterns: ["{node}/1.1/{uid}"]
    nodes:
      - node: phx12
        capacity: 100
      - node: phx13
        capacity: 50
`

const registryV2 = `services:
  sync:
    terms_of_service: http://example.com/tos-v2
    patterns: ["{node}/1.1/{uid}"]
    nodes:
      - node: phx12
        capacity: 200
`

func setup(t *testing.T, content string) (*RegistryReloader, *nodeassign.Service, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	log := logger.New("error", false)
	backend := memory.New(log)
	svc := nodeassign.New(backend, allocation.NewEngine(backend, log, 0), log)
	return NewRegistryReloader(path, svc, log, time.Hour, make(chan struct{}, 1)), svc, path
}

func TestRegistryReloader_Reload(t *testing.T) {
	ctx := context.Background()
	rr, svc, _ := setup(t, registryV1)

	require.NoError(t, rr.Reload(ctx))

	n, err := svc.Backend().GetNode(ctx, "sync", "phx12")
	require.NoError(t, err)
	assert.Equal(t, 100, n.Capacity)
	assert.Equal(t, 100, n.Available)

	patterns, err := svc.ListPatterns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.ServicePattern{{Service: "sync", Pattern: "{node}/1.1/{uid}"}}, patterns)

	tos, err := svc.GetMetadata(ctx, "sync", domain.TermsOfServiceKey)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/tos-v1", tos)

	status := rr.Status()
	assert.Equal(t, 2, status.Nodes)
	assert.Empty(t, status.LastError)
	assert.False(t, status.LastReload.IsZero())
}

func TestRegistryReloader_ReloadKeepsAcceptedTos(t *testing.T) {
	ctx := context.Background()
	rr, svc, _ := setup(t, registryV1)
	require.NoError(t, rr.Reload(ctx))

	_, _, err := svc.AllocateNode(ctx, "u@x", "sync")
	require.NoError(t, err)
	require.NoError(t, svc.SetTosFlag(ctx, "sync", domain.TosSigned, "u@x"))

	// unchanged file must not reset acceptance
	require.NoError(t, rr.Reload(ctx))
	lookup, err := svc.GetAssignment(ctx, "u@x", "sync")
	require.NoError(t, err)
	assert.Empty(t, lookup.TosURL)
}

func TestRegistryReloader_ReloadChanges(t *testing.T) {
	ctx := context.Background()
	rr, svc, path := setup(t, registryV1)
	require.NoError(t, rr.Reload(ctx))

	_, node, err := svc.AllocateNode(ctx, "u@x", "sync")
	require.NoError(t, err)
	require.NoError(t, svc.SetTosFlag(ctx, "sync", domain.TosSigned, "u@x"))

	require.NoError(t, os.WriteFile(path, []byte(registryV2), 0o644))
	require.NoError(t, rr.Reload(ctx))

	removed, err := svc.Backend().GetNode(ctx, "sync", "phx13")
	require.NoError(t, err)
	assert.True(t, removed.Downed)

	kept, err := svc.Backend().GetNode(ctx, "sync", "phx12")
	require.NoError(t, err)
	assert.Equal(t, 200, kept.Capacity)
	assert.False(t, kept.Downed)

	// new ToS resets acceptance, the assignment itself survives
	lookup, err := svc.GetAssignment(ctx, "u@x", "sync")
	require.NoError(t, err)
	assert.True(t, lookup.Assigned)
	assert.Equal(t, node, lookup.Node)
	assert.Equal(t, "http://example.com/tos-v2", lookup.TosURL)
}

func TestRegistryReloader_DownsNodesRemovedWhileStopped(t *testing.T) {
	ctx := context.Background()
	_, svc, path := setup(t, registryV2)

	// state left by a previous process
	require.NoError(t, svc.RegisterNode(ctx, domain.Node{Service: "sync", Address: "phx13", Available: 50, Capacity: 50}))
	require.NoError(t, svc.RegisterNode(ctx, domain.Node{Service: "queuey", Address: "q1", Available: 5, Capacity: 5}))
	require.NoError(t, svc.SavePattern(ctx, domain.ServicePattern{Service: "queuey", Pattern: "{node}/{uid}"}))

	rr := NewRegistryReloader(path, svc, logger.New("error", false), time.Hour, nil)
	require.NoError(t, rr.Reload(ctx))

	removed, err := svc.Backend().GetNode(ctx, "sync", "phx13")
	require.NoError(t, err)
	assert.True(t, removed.Downed)

	orphan, err := svc.Backend().GetNode(ctx, "queuey", "q1")
	require.NoError(t, err)
	assert.True(t, orphan.Downed)

	listed, err := svc.Backend().GetNode(ctx, "sync", "phx12")
	require.NoError(t, err)
	assert.False(t, listed.Downed)
}

func TestRegistryReloader_InvalidFile(t *testing.T) {
	rr, _, _ := setup(t, "services: [broken")

	err := rr.Reload(context.Background())
	require.Error(t, err)
	assert.NotEmpty(t, rr.Status().LastError)
}

func TestRegistryReloader_ManualTrigger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rr, svc, path := setup(t, registryV1)
	require.NoError(t, rr.Start(ctx))
	defer rr.Stop()

	require.NoError(t, os.WriteFile(path, []byte(registryV2), 0o644))
	rr.manualTrigger <- struct{}{}

	assert.Eventually(t, func() bool {
		n, err := svc.Backend().GetNode(ctx, "sync", "phx13")
		return err == nil && n.Downed
	}, 2*time.Second, 10*time.Millisecond)
}
