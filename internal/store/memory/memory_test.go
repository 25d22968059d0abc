package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MrSnakeDoc/nodekeeper/internal/domain"
	"github.com/MrSnakeDoc/nodekeeper/internal/logger"
)

func newStore() *Store { return New(logger.New("error", false)) }

func TestClaimSlot_SingleSlotUnderContention(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	require.NoError(t, s.RegisterNode(ctx, domain.Node{
		Service: "sync", Address: "phx1", Available: 1, Capacity: 1,
	}))

	const workers = 32
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.ClaimSlot(ctx, "sync", "phx1")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, domain.ErrClaimConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(workers-1), conflicts.Load())

	n, err := s.GetNode(ctx, "sync", "phx1")
	require.NoError(t, err)
	assert.Equal(t, 1, n.CurrentLoad)
	assert.Equal(t, 0, n.Available)
}

func TestClaimSlot_WrongService(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	require.NoError(t, s.RegisterNode(ctx, domain.Node{
		Service: "sync", Address: "phx1", Available: 5, Capacity: 5,
	}))

	err := s.ClaimSlot(ctx, "queuey", "phx1")
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}

func TestClaimSlot_BackoffRespected(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	require.NoError(t, s.RegisterNode(ctx, domain.Node{
		Service: "sync", Address: "phx1", Available: 5, Capacity: 5,
		Backoff: now.Add(time.Hour),
	}))

	assert.ErrorIs(t, s.ClaimSlot(ctx, "sync", "phx1"), domain.ErrClaimConflict)

	nodes, err := s.ListEligibleNodes(ctx, "sync")
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestRegisterNode_KeepsCurrentLoad(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	require.NoError(t, s.RegisterNode(ctx, domain.Node{
		Service: "sync", Address: "phx1", Available: 10, Capacity: 10,
	}))
	require.NoError(t, s.ClaimSlot(ctx, "sync", "phx1"))

	require.NoError(t, s.RegisterNode(ctx, domain.Node{
		Service: "sync", Address: "phx1", Available: 20, Capacity: 20, CurrentLoad: 0,
	}))

	n, err := s.GetNode(ctx, "sync", "phx1")
	require.NoError(t, err)
	assert.Equal(t, 1, n.CurrentLoad)
	assert.Equal(t, 20, n.Capacity)
	assert.Equal(t, 20, n.Available)
}

func TestCreateAssignment_Duplicate(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	uid, err := s.CreateAssignment(ctx, "tarek@mozilla.com", "sync", "phx12", domain.TosUnsigned)
	require.NoError(t, err)
	assert.Equal(t, int64(1), uid)

	_, err = s.CreateAssignment(ctx, "tarek@mozilla.com", "sync", "phx13", domain.TosUnsigned)
	assert.ErrorIs(t, err, domain.ErrDuplicateAssignment)

	a, err := s.LookupAssignment(ctx, "tarek@mozilla.com", "sync")
	require.NoError(t, err)
	assert.Equal(t, "phx12", a.Node)
	assert.Equal(t, int64(1), a.UID)
}

func TestSetTosFlag(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	for _, email := range []string{"a@x", "b@x"} {
		_, err := s.CreateAssignment(ctx, email, "sync", "phx1", domain.TosUnsigned)
		require.NoError(t, err)
	}
	_, err := s.CreateAssignment(ctx, "a@x", "queuey", "q1", domain.TosUnsigned)
	require.NoError(t, err)

	require.NoError(t, s.SetTosFlag(ctx, "sync", domain.TosSigned, "a@x"))
	a, _ := s.LookupAssignment(ctx, "a@x", "sync")
	b, _ := s.LookupAssignment(ctx, "b@x", "sync")
	assert.Equal(t, domain.TosSigned, a.Tos)
	assert.Equal(t, domain.TosUnsigned, b.Tos)

	require.NoError(t, s.SetTosFlag(ctx, "sync", domain.TosSigned, ""))
	b, _ = s.LookupAssignment(ctx, "b@x", "sync")
	q, _ := s.LookupAssignment(ctx, "a@x", "queuey")
	assert.Equal(t, domain.TosSigned, b.Tos)
	assert.Equal(t, domain.TosUnsigned, q.Tos)

	// unknown user is ignored
	require.NoError(t, s.SetTosFlag(ctx, "sync", domain.TosSigned, "ghost@x"))
	_, err = s.LookupAssignment(ctx, "ghost@x", "sync")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMetadata(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	require.NoError(t, s.SetMetadata(ctx, "sync", "x", "1"))
	require.NoError(t, s.UpdateMetadata(ctx, "sync", "x", "2"))

	v, err := s.GetMetadata(ctx, "sync", "x")
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	assert.ErrorIs(t, s.SetMetadata(ctx, "sync", "x", "3"), domain.ErrDuplicateMetadata)

	require.NoError(t, s.UpdateMetadata(ctx, "sync", "missing", "v"))
	_, err = s.GetMetadata(ctx, "sync", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.SetMetadata(ctx, "sync", "a", "first"))
	entries, err := s.ListMetadata(ctx, "sync")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Name)
	assert.Equal(t, "x", entries[1].Name)
}

func TestCancelledContextIsBackendError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	core, logs := observer.New(zapcore.ErrorLevel)
	s := New(logger.FromZap(zap.New(core)))

	_, err := s.LookupAssignment(ctx, "a@x", "sync")
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)

	entries := logs.FilterMessage("memory operation failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "lookup assignment", entries[0].ContextMap()["op"])
	assert.Equal(t, "sync", entries[0].ContextMap()["service"])
}

func TestListNodes_IncludesIneligible(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	require.NoError(t, s.RegisterNode(ctx, domain.Node{Service: "sync", Address: "up", Available: 1, Capacity: 1}))
	require.NoError(t, s.RegisterNode(ctx, domain.Node{Service: "sync", Address: "down", Available: 1, Capacity: 1, Downed: true}))

	all, err := s.ListNodes(ctx, "sync")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "up", all[0].Address)
	assert.Equal(t, "down", all[1].Address)

	eligible, err := s.ListEligibleNodes(ctx, "sync")
	require.NoError(t, err)
	assert.Len(t, eligible, 1)
}
