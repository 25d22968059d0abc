package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/nodekeeper/internal/domain"
	"github.com/MrSnakeDoc/nodekeeper/internal/logger"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, logger.New("error", false)), mr
}

func TestRegisterAndListEligibleNodes(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	nodes := []domain.Node{
		{Service: "sync", Address: "a", Available: 8, CurrentLoad: 2, Capacity: 10},
		{Service: "sync", Address: "full", Available: 1, CurrentLoad: 10, Capacity: 10},
		{Service: "sync", Address: "down", Available: 5, Capacity: 10, Downed: true},
		{Service: "queuey", Address: "q", Available: 5, Capacity: 5},
	}
	for _, n := range nodes {
		require.NoError(t, s.RegisterNode(ctx, n))
	}

	eligible, err := s.ListEligibleNodes(ctx, "sync")
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, "a", eligible[0].Address)
	assert.Equal(t, 2, eligible[0].CurrentLoad)

	none, err := s.ListEligibleNodes(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRegisterNode_KeepsCurrentLoad(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.RegisterNode(ctx, domain.Node{Service: "sync", Address: "a", Available: 10, Capacity: 10}))
	require.NoError(t, s.ClaimSlot(ctx, "sync", "a"))
	require.NoError(t, s.RegisterNode(ctx, domain.Node{
		Service: "sync", Address: "a", Available: 50, Capacity: 50, Backoff: time.Unix(1_700_000_000, 0),
	}))

	n, err := s.GetNode(ctx, "sync", "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n.CurrentLoad)
	assert.Equal(t, 50, n.Capacity)
	assert.Equal(t, 50, n.Available)
	assert.Equal(t, int64(1_700_000_000), n.BackoffUnix())
}

func TestClaimSlot(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.RegisterNode(ctx, domain.Node{Service: "sync", Address: "a", Available: 1, Capacity: 10}))

	require.NoError(t, s.ClaimSlot(ctx, "sync", "a"))
	assert.ErrorIs(t, s.ClaimSlot(ctx, "sync", "a"), domain.ErrClaimConflict)
	assert.ErrorIs(t, s.ClaimSlot(ctx, "queuey", "a"), domain.ErrNodeNotFound)

	n, err := s.GetNode(ctx, "sync", "a")
	require.NoError(t, err)
	assert.Equal(t, 0, n.Available)
	assert.Equal(t, 1, n.CurrentLoad)
}

func TestClaimSlot_Backoff(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	require.NoError(t, s.RegisterNode(ctx, domain.Node{
		Service: "sync", Address: "a", Available: 5, Capacity: 5, Backoff: now.Add(time.Minute),
	}))
	assert.ErrorIs(t, s.ClaimSlot(ctx, "sync", "a"), domain.ErrClaimConflict)

	now = now.Add(2 * time.Minute)
	assert.NoError(t, s.ClaimSlot(ctx, "sync", "a"))
}

func TestClaimSlot_ConcurrentSingleSlot(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.RegisterNode(ctx, domain.Node{Service: "sync", Address: "a", Available: 1, Capacity: 1}))

	const workers = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.ClaimSlot(ctx, "sync", "a"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	n, err := s.GetNode(ctx, "sync", "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n.CurrentLoad)
}

func TestAssignments(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.LookupAssignment(ctx, "tarek@mozilla.com", "sync")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	uid, err := s.CreateAssignment(ctx, "tarek@mozilla.com", "sync", "phx12", domain.TosUnsigned)
	require.NoError(t, err)
	assert.Equal(t, int64(1), uid)

	uid2, err := s.CreateAssignment(ctx, "alexis@mozilla.com", "sync", "phx12", domain.TosUnsigned)
	require.NoError(t, err)
	assert.Equal(t, int64(2), uid2)

	_, err = s.CreateAssignment(ctx, "tarek@mozilla.com", "sync", "phx13", domain.TosSigned)
	assert.ErrorIs(t, err, domain.ErrDuplicateAssignment)

	a, err := s.LookupAssignment(ctx, "tarek@mozilla.com", "sync")
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.UID)
	assert.Equal(t, "phx12", a.Node)
	assert.Equal(t, domain.TosUnsigned, a.Tos)
}

func TestSetTosFlag(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	for _, email := range []string{"a@x", "b@x"} {
		_, err := s.CreateAssignment(ctx, email, "sync", "n1", domain.TosUnsigned)
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

	require.NoError(t, s.SetTosFlag(ctx, "sync", domain.TosSigned, "ghost@x"))
	_, err = s.LookupAssignment(ctx, "ghost@x", "sync")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestKeysWithColons(t *testing.T) {
	assert.NotEqual(t, UserKey("x:y@z", "sync"), UserKey("y@z", "sync:x"))
	assert.NotEqual(t, NodeKey("sync", "a:b"), NodeKey("sync:a", "b"))
	assert.Equal(t, "nk:user:4:sync:u@x", UserKey("u@x", "sync"))
	assert.Equal(t, "nk:node:4:sync:https://phx12", NodeKey("sync", "https://phx12"))

	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.CreateAssignment(ctx, "x:y@z", "sync", "n1", domain.TosUnsigned)
	require.NoError(t, err)
	_, err = s.CreateAssignment(ctx, "y@z", "sync:x", "n2", domain.TosUnsigned)
	require.NoError(t, err, "distinct (email, service) pairs must not share a row")

	a, err := s.LookupAssignment(ctx, "y@z", "sync:x")
	require.NoError(t, err)
	assert.Equal(t, "n2", a.Node)

	require.NoError(t, s.RegisterNode(ctx, domain.Node{Service: "sync", Address: "a:b", Available: 1, Capacity: 1}))
	_, err = s.GetNode(ctx, "sync:a", "b")
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)

	// the bulk flag only reaches the users of its own service
	require.NoError(t, s.SetTosFlag(ctx, "sync", domain.TosSigned, ""))
	a, _ = s.LookupAssignment(ctx, "y@z", "sync:x")
	assert.Equal(t, domain.TosUnsigned, a.Tos)
}

func TestMetadata(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.SetMetadata(ctx, "sync", "x", "1"))
	require.NoError(t, s.UpdateMetadata(ctx, "sync", "x", "2"))

	v, err := s.GetMetadata(ctx, "sync", "x")
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	assert.ErrorIs(t, s.SetMetadata(ctx, "sync", "x", "3"), domain.ErrDuplicateMetadata)

	require.NoError(t, s.UpdateMetadata(ctx, "sync", "absent", "v"))
	_, err = s.GetMetadata(ctx, "sync", "absent")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.SetMetadata(ctx, "sync", domain.TermsOfServiceKey, "http://tos"))
	entries, err := s.ListMetadata(ctx, "sync")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.TermsOfServiceKey, entries[0].Name)
	assert.Equal(t, "x", entries[1].Name)
}

func TestPatterns(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.SavePattern(ctx, domain.ServicePattern{Service: "sync", Pattern: "{node}/1.1/{uid}"}))
	require.NoError(t, s.SavePattern(ctx, domain.ServicePattern{Service: "sync", Pattern: "{node}/1.1/{uid}"}))
	require.NoError(t, s.SavePattern(ctx, domain.ServicePattern{Service: "aitc", Pattern: "{node}/1.0/{uid}"}))

	patterns, err := s.ListPatterns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.ServicePattern{
		{Service: "aitc", Pattern: "{node}/1.0/{uid}"},
		{Service: "sync", Pattern: "{node}/1.1/{uid}"},
	}, patterns)
}

func TestBackendUnavailable(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)
	mr.Close()

	_, err := s.LookupAssignment(ctx, "a@x", "sync")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBackendUnavailable))

	assert.ErrorIs(t, s.ClaimSlot(ctx, "sync", "a"), domain.ErrBackendUnavailable)
	assert.ErrorIs(t, s.Ping(ctx), domain.ErrBackendUnavailable)
}
