package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNodeEligible(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name string
		node Node
		want bool
	}{
		{
			name: "free slots and spare capacity",
			node: Node{Available: 5, CurrentLoad: 1, Capacity: 10},
			want: true,
		},
		{
			name: "no available slots",
			node: Node{Available: 0, CurrentLoad: 1, Capacity: 10},
			want: false,
		},
		{
			name: "load at capacity",
			node: Node{Available: 5, CurrentLoad: 10, Capacity: 10},
			want: false,
		},
		{
			name: "downed",
			node: Node{Available: 5, CurrentLoad: 1, Capacity: 10, Downed: true},
			want: false,
		},
		{
			name: "backoff in the future",
			node: Node{Available: 5, CurrentLoad: 1, Capacity: 10, Backoff: now.Add(time.Minute)},
			want: false,
		},
		{
			name: "backoff expired",
			node: Node{Available: 5, CurrentLoad: 1, Capacity: 10, Backoff: now.Add(-time.Minute)},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.node.Eligible(now); got != tt.want {
				t.Errorf("Eligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRankNodes(t *testing.T) {
	now := time.Now()
	nodes := []Node{
		{Address: "b", Available: 2, CurrentLoad: 8, Capacity: 10},
		{Address: "full", Available: 1, CurrentLoad: 10, Capacity: 10},
		{Address: "a", Available: 8, CurrentLoad: 2, Capacity: 10},
		{Address: "c", Available: 50, CurrentLoad: 50, Capacity: 100},
	}

	ranked := RankNodes(nodes, now)
	if len(ranked) != 3 {
		t.Fatalf("expected 3 eligible nodes, got %d", len(ranked))
	}

	want := []string{"a", "c", "b"}
	for i, n := range ranked {
		if n.Address != want[i] {
			t.Errorf("rank %d = %s, want %s", i, n.Address, want[i])
		}
	}
}

func TestLeastLoaded_NoneEligible(t *testing.T) {
	nodes := []Node{
		{Address: "down", Available: 1, Capacity: 1, Downed: true},
		{Address: "full", Available: 1, CurrentLoad: 1, Capacity: 1},
	}

	if _, ok := LeastLoaded(nodes, time.Now()); ok {
		t.Error("LeastLoaded() should find no node")
	}
}

func TestBackoffUnixRoundTrip(t *testing.T) {
	n := Node{}
	if n.BackoffUnix() != 0 {
		t.Errorf("zero backoff should encode as 0, got %d", n.BackoffUnix())
	}
	if !BackoffFromUnix(0).IsZero() {
		t.Error("0 should decode as zero time")
	}

	at := time.Unix(1_700_000_123, 0)
	n.Backoff = at
	if !BackoffFromUnix(n.BackoffUnix()).Equal(at) {
		t.Errorf("backoff round trip mismatch")
	}
}

func TestParseTosState(t *testing.T) {
	tests := []struct {
		in      string
		want    TosState
		wantErr bool
	}{
		{in: "signed", want: TosSigned},
		{in: "1", want: TosSigned},
		{in: "unsigned", want: TosUnsigned},
		{in: "0", want: TosUnsigned},
		{in: "maybe", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTosState(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTosState(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseTosState(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestBackendErrorHidesCause(t *testing.T) {
	raw := errors.New("dial tcp 127.0.0.1:6379: connection refused")
	err := NewBackendError("claim", raw)

	if !errors.Is(err, ErrBackendUnavailable) {
		t.Error("BackendError should match ErrBackendUnavailable")
	}
	if errors.Is(err, raw) {
		t.Error("BackendError must not expose the driver error")
	}
}
