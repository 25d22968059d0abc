package domain

import "time"

// Node is a backend processing host registered under one service.
//
// A Node is uniquely identified by (Service, Address).
type Node struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	// Service is the service this node belongs to.
	// Example: sync
	Service string

	// Address is the node address handed out to users.
	// Example: https://phx12.example.com
	Address string

	// ─────────────────────────────
	// Load & capacity
	// (available and current_load are mutated on every claim)
	// ─────────────────────────────

	// Available is the number of free slots the reporter currently allows.
	Available int

	// CurrentLoad is the number of users assigned to this node.
	CurrentLoad int

	// Capacity is the maximum number of users this node may carry.
	Capacity int

	// ─────────────────────────────
	// Health
	// ─────────────────────────────

	// Downed removes the node from allocation entirely.
	Downed bool

	// Backoff keeps the node out of allocation until it passes.
	// The zero value means no backoff.
	Backoff time.Time
}

// Eligible reports whether the node can take a new assignment at now.
func (n Node) Eligible(now time.Time) bool {
	if n.Available <= 0 || n.CurrentLoad >= n.Capacity || n.Downed {
		return false
	}
	return n.Backoff.IsZero() || !n.Backoff.After(now)
}

// LoadRatio is current_load / capacity. Nodes without capacity rank last.
func (n Node) LoadRatio() float64 {
	if n.Capacity <= 0 {
		return 1
	}
	return float64(n.CurrentLoad) / float64(n.Capacity)
}

// BackoffUnix returns the backoff as unix seconds, 0 when unset.
func (n Node) BackoffUnix() int64 {
	if n.Backoff.IsZero() {
		return 0
	}
	return n.Backoff.Unix()
}

// BackoffFromUnix is the inverse of BackoffUnix.
func BackoffFromUnix(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
