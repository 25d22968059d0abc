package domain

import (
	"sort"
	"time"
)

// RankNodes returns the eligible nodes ordered by load ratio (ascending).
// Ties keep the storage order.
func RankNodes(nodes []Node, now time.Time) []Node {
	ranked := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if !n.Eligible(now) {
			continue
		}
		ranked = append(ranked, n)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].LoadRatio() < ranked[j].LoadRatio()
	})

	return ranked
}

// LeastLoaded returns the eligible node with the lowest load ratio.
func LeastLoaded(nodes []Node, now time.Time) (Node, bool) {
	ranked := RankNodes(nodes, now)
	if len(ranked) == 0 {
		return Node{}, false
	}
	return ranked[0], true
}
