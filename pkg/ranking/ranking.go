// Package ranking counts listings per agent and keeps the largest.
package ranking

import (
	"sort"

	"github.com/Sternrassler/funda-top-agents/pkg/listing"
)

// RankedAgent is an agent name with its number of listings.
type RankedAgent struct {
	Agent string `json:"agent" yaml:"agent"`
	Count int    `json:"count" yaml:"count"`
}

// TopN groups listings by agent name and returns the n agents with the most
// listings, largest first. Agents with equal counts keep the order in which
// they were first seen. An empty agent name is a group of its own.
// n <= 0 returns an empty result.
func TopN(listings []listing.Listing, n int) []RankedAgent {
	if n <= 0 || len(listings) == 0 {
		return []RankedAgent{}
	}

	index := make(map[string]int)
	var groups []RankedAgent
	for _, l := range listings {
		i, ok := index[l.AgentName]
		if !ok {
			i = len(groups)
			index[l.AgentName] = i
			groups = append(groups, RankedAgent{Agent: l.AgentName})
		}
		groups[i].Count++
	}

	// Stable keeps first-seen order among equal counts.
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Count > groups[j].Count
	})

	if len(groups) > n {
		groups = groups[:n]
	}
	return groups
}

// Total returns the sum of counts in ranked.
func Total(ranked []RankedAgent) int {
	total := 0
	for _, r := range ranked {
		total += r.Count
	}
	return total
}
