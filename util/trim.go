// Package util holds the pure helpers of the backend: token-budget trimming
// and the plain-text rendering of activity timelines.
package util

import (
	"encoding/json"

	"github.com/gitrecap/backend/model"
)

// TrimEntries evicts entries from the front of the timeline until the total
// estimated token cost fits maxTokens, and reports how many were removed.
// Entries arrive oldest-first, so eviction drops the oldest history first.
// The newest entry is never evicted, even when it alone exceeds the budget.
//
// Cost accounting uses the compact JSON encoding of each entry, the same
// shape the entries take on the wire.
func TrimEntries(entries []model.ActivityEntry, counter func(string) int, maxTokens int) ([]model.ActivityEntry, int) {
	if len(entries) == 0 {
		return entries, 0
	}

	costs := make([]int, len(entries))
	total := 0
	for i, e := range entries {
		costs[i] = counter(serializeEntry(e))
		total += costs[i]
	}

	removed := 0
	for total > maxTokens && len(entries) > 1 {
		total -= costs[removed]
		removed++
		entries = entries[1:]
	}
	return entries, removed
}

func serializeEntry(e model.ActivityEntry) string {
	raw, err := json.Marshal(e)
	if err != nil {
		// Marshal of this struct cannot fail; fall back to the message so
		// the entry still costs something.
		return e.Message
	}
	return string(raw)
}
