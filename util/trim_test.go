package util

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitrecap/backend/model"
)

func makeEntries(messages ...string) []model.ActivityEntry {
	base := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	entries := make([]model.ActivityEntry, len(messages))
	for i, m := range messages {
		entries[i] = model.ActivityEntry{
			Kind:      model.KindCommit,
			Repo:      "repo",
			Message:   m,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}
	}
	return entries
}

// costBy charges a fixed token cost per entry, keyed by a marker in the
// serialized form.
func costBy(costs map[string]int) func(string) int {
	return func(s string) int {
		for marker, cost := range costs {
			if strings.Contains(s, marker) {
				return cost
			}
		}
		return 0
	}
}

func TestTrimEntriesUnderBudgetKeepsAll(t *testing.T) {
	entries := makeEntries("one", "two", "three")
	counter := costBy(map[string]int{"one": 100, "two": 100, "three": 100})

	kept, removed := TrimEntries(entries, counter, 16000)
	assert.Len(t, kept, 3)
	assert.Zero(t, removed)
}

func TestTrimEntriesEvictsOldestFirst(t *testing.T) {
	entries := makeEntries("one", "two", "huge")
	counter := costBy(map[string]int{"one": 1000, "two": 1000, "huge": 15500})

	kept, removed := TrimEntries(entries, counter, 16000)
	require.Len(t, kept, 1)
	assert.Equal(t, 2, removed)
	assert.Equal(t, "huge", kept[0].Message)
}

func TestTrimEntriesNeverEvictsLastEntry(t *testing.T) {
	entries := makeEntries("giant")
	counter := costBy(map[string]int{"giant": 50000})

	kept, removed := TrimEntries(entries, counter, 16000)
	require.Len(t, kept, 1)
	assert.Zero(t, removed)
}

func TestTrimEntriesEmptyInput(t *testing.T) {
	kept, removed := TrimEntries(nil, func(string) int { return 1 }, 10)
	assert.Empty(t, kept)
	assert.Zero(t, removed)
}
