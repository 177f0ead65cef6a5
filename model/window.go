package model

import "time"

// FetchWindow holds the filters a fetcher applies when walking provider
// activity. The zero value means no filtering. A window is mutable between
// calls but is not safe for concurrent use; callers serialize access per
// fetcher instance.
type FetchWindow struct {
	StartDate  *time.Time
	EndDate    *time.Time
	RepoFilter []string
	Authors    []string
}

// InWindow reports whether ts falls inside the configured date range.
// This is the exact range filter applied to every item.
func (w *FetchWindow) InWindow(ts time.Time) bool {
	if w.StartDate != nil && ts.Before(*w.StartDate) {
		return false
	}
	if w.EndDate != nil && ts.After(*w.EndDate) {
		return false
	}
	return true
}

// StopFetching reports whether pagination can halt. Providers walk their
// feeds newest-first, so once an item's date falls below the start of the
// window no older page can contribute. This is an optimization over InWindow,
// never a substitute for it.
func (w *FetchWindow) StopFetching(ts time.Time) bool {
	return w.StartDate != nil && ts.Before(*w.StartDate)
}

// WantsRepo reports whether the repository passes the repo filter.
// An empty filter admits every repository.
func (w *FetchWindow) WantsRepo(name string) bool {
	if len(w.RepoFilter) == 0 {
		return true
	}
	for _, r := range w.RepoFilter {
		if r == name {
			return true
		}
	}
	return false
}
