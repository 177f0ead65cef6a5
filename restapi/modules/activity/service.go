package activity

import (
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/gitrecap/backend/model"
)

// SplitReleases picks the most recently published release as current and
// returns up to n predecessors ordered newest-first by semantic version tag.
// Tags that fail to parse as semver order after parseable ones, by publish
// date.
func SplitReleases(releases []model.Release, n int) (*model.Release, []model.Release) {
	if len(releases) == 0 {
		return nil, nil
	}

	sort.SliceStable(releases, func(i, j int) bool {
		return releases[i].PublishedAt.After(releases[j].PublishedAt)
	})
	current := releases[0]
	previous := append([]model.Release(nil), releases[1:]...)

	sort.SliceStable(previous, func(i, j int) bool {
		vi, erri := semver.NewVersion(previous[i].TagName)
		vj, errj := semver.NewVersion(previous[j].TagName)
		switch {
		case erri == nil && errj == nil:
			return vi.GreaterThan(vj)
		case erri == nil:
			return true
		case errj == nil:
			return false
		default:
			return previous[i].PublishedAt.After(previous[j].PublishedAt)
		}
	})

	if len(previous) > n {
		previous = previous[:n]
	}
	return &current, previous
}
