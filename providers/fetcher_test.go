package providers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitrecap/backend/model"
)

type stubFetcher struct {
	Fetcher

	prs       []model.ActivityEntry
	commits   []model.ActivityEntry
	issues    []model.ActivityEntry
	prErr     error
	commitErr error
	issueErr  error
}

func (s *stubFetcher) FetchPullRequests(context.Context) ([]model.ActivityEntry, error) {
	return s.prs, s.prErr
}

func (s *stubFetcher) FetchCommits(context.Context) ([]model.ActivityEntry, error) {
	return s.commits, s.commitErr
}

func (s *stubFetcher) FetchIssues(context.Context) ([]model.ActivityEntry, error) {
	return s.issues, s.issueErr
}

func entryAt(kind model.EntryKind, repo, sha string, ts time.Time) model.ActivityEntry {
	return model.ActivityEntry{Kind: kind, Repo: repo, Message: "m", Timestamp: ts, SHA: sha}
}

func TestAuthoredMessagesPRCommitWinsOverStandalone(t *testing.T) {
	ts := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	f := &stubFetcher{
		prs: []model.ActivityEntry{
			entryAt(model.KindCommitFromPR, "repo", "abc123", ts),
		},
		commits: []model.ActivityEntry{
			entryAt(model.KindCommit, "repo", "abc123", ts),
		},
	}

	entries, err := AuthoredMessages(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.KindCommitFromPR, entries[0].Kind)
}

func TestAuthoredMessagesSortsAscending(t *testing.T) {
	base := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	f := &stubFetcher{
		commits: []model.ActivityEntry{
			entryAt(model.KindCommit, "repo", "c3", base.Add(3*time.Hour)),
			entryAt(model.KindCommit, "repo", "c1", base.Add(1*time.Hour)),
			entryAt(model.KindCommit, "repo", "c2", base.Add(2*time.Hour)),
		},
	}

	entries, err := AuthoredMessages(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].Timestamp.Before(entries[i-1].Timestamp))
	}
	assert.Equal(t, "c1", entries[0].SHA)
}

func TestAuthoredMessagesDedupsNonCommitsByKindRepoTimestamp(t *testing.T) {
	ts := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	pr := model.ActivityEntry{Kind: model.KindPullRequest, Repo: "repo", Message: "pr", Timestamp: ts, PRNumber: 7}
	f := &stubFetcher{
		prs: []model.ActivityEntry{pr, pr},
		issues: []model.ActivityEntry{
			{Kind: model.KindIssue, Repo: "repo", Message: "i", Timestamp: ts},
			{Kind: model.KindIssue, Repo: "other", Message: "i", Timestamp: ts},
		},
	}

	entries, err := AuthoredMessages(context.Background(), f)
	require.NoError(t, err)
	// One PR survives the duplicate; the issues differ by repo and both stay.
	assert.Len(t, entries, 3)
}

func TestAuthoredMessagesIssueFailureDegrades(t *testing.T) {
	ts := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	f := &stubFetcher{
		commits:  []model.ActivityEntry{entryAt(model.KindCommit, "repo", "c1", ts)},
		issueErr: fmt.Errorf("issue endpoint down"),
	}

	entries, err := AuthoredMessages(context.Background(), f)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAuthoredMessagesCommitFailureIsFatal(t *testing.T) {
	f := &stubFetcher{commitErr: fmt.Errorf("boom")}

	_, err := AuthoredMessages(context.Background(), f)
	assert.Error(t, err)
}

func TestAuthoredMessagesNormalizesToUTC(t *testing.T) {
	zone := time.FixedZone("CET", 3600)
	f := &stubFetcher{
		commits: []model.ActivityEntry{
			entryAt(model.KindCommit, "repo", "c1", time.Date(2025, 3, 14, 10, 0, 0, 0, zone)),
		},
	}

	entries, err := AuthoredMessages(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, time.UTC, entries[0].Timestamp.Location())
	assert.Equal(t, 9, entries[0].Timestamp.Hour())
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New(context.Background(), Kind("Bitbucket"), Options{})
	assert.Error(t, err)
}
