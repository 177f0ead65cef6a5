// Package providers implements the fetcher contract over the supported git
// hosting providers and the aggregation that merges a fetcher's raw results
// into one chronological activity timeline.
package providers

import (
	"context"
	"fmt"
	"sort"

	"github.com/gitrecap/backend/internal/logging"
	"github.com/gitrecap/backend/model"
)

var logger = logging.InitLogger()

// Kind names a provider variant.
type Kind string

// Provider kinds accepted when binding a fetcher to a session.
const (
	KindGitHub      Kind = "GitHub"
	KindGitLab      Kind = "GitLab"
	KindAzureDevOps Kind = "Azure Devops"
	KindURLClone    Kind = "URL"
)

// Capability identifies one operation of the fetcher contract. Callers can
// query Supports before invoking an operation instead of probing for
// ErrNotSupported.
type Capability int

// Capabilities of the fetcher contract.
const (
	CapCommits Capability = iota
	CapPullRequests
	CapIssues
	CapReleases
	CapBranches
	CapTargetBranches
	CapCreatePullRequest
	CapAuthors
	CapCurrentAuthor
)

// Fetcher retrieves and normalizes authored activity for one credential or
// URL. Operations a variant lacks return model.ErrNotSupported. A fetcher is
// not safe for concurrent use; callers serialize access per instance.
type Fetcher interface {
	Kind() Kind
	Supports(Capability) bool

	// RepoNames lists the repositories reachable with the bound credential.
	RepoNames(ctx context.Context) ([]string, error)

	FetchCommits(ctx context.Context) ([]model.ActivityEntry, error)
	FetchPullRequests(ctx context.Context) ([]model.ActivityEntry, error)
	FetchIssues(ctx context.Context) ([]model.ActivityEntry, error)

	FetchReleases(ctx context.Context, repo string) ([]model.Release, error)
	ListBranches(ctx context.Context, repo string) ([]string, error)
	ValidTargetBranches(ctx context.Context, repo, sourceBranch string) ([]string, error)
	CreatePullRequest(ctx context.Context, spec model.PullRequestSpec) (*model.PullRequestInfo, error)

	ListAuthors(ctx context.Context, repos []string) ([]model.Author, error)
	CurrentAuthor(ctx context.Context) (string, error)

	// Window returns the mutable fetch window held by this instance.
	Window() *model.FetchWindow
	SetWindow(model.FetchWindow)

	// Close releases provider resources (for URL clones, the working copy).
	// It must be safe to call more than once.
	Close() error
}

// Options carries everything needed to construct a fetcher.
type Options struct {
	// PAT is the personal access token for SDK-backed providers.
	PAT string
	// URL is the clone URL (URLClone), the organization URL (Azure DevOps)
	// or an alternate instance URL (GitLab).
	URL    string
	Window model.FetchWindow
}

// New constructs the fetcher variant named by kind.
func New(ctx context.Context, kind Kind, opts Options) (Fetcher, error) {
	switch kind {
	case KindGitHub:
		return NewGitHub(ctx, opts)
	case KindGitLab:
		return NewGitLab(ctx, opts)
	case KindAzureDevOps:
		return NewAzureDevOps(ctx, opts)
	case KindURLClone:
		return NewURLClone(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown provider kind %q", kind)
	}
}

// AuthoredMessages merges one fetcher's raw results into a single timeline:
// fetch pull requests, commits and issues; concatenate pull-requests first,
// then commits, then issues; deduplicate; sort ascending by timestamp.
//
// Commit-kind entries dedupe by SHA keeping the first occurrence, so a commit
// that surfaces both inside a pull request and as a standalone commit keeps
// its pull-request-tagged variant. Non-commit entries dedupe by
// (kind, repo, timestamp). A failed issue fetch degrades to an empty list so
// one flaky provider surface cannot block the others.
func AuthoredMessages(ctx context.Context, f Fetcher) ([]model.ActivityEntry, error) {
	prEntries, err := f.FetchPullRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching pull requests: %w", err)
	}
	commitEntries, err := f.FetchCommits(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching commits: %w", err)
	}
	issueEntries, err := f.FetchIssues(ctx)
	if err != nil {
		logger.Sugar().Warnf("issue fetch failed, continuing without issues: %v", err)
		issueEntries = nil
	}

	all := make([]model.ActivityEntry, 0, len(prEntries)+len(commitEntries)+len(issueEntries))
	all = append(all, prEntries...)
	all = append(all, commitEntries...)
	all = append(all, issueEntries...)

	seenSHA := make(map[string]struct{})
	seenKey := make(map[string]struct{})
	unique := all[:0]
	for _, entry := range all {
		if entry.Kind.IsCommitKind() {
			if _, dup := seenSHA[entry.SHA]; dup {
				continue
			}
			seenSHA[entry.SHA] = struct{}{}
		} else {
			key := fmt.Sprintf("%s_%s_%d", entry.Kind, entry.Repo, entry.Timestamp.UnixNano())
			if _, dup := seenKey[key]; dup {
				continue
			}
			seenKey[key] = struct{}{}
		}
		unique = append(unique, entry)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Timestamp.Before(unique[j].Timestamp)
	})

	// Canonical textual form: UTC, so the RFC3339 encoding is stable across
	// providers that report zoned timestamps.
	for i := range unique {
		unique[i].Timestamp = unique[i].Timestamp.UTC()
	}
	return unique, nil
}
