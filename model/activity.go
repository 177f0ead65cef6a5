// Package model defines the core data types shared across the git-recap backend:
// activity entries, releases, fetch windows, and the error taxonomy.
package model

import "time"

// EntryKind identifies the kind of authored activity an entry represents.
type EntryKind string

// Entry kinds. CommitFromPR takes precedence over Commit when the same SHA
// appears in both forms during aggregation.
const (
	KindCommit       EntryKind = "commit"
	KindCommitFromPR EntryKind = "commit_from_pr"
	KindPullRequest  EntryKind = "pull_request"
	KindIssue        EntryKind = "issue"
)

// IsCommitKind reports whether the kind carries a commit SHA.
func (k EntryKind) IsCommitKind() bool {
	return k == KindCommit || k == KindCommitFromPR
}

// ActivityEntry is one normalized unit of authored history. Timestamps are
// normalized to UTC during aggregation so their textual form is canonical.
type ActivityEntry struct {
	Kind      EntryKind `json:"type"`
	Repo      string    `json:"repo"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	SHA       string    `json:"sha,omitempty"`
	PRNumber  int       `json:"pr_number,omitempty"`
	PRTitle   string    `json:"pr_title,omitempty"`
	Author    string    `json:"author,omitempty"`
}

// Release represents a published release for providers that support the
// releases capability.
type Release struct {
	TagName     string         `json:"tag_name"`
	Name        string         `json:"name"`
	Repo        string         `json:"repo"`
	Author      string         `json:"author,omitempty"`
	PublishedAt time.Time      `json:"published_at"`
	CreatedAt   time.Time      `json:"created_at"`
	Draft       bool           `json:"draft"`
	Prerelease  bool           `json:"prerelease"`
	Body        string         `json:"body,omitempty"`
	Assets      []ReleaseAsset `json:"assets,omitempty"`
}

// ReleaseAsset is a downloadable artifact attached to a release.
type ReleaseAsset struct {
	Name        string `json:"name"`
	Size        int    `json:"size"`
	DownloadURL string `json:"download_url"`
	ContentType string `json:"content_type,omitempty"`
}

// Author identifies a commit author discovered in a repository.
type Author struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// PullRequestSpec describes a pull request to be created through a fetcher.
type PullRequestSpec struct {
	Repo       string   `json:"repo"`
	HeadBranch string   `json:"head_branch"`
	BaseBranch string   `json:"base_branch"`
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	Draft      bool     `json:"draft"`
	Reviewers  []string `json:"reviewers,omitempty"`
	Assignees  []string `json:"assignees,omitempty"`
	Labels     []string `json:"labels,omitempty"`
}

// PullRequestInfo is the result of creating a pull request.
type PullRequestInfo struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
	State  string `json:"state,omitempty"`
}
