package providers

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"

	"github.com/gitrecap/backend/model"
)

// Timeouts for working-copy operations. Cloning an unknown remote is slow;
// walking an already cloned copy is not.
const (
	cloneTimeout  = 300 * time.Second
	gitLogTimeout = 120 * time.Second
)

var repoNamePattern = regexp.MustCompile(`([^/]+?)(?:\.git)?/?$`)

// URLClone is the credential-free fetcher variant. It clones a public
// repository into a temporary directory and reads history from the working
// copy. Only the commit surface is available.
type URLClone struct {
	url      string
	repoName string
	dir      string
	window   model.FetchWindow
}

// NewURLClone clones the repository at opts.URL. Any failure to normalize,
// clone or read the remote is a RepositoryUnavailableError and leaves no
// temporary directory behind.
func NewURLClone(ctx context.Context, opts Options) (*URLClone, error) {
	cloneURL, repoName, err := normalizeCloneURL(opts.URL)
	if err != nil {
		return nil, &model.RepositoryUnavailableError{Target: opts.URL, Err: err}
	}

	dir, err := os.MkdirTemp("", "gitrecap_*")
	if err != nil {
		return nil, &model.RepositoryUnavailableError{Target: cloneURL, Err: err}
	}

	cloneCtx, cancel := context.WithTimeout(ctx, cloneTimeout)
	defer cancel()

	repo, err := git.PlainCloneContext(cloneCtx, dir, false, &git.CloneOptions{
		URL:        cloneURL,
		NoCheckout: true,
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, &model.RepositoryUnavailableError{Target: cloneURL, Err: err}
	}

	// An empty repository clones fine but has nothing to recap.
	iter, err := repo.Log(&git.LogOptions{All: true})
	if err == nil {
		_, err = iter.Next()
	}
	if err != nil {
		os.RemoveAll(dir)
		return nil, &model.RepositoryUnavailableError{
			Target: cloneURL,
			Err:    fmt.Errorf("repository has no readable history: %w", err),
		}
	}

	return &URLClone{url: cloneURL, repoName: repoName, dir: dir, window: opts.Window}, nil
}

// normalizeCloneURL fills in the pieces users commonly leave off a pasted
// URL: the scheme and the .git suffix. A trailing slash is dropped so the
// suffix lands on the repository name.
func normalizeCloneURL(raw string) (cloneURL, repoName string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", fmt.Errorf("empty clone URL")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	raw = strings.TrimSuffix(raw, "/")
	m := repoNamePattern.FindStringSubmatch(raw)
	if m == nil || m[1] == "" {
		return "", "", fmt.Errorf("cannot extract repository name from %q", raw)
	}
	// Azure DevOps style URLs carry _git in the path and must not get a
	// .git suffix appended.
	if !strings.HasSuffix(raw, ".git") && !strings.Contains(raw, "/_git/") {
		raw += ".git"
	}
	return raw, m[1], nil
}

func (f *URLClone) Kind() Kind { return KindURLClone }

func (f *URLClone) Supports(c Capability) bool {
	switch c {
	case CapCommits, CapAuthors:
		return true
	default:
		return false
	}
}

func (f *URLClone) Window() *model.FetchWindow { return &f.window }
func (f *URLClone) SetWindow(w model.FetchWindow) { f.window = w }

// Close removes the working copy. Safe to call more than once.
func (f *URLClone) Close() error {
	if f.dir == "" {
		return nil
	}
	err := os.RemoveAll(f.dir)
	f.dir = ""
	return err
}

func (f *URLClone) RepoNames(context.Context) ([]string, error) {
	return []string{f.repoName}, nil
}

func (f *URLClone) gitLog(ctx context.Context, extraArgs ...string) (string, error) {
	if f.dir == "" {
		return "", fmt.Errorf("working copy already removed")
	}
	logCtx, cancel := context.WithTimeout(ctx, gitLogTimeout)
	defer cancel()

	args := append([]string{"-C", f.dir, "log", "--all"}, extraArgs...)
	out, err := exec.CommandContext(logCtx, "git", args...).Output()
	if err != nil {
		return "", fmt.Errorf("git log: %w", err)
	}
	return string(out), nil
}

// FetchCommits reads history across all branches of the working copy.
func (f *URLClone) FetchCommits(ctx context.Context) ([]model.ActivityEntry, error) {
	args := []string{"--pretty=format:%H|%an|%ad|%s", "--date=iso-strict"}
	if f.window.StartDate != nil {
		args = append(args, "--since="+f.window.StartDate.Format(time.RFC3339))
	}
	if f.window.EndDate != nil {
		args = append(args, "--until="+f.window.EndDate.Format(time.RFC3339))
	}
	for _, author := range f.window.Authors {
		args = append(args, "--author="+author)
	}

	out, err := f.gitLog(ctx, args...)
	if err != nil {
		return nil, err
	}
	return f.parseLog(out), nil
}

// parseLog turns `%H|%an|%ad|%s` lines into entries. Malformed lines are
// skipped, never fatal; a subject may itself contain pipes so the split is
// capped at four fields.
func (f *URLClone) parseLog(out string) []model.ActivityEntry {
	var entries []model.ActivityEntry
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 4)
		if len(parts) != 4 {
			logger.Sugar().Debugf("skipping malformed log line: %q", line)
			continue
		}
		ts, err := time.Parse(time.RFC3339, parts[2])
		if err != nil {
			logger.Sugar().Debugf("skipping log line with bad date: %q", line)
			continue
		}
		if !f.window.InWindow(ts) {
			continue
		}
		entries = append(entries, model.ActivityEntry{
			Kind:      model.KindCommit,
			Repo:      f.repoName,
			Message:   parts[3],
			Timestamp: ts,
			SHA:       parts[0],
			Author:    parts[1],
		})
	}
	return entries
}

// A clone URL carries no forge metadata, so pull requests and issues are
// simply absent rather than an error.
func (f *URLClone) FetchPullRequests(context.Context) ([]model.ActivityEntry, error) {
	return nil, nil
}

func (f *URLClone) FetchIssues(context.Context) ([]model.ActivityEntry, error) {
	return nil, nil
}

func (f *URLClone) FetchReleases(context.Context, string) ([]model.Release, error) {
	return nil, model.ErrNotSupported
}

func (f *URLClone) ListBranches(context.Context, string) ([]string, error) {
	return nil, model.ErrNotSupported
}

func (f *URLClone) ValidTargetBranches(context.Context, string, string) ([]string, error) {
	return nil, model.ErrNotSupported
}

func (f *URLClone) CreatePullRequest(context.Context, model.PullRequestSpec) (*model.PullRequestInfo, error) {
	return nil, model.ErrNotSupported
}

// ListAuthors collects distinct authors and committers from the full history.
func (f *URLClone) ListAuthors(ctx context.Context, _ []string) ([]model.Author, error) {
	seen := make(map[string]model.Author)
	for _, format := range []string{"--format=%an|%ae", "--format=%cn|%ce"} {
		out, err := f.gitLog(ctx, format)
		if err != nil {
			return nil, err
		}
		for _, line := range strings.Split(out, "\n") {
			parts := strings.SplitN(strings.TrimSpace(line), "|", 2)
			if len(parts) != 2 || parts[0] == "" {
				continue
			}
			key := strings.ToLower(parts[0]) + "|" + strings.ToLower(parts[1])
			if _, ok := seen[key]; !ok {
				seen[key] = model.Author{Name: parts[0], Email: parts[1]}
			}
		}
	}

	authors := make([]model.Author, 0, len(seen))
	for _, a := range seen {
		authors = append(authors, a)
	}
	sort.Slice(authors, func(i, j int) bool {
		return authors[i].Name < authors[j].Name
	})
	return authors, nil
}

func (f *URLClone) CurrentAuthor(context.Context) (string, error) {
	return "", model.ErrNotSupported
}
