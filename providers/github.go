package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v30/github"
	"github.com/samber/lo"
	"golang.org/x/oauth2"

	"github.com/gitrecap/backend/model"
)

// maxPages caps every paginated provider walk so a huge account cannot turn
// one activity request into thousands of API calls.
const maxPages = 10

const githubPageSize = 100

// GitHub is the fetcher variant backed by the GitHub REST API. It covers the
// full capability set.
type GitHub struct {
	client *github.Client
	login  string
	window model.FetchWindow

	repos []*github.Repository
}

// NewGitHub authenticates the token and resolves the current login. The login
// is appended to the author filter so a window without explicit authors still
// scopes to the credential owner.
func NewGitHub(ctx context.Context, opts Options) (*GitHub, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.PAT})
	client := github.NewClient(oauth2.NewClient(ctx, ts))

	user, _, err := client.Users.Get(ctx, "")
	if err != nil {
		return nil, &model.RepositoryUnavailableError{Target: "github", Err: err}
	}

	f := &GitHub{client: client, login: user.GetLogin(), window: opts.Window}
	if !lo.Contains(f.window.Authors, f.login) {
		f.window.Authors = append(f.window.Authors, f.login)
	}
	return f, nil
}

func (f *GitHub) Kind() Kind { return KindGitHub }

func (f *GitHub) Supports(Capability) bool { return true }

func (f *GitHub) Window() *model.FetchWindow { return &f.window }
func (f *GitHub) SetWindow(w model.FetchWindow) { f.window = w }

func (f *GitHub) Close() error { return nil }

// loadRepos lists the repositories visible to the credential once per
// fetcher and caches them; every fetch surface iterates the same set.
func (f *GitHub) loadRepos(ctx context.Context) ([]*github.Repository, error) {
	if f.repos != nil {
		return f.repos, nil
	}
	var all []*github.Repository
	opt := &github.RepositoryListOptions{
		ListOptions: github.ListOptions{PerPage: githubPageSize},
	}
	for page := 0; page < maxPages; page++ {
		var (
			repos []*github.Repository
			resp  *github.Response
		)
		err := withRetry(ctx, func() error {
			var err error
			repos, resp, err = f.client.Repositories.List(ctx, "", opt)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("listing repositories: %w", err)
		}
		all = append(all, repos...)
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	f.repos = all
	return all, nil
}

func (f *GitHub) RepoNames(ctx context.Context) ([]string, error) {
	repos, err := f.loadRepos(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(repos, func(r *github.Repository, _ int) string {
		return r.GetName()
	}), nil
}

// wantedRepos applies the repo filter to the cached repository list.
func (f *GitHub) wantedRepos(ctx context.Context) ([]*github.Repository, error) {
	repos, err := f.loadRepos(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Filter(repos, func(r *github.Repository, _ int) bool {
		return f.window.WantsRepo(r.GetName())
	}), nil
}

func (f *GitHub) authors() []string {
	if len(f.window.Authors) > 0 {
		return f.window.Authors
	}
	return []string{f.login}
}

// FetchCommits walks commits per (repository, author) pair. A pair that keeps
// failing after retries is skipped with a warning so the rest of the fetch
// survives.
func (f *GitHub) FetchCommits(ctx context.Context) ([]model.ActivityEntry, error) {
	repos, err := f.wantedRepos(ctx)
	if err != nil {
		return nil, err
	}

	var entries []model.ActivityEntry
	for _, repo := range repos {
		owner, name := repo.GetOwner().GetLogin(), repo.GetName()
		for _, author := range f.authors() {
			opt := &github.CommitsListOptions{
				Author:      author,
				ListOptions: github.ListOptions{PerPage: githubPageSize},
			}
			if f.window.StartDate != nil {
				opt.Since = *f.window.StartDate
			}
			if f.window.EndDate != nil {
				opt.Until = *f.window.EndDate
			}
			pairEntries, err := f.commitsForPair(ctx, owner, name, author, opt)
			if err != nil {
				logger.Sugar().Warnf("skipping commits for %s/%s author %s: %v", owner, name, author, err)
				continue
			}
			entries = append(entries, pairEntries...)
		}
	}
	return entries, nil
}

func (f *GitHub) commitsForPair(ctx context.Context, owner, name, author string, opt *github.CommitsListOptions) ([]model.ActivityEntry, error) {
	var entries []model.ActivityEntry
	for page := 0; page < maxPages; page++ {
		var (
			commits []*github.RepositoryCommit
			resp    *github.Response
		)
		err := withRetry(ctx, func() error {
			var err error
			commits, resp, err = f.client.Repositories.ListCommits(ctx, owner, name, opt)
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, c := range commits {
			ts := c.GetCommit().GetAuthor().GetDate()
			if !f.window.InWindow(ts) {
				continue
			}
			entries = append(entries, model.ActivityEntry{
				Kind:      model.KindCommit,
				Repo:      name,
				Message:   c.GetCommit().GetMessage(),
				Timestamp: ts,
				SHA:       c.GetSHA(),
				Author:    author,
			})
		}
		if len(commits) > 0 && f.window.StopFetching(commits[len(commits)-1].GetCommit().GetAuthor().GetDate()) {
			break
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return entries, nil
}

// FetchPullRequests returns one entry per authored pull request plus one
// commit_from_pr entry for each commit inside it. Pull requests by other
// authors are skipped even when they touch the same repositories.
func (f *GitHub) FetchPullRequests(ctx context.Context) ([]model.ActivityEntry, error) {
	repos, err := f.wantedRepos(ctx)
	if err != nil {
		return nil, err
	}
	authorSet := lo.SliceToMap(f.authors(), func(a string) (string, struct{}) {
		return a, struct{}{}
	})

	var entries []model.ActivityEntry
	for _, repo := range repos {
		owner, name := repo.GetOwner().GetLogin(), repo.GetName()
		opt := &github.PullRequestListOptions{
			State:       "all",
			Sort:        "updated",
			Direction:   "desc",
			ListOptions: github.ListOptions{PerPage: githubPageSize},
		}
	pages:
		for page := 0; page < maxPages; page++ {
			var (
				prs  []*github.PullRequest
				resp *github.Response
			)
			err := withRetry(ctx, func() error {
				var err error
				prs, resp, err = f.client.PullRequests.List(ctx, owner, name, opt)
				return err
			})
			if err != nil {
				logger.Sugar().Warnf("skipping pull requests for %s/%s: %v", owner, name, err)
				break pages
			}
			for _, pr := range prs {
				if f.window.StopFetching(pr.GetUpdatedAt()) {
					break pages
				}
				if _, mine := authorSet[pr.GetUser().GetLogin()]; !mine {
					continue
				}
				if !f.window.InWindow(pr.GetUpdatedAt()) {
					continue
				}
				entries = append(entries, model.ActivityEntry{
					Kind:      model.KindPullRequest,
					Repo:      name,
					Message:   pr.GetTitle(),
					Timestamp: pr.GetUpdatedAt(),
					PRNumber:  pr.GetNumber(),
					PRTitle:   pr.GetTitle(),
					Author:    pr.GetUser().GetLogin(),
				})
				entries = append(entries, f.pullRequestCommits(ctx, owner, name, pr)...)
			}
			if resp.NextPage == 0 {
				break
			}
			opt.Page = resp.NextPage
		}
	}
	return entries, nil
}

func (f *GitHub) pullRequestCommits(ctx context.Context, owner, name string, pr *github.PullRequest) []model.ActivityEntry {
	var entries []model.ActivityEntry
	opt := &github.ListOptions{PerPage: githubPageSize}
	for page := 0; page < maxPages; page++ {
		var (
			commits []*github.RepositoryCommit
			resp    *github.Response
		)
		err := withRetry(ctx, func() error {
			var err error
			commits, resp, err = f.client.PullRequests.ListCommits(ctx, owner, name, pr.GetNumber(), opt)
			return err
		})
		if err != nil {
			logger.Sugar().Warnf("skipping commits of %s/%s#%d: %v", owner, name, pr.GetNumber(), err)
			return entries
		}
		for _, c := range commits {
			ts := c.GetCommit().GetAuthor().GetDate()
			if !f.window.InWindow(ts) {
				continue
			}
			entries = append(entries, model.ActivityEntry{
				Kind:      model.KindCommitFromPR,
				Repo:      name,
				Message:   c.GetCommit().GetMessage(),
				Timestamp: ts,
				SHA:       c.GetSHA(),
				PRNumber:  pr.GetNumber(),
				PRTitle:   pr.GetTitle(),
				Author:    c.GetCommit().GetAuthor().GetName(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return entries
}

// FetchIssues lists issues assigned to the authenticated user. Pull requests
// surfaced through the issues API are dropped; they already arrive through
// FetchPullRequests.
func (f *GitHub) FetchIssues(ctx context.Context) ([]model.ActivityEntry, error) {
	opt := &github.IssueListOptions{
		Filter:      "assigned",
		State:       "all",
		ListOptions: github.ListOptions{PerPage: githubPageSize},
	}
	if f.window.StartDate != nil {
		opt.Since = *f.window.StartDate
	}

	var entries []model.ActivityEntry
	for page := 0; page < maxPages; page++ {
		var (
			issues []*github.Issue
			resp   *github.Response
		)
		err := withRetry(ctx, func() error {
			var err error
			issues, resp, err = f.client.Issues.List(ctx, true, opt)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("listing issues: %w", err)
		}
		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			repo := issue.GetRepository().GetName()
			if !f.window.WantsRepo(repo) {
				continue
			}
			if !f.window.InWindow(issue.GetCreatedAt()) {
				continue
			}
			entries = append(entries, model.ActivityEntry{
				Kind:      model.KindIssue,
				Repo:      repo,
				Message:   issue.GetTitle(),
				Timestamp: issue.GetCreatedAt(),
				Author:    issue.GetUser().GetLogin(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return entries, nil
}

func (f *GitHub) FetchReleases(ctx context.Context, repoName string) ([]model.Release, error) {
	owner, err := f.ownerOf(ctx, repoName)
	if err != nil {
		return nil, err
	}

	var out []model.Release
	opt := &github.ListOptions{PerPage: githubPageSize}
	for page := 0; page < maxPages; page++ {
		var (
			releases []*github.RepositoryRelease
			resp     *github.Response
		)
		err := withRetry(ctx, func() error {
			var err error
			releases, resp, err = f.client.Repositories.ListReleases(ctx, owner, repoName, opt)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("listing releases for %s: %w", repoName, err)
		}
		for _, r := range releases {
			rel := model.Release{
				TagName:     r.GetTagName(),
				Name:        r.GetName(),
				Repo:        repoName,
				Author:      r.GetAuthor().GetLogin(),
				PublishedAt: r.GetPublishedAt().Time,
				CreatedAt:   r.GetCreatedAt().Time,
				Draft:       r.GetDraft(),
				Prerelease:  r.GetPrerelease(),
				Body:        r.GetBody(),
			}
			for _, a := range r.Assets {
				rel.Assets = append(rel.Assets, model.ReleaseAsset{
					Name:        a.GetName(),
					Size:        a.GetSize(),
					DownloadURL: a.GetBrowserDownloadURL(),
					ContentType: a.GetContentType(),
				})
			}
			out = append(out, rel)
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return out, nil
}

func (f *GitHub) ListBranches(ctx context.Context, repoName string) ([]string, error) {
	owner, err := f.ownerOf(ctx, repoName)
	if err != nil {
		return nil, err
	}

	var names []string
	opt := &github.BranchListOptions{
		ListOptions: github.ListOptions{PerPage: githubPageSize},
	}
	for page := 0; page < maxPages; page++ {
		var (
			branches []*github.Branch
			resp     *github.Response
		)
		err := withRetry(ctx, func() error {
			var err error
			branches, resp, err = f.client.Repositories.ListBranches(ctx, owner, repoName, opt)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("listing branches for %s: %w", repoName, err)
		}
		for _, b := range branches {
			names = append(names, b.GetName())
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return names, nil
}

// ValidTargetBranches returns every branch of the repository except the
// source branch itself.
func (f *GitHub) ValidTargetBranches(ctx context.Context, repoName, sourceBranch string) ([]string, error) {
	branches, err := f.ListBranches(ctx, repoName)
	if err != nil {
		return nil, err
	}
	return lo.Filter(branches, func(b string, _ int) bool {
		return b != sourceBranch
	}), nil
}

func (f *GitHub) CreatePullRequest(ctx context.Context, spec model.PullRequestSpec) (*model.PullRequestInfo, error) {
	owner, err := f.ownerOf(ctx, spec.Repo)
	if err != nil {
		return nil, err
	}

	pr, _, err := f.client.PullRequests.Create(ctx, owner, spec.Repo, &github.NewPullRequest{
		Title: github.String(spec.Title),
		Head:  github.String(spec.HeadBranch),
		Base:  github.String(spec.BaseBranch),
		Body:  github.String(spec.Body),
		Draft: github.Bool(spec.Draft),
	})
	if err != nil {
		return nil, fmt.Errorf("creating pull request on %s: %w", spec.Repo, err)
	}

	number := pr.GetNumber()
	if len(spec.Reviewers) > 0 {
		if _, _, err := f.client.PullRequests.RequestReviewers(ctx, owner, spec.Repo, number, github.ReviewersRequest{Reviewers: spec.Reviewers}); err != nil {
			logger.Sugar().Warnf("requesting reviewers on %s#%d: %v", spec.Repo, number, err)
		}
	}
	if len(spec.Assignees) > 0 {
		if _, _, err := f.client.Issues.AddAssignees(ctx, owner, spec.Repo, number, spec.Assignees); err != nil {
			logger.Sugar().Warnf("adding assignees on %s#%d: %v", spec.Repo, number, err)
		}
	}
	if len(spec.Labels) > 0 {
		if _, _, err := f.client.Issues.AddLabelsToIssue(ctx, owner, spec.Repo, number, spec.Labels); err != nil {
			logger.Sugar().Warnf("adding labels on %s#%d: %v", spec.Repo, number, err)
		}
	}
	return &model.PullRequestInfo{
		Number: number,
		URL:    pr.GetHTMLURL(),
		State:  pr.GetState(),
	}, nil
}

// ListAuthors collects contributor logins for the named repositories, or for
// every reachable repository when repos is empty.
func (f *GitHub) ListAuthors(ctx context.Context, repos []string) ([]model.Author, error) {
	all, err := f.loadRepos(ctx)
	if err != nil {
		return nil, err
	}

	var authors []model.Author
	for _, repo := range all {
		if len(repos) > 0 && !lo.Contains(repos, repo.GetName()) {
			continue
		}
		var contributors []*github.Contributor
		err := withRetry(ctx, func() error {
			var err error
			contributors, _, err = f.client.Repositories.ListContributors(ctx, repo.GetOwner().GetLogin(), repo.GetName(), &github.ListContributorsOptions{
				ListOptions: github.ListOptions{PerPage: githubPageSize},
			})
			return err
		})
		if err != nil {
			logger.Sugar().Warnf("skipping contributors of %s: %v", repo.GetName(), err)
			continue
		}
		for _, c := range contributors {
			authors = append(authors, model.Author{Name: c.GetLogin()})
		}
	}
	return lo.UniqBy(authors, func(a model.Author) string {
		return strings.ToLower(a.Name)
	}), nil
}

func (f *GitHub) CurrentAuthor(context.Context) (string, error) {
	return f.login, nil
}

func (f *GitHub) ownerOf(ctx context.Context, repoName string) (string, error) {
	repos, err := f.loadRepos(ctx)
	if err != nil {
		return "", err
	}
	for _, r := range repos {
		if r.GetName() == repoName {
			return r.GetOwner().GetLogin(), nil
		}
	}
	return "", fmt.Errorf("repository %q not reachable with this credential", repoName)
}
