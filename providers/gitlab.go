package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	gitlab "github.com/xanzy/go-gitlab"

	"github.com/gitrecap/backend/model"
)

const gitlabPageSize = 100

// GitLab is the fetcher variant backed by the GitLab API. Releases, branch
// listing and merge request creation are not part of its capability set.
type GitLab struct {
	client   *gitlab.Client
	username string
	window   model.FetchWindow

	projects []*gitlab.Project
}

// NewGitLab authenticates the token against gitlab.com, or against the
// instance named by opts.URL when set.
func NewGitLab(ctx context.Context, opts Options) (*GitLab, error) {
	var clientOpts []gitlab.ClientOptionFunc
	if opts.URL != "" {
		clientOpts = append(clientOpts, gitlab.WithBaseURL(opts.URL))
	}
	client, err := gitlab.NewClient(opts.PAT, clientOpts...)
	if err != nil {
		return nil, &model.RepositoryUnavailableError{Target: "gitlab", Err: err}
	}

	user, _, err := client.Users.CurrentUser(gitlab.WithContext(ctx))
	if err != nil {
		return nil, &model.RepositoryUnavailableError{Target: "gitlab", Err: err}
	}

	f := &GitLab{client: client, username: user.Username, window: opts.Window}
	if !lo.Contains(f.window.Authors, f.username) {
		f.window.Authors = append(f.window.Authors, f.username)
	}
	return f, nil
}

func (f *GitLab) Kind() Kind { return KindGitLab }

func (f *GitLab) Supports(c Capability) bool {
	switch c {
	case CapCommits, CapPullRequests, CapIssues, CapAuthors, CapCurrentAuthor:
		return true
	default:
		return false
	}
}

func (f *GitLab) Window() *model.FetchWindow { return &f.window }
func (f *GitLab) SetWindow(w model.FetchWindow) { f.window = w }

func (f *GitLab) Close() error { return nil }

func (f *GitLab) loadProjects(ctx context.Context) ([]*gitlab.Project, error) {
	if f.projects != nil {
		return f.projects, nil
	}
	var all []*gitlab.Project
	opt := &gitlab.ListProjectsOptions{
		Membership:  gitlab.Bool(true),
		ListOptions: gitlab.ListOptions{PerPage: gitlabPageSize, Page: 1},
	}
	for page := 0; page < maxPages; page++ {
		var (
			projects []*gitlab.Project
			resp     *gitlab.Response
		)
		err := withRetry(ctx, func() error {
			var err error
			projects, resp, err = f.client.Projects.ListProjects(opt, gitlab.WithContext(ctx))
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("listing projects: %w", err)
		}
		all = append(all, projects...)
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	f.projects = all
	return all, nil
}

func (f *GitLab) RepoNames(ctx context.Context) ([]string, error) {
	projects, err := f.loadProjects(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(projects, func(p *gitlab.Project, _ int) string {
		return p.Name
	}), nil
}

func (f *GitLab) wantedProjects(ctx context.Context) ([]*gitlab.Project, error) {
	projects, err := f.loadProjects(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Filter(projects, func(p *gitlab.Project, _ int) bool {
		return f.window.WantsRepo(p.Name)
	}), nil
}

func (f *GitLab) isTrackedAuthor(name string) bool {
	for _, a := range f.window.Authors {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

// FetchCommits lists commits per project inside the date range. The commits
// API has no author filter, so authorship is applied locally against the
// tracked author names.
func (f *GitLab) FetchCommits(ctx context.Context) ([]model.ActivityEntry, error) {
	projects, err := f.wantedProjects(ctx)
	if err != nil {
		return nil, err
	}

	var entries []model.ActivityEntry
	for _, project := range projects {
		opt := &gitlab.ListCommitsOptions{
			Since:       f.window.StartDate,
			Until:       f.window.EndDate,
			All:         gitlab.Bool(true),
			ListOptions: gitlab.ListOptions{PerPage: gitlabPageSize, Page: 1},
		}
		for page := 0; page < maxPages; page++ {
			var (
				commits []*gitlab.Commit
				resp    *gitlab.Response
			)
			err := withRetry(ctx, func() error {
				var err error
				commits, resp, err = f.client.Commits.ListCommits(project.ID, opt, gitlab.WithContext(ctx))
				return err
			})
			if err != nil {
				logger.Sugar().Warnf("skipping commits for %s: %v", project.Name, err)
				break
			}
			for _, c := range commits {
				if c.CommittedDate == nil || !f.window.InWindow(*c.CommittedDate) {
					continue
				}
				if !f.isTrackedAuthor(c.AuthorName) {
					continue
				}
				entries = append(entries, model.ActivityEntry{
					Kind:      model.KindCommit,
					Repo:      project.Name,
					Message:   c.Message,
					Timestamp: *c.CommittedDate,
					SHA:       c.ID,
					Author:    c.AuthorName,
				})
			}
			if resp.NextPage == 0 {
				break
			}
			opt.Page = resp.NextPage
		}
	}
	return entries, nil
}

// FetchPullRequests lists merge requests authored by a tracked author, plus
// the commits of each.
func (f *GitLab) FetchPullRequests(ctx context.Context) ([]model.ActivityEntry, error) {
	projects, err := f.wantedProjects(ctx)
	if err != nil {
		return nil, err
	}

	var entries []model.ActivityEntry
	for _, project := range projects {
		opt := &gitlab.ListProjectMergeRequestsOptions{
			State:       gitlab.String("all"),
			OrderBy:     gitlab.String("updated_at"),
			Sort:        gitlab.String("desc"),
			ListOptions: gitlab.ListOptions{PerPage: gitlabPageSize, Page: 1},
		}
	pages:
		for page := 0; page < maxPages; page++ {
			var (
				mrs  []*gitlab.MergeRequest
				resp *gitlab.Response
			)
			err := withRetry(ctx, func() error {
				var err error
				mrs, resp, err = f.client.MergeRequests.ListProjectMergeRequests(project.ID, opt, gitlab.WithContext(ctx))
				return err
			})
			if err != nil {
				logger.Sugar().Warnf("skipping merge requests for %s: %v", project.Name, err)
				break pages
			}
			for _, mr := range mrs {
				if mr.UpdatedAt != nil && f.window.StopFetching(*mr.UpdatedAt) {
					break pages
				}
				if mr.Author == nil || !f.isTrackedAuthor(mr.Author.Username) {
					continue
				}
				ts := mr.CreatedAt
				if mr.UpdatedAt != nil {
					ts = mr.UpdatedAt
				}
				if ts == nil || !f.window.InWindow(*ts) {
					continue
				}
				entries = append(entries, model.ActivityEntry{
					Kind:      model.KindPullRequest,
					Repo:      project.Name,
					Message:   mr.Title,
					Timestamp: *ts,
					PRNumber:  mr.IID,
					PRTitle:   mr.Title,
					Author:    mr.Author.Username,
				})
				entries = append(entries, f.mergeRequestCommits(ctx, project, mr)...)
			}
			if resp.NextPage == 0 {
				break
			}
			opt.Page = resp.NextPage
		}
	}
	return entries, nil
}

func (f *GitLab) mergeRequestCommits(ctx context.Context, project *gitlab.Project, mr *gitlab.MergeRequest) []model.ActivityEntry {
	var commits []*gitlab.Commit
	err := withRetry(ctx, func() error {
		var err error
		commits, _, err = f.client.MergeRequests.GetMergeRequestCommits(project.ID, mr.IID, nil, gitlab.WithContext(ctx))
		return err
	})
	if err != nil {
		logger.Sugar().Warnf("skipping commits of %s!%d: %v", project.Name, mr.IID, err)
		return nil
	}

	var entries []model.ActivityEntry
	for _, c := range commits {
		ts := c.CommittedDate
		if ts == nil {
			ts = c.CreatedAt
		}
		if ts == nil || !f.window.InWindow(*ts) {
			continue
		}
		entries = append(entries, model.ActivityEntry{
			Kind:      model.KindCommitFromPR,
			Repo:      project.Name,
			Message:   c.Message,
			Timestamp: *ts,
			SHA:       c.ID,
			PRNumber:  mr.IID,
			PRTitle:   mr.Title,
			Author:    c.AuthorName,
		})
	}
	return entries
}

// FetchIssues lists project issues assigned to the current user.
func (f *GitLab) FetchIssues(ctx context.Context) ([]model.ActivityEntry, error) {
	projects, err := f.wantedProjects(ctx)
	if err != nil {
		return nil, err
	}

	var entries []model.ActivityEntry
	for _, project := range projects {
		opt := &gitlab.ListProjectIssuesOptions{
			ListOptions: gitlab.ListOptions{PerPage: gitlabPageSize, Page: 1},
		}
		for page := 0; page < maxPages; page++ {
			var (
				issues []*gitlab.Issue
				resp   *gitlab.Response
			)
			err := withRetry(ctx, func() error {
				var err error
				issues, resp, err = f.client.Issues.ListProjectIssues(project.ID, opt, gitlab.WithContext(ctx))
				return err
			})
			if err != nil {
				return nil, fmt.Errorf("listing issues for %s: %w", project.Name, err)
			}
			for _, issue := range issues {
				if !f.assignedToMe(issue) {
					continue
				}
				if issue.CreatedAt == nil || !f.window.InWindow(*issue.CreatedAt) {
					continue
				}
				author := ""
				if issue.Author != nil {
					author = issue.Author.Username
				}
				entries = append(entries, model.ActivityEntry{
					Kind:      model.KindIssue,
					Repo:      project.Name,
					Message:   issue.Title,
					Timestamp: *issue.CreatedAt,
					Author:    author,
				})
			}
			if resp.NextPage == 0 {
				break
			}
			opt.Page = resp.NextPage
		}
	}
	return entries, nil
}

func (f *GitLab) assignedToMe(issue *gitlab.Issue) bool {
	for _, a := range issue.Assignees {
		if a != nil && strings.EqualFold(a.Username, f.username) {
			return true
		}
	}
	return false
}

func (f *GitLab) FetchReleases(context.Context, string) ([]model.Release, error) {
	return nil, model.ErrNotSupported
}

func (f *GitLab) ListBranches(context.Context, string) ([]string, error) {
	return nil, model.ErrNotSupported
}

func (f *GitLab) ValidTargetBranches(context.Context, string, string) ([]string, error) {
	return nil, model.ErrNotSupported
}

func (f *GitLab) CreatePullRequest(context.Context, model.PullRequestSpec) (*model.PullRequestInfo, error) {
	return nil, model.ErrNotSupported
}

// ListAuthors collects repository contributors for the named projects, or for
// every membership project when repos is empty.
func (f *GitLab) ListAuthors(ctx context.Context, repos []string) ([]model.Author, error) {
	projects, err := f.loadProjects(ctx)
	if err != nil {
		return nil, err
	}

	var authors []model.Author
	for _, project := range projects {
		if len(repos) > 0 && !lo.Contains(repos, project.Name) {
			continue
		}
		var contributors []*gitlab.Contributor
		err := withRetry(ctx, func() error {
			var err error
			contributors, _, err = f.client.Repositories.Contributors(project.ID, &gitlab.ListContributorsOptions{}, gitlab.WithContext(ctx))
			return err
		})
		if err != nil {
			logger.Sugar().Warnf("skipping contributors of %s: %v", project.Name, err)
			continue
		}
		for _, c := range contributors {
			authors = append(authors, model.Author{Name: c.Name, Email: c.Email})
		}
	}
	return lo.UniqBy(authors, func(a model.Author) string {
		return strings.ToLower(a.Name) + "|" + strings.ToLower(a.Email)
	}), nil
}

func (f *GitLab) CurrentAuthor(context.Context) (string, error) {
	return f.username, nil
}
