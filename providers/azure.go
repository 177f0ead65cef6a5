package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/gitrecap/backend/model"
)

const azureAPIVersion = "7.0"

// AzureDevOps is the fetcher variant backed by the Azure DevOps REST API.
// There is no maintained Go SDK worth depending on, so this speaks the REST
// surface directly. Releases, branch listing and PR creation are not part of
// its capability set.
type AzureDevOps struct {
	orgURL string
	pat    string
	client *http.Client
	window model.FetchWindow

	repos []azureRepo
}

type azureProject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type azureRepo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Project struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"project"`
}

type azureCommit struct {
	CommitID string `json:"commitId"`
	Comment  string `json:"comment"`
	Author   struct {
		Name  string    `json:"name"`
		Email string    `json:"email"`
		Date  time.Time `json:"date"`
	} `json:"author"`
}

type azurePullRequest struct {
	ID           int       `json:"pullRequestId"`
	Title        string    `json:"title"`
	CreationDate time.Time `json:"creationDate"`
	CreatedBy    struct {
		DisplayName string `json:"displayName"`
	} `json:"createdBy"`
}

type azureWorkItem struct {
	ID     int `json:"id"`
	Fields struct {
		Title       string    `json:"System.Title"`
		CreatedDate time.Time `json:"System.CreatedDate"`
		TeamProject string    `json:"System.TeamProject"`
		AssignedTo  struct {
			DisplayName string `json:"displayName"`
		} `json:"System.AssignedTo"`
	} `json:"fields"`
}

// NewAzureDevOps validates the PAT by listing the organization's projects.
// opts.URL is the organization URL, e.g. https://dev.azure.com/myorg.
func NewAzureDevOps(ctx context.Context, opts Options) (*AzureDevOps, error) {
	f := &AzureDevOps{
		orgURL: strings.TrimRight(opts.URL, "/"),
		pat:    opts.PAT,
		client: &http.Client{Timeout: 30 * time.Second},
		window: opts.Window,
	}
	if f.orgURL == "" {
		return nil, &model.RepositoryUnavailableError{
			Target: "azure",
			Err:    fmt.Errorf("organization URL is required"),
		}
	}
	if _, err := f.projects(ctx); err != nil {
		return nil, &model.RepositoryUnavailableError{Target: f.orgURL, Err: err}
	}
	return f, nil
}

func (f *AzureDevOps) Kind() Kind { return KindAzureDevOps }

func (f *AzureDevOps) Supports(c Capability) bool {
	switch c {
	case CapCommits, CapPullRequests, CapIssues, CapAuthors:
		return true
	default:
		return false
	}
}

func (f *AzureDevOps) Window() *model.FetchWindow { return &f.window }
func (f *AzureDevOps) SetWindow(w model.FetchWindow) { f.window = w }

func (f *AzureDevOps) Close() error { return nil }

// get issues an authenticated GET and decodes the JSON body into out.
func (f *AzureDevOps) get(ctx context.Context, rawURL string, out interface{}) error {
	return f.do(ctx, http.MethodGet, rawURL, nil, out)
}

func (f *AzureDevOps) do(ctx context.Context, method, rawURL string, body []byte, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(":" + f.pat))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("azure devops api error: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (f *AzureDevOps) projects(ctx context.Context) ([]azureProject, error) {
	var result struct {
		Value []azureProject `json:"value"`
	}
	u := fmt.Sprintf("%s/_apis/projects?api-version=%s", f.orgURL, azureAPIVersion)
	if err := f.get(ctx, u, &result); err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return result.Value, nil
}

func (f *AzureDevOps) loadRepos(ctx context.Context) ([]azureRepo, error) {
	if f.repos != nil {
		return f.repos, nil
	}
	projects, err := f.projects(ctx)
	if err != nil {
		return nil, err
	}

	var all []azureRepo
	for _, project := range projects {
		var result struct {
			Value []azureRepo `json:"value"`
		}
		u := fmt.Sprintf("%s/%s/_apis/git/repositories?api-version=%s",
			f.orgURL, url.PathEscape(project.Name), azureAPIVersion)
		err := withRetry(ctx, func() error {
			return f.get(ctx, u, &result)
		})
		if err != nil {
			logger.Sugar().Warnf("skipping repositories of project %s: %v", project.Name, err)
			continue
		}
		all = append(all, result.Value...)
	}
	f.repos = all
	return all, nil
}

func (f *AzureDevOps) RepoNames(ctx context.Context) ([]string, error) {
	repos, err := f.loadRepos(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(repos, func(r azureRepo, _ int) string {
		return r.Name
	}), nil
}

func (f *AzureDevOps) wantedRepos(ctx context.Context) ([]azureRepo, error) {
	repos, err := f.loadRepos(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Filter(repos, func(r azureRepo, _ int) bool {
		return f.window.WantsRepo(r.Name)
	}), nil
}

func (f *AzureDevOps) isTrackedAuthor(name string) bool {
	if len(f.window.Authors) == 0 {
		return true
	}
	for _, a := range f.window.Authors {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

// FetchCommits walks commits per (repository, author) pair using the commit
// search criteria of the git API.
func (f *AzureDevOps) FetchCommits(ctx context.Context) ([]model.ActivityEntry, error) {
	repos, err := f.wantedRepos(ctx)
	if err != nil {
		return nil, err
	}
	authors := f.window.Authors
	if len(authors) == 0 {
		// Without an author filter the API returns everything; scope by
		// date range only.
		authors = []string{""}
	}

	var entries []model.ActivityEntry
	for _, repo := range repos {
		for _, author := range authors {
			query := url.Values{"api-version": {azureAPIVersion}}
			if author != "" {
				query.Set("searchCriteria.author", author)
			}
			if f.window.StartDate != nil {
				query.Set("searchCriteria.fromDate", f.window.StartDate.Format(time.RFC3339))
			}
			if f.window.EndDate != nil {
				query.Set("searchCriteria.toDate", f.window.EndDate.Format(time.RFC3339))
			}

			var result struct {
				Value []azureCommit `json:"value"`
			}
			u := fmt.Sprintf("%s/%s/_apis/git/repositories/%s/commits?%s",
				f.orgURL, url.PathEscape(repo.Project.Name), url.PathEscape(repo.ID), query.Encode())
			err := withRetry(ctx, func() error {
				return f.get(ctx, u, &result)
			})
			if err != nil {
				logger.Sugar().Warnf("skipping commits for %s author %q: %v", repo.Name, author, err)
				continue
			}
			for _, c := range result.Value {
				if !f.window.InWindow(c.Author.Date) {
					continue
				}
				entries = append(entries, model.ActivityEntry{
					Kind:      model.KindCommit,
					Repo:      repo.Name,
					Message:   c.Comment,
					Timestamp: c.Author.Date,
					SHA:       c.CommitID,
					Author:    c.Author.Name,
				})
			}
		}
	}
	return entries, nil
}

// FetchPullRequests lists completed and active pull requests per repository.
// Pull requests created by an untracked author are skipped entirely, commits
// included.
func (f *AzureDevOps) FetchPullRequests(ctx context.Context) ([]model.ActivityEntry, error) {
	repos, err := f.wantedRepos(ctx)
	if err != nil {
		return nil, err
	}

	var entries []model.ActivityEntry
	for _, repo := range repos {
		var result struct {
			Value []azurePullRequest `json:"value"`
		}
		u := fmt.Sprintf("%s/%s/_apis/git/repositories/%s/pullrequests?searchCriteria.status=all&api-version=%s",
			f.orgURL, url.PathEscape(repo.Project.Name), url.PathEscape(repo.ID), azureAPIVersion)
		err := withRetry(ctx, func() error {
			return f.get(ctx, u, &result)
		})
		if err != nil {
			logger.Sugar().Warnf("skipping pull requests for %s: %v", repo.Name, err)
			continue
		}
		for _, pr := range result.Value {
			if !f.isTrackedAuthor(pr.CreatedBy.DisplayName) {
				continue
			}
			if !f.window.InWindow(pr.CreationDate) {
				continue
			}
			entries = append(entries, model.ActivityEntry{
				Kind:      model.KindPullRequest,
				Repo:      repo.Name,
				Message:   pr.Title,
				Timestamp: pr.CreationDate,
				PRNumber:  pr.ID,
				PRTitle:   pr.Title,
				Author:    pr.CreatedBy.DisplayName,
			})
			entries = append(entries, f.pullRequestCommits(ctx, repo, pr)...)
		}
	}
	return entries, nil
}

func (f *AzureDevOps) pullRequestCommits(ctx context.Context, repo azureRepo, pr azurePullRequest) []model.ActivityEntry {
	var result struct {
		Value []azureCommit `json:"value"`
	}
	u := fmt.Sprintf("%s/%s/_apis/git/repositories/%s/pullRequests/%d/commits?api-version=%s",
		f.orgURL, url.PathEscape(repo.Project.Name), url.PathEscape(repo.ID), pr.ID, azureAPIVersion)
	err := withRetry(ctx, func() error {
		return f.get(ctx, u, &result)
	})
	if err != nil {
		logger.Sugar().Warnf("skipping commits of %s pr %d: %v", repo.Name, pr.ID, err)
		return nil
	}

	var entries []model.ActivityEntry
	for _, c := range result.Value {
		if !f.window.InWindow(c.Author.Date) {
			continue
		}
		entries = append(entries, model.ActivityEntry{
			Kind:      model.KindCommitFromPR,
			Repo:      repo.Name,
			Message:   c.Comment,
			Timestamp: c.Author.Date,
			SHA:       c.CommitID,
			PRNumber:  pr.ID,
			PRTitle:   pr.Title,
			Author:    c.Author.Name,
		})
	}
	return entries
}

// FetchIssues queries work items assigned to the caller through WIQL and
// resolves their fields in one batch.
func (f *AzureDevOps) FetchIssues(ctx context.Context) ([]model.ActivityEntry, error) {
	wiql := map[string]string{
		"query": "SELECT [System.Id] FROM WorkItems WHERE [System.AssignedTo] = @Me ORDER BY [System.CreatedDate] DESC",
	}
	body, err := json.Marshal(wiql)
	if err != nil {
		return nil, err
	}

	var queryResult struct {
		WorkItems []struct {
			ID int `json:"id"`
		} `json:"workItems"`
	}
	u := fmt.Sprintf("%s/_apis/wit/wiql?api-version=%s", f.orgURL, azureAPIVersion)
	if err := f.do(ctx, http.MethodPost, u, body, &queryResult); err != nil {
		return nil, fmt.Errorf("querying work items: %w", err)
	}
	if len(queryResult.WorkItems) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(queryResult.WorkItems))
	for _, w := range queryResult.WorkItems {
		ids = append(ids, fmt.Sprintf("%d", w.ID))
		if len(ids) == 200 {
			break
		}
	}

	var itemsResult struct {
		Value []azureWorkItem `json:"value"`
	}
	u = fmt.Sprintf("%s/_apis/wit/workitems?ids=%s&api-version=%s",
		f.orgURL, strings.Join(ids, ","), azureAPIVersion)
	if err := f.get(ctx, u, &itemsResult); err != nil {
		return nil, fmt.Errorf("resolving work items: %w", err)
	}

	var entries []model.ActivityEntry
	for _, item := range itemsResult.Value {
		if !f.window.WantsRepo(item.Fields.TeamProject) {
			continue
		}
		if !f.window.InWindow(item.Fields.CreatedDate) {
			continue
		}
		entries = append(entries, model.ActivityEntry{
			Kind:      model.KindIssue,
			Repo:      item.Fields.TeamProject,
			Message:   item.Fields.Title,
			Timestamp: item.Fields.CreatedDate,
			Author:    item.Fields.AssignedTo.DisplayName,
		})
	}
	return entries, nil
}

func (f *AzureDevOps) FetchReleases(context.Context, string) ([]model.Release, error) {
	return nil, model.ErrNotSupported
}

func (f *AzureDevOps) ListBranches(context.Context, string) ([]string, error) {
	return nil, model.ErrNotSupported
}

func (f *AzureDevOps) ValidTargetBranches(context.Context, string, string) ([]string, error) {
	return nil, model.ErrNotSupported
}

func (f *AzureDevOps) CreatePullRequest(context.Context, model.PullRequestSpec) (*model.PullRequestInfo, error) {
	return nil, model.ErrNotSupported
}

// ListAuthors collects distinct commit authors from recent history of the
// named repositories.
func (f *AzureDevOps) ListAuthors(ctx context.Context, repos []string) ([]model.Author, error) {
	all, err := f.loadRepos(ctx)
	if err != nil {
		return nil, err
	}

	var authors []model.Author
	for _, repo := range all {
		if len(repos) > 0 && !lo.Contains(repos, repo.Name) {
			continue
		}
		var result struct {
			Value []azureCommit `json:"value"`
		}
		u := fmt.Sprintf("%s/%s/_apis/git/repositories/%s/commits?searchCriteria.$top=500&api-version=%s",
			f.orgURL, url.PathEscape(repo.Project.Name), url.PathEscape(repo.ID), azureAPIVersion)
		err := withRetry(ctx, func() error {
			return f.get(ctx, u, &result)
		})
		if err != nil {
			logger.Sugar().Warnf("skipping authors of %s: %v", repo.Name, err)
			continue
		}
		for _, c := range result.Value {
			authors = append(authors, model.Author{Name: c.Author.Name, Email: c.Author.Email})
		}
	}
	return lo.UniqBy(authors, func(a model.Author) string {
		return strings.ToLower(a.Name) + "|" + strings.ToLower(a.Email)
	}), nil
}

func (f *AzureDevOps) CurrentAuthor(context.Context) (string, error) {
	return "", model.ErrNotSupported
}
