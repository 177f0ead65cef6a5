package sessions

import "github.com/gitrecap/backend/internal/config"

// CreateSessionRequest optionally overrides the server's default LLM
// configuration for one session.
type CreateSessionRequest struct {
	LLM config.LLMConfig `json:"llm"`
}

// BindFetcherRequest attaches a provider fetcher to an existing session.
type BindFetcherRequest struct {
	SessionID  string   `json:"session_id"`
	Provider   string   `json:"provider"`
	PAT        string   `json:"pat"`
	URL        string   `json:"url"`
	StartDate  string   `json:"start_date"`
	EndDate    string   `json:"end_date"`
	RepoFilter []string `json:"repo_filter"`
	Authors    []string `json:"authors"`
}
