package providers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitrecap/backend/model"
)

func TestNormalizeCloneURL(t *testing.T) {
	tests := []struct {
		in       string
		wantURL  string
		wantName string
	}{
		{"https://github.com/acme/widget", "https://github.com/acme/widget.git", "widget"},
		{"github.com/acme/widget.git", "https://github.com/acme/widget.git", "widget"},
		{"https://dev.azure.com/org/proj/_git/widget", "https://dev.azure.com/org/proj/_git/widget", "widget"},
		{"https://gitlab.com/acme/widget/", "https://gitlab.com/acme/widget.git", "widget"},
	}
	for _, tt := range tests {
		gotURL, gotName, err := normalizeCloneURL(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.wantURL, gotURL, tt.in)
		assert.Equal(t, tt.wantName, gotName, tt.in)
	}

	_, _, err := normalizeCloneURL("")
	assert.Error(t, err)
}

func TestParseLogSkipsMalformedLines(t *testing.T) {
	f := &URLClone{repoName: "widget"}
	out := "abc123|Jane|2025-03-14T10:00:00+00:00|fix the thing\n" +
		"not a log line\n" +
		"def456|Jane|not-a-date|another fix\n" +
		"\n" +
		"789abc|Bob|2025-03-15T11:30:00+01:00|subject|with|pipes\n"

	entries := f.parseLog(out)
	require.Len(t, entries, 2)

	assert.Equal(t, "abc123", entries[0].SHA)
	assert.Equal(t, "Jane", entries[0].Author)
	assert.Equal(t, "fix the thing", entries[0].Message)
	assert.Equal(t, "widget", entries[0].Repo)

	// Pipes in the subject survive the capped split.
	assert.Equal(t, "subject|with|pipes", entries[1].Message)
}

func TestParseLogAppliesWindow(t *testing.T) {
	start := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	f := &URLClone{
		repoName: "widget",
		window:   model.FetchWindow{StartDate: &start},
	}
	out := "abc123|Jane|2025-03-14T10:00:00+00:00|too old\n" +
		"def456|Jane|2025-03-16T10:00:00+00:00|in range\n"

	entries := f.parseLog(out)
	require.Len(t, entries, 1)
	assert.Equal(t, "in range", entries[0].Message)
}

func TestURLCloneCapabilities(t *testing.T) {
	f := &URLClone{}
	assert.True(t, f.Supports(CapCommits))
	assert.True(t, f.Supports(CapAuthors))
	assert.False(t, f.Supports(CapPullRequests))
	assert.False(t, f.Supports(CapReleases))
	assert.False(t, f.Supports(CapCreatePullRequest))
}

func TestURLCloneCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	f := &URLClone{dir: dir}
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
}
