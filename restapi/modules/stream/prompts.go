package stream

import (
	"fmt"
	"strings"
)

// Modes a websocket connection can be opened in.
const (
	ModeRecap       = "recap"
	ModeRelease     = "release"
	ModePullRequest = "pull_request"
)

const (
	recapSystem = "You are a concise assistant that writes activity recaps " +
		"for software developers. You receive a chronological list of " +
		"commits, pull requests and issues. Group related work, keep the " +
		"original wording of ticket titles, and never invent activity that " +
		"is not in the input."

	releaseSystem = "You are an assistant that writes release notes from a " +
		"list of changes. Organize the notes by theme (features, fixes, " +
		"maintenance) and keep every item traceable to an input line."

	pullRequestSystem = "You are an assistant that writes pull request " +
		"descriptions from a list of commits. Summarize the intent of the " +
		"change first, then the notable details. Do not list commits " +
		"verbatim."
)

// ValidMode reports whether mode names a known prompt family.
func ValidMode(mode string) bool {
	switch mode {
	case ModeRecap, ModeRelease, ModePullRequest:
		return true
	}
	return false
}

// buildPrompt assembles the system and user messages for one streaming
// request.
func buildPrompt(mode string, req StreamRequest) (messages, system []string) {
	switch mode {
	case ModeRelease:
		system = []string{releaseSystem}
		messages = []string{fmt.Sprintf(
			"Write release notes, at most %d bullet points, from these changes:\n\n%s",
			req.n(), req.content(mode))}
	case ModePullRequest:
		system = []string{pullRequestSystem}
		var b strings.Builder
		fmt.Fprintf(&b, "Write a pull request description, at most %d paragraphs, from these commits:\n\n%s",
			req.n(), req.content(mode))
		if req.Src != "" && req.Target != "" {
			fmt.Fprintf(&b, "\n\nThe branch %s is being merged into %s.", req.Src, req.Target)
		}
		messages = []string{b.String()}
	default:
		system = []string{recapSystem}
		messages = []string{fmt.Sprintf(
			"Write a recap of this activity, at most %d bullet points:\n\n%s",
			req.n(), req.content(mode))}
	}
	return messages, system
}
