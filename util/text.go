package util

import (
	"fmt"
	"strings"

	"github.com/gitrecap/backend/model"
)

// EntriesToText renders a timeline as the plain text handed to the language
// model: entries grouped under one day header per calendar day, one line per
// entry with its repository and kind annotation. SHAs and full timestamps are
// deliberately absent; they cost tokens and add nothing to a recap.
func EntriesToText(entries []model.ActivityEntry) string {
	var b strings.Builder
	currentDay := ""
	for _, e := range entries {
		day := e.Timestamp.Format("2006-01-02")
		if day != currentDay {
			if currentDay != "" {
				b.WriteString("\n")
			}
			b.WriteString(day + ":\n")
			currentDay = day
		}
		b.WriteString(entryLine(e))
	}
	return b.String()
}

func entryLine(e model.ActivityEntry) string {
	message := strings.TrimSpace(e.Message)
	// Multi-line commit bodies collapse to the subject line.
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		message = strings.TrimSpace(message[:i])
	}

	switch e.Kind {
	case model.KindPullRequest:
		return fmt.Sprintf("- [%s] PR #%d: %s\n", e.Repo, e.PRNumber, message)
	case model.KindCommitFromPR:
		return fmt.Sprintf("- [%s] %s (PR #%d: %s)\n", e.Repo, message, e.PRNumber, e.PRTitle)
	case model.KindIssue:
		return fmt.Sprintf("- [%s] issue: %s\n", e.Repo, message)
	default:
		return fmt.Sprintf("- [%s] %s\n", e.Repo, message)
	}
}
