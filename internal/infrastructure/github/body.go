package github

import (
	"fmt"
	"strings"
)

// IssueBody describes a submission for the editors.
type IssueBody struct {
	TargetType string
	TargetID   string
	// TargetURL is the path on the history site, e.g. /shows/00_01/romeo_and_juliet.
	TargetURL string
	Message   string
	// Verified is true when the submitter was an authenticated member.
	Verified      bool
	SubmitterID   string
	SubmitterName string
}

// SourcePath is the file backing a target in the content repository. Only
// shows have one.
func SourcePath(targetType, targetID string) string {
	if targetType == "show" {
		return "_shows/" + targetID + ".md"
	}
	return ""
}

// Render writes the markdown table the editors triage from, then the
// message.
func (c *Client) Render(b IssueBody, historyURL string) string {
	historyURL = strings.TrimSuffix(historyURL, "/")

	source := "n/a"
	if path := SourcePath(b.TargetType, b.TargetID); path != "" {
		source = fmt.Sprintf("[%s](%s)", path, c.FileURL(path))
	}

	submitter := b.SubmitterName
	state := "Unverified"
	if b.Verified {
		state = "Member"
		submitter = fmt.Sprintf("[%s](%s/people/%s)", b.SubmitterName, historyURL, b.SubmitterID)
	}

	var sb strings.Builder
	sb.WriteString("| Name            | Value |\n")
	sb.WriteString("|-----------------|-------|\n")
	fmt.Fprintf(&sb, "| URL             | [%s](%s%s) |\n", b.TargetURL, historyURL, b.TargetURL)
	fmt.Fprintf(&sb, "| Source          | %s |\n", source)
	fmt.Fprintf(&sb, "| Submitter State | %s |\n", state)
	fmt.Fprintf(&sb, "| Submitter       | %s |\n", submitter)
	sb.WriteString("\n---\n\n")
	sb.WriteString(b.Message)
	return sb.String()
}
