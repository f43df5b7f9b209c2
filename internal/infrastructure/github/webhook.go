package github

import (
	"errors"
	"fmt"
	"strings"

	gh "github.com/google/go-github/v62/github"
)

const (
	SignatureHeader = "X-Hub-Signature-256"
	signaturePrefix = "sha256="
)

var (
	ErrMissingSignature = errors.New("missing signature header")
	ErrBadSignature     = errors.New("signature verification failed")
)

// VerifySignature checks the sha256 HMAC GitHub computes over the raw body.
// An empty secret rejects everything.
func VerifySignature(signature string, body, secret []byte) error {
	if signature == "" {
		return ErrMissingSignature
	}
	if len(secret) == 0 || !strings.HasPrefix(signature, signaturePrefix) {
		return ErrBadSignature
	}
	if err := gh.ValidateSignature(signature, body, secret); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}

// IssueChange is an issues webhook reduced to what the submission store
// needs.
type IssueChange struct {
	Action string
	Owner  string
	Repo   string
	Issue  *gh.Issue
}

// ParseIssueChange decodes a webhook. ok is false for events other than
// issues, which callers acknowledge and ignore.
func ParseIssueChange(eventType string, body []byte) (change IssueChange, ok bool, err error) {
	if eventType != "issues" {
		return IssueChange{}, false, nil
	}
	event, err := gh.ParseWebHook(eventType, body)
	if err != nil {
		return IssueChange{}, false, err
	}
	issues, isIssues := event.(*gh.IssuesEvent)
	if !isIssues || issues.Issue == nil {
		return IssueChange{}, false, errors.New("issues event without an issue")
	}
	return IssueChange{
		Action: issues.GetAction(),
		Owner:  issues.GetRepo().GetOwner().GetLogin(),
		Repo:   issues.GetRepo().GetName(),
		Issue:  issues.Issue,
	}, true, nil
}
