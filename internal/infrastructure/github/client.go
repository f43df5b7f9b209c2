// Package github opens issues in the content repository for submissions and
// reads the webhooks GitHub sends back when those issues change.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v62/github"
	"go.uber.org/zap"

	"github.com/newtheatre/lumina/internal/domain"
	appErrors "github.com/newtheatre/lumina/pkg/errors"
)

type Config struct {
	Token   string
	Owner   string
	Repo    string
	Timeout time.Duration
	// BaseURL points the client at another API root, e.g. a test server.
	BaseURL string
}

// Client talks to the content repository.
type Client struct {
	gh      *gh.Client
	owner   string
	repo    string
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient builds a client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, errors.New("github owner and repo are required")
	}
	client := gh.NewClient(httpClient)
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}
	if cfg.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid github base url: %w", err)
		}
		client.BaseURL = base
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		gh:      client,
		owner:   cfg.Owner,
		repo:    cfg.Repo,
		timeout: timeout,
		logger:  logger.Named("github"),
	}, nil
}

// CreateIssue opens an issue and returns its snapshot.
func (c *Client) CreateIssue(ctx context.Context, title, body string) (domain.IssueDetail, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	issue, _, err := c.gh.Issues.Create(ctx, c.owner, c.repo, &gh.IssueRequest{
		Title: gh.String(title),
		Body:  gh.String(body),
	})
	if err != nil {
		return domain.IssueDetail{}, c.translate("create issue", err)
	}

	detail, err := IssueDetailFrom(issue)
	if err != nil {
		return domain.IssueDetail{}, appErrors.NewInternal("github returned an unusable issue", err)
	}
	c.logger.Info("Issue created", zap.Int("number", detail.Number))
	return detail, nil
}

// Ping fetches the content repository, proving the token can see it.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if _, _, err := c.gh.Repositories.Get(ctx, c.owner, c.repo); err != nil {
		return c.translate("get repository", err)
	}
	return nil
}

// Owns reports whether a webhook's repository is the content repository.
func (c *Client) Owns(owner, repo string) bool {
	return strings.EqualFold(owner, c.owner) && strings.EqualFold(repo, c.repo)
}

// IssueURL links to an issue in the content repository.
func (c *Client) IssueURL(number int) string {
	return fmt.Sprintf("https://github.com/%s/%s/issues/%d", c.owner, c.repo, number)
}

// FileURL links to a file on the default branch.
func (c *Client) FileURL(path string) string {
	return fmt.Sprintf("https://github.com/%s/%s/blob/master/%s", c.owner, c.repo, path)
}

func (c *Client) translate(op string, err error) error {
	var (
		rateErr  *gh.RateLimitError
		abuseErr *gh.AbuseRateLimitError
		respErr  *gh.ErrorResponse
	)
	switch {
	case errors.As(err, &rateErr), errors.As(err, &abuseErr):
		c.logger.Warn("GitHub rate limited", zap.String("operation", op), zap.Error(err))
		return appErrors.NewUnavailable("github "+op+": rate limited", err)
	case errors.As(err, &respErr) && respErr.Response != nil && respErr.Response.StatusCode == http.StatusUnprocessableEntity:
		return appErrors.NewValidation("github rejected " + op + ": " + respErr.Message)
	case errors.As(err, &respErr) && respErr.Response != nil &&
		(respErr.Response.StatusCode == http.StatusUnauthorized || respErr.Response.StatusCode == http.StatusForbidden):
		c.logger.Error("GitHub credentials rejected", zap.String("operation", op), zap.Error(err))
		return appErrors.NewUnavailable("github "+op+": bad credentials", err)
	}
	c.logger.Warn("GitHub call failed", zap.String("operation", op), zap.Error(err))
	return appErrors.NewUnavailable("github "+op, err)
}

// IssueDetailFrom snapshots a GitHub issue.
func IssueDetailFrom(issue *gh.Issue) (domain.IssueDetail, error) {
	if issue == nil || issue.GetNumber() <= 0 {
		return domain.IssueDetail{}, errors.New("issue has no number")
	}
	state, err := domain.DeriveIssueState(issue.GetState(), issue.GetStateReason())
	if err != nil {
		return domain.IssueDetail{}, err
	}
	detail := domain.IssueDetail{
		Number:    issue.GetNumber(),
		State:     state,
		Title:     issue.GetTitle(),
		CreatedAt: issue.GetCreatedAt().Time.UTC(),
		UpdatedAt: issue.GetUpdatedAt().Time.UTC(),
		Comments:  issue.GetComments(),
	}
	if issue.ClosedAt != nil {
		closed := issue.ClosedAt.Time.UTC()
		detail.ClosedAt = &closed
	}
	return detail, nil
}
