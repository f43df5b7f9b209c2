package repository

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/google/uuid"

	"github.com/newtheatre/lumina/internal/domain"
	"github.com/newtheatre/lumina/internal/infrastructure/persistence"
	appErrors "github.com/newtheatre/lumina/pkg/errors"
)

// Stored timestamps are RFC 3339 with nanoseconds, always in UTC.
const timestampLayout = time.RFC3339Nano

type consentRecord struct {
	News     string `dynamodbav:"consent_news,omitempty"`
	Network  string `dynamodbav:"consent_network,omitempty"`
	Members  string `dynamodbav:"consent_members,omitempty"`
	Students string `dynamodbav:"consent_students,omitempty"`
}

// memberRecord is the DynamoDB item structure for a member profile.
type memberRecord struct {
	PK               string         `dynamodbav:"pk"`
	SK               string         `dynamodbav:"sk"`
	Name             string         `dynamodbav:"name"`
	Email            string         `dynamodbav:"email"`
	Phone            *string        `dynamodbav:"phone,omitempty"`
	YearOfGraduation *int           `dynamodbav:"year_of_graduation,omitempty"`
	CreatedAt        string         `dynamodbav:"created_at,omitempty"`
	EmailVerifiedAt  string         `dynamodbav:"email_verified_at,omitempty"`
	Consent          *consentRecord `dynamodbav:"consent,omitempty"`
	AnonymousIDs     []string       `dynamodbav:"anonymous_ids,omitempty"`
	IsAdmin          bool           `dynamodbav:"is_admin"`
}

type submitterRecord struct {
	ID               string  `dynamodbav:"id"`
	Verified         bool    `dynamodbav:"verified"`
	Name             string  `dynamodbav:"name"`
	YearOfGraduation *int    `dynamodbav:"year_of_graduation,omitempty"`
	Email            *string `dynamodbav:"email,omitempty"`
}

type issueRecord struct {
	Number    int    `dynamodbav:"number"`
	State     string `dynamodbav:"state"`
	Title     string `dynamodbav:"title"`
	CreatedAt string `dynamodbav:"created_at"`
	UpdatedAt string `dynamodbav:"updated_at"`
	ClosedAt  string `dynamodbav:"closed_at,omitempty"`
	Comments  int    `dynamodbav:"comments"`
}

// submissionRecord is the DynamoDB item structure for a submission.
type submissionRecord struct {
	PK          string          `dynamodbav:"pk"`
	SK          string          `dynamodbav:"sk"`
	URL         string          `dynamodbav:"url"`
	TargetType  string          `dynamodbav:"target_type"`
	TargetID    string          `dynamodbav:"target_id"`
	TargetName  string          `dynamodbav:"target_name"`
	CreatedAt   string          `dynamodbav:"created_at"`
	Subject     *string         `dynamodbav:"subject,omitempty"`
	Message     *string         `dynamodbav:"message,omitempty"`
	Submitter   submitterRecord `dynamodbav:"submitter"`
	GitHubIssue issueRecord     `dynamodbav:"github_issue"`
}

const githubIssueAttribute = "github_issue"

var (
	requiredMemberAttributes     = []string{persistence.PartitionKey, persistence.SortKey, "name", "email"}
	requiredSubmissionAttributes = []string{
		persistence.PartitionKey, persistence.SortKey, "url",
		persistence.TargetTypeAttribute, persistence.TargetIDAttribute, "target_name",
		"created_at", "submitter", githubIssueAttribute,
	}
)

func memberKey(id string) persistence.Key {
	return persistence.Key{PartitionKey: id, SortKey: persistence.SortKeyProfile}
}

func submissionSortKey(number int) string {
	return persistence.SortKeySubmissionPrefix + strconv.Itoa(number)
}

func submissionKey(ownerID string, number int) persistence.Key {
	return persistence.Key{PartitionKey: ownerID, SortKey: submissionSortKey(number)}
}

// parseSubmissionSortKey accepts only the canonical form submission/<n>, n > 0.
func parseSubmissionSortKey(sk string) (int, error) {
	digits, ok := strings.CutPrefix(sk, persistence.SortKeySubmissionPrefix)
	if !ok {
		return 0, fmt.Errorf("sort key %q is not a submission key", sk)
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 || strconv.Itoa(n) != digits {
		return 0, fmt.Errorf("sort key %q has no valid issue number", sk)
	}
	return n, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// parseTime rejects timestamps without a zone offset.
func parseTime(field, s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", field, err)
	}
	return t.UTC(), nil
}

func parseOptionalTime(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseTime(field, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func requireAttributes(item persistence.Item, names []string) error {
	var missing []string
	for _, name := range names {
		if _, ok := item[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required attributes %s", strings.Join(missing, ", "))
	}
	return nil
}

func codecError(what string, key persistence.Key, err error) error {
	return appErrors.NewInternal(fmt.Sprintf("%s %s", what, key), err)
}

func encodeMember(m domain.Member) (persistence.Item, error) {
	rec := memberRecord{
		PK:               m.ID,
		SK:               persistence.SortKeyProfile,
		Name:             m.Name,
		Email:            m.Email,
		Phone:            m.Phone,
		YearOfGraduation: m.YearOfGraduation,
		CreatedAt:        formatOptionalTime(m.CreatedAt),
		EmailVerifiedAt:  formatOptionalTime(m.EmailVerifiedAt),
		IsAdmin:          m.IsAdmin,
	}
	if m.Consent != nil {
		rec.Consent = &consentRecord{
			News:     formatOptionalTime(m.Consent.News),
			Network:  formatOptionalTime(m.Consent.Network),
			Members:  formatOptionalTime(m.Consent.Members),
			Students: formatOptionalTime(m.Consent.Students),
		}
	}
	// An empty list is stored as absent and reads back as nil.
	for _, id := range m.AnonymousIDs {
		rec.AnonymousIDs = append(rec.AnonymousIDs, id.String())
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, codecError("encode member", memberKey(m.ID), err)
	}
	return item, nil
}

func decodeMember(item persistence.Item) (domain.Member, error) {
	key := persistence.KeyOf(item)
	if err := requireAttributes(item, requiredMemberAttributes); err != nil {
		return domain.Member{}, codecError("decode member", key, err)
	}
	if key.SortKey != persistence.SortKeyProfile {
		return domain.Member{}, codecError("decode member", key, fmt.Errorf("sort key must be %q", persistence.SortKeyProfile))
	}

	var rec memberRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return domain.Member{}, codecError("decode member", key, err)
	}

	m := domain.Member{
		ID:               rec.PK,
		Name:             rec.Name,
		Email:            rec.Email,
		Phone:            rec.Phone,
		YearOfGraduation: rec.YearOfGraduation,
		IsAdmin:          rec.IsAdmin,
	}

	var err error
	if m.CreatedAt, err = parseOptionalTime("created_at", rec.CreatedAt); err != nil {
		return domain.Member{}, codecError("decode member", key, err)
	}
	if m.EmailVerifiedAt, err = parseOptionalTime("email_verified_at", rec.EmailVerifiedAt); err != nil {
		return domain.Member{}, codecError("decode member", key, err)
	}
	if rec.Consent != nil {
		if m.Consent, err = decodeConsent(rec.Consent); err != nil {
			return domain.Member{}, codecError("decode member", key, err)
		}
	}
	for _, raw := range rec.AnonymousIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return domain.Member{}, codecError("decode member", key, fmt.Errorf("anonymous_ids: %w", err))
		}
		m.AnonymousIDs = append(m.AnonymousIDs, id)
	}
	return m, nil
}

func decodeConsent(rec *consentRecord) (*domain.Consent, error) {
	var (
		c   domain.Consent
		err error
	)
	if c.News, err = parseOptionalTime("consent_news", rec.News); err != nil {
		return nil, err
	}
	if c.Network, err = parseOptionalTime("consent_network", rec.Network); err != nil {
		return nil, err
	}
	if c.Members, err = parseOptionalTime("consent_members", rec.Members); err != nil {
		return nil, err
	}
	if c.Students, err = parseOptionalTime("consent_students", rec.Students); err != nil {
		return nil, err
	}
	return &c, nil
}

func encodeIssue(issue domain.IssueDetail) issueRecord {
	return issueRecord{
		Number:    issue.Number,
		State:     string(issue.State),
		Title:     issue.Title,
		CreatedAt: formatTime(issue.CreatedAt),
		UpdatedAt: formatTime(issue.UpdatedAt),
		ClosedAt:  formatOptionalTime(issue.ClosedAt),
		Comments:  issue.Comments,
	}
}

func decodeIssue(rec issueRecord) (domain.IssueDetail, error) {
	state, err := domain.ParseIssueState(rec.State)
	if err != nil {
		return domain.IssueDetail{}, fmt.Errorf("github_issue.state: %w", err)
	}
	issue := domain.IssueDetail{
		Number:   rec.Number,
		State:    state,
		Title:    rec.Title,
		Comments: rec.Comments,
	}
	if issue.CreatedAt, err = parseTime("github_issue.created_at", rec.CreatedAt); err != nil {
		return domain.IssueDetail{}, err
	}
	if issue.UpdatedAt, err = parseTime("github_issue.updated_at", rec.UpdatedAt); err != nil {
		return domain.IssueDetail{}, err
	}
	if issue.ClosedAt, err = parseOptionalTime("github_issue.closed_at", rec.ClosedAt); err != nil {
		return domain.IssueDetail{}, err
	}
	return issue, nil
}

func encodeSubmission(s domain.Submission) (persistence.Item, error) {
	key := submissionKey(s.OwnerID, s.Number)
	if _, err := domain.ParseIssueState(string(s.Issue.State)); err != nil {
		return nil, codecError("encode submission", key, err)
	}

	rec := submissionRecord{
		PK:         key.PartitionKey,
		SK:         key.SortKey,
		URL:        s.URL,
		TargetType: s.Target.Type,
		TargetID:   s.Target.ID,
		TargetName: s.Target.Name,
		CreatedAt:  formatTime(s.CreatedAt),
		Subject:    s.Subject,
		Message:    s.Message,
		Submitter: submitterRecord{
			ID:               s.Submitter.ID,
			Verified:         s.Submitter.Verified,
			Name:             s.Submitter.Name,
			YearOfGraduation: s.Submitter.YearOfGraduation,
			Email:            s.Submitter.Email,
		},
		GitHubIssue: encodeIssue(s.Issue),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, codecError("encode submission", key, err)
	}
	return item, nil
}

func decodeSubmission(item persistence.Item) (domain.Submission, error) {
	key := persistence.KeyOf(item)
	if err := requireAttributes(item, requiredSubmissionAttributes); err != nil {
		return domain.Submission{}, codecError("decode submission", key, err)
	}
	number, err := parseSubmissionSortKey(key.SortKey)
	if err != nil {
		return domain.Submission{}, codecError("decode submission", key, err)
	}

	var rec submissionRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return domain.Submission{}, codecError("decode submission", key, err)
	}

	createdAt, err := parseTime("created_at", rec.CreatedAt)
	if err != nil {
		return domain.Submission{}, codecError("decode submission", key, err)
	}
	issue, err := decodeIssue(rec.GitHubIssue)
	if err != nil {
		return domain.Submission{}, codecError("decode submission", key, err)
	}

	return domain.Submission{
		OwnerID: rec.PK,
		Number:  number,
		Target: domain.Target{
			Type: rec.TargetType,
			ID:   rec.TargetID,
			Name: rec.TargetName,
		},
		URL:       rec.URL,
		Subject:   rec.Subject,
		Message:   rec.Message,
		CreatedAt: createdAt,
		Submitter: domain.Submitter{
			ID:               rec.Submitter.ID,
			Verified:         rec.Submitter.Verified,
			Name:             rec.Submitter.Name,
			YearOfGraduation: rec.Submitter.YearOfGraduation,
			Email:            rec.Submitter.Email,
		},
		Issue: issue,
	}, nil
}

func decodeSubmissions(items []persistence.Item) ([]domain.Submission, error) {
	subs := make([]domain.Submission, 0, len(items))
	for _, item := range items {
		s, err := decodeSubmission(item)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, nil
}
