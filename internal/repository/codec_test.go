package repository

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newtheatre/lumina/internal/domain"
	"github.com/newtheatre/lumina/internal/infrastructure/persistence"
	appErrors "github.com/newtheatre/lumina/pkg/errors"
)

func TestMemberRoundTrip(t *testing.T) {
	verified := fixedNow.Add(time.Hour)
	granted := fixedNow.Add(-time.Hour)

	tests := []struct {
		name   string
		member domain.Member
	}{
		{
			name: "AllOptionalsSet",
			member: domain.Member{
				ID:               "fred_bloggs",
				Name:             "Fred Bloggs",
				Email:            "fred.bloggs@gmail.com",
				Phone:            strPtr("07700 900000"),
				YearOfGraduation: intPtr(2004),
				CreatedAt:        &fixedNow,
				EmailVerifiedAt:  &verified,
				Consent:          &domain.Consent{News: &granted, Network: &granted, Members: &granted, Students: &granted},
				AnonymousIDs:     []uuid.UUID{fredAnon},
				IsAdmin:          true,
			},
		},
		{
			name:   "AllOptionalsAbsent",
			member: domain.Member{ID: "fred_bloggs", Name: "Fred Bloggs", Email: "fred.bloggs@gmail.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := encodeMember(tt.member)
			require.NoError(t, err)

			decoded, err := decodeMember(item)
			require.NoError(t, err)
			assert.Equal(t, tt.member, decoded)
		})
	}
}

func TestMemberUnsetOptionalsAreAbsent(t *testing.T) {
	item, err := encodeMember(domain.Member{ID: "fred_bloggs", Name: "Fred", Email: "f@example.com"})
	require.NoError(t, err)

	for _, name := range []string{"phone", "year_of_graduation", "created_at", "email_verified_at", "consent", "anonymous_ids"} {
		_, present := item[name]
		assert.False(t, present, "%s should be absent, not null", name)
	}
	for _, v := range item {
		_, isNull := v.(*types.AttributeValueMemberNULL)
		assert.False(t, isNull)
	}
}

func TestMemberEmptyAnonymousIDsDecodeAsNil(t *testing.T) {
	base := domain.Member{ID: "fred_bloggs", Name: "Fred", Email: "f@example.com"}
	empty := base
	empty.AnonymousIDs = []uuid.UUID{}

	item, err := encodeMember(empty)
	require.NoError(t, err)
	_, present := item["anonymous_ids"]
	assert.False(t, present, "empty anonymous_ids should be absent")

	decoded, err := decodeMember(item)
	require.NoError(t, err)
	assert.Nil(t, decoded.AnonymousIDs)

	nilItem, err := encodeMember(base)
	require.NoError(t, err)
	assert.Equal(t, nilItem, item)
	assert.Equal(t, base, decoded)
}

func TestTimestampsAreStoredInUTC(t *testing.T) {
	london := time.FixedZone("BST", 3600)
	local := time.Date(2024, 6, 1, 10, 0, 0, 0, london)

	item, err := encodeMember(domain.Member{ID: "fred_bloggs", Name: "Fred", Email: "f@example.com", CreatedAt: &local})
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01T09:00:00Z", persistence.StringAttr(item, "created_at"))

	decoded, err := decodeMember(item)
	require.NoError(t, err)
	assert.True(t, decoded.CreatedAt.Equal(local))
	assert.Equal(t, time.UTC, decoded.CreatedAt.Location())
}

func TestSubmissionRoundTrip(t *testing.T) {
	closed := fixedNow.Add(48 * time.Hour)

	full := romeoSubmission("fred_bloggs", 101)
	full.Subject = strPtr("Cast list correction")
	full.Submitter = domain.Submitter{ID: "fred_bloggs", Verified: true, Name: "Fred Bloggs", YearOfGraduation: intPtr(2004), Email: strPtr("fred.bloggs@gmail.com")}
	full.Issue.State = domain.IssueStateCompleted
	full.Issue.ClosedAt = &closed
	full.Issue.Comments = 3

	bare := romeoSubmission(domain.AnonymousOwner, 7)
	bare.Message = nil

	for name, s := range map[string]domain.Submission{"AllOptionalsSet": full, "AllOptionalsAbsent": bare} {
		t.Run(name, func(t *testing.T) {
			item, err := encodeSubmission(s)
			require.NoError(t, err)
			assert.Equal(t, persistence.Key{PartitionKey: s.OwnerID, SortKey: submissionSortKey(s.Number)}, persistence.KeyOf(item))
			assert.Equal(t, s.Target.Type, persistence.StringAttr(item, persistence.TargetTypeAttribute))
			assert.Equal(t, s.Target.ID, persistence.StringAttr(item, persistence.TargetIDAttribute))

			decoded, err := decodeSubmission(item)
			require.NoError(t, err)
			assert.Equal(t, s, decoded)
		})
	}
}

func TestDecodeRejectsMalformedItems(t *testing.T) {
	validSubmission := func() persistence.Item {
		item, err := encodeSubmission(romeoSubmission("fred_bloggs", 101))
		require.NoError(t, err)
		return item
	}
	validMember := func() persistence.Item {
		item, err := encodeMember(domain.Member{ID: "fred_bloggs", Name: "Fred", Email: "f@example.com"})
		require.NoError(t, err)
		return item
	}
	s := func(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }

	t.Run("MemberWithSubmissionSortKey", func(t *testing.T) {
		item := validMember()
		item[persistence.SortKey] = s("submission/1")
		_, err := decodeMember(item)
		assert.True(t, appErrors.IsInternal(err))
	})

	t.Run("MemberMissingEmail", func(t *testing.T) {
		item := validMember()
		delete(item, "email")
		_, err := decodeMember(item)
		assert.True(t, appErrors.IsInternal(err))
	})

	t.Run("MemberNaiveTimestamp", func(t *testing.T) {
		item := validMember()
		item["email_verified_at"] = s("2024-03-01T12:30:00")
		_, err := decodeMember(item)
		assert.True(t, appErrors.IsInternal(err))
	})

	t.Run("MemberBadAnonymousID", func(t *testing.T) {
		item := validMember()
		item["anonymous_ids"] = &types.AttributeValueMemberL{Value: []types.AttributeValue{s("not-a-uuid")}}
		_, err := decodeMember(item)
		assert.True(t, appErrors.IsInternal(err))
	})

	badSortKeys := []string{"profile", "submission/", "submission/abc", "submission/0", "submission/-3", "submission/+5", "submission/007"}
	for _, sk := range badSortKeys {
		t.Run("SubmissionSortKey_"+sk, func(t *testing.T) {
			item := validSubmission()
			item[persistence.SortKey] = s(sk)
			_, err := decodeSubmission(item)
			assert.True(t, appErrors.IsInternal(err))
		})
	}

	t.Run("SubmissionMissingTarget", func(t *testing.T) {
		item := validSubmission()
		delete(item, persistence.TargetIDAttribute)
		_, err := decodeSubmission(item)
		assert.True(t, appErrors.IsInternal(err))
	})

	t.Run("SubmissionUnknownIssueState", func(t *testing.T) {
		item := validSubmission()
		issue := item[githubIssueAttribute].(*types.AttributeValueMemberM)
		issue.Value["state"] = s("reopened")
		_, err := decodeSubmission(item)
		assert.True(t, appErrors.IsInternal(err))
	})

	t.Run("EncodeUnknownIssueState", func(t *testing.T) {
		sub := romeoSubmission("fred_bloggs", 101)
		sub.Issue.State = "merged"
		_, err := encodeSubmission(sub)
		assert.True(t, appErrors.IsInternal(err))
	})
}

func TestParseSubmissionSortKey(t *testing.T) {
	n, err := parseSubmissionSortKey("submission/101")
	require.NoError(t, err)
	assert.Equal(t, 101, n)
	assert.Equal(t, "submission/101", submissionSortKey(101))
}
