package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"fred.bloggs@gmail.com", "fr***@gm***.com"},
		{"fred@bloggs.com", "fr***@bl***.com"},
		{"fred-bloggington.email+1@subdomain.bloggs.com.net", "fr***@su***.net"},
		{"alice.bloggs@gmail.co.uk", "al***@gm***.uk"},
		{"a@b.io", "a***@b***.io"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			masked, err := MaskEmail(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, masked)
		})
	}
}

func TestMaskEmailRejectsMalformed(t *testing.T) {
	for _, input := range []string{"fred@bloggs.com@gmail.com", "@", "", "fred@tld", "@bloggs.com", "fred@", "fred@bloggs."} {
		t.Run(input, func(t *testing.T) {
			_, err := MaskEmail(input)
			assert.Error(t, err)
		})
	}
}

func TestParseIssueState(t *testing.T) {
	for _, s := range []string{"open", "closed", "completed"} {
		state, err := ParseIssueState(s)
		require.NoError(t, err)
		assert.Equal(t, IssueState(s), state)
	}

	_, err := ParseIssueState("reopened")
	assert.Error(t, err)
	_, err = ParseIssueState("")
	assert.Error(t, err)
}

func TestDeriveIssueState(t *testing.T) {
	tests := []struct {
		state, reason string
		expected      IssueState
	}{
		{"open", "", IssueStateOpen},
		{"open", "reopened", IssueStateOpen},
		{"closed", "not_planned", IssueStateClosed},
		{"closed", "", IssueStateClosed},
		{"closed", "completed", IssueStateCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.state+"/"+tt.reason, func(t *testing.T) {
			got, err := DeriveIssueState(tt.state, tt.reason)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	_, err := DeriveIssueState("locked", "")
	assert.Error(t, err)
}

func TestConsent(t *testing.T) {
	first := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	later := first.Add(48 * time.Hour)

	t.Run("FromFlags", func(t *testing.T) {
		c := ConsentFromFlags(ConsentFlags{News: true, Students: true}, first)
		require.NotNil(t, c.News)
		assert.Equal(t, first, *c.News)
		assert.Nil(t, c.Network)
		assert.Nil(t, c.Members)
		assert.Equal(t, ConsentFlags{News: true, Students: true}, c.Flags())
	})

	t.Run("MergeKeepsOriginalGrantTime", func(t *testing.T) {
		c := ConsentFromFlags(ConsentFlags{News: true}, first)
		merged := c.Merge(ConsentFlags{News: true, Network: true}, later)
		assert.Equal(t, first, *merged.News)
		assert.Equal(t, later, *merged.Network)
	})

	t.Run("MergeWithdraws", func(t *testing.T) {
		c := ConsentFromFlags(ConsentFlags{News: true, Members: true}, first)
		merged := c.Merge(ConsentFlags{Members: true}, later)
		assert.Nil(t, merged.News)
		assert.Equal(t, first, *merged.Members)
	})

	t.Run("NilConsentHasNoFlags", func(t *testing.T) {
		var c *Consent
		assert.Equal(t, ConsentFlags{}, c.Flags())
	})
}

func TestMemberHelpers(t *testing.T) {
	anon := uuid.MustParse("c0286cf1-15cc-4e43-93de-aaca592e447b")
	year := 2011
	m := Member{ID: "fred_bloggs", Name: "Fred Bloggs", Email: "fred@bloggs.test", YearOfGraduation: &year, AnonymousIDs: []uuid.UUID{anon}}

	assert.False(t, m.EmailVerified())
	assert.True(t, m.HasAnonymousID(anon))
	assert.False(t, m.HasAnonymousID(uuid.New()))

	s := m.ToSubmitter()
	assert.Equal(t, "fred_bloggs", s.ID)
	assert.True(t, s.Verified)
	assert.Equal(t, "Fred Bloggs", s.Name)
	assert.Equal(t, &year, s.YearOfGraduation)
	require.NotNil(t, s.Email)
	assert.Equal(t, "fred@bloggs.test", *s.Email)
}
