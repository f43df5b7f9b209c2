package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeChecks(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"validation", NewValidation("bad"), IsValidation},
		{"not found", NewNotFound("missing"), IsNotFound},
		{"already exists", NewAlreadyExists("taken"), IsAlreadyExists},
		{"unauthorized", NewUnauthorized("no token"), IsUnauthorized},
		{"forbidden", NewForbidden("not yours"), IsForbidden},
		{"storage unavailable", NewStorageUnavailable("down", context.DeadlineExceeded), IsStorageUnavailable},
		{"inconsistent", NewInconsistent("dupe"), IsInconsistent},
		{"reconciliation", NewReconciliationIntegrity("no delete"), IsReconciliationIntegrity},
		{"internal", NewInternal("boom", nil), IsInternal},
		{"email unverified", NewEmailUnverified("not verified", nil), IsEmailUnverified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.True(t, tt.check(fmt.Errorf("outer: %w", tt.err)), "wrapped error keeps its type")
			assert.False(t, tt.check(errors.New("plain")))
		})
	}
}

func TestWrap(t *testing.T) {
	t.Run("PreservesAppErrorType", func(t *testing.T) {
		err := Wrap(NewNotFound("member fred"), "read profile")
		assert.True(t, IsNotFound(err))
		assert.Contains(t, err.Error(), "read profile: member fred")
	})

	t.Run("ForeignErrorBecomesInternal", func(t *testing.T) {
		cause := errors.New("socket closed")
		err := Wrap(cause, "query")
		assert.True(t, IsInternal(err))
		assert.ErrorIs(t, err, cause)
	})

	t.Run("Nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, "nothing"))
	})
}

func TestRetryableAndFatal(t *testing.T) {
	assert.True(t, IsRetryable(NewStorageUnavailable("throttled", nil)))
	assert.True(t, IsRetryable(NewUnavailable("github down", nil)))
	assert.False(t, IsRetryable(NewInconsistent("dupe")))
	assert.False(t, IsRetryable(NewNotFound("x")))

	assert.True(t, IsFatal(NewInconsistent("dupe")))
	assert.True(t, IsFatal(NewReconciliationIntegrity("gone")))
	assert.False(t, IsFatal(NewStorageUnavailable("throttled", nil)))
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, ErrorTypeAlreadyExists, TypeOf(NewAlreadyExists("x")))
	assert.Equal(t, ErrorTypeInternal, TypeOf(errors.New("x")))
}
