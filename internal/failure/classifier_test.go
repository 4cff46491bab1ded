package failure_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/otcheredev/cabinet-bootstrap/internal/failure"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      failure.Kind
		privilege bool
	}{
		{
			name:      "pg recursion code",
			err:       &pgconn.PgError{Code: "42P17", Message: `infinite recursion detected in policy for relation "team_members"`},
			kind:      failure.KindPolicyRecursion,
			privilege: true,
		},
		{
			name:      "wrapped recursion message",
			err:       fmt.Errorf("failed to insert: %w", errors.New(`infinite recursion detected in policy for relation "cabinets"`)),
			kind:      failure.KindPolicyRecursion,
			privilege: true,
		},
		{
			name: "pg insufficient privilege",
			err:  &pgconn.PgError{Code: "42501", Message: "permission denied for table cabinets"},
			kind: failure.KindPermissionDenied,
		},
		{
			name: "row level security message",
			err:  errors.New(`new row violates row-level security policy for table "team_members"`),
			kind: failure.KindPermissionDenied,
		},
		{
			name: "pg unique violation",
			err:  fmt.Errorf("failed to create: %w", &pgconn.PgError{Code: "23505"}),
			kind: failure.KindDuplicateKey,
		},
		{
			name: "gorm duplicated key",
			err:  gorm.ErrDuplicatedKey,
			kind: failure.KindDuplicateKey,
		},
		{
			name: "bucket missing",
			err:  &failure.BackendError{Status: 404, Message: "Bucket not found"},
			kind: failure.KindResourceMissing,
		},
		{
			name: "deadline",
			err:  fmt.Errorf("call: %w", context.DeadlineExceeded),
			kind: failure.KindTimeout,
		},
		{
			name: "unknown",
			err:  errors.New("connection reset by peer"),
			kind: failure.KindUnclassified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := failure.Classify(tt.err)
			assert.Equal(t, tt.kind, c.Kind)
			assert.Equal(t, tt.privilege, c.RetryViaPrivilegedChannel)
			assert.NotEmpty(t, c.Signature)
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	a := failure.Classify(errors.New("infinite recursion detected in policy"))
	b := failure.Classify(errors.New("infinite recursion detected in policy"))
	assert.Equal(t, a, b)
}

func TestClassify_SignatureStripsIdentifiers(t *testing.T) {
	a := failure.ClassifyMessage("", "row 12 for user 1b4e28ba-2fa1-11d2-883f-0016d3cca427 failed")
	b := failure.ClassifyMessage("", "row 99 for user 6fa459ea-ee8a-3ca4-894e-db77e160355e failed")
	assert.Equal(t, a.Signature, b.Signature)
}

func TestClassify_Nil(t *testing.T) {
	assert.Equal(t, failure.KindUnclassified, failure.Classify(nil).Kind)
	assert.False(t, failure.IsDuplicate(nil))
	assert.False(t, failure.RetryViaPrivileged(nil))
}

func TestUserMessage(t *testing.T) {
	msg := failure.ClassifyMessage("42P17", "").UserMessage()
	assert.Contains(t, msg, "refresh")
	assert.Contains(t, failure.ClassifyMessage("", "Bucket not found").UserMessage(), "storage")
}
