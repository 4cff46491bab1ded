// Package failure maps backend errors onto a closed set of kinds so callers can
// decide between falling back to the privileged channel and surfacing the error.
package failure

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Kind is the classified category of a backend failure.
type Kind string

const (
	KindPolicyRecursion  Kind = "policy_recursion"
	KindPermissionDenied Kind = "permission_denied"
	KindDuplicateKey     Kind = "duplicate_key"
	KindResourceMissing  Kind = "resource_missing"
	KindTimeout          Kind = "timeout"
	KindUnclassified     Kind = "unclassified"
)

// Classification is the result of Classify.
type Classification struct {
	Kind                      Kind
	RetryViaPrivilegedChannel bool
	Code                      string
	Signature                 string
}

// BackendError is an error reported by a remote backend (server function,
// storage API, auth admin API) together with its code.
type BackendError struct {
	Status  int
	Code    string
	Message string
}

func (e *BackendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %s: %s", e.Code, e.Message)
	}
	if e.Status != 0 {
		return fmt.Sprintf("backend error (status %d): %s", e.Status, e.Message)
	}
	return "backend error: " + e.Message
}

const (
	sqlStateRecursion        = "42P17"
	sqlStateInsufficientPriv = "42501"
	sqlStateUniqueViolation  = "23505"
	sqlStateUndefinedFunc    = "42883"
	sqlStateQueryCanceled    = "57014"
)

var codeKinds = map[string]Kind{
	sqlStateRecursion:        KindPolicyRecursion,
	sqlStateInsufficientPriv: KindPermissionDenied,
	sqlStateUniqueViolation:  KindDuplicateKey,
	sqlStateUndefinedFunc:    KindResourceMissing,
	sqlStateQueryCanceled:    KindTimeout,
	"BUCKET_NOT_FOUND":       KindResourceMissing,
	"NoSuchBucket":           KindResourceMissing,
}

// Checked in order; the first matching pattern wins.
var messagePatterns = []struct {
	kind     Kind
	patterns []string
}{
	{KindPolicyRecursion, []string{"infinite recursion"}},
	{KindDuplicateKey, []string{"duplicate key", "unique constraint", "already exists"}},
	{KindPermissionDenied, []string{"permission denied", "row-level security", "not authorized", "insufficient privilege"}},
	{KindResourceMissing, []string{"bucket not found", "bucket does not exist", "no such bucket"}},
	{KindTimeout, []string{"statement timeout", "deadline exceeded", "timed out"}},
}

// Classify inspects err and returns its classification. It is pure: the same
// error text and code always produce the same result.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: KindUnclassified}
	}

	kind, code := classify(err)
	return Classification{
		Kind:                      kind,
		RetryViaPrivilegedChannel: kind == KindPolicyRecursion,
		Code:                      code,
		Signature:                 signature(kind, code, err.Error()),
	}
}

func classify(err error) (Kind, string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout, ""
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return KindDuplicateKey, sqlStateUniqueViolation
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if kind, ok := codeKinds[pgErr.Code]; ok {
			return kind, pgErr.Code
		}
		if kind := matchMessage(pgErr.Message); kind != KindUnclassified {
			return kind, pgErr.Code
		}
		return KindUnclassified, pgErr.Code
	}

	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		if kind, ok := codeKinds[backendErr.Code]; ok {
			return kind, backendErr.Code
		}
		if kind := matchMessage(backendErr.Message); kind != KindUnclassified {
			return kind, backendErr.Code
		}
	}

	return matchMessage(err.Error()), ""
}

// ClassifyMessage classifies a raw error message and optional code as
// reported by a client.
func ClassifyMessage(code, message string) Classification {
	return Classify(&BackendError{Code: code, Message: message})
}

func matchMessage(msg string) Kind {
	lower := strings.ToLower(msg)
	for _, group := range messagePatterns {
		for _, p := range group.patterns {
			if strings.Contains(lower, p) {
				return group.kind
			}
		}
	}
	return KindUnclassified
}

var (
	uuidPattern  = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	digitPattern = regexp.MustCompile(`[0-9]+`)
	spacePattern = regexp.MustCompile(`\s+`)
)

const maxSignatureLen = 80

// signature builds a stable key for deduplicating notifications. Identifiers
// and numbers are stripped so the same failure for different rows collapses.
func signature(kind Kind, code, msg string) string {
	if code != "" {
		return string(kind) + ":" + code
	}
	norm := strings.ToLower(msg)
	norm = uuidPattern.ReplaceAllString(norm, "")
	norm = digitPattern.ReplaceAllString(norm, "")
	norm = strings.TrimSpace(spacePattern.ReplaceAllString(norm, " "))
	if len(norm) > maxSignatureLen {
		norm = norm[:maxSignatureLen]
	}
	return string(kind) + ":" + norm
}

// UserMessage returns the text shown to the end user for this classification.
func (c Classification) UserMessage() string {
	switch c.Kind {
	case KindPolicyRecursion, KindPermissionDenied:
		return "A permissions problem occurred. Please refresh the page or sign in again."
	case KindResourceMissing:
		return "A storage resource is missing. Please contact your administrator."
	case KindTimeout:
		return "The server took too long to respond. Please refresh the page."
	case KindDuplicateKey:
		return "This record already exists."
	default:
		return "An unexpected error occurred. Please refresh the page."
	}
}

// IsDuplicate reports whether err is a uniqueness violation.
func IsDuplicate(err error) bool {
	return err != nil && Classify(err).Kind == KindDuplicateKey
}

// RetryViaPrivileged reports whether err should be retried through the
// privileged channel.
func RetryViaPrivileged(err error) bool {
	return err != nil && Classify(err).RetryViaPrivilegedChannel
}
