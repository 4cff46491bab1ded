package middleware

import (
	"context"

	"github.com/otcheredev/cabinet-bootstrap/internal/models"
)

type contextKey string

const SessionKey contextKey = "session"

// WithSession stores the authenticated session in ctx
func WithSession(ctx context.Context, s models.Session) context.Context {
	return context.WithValue(ctx, SessionKey, s)
}

// GetSession extracts the authenticated session from context
func GetSession(ctx context.Context) (models.Session, bool) {
	s, ok := ctx.Value(SessionKey).(models.Session)
	return s, ok
}
