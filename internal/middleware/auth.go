package middleware

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/otcheredev/cabinet-bootstrap/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	errMissingToken  = errors.New("missing bearer token")
	errInvalidToken  = errors.New("invalid access token")
	errInvalidClaims = errors.New("invalid claims")
)

// Auth verifies the HS256 access tokens issued by the auth provider
type Auth struct {
	secret []byte
	issuer string
}

// NewAuth creates the session middleware. An empty issuer is not checked.
func NewAuth(secret, issuer string) *Auth {
	return &Auth{secret: []byte(secret), issuer: issuer}
}

// RequireSession rejects requests without a valid access token and stores
// the session in the request context
func (a *Auth) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := a.Authenticate(r)
		if err != nil {
			log.Warn().Err(err).Str("path", r.URL.Path).Msg("Unauthenticated request")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
	})
}

// Authenticate extracts the session from the Authorization header
func (a *Auth) Authenticate(r *http.Request) (models.Session, error) {
	token, ok := bearer(r)
	if !ok {
		return models.Session{}, errMissingToken
	}
	return a.ParseToken(token)
}

// ParseToken validates a raw access token
func (a *Auth) ParseToken(token string) (models.Session, error) {
	if len(a.secret) == 0 {
		return models.Session{}, fmt.Errorf("JWT secret not configured")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &models.SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return models.Session{}, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	if !parsed.Valid {
		return models.Session{}, errInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return models.Session{}, fmt.Errorf("%w: subject is not a user id", errInvalidClaims)
	}

	return models.Session{
		UserID:   userID,
		Email:    claims.Email,
		Metadata: claims.UserMetadata,
	}, nil
}

// ServiceKey guards the privileged server functions with a shared key
func ServiceKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearer(r)
			if !ok || key == "" || subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
				log.Warn().Str("path", r.URL.Path).Msg("Rejected privileged call")
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearer(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}
