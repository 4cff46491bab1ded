package identity

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/otcheredev/cabinet-bootstrap/internal/models"
)

// Resolve derives the display identity used when creating records.
// Non-empty hints win; otherwise the email local part is parsed. It never fails.
func Resolve(userID uuid.UUID, email string, hints models.NameHints) models.UserIdentity {
	id := models.UserIdentity{
		UserID: userID,
		Email:  email,
	}

	first := strings.TrimSpace(hints.FirstName)
	last := strings.TrimSpace(hints.LastName)
	if first != "" || last != "" {
		id.FirstName = first
		id.LastName = last
		return id
	}

	id.FirstName, id.LastName = FromEmail(email)
	return id
}

// FromSession resolves the identity of an authenticated session, splitting a
// full_name entry when no structured names are present.
func FromSession(s models.Session) models.UserIdentity {
	hints := models.NameHints{
		FirstName: s.Metadata.FirstName,
		LastName:  s.Metadata.LastName,
	}
	if hints.FirstName == "" && hints.LastName == "" && s.Metadata.FullName != "" {
		parts := strings.Fields(s.Metadata.FullName)
		if len(parts) > 0 {
			hints.FirstName = parts[0]
			hints.LastName = strings.Join(parts[1:], " ")
		}
	}
	return Resolve(s.UserID, s.Email, hints)
}

// FromEmail derives first and last names from the local part of email.
// Empty segments are skipped, so "jean..dupont" still yields Jean Dupont.
func FromEmail(email string) (first, last string) {
	local, _, found := strings.Cut(email, "@")
	if !found || local == "" {
		return "", ""
	}

	segments := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	switch len(segments) {
	case 0:
		return "", ""
	case 1:
		return Capitalize(segments[0]), ""
	default:
		return Capitalize(segments[0]), Capitalize(segments[1])
	}
}

// Capitalize upper-cases the first rune and leaves the rest unchanged.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
