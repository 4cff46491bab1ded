package notifier

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogDispatcher writes notifications to the log instead of sending them
type LogDispatcher struct{}

// NewLogDispatcher creates a new LogDispatcher
func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{}
}

// SendWelcome logs the notification. The temporary credential is never logged.
func (d *LogDispatcher) SendWelcome(ctx context.Context, w Welcome) error {
	log.Info().
		Str("email", w.Email).
		Str("first_name", w.FirstName).
		Str("last_name", w.LastName).
		Bool("has_credential", w.TemporaryCredential != "").
		Str("login_url", w.LoginURL).
		Msg("Welcome notification")
	return nil
}
