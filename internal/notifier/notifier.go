package notifier

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Welcome is the payload of an invitation / welcome e-mail
type Welcome struct {
	Email               string `json:"email"`
	FirstName           string `json:"firstName"`
	LastName            string `json:"lastName"`
	TemporaryCredential string `json:"temporaryCredential,omitempty"`
	LoginURL            string `json:"loginUrl"`
}

// Dispatcher sends welcome notifications
type Dispatcher interface {
	SendWelcome(ctx context.Context, w Welcome) error
}

const dispatchTimeout = 15 * time.Second

// Dispatch sends w in the background. Failures are logged and never returned.
func Dispatch(d Dispatcher, w Welcome) {
	if d == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()

		if err := d.SendWelcome(ctx, w); err != nil {
			log.Warn().Err(err).Str("email", w.Email).Msg("Failed to send welcome notification")
			return
		}
		log.Info().Str("email", w.Email).Msg("Welcome notification sent")
	}()
}
