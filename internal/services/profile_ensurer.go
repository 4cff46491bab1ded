package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/otcheredev/cabinet-bootstrap/internal/models"
	"github.com/otcheredev/cabinet-bootstrap/internal/monitor"
	"github.com/otcheredev/cabinet-bootstrap/internal/repository"
	"github.com/otcheredev/cabinet-bootstrap/pkg/fallback"
	"github.com/rs/zerolog/log"
)

// ProfileEnsurer makes sure an auth user has an application profile
type ProfileEnsurer struct {
	profiles ProfileStore
	report   reporter
	opts     Options
}

// NewProfileEnsurer creates a profile ensurer
func NewProfileEnsurer(profiles ProfileStore, observer monitor.Observer, opts Options) *ProfileEnsurer {
	return &ProfileEnsurer{
		profiles: profiles,
		report:   newReporter("profile", observer),
		opts:     opts.withDefaults(),
	}
}

// EnsureProfile creates the profile of ident when missing, retrying with a
// linear backoff
func (p *ProfileEnsurer) EnsureProfile(ctx context.Context, ident models.UserIdentity) error {
	err := fallback.Retry(ctx, p.opts.Backoff, func(ctx context.Context, attempt int) error {
		_, err := withTimeout(ctx, p.opts.CallTimeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, p.ensureOnce(ctx, ident)
		})
		if err != nil {
			log.Warn().
				Err(err).
				Int("attempt", attempt).
				Str("user_id", ident.UserID.String()).
				Msg("Profile ensure attempt failed")
		}
		return err
	})
	if err != nil {
		p.report.observe(ctx, ident, "upsert", err)
		return fmt.Errorf("%w: %w", ErrProfileCreationFailed, err)
	}
	return nil
}

func (p *ProfileEnsurer) ensureOnce(ctx context.Context, ident models.UserIdentity) error {
	_, err := p.profiles.GetByID(ctx, ident.UserID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return p.profiles.Upsert(ctx, &models.Profile{
		ID:        ident.UserID,
		Email:     ident.Email,
		FirstName: ident.FirstName,
		LastName:  ident.LastName,
	})
}

// SaveNames stores the names entered on the profile form
func (p *ProfileEnsurer) SaveNames(ctx context.Context, userID uuid.UUID, firstName, lastName string) error {
	_, err := withTimeout(ctx, p.opts.CallTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.profiles.UpdateNames(ctx, userID, firstName, lastName)
	})
	if err != nil {
		return fmt.Errorf("failed to save profile names: %w", err)
	}
	return nil
}
