package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/cabinet-bootstrap/internal/failure"
	"github.com/otcheredev/cabinet-bootstrap/internal/metrics"
	"github.com/otcheredev/cabinet-bootstrap/internal/models"
	"github.com/otcheredev/cabinet-bootstrap/internal/monitor"
	"github.com/otcheredev/cabinet-bootstrap/pkg/fallback"
	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidRequest is returned for reconcile requests without a user
	ErrInvalidRequest = errors.New("invalid bootstrap request")
	// ErrTenantCreationFailed is returned when no strategy produced a cabinet
	ErrTenantCreationFailed = errors.New("tenant creation failed")
	// ErrMembershipCreationFailed is returned when no strategy produced a team member
	ErrMembershipCreationFailed = errors.New("membership creation failed")
	// ErrMembershipUpdateFailed is returned when an existing membership could not be upgraded
	ErrMembershipUpdateFailed = errors.New("membership update failed")
	// ErrProfileCreationFailed is returned when the profile could not be ensured
	ErrProfileCreationFailed = errors.New("profile creation failed")
)

// CabinetStore is the caller-rights cabinet persistence
type CabinetStore interface {
	FindByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Cabinet, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Cabinet, error)
	Create(ctx context.Context, cabinet *models.Cabinet) error
	Update(ctx context.Context, id uuid.UUID, fields models.CabinetFields) error
	CreateViaProcedure(ctx context.Context, ownerID uuid.UUID, name, city string) error
}

// MemberStore is the caller-rights team member persistence
type MemberStore interface {
	FindByContact(ctx context.Context, contact string) (*models.TeamMember, error)
	FindByCabinetAndContact(ctx context.Context, cabinetID uuid.UUID, contact string) (*models.TeamMember, error)
	GetByCabinetID(ctx context.Context, cabinetID uuid.UUID) ([]models.TeamMember, error)
	Create(ctx context.Context, member *models.TeamMember) error
	Update(ctx context.Context, id uuid.UUID, u models.MemberUpdate) error
}

// ProfileStore is the profile persistence
type ProfileStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	Upsert(ctx context.Context, profile *models.Profile) error
	UpdateNames(ctx context.Context, id uuid.UUID, firstName, lastName string) error
}

// AuditStore records reconcile calls
type AuditStore interface {
	Create(ctx context.Context, log *models.AuditLog) error
	GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.AuditLog, error)
}

// Options tunes the bootstrap services
type Options struct {
	// CallTimeout bounds every individual backend call
	CallTimeout time.Duration
	// Backoff drives the profile retry loop
	Backoff fallback.Backoff
	// DefaultCabinetName is used when the owner has no first name
	DefaultCabinetName string
	// LoginURL is sent in welcome notifications
	LoginURL string
	// Origin is forwarded to the privileged channel
	Origin string
}

const (
	defaultCallTimeout  = 12 * time.Second
	defaultCabinetName  = "Mon Cabinet"
	defaultOrigin       = "cabinet-bootstrap"
	cabinetNameTemplate = "Cabinet de "
)

func (o Options) withDefaults() Options {
	if o.CallTimeout <= 0 {
		o.CallTimeout = defaultCallTimeout
	}
	if o.Backoff.MaxAttempts <= 0 {
		o.Backoff = fallback.DefaultBackoff
	}
	if o.DefaultCabinetName == "" {
		o.DefaultCabinetName = defaultCabinetName
	}
	if o.Origin == "" {
		o.Origin = defaultOrigin
	}
	return o
}

// reporter logs and counts strategy outcomes and forwards failures to the observer
type reporter struct {
	component string
	observer  monitor.Observer
}

func newReporter(component string, observer monitor.Observer) reporter {
	if observer == nil {
		observer = monitor.Nop{}
	}
	return reporter{component: component, observer: observer}
}

func (r reporter) failed(ctx context.Context, ident models.UserIdentity, a fallback.Attempt) {
	if a.Skipped {
		metrics.StrategyAttempts.WithLabelValues(r.component, a.Strategy, "skipped").Inc()
		log.Debug().
			Str("component", r.component).
			Str("strategy", a.Strategy).
			Msg("Strategy skipped")
		return
	}

	metrics.StrategyAttempts.WithLabelValues(r.component, a.Strategy, "failure").Inc()
	c := failure.Classify(a.Err)
	log.Warn().
		Err(a.Err).
		Str("component", r.component).
		Str("strategy", a.Strategy).
		Str("kind", string(c.Kind)).
		Str("user_id", ident.UserID.String()).
		Dur("duration", a.Duration).
		Msg("Strategy failed")

	r.observe(ctx, ident, a.Strategy, a.Err)
}

func (r reporter) succeeded(strategy string) {
	metrics.StrategyAttempts.WithLabelValues(r.component, strategy, "success").Inc()
}

func (r reporter) observe(ctx context.Context, ident models.UserIdentity, strategy string, err error) {
	r.observer.Observe(ctx, monitor.Event{
		Source:   r.component,
		Strategy: strategy,
		UserID:   ident.UserID,
		Email:    ident.Email,
		Err:      err,
		Internal: true,
	})
}

// withTimeout runs fn under its own deadline derived from ctx
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(callCtx)
}
