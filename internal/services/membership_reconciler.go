package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/cabinet-bootstrap/internal/failure"
	"github.com/otcheredev/cabinet-bootstrap/internal/models"
	"github.com/otcheredev/cabinet-bootstrap/internal/monitor"
	"github.com/otcheredev/cabinet-bootstrap/internal/notifier"
	"github.com/otcheredev/cabinet-bootstrap/internal/privileged"
	"github.com/otcheredev/cabinet-bootstrap/internal/repository"
	"github.com/otcheredev/cabinet-bootstrap/pkg/fallback"
	"github.com/rs/zerolog/log"
)

// Membership strategy names, in execution order
const (
	StrategyDirectUpdate     = "direct_update"
	StrategyPrivilegedUpdate = "privileged_update"
	StrategyPrivilegedInsert = "privileged_insert"
	StrategyDirectRetry      = "direct_retry"
)

// MembershipReconciler guarantees that a user has a team member row with at
// least the requested rights
type MembershipReconciler struct {
	members    MemberStore
	channel    privileged.Channel
	dispatcher notifier.Dispatcher
	report     reporter
	opts       Options
}

// NewMembershipReconciler creates a membership reconciler. channel and
// dispatcher may be nil.
func NewMembershipReconciler(members MemberStore, channel privileged.Channel, dispatcher notifier.Dispatcher, observer monitor.Observer, opts Options) *MembershipReconciler {
	return &MembershipReconciler{
		members:    members,
		channel:    channel,
		dispatcher: dispatcher,
		report:     newReporter("membership", observer),
		opts:       opts.withDefaults(),
	}
}

// EnsureMembership returns the member id of the user in cabinetID. An existing
// membership for the same contact is moved and upgraded, never downgraded.
// When ErrMembershipUpdateFailed is returned the id of the existing member is
// returned alongside it.
func (r *MembershipReconciler) EnsureMembership(ctx context.Context, userID uuid.UUID, ident models.UserIdentity, cabinetID uuid.UUID, flags models.MemberFlags) (uuid.UUID, error) {
	contact := normalizeContact(ident.Email)
	if contact == "" || cabinetID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: contact and cabinet are required", ErrInvalidRequest)
	}
	if flags.Role == "" {
		flags.Role = models.RoleDentist
	}

	existing, err := r.lookup(ctx, cabinetID, contact)
	switch {
	case err == nil:
		return r.reconcile(ctx, existing, userID, ident, cabinetID, flags)
	case !errors.Is(err, repository.ErrNotFound):
		r.report.failed(ctx, ident, fallback.Attempt{Strategy: "lookup", Err: err})
	}

	return r.create(ctx, userID, ident, contact, cabinetID, flags)
}

// Existing returns the membership for email in any cabinet
func (r *MembershipReconciler) Existing(ctx context.Context, email string) (*models.TeamMember, error) {
	contact := normalizeContact(email)
	if contact == "" {
		return nil, repository.ErrNotFound
	}
	return withTimeout(ctx, r.opts.CallTimeout, func(ctx context.Context) (*models.TeamMember, error) {
		return r.members.FindByContact(ctx, contact)
	})
}

// Team lists the members of a cabinet, owners first
func (r *MembershipReconciler) Team(ctx context.Context, cabinetID uuid.UUID) ([]models.TeamMember, error) {
	members, err := withTimeout(ctx, r.opts.CallTimeout, func(ctx context.Context) ([]models.TeamMember, error) {
		return r.members.GetByCabinetID(ctx, cabinetID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list team: %w", err)
	}
	return members, nil
}

// lookup prefers a row in the target cabinet, then any row for the contact
func (r *MembershipReconciler) lookup(ctx context.Context, cabinetID uuid.UUID, contact string) (*models.TeamMember, error) {
	member, err := withTimeout(ctx, r.opts.CallTimeout, func(ctx context.Context) (*models.TeamMember, error) {
		return r.members.FindByCabinetAndContact(ctx, cabinetID, contact)
	})
	if err == nil || !errors.Is(err, repository.ErrNotFound) {
		return member, err
	}
	return withTimeout(ctx, r.opts.CallTimeout, func(ctx context.Context) (*models.TeamMember, error) {
		return r.members.FindByContact(ctx, contact)
	})
}

func (r *MembershipReconciler) reconcile(ctx context.Context, existing *models.TeamMember, userID uuid.UUID, ident models.UserIdentity, cabinetID uuid.UUID, flags models.MemberFlags) (uuid.UUID, error) {
	needsLink := existing.UserID == nil && userID != uuid.Nil
	if existing.CabinetID == cabinetID && existing.Satisfies(flags) && !needsLink {
		return existing.ID, nil
	}

	isAdmin := existing.IsAdmin || flags.IsAdmin
	isOwner := existing.IsOwner || flags.IsOwner
	update := models.MemberUpdate{
		CabinetID: &cabinetID,
		IsAdmin:   &isAdmin,
		IsOwner:   &isOwner,
		UpdatedAt: time.Now().UTC(),
	}
	if needsLink {
		update.UserID = &userID
	}
	if existing.Role == "" {
		update.Role = flags.Role
	}

	strategies := []fallback.Strategy[uuid.UUID]{{
		Name: StrategyDirectUpdate,
		Run: func(ctx context.Context) (uuid.UUID, error) {
			return existing.ID, r.members.Update(ctx, existing.ID, update)
		},
	}}
	if r.channel != nil {
		strategies = append(strategies, fallback.Strategy[uuid.UUID]{
			Name:     StrategyPrivilegedUpdate,
			Eligible: retryableViaPrivileged,
			Run: func(ctx context.Context) (uuid.UUID, error) {
				member, err := r.channel.UpdateMember(ctx, privileged.UpdateMemberRequest{
					MemberID: existing.ID,
					Update:   update,
					Origin:   r.opts.Origin,
				})
				if err != nil {
					return uuid.Nil, err
				}
				return member.ID, nil
			},
		})
	}

	res, err := fallback.NewChain(strategies...).
		WithTimeout(r.opts.CallTimeout).
		OnFailure(func(a fallback.Attempt) { r.report.failed(ctx, ident, a) }).
		Run(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn().
			Str("member_id", existing.ID.String()).
			Str("cabinet_id", cabinetID.String()).
			Msg("Team member vanished before update, creating it")
		return r.create(ctx, userID, ident, normalizeContact(ident.Email), cabinetID, flags)
	}
	if err != nil {
		log.Error().
			Err(err).
			Str("member_id", existing.ID.String()).
			Str("cabinet_id", cabinetID.String()).
			Msg("Failed to upgrade team member")
		return existing.ID, fmt.Errorf("%w: %w", ErrMembershipUpdateFailed, err)
	}

	r.report.succeeded(res.Strategy)
	log.Info().
		Str("member_id", existing.ID.String()).
		Str("cabinet_id", cabinetID.String()).
		Str("strategy", res.Strategy).
		Bool("is_admin", isAdmin).
		Bool("is_owner", isOwner).
		Msg("Team member upgraded")
	return existing.ID, nil
}

func (r *MembershipReconciler) create(ctx context.Context, userID uuid.UUID, ident models.UserIdentity, contact string, cabinetID uuid.UUID, flags models.MemberFlags) (uuid.UUID, error) {
	var linkedUser *uuid.UUID
	if userID != uuid.Nil {
		linkedUser = &userID
	}

	// Reusing the id keeps the retry idempotent when the first insert
	// committed but its response was lost.
	memberID := uuid.New()
	insert := func(ctx context.Context) (uuid.UUID, error) {
		member := &models.TeamMember{
			ID:        memberID,
			CabinetID: cabinetID,
			UserID:    linkedUser,
			FirstName: ident.FirstName,
			LastName:  ident.LastName,
			Contact:   contact,
			Role:      flags.Role,
			IsAdmin:   flags.IsAdmin,
			IsOwner:   flags.IsOwner,
		}
		if err := r.members.Create(ctx, member); err != nil {
			if !failure.IsDuplicate(err) {
				return uuid.Nil, err
			}
			winner, lookupErr := r.members.FindByCabinetAndContact(ctx, cabinetID, contact)
			if lookupErr != nil {
				return uuid.Nil, err
			}
			return winner.ID, nil
		}
		return member.ID, nil
	}

	var viaChannel *privileged.MemberResult
	strategies := []fallback.Strategy[uuid.UUID]{{Name: StrategyDirectInsert, Run: insert}}
	if r.channel != nil {
		strategies = append(strategies, fallback.Strategy[uuid.UUID]{
			Name:     StrategyPrivilegedInsert,
			Eligible: retryableViaPrivileged,
			Run: func(ctx context.Context) (uuid.UUID, error) {
				result, err := r.channel.CreateMember(ctx, privileged.MemberRequest{
					MemberData: privileged.MemberData{
						CabinetID: cabinetID,
						FirstName: ident.FirstName,
						LastName:  ident.LastName,
						Contact:   contact,
						Role:      flags.Role,
						IsAdmin:   flags.IsAdmin,
						IsOwner:   flags.IsOwner,
						UserID:    linkedUser,
					},
					Email:     contact,
					FirstName: ident.FirstName,
					LastName:  ident.LastName,
					UserID:    linkedUser,
					Origin:    r.opts.Origin,
				})
				if err != nil {
					return uuid.Nil, err
				}
				viaChannel = result
				return result.Member.ID, nil
			},
		})
	}
	strategies = append(strategies, fallback.Strategy[uuid.UUID]{Name: StrategyDirectRetry, Run: insert})

	res, err := fallback.NewChain(strategies...).
		WithTimeout(r.opts.CallTimeout).
		OnFailure(func(a fallback.Attempt) { r.report.failed(ctx, ident, a) }).
		Run(ctx)
	if err != nil {
		if ctx.Err() == nil {
			if winner, lookupErr := withTimeout(ctx, r.opts.CallTimeout, func(ctx context.Context) (*models.TeamMember, error) {
				return r.members.FindByCabinetAndContact(ctx, cabinetID, contact)
			}); lookupErr == nil {
				return winner.ID, nil
			}
		}
		log.Error().
			Err(err).
			Str("cabinet_id", cabinetID.String()).
			Str("contact", contact).
			Msg("Failed to create team member")
		return uuid.Nil, fmt.Errorf("%w: %w", ErrMembershipCreationFailed, err)
	}

	r.report.succeeded(res.Strategy)
	log.Info().
		Str("member_id", res.Value.String()).
		Str("cabinet_id", cabinetID.String()).
		Str("strategy", res.Strategy).
		Msg("Team member created")

	if res.Strategy == StrategyPrivilegedInsert && viaChannel != nil {
		r.welcome(contact, ident, viaChannel)
	}
	return res.Value, nil
}

// welcome sends the invitation mail the channel did not send itself
func (r *MembershipReconciler) welcome(contact string, ident models.UserIdentity, result *privileged.MemberResult) {
	if result.EmailSent || result.TemporaryCredential == "" {
		return
	}
	notifier.Dispatch(r.dispatcher, notifier.Welcome{
		Email:               contact,
		FirstName:           ident.FirstName,
		LastName:            ident.LastName,
		TemporaryCredential: result.TemporaryCredential,
		LoginURL:            r.opts.LoginURL,
	})
}

func retryableViaPrivileged(prev fallback.Attempt) bool {
	return failure.RetryViaPrivileged(prev.Err)
}

func normalizeContact(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
