package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/cabinet-bootstrap/internal/identity"
	"github.com/otcheredev/cabinet-bootstrap/internal/metrics"
	"github.com/otcheredev/cabinet-bootstrap/internal/models"
	"github.com/otcheredev/cabinet-bootstrap/internal/repository"
	"github.com/rs/zerolog/log"
)

// State is the position of a reconcile call in the bootstrap state machine
type State string

const (
	StateStart             State = "START"
	StateIdentityResolved  State = "IDENTITY_RESOLVED"
	StateTenantEnsured     State = "TENANT_ENSURED"
	StateMembershipEnsured State = "MEMBERSHIP_ENSURED"
	StateDone              State = "DONE"
	StateDegraded          State = "DEGRADED"
)

// ReconcileRequest is the input of Reconcile
type ReconcileRequest struct {
	UserID  uuid.UUID
	Email   string
	Hints   models.NameHints
	Cabinet models.CabinetFields
	Entry   models.EntryPoint
}

// ReconcileResult is the outcome of Reconcile
type ReconcileResult struct {
	CabinetID *uuid.UUID          `json:"tenantId"`
	MemberID  *uuid.UUID          `json:"membershipId"`
	Outcome   models.Outcome      `json:"outcome"`
	State     State               `json:"state"`
	Identity  models.UserIdentity `json:"identity"`
	Errors    []string            `json:"errors,omitempty"`
}

// CurrentCabinet is the cabinet and membership of a signed-in user
type CurrentCabinet struct {
	Cabinet *models.Cabinet    `json:"cabinet"`
	Member  *models.TeamMember `json:"member"`
}

// ownerFlags are the rights granted to the creator of a cabinet
var ownerFlags = models.MemberFlags{IsAdmin: true, IsOwner: true, Role: models.RoleDentist}

// BootstrapService converges a user onto a profile, an owned cabinet and an
// admin membership of it. It is safe to call from every entry point
// concurrently and any number of times.
type BootstrapService struct {
	profiles *ProfileEnsurer
	tenants  *TenantProvisioner
	members  *MembershipReconciler
	cabinets CabinetStore
	audit    AuditStore
}

// NewBootstrapService creates the bootstrap orchestrator. audit may be nil.
func NewBootstrapService(
	profiles *ProfileEnsurer,
	tenants *TenantProvisioner,
	members *MembershipReconciler,
	cabinets CabinetStore,
	audit AuditStore,
) *BootstrapService {
	return &BootstrapService{
		profiles: profiles,
		tenants:  tenants,
		members:  members,
		cabinets: cabinets,
		audit:    audit,
	}
}

// Reconcile runs the bootstrap for one user. Backend failures never surface as
// errors; they degrade the outcome instead. Only invalid input is an error.
func (s *BootstrapService) Reconcile(ctx context.Context, req ReconcileRequest) (*ReconcileResult, error) {
	start := time.Now()
	res := &ReconcileResult{Outcome: models.OutcomeFailed, State: StateStart}
	if req.Entry == "" {
		req.Entry = models.EntrySignup
	}

	if req.UserID == uuid.Nil {
		res.Errors = append(res.Errors, ErrInvalidRequest.Error())
		s.finish(ctx, req, res, start)
		return res, ErrInvalidRequest
	}

	ident := identity.Resolve(req.UserID, strings.TrimSpace(req.Email), req.Hints)
	res.Identity = ident
	res.State = StateIdentityResolved

	degraded := false
	if err := s.profiles.EnsureProfile(ctx, ident); err != nil {
		degraded = true
		res.Errors = append(res.Errors, err.Error())
	}

	cabinetID, err := s.tenants.EnsureTenant(ctx, req.UserID, ident, req.Cabinet)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		res.State = StateDegraded

		// Invited members may not be able to own a cabinet but still belong to one.
		if member, lookupErr := s.members.Existing(ctx, ident.Email); lookupErr == nil {
			res.CabinetID = &member.CabinetID
			res.MemberID = &member.ID
			res.Outcome = models.OutcomePartial
		}
		s.finish(ctx, req, res, start)
		return res, nil
	}
	res.CabinetID = &cabinetID
	res.State = StateTenantEnsured

	memberID, err := s.members.EnsureMembership(ctx, req.UserID, ident, cabinetID, ownerFlags)
	if memberID != uuid.Nil {
		res.MemberID = &memberID
	}
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		res.State = StateDegraded
		res.Outcome = models.OutcomePartial
		s.finish(ctx, req, res, start)
		return res, nil
	}
	res.State = StateMembershipEnsured

	if degraded {
		res.State = StateDegraded
		res.Outcome = models.OutcomePartial
	} else {
		res.State = StateDone
		res.Outcome = models.OutcomeSuccess
	}
	s.finish(ctx, req, res, start)
	return res, nil
}

// RemediateAdminRights re-runs the bootstrap after a recursion error reported
// by a client
func (s *BootstrapService) RemediateAdminRights(ctx context.Context, userID uuid.UUID, email string) error {
	res, err := s.Reconcile(ctx, ReconcileRequest{
		UserID: userID,
		Email:  email,
		Entry:  models.EntryErrorMonitor,
	})
	if err != nil {
		return err
	}
	if res.Outcome == models.OutcomeFailed {
		return ErrTenantCreationFailed
	}
	return nil
}

// SaveProfile stores the names typed in the profile form and reconciles
// with the cabinet fields entered alongside them. Names are only written
// when the form carries some, so a cabinet-only save keeps earlier names.
func (s *BootstrapService) SaveProfile(ctx context.Context, req ReconcileRequest, names models.NameHints) (*ReconcileResult, error) {
	req.Entry = models.EntryProfileSave
	if names.FirstName != "" || names.LastName != "" {
		if req.UserID != uuid.Nil {
			if err := s.profiles.SaveNames(ctx, req.UserID, names.FirstName, names.LastName); err != nil {
				log.Warn().Err(err).Str("user_id", req.UserID.String()).Msg("Failed to save profile names")
			}
		}
		req.Hints = names
	}
	return s.Reconcile(ctx, req)
}

// Current returns the cabinet and membership of the user identified by email
func (s *BootstrapService) Current(ctx context.Context, userID uuid.UUID, email string) (*CurrentCabinet, error) {
	current := &CurrentCabinet{}

	member, err := s.members.Existing(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if err == nil {
		current.Member = member
		cabinet, err := s.cabinets.GetByID(ctx, member.CabinetID)
		if err != nil {
			return nil, err
		}
		current.Cabinet = cabinet
		return current, nil
	}

	cabinet, err := s.cabinets.FindByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	current.Cabinet = cabinet
	return current, nil
}

// Team returns the members of the signed-in user's cabinet
func (s *BootstrapService) Team(ctx context.Context, userID uuid.UUID, email string) ([]models.TeamMember, error) {
	current, err := s.Current(ctx, userID, email)
	if err != nil {
		return nil, err
	}
	return s.members.Team(ctx, current.Cabinet.ID)
}

// ErrAuditDisabled is returned by History when no audit store is configured
var ErrAuditDisabled = errors.New("bootstrap audit is disabled")

// History returns the most recent reconcile calls of a user
func (s *BootstrapService) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	if s.audit == nil {
		return nil, ErrAuditDisabled
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.audit.GetByUserID(ctx, userID, limit, offset)
}

func (s *BootstrapService) finish(ctx context.Context, req ReconcileRequest, res *ReconcileResult, start time.Time) {
	elapsed := time.Since(start)
	metrics.ReconcileOutcomes.WithLabelValues(string(req.Entry), string(res.Outcome)).Inc()
	metrics.ReconcileDuration.WithLabelValues(string(req.Entry)).Observe(elapsed.Seconds())

	event := log.Info()
	if res.Outcome != models.OutcomeSuccess {
		event = log.Warn().Strs("errors", res.Errors)
	}
	event.
		Str("user_id", req.UserID.String()).
		Str("entry_point", string(req.Entry)).
		Str("outcome", string(res.Outcome)).
		Str("state", string(res.State)).
		Dur("duration", elapsed).
		Msg("Bootstrap reconciled")

	if s.audit == nil || req.UserID == uuid.Nil {
		return
	}
	entry := &models.AuditLog{
		UserID:       req.UserID,
		CabinetID:    res.CabinetID,
		MemberID:     res.MemberID,
		EntryPoint:   req.Entry,
		Outcome:      res.Outcome,
		State:        string(res.State),
		ErrorMessage: strings.Join(res.Errors, "; "),
		Duration:     elapsed.Milliseconds(),
	}
	// The audit row must be written even when the caller went away.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.audit.Create(auditCtx, entry); err != nil {
		log.Warn().Err(err).Str("user_id", req.UserID.String()).Msg("Failed to write bootstrap audit log")
	}
}
