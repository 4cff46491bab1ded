package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/otcheredev/cabinet-bootstrap/internal/failure"
	"github.com/otcheredev/cabinet-bootstrap/internal/models"
	"github.com/otcheredev/cabinet-bootstrap/internal/monitor"
	"github.com/otcheredev/cabinet-bootstrap/internal/privileged"
	"github.com/otcheredev/cabinet-bootstrap/internal/repository"
	"github.com/otcheredev/cabinet-bootstrap/pkg/fallback"
	"github.com/rs/zerolog/log"
)

// Tenant strategy names, in execution order
const (
	StrategyDirectInsert    = "direct_insert"
	StrategyPrivileged      = "privileged_channel"
	StrategyStoredProcedure = "stored_procedure"
)

// TenantProvisioner guarantees that an owner has exactly one cabinet
type TenantProvisioner struct {
	cabinets CabinetStore
	channel  privileged.Channel
	report   reporter
	opts     Options
}

// NewTenantProvisioner creates a tenant provisioner. channel may be nil, in
// which case the privileged strategy is not attempted.
func NewTenantProvisioner(cabinets CabinetStore, channel privileged.Channel, observer monitor.Observer, opts Options) *TenantProvisioner {
	return &TenantProvisioner{
		cabinets: cabinets,
		channel:  channel,
		report:   newReporter("tenant", observer),
		opts:     opts.withDefaults(),
	}
}

// EnsureTenant returns the cabinet owned by ownerID, creating it when missing.
// Non-empty fields are applied to an existing cabinet.
func (p *TenantProvisioner) EnsureTenant(ctx context.Context, ownerID uuid.UUID, ident models.UserIdentity, fields models.CabinetFields) (uuid.UUID, error) {
	if ownerID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: owner id is required", ErrInvalidRequest)
	}

	existing, err := p.lookup(ctx, ownerID)
	switch {
	case err == nil:
		p.applyUpdates(ctx, existing, ident, fields)
		return existing.ID, nil
	case !errors.Is(err, repository.ErrNotFound):
		// The lookup itself may be rejected by policies. The privileged
		// strategy performs its own lookup, so creation still proceeds.
		p.report.failed(ctx, ident, fallback.Attempt{Strategy: "lookup", Err: err})
	}

	name := p.cabinetName(ident, fields)
	chain := fallback.NewChain(p.strategies(ownerID, ident, name, fields)...).
		WithTimeout(p.opts.CallTimeout).
		OnFailure(func(a fallback.Attempt) { p.report.failed(ctx, ident, a) })

	res, chainErr := chain.Run(ctx)
	if chainErr == nil {
		p.report.succeeded(res.Strategy)
		log.Info().
			Str("user_id", ownerID.String()).
			Str("cabinet_id", res.Value.String()).
			Str("strategy", res.Strategy).
			Msg("Cabinet ensured")
		return res.Value, nil
	}

	// A concurrent caller may have created the cabinet while every strategy failed.
	if ctx.Err() == nil {
		if existing, err := p.lookup(ctx, ownerID); err == nil {
			log.Info().
				Str("user_id", ownerID.String()).
				Str("cabinet_id", existing.ID.String()).
				Msg("Cabinet found after strategies failed")
			return existing.ID, nil
		}
	}

	log.Error().
		Err(chainErr).
		Str("user_id", ownerID.String()).
		Msg("Failed to create cabinet")
	return uuid.Nil, fmt.Errorf("%w: %w", ErrTenantCreationFailed, chainErr)
}

func (p *TenantProvisioner) strategies(ownerID uuid.UUID, ident models.UserIdentity, name string, fields models.CabinetFields) []fallback.Strategy[uuid.UUID] {
	strategies := []fallback.Strategy[uuid.UUID]{{
		Name: StrategyDirectInsert,
		Run: func(ctx context.Context) (uuid.UUID, error) {
			cabinet := &models.Cabinet{
				Name:        name,
				City:        fields.City,
				OpeningDate: fields.OpeningDate,
				OwnerID:     ownerID,
				Status:      models.CabinetStatusActive,
			}
			if err := p.cabinets.Create(ctx, cabinet); err != nil {
				return p.recoverDuplicate(ctx, ownerID, err)
			}
			return cabinet.ID, nil
		},
	}}

	if p.channel != nil {
		strategies = append(strategies, fallback.Strategy[uuid.UUID]{
			Name: StrategyPrivileged,
			Run: func(ctx context.Context) (uuid.UUID, error) {
				cabinet, err := p.channel.CreateCabinet(ctx, privileged.CabinetRequest{
					OwnerID:     ownerID,
					Name:        name,
					City:        fields.City,
					OpeningDate: fields.OpeningDate,
					Email:       ident.Email,
					FirstName:   ident.FirstName,
					LastName:    ident.LastName,
					Origin:      p.opts.Origin,
				})
				if err != nil {
					return p.recoverDuplicate(ctx, ownerID, err)
				}
				return cabinet.ID, nil
			},
		})
	}

	strategies = append(strategies, fallback.Strategy[uuid.UUID]{
		Name: StrategyStoredProcedure,
		Run: func(ctx context.Context) (uuid.UUID, error) {
			if err := p.cabinets.CreateViaProcedure(ctx, ownerID, name, fields.City); err != nil {
				return p.recoverDuplicate(ctx, ownerID, err)
			}
			cabinet, err := p.cabinets.FindByOwner(ctx, ownerID)
			if err != nil {
				return uuid.Nil, fmt.Errorf("failed to read cabinet after procedure: %w", err)
			}
			return cabinet.ID, nil
		},
	})

	return strategies
}

// recoverDuplicate turns a uniqueness violation into the winner's cabinet
func (p *TenantProvisioner) recoverDuplicate(ctx context.Context, ownerID uuid.UUID, err error) (uuid.UUID, error) {
	if !failure.IsDuplicate(err) {
		return uuid.Nil, err
	}
	cabinet, lookupErr := p.cabinets.FindByOwner(ctx, ownerID)
	if lookupErr != nil {
		return uuid.Nil, err
	}
	return cabinet.ID, nil
}

func (p *TenantProvisioner) lookup(ctx context.Context, ownerID uuid.UUID) (*models.Cabinet, error) {
	return withTimeout(ctx, p.opts.CallTimeout, func(ctx context.Context) (*models.Cabinet, error) {
		return p.cabinets.FindByOwner(ctx, ownerID)
	})
}

// applyUpdates is best effort; the cabinet exists either way
func (p *TenantProvisioner) applyUpdates(ctx context.Context, cabinet *models.Cabinet, ident models.UserIdentity, fields models.CabinetFields) {
	if fields.IsZero() {
		return
	}
	_, err := withTimeout(ctx, p.opts.CallTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.cabinets.Update(ctx, cabinet.ID, fields)
	})
	if err != nil {
		p.report.failed(ctx, ident, fallback.Attempt{Strategy: "update", Err: err})
	}
}

func (p *TenantProvisioner) cabinetName(ident models.UserIdentity, fields models.CabinetFields) string {
	if name := strings.TrimSpace(fields.Name); name != "" {
		return name
	}
	if first := strings.TrimSpace(ident.FirstName); first != "" {
		return cabinetNameTemplate + first
	}
	return p.opts.DefaultCabinetName
}
