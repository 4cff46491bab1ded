package privileged

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/otcheredev/cabinet-bootstrap/internal/failure"
	"github.com/otcheredev/cabinet-bootstrap/internal/models"
	"github.com/otcheredev/cabinet-bootstrap/internal/repository"
	"github.com/rs/zerolog/log"
)

// CabinetStore is the elevated cabinet persistence used by Direct
type CabinetStore interface {
	FindByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Cabinet, error)
	Create(ctx context.Context, cabinet *models.Cabinet) error
}

// MemberStore is the elevated team member persistence used by Direct
type MemberStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.TeamMember, error)
	FindByCabinetAndContact(ctx context.Context, cabinetID uuid.UUID, contact string) (*models.TeamMember, error)
	Create(ctx context.Context, member *models.TeamMember) error
	Update(ctx context.Context, id uuid.UUID, u models.MemberUpdate) error
}

// Direct executes privileged operations in-process against a service-role
// connection. It backs the server-side functions.
type Direct struct {
	cabinets CabinetStore
	members  MemberStore
	auth     AuthAdmin
}

// NewDirect creates a Direct channel. auth may be nil, in which case no auth
// accounts are created.
func NewDirect(cabinets CabinetStore, members MemberStore, auth AuthAdmin) *Direct {
	return &Direct{
		cabinets: cabinets,
		members:  members,
		auth:     auth,
	}
}

// CreateMember creates the team member, and the auth account when unknown.
// An existing member with the same contact in the cabinet is returned as is.
func (d *Direct) CreateMember(ctx context.Context, req MemberRequest) (*MemberResult, error) {
	data := req.MemberData
	contact := strings.TrimSpace(data.Contact)
	if contact == "" {
		contact = strings.TrimSpace(req.Email)
	}
	if data.CabinetID == uuid.Nil || contact == "" {
		return nil, fmt.Errorf("%w: cabinet and contact are required", ErrInvalidRequest)
	}

	result := &MemberResult{}

	userID := req.UserID
	if userID == nil {
		userID = data.UserID
	}
	if userID == nil && d.auth != nil {
		user, err := d.auth.EnsureUser(ctx, contact, req.FirstName, req.LastName)
		if err != nil {
			return nil, fmt.Errorf("failed to ensure auth user: %w", err)
		}
		userID = &user.ID
		result.AuthUserID = &user.ID
		result.TemporaryCredential = user.TemporaryPassword
		log.Info().
			Str("origin", req.Origin).
			Bool("created", user.Created).
			Str("user_id", user.ID.String()).
			Msg("Auth user ensured by privileged channel")
	}

	existing, err := d.members.FindByCabinetAndContact(ctx, data.CabinetID, contact)
	if err == nil {
		result.Member = *existing
		return result, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	member := &models.TeamMember{
		CabinetID: data.CabinetID,
		UserID:    userID,
		FirstName: firstNonEmpty(data.FirstName, req.FirstName),
		LastName:  firstNonEmpty(data.LastName, req.LastName),
		Contact:   contact,
		Role:      data.Role,
		IsAdmin:   data.IsAdmin,
		IsOwner:   data.IsOwner,
	}
	if err := d.members.Create(ctx, member); err != nil {
		if !failure.IsDuplicate(err) {
			return nil, err
		}
		existing, lookupErr := d.members.FindByCabinetAndContact(ctx, data.CabinetID, contact)
		if lookupErr != nil {
			return nil, err
		}
		member = existing
	}

	result.Member = *member
	return result, nil
}

// UpdateMember applies the update and returns the stored member
func (d *Direct) UpdateMember(ctx context.Context, req UpdateMemberRequest) (*models.TeamMember, error) {
	if req.MemberID == uuid.Nil {
		return nil, fmt.Errorf("%w: member id is required", ErrInvalidRequest)
	}
	if err := d.members.Update(ctx, req.MemberID, req.Update); err != nil {
		return nil, err
	}
	return d.members.GetByID(ctx, req.MemberID)
}

// CreateCabinet creates the owner's cabinet unless one already exists
func (d *Direct) CreateCabinet(ctx context.Context, req CabinetRequest) (*models.Cabinet, error) {
	if req.OwnerID == uuid.Nil || strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: owner and name are required", ErrInvalidRequest)
	}

	existing, err := d.cabinets.FindByOwner(ctx, req.OwnerID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	cabinet := &models.Cabinet{
		Name:        req.Name,
		City:        req.City,
		OpeningDate: req.OpeningDate,
		OwnerID:     req.OwnerID,
		Status:      models.CabinetStatusActive,
	}
	if err := d.cabinets.Create(ctx, cabinet); err != nil {
		if failure.IsDuplicate(err) {
			return d.cabinets.FindByOwner(ctx, req.OwnerID)
		}
		return nil, err
	}
	return cabinet, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
