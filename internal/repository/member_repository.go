package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/otcheredev/cabinet-bootstrap/internal/models"
	"gorm.io/gorm"
)

// MemberRepository handles team member database operations
type MemberRepository struct {
	db *gorm.DB
}

// NewMemberRepository creates a new team member repository
func NewMemberRepository(db *gorm.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// FindByContact retrieves the oldest team member whose contact matches email, case-insensitively
func (r *MemberRepository) FindByContact(ctx context.Context, contact string) (*models.TeamMember, error) {
	var member models.TeamMember
	err := r.db.WithContext(ctx).
		Where("lower(contact) = ?", strings.ToLower(strings.TrimSpace(contact))).
		Order("created_at ASC").
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team member by contact: %w", err)
	}
	return &member, nil
}

// FindByCabinetAndContact retrieves the team member of a cabinet by contact
func (r *MemberRepository) FindByCabinetAndContact(ctx context.Context, cabinetID uuid.UUID, contact string) (*models.TeamMember, error) {
	var member models.TeamMember
	err := r.db.WithContext(ctx).
		Where("cabinet_id = ? AND lower(contact) = ?", cabinetID, strings.ToLower(strings.TrimSpace(contact))).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team member: %w", err)
	}
	return &member, nil
}

// GetByCabinetID retrieves all team members of a cabinet
func (r *MemberRepository) GetByCabinetID(ctx context.Context, cabinetID uuid.UUID) ([]models.TeamMember, error) {
	var members []models.TeamMember
	if err := r.db.WithContext(ctx).
		Where("cabinet_id = ?", cabinetID).
		Order("is_owner DESC, created_at ASC").
		Find(&members).Error; err != nil {
		return nil, fmt.Errorf("failed to get team members: %w", err)
	}
	return members, nil
}

// Create inserts a new team member
func (r *MemberRepository) Create(ctx context.Context, member *models.TeamMember) error {
	if err := r.db.WithContext(ctx).Create(member).Error; err != nil {
		return fmt.Errorf("failed to create team member: %w", err)
	}
	return nil
}

// Update applies a membership update
func (r *MemberRepository) Update(ctx context.Context, id uuid.UUID, u models.MemberUpdate) error {
	res := r.db.WithContext(ctx).
		Model(&models.TeamMember{}).
		Where("id = ?", id).
		Updates(u.Columns())
	if res.Error != nil {
		return fmt.Errorf("failed to update team member: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a team member by ID
func (r *MemberRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TeamMember, error) {
	var member models.TeamMember
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team member: %w", err)
	}
	return &member, nil
}
