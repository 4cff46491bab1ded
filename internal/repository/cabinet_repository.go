package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/cabinet-bootstrap/internal/models"
	"gorm.io/gorm"
)

// CabinetRepository handles cabinet database operations
type CabinetRepository struct {
	db *gorm.DB
}

// NewCabinetRepository creates a new cabinet repository
func NewCabinetRepository(db *gorm.DB) *CabinetRepository {
	return &CabinetRepository{db: db}
}

// FindByOwner retrieves the cabinet owned by ownerID
func (r *CabinetRepository) FindByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Cabinet, error) {
	var cabinet models.Cabinet
	err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&cabinet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cabinet by owner: %w", err)
	}
	return &cabinet, nil
}

// GetByID retrieves a cabinet by ID
func (r *CabinetRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Cabinet, error) {
	var cabinet models.Cabinet
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&cabinet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cabinet: %w", err)
	}
	return &cabinet, nil
}

// Create inserts a new cabinet
func (r *CabinetRepository) Create(ctx context.Context, cabinet *models.Cabinet) error {
	if err := r.db.WithContext(ctx).Create(cabinet).Error; err != nil {
		return fmt.Errorf("failed to create cabinet: %w", err)
	}
	return nil
}

// Update applies the non-empty fields to a cabinet
func (r *CabinetRepository) Update(ctx context.Context, id uuid.UUID, fields models.CabinetFields) error {
	updates := map[string]interface{}{
		"updated_at": time.Now().UTC(),
	}
	if fields.Name != "" {
		updates["name"] = fields.Name
	}
	if fields.City != "" {
		updates["city"] = fields.City
	}
	if fields.OpeningDate != nil {
		updates["opening_date"] = *fields.OpeningDate
	}

	if err := r.db.WithContext(ctx).
		Model(&models.Cabinet{}).
		Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update cabinet: %w", err)
	}
	return nil
}

// CreateViaProcedure calls the create_cabinet_for_owner stored procedure
func (r *CabinetRepository) CreateViaProcedure(ctx context.Context, ownerID uuid.UUID, name, city string) error {
	if err := r.db.WithContext(ctx).
		Exec("SELECT create_cabinet_for_owner(?, ?, ?)", ownerID, name, city).Error; err != nil {
		return fmt.Errorf("failed to call create_cabinet_for_owner: %w", err)
	}
	return nil
}
