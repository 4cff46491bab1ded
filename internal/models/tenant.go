package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CabinetStatus is the lifecycle status of a cabinet
type CabinetStatus string

const (
	CabinetStatusActive   CabinetStatus = "active"
	CabinetStatusInactive CabinetStatus = "inactive"
)

// Cabinet represents a tenant (one dental practice)
type Cabinet struct {
	ID          uuid.UUID     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name        string        `gorm:"type:varchar(255);not null" json:"name"`
	City        string        `gorm:"type:varchar(255)" json:"city,omitempty"`
	OpeningDate *time.Time    `gorm:"type:date" json:"opening_date,omitempty"`
	OwnerID     uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex" json:"owner_id"`
	Status      CabinetStatus `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// TableName overrides the table name
func (Cabinet) TableName() string {
	return "cabinets"
}

// BeforeCreate hook
func (c *Cabinet) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = CabinetStatusActive
	}
	return nil
}

// CabinetFields are the optional cabinet attributes a caller may set
type CabinetFields struct {
	Name        string     `json:"name,omitempty"`
	City        string     `json:"city,omitempty"`
	OpeningDate *time.Time `json:"opening_date,omitempty"`
}

// IsZero reports whether no field is set
func (f CabinetFields) IsZero() bool {
	return f.Name == "" && f.City == "" && f.OpeningDate == nil
}

// SessionClaims are the access-token claims issued by the auth provider
type SessionClaims struct {
	Email        string       `json:"email"`
	Role         string       `json:"role,omitempty"`
	UserMetadata UserMetadata `json:"user_metadata"`
	jwt.RegisteredClaims
}

// UserMetadata is the free-form profile data attached to an auth user
type UserMetadata struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	FullName  string `json:"full_name,omitempty"`
}

// Session is the authenticated user extracted from an access token
type Session struct {
	UserID   uuid.UUID    `json:"user_id"`
	Email    string       `json:"email"`
	Metadata UserMetadata `json:"metadata"`
}
