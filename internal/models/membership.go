package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MemberRole is the professional role of a team member
type MemberRole string

const (
	RoleDentist   MemberRole = "dentist"
	RoleAssistant MemberRole = "assistant"
	RoleSecretary MemberRole = "secretary"
)

// Valid reports whether r is a known role
func (r MemberRole) Valid() bool {
	switch r {
	case RoleDentist, RoleAssistant, RoleSecretary:
		return true
	}
	return false
}

// TeamMember links a user to a cabinet. Contact (email) is the dedup key.
type TeamMember struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CabinetID uuid.UUID  `gorm:"type:uuid;not null;index" json:"cabinet_id"`
	UserID    *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	FirstName string     `gorm:"type:varchar(255)" json:"first_name"`
	LastName  string     `gorm:"type:varchar(255)" json:"last_name"`
	Contact   string     `gorm:"type:varchar(320);not null" json:"contact"`
	Role      MemberRole `gorm:"type:varchar(20);not null;default:'dentist'" json:"role"`
	IsAdmin   bool       `gorm:"not null;default:false" json:"is_admin"`
	IsOwner   bool       `gorm:"not null;default:false" json:"is_owner"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName overrides the table name
func (TeamMember) TableName() string {
	return "team_members"
}

// BeforeCreate hook
func (m *TeamMember) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Role == "" {
		m.Role = RoleDentist
	}
	return nil
}

// MemberFlags are the rights requested for a membership
type MemberFlags struct {
	IsAdmin bool       `json:"is_admin"`
	IsOwner bool       `json:"is_owner"`
	Role    MemberRole `json:"role,omitempty"`
}

// Satisfies reports whether m already grants the requested flags
func (m *TeamMember) Satisfies(flags MemberFlags) bool {
	if flags.IsAdmin && !m.IsAdmin {
		return false
	}
	if flags.IsOwner && !m.IsOwner {
		return false
	}
	return true
}

// Profile is the application profile of an auth user
type Profile struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"type:varchar(320);not null" json:"email"`
	FirstName string    `gorm:"type:varchar(255)" json:"first_name"`
	LastName  string    `gorm:"type:varchar(255)" json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the table name
func (Profile) TableName() string {
	return "profiles"
}

// UserIdentity is the display identity derived from a session
type UserIdentity struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
}

// NameHints are optional structured names supplied by the caller
type NameHints struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// MemberUpdate is a partial membership update. Nil fields are left unchanged.
type MemberUpdate struct {
	CabinetID *uuid.UUID `json:"cabinet_id,omitempty"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	IsAdmin   *bool      `json:"is_admin,omitempty"`
	IsOwner   *bool      `json:"is_owner,omitempty"`
	Role      MemberRole `json:"role,omitempty"`
	FirstName string     `json:"first_name,omitempty"`
	LastName  string     `json:"last_name,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Columns renders the update as a gorm column map
func (u MemberUpdate) Columns() map[string]interface{} {
	cols := map[string]interface{}{
		"updated_at": u.UpdatedAt,
	}
	if u.UpdatedAt.IsZero() {
		cols["updated_at"] = time.Now().UTC()
	}
	if u.CabinetID != nil {
		cols["cabinet_id"] = *u.CabinetID
	}
	if u.UserID != nil {
		cols["user_id"] = *u.UserID
	}
	if u.IsAdmin != nil {
		cols["is_admin"] = *u.IsAdmin
	}
	if u.IsOwner != nil {
		cols["is_owner"] = *u.IsOwner
	}
	if u.Role != "" {
		cols["role"] = u.Role
	}
	if u.FirstName != "" {
		cols["first_name"] = u.FirstName
	}
	if u.LastName != "" {
		cols["last_name"] = u.LastName
	}
	return cols
}

// Apply copies the update onto m
func (u MemberUpdate) Apply(m *TeamMember) {
	if u.CabinetID != nil {
		m.CabinetID = *u.CabinetID
	}
	if u.UserID != nil {
		id := *u.UserID
		m.UserID = &id
	}
	if u.IsAdmin != nil {
		m.IsAdmin = *u.IsAdmin
	}
	if u.IsOwner != nil {
		m.IsOwner = *u.IsOwner
	}
	if u.Role != "" {
		m.Role = u.Role
	}
	if u.FirstName != "" {
		m.FirstName = u.FirstName
	}
	if u.LastName != "" {
		m.LastName = u.LastName
	}
	if u.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now().UTC()
	} else {
		m.UpdatedAt = u.UpdatedAt
	}
}
