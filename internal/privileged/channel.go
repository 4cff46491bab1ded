// Package privileged implements the elevated-rights execution channel used when
// caller-rights writes are rejected by row-level security.
package privileged

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/cabinet-bootstrap/internal/models"
)

// Function names exposed by the server-side channel
const (
	FunctionCreateTeamMember = "create-team-member"
	FunctionUpdateTeamMember = "update-team-member"
	FunctionCreateCabinet    = "create-cabinet"
)

// ErrInvalidRequest is returned for requests missing mandatory fields
var ErrInvalidRequest = errors.New("invalid privileged request")

// MemberData is the team member row to create
type MemberData struct {
	CabinetID uuid.UUID         `json:"cabinet_id"`
	FirstName string            `json:"first_name"`
	LastName  string            `json:"last_name"`
	Contact   string            `json:"contact"`
	Role      models.MemberRole `json:"role"`
	IsAdmin   bool              `json:"is_admin"`
	IsOwner   bool              `json:"is_owner"`
	UserID    *uuid.UUID        `json:"user_id,omitempty"`
}

// MemberRequest carries the member row plus enough identity for the channel
// to create the auth user when it does not exist yet
type MemberRequest struct {
	MemberData MemberData `json:"memberData"`
	Email      string     `json:"email"`
	FirstName  string     `json:"firstName"`
	LastName   string     `json:"lastName"`
	UserID     *uuid.UUID `json:"userId,omitempty"`
	Origin     string     `json:"origin"`
}

// UpdateMemberRequest updates an existing team member
type UpdateMemberRequest struct {
	MemberID uuid.UUID           `json:"memberId"`
	Update   models.MemberUpdate `json:"update"`
	Origin   string              `json:"origin"`
}

// CabinetRequest creates the cabinet of an owner
type CabinetRequest struct {
	OwnerID     uuid.UUID  `json:"ownerId"`
	Name        string     `json:"name"`
	City        string     `json:"city,omitempty"`
	OpeningDate *time.Time `json:"openingDate,omitempty"`
	Email       string     `json:"email"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	Origin      string     `json:"origin"`
}

// Response is the wire envelope returned by every function
type Response struct {
	Success           bool            `json:"success"`
	Data              json.RawMessage `json:"data,omitempty"`
	EmailSent         bool            `json:"emailSent"`
	UserID            string          `json:"userId,omitempty"`
	TemporaryPassword string          `json:"temporaryPassword,omitempty"`
	Error             string          `json:"error,omitempty"`
	Code              string          `json:"code,omitempty"`
}

// MemberResult is the outcome of a privileged member creation
type MemberResult struct {
	Member              models.TeamMember
	EmailSent           bool
	AuthUserID          *uuid.UUID
	TemporaryCredential string
}

// Channel is the elevated-rights path for bootstrap writes
type Channel interface {
	CreateMember(ctx context.Context, req MemberRequest) (*MemberResult, error)
	UpdateMember(ctx context.Context, req UpdateMemberRequest) (*models.TeamMember, error)
	CreateCabinet(ctx context.Context, req CabinetRequest) (*models.Cabinet, error)
}
