package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Outcome is the overall result of a reconcile call
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
)

// EntryPoint identifies which caller triggered a reconcile
type EntryPoint string

const (
	EntrySignup       EntryPoint = "signup"
	EntryAuthEvent    EntryPoint = "auth_event"
	EntryProfileSave  EntryPoint = "profile_save"
	EntryErrorMonitor EntryPoint = "error_monitor"
)

// AuditLog records one bootstrap reconcile call
type AuditLog struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	CabinetID    *uuid.UUID `gorm:"type:uuid;index" json:"cabinet_id,omitempty"`
	MemberID     *uuid.UUID `gorm:"type:uuid" json:"member_id,omitempty"`
	EntryPoint   EntryPoint `gorm:"type:varchar(30);index" json:"entry_point"`
	Outcome      Outcome    `gorm:"type:varchar(20);index" json:"outcome"`
	State        string     `gorm:"type:varchar(30)" json:"state"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
	Duration     int64      `json:"duration_ms"` // milliseconds
	CreatedAt    time.Time  `gorm:"index" json:"timestamp"`
}

// TableName overrides the table name
func (AuditLog) TableName() string {
	return "bootstrap_audit_logs"
}

// BeforeCreate hook
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
