package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditEvent is an append-only record consumed by the audit sink. Writes
// are best-effort and never block the originating operation.
type AuditEvent struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    *uuid.UUID      `gorm:"column:user_id;type:uuid;index"`
	Action    string          `gorm:"column:action;not null;index"`
	Details   json.RawMessage `gorm:"column:details;type:jsonb"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}
